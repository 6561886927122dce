package directory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAuthenticateBuiltInTable(t *testing.T) {
	d := New(zap.NewNop())

	tenant, ok := d.Authenticate("00.111.222/0001-33", "sp.admin", "123")
	require.True(t, ok)
	assert.Equal(t, "Clínica Mente Sã", tenant.Name)
	assert.Equal(t, "São Paulo", tenant.City)
}

func TestAuthenticateAcceptsUnformattedCNPJ(t *testing.T) {
	d := New(zap.NewNop())

	// Raw digits are formatted before the table comparison.
	tenant, ok := d.Authenticate("00111222000133", "sp.admin", "123")
	require.True(t, ok)
	assert.Equal(t, "00.111.222/0001-33", tenant.CNPJ)
}

func TestAuthenticateTestLoginSpansClinics(t *testing.T) {
	d := New(zap.NewNop())

	for _, cnpj := range []string{"00.111.222/0001-33", "44.555.666/0001-77", "77.888.999/0001-11"} {
		tenant, ok := d.Authenticate(cnpj, "teste.acesso", "456")
		require.True(t, ok, "teste.acesso must open %s", cnpj)
		assert.Equal(t, cnpj, tenant.CNPJ)
		assert.Contains(t, tenant.Name, "(TESTE)")
	}
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	d := New(zap.NewNop())

	cases := []struct {
		name                string
		cnpj, login, secret string
	}{
		{"wrong secret", "00.111.222/0001-33", "sp.admin", "999"},
		{"wrong login", "00.111.222/0001-33", "rj.admin", "123"},
		{"login of another clinic", "44.555.666/0001-77", "sp.admin", "123"},
		{"unknown cnpj", "11.111.111/0001-11", "sp.admin", "123"},
		{"empty everything", "", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := d.Authenticate(tc.cnpj, tc.login, tc.secret)
			assert.False(t, ok)
		})
	}
}

func TestTenantsDistinct(t *testing.T) {
	d := New(zap.NewNop())

	tenants := d.Tenants()
	require.Len(t, tenants, 3)
	assert.Equal(t, "00.111.222/0001-33", tenants[0].CNPJ)
	assert.Equal(t, "44.555.666/0001-77", tenants[1].CNPJ)
	assert.Equal(t, "77.888.999/0001-11", tenants[2].CNPJ)
}

func TestLoadEmptyPathUsesBuiltInTable(t *testing.T) {
	d, err := Load("", zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, d.Tenants(), 3)
}

func TestLoadFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tenants.yaml")
	content := `tenants:
  - cnpj: "12.345.678/0001-90"
    name: "Clínica Teste"
    city: "Curitiba"
    login: "ct.admin"
    secret: "s3cret"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	d, err := Load(path, zap.NewNop())
	require.NoError(t, err)

	tenant, ok := d.Authenticate("12345678000190", "ct.admin", "s3cret")
	require.True(t, ok)
	assert.Equal(t, "Clínica Teste", tenant.Name)

	_, ok = d.Authenticate("00.111.222/0001-33", "sp.admin", "123")
	assert.False(t, ok, "the file replaces the built-in table")
}

func TestLoadRejectsEmptyAndMissingFiles(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), zap.NewNop())
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tenants: []\n"), 0o644))
	_, err = Load(path, zap.NewNop())
	assert.Error(t, err)

	path = filepath.Join(t.TempDir(), "garbage.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\n  - not yaml"), 0o644))
	_, err = Load(path, zap.NewNop())
	assert.Error(t, err)
}
