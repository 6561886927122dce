// Package directory holds the static tenant directory: the fixed table of
// clinics and the credentials that grant access to each. Credential checks
// happen here; the sync core only ever sees the resulting tenant selection.
package directory

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rafteles16/CRMPSICO/internal/model"
	"github.com/rafteles16/CRMPSICO/internal/util"
)

// defaultEntries is the built-in directory. The TEST entries share one login
// that grants access to every clinic.
var defaultEntries = []model.DirectoryEntry{
	{Tenant: model.Tenant{CNPJ: "00.111.222/0001-33", Name: "Clínica Mente Sã", City: "São Paulo"}, Login: "sp.admin", Secret: "123"},
	{Tenant: model.Tenant{CNPJ: "44.555.666/0001-77", Name: "Espaço Equilíbrio", City: "Rio de Janeiro"}, Login: "rj.admin", Secret: "123"},
	{Tenant: model.Tenant{CNPJ: "77.888.999/0001-11", Name: "Apoio Psicológico BH", City: "Belo Horizonte"}, Login: "bh.admin", Secret: "123"},

	{Tenant: model.Tenant{CNPJ: "00.111.222/0001-33", Name: "Clínica Mente Sã (TESTE)", City: "São Paulo"}, Login: "teste.acesso", Secret: "456"},
	{Tenant: model.Tenant{CNPJ: "44.555.666/0001-77", Name: "Espaço Equilíbrio (TESTE)", City: "Rio de Janeiro"}, Login: "teste.acesso", Secret: "456"},
	{Tenant: model.Tenant{CNPJ: "77.888.999/0001-11", Name: "Apoio Psicológico BH (TESTE)", City: "Belo Horizonte"}, Login: "teste.acesso", Secret: "456"},
}

// Directory is an immutable credential table.
type Directory struct {
	entries []model.DirectoryEntry
	logger  *zap.Logger
}

// New creates a directory from the built-in table.
func New(logger *zap.Logger) *Directory {
	return &Directory{
		entries: defaultEntries,
		logger:  logger,
	}
}

// NewFromEntries creates a directory from an explicit table.
func NewFromEntries(entries []model.DirectoryEntry, logger *zap.Logger) *Directory {
	return &Directory{
		entries: entries,
		logger:  logger,
	}
}

// Load reads a directory from a YAML file; an empty path yields the built-in
// table.
func Load(path string, logger *zap.Logger) (*Directory, error) {
	if path == "" {
		return New(logger), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory file: %w", err)
	}

	var file struct {
		Tenants []model.DirectoryEntry `yaml:"tenants"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse directory file: %w", err)
	}
	if len(file.Tenants) == 0 {
		return nil, fmt.Errorf("directory file %s contains no tenants", path)
	}

	logger.Info("Loaded tenant directory",
		zap.String("path", path),
		zap.Int("entries", len(file.Tenants)))

	return NewFromEntries(file.Tenants, logger), nil
}

// Authenticate matches the entered credentials against the table and returns
// the selected tenant on success. The CNPJ is compared in its formatted form,
// which is also how the table stores it.
func (d *Directory) Authenticate(cnpj, login, secret string) (model.Tenant, bool) {
	formatted := util.FormatCNPJ(cnpj)
	for _, entry := range d.entries {
		if entry.CNPJ == formatted && entry.Login == login && entry.Secret == secret {
			return entry.Tenant, true
		}
	}

	d.logger.Debug("Credential check failed", zap.String("cnpj", formatted), zap.String("login", login))
	return model.Tenant{}, false
}

// Tenants lists the distinct tenants in the directory, in table order.
func (d *Directory) Tenants() []model.Tenant {
	seen := make(map[string]bool, len(d.entries))
	tenants := make([]model.Tenant, 0, len(d.entries))
	for _, entry := range d.entries {
		if seen[entry.CNPJ] {
			continue
		}
		seen[entry.CNPJ] = true
		tenants = append(tenants, entry.Tenant)
	}
	return tenants
}
