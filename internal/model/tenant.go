package model

// Tenant represents one clinic: a business registration number (CNPJ), a
// display name and a home city. Tenants are selected, never mutated.
type Tenant struct {
	CNPJ string `yaml:"cnpj"`
	Name string `yaml:"name"`
	City string `yaml:"city"`
}

// DirectoryEntry is one row of the static tenant directory: a tenant plus
// the credentials that grant access to it. The same login may appear on
// several tenants (shared test accounts).
type DirectoryEntry struct {
	Tenant `yaml:",inline"`
	Login  string `yaml:"login"`
	Secret string `yaml:"secret"`
}
