// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings.

It is split into two layers. Process bootstrap settings (port, environment,
debug/developer-mode toggles, secret paths) load from the OS environment via
'caarlos0/env' into [Config], same as any Twelve-Factor service. The
gateway's declarative resource document — data sources, entities, roles,
database policies — loads from a YAML file via 'gopkg.in/yaml.v3' into
[RuntimeConfig], which the Metadata Provider and Engine Factory build their
in-memory maps from at startup, and which a hot-reload atomically replaces.

Architecture:

  - Immutability: both layers are read-only once loaded.
  - DI-Friendly: passed to core components via constructors.
  - Zero Hidden State: no global variables are used to store config.
*/
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// # Process Bootstrap

// Config holds process-level bootstrap settings read from the environment.
type Config struct {
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// ResourceConfigPath points at the YAML document parsed into [RuntimeConfig].
	ResourceConfigPath string `env:"RESOURCE_CONFIG_PATH" envDefault:"./config/gateway.yaml"`

	// MigrationsPath points at the bookkeeping schema's migration files,
	// applied against whichever data source is marked is-control-plane.
	MigrationsPath string `env:"MIGRATIONS_PATH" envDefault:"./migrations/gateway"`

	// JWTPrivKeyPath/JWTPubKeyPath sign and verify bearer tokens for the dev
	// token-issuance path; production deployments verify against an external
	// issuer's public key instead.
	JWTPrivKeyPath string `env:"JWT_PRIVATE_KEY_PATH,required"`
	JWTPubKeyPath  string `env:"JWT_PUBLIC_KEY_PATH,required"`
	JWTIssuer      string `env:"JWT_ISSUER" envDefault:"dataapi-gateway"`

	// RedisURL backs the optional response-shaping cache (§6 cache.enabled).
	RedisURL string `env:"REDIS_URL"`

	// IsLateConfigured is read from IS_LATE_CONFIGURED; no component of the
	// gateway consults it, so it does not change what is logged.
	IsLateConfigured bool `env:"IS_LATE_CONFIGURED" envDefault:"false"`

	ExtraOrigins string `env:"EXTRA_ORIGINS"`
}

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}
	return cfg, nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool { return c.Environment == "development" }

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool { return c.Environment == "production" }

// DeveloperMode reports whether DatabaseOperationFailed should surface the
// underlying database message instead of a generic sentinel (spec.md §7).
func (c *Config) DeveloperMode() bool { return c.IsDevelopment() || c.Debug }

// # Declarative Resource Document

// DataSourceConfig describes one configured connection: its dialect, the
// connection-string template the executor fills in at connect time, and the
// optional on-behalf-of / session-context / managed-identity toggles of
// spec.md §4.4 and §6.
type DataSourceConfig struct {
	Name                  string `yaml:"name"`
	DatabaseType          string `yaml:"database-type"`
	ConnectionString      string `yaml:"connection-string"`
	SetSessionContext     bool   `yaml:"set-session-context"`
	OnBehalfOfEnabled     bool   `yaml:"obo-enabled"`
	DatabaseAudience      string `yaml:"database-audience"`
	ManagedIdentityTokenEnv string `yaml:"managed-identity-token-env"`
	IsControlPlane        bool   `yaml:"is-control-plane"`
}

// ColumnConfig is one column of an entity in the resource document.
type ColumnConfig struct {
	ExposedName    string `yaml:"exposed-name"`
	BackingName    string `yaml:"backing-name"`
	Type           string `yaml:"type"`
	Nullable       bool   `yaml:"nullable"`
	ReadOnly       bool   `yaml:"read-only"`
	AutoGenerated  bool   `yaml:"auto-generated"`
	HasDefault     bool   `yaml:"has-default"`
	DefaultLiteral string `yaml:"default-literal"`
}

// ForeignKeyConfig is one foreign-key relationship of an entity.
type ForeignKeyConfig struct {
	ReferencedEntity string            `yaml:"referenced-entity"`
	Columns          map[string]string `yaml:"columns"`
}

// PolicyConfig is one role's database policy for one operation on an entity.
type PolicyConfig struct {
	Role      string `yaml:"role"`
	Operation string `yaml:"operation"`
	Filter    string `yaml:"filter"`
}

// EntityConfig is one exposed entity in the resource document.
type EntityConfig struct {
	Name             string             `yaml:"name"`
	DataSourceName   string             `yaml:"data-source"`
	ObjectType       string             `yaml:"object-type"`
	Schema           string             `yaml:"schema"`
	Object           string             `yaml:"object"`
	Columns          []ColumnConfig     `yaml:"columns"`
	PrimaryKey       []string           `yaml:"primary-key"`
	ForeignKeys      []ForeignKeyConfig `yaml:"foreign-keys"`
	StoredProcParams []string           `yaml:"stored-proc-params"`
	Policies         []PolicyConfig     `yaml:"policies"`
}

// CacheConfig governs the optional response-shaping cache (spec.md §6).
type CacheConfig struct {
	Enabled    bool `yaml:"enabled"`
	TTLSeconds int  `yaml:"ttl-seconds"`
}

// RuntimeConfig is the immutable, hot-reloadable resource document: what
// this gateway exposes and how. It is the single source the Metadata
// Provider and Engine Factory build their maps from.
type RuntimeConfig struct {
	DataSources []DataSourceConfig `yaml:"data-sources"`
	Entities    []EntityConfig     `yaml:"entities"`
	Cache       CacheConfig        `yaml:"cache"`
}

// LoadRuntimeConfig reads and parses the YAML resource document at path.
func LoadRuntimeConfig(path string) (*RuntimeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read resource document: %w", err)
	}
	var rc RuntimeConfig
	if err := yaml.Unmarshal(data, &rc); err != nil {
		return nil, fmt.Errorf("config: failed to parse resource document: %w", err)
	}
	return &rc, nil
}
