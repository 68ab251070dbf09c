package config

import "os"

// ApplyLegacyEnv overlays the long-documented SURREALDB_*/ORCHESTRATOR_API_KEY
// environment variable names onto the chu-loaded Config, taking precedence
// over file/ORCH_-prefix values when set. This keeps those operator-facing
// variable names working even though a relational/memory store (not a
// literal SurrealDB driver) backs them. SURREALDB_USERNAME and
// SURREALDB_PASSWORD are not read; credentials go in the SURREALDB_URL DSN.
func ApplyLegacyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("SURREALDB_URL"); ok && v != "memory" {
		if cfg.Store.Driver == "" || cfg.Store.Driver == "memory" {
			cfg.Store.Driver = "postgres"
		}
		if cfg.Store.Postgres == nil {
			cfg.Store.Postgres = &StorePostgres{}
		}
		cfg.Store.Postgres.Datasource = v
	}
	if v, ok := os.LookupEnv("SURREALDB_NAMESPACE"); ok && cfg.Store.Postgres != nil {
		cfg.Store.Postgres.Schema = v
	}
	if v, ok := os.LookupEnv("SURREALDB_DATABASE"); ok && cfg.Store.Postgres != nil && v != "" {
		prefix := v + "_"
		cfg.Store.Postgres.TablePrefix = &prefix
	}
	if v, ok := os.LookupEnv("ORCHESTRATOR_API_KEY"); ok && v != "" {
		cfg.Auth.StaticAPIKey = v
	}
}
