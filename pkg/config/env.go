package config

import "strings"

// Environment constants
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// IsProductionLike reports whether environment is staging or production.
// Those environments refuse in-memory stores and localhost endpoints.
func IsProductionLike(environment string) bool {
	env := strings.ToLower(environment)
	return env == EnvStaging || env == EnvProduction
}
