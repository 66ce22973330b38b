// Package env identifies the environment the binary runs in.
package env

import (
	"os"
	"strings"

	"github.com/ekisa-team/modelweb/internal/envvar"
)

// Environment is the runtime environment.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// FromEnv reads MODELWEB_ENV. Anything other than "production" (or "prod") is development.
func FromEnv() Environment {
	return Parse(os.Getenv(envvar.ModelwebEnv))
}

// Parse maps a name to an Environment, defaulting to Development.
func Parse(s string) Environment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "production", "prod":
		return Production
	default:
		return Development
	}
}

// IsProduction reports whether e is Production.
func (e Environment) IsProduction() bool {
	return e == Production
}
