package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix namespaces every variable the support process reads.
const EnvPrefix = "SUPPORTDESK_"

// ParseEnv loads configuration from SUPPORTDESK_-prefixed environment
// variables; struct tags name the suffix only.
func ParseEnv(target any) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
