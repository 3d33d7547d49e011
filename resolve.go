package authprofiles

import (
	"os"
	"strings"
)

// defaultEnvVars maps provider names to the environment variable that can
// supply their key directly.
func defaultEnvVars() map[string]string {
	return map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
		"google":    "GOOGLE_API_KEY",
		"cohere":    "COHERE_API_KEY",
	}
}

// WithEnvVars registers or overrides provider env var names. An empty name
// disables the lookup for that provider.
func WithEnvVars(vars map[string]string) ManagerOption {
	return func(m *Manager) {
		for provider, name := range vars {
			if name == "" {
				delete(m.envVars, provider)
				continue
			}
			m.envVars[provider] = name
		}
	}
}

// ResolveKey returns credentials for cfg, preferring the provider's env var
// when it is set and no explicit profile was requested. Env credentials
// carry no ProfileID and leave the store untouched.
func (m *Manager) ResolveKey(cfg AuthConfig) (Credentials, error) {
	if cfg.ProfileID == "" {
		if name, ok := m.envVars[cfg.Provider]; ok {
			if val := os.Getenv(name); val != "" {
				m.log.WithField("provider", cfg.Provider).Debugf("using key from $%s", name)
				return Credentials{Provider: cfg.Provider, APIKey: val}, nil
			}
		}
	}
	return m.Authenticate(cfg)
}

// MaskKey masks a key for display, showing only the first and last 4 chars.
func MaskKey(key string) string {
	if len(key) <= 12 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + "..." + key[len(key)-4:]
}
