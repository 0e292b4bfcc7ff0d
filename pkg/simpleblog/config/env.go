package config

import (
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Environment variable mapping:
//
//	BLOG_PROVIDER     - backend name: "memory", "fs" or "sqlite"
//	BLOG_CONNECTION   - provider connection string (e.g. "path=/var/lib/blog")
//	BLOG_SESSION_TTL  - session token lifetime (Go duration, e.g. "30m")
type envConfig struct {
	Provider   string        `env:"BLOG_PROVIDER" env-default:""`
	Connection string        `env:"BLOG_CONNECTION" env-default:""`
	SessionTTL time.Duration `env:"BLOG_SESSION_TTL" env-default:"0s"`
}

// WithEnv applies environment variable overrides. Unset variables leave the
// existing values in place.
func WithEnv() Option {
	return func(c *StoreConfig) error {
		var e envConfig
		if err := cleanenv.ReadEnv(&e); err != nil {
			return err
		}
		if e.Provider != "" {
			c.Provider = e.Provider
		}
		if e.Connection != "" {
			c.Connection = e.Connection
		}
		if e.SessionTTL > 0 {
			c.SessionTTL = e.SessionTTL
		}
		return nil
	}
}
