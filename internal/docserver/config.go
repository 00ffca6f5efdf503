package docserver

import (
	"errors"
	"fmt"
	"time"

	"github.com/ulule/limiter/v3"
)

const (
	DefaultAddr      = "127.0.0.1:8090"
	DefaultRateLimit = "20-S"
)

type Config struct {
	HTTP      HTTPConfig `mapstructure:"http"`
	Auth      AuthConfig `mapstructure:"auth"`
	DBPath    string     `mapstructure:"db_path"`
	RateLimit string     `mapstructure:"rate_limit"`
}

type HTTPConfig struct {
	Addr     string `mapstructure:"addr"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

type AuthConfig struct {
	Secret      string        `mapstructure:"secret"`
	Issuer      string        `mapstructure:"issuer"`
	TokenExpiry time.Duration `mapstructure:"token_expiry"`
}

func (c *Config) Validate() error {
	var errs []error

	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultAddr
	}
	if (c.HTTP.CertFile == "") != (c.HTTP.KeyFile == "") {
		errs = append(errs, errors.New("tls needs both cert and key file"))
	}
	if c.Auth.Secret == "" {
		errs = append(errs, errors.New("auth secret is empty"))
	} else if len(c.Auth.Secret) < 16 {
		errs = append(errs, fmt.Errorf("auth secret must be at least 16 bytes, got %d", len(c.Auth.Secret)))
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = DefaultIssuer
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db path is empty"))
	}
	if c.RateLimit == "" {
		c.RateLimit = DefaultRateLimit
	}
	if _, err := limiter.NewRateFromFormatted(c.RateLimit); err != nil {
		errs = append(errs, fmt.Errorf("rate limit: %w", err))
	}

	return errors.Join(errs...)
}
