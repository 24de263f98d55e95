package redis

import (
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nimburion/docstore/pkg/store"
)

// Config configures the Redis backend.
type Config struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	// TLS forces TLS even for redis:// URLs. rediss:// URLs always use TLS.
	TLS bool `mapstructure:"tls"`

	// KeyPrefix namespaces every key. With a prefix RemoveAll deletes only
	// prefixed keys instead of flushing the whole database.
	KeyPrefix string `mapstructure:"key_prefix"`
	// TTL expires documents after the given duration. Zero keeps them forever.
	TTL time.Duration `mapstructure:"ttl"`

	MaxConns    int           `mapstructure:"max_conns"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`

	store.Common `mapstructure:",squash"`
}

// DefaultConfig returns the defaults merged under user settings.
func DefaultConfig() Config {
	return Config{
		MaxConns:    10,
		DialTimeout: 5 * time.Second,
	}
}

// Validate reports missing or inconsistent settings.
func (c Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return store.InvalidConfiguration(Name, "url is required")
	}
	if _, err := goredis.ParseURL(c.URL); err != nil {
		return store.InvalidConfiguration(Name, "invalid url: %v", err)
	}
	if c.TTL < 0 {
		return store.InvalidConfiguration(Name, "ttl must not be negative")
	}
	if c.MaxConns < 0 {
		return store.InvalidConfiguration(Name, "max_conns must not be negative")
	}
	return c.Common.Validate(Name)
}
