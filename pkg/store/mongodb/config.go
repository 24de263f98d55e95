package mongodb

import (
	"strings"
	"time"

	"github.com/nimburion/docstore/pkg/store"
)

// Config configures the MongoDB backend.
type Config struct {
	URL        string `mapstructure:"url"`
	Database   string `mapstructure:"db"`
	Collection string `mapstructure:"collection"`

	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	AuthSource string `mapstructure:"auth_source"`

	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	MaxPoolSize    uint64        `mapstructure:"max_pool_size"`

	store.Common `mapstructure:",squash"`
}

// DefaultConfig returns the defaults merged under user settings.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 5 * time.Second,
		MaxPoolSize:    100,
	}
}

// Validate reports missing or inconsistent settings.
func (c Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return store.InvalidConfiguration(Name, "url is required")
	}
	if !strings.HasPrefix(c.URL, "mongodb://") && !strings.HasPrefix(c.URL, "mongodb+srv://") {
		return store.InvalidConfiguration(Name, "url must use the mongodb:// or mongodb+srv:// scheme")
	}
	if strings.TrimSpace(c.Database) == "" {
		return store.InvalidConfiguration(Name, "db is required")
	}
	if strings.TrimSpace(c.Collection) == "" {
		return store.InvalidConfiguration(Name, "collection is required")
	}
	if c.Password != "" && c.Username == "" {
		return store.InvalidConfiguration(Name, "password given without username")
	}
	if c.ConnectTimeout < 0 {
		return store.InvalidConfiguration(Name, "connect_timeout must not be negative")
	}
	return c.Common.Validate(Name)
}
