package s3

import (
	"net/url"
	"strings"

	"github.com/nimburion/docstore/pkg/store"
)

// Config configures the object storage backend. Each document is stored as
// the object <prefix><key>.json.
type Config struct {
	Bucket   string `mapstructure:"bucket"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
	Prefix   string `mapstructure:"prefix"`

	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`

	// Concurrency bounds parallel object requests of Get and Set.
	Concurrency int `mapstructure:"concurrency"`

	store.Common `mapstructure:",squash"`
}

// DefaultConfig returns the defaults merged under user settings.
func DefaultConfig() Config {
	return Config{
		Prefix:      "documents/",
		Concurrency: 8,
	}
}

// Validate reports missing or inconsistent settings.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Bucket) == "" {
		return store.InvalidConfiguration(Name, "s3 bucket is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return store.InvalidConfiguration(Name, "aws region is required")
	}
	if c.Endpoint != "" {
		u, err := url.Parse(c.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return store.InvalidConfiguration(Name, "endpoint must be an http(s) URL")
		}
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return store.InvalidConfiguration(Name, "both access key id and secret access key are required when using static credentials")
	}
	if c.Concurrency < 0 {
		return store.InvalidConfiguration(Name, "concurrency must not be negative")
	}
	return c.Common.Validate(Name)
}

// Target identifies the connection in logs and failover.
func (c Config) Target() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return "s3://" + c.Bucket
}
