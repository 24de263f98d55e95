package dynamodb

import (
	"net/url"
	"strings"

	"github.com/nimburion/docstore/pkg/store"
)

// Config configures the DynamoDB backend. The table must exist with a
// string partition key named "id".
type Config struct {
	Region string `mapstructure:"region"`
	// Endpoint overrides the regional endpoint, e.g. DynamoDB Local.
	Endpoint string `mapstructure:"endpoint"`
	Table    string `mapstructure:"table"`

	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`

	ConsistentRead bool `mapstructure:"consistent_read"`

	store.Common `mapstructure:",squash"`
}

// DefaultConfig returns the defaults merged under user settings.
func DefaultConfig() Config {
	return Config{ConsistentRead: true}
}

// Validate reports missing or inconsistent settings.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Region) == "" {
		return store.InvalidConfiguration(Name, "aws region is required")
	}
	if strings.TrimSpace(c.Table) == "" {
		return store.InvalidConfiguration(Name, "table is required")
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
	return c.Common.Validate(Name)
}

// Target identifies the connection in logs and failover: the custom
// endpoint, or the region when the default endpoint is used.
func (c Config) Target() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return "dynamodb://" + c.Region
}
