package search

import (
	"net/url"
	"strings"

	"github.com/nimburion/docstore/pkg/store"
)

// Supported client flavours.
const (
	FlavorElasticsearch = "elasticsearch"
	FlavorOpenSearch    = "opensearch"
)

// Config configures the search engine backend.
type Config struct {
	URL string `mapstructure:"url"`
	// URLs lists further nodes of the same cluster.
	URLs  []string `mapstructure:"urls"`
	Index string   `mapstructure:"index"`
	// Flavor selects the client library: elasticsearch (default) or opensearch.
	Flavor string `mapstructure:"flavor"`

	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	APIKey   string `mapstructure:"api_key"`

	AWSAuthEnabled  bool   `mapstructure:"aws_auth_enabled"`
	AWSRegion       string `mapstructure:"aws_region"`
	AWSService      string `mapstructure:"aws_service"`
	AWSAccessKeyID  string `mapstructure:"aws_access_key_id"`
	AWSSecretKey    string `mapstructure:"aws_secret_key"`
	AWSSessionToken string `mapstructure:"aws_session_token"`

	// Refresh is passed to bulk writes: "", "true", "false" or "wait_for".
	Refresh  string `mapstructure:"refresh"`
	MaxConns int    `mapstructure:"max_conns"`

	store.Common `mapstructure:",squash"`
}

// DefaultConfig returns the defaults merged under user settings.
func DefaultConfig() Config {
	return Config{
		Flavor:     FlavorElasticsearch,
		AWSService: "es",
		MaxConns:   10,
	}
}

// Validate reports missing or inconsistent settings.
func (c Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return store.InvalidConfiguration(Name, "url is required")
	}
	for _, raw := range append([]string{c.URL}, c.URLs...) {
		if err := validateNodeURL(raw); err != nil {
			return store.InvalidConfiguration(Name, "%v", err)
		}
	}
	if strings.TrimSpace(c.Index) == "" {
		return store.InvalidConfiguration(Name, "index is required")
	}
	if c.Index != strings.ToLower(c.Index) || strings.ContainsAny(c.Index, `/\*?"<>| ,#`) {
		return store.InvalidConfiguration(Name, "invalid index name %q", c.Index)
	}
	switch c.flavor() {
	case FlavorElasticsearch, FlavorOpenSearch:
	default:
		return store.InvalidConfiguration(Name, "unknown flavor %q", c.Flavor)
	}
	switch c.Refresh {
	case "", "true", "false", "wait_for":
	default:
		return store.InvalidConfiguration(Name, "refresh must be true, false or wait_for")
	}
	if c.AWSAuthEnabled {
		if strings.TrimSpace(c.AWSRegion) == "" {
			return store.InvalidConfiguration(Name, "aws region is required when AWS auth is enabled")
		}
		if (c.AWSAccessKeyID == "") != (c.AWSSecretKey == "") {
			return store.InvalidConfiguration(Name, "both AWS access key id and secret access key are required when using static AWS credentials")
		}
	}
	if c.MaxConns < 0 {
		return store.InvalidConfiguration(Name, "max_conns must not be negative")
	}
	return c.Common.Validate(Name)
}

func (c Config) flavor() string {
	if c.Flavor == "" {
		return FlavorElasticsearch
	}
	return strings.ToLower(c.Flavor)
}

func (c Config) awsService() string {
	if strings.TrimSpace(c.AWSService) == "" {
		return "es"
	}
	return c.AWSService
}

func validateNodeURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &url.Error{Op: "parse", URL: raw, Err: errInvalidNode}
	}
	return nil
}

// addresses returns target followed by the extra nodes, without duplicates.
func (c Config) addresses(target string) []string {
	seen := make(map[string]struct{}, len(c.URLs)+1)
	addresses := make([]string, 0, len(c.URLs)+1)
	for _, raw := range append([]string{target}, c.URLs...) {
		raw = strings.TrimRight(strings.TrimSpace(raw), "/")
		if raw == "" {
			continue
		}
		if _, ok := seen[raw]; ok {
			continue
		}
		seen[raw] = struct{}{}
		addresses = append(addresses, raw)
	}
	return addresses
}
