package memcached

import (
	"net"
	"strings"
	"time"

	"github.com/nimburion/docstore/pkg/store"
)

// Config configures the memcached backend.
type Config struct {
	// Servers lists host:port addresses; keys are sharded across them.
	Servers []string      `mapstructure:"servers"`
	Timeout time.Duration `mapstructure:"timeout"`
	// TTL expires documents after the given duration. Zero keeps them
	// until evicted.
	TTL time.Duration `mapstructure:"ttl"`

	store.Common `mapstructure:",squash"`
}

// DefaultConfig returns the defaults merged under user settings.
func DefaultConfig() Config {
	return Config{Timeout: 500 * time.Millisecond}
}

// Validate reports missing or inconsistent settings.
func (c Config) Validate() error {
	servers := splitServers(c.Target())
	if len(servers) == 0 {
		return store.InvalidConfiguration(Name, "%v", errNoServers)
	}
	for _, server := range servers {
		if _, _, err := net.SplitHostPort(server); err != nil {
			return store.InvalidConfiguration(Name, "invalid server %q: %v", server, err)
		}
	}
	if c.TTL < 0 {
		return store.InvalidConfiguration(Name, "ttl must not be negative")
	}
	return c.Common.Validate(Name)
}

// Target joins the servers into the comma separated form Dial accepts.
func (c Config) Target() string {
	return strings.Join(c.Servers, ",")
}

func splitServers(target string) []string {
	var servers []string
	for _, server := range strings.Split(target, ",") {
		if server = strings.TrimSpace(server); server != "" {
			servers = append(servers, server)
		}
	}
	return servers
}
