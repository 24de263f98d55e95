package relational

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/nimburion/docstore/pkg/store"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// Config configures a relational backend. Documents live in a two column
// table: id (primary key) and doc (JSON).
type Config struct {
	// URL is a postgres:// URL or key=value string, or a MySQL DSN.
	URL   string `mapstructure:"url"`
	Table string `mapstructure:"table"`
	// CreateTable creates the table on connect when it does not exist.
	CreateTable bool `mapstructure:"create_table"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`

	store.Common `mapstructure:",squash"`
}

// DefaultConfig returns the defaults merged under user settings.
func DefaultConfig() Config {
	return Config{
		Table:           "documents",
		CreateTable:     true,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: time.Minute,
	}
}

// Validate reports missing or inconsistent settings for dialect.
func (c Config) Validate(dialect Dialect) error {
	name := dialect.Name()
	if strings.TrimSpace(c.URL) == "" {
		return store.InvalidConfiguration(name, "database URL is required")
	}
	for _, target := range append([]string{c.URL}, c.Failover...) {
		if err := validateTarget(dialect, target); err != nil {
			return store.InvalidConfiguration(name, "%v", err)
		}
	}
	if !tableName.MatchString(c.Table) {
		return store.InvalidConfiguration(name, "invalid table name %q", c.Table)
	}
	if c.MaxOpenConns < 0 || c.MaxIdleConns < 0 {
		return store.InvalidConfiguration(name, "connection pool sizes must not be negative")
	}
	return c.Common.Validate(name)
}

func validateTarget(dialect Dialect, target string) error {
	if dialect.Name() == MySQL.Name() {
		_, err := mysql.ParseDSN(target)
		return err
	}
	if strings.Contains(target, "://") {
		_, err := url.Parse(target)
		return err
	}
	return nil
}
