package relational

import (
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/nimburion/docstore/pkg/store"
)

// Dialect renders the SQL of one database engine.
type Dialect interface {
	// Name is the backend name, also the configuration key.
	Name() string
	// DriverName is the database/sql driver name.
	DriverName() string

	createTable(table string) string
	selectIn(table string, keys []string) (string, []any)
	upsert(table string) string
	deleteOne(table string) string
	deleteAll(table string) string
	redact(target string) string
}

// Postgres stores documents as JSONB in a lib/pq connection.
var Postgres Dialect = postgresDialect{}

// MySQL stores documents as JSON columns through go-sql-driver/mysql.
var MySQL Dialect = mysqlDialect{}

type postgresDialect struct{}

func (postgresDialect) Name() string       { return "postgres" }
func (postgresDialect) DriverName() string { return "postgres" }

func (postgresDialect) createTable(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, doc JSONB NOT NULL)`, pq.QuoteIdentifier(table))
}

func (postgresDialect) selectIn(table string, keys []string) (string, []any) {
	return fmt.Sprintf(`SELECT id, doc FROM %s WHERE id = ANY($1)`, pq.QuoteIdentifier(table)), []any{pq.Array(keys)}
}

func (postgresDialect) upsert(table string) string {
	return fmt.Sprintf(`INSERT INTO %s (id, doc) VALUES ($1, $2) ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`, pq.QuoteIdentifier(table))
}

func (postgresDialect) deleteOne(table string) string {
	return fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, pq.QuoteIdentifier(table))
}

func (postgresDialect) deleteAll(table string) string {
	return fmt.Sprintf(`DELETE FROM %s`, pq.QuoteIdentifier(table))
}

// redact masks the password of URL and key=value connection strings.
func (postgresDialect) redact(target string) string {
	if strings.Contains(target, "://") {
		return store.RedactTarget(target)
	}
	fields := strings.Fields(target)
	for i, field := range fields {
		if strings.HasPrefix(field, "password=") {
			fields[i] = "password=xxxxx"
		}
	}
	return strings.Join(fields, " ")
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string       { return "mysql" }
func (mysqlDialect) DriverName() string { return "mysql" }

func quoteMySQL(table string) string {
	return "`" + strings.ReplaceAll(table, "`", "``") + "`"
}

func (mysqlDialect) createTable(table string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id VARCHAR(768) NOT NULL PRIMARY KEY, doc JSON NOT NULL)", quoteMySQL(table))
}

func (mysqlDialect) selectIn(table string, keys []string) (string, []any) {
	args := make([]any, len(keys))
	for i, key := range keys {
		args[i] = key
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(keys)), ", ")
	return fmt.Sprintf("SELECT id, doc FROM %s WHERE id IN (%s)", quoteMySQL(table), placeholders), args
}

func (mysqlDialect) upsert(table string) string {
	return fmt.Sprintf("INSERT INTO %s (id, doc) VALUES (?, ?) ON DUPLICATE KEY UPDATE doc = VALUES(doc)", quoteMySQL(table))
}

func (mysqlDialect) deleteOne(table string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE id = ?", quoteMySQL(table))
}

func (mysqlDialect) deleteAll(table string) string {
	return fmt.Sprintf("DELETE FROM %s", quoteMySQL(table))
}

// redact masks the password of a DSN such as user:pass@tcp(host:3306)/db.
func (mysqlDialect) redact(target string) string {
	cfg, err := mysql.ParseDSN(target)
	if err != nil {
		return "<invalid dsn>"
	}
	if cfg.Passwd != "" {
		cfg.Passwd = "xxxxx"
	}
	return cfg.FormatDSN()
}
