// Package relational stores documents in a SQL table, one JSON document per
// row, on PostgreSQL or MySQL.
package relational

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/nimburion/docstore/pkg/store"
)

// Driver implements store.Driver over database/sql.
type Driver struct {
	dialect Dialect
	cfg     Config
	open    func(driverName, dsn string) (*sql.DB, error)
}

// NewDriver returns a driver for cfg. cfg must be valid for dialect.
func NewDriver(dialect Dialect, cfg Config) *Driver {
	return &Driver{dialect: dialect, cfg: cfg, open: sql.Open}
}

// Cosa fa: costruisce un client documentale su una tabella PostgreSQL o MySQL.
// Cosa NON fa: non esegue migrazioni; crea al massimo la tabella dei documenti.
// Esempio minimo: client, err := relational.New(relational.Postgres, cfg, store.WithLogger(log))
func New(dialect Dialect, cfg Config, opts ...store.Option) (*store.Adapter[*sql.DB], error) {
	if err := cfg.Validate(dialect); err != nil {
		return nil, err
	}
	opts = append(cfg.Common.Options(cfg.URL), opts...)
	return store.NewAdapter[*sql.DB](NewDriver(dialect, cfg), cfg.Common.Settings(cfg.URL), opts...), nil
}

func (d *Driver) Name() string { return d.dialect.Name() }

// RedactTarget masks credentials in connection strings that are not URLs.
func (d *Driver) RedactTarget(target string) string {
	return d.dialect.redact(target)
}

func (d *Driver) Dial(ctx context.Context, target string) (*sql.DB, error) {
	db, err := d.open(d.dialect.DriverName(), target)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(d.cfg.MaxOpenConns)
	db.SetMaxIdleConns(d.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(d.cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(d.cfg.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if d.cfg.CreateTable {
		if _, err := db.ExecContext(ctx, d.dialect.createTable(d.cfg.Table)); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to create table %s: %w", d.cfg.Table, err)
		}
	}
	return db, nil
}

func (d *Driver) Ping(ctx context.Context, db *sql.DB) error {
	return db.PingContext(ctx)
}

func (d *Driver) Close(_ context.Context, db *sql.DB) error {
	if err := db.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	return nil
}

func (d *Driver) BatchRead(ctx context.Context, db *sql.DB, keys []string) (store.Documents, error) {
	query, args := d.dialect.selectIn(d.cfg.Table, keys)
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select documents: %w", err)
	}
	defer rows.Close()

	found := make(store.Documents, len(keys))
	for rows.Next() {
		var (
			key string
			raw []byte
		)
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc, err := store.DecodeDocument(raw)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		found[key] = doc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return found, nil
}

// BatchWrite upserts every document inside one transaction, so a failure
// leaves no document written.
func (d *Driver) BatchWrite(ctx context.Context, db *sql.DB, docs store.Documents) (err error) {
	keys := make([]string, 0, len(docs))
	encoded := make(map[string]string, len(docs))
	for key, doc := range docs {
		raw, err := store.EncodeDocument(doc)
		if err != nil {
			return store.OperationFailed("encode", err)
		}
		keys = append(keys, key)
		encoded[key] = string(raw)
	}
	// a stable order keeps concurrent batches from deadlocking on row locks
	sort.Strings(keys)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, d.dialect.upsert(d.cfg.Table))
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, key := range keys {
		if _, err := stmt.ExecContext(ctx, key, encoded[key]); err != nil {
			return fmt.Errorf("upsert %q: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (d *Driver) Delete(ctx context.Context, db *sql.DB, key string) error {
	if _, err := db.ExecContext(ctx, d.dialect.deleteOne(d.cfg.Table), key); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func (d *Driver) DeleteAll(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, d.dialect.deleteAll(d.cfg.Table)); err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}
	return nil
}
