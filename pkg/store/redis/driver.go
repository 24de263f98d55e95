// Package redis stores documents as JSON strings in Redis.
package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nimburion/docstore/pkg/store"
)

// Name is the backend name used in configuration and errors.
const Name = "redis"

const scanBatch = 500

// Driver implements store.Driver for Redis.
type Driver struct {
	cfg  Config
	link store.Link
}

// NewDriver returns a driver for cfg. cfg must be valid.
func NewDriver(cfg Config) *Driver {
	return &Driver{cfg: cfg}
}

// Cosa fa: costruisce un client documentale su Redis, ancora disconnesso.
// Cosa NON fa: non supporta Redis Cluster; usa un singolo endpoint.
// Esempio minimo: client, err := redis.New(cfg, store.WithLogger(log))
func New(cfg Config, opts ...store.Option) (*store.Adapter[*goredis.Client], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts = append(cfg.Common.Options(cfg.URL), opts...)
	return store.NewAdapter[*goredis.Client](NewDriver(cfg), cfg.Common.Settings(cfg.URL), opts...), nil
}

func (d *Driver) Name() string { return Name }

// BindLink reports dial failures and recoveries of the connection pool.
func (d *Driver) BindLink(link store.Link) { d.link = link }

func (d *Driver) Dial(ctx context.Context, target string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(target)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if d.cfg.Password != "" {
		opts.Password = d.cfg.Password
	}
	if d.cfg.TLS && opts.TLSConfig == nil {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if d.cfg.MaxConns > 0 {
		opts.PoolSize = d.cfg.MaxConns
	}
	if d.cfg.DialTimeout > 0 {
		opts.DialTimeout = d.cfg.DialTimeout
	}

	client := goredis.NewClient(opts)
	if d.link != nil {
		client.AddHook(linkHook{link: d.link})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func (d *Driver) Ping(ctx context.Context, client *goredis.Client) error {
	return client.Ping(ctx).Err()
}

func (d *Driver) Close(_ context.Context, client *goredis.Client) error {
	if err := client.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
		return fmt.Errorf("failed to close redis connection: %w", err)
	}
	return nil
}

func (d *Driver) key(key string) string {
	return d.cfg.KeyPrefix + key
}

func (d *Driver) BatchRead(ctx context.Context, client *goredis.Client, keys []string) (store.Documents, error) {
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = d.key(key)
	}

	values, err := client.MGet(ctx, prefixed...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget: %w", err)
	}

	found := make(store.Documents, len(keys))
	for i, value := range values {
		text, ok := value.(string)
		if !ok {
			continue
		}
		doc, err := store.DecodeDocument([]byte(text))
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", keys[i], err)
		}
		found[keys[i]] = doc
	}
	return found, nil
}

// BatchWrite stores every document atomically: MSET without a TTL,
// otherwise SET EX commands inside MULTI/EXEC.
func (d *Driver) BatchWrite(ctx context.Context, client *goredis.Client, docs store.Documents) error {
	encoded := make(map[string]string, len(docs))
	for key, doc := range docs {
		raw, err := store.EncodeDocument(doc)
		if err != nil {
			return store.OperationFailed("encode", err)
		}
		encoded[d.key(key)] = string(raw)
	}

	if d.cfg.TTL <= 0 {
		pairs := make([]any, 0, 2*len(encoded))
		for key, value := range encoded {
			pairs = append(pairs, key, value)
		}
		if err := client.MSet(ctx, pairs...).Err(); err != nil {
			return store.OperationFailed("mset", err)
		}
		return nil
	}

	_, err := client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for key, value := range encoded {
			pipe.Set(ctx, key, value, d.cfg.TTL)
		}
		return nil
	})
	if err != nil {
		return store.OperationFailed("multi set", err)
	}
	return nil
}

func (d *Driver) Delete(ctx context.Context, client *goredis.Client, key string) error {
	if err := client.Del(ctx, d.key(key)).Err(); err != nil {
		return fmt.Errorf("del: %w", err)
	}
	return nil
}

// DeleteAll flushes the selected database, or only the prefixed keys when a
// key prefix is configured.
func (d *Driver) DeleteAll(ctx context.Context, client *goredis.Client) error {
	if d.cfg.KeyPrefix == "" {
		if err := client.FlushDB(ctx).Err(); err != nil {
			return fmt.Errorf("flushdb: %w", err)
		}
		return nil
	}

	pattern := escapeGlob(d.cfg.KeyPrefix) + "*"
	var cursor uint64
	for {
		keys, next, err := client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		if len(keys) > 0 {
			if err := client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("del: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// escapeGlob quotes the characters Redis MATCH patterns treat specially.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// linkHook reports pool dial outcomes to the adapter.
type linkHook struct {
	link store.Link
}

func (h linkHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.link.Down(err)
			return nil, err
		}
		h.link.Up()
		return conn, nil
	}
}

func (h linkHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return next
}

func (h linkHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return next
}
