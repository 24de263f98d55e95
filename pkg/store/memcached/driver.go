// Package memcached stores documents as JSON values on a set of memcached
// servers, sharding keys by hash.
package memcached

import (
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/nimburion/docstore/pkg/store"
)

// Name is the backend name used in configuration and errors.
const Name = "memcached"

const maxKeyLength = 250

// Driver implements store.Driver for memcached.
type Driver struct {
	cfg  Config
	dial func(ctx context.Context, network, address string) (net.Conn, error)
}

// NewDriver returns a driver for cfg. cfg must be valid.
func NewDriver(cfg Config) *Driver {
	dialer := &net.Dialer{Timeout: cfg.Timeout}
	return &Driver{cfg: cfg, dial: dialer.DialContext}
}

// Cosa fa: costruisce un client documentale su uno o più server memcached.
// Cosa NON fa: RemoveAll esegue flush_all e svuota interamente i server.
// Esempio minimo: client, err := memcached.New(cfg, store.WithLogger(log))
func New(cfg Config, opts ...store.Option) (*store.Adapter[*Pool], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts = append(cfg.Common.Options(cfg.Target()), opts...)
	return store.NewAdapter[*Pool](NewDriver(cfg), cfg.Common.Settings(cfg.Target()), opts...), nil
}

func (d *Driver) Name() string { return Name }

// Dial builds a pool over the comma separated servers of target and checks
// that every one of them answers.
func (d *Driver) Dial(ctx context.Context, target string) (*Pool, error) {
	servers := splitServers(target)
	if len(servers) == 0 {
		return nil, errNoServers
	}
	pool := &Pool{addresses: servers, timeout: d.cfg.Timeout, dial: d.dial}
	if err := d.Ping(ctx, pool); err != nil {
		return nil, err
	}
	return pool, nil
}

func (d *Driver) Ping(ctx context.Context, pool *Pool) error {
	for _, address := range pool.addresses {
		if _, err := pool.version(ctx, address); err != nil {
			return fmt.Errorf("memcached %s: %w", address, err)
		}
	}
	return nil
}

// Close is a no-op: the pool holds no open connections between commands.
func (d *Driver) Close(context.Context, *Pool) error { return nil }

// encodeKey maps a document key to a memcached key. Document keys may hold
// whitespace, which the text protocol forbids.
func encodeKey(key string) (string, error) {
	encoded := base64.RawURLEncoding.EncodeToString([]byte(key))
	if len(encoded) > maxKeyLength {
		return "", fmt.Errorf("key %q exceeds the memcached key length once encoded", key)
	}
	return encoded, nil
}

// BatchRead skips keys too long to encode: they can never have been stored.
func (d *Driver) BatchRead(ctx context.Context, pool *Pool, keys []string) (store.Documents, error) {
	byServer := make(map[string][]string)
	original := make(map[string]string, len(keys))
	for _, key := range keys {
		encoded, err := encodeKey(key)
		if err != nil {
			continue
		}
		original[encoded] = key
		address := pool.pickAddress(encoded)
		byServer[address] = append(byServer[address], encoded)
	}

	found := make(store.Documents, len(keys))
	for address, encodedKeys := range byServer {
		values, err := pool.getMulti(ctx, address, encodedKeys)
		if err != nil {
			return nil, fmt.Errorf("get from %s: %w", address, err)
		}
		for encoded, raw := range values {
			key, ok := original[encoded]
			if !ok {
				continue
			}
			doc, err := store.DecodeDocument(raw)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", key, err)
			}
			found[key] = doc
		}
	}
	return found, nil
}

// BatchWrite sets every document with its own command; memcached has no
// multi-key write, so a failure after the first write is partial.
func (d *Driver) BatchWrite(ctx context.Context, pool *Pool, docs store.Documents) error {
	keys := make([]string, 0, len(docs))
	encoded := make(map[string][]byte, len(docs))
	for key, doc := range docs {
		if _, err := encodeKey(key); err != nil {
			return store.OperationFailed("set", err)
		}
		raw, err := store.EncodeDocument(doc)
		if err != nil {
			return store.OperationFailed("encode", err)
		}
		keys = append(keys, key)
		encoded[key] = raw
	}
	sort.Strings(keys)

	written := 0
	for _, key := range keys {
		memKey, _ := encodeKey(key)
		if err := pool.set(ctx, memKey, encoded[key], d.cfg.TTL); err != nil {
			err = fmt.Errorf("key %q: %w", key, err)
			if written > 0 {
				return store.PartialFailure("set", err)
			}
			return store.OperationFailed("set", err)
		}
		written++
	}
	return nil
}

// Delete treats a key too long to encode as absent.
func (d *Driver) Delete(ctx context.Context, pool *Pool, key string) error {
	encoded, err := encodeKey(key)
	if err != nil {
		return nil
	}
	return pool.delete(ctx, encoded)
}

// DeleteAll flushes every server in parallel.
func (d *Driver) DeleteAll(ctx context.Context, pool *Pool) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, address := range pool.addresses {
		g.Go(func() error {
			if err := pool.flushAll(gctx, address); err != nil {
				return fmt.Errorf("flush_all on %s: %w", address, err)
			}
			return nil
		})
	}
	return g.Wait()
}

var _ store.Driver[*Pool] = (*Driver)(nil)
