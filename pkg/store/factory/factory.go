// Package factory builds a store client from configuration.
package factory

import (
	"github.com/nimburion/docstore/pkg/config"
	"github.com/nimburion/docstore/pkg/observability/logger"
	"github.com/nimburion/docstore/pkg/store"
	"github.com/nimburion/docstore/pkg/store/dynamodb"
	"github.com/nimburion/docstore/pkg/store/memcached"
	"github.com/nimburion/docstore/pkg/store/memory"
	"github.com/nimburion/docstore/pkg/store/mongodb"
	"github.com/nimburion/docstore/pkg/store/redis"
	"github.com/nimburion/docstore/pkg/store/relational"
	"github.com/nimburion/docstore/pkg/store/s3"
	"github.com/nimburion/docstore/pkg/store/search"
)

// NewClient returns a disconnected client for the backend cfg selects.
// Configuration errors are reported as store.ErrInvalidConfiguration
// before any I/O. A zero cfg selects the memory backend.
func NewClient(cfg config.StoreConfig, log logger.Logger, opts ...store.Option) (store.Client, error) {
	if log == nil {
		log = logger.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if common := cfg.Common(); common != nil && common.Retry == nil {
		log.Warn("store retry policy not configured, connecting with a single attempt", "backend", cfg.Backend)
	}
	opts = append([]store.Option{store.WithLogger(log)}, opts...)

	switch cfg.Backend {
	case "", config.BackendMemory:
		return memory.New(opts...), nil
	case config.BackendMongo:
		return client(mongodb.New(*cfg.Mongo, opts...))
	case config.BackendRedis:
		return client(redis.New(*cfg.Redis, opts...))
	case config.BackendElastic:
		return client(search.New(*cfg.Elastic, opts...))
	case config.BackendDynamoDB:
		return client(dynamodb.New(*cfg.DynamoDB, opts...))
	case config.BackendPostgres:
		return client(relational.New(relational.Postgres, *cfg.Postgres, opts...))
	case config.BackendMySQL:
		return client(relational.New(relational.MySQL, *cfg.MySQL, opts...))
	case config.BackendS3:
		return client(s3.New(*cfg.S3, opts...))
	case config.BackendMemcached:
		return client(memcached.New(*cfg.Memcached, opts...))
	default:
		return nil, store.InvalidConfiguration("", "unknown store backend %q", cfg.Backend)
	}
}

// NewClientFromMap decodes raw as a store section, a single backend key
// mapped to its settings, and builds the client. A nil or empty raw
// selects the memory backend.
func NewClientFromMap(raw map[string]any, log logger.Logger, opts ...store.Option) (store.Client, error) {
	cfg, err := config.ParseStore(raw)
	if err != nil {
		return nil, err
	}
	return NewClient(cfg, log, opts...)
}

// client keeps a failed constructor from yielding a non-nil interface
// around a nil adapter.
func client[H any](adapter *store.Adapter[H], err error) (store.Client, error) {
	if err != nil {
		return nil, err
	}
	return adapter, nil
}
