package config

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/nimburion/docstore/pkg/store"
	"github.com/nimburion/docstore/pkg/store/dynamodb"
	"github.com/nimburion/docstore/pkg/store/memcached"
	"github.com/nimburion/docstore/pkg/store/mongodb"
	"github.com/nimburion/docstore/pkg/store/redis"
	"github.com/nimburion/docstore/pkg/store/relational"
	"github.com/nimburion/docstore/pkg/store/s3"
	"github.com/nimburion/docstore/pkg/store/search"
)

// Backend keys accepted as the single top-level key of the store section.
const (
	BackendMemory    = "memory"
	BackendMongo     = "mongo"
	BackendRedis     = "redis"
	BackendElastic   = "elastic"
	BackendDynamoDB  = "dynamodb"
	BackendPostgres  = "postgres"
	BackendMySQL     = "mysql"
	BackendS3        = "s3"
	BackendMemcached = "memcached"
)

// Backends lists every supported backend key, sorted.
var Backends = []string{
	BackendDynamoDB,
	BackendElastic,
	BackendMemcached,
	BackendMemory,
	BackendMongo,
	BackendMySQL,
	BackendPostgres,
	BackendRedis,
	BackendS3,
}

// StoreConfig selects one backend and carries its settings. Exactly the
// field matching Backend is set; memory has no settings.
type StoreConfig struct {
	Backend string

	Mongo     *mongodb.Config
	Redis     *redis.Config
	Elastic   *search.Config
	DynamoDB  *dynamodb.Config
	Postgres  *relational.Config
	MySQL     *relational.Config
	S3        *s3.Config
	Memcached *memcached.Config
}

// ParseStore decodes the raw store section. An empty section selects the
// memory backend; otherwise it must hold exactly one known backend key.
// Backend defaults are filled in under the supplied values.
func ParseStore(raw map[string]any) (StoreConfig, error) {
	if len(raw) == 0 {
		return StoreConfig{Backend: BackendMemory}, nil
	}
	if len(raw) > 1 {
		keys := make([]string, 0, len(raw))
		for key := range raw {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		return StoreConfig{}, store.InvalidConfiguration("", "store configuration must name exactly one backend, got %s", strings.Join(keys, ", "))
	}

	var (
		name    string
		section any
	)
	for key, value := range raw {
		name, section = strings.ToLower(strings.TrimSpace(key)), value
	}

	body, err := sectionMap(name, section)
	if err != nil {
		return StoreConfig{}, err
	}

	cfg := StoreConfig{Backend: name}
	switch name {
	case BackendMemory:
		if len(body) > 0 {
			return StoreConfig{}, store.InvalidConfiguration(name, "memory backend takes no settings")
		}
	case BackendMongo:
		cfg.Mongo, err = decodeBackend(name, body, mongodb.DefaultConfig())
	case BackendRedis:
		cfg.Redis, err = decodeBackend(name, body, redis.DefaultConfig())
	case BackendElastic:
		cfg.Elastic, err = decodeBackend(name, body, search.DefaultConfig())
	case BackendDynamoDB:
		cfg.DynamoDB, err = decodeBackend(name, body, dynamodb.DefaultConfig())
	case BackendPostgres:
		cfg.Postgres, err = decodeBackend(name, body, relational.DefaultConfig())
	case BackendMySQL:
		cfg.MySQL, err = decodeBackend(name, body, relational.DefaultConfig())
	case BackendS3:
		cfg.S3, err = decodeBackend(name, body, s3.DefaultConfig())
	case BackendMemcached:
		cfg.Memcached, err = decodeBackend(name, body, memcached.DefaultConfig())
	default:
		return StoreConfig{}, store.InvalidConfiguration("", "unknown store backend %q (must be one of: %s)", name, strings.Join(Backends, ", "))
	}
	if err != nil {
		return StoreConfig{}, err
	}
	return cfg, nil
}

// Validate checks the selected backend's settings.
func (s StoreConfig) Validate() error {
	if s.Backend != "" && s.Backend != BackendMemory && s.Common() == nil {
		return store.InvalidConfiguration(s.Backend, "store.%s settings are missing", s.Backend)
	}
	switch s.Backend {
	case "", BackendMemory:
		return nil
	case BackendMongo:
		return s.Mongo.Validate()
	case BackendRedis:
		return s.Redis.Validate()
	case BackendElastic:
		return s.Elastic.Validate()
	case BackendDynamoDB:
		return s.DynamoDB.Validate()
	case BackendPostgres:
		return s.Postgres.Validate(relational.Postgres)
	case BackendMySQL:
		return s.MySQL.Validate(relational.MySQL)
	case BackendS3:
		return s.S3.Validate()
	case BackendMemcached:
		return s.Memcached.Validate()
	default:
		return store.InvalidConfiguration("", "unknown store backend %q", s.Backend)
	}
}

// Common returns the settings shared by every backend, or nil for memory.
func (s StoreConfig) Common() *store.Common {
	switch {
	case s.Mongo != nil:
		return &s.Mongo.Common
	case s.Redis != nil:
		return &s.Redis.Common
	case s.Elastic != nil:
		return &s.Elastic.Common
	case s.DynamoDB != nil:
		return &s.DynamoDB.Common
	case s.Postgres != nil:
		return &s.Postgres.Common
	case s.MySQL != nil:
		return &s.MySQL.Common
	case s.S3 != nil:
		return &s.S3.Common
	case s.Memcached != nil:
		return &s.Memcached.Common
	default:
		return nil
	}
}

func sectionMap(name string, section any) (map[string]any, error) {
	switch body := section.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return body, nil
	case map[any]any:
		out := make(map[string]any, len(body))
		for key, value := range body {
			out[fmt.Sprint(key)] = value
		}
		return out, nil
	default:
		return nil, store.InvalidConfiguration(name, "store.%s must be an object, got %T", name, section)
	}
}

func decodeBackend[C any](name string, body map[string]any, defaults C) (*C, error) {
	cfg := defaults
	if err := decodeSection(name, body, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeSection(name string, body map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			SecondsOrDurationHook(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return store.InvalidConfiguration(name, "%v", err)
	}
	if err := decoder.Decode(body); err != nil {
		return store.InvalidConfiguration(name, "%v", err)
	}
	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// SecondsOrDurationHook decodes durations given either as numbers of
// seconds (5, 0.5, "5") or as Go duration strings ("500ms").
func SecondsOrDurationHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != durationType {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			v = strings.TrimSpace(v)
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return secondsToDuration(seconds), nil
			}
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("invalid duration %q: %w", v, err)
			}
			return d, nil
		case int:
			return secondsToDuration(float64(v)), nil
		case int64:
			return secondsToDuration(float64(v)), nil
		case float64:
			return secondsToDuration(v), nil
		case float32:
			return secondsToDuration(float64(v)), nil
		default:
			return data, nil
		}
	}
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
