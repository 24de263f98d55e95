package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader defines the interface for loading configuration
type Loader interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// ViperLoader implements Loader using Viper for configuration management
type ViperLoader struct {
	configFile string
	envPrefix  string
	flags      *pflag.FlagSet
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"log-level":  "log.level",
	"log-format": "log.format",
	"http-port":  "http.port",
}

// NewViperLoader creates a new ViperLoader
// configFile: path to configuration file (optional, can be empty)
// envPrefix: prefix for environment variables (e.g., "DOCSTORE")
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	return &ViperLoader{
		configFile: configFile,
		envPrefix:  envPrefix,
	}
}

// WithFlags binds the known flags of flags (log-level, log-format,
// http-port) above environment variables.
func (l *ViperLoader) WithFlags(flags *pflag.FlagSet) *ViperLoader {
	l.flags = flags
	return l
}

// Load loads configuration with precedence: flags > ENV > file > defaults
func (l *ViperLoader) Load() (*Config, error) {
	v, err := l.newViper()
	if err != nil {
		return nil, err
	}
	return l.decode(v)
}

func (l *ViperLoader) newViper() (*viper.Viper, error) {
	v := viper.New()
	l.setDefaults(v, DefaultConfig())

	// Read config file if provided
	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified but couldn't be read
			return nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}
	return v, nil
}

func (l *ViperLoader) decode(v *viper.Viper) (*Config, error) {
	// Environment variables override file config through explicit bindings.
	v.SetEnvPrefix(l.envPrefix)
	l.bindEnvVars(v)

	if err := l.bindFlags(v); err != nil {
		return nil, err
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		SecondsOrDurationHook(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	storeCfg, err := ParseStore(l.storeSection(v.GetStringMap("store")))
	if err != nil {
		return nil, fmt.Errorf("failed to parse store config: %w", err)
	}
	cfg.Store = storeCfg

	if err := l.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// bindEnvVars explicitly binds environment variables for nested structs
func (l *ViperLoader) bindEnvVars(v *viper.Viper) {
	v.BindEnv("service.name", l.prefixedEnv("SERVICE_NAME"))
	v.BindEnv("service.environment", l.prefixedEnv("SERVICE_ENVIRONMENT"), l.prefixedEnv("ENVIRONMENT"))

	// Log
	v.BindEnv("log.level", l.prefixedEnv("LOG_LEVEL"))
	v.BindEnv("log.format", l.prefixedEnv("LOG_FORMAT"))

	// HTTP
	v.BindEnv("http.port", l.prefixedEnv("HTTP_PORT"))
	v.BindEnv("http.read_timeout", l.prefixedEnv("HTTP_READ_TIMEOUT"))
	v.BindEnv("http.write_timeout", l.prefixedEnv("HTTP_WRITE_TIMEOUT"))
	v.BindEnv("http.idle_timeout", l.prefixedEnv("HTTP_IDLE_TIMEOUT"))
	v.BindEnv("http.shutdown_timeout", l.prefixedEnv("HTTP_SHUTDOWN_TIMEOUT"))
	v.BindEnv("http.request_timeout", l.prefixedEnv("HTTP_REQUEST_TIMEOUT"))
	v.BindEnv("http.max_request_size", l.prefixedEnv("HTTP_MAX_REQUEST_SIZE"))
	v.BindEnv("http.rate_limit.enabled", l.prefixedEnv("HTTP_RATE_LIMIT_ENABLED"))
	v.BindEnv("http.rate_limit.requests_per_second", l.prefixedEnv("HTTP_RATE_LIMIT_REQUESTS_PER_SECOND"))
	v.BindEnv("http.rate_limit.burst", l.prefixedEnv("HTTP_RATE_LIMIT_BURST"))
	v.BindEnv("http.tls.cert_file", l.prefixedEnv("HTTP_TLS_CERT_FILE"))
	v.BindEnv("http.tls.key_file", l.prefixedEnv("HTTP_TLS_KEY_FILE"))
	v.BindEnv("http.tls.client_ca_file", l.prefixedEnv("HTTP_TLS_CLIENT_CA_FILE"))
	v.BindEnv("http.allowed_hosts", l.prefixedEnv("HTTP_ALLOWED_HOSTS"))
	v.BindEnv("http.compression.enabled", l.prefixedEnv("HTTP_COMPRESSION_ENABLED"))
	v.BindEnv("http.compression.min_size", l.prefixedEnv("HTTP_COMPRESSION_MIN_SIZE"))
	v.BindEnv("http.cors.allow_origins", l.prefixedEnv("HTTP_CORS_ALLOW_ORIGINS"))
	v.BindEnv("http.cors.allow_credentials", l.prefixedEnv("HTTP_CORS_ALLOW_CREDENTIALS"))

	// Observability
	v.BindEnv("observability.metrics.enabled", l.prefixedEnv("METRICS_ENABLED"))
	v.BindEnv("observability.metrics.path", l.prefixedEnv("METRICS_PATH"))
	v.BindEnv("observability.tracing.enabled", l.prefixedEnv("TRACING_ENABLED"))
	v.BindEnv("observability.tracing.endpoint", l.prefixedEnv("TRACING_ENDPOINT"))
	v.BindEnv("observability.tracing.insecure", l.prefixedEnv("TRACING_INSECURE"))
	v.BindEnv("observability.tracing.sample_rate", l.prefixedEnv("TRACING_SAMPLE_RATE"))
}

func (l *ViperLoader) bindFlags(v *viper.Viper) error {
	if l.flags == nil {
		return nil
	}
	for name, key := range flagKeys {
		flag := l.flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// storeURLKeys names the setting <PREFIX>_STORE_URL fills for each backend.
var storeURLKeys = map[string]string{
	BackendMongo:     "url",
	BackendRedis:     "url",
	BackendElastic:   "url",
	BackendPostgres:  "url",
	BackendMySQL:     "url",
	BackendDynamoDB:  "endpoint",
	BackendS3:        "endpoint",
	BackendMemcached: "servers",
}

// storeSection applies the <PREFIX>_STORE_BACKEND and <PREFIX>_STORE_URL
// shortcut to the store section read from the file. Selecting a backend
// keeps the file's settings for that backend and drops any other.
func (l *ViperLoader) storeSection(raw map[string]any) map[string]any {
	backend := strings.ToLower(strings.TrimSpace(os.Getenv(l.prefixedEnv("STORE_BACKEND"))))
	url, hasURL := os.LookupEnv(l.prefixedEnv("STORE_URL"))
	if backend == "" {
		if !hasURL || len(raw) != 1 {
			return raw
		}
		for name := range raw {
			backend = name
		}
	}

	section := make(map[string]any)
	if existing, ok := raw[backend].(map[string]any); ok {
		for key, value := range existing {
			section[key] = value
		}
	}
	if key, ok := storeURLKeys[backend]; ok && hasURL {
		section[key] = strings.TrimSpace(url)
	}
	return map[string]any{backend: section}
}

func (l *ViperLoader) prefixedEnv(suffix string) string {
	prefix := strings.TrimSpace(l.envPrefix)
	if prefix == "" {
		prefix = "DOCSTORE"
	}
	return fmt.Sprintf("%s_%s", strings.ToUpper(prefix), suffix)
}

// setDefaults sets default values in Viper from the default config
func (l *ViperLoader) setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("service.name", cfg.Service.Name)
	v.SetDefault("service.environment", cfg.Service.Environment)

	// Log defaults
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)

	// HTTP defaults
	v.SetDefault("http.port", cfg.HTTP.Port)
	v.SetDefault("http.read_timeout", cfg.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", cfg.HTTP.WriteTimeout)
	v.SetDefault("http.idle_timeout", cfg.HTTP.IdleTimeout)
	v.SetDefault("http.shutdown_timeout", cfg.HTTP.ShutdownTimeout)
	v.SetDefault("http.request_timeout", cfg.HTTP.RequestTimeout)
	v.SetDefault("http.max_request_size", cfg.HTTP.MaxRequestSize)
	v.SetDefault("http.rate_limit.enabled", cfg.HTTP.RateLimit.Enabled)
	v.SetDefault("http.rate_limit.requests_per_second", cfg.HTTP.RateLimit.RequestsPerSecond)
	v.SetDefault("http.rate_limit.burst", cfg.HTTP.RateLimit.Burst)
	v.SetDefault("http.tls.cert_file", "")
	v.SetDefault("http.tls.key_file", "")
	v.SetDefault("http.tls.client_ca_file", "")
	v.SetDefault("http.allowed_hosts", cfg.HTTP.AllowedHosts)
	v.SetDefault("http.compression.enabled", cfg.HTTP.Compression.Enabled)
	v.SetDefault("http.compression.min_size", cfg.HTTP.Compression.MinSize)
	v.SetDefault("http.cors.allow_origins", cfg.HTTP.CORS.AllowOrigins)
	v.SetDefault("http.cors.allow_credentials", cfg.HTTP.CORS.AllowCredentials)

	// Observability defaults
	v.SetDefault("observability.metrics.enabled", cfg.Observability.Metrics.Enabled)
	v.SetDefault("observability.metrics.path", cfg.Observability.Metrics.Path)
	v.SetDefault("observability.tracing.enabled", cfg.Observability.Tracing.Enabled)
	v.SetDefault("observability.tracing.endpoint", cfg.Observability.Tracing.Endpoint)
	v.SetDefault("observability.tracing.insecure", cfg.Observability.Tracing.Insecure)
	v.SetDefault("observability.tracing.sample_rate", cfg.Observability.Tracing.SampleRate)
}

// Validate validates the configuration and returns detailed errors
func (l *ViperLoader) Validate(cfg *Config) error {
	var errs []error

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, strings.ToLower(cfg.Log.Level)) {
		errs = append(errs, fmt.Errorf("invalid log.level: %s (must be one of: %v)", cfg.Log.Level, validLogLevels))
	}

	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, strings.ToLower(cfg.Log.Format)) {
		errs = append(errs, fmt.Errorf("invalid log.format: %s (must be one of: %v)", cfg.Log.Format, validLogFormats))
	}

	// Validate port numbers
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid http.port: %d (must be between 1 and 65535)", cfg.HTTP.Port))
	}
	if cfg.HTTP.MaxRequestSize < 0 {
		errs = append(errs, errors.New("http.max_request_size cannot be negative"))
	}
	if cfg.HTTP.RequestTimeout < 0 {
		errs = append(errs, errors.New("http.request_timeout cannot be negative"))
	}
	if cfg.HTTP.Compression.MinSize < 0 {
		errs = append(errs, errors.New("http.compression.min_size cannot be negative"))
	}
	if cfg.HTTP.RateLimit.Enabled {
		if cfg.HTTP.RateLimit.RequestsPerSecond <= 0 {
			errs = append(errs, errors.New("http.rate_limit.requests_per_second must be positive when rate limiting is enabled"))
		}
		if cfg.HTTP.RateLimit.Burst <= 0 {
			errs = append(errs, errors.New("http.rate_limit.burst must be positive when rate limiting is enabled"))
		}
	}
	if tls := cfg.HTTP.TLS; tls.Enabled() && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("http.tls.cert_file and http.tls.key_file must be set together"))
	}
	if tls := cfg.HTTP.TLS; tls.ClientCAFile != "" && !tls.Enabled() {
		errs = append(errs, errors.New("http.tls.client_ca_file requires http.tls.cert_file and http.tls.key_file"))
	}

	if cfg.Observability.Metrics.Enabled && !strings.HasPrefix(cfg.Observability.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("invalid observability.metrics.path: %q (must start with /)", cfg.Observability.Metrics.Path))
	}
	if cfg.Observability.Tracing.Enabled && cfg.Observability.Tracing.Endpoint == "" {
		errs = append(errs, errors.New("observability.tracing.endpoint is required when tracing is enabled"))
	}
	if rate := cfg.Observability.Tracing.SampleRate; rate < 0 || rate > 1 {
		errs = append(errs, fmt.Errorf("invalid observability.tracing.sample_rate: %v (must be between 0 and 1)", rate))
	}

	if err := cfg.Store.Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// contains checks if a string slice contains a specific string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
