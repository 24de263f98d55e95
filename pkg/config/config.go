package config

import "time"

// Config is the root configuration of the docstore service and CLI.
type Config struct {
	Service       ServiceConfig       `mapstructure:"service"`
	Log           LogConfig           `mapstructure:"log"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	// Store is decoded separately by ParseStore because its single key
	// selects the backend.
	Store StoreConfig `mapstructure:"-"`
}

// ServiceConfig configures service identity metadata.
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// HTTPConfig configures the HTTP facade.
type HTTPConfig struct {
	Port            int             `mapstructure:"port"`
	ReadTimeout     time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration   `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration   `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration   `mapstructure:"request_timeout"`
	MaxRequestSize  int64           `mapstructure:"max_request_size"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
	TLS             TLSConfig       `mapstructure:"tls"`
	// AllowedHosts restricts the Host header. Empty accepts any host.
	AllowedHosts []string          `mapstructure:"allowed_hosts"`
	Compression  CompressionConfig `mapstructure:"compression"`
	CORS         CORSConfig        `mapstructure:"cors"`
}

// TLSConfig enables HTTPS when CertFile and KeyFile are set. ClientCAFile
// additionally requires clients to present a certificate signed by that CA.
type TLSConfig struct {
	CertFile     string `mapstructure:"cert_file"`
	KeyFile      string `mapstructure:"key_file"`
	ClientCAFile string `mapstructure:"client_ca_file"`
}

// Enabled reports whether HTTPS is configured.
func (c TLSConfig) Enabled() bool {
	return c.CertFile != "" || c.KeyFile != ""
}

// CompressionConfig configures Brotli/gzip compression of document responses.
type CompressionConfig struct {
	Enabled bool `mapstructure:"enabled"`
	MinSize int  `mapstructure:"min_size"`
}

// CORSConfig enables CORS for browser clients when AllowOrigins is set.
type CORSConfig struct {
	AllowOrigins     []string `mapstructure:"allow_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// RateLimitConfig configures per-client token buckets on the document routes.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerSecond int  `mapstructure:"requests_per_second"`
	Burst             int  `mapstructure:"burst"`
}

// ObservabilityConfig configures metrics and tracing.
type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// TracingConfig configures the OTLP trace exporter.
type TracingConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Endpoint   string  `mapstructure:"endpoint"`
	Insecure   bool    `mapstructure:"insecure"`
	SampleRate float64 `mapstructure:"sample_rate"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "docstore",
			Environment: "production",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		HTTP: HTTPConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  15 * time.Second,
			MaxRequestSize:  1 << 20,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 100,
				Burst:             200,
			},
			Compression: CompressionConfig{
				Enabled: true,
				MinSize: 1024,
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
			Tracing: TracingConfig{
				SampleRate: 1.0,
			},
		},
		Store: StoreConfig{Backend: BackendMemory},
	}
}
