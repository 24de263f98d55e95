package server

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nimburion/docstore/pkg/config"
	"github.com/nimburion/docstore/pkg/health"
	"github.com/nimburion/docstore/pkg/middleware/compression"
	"github.com/nimburion/docstore/pkg/middleware/cors"
	"github.com/nimburion/docstore/pkg/middleware/logging"
	mwmetrics "github.com/nimburion/docstore/pkg/middleware/metrics"
	"github.com/nimburion/docstore/pkg/middleware/ratelimit"
	"github.com/nimburion/docstore/pkg/middleware/recovery"
	"github.com/nimburion/docstore/pkg/middleware/requestid"
	"github.com/nimburion/docstore/pkg/middleware/requestsize"
	"github.com/nimburion/docstore/pkg/middleware/securityheaders"
	"github.com/nimburion/docstore/pkg/middleware/timeout"
	"github.com/nimburion/docstore/pkg/middleware/tracing"
	"github.com/nimburion/docstore/pkg/observability/logger"
	"github.com/nimburion/docstore/pkg/observability/metrics"
	"github.com/nimburion/docstore/pkg/store"
)

// Route paths.
const (
	DocumentsPath   = "/v1/documents"
	LivenessPath    = "/health/live"
	ReadinessPath   = "/health/ready"
	storeCheckName  = "store"
	readinessBudget = 5 * time.Second
)

// RouterOptions collects what NewRouter wires together.
type RouterOptions struct {
	Client store.Client
	Logger logger.Logger
	HTTP   config.HTTPConfig
	// Metrics is nil when metrics are disabled.
	Metrics     *metrics.Registry
	MetricsPath string
	// Tracing adds a server span per request.
	Tracing bool
	// Health receives the store readiness check. A new registry is used
	// when nil.
	Health *health.Registry
}

// NewRouter builds the gin engine of the HTTP facade.
//
// Cosa fa: monta le rotte documento, health e metrics con la catena di
// middleware (recovery, request id, security headers, CORS, tracing, logging,
// metrics, e sulle rotte documento rate limit, request size, timeout,
// compressione).
// Cosa NON fa: non connette il client; chi chiama gestisce Connect e
// Disconnect.
//
// Esempio minimo:
//
//	engine := server.NewRouter(server.RouterOptions{Client: client, Logger: log, HTTP: cfg.HTTP})
//	srv := server.NewServer(serverCfg, engine, log)
func NewRouter(opts RouterOptions) *gin.Engine {
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	registry := opts.Health
	if registry == nil {
		registry = health.NewRegistry()
	}
	registry.Register(health.NewStoreChecker(storeCheckName, opts.Client.Backend(), opts.Client, readinessBudget))

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	// keys may contain escaped slashes
	engine.UseRawPath = true
	engine.UnescapePathValues = true

	security := securityheaders.DefaultConfig()
	security.AllowedHosts = opts.HTTP.AllowedHosts
	engine.Use(recovery.Recovery(log), requestid.RequestID(), securityheaders.Middleware(security))
	if origins := opts.HTTP.CORS.AllowOrigins; len(origins) > 0 {
		corsCfg := cors.DefaultConfig()
		corsCfg.AllowOrigins = origins
		corsCfg.AllowCredentials = opts.HTTP.CORS.AllowCredentials
		engine.Use(cors.Middleware(corsCfg))
	}
	if opts.Tracing {
		excluded := []string{"/health"}
		if opts.MetricsPath != "" {
			excluded = append(excluded, opts.MetricsPath)
		}
		engine.Use(tracing.Tracing(tracing.Config{ExcludedPathPrefixes: excluded}))
	}
	engine.Use(logging.Logging(log))
	if opts.Metrics != nil {
		engine.Use(mwmetrics.Metrics(opts.Metrics.HTTP()))
	}

	engine.GET(LivenessPath, liveness(health.NewSignalChecker(storeCheckName, opts.Client.Health())))
	engine.GET(ReadinessPath, readiness(registry))
	if opts.Metrics != nil && opts.MetricsPath != "" {
		engine.GET(opts.MetricsPath, gin.WrapH(opts.Metrics.Handler()))
	}

	documents := engine.Group(DocumentsPath)
	if rl := opts.HTTP.RateLimit; rl.Enabled {
		documents.Use(ratelimit.RateLimit(ratelimit.NewTokenBucketLimiter(rl.RequestsPerSecond, rl.Burst), nil))
	}
	documents.Use(requestsize.Middleware(opts.HTTP.MaxRequestSize))
	if opts.HTTP.RequestTimeout > 0 {
		documents.Use(timeout.Middleware(opts.HTTP.RequestTimeout))
	}
	if cc := opts.HTTP.Compression; cc.Enabled {
		compressionCfg := compression.DefaultConfig()
		compressionCfg.MinSize = cc.MinSize
		documents.Use(compression.Middleware(compressionCfg))
	}

	handler := &documentHandler{client: opts.Client, maxRequestSize: opts.HTTP.MaxRequestSize}
	documents.GET("", handler.get)
	documents.PUT("", handler.set)
	documents.DELETE("", handler.removeAll)
	documents.DELETE("/:key", handler.remove)

	return engine
}
