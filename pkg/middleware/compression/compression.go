// Package compression compresses JSON responses with Brotli or gzip.
package compression

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

const (
	encodingBrotli = "br"
	encodingGzip   = "gzip"
)

// Config controls response compression.
type Config struct {
	GzipLevel   int
	BrotliLevel int
	// MinSize is the body size below which responses are sent as is.
	MinSize int
	// CompressibleContentTypes are Content-Type prefixes worth compressing.
	CompressibleContentTypes []string
}

// DefaultConfig returns the compression used by the document routes.
func DefaultConfig() Config {
	return Config{
		GzipLevel:                gzip.DefaultCompression,
		BrotliLevel:              4,
		MinSize:                  1024,
		CompressibleContentTypes: []string{"application/json", "text/"},
	}
}

// Middleware negotiates Accept-Encoding and compresses eligible responses.
func Middleware(cfg Config) gin.HandlerFunc {
	cfg = normalizeConfig(cfg)

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodHead {
			c.Next()
			return
		}
		encoding := negotiateEncoding(c.GetHeader("Accept-Encoding"))
		if encoding == "" {
			c.Next()
			return
		}

		appendVary(c.Writer.Header(), "Accept-Encoding")
		original := c.Writer
		writer := &compressWriter{ResponseWriter: original, encoding: encoding, cfg: cfg}
		c.Writer = writer
		defer func() {
			c.Writer = original
			if r := recover(); r != nil {
				panic(r)
			}
			if err := writer.close(); err != nil {
				_ = c.Error(fmt.Errorf("compress response: %w", err))
			}
		}()

		c.Next()
	}
}

func normalizeConfig(cfg Config) Config {
	def := DefaultConfig()
	if cfg.GzipLevel == 0 {
		cfg.GzipLevel = def.GzipLevel
	}
	if cfg.BrotliLevel <= 0 {
		cfg.BrotliLevel = def.BrotliLevel
	}
	if cfg.MinSize < 0 {
		cfg.MinSize = 0
	}
	if len(cfg.CompressibleContentTypes) == 0 {
		cfg.CompressibleContentTypes = def.CompressibleContentTypes
	}
	return cfg
}

// negotiateEncoding prefers Brotli unless gzip has a strictly higher quality.
func negotiateEncoding(acceptEncoding string) string {
	if acceptEncoding == "" {
		return ""
	}

	qBr, hasBr := qualityForEncoding(acceptEncoding, encodingBrotli)
	qGzip, hasGzip := qualityForEncoding(acceptEncoding, encodingGzip)
	if qAny, hasAny := qualityForEncoding(acceptEncoding, "*"); hasAny {
		if !hasBr {
			qBr, hasBr = qAny, true
		}
		if !hasGzip {
			qGzip, hasGzip = qAny, true
		}
	}

	best := ""
	bestQ := float64(0)
	if hasBr && qBr > 0 {
		best, bestQ = encodingBrotli, qBr
	}
	if hasGzip && qGzip > bestQ {
		best = encodingGzip
	}
	return best
}

func qualityForEncoding(acceptEncoding, encoding string) (float64, bool) {
	for _, part := range strings.Split(acceptEncoding, ",") {
		token := strings.TrimSpace(part)
		if token == "" {
			continue
		}

		sections := strings.Split(token, ";")
		if !strings.EqualFold(strings.TrimSpace(sections[0]), encoding) {
			continue
		}

		q := 1.0
		for _, section := range sections[1:] {
			kv := strings.SplitN(strings.TrimSpace(section), "=", 2)
			if len(kv) != 2 || strings.ToLower(kv[0]) != "q" {
				continue
			}
			if parsed, err := strconv.ParseFloat(kv[1], 64); err == nil {
				q = parsed
			}
		}
		return q, true
	}
	return 0, false
}

// compressWriter buffers the body until MinSize is reached, then decides
// once whether to compress the rest of the response.
type compressWriter struct {
	gin.ResponseWriter
	encoding string
	cfg      Config
	decided  bool
	encoder  io.WriteCloser
	buffer   bytes.Buffer
}

func (w *compressWriter) Write(p []byte) (int, error) {
	if w.decided {
		if w.encoder != nil {
			return w.encoder.Write(p)
		}
		return w.ResponseWriter.Write(p)
	}

	w.buffer.Write(p)
	if w.buffer.Len() < w.cfg.MinSize {
		return len(p), nil
	}
	if err := w.decide(); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *compressWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// Written also counts bytes still held in the buffer.
func (w *compressWriter) Written() bool {
	return w.ResponseWriter.Written() || w.buffer.Len() > 0
}

func (w *compressWriter) Flush() {
	if !w.decided {
		_ = w.decide()
	}
	if flusher, ok := w.encoder.(interface{ Flush() error }); ok {
		_ = flusher.Flush()
	}
	w.ResponseWriter.Flush()
}

func (w *compressWriter) decide() error {
	w.decided = true

	header := w.Header()
	if noBodyStatus(w.Status()) ||
		header.Get("Content-Encoding") != "" ||
		w.buffer.Len() < w.cfg.MinSize ||
		!isCompressibleContentType(header.Get("Content-Type"), w.cfg.CompressibleContentTypes) {
		return w.flushPlain()
	}

	header.Del("Content-Length")
	header.Set("Content-Encoding", w.encoding)
	switch w.encoding {
	case encodingBrotli:
		w.encoder = brotli.NewWriterLevel(w.ResponseWriter, w.cfg.BrotliLevel)
	default:
		gz, err := gzip.NewWriterLevel(w.ResponseWriter, w.cfg.GzipLevel)
		if err != nil {
			return fmt.Errorf("create gzip writer: %w", err)
		}
		w.encoder = gz
	}

	if w.buffer.Len() == 0 {
		return nil
	}
	_, err := w.encoder.Write(w.buffer.Bytes())
	w.buffer.Reset()
	return err
}

func (w *compressWriter) flushPlain() error {
	if w.buffer.Len() == 0 {
		return nil
	}
	_, err := w.ResponseWriter.Write(w.buffer.Bytes())
	w.buffer.Reset()
	return err
}

func (w *compressWriter) close() error {
	if !w.decided {
		if w.buffer.Len() == 0 {
			return nil
		}
		if err := w.decide(); err != nil {
			return err
		}
	}
	if w.encoder != nil {
		return w.encoder.Close()
	}
	return nil
}

func noBodyStatus(statusCode int) bool {
	return statusCode == http.StatusNoContent || statusCode == http.StatusNotModified || (statusCode >= 100 && statusCode < 200)
}

func isCompressibleContentType(contentType string, allow []string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if ct == "" {
		return false
	}
	for _, prefix := range allow {
		if strings.HasPrefix(ct, strings.ToLower(strings.TrimSpace(prefix))) {
			return true
		}
	}
	return false
}

func appendVary(header http.Header, value string) {
	current := header.Get("Vary")
	if current == "" {
		header.Set("Vary", value)
		return
	}
	for _, part := range strings.Split(current, ",") {
		if strings.EqualFold(strings.TrimSpace(part), value) {
			return
		}
	}
	header.Set("Vary", current+", "+value)
}
