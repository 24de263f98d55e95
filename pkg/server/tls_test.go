package server

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nimburion/docstore/pkg/config"
)

func TestLoadTLSConfig(t *testing.T) {
	t.Run("missing files", func(t *testing.T) {
		_, err := LoadTLSConfig("/missing/server.crt", "/missing/server.key", "")
		if err == nil {
			t.Fatal("expected error for missing certificate files")
		}
	})

	t.Run("invalid CA", func(t *testing.T) {
		certs := writeTestCerts(t)
		caPath := filepath.Join(t.TempDir(), "invalid-ca.crt")
		if err := os.WriteFile(caPath, []byte("not-a-pem"), 0o644); err != nil {
			t.Fatalf("failed to write invalid CA file: %v", err)
		}

		if _, err := LoadTLSConfig(certs.Cert, certs.Key, caPath); err == nil {
			t.Fatal("expected error for invalid CA file")
		}
	})

	t.Run("server only", func(t *testing.T) {
		certs := writeTestCerts(t)

		cfg, err := LoadTLSConfig(certs.Cert, certs.Key, "")
		if err != nil {
			t.Fatalf("expected valid TLS config, got error: %v", err)
		}
		if cfg.ClientAuth != tls.NoClientCert {
			t.Fatalf("expected no client auth, got %v", cfg.ClientAuth)
		}
		if cfg.MinVersion != tls.VersionTLS12 {
			t.Fatalf("expected TLS min version 1.2, got %d", cfg.MinVersion)
		}
	})

	t.Run("mutual TLS", func(t *testing.T) {
		certs := writeTestCerts(t)

		cfg, err := LoadTLSConfig(certs.Cert, certs.Key, certs.CA)
		if err != nil {
			t.Fatalf("expected valid TLS config, got error: %v", err)
		}
		if cfg.ClientAuth != tls.RequireAndVerifyClientCert {
			t.Fatalf("expected client auth RequireAndVerifyClientCert, got %v", cfg.ClientAuth)
		}
		if cfg.ClientCAs == nil {
			t.Fatal("expected non-nil client CA pool")
		}
	})
}

func TestConfigFromHTTP(t *testing.T) {
	httpCfg := config.DefaultConfig().HTTP
	httpCfg.Port = 9090
	httpCfg.ShutdownTimeout = 5 * time.Second

	cfg, err := ConfigFromHTTP(httpCfg)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Port != 9090 || cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.TLSConfig != nil {
		t.Error("expected TLS to stay disabled")
	}

	certs := writeTestCerts(t)
	httpCfg.TLS = config.TLSConfig{CertFile: certs.Cert, KeyFile: certs.Key}
	cfg, err = ConfigFromHTTP(httpCfg)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.TLSConfig == nil {
		t.Error("expected TLS to be configured")
	}
}
