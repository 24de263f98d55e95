package server

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/nimburion/docstore/pkg/config"
)

// LoadTLSConfig builds the server TLS configuration. A non-empty caFile turns
// on mutual TLS: clients must present a certificate signed by that CA.
func LoadTLSConfig(certFile, keyFile, caFile string) (*tls.Config, error) {
	serverCert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load server certificate/key: %w", err)
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{serverCert},
		MinVersion:   tls.VersionTLS12,
	}
	if caFile == "" {
		return cfg, nil
	}

	caBytes, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}
	clientCAPool := x509.NewCertPool()
	if !clientCAPool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("failed to parse CA certificate %s", caFile)
	}
	cfg.ClientAuth = tls.RequireAndVerifyClientCert
	cfg.ClientCAs = clientCAPool
	return cfg, nil
}

// ConfigFromHTTP maps the http configuration section to a server Config,
// loading certificates when TLS is enabled.
func ConfigFromHTTP(cfg config.HTTPConfig) (Config, error) {
	serverCfg := Config{
		Port:            cfg.Port,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		IdleTimeout:     cfg.IdleTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}
	if !cfg.TLS.Enabled() {
		return serverCfg, nil
	}

	tlsCfg, err := LoadTLSConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.ClientCAFile)
	if err != nil {
		return Config{}, err
	}
	serverCfg.TLSConfig = tlsCfg
	return serverCfg, nil
}
