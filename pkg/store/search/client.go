package search

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	opensearchsdk "github.com/opensearch-project/opensearch-go/v4"
	awssigner "github.com/opensearch-project/opensearch-go/v4/signer/awsv2"
)

var errInvalidNode = errors.New("search node URL must be http(s)://host[:port]")

// performer is the request surface shared by both client libraries.
type performer interface {
	Perform(req *http.Request) (*http.Response, error)
}

// Conn is a connected cluster client.
type Conn struct {
	client    performer
	transport *http.Transport
	flavor    string
}

func newConn(ctx context.Context, cfg Config, target string) (*Conn, error) {
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 10
	}
	transport := &http.Transport{
		MaxIdleConns:        maxConns,
		MaxIdleConnsPerHost: maxConns,
		MaxConnsPerHost:     maxConns,
		IdleConnTimeout:     90 * time.Second,
	}

	addresses := cfg.addresses(target)
	var (
		client performer
		err    error
	)
	switch cfg.flavor() {
	case FlavorOpenSearch:
		client, err = newOpenSearchClient(ctx, cfg, addresses, transport)
	default:
		client, err = newElasticsearchClient(ctx, cfg, addresses, transport)
	}
	if err != nil {
		transport.CloseIdleConnections()
		return nil, err
	}
	return &Conn{client: client, transport: transport, flavor: cfg.flavor()}, nil
}

func newElasticsearchClient(ctx context.Context, cfg Config, addresses []string, transport *http.Transport) (performer, error) {
	roundTripper := http.RoundTripper(transport)
	if cfg.AWSAuthEnabled {
		creds, err := awsCredentials(ctx, cfg)
		if err != nil {
			return nil, err
		}
		roundTripper = &awsSigningRoundTripper{
			base:    transport,
			signer:  v4.NewSigner(),
			creds:   creds,
			region:  cfg.AWSRegion,
			service: cfg.awsService(),
		}
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    strings.TrimSpace(cfg.APIKey),
		Transport: roundTripper,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return client, nil
}

func newOpenSearchClient(ctx context.Context, cfg Config, addresses []string, transport *http.Transport) (performer, error) {
	clientCfg := opensearchsdk.Config{
		Addresses: addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: transport,
	}
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		clientCfg.Header = http.Header{"Authorization": []string{"ApiKey " + key}}
	}
	if cfg.AWSAuthEnabled {
		creds, err := awsCredentials(ctx, cfg)
		if err != nil {
			return nil, err
		}
		signer, err := awssigner.NewSignerWithService(aws.Config{Region: cfg.AWSRegion, Credentials: creds}, cfg.awsService())
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS signer: %w", err)
		}
		clientCfg.Signer = signer
	}

	client, err := opensearchsdk.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}
	return client, nil
}

func awsCredentials(ctx context.Context, cfg Config) (aws.CredentialsProvider, error) {
	if cfg.AWSAccessKeyID != "" {
		return credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretKey, cfg.AWSSessionToken), nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if awsCfg.Credentials == nil {
		return nil, errors.New("failed to resolve AWS credentials provider")
	}
	return awsCfg.Credentials, nil
}

// do sends one request and returns the status and the whole response body.
func (c *Conn) do(ctx context.Context, method, path string, body []byte, contentType string) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Perform(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s request failed: %w", c.flavor, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, payload, nil
}

func (c *Conn) close() {
	c.transport.CloseIdleConnections()
}

func statusError(op string, status int, body []byte) error {
	return fmt.Errorf("%s failed with status %d: %s", op, status, strings.TrimSpace(string(body)))
}

func succeeded(status int) bool {
	return status >= 200 && status < 300
}

type awsSigningRoundTripper struct {
	base    http.RoundTripper
	signer  *v4.Signer
	creds   aws.CredentialsProvider
	region  string
	service string
}

func (rt *awsSigningRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	signed := req.Clone(req.Context())
	payload, err := readRequestBody(signed)
	if err != nil {
		return nil, err
	}

	creds, err := rt.creds.Retrieve(signed.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve AWS credentials: %w", err)
	}
	hash := sha256.Sum256(payload)
	if err := rt.signer.SignHTTP(signed.Context(), creds, signed, hex.EncodeToString(hash[:]), rt.service, rt.region, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to sign request with AWS SigV4: %w", err)
	}
	return rt.base.RoundTrip(signed)
}

func readRequestBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return []byte{}, nil
	}
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	_ = req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}
