// Package search stores documents in an Elasticsearch or OpenSearch index,
// one document per key with the key as _id.
package search

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"github.com/bytedance/sonic"

	"github.com/nimburion/docstore/pkg/store"
)

// Name is the backend name used in configuration and errors.
const Name = "elastic"

const ndjson = "application/x-ndjson"

var jsonAPI = sonic.ConfigStd

// Driver implements store.Driver over the search engine REST API.
type Driver struct {
	cfg   Config
	index string
}

// NewDriver returns a driver for cfg. cfg must be valid.
func NewDriver(cfg Config) *Driver {
	return &Driver{cfg: cfg, index: url.PathEscape(cfg.Index)}
}

// Cosa fa: costruisce un client documentale su un indice Elasticsearch/OpenSearch.
// Cosa NON fa: non crea mapping; l'indice viene creato dal primo write.
// Esempio minimo: client, err := search.New(cfg, store.WithLogger(log))
func New(cfg Config, opts ...store.Option) (*store.Adapter[*Conn], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts = append(cfg.Common.Options(cfg.URL), opts...)
	return store.NewAdapter[*Conn](NewDriver(cfg), cfg.Common.Settings(cfg.URL), opts...), nil
}

func (d *Driver) Name() string { return Name }

func (d *Driver) Dial(ctx context.Context, target string) (*Conn, error) {
	conn, err := newConn(ctx, d.cfg, target)
	if err != nil {
		return nil, err
	}
	if err := d.Ping(ctx, conn); err != nil {
		conn.close()
		return nil, fmt.Errorf("failed to ping %s: %w", d.cfg.flavor(), err)
	}
	return conn, nil
}

func (d *Driver) Ping(ctx context.Context, conn *Conn) error {
	status, body, err := conn.do(ctx, http.MethodGet, "/", nil, "")
	if err != nil {
		return err
	}
	if status >= http.StatusBadRequest {
		return statusError("ping", status, body)
	}
	return nil
}

func (d *Driver) Close(_ context.Context, conn *Conn) error {
	conn.close()
	return nil
}

type mgetRequest struct {
	IDs []string `json:"ids"`
}

type mgetResponse struct {
	Docs []struct {
		ID     string         `json:"_id"`
		Found  bool           `json:"found"`
		Source map[string]any `json:"_source"`
		Error  *engineError   `json:"error"`
	} `json:"docs"`
}

type engineError struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func (e *engineError) Error() string {
	return e.Type + ": " + e.Reason
}

func (d *Driver) BatchRead(ctx context.Context, conn *Conn, keys []string) (store.Documents, error) {
	body, err := jsonAPI.Marshal(mgetRequest{IDs: keys})
	if err != nil {
		return nil, fmt.Errorf("encode mget request: %w", err)
	}

	status, payload, err := conn.do(ctx, http.MethodPost, "/"+d.index+"/_mget", body, "application/json")
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		// the index is created by the first write
		return store.Documents{}, nil
	}
	if !succeeded(status) {
		return nil, statusError("mget", status, payload)
	}

	var resp mgetResponse
	if err := jsonAPI.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("decode mget response: %w", err)
	}

	found := make(store.Documents, len(resp.Docs))
	for _, doc := range resp.Docs {
		if doc.Error != nil {
			return nil, fmt.Errorf("key %q: %w", doc.ID, doc.Error)
		}
		if !doc.Found {
			continue
		}
		if doc.Source == nil {
			doc.Source = map[string]any{}
		}
		found[doc.ID] = store.Document(doc.Source)
	}
	return found, nil
}

type bulkAction struct {
	Index bulkTarget `json:"index"`
}

type bulkTarget struct {
	Index string `json:"_index"`
	ID    string `json:"_id"`
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string       `json:"_id"`
		Status int          `json:"status"`
		Error  *engineError `json:"error"`
	} `json:"items"`
}

// BatchWrite indexes every document with one _bulk request. Bulk requests
// are not atomic: item failures alongside successes are partial failures.
func (d *Driver) BatchWrite(ctx context.Context, conn *Conn, docs store.Documents) error {
	keys := make([]string, 0, len(docs))
	for key := range docs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, key := range keys {
		action, err := jsonAPI.Marshal(bulkAction{Index: bulkTarget{Index: d.cfg.Index, ID: key}})
		if err != nil {
			return store.OperationFailed("encode", err)
		}
		source, err := store.EncodeDocument(docs[key])
		if err != nil {
			return store.OperationFailed("encode", err)
		}
		buf.Write(action)
		buf.WriteByte('\n')
		buf.Write(source)
		buf.WriteByte('\n')
	}

	path := "/_bulk"
	if d.cfg.Refresh != "" {
		path += "?refresh=" + url.QueryEscape(d.cfg.Refresh)
	}
	status, payload, err := conn.do(ctx, http.MethodPost, path, buf.Bytes(), ndjson)
	if err != nil {
		return err
	}
	if !succeeded(status) {
		return store.OperationFailed("bulk", statusError("bulk", status, payload))
	}

	var resp bulkResponse
	if err := jsonAPI.Unmarshal(payload, &resp); err != nil {
		return store.PartialFailure("bulk", fmt.Errorf("decode bulk response: %w", err))
	}
	if !resp.Errors {
		return nil
	}

	var failures []error
	for _, item := range resp.Items {
		for _, result := range item {
			if result.Error != nil || !succeeded(result.Status) {
				failures = append(failures, fmt.Errorf("key %q: status %d: %v", result.ID, result.Status, result.Error))
			}
		}
	}
	switch {
	case len(failures) == 0:
		return nil
	case len(failures) < len(keys):
		return store.PartialFailure("bulk", errors.Join(failures...))
	default:
		return store.OperationFailed("bulk", errors.Join(failures...))
	}
}

func (d *Driver) Delete(ctx context.Context, conn *Conn, key string) error {
	status, payload, err := conn.do(ctx, http.MethodDelete, "/"+d.index+"/_doc/"+url.PathEscape(key), nil, "")
	if err != nil {
		return err
	}
	if status == http.StatusNotFound || succeeded(status) {
		return nil
	}
	return statusError("delete", status, payload)
}

var matchAll = []byte(`{"query":{"match_all":{}}}`)

// DeleteAll refreshes the index so recent writes are searchable, then
// deletes every document by query.
func (d *Driver) DeleteAll(ctx context.Context, conn *Conn) error {
	status, payload, err := conn.do(ctx, http.MethodPost, "/"+d.index+"/_refresh?ignore_unavailable=true", nil, "")
	if err != nil {
		return err
	}
	if status != http.StatusNotFound && !succeeded(status) {
		return statusError("refresh", status, payload)
	}

	path := "/" + d.index + "/_delete_by_query?conflicts=proceed&refresh=true&ignore_unavailable=true"
	status, payload, err = conn.do(ctx, http.MethodPost, path, matchAll, "application/json")
	if err != nil {
		return err
	}
	if status == http.StatusNotFound || succeeded(status) {
		return nil
	}
	return statusError("delete by query", status, payload)
}
