package search

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// fakeCluster serves the subset of the search REST API the driver uses.
type fakeCluster struct {
	mu      sync.Mutex
	indices map[string]map[string]json.RawMessage
	// failIDs makes bulk items with these ids fail
	failIDs map[string]bool
	down    bool
	headers []http.Header
	paths   []string
}

func newFakeCluster(t *testing.T) (*fakeCluster, *httptest.Server) {
	t.Helper()
	cluster := &fakeCluster{
		indices: make(map[string]map[string]json.RawMessage),
		failIDs: make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", cluster.info)
	mux.HandleFunc("POST /{index}/_mget", cluster.mget)
	mux.HandleFunc("POST /_bulk", cluster.bulk)
	mux.HandleFunc("DELETE /{index}/_doc/{id}", cluster.deleteDoc)
	mux.HandleFunc("POST /{index}/_refresh", cluster.refresh)
	mux.HandleFunc("POST /{index}/_delete_by_query", cluster.deleteByQuery)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cluster.mu.Lock()
		cluster.headers = append(cluster.headers, r.Header.Clone())
		cluster.paths = append(cluster.paths, r.Method+" "+r.URL.RequestURI())
		down := cluster.down
		cluster.mu.Unlock()

		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		if down {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"error":"unavailable"}`)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)
	return cluster, server
}

func (c *fakeCluster) setDown(down bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.down = down
}

func (c *fakeCluster) lastHeader() http.Header {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.headers[len(c.headers)-1]
}

func (c *fakeCluster) info(w http.ResponseWriter, _ *http.Request) {
	_, _ = io.WriteString(w, `{"version":{"number":"8.15.0"},"tagline":"You Know, for Search"}`)
}

func (c *fakeCluster) mget(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	index, ok := c.indices[r.PathValue("index")]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"type":"index_not_found_exception"},"status":404}`)
		return
	}

	docs := make([]map[string]any, 0, len(req.IDs))
	for _, id := range req.IDs {
		source, found := index[id]
		entry := map[string]any{"_id": id, "found": found}
		if found {
			entry["_source"] = source
		}
		docs = append(docs, entry)
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"docs": docs})
}

func (c *fakeCluster) bulk(w http.ResponseWriter, r *http.Request) {
	scanner := bufio.NewScanner(r.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	c.mu.Lock()
	defer c.mu.Unlock()

	var items []map[string]any
	hasErrors := false
	for scanner.Scan() {
		var action struct {
			Index struct {
				Index string `json:"_index"`
				ID    string `json:"_id"`
			} `json:"index"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &action); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !scanner.Scan() {
			http.Error(w, "missing source line", http.StatusBadRequest)
			return
		}
		source := json.RawMessage(bytes.Clone(scanner.Bytes()))

		id := action.Index.ID
		if c.failIDs[id] {
			hasErrors = true
			items = append(items, map[string]any{"index": map[string]any{
				"_id": id, "status": 400,
				"error": map[string]any{"type": "mapper_parsing_exception", "reason": "failed to parse"},
			}})
			continue
		}
		index, ok := c.indices[action.Index.Index]
		if !ok {
			index = make(map[string]json.RawMessage)
			c.indices[action.Index.Index] = index
		}
		index[id] = source
		items = append(items, map[string]any{"index": map[string]any{"_id": id, "status": 201}})
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"errors": hasErrors, "items": items})
}

func (c *fakeCluster) deleteDoc(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	index := c.indices[r.PathValue("index")]
	id := r.PathValue("id")
	if _, ok := index[id]; !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"result":"not_found"}`)
		return
	}
	delete(index, id)
	_, _ = io.WriteString(w, `{"result":"deleted"}`)
}

func (c *fakeCluster) refresh(w http.ResponseWriter, r *http.Request) {
	_, _ = io.WriteString(w, `{"_shards":{"total":1,"successful":1,"failed":0}}`)
}

func (c *fakeCluster) deleteByQuery(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	index := c.indices[r.PathValue("index")]
	deleted := len(index)
	for id := range index {
		delete(index, id)
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"deleted": deleted})
}
