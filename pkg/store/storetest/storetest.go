// Package storetest is a conformance suite every store.Client must pass.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimburion/docstore/pkg/store"
)

// Factory returns a new, disconnected client. Clients returned by one
// Factory share the same backend namespace.
type Factory func(t *testing.T) store.Client

// Run executes the conformance suite against clients built by newClient.
func Run(t *testing.T, newClient Factory) {
	t.Helper()

	tests := []struct {
		name string
		run  func(t *testing.T, newClient Factory)
	}{
		{"OperationsBeforeConnect", testOperationsBeforeConnect},
		{"ConnectEmitsReady", testConnectEmitsReady},
		{"SetThenGet", testSetThenGet},
		{"SeparateSetsThenGet", testSeparateSetsThenGet},
		{"GetCardinality", testGetCardinality},
		{"Overwrite", testOverwrite},
		{"InvalidPayload", testInvalidPayload},
		{"InvalidKeys", testInvalidKeys},
		{"Remove", testRemove},
		{"RemoveAll", testRemoveAll},
		{"DisconnectLifecycle", testDisconnectLifecycle},
		{"Reconnect", testReconnect},
		{"ConcurrentOperations", testConcurrentOperations},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.run(t, newClient)
		})
	}
}

func ctxWithTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// connected returns a connected client over an emptied namespace.
func connected(t *testing.T, newClient Factory) store.Client {
	t.Helper()
	ctx := ctxWithTimeout(t)

	client := newClient(t)
	require.NoError(t, client.Connect(ctx))
	require.NoError(t, client.RemoveAll(ctx))
	t.Cleanup(func() {
		_ = client.Disconnect(context.Background())
	})
	return client
}

func testOperationsBeforeConnect(t *testing.T, newClient Factory) {
	ctx := ctxWithTimeout(t)
	client := newClient(t)

	_, err := client.Get(ctx, []string{"a"})
	assert.ErrorIs(t, err, store.ErrNotInitialized)
	assert.ErrorIs(t, client.Set(ctx, map[string]any{"a": map[string]any{"x": 1}}), store.ErrNotInitialized)
	assert.ErrorIs(t, client.Remove(ctx, "a"), store.ErrNotInitialized)
	assert.ErrorIs(t, client.RemoveAll(ctx), store.ErrNotInitialized)
	assert.ErrorIs(t, client.IsReady(ctx), store.ErrNotInitialized)
	assert.ErrorIs(t, client.Disconnect(ctx), store.ErrNotInitialized)

	// liveness is checked before arguments
	_, err = client.Get(ctx, nil)
	assert.ErrorIs(t, err, store.ErrNotInitialized)
	assert.ErrorIs(t, client.Set(ctx, nil), store.ErrNotInitialized)

	assert.False(t, client.Health().Ready())
}

func testConnectEmitsReady(t *testing.T, newClient Factory) {
	ctx := ctxWithTimeout(t)
	client := newClient(t)

	var mu sync.Mutex
	var emitted []bool
	unsubscribe := client.Health().Subscribe(func(ready bool) {
		mu.Lock()
		emitted = append(emitted, ready)
		mu.Unlock()
	})
	defer unsubscribe()

	require.NoError(t, client.Connect(ctx))
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	mu.Lock()
	require.NotEmpty(t, emitted)
	assert.True(t, emitted[len(emitted)-1], "last emission after connect must be ready")
	mu.Unlock()
	assert.True(t, client.Health().Ready())

	require.NoError(t, client.IsReady(ctx))
	assert.True(t, client.Health().Ready())

	// connecting again is a no-op that re-emits ready
	require.NoError(t, client.Connect(ctx))
	assert.True(t, client.Health().Ready())
}

func testSetThenGet(t *testing.T, newClient Factory) {
	ctx := ctxWithTimeout(t)
	client := connected(t, newClient)

	type profile struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}

	require.NoError(t, client.Set(ctx, map[string]any{
		"boo":     map[string]any{"a": 1},
		"bar":     map[string]any{"b": "two", "nested": map[string]any{"ok": true}},
		"profile": profile{Name: "ada", Age: 36},
		"pointer": &profile{Name: "grace", Age: 45},
		"empty":   map[string]any{},
	}))

	docs, err := client.Get(ctx, []string{"boo", "bar", "profile", "pointer", "empty"})
	require.NoError(t, err)
	assert.Equal(t, store.Documents{
		"boo":     {"a": float64(1)},
		"bar":     {"b": "two", "nested": map[string]any{"ok": true}},
		"profile": {"name": "ada", "age": float64(36)},
		"pointer": {"name": "grace", "age": float64(45)},
		"empty":   {},
	}, docs)
}

func testSeparateSetsThenGet(t *testing.T, newClient Factory) {
	ctx := ctxWithTimeout(t)
	client := connected(t, newClient)

	require.NoError(t, client.Set(ctx, map[string]any{"boo": map[string]any{"a": 1}}))
	require.NoError(t, client.Set(ctx, map[string]any{
		"foo": map[string]any{"b": 23},
		"eoo": map[string]any{"c": map[string]any{"d": 45}},
	}))

	docs, err := client.Get(ctx, []string{"boo", "foo", "eoo", "woo"})
	require.NoError(t, err)
	assert.Equal(t, store.Documents{
		"boo": {"a": float64(1)},
		"foo": {"b": float64(23)},
		"eoo": {"c": map[string]any{"d": float64(45)}},
		"woo": nil,
	}, docs)
}

func testGetCardinality(t *testing.T, newClient Factory) {
	ctx := ctxWithTimeout(t)
	client := connected(t, newClient)

	require.NoError(t, client.Set(ctx, map[string]any{"a": map[string]any{"v": 1}}))

	docs, err := client.Get(ctx, []string{"a", "missing", "a", "other", "missing"})
	require.NoError(t, err)
	assert.Len(t, docs, 3)
	assert.Equal(t, store.Document{"v": float64(1)}, docs["a"])

	for _, key := range []string{"missing", "other"} {
		doc, present := docs[key]
		assert.True(t, present, "missing key %q must be present in the result", key)
		assert.Nil(t, doc)
	}
}

func testOverwrite(t *testing.T, newClient Factory) {
	ctx := ctxWithTimeout(t)
	client := connected(t, newClient)

	require.NoError(t, client.Set(ctx, map[string]any{"k": map[string]any{"version": 1, "old": true}}))
	require.NoError(t, client.Set(ctx, map[string]any{"k": map[string]any{"version": 2}}))

	docs, err := client.Get(ctx, []string{"k"})
	require.NoError(t, err)
	assert.Equal(t, store.Document{"version": float64(2)}, docs["k"])
}

func testInvalidPayload(t *testing.T, newClient Factory) {
	ctx := ctxWithTimeout(t)
	client := connected(t, newClient)

	payloads := []map[string]any{
		nil,
		{},
		{"key": "value"},
		{"key": 42},
		{"key": nil},
		{"key": []any{1, 2}},
		{"": map[string]any{"a": 1}},
		{"   ": map[string]any{"a": 1}},
		{"good": map[string]any{"a": 1}, "bad": "scalar"},
	}
	for _, payload := range payloads {
		err := client.Set(ctx, payload)
		assert.ErrorIs(t, err, store.ErrInvalidPayload, "payload %v", payload)
	}

	// a rejected batch writes nothing
	docs, err := client.Get(ctx, []string{"good"})
	require.NoError(t, err)
	assert.Nil(t, docs["good"])
}

func testInvalidKeys(t *testing.T, newClient Factory) {
	ctx := ctxWithTimeout(t)
	client := connected(t, newClient)

	_, err := client.Get(ctx, nil)
	assert.ErrorIs(t, err, store.ErrInvalidKey)
	_, err = client.Get(ctx, []string{})
	assert.ErrorIs(t, err, store.ErrInvalidKey)
	_, err = client.Get(ctx, []string{"ok", " "})
	assert.ErrorIs(t, err, store.ErrInvalidKey)

	assert.ErrorIs(t, client.Remove(ctx, ""), store.ErrInvalidKey)
	assert.ErrorIs(t, client.Remove(ctx, "\t"), store.ErrInvalidKey)
}

func testRemove(t *testing.T, newClient Factory) {
	ctx := ctxWithTimeout(t)
	client := connected(t, newClient)

	require.NoError(t, client.Set(ctx, map[string]any{
		"a": map[string]any{"v": 1},
		"b": map[string]any{"v": 2},
	}))
	require.NoError(t, client.Remove(ctx, "a"))

	docs, err := client.Get(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Nil(t, docs["a"])
	assert.Equal(t, store.Document{"v": float64(2)}, docs["b"])

	assert.NoError(t, client.Remove(ctx, "a"), "removing an absent key must succeed")
	assert.NoError(t, client.Remove(ctx, "never-written"))
}

func testRemoveAll(t *testing.T, newClient Factory) {
	ctx := ctxWithTimeout(t)
	client := connected(t, newClient)

	require.NoError(t, client.Set(ctx, map[string]any{
		"a": map[string]any{"v": 1},
		"b": map[string]any{"v": 2},
		"c": map[string]any{"v": 3},
	}))
	require.NoError(t, client.RemoveAll(ctx))

	docs, err := client.Get(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, store.Documents{"a": nil, "b": nil, "c": nil}, docs)

	assert.NoError(t, client.RemoveAll(ctx), "RemoveAll must be idempotent")
}

func testDisconnectLifecycle(t *testing.T, newClient Factory) {
	ctx := ctxWithTimeout(t)
	client := newClient(t)
	require.NoError(t, client.Connect(ctx))

	var last *bool
	client.Health().Subscribe(func(ready bool) { last = &ready })

	require.NoError(t, client.Disconnect(ctx))
	require.NotNil(t, last)
	assert.False(t, *last)
	assert.False(t, client.Health().Ready())

	_, err := client.Get(ctx, []string{"a"})
	assert.ErrorIs(t, err, store.ErrNotInitialized)
	assert.ErrorIs(t, client.Set(ctx, map[string]any{"a": map[string]any{}}), store.ErrNotInitialized)
	assert.ErrorIs(t, client.RemoveAll(ctx), store.ErrNotInitialized)
	assert.ErrorIs(t, client.IsReady(ctx), store.ErrNotInitialized)
	assert.ErrorIs(t, client.Disconnect(ctx), store.ErrNotInitialized, "second disconnect")
}

func testReconnect(t *testing.T, newClient Factory) {
	ctx := ctxWithTimeout(t)
	client := connected(t, newClient)

	require.NoError(t, client.Set(ctx, map[string]any{"persisted": map[string]any{"v": 1}}))
	require.NoError(t, client.Disconnect(ctx))
	require.NoError(t, client.Connect(ctx))
	assert.True(t, client.Health().Ready())

	docs, err := client.Get(ctx, []string{"persisted"})
	require.NoError(t, err)
	assert.Equal(t, store.Document{"v": float64(1)}, docs["persisted"])
}

func testConcurrentOperations(t *testing.T, newClient Factory) {
	ctx := ctxWithTimeout(t)
	client := connected(t, newClient)

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i))
			if err := client.Set(ctx, map[string]any{key: map[string]any{"i": i}}); err != nil {
				errs <- err
				return
			}
			if _, err := client.Get(ctx, []string{key}); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent operation failed: %v", err)
	}
}
