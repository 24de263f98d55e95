// Package memory is the in-process store backend. It performs no I/O:
// documents live in a concurrent map owned by the driver, so they survive
// Disconnect and Connect cycles of the same client.
package memory

import (
	"context"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/nimburion/docstore/pkg/store"
)

// Name is the backend name used in configuration and errors.
const Name = "memory"

// Handle is the connection token handed out by Dial.
type Handle struct {
	data *xsync.MapOf[string, []byte]
}

// Driver keeps documents as encoded JSON so callers never share mutable
// state with the store.
type Driver struct {
	data *xsync.MapOf[string, []byte]
}

// NewDriver returns an empty memory driver.
func NewDriver() *Driver {
	return &Driver{data: xsync.NewMapOf[string, []byte]()}
}

// New returns a memory-backed client. Connect always succeeds unless the
// caller's context is already cancelled, in which case it fails with
// resilience.ErrCancelled like every other backend.
func New(opts ...store.Option) *store.Adapter[*Handle] {
	return store.NewAdapter[*Handle](NewDriver(), store.Settings{Target: "memory://"}, opts...)
}

func (d *Driver) Name() string { return Name }

func (d *Driver) Dial(ctx context.Context, _ string) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Handle{data: d.data}, nil
}

func (d *Driver) Ping(ctx context.Context, _ *Handle) error {
	return ctx.Err()
}

func (d *Driver) Close(context.Context, *Handle) error {
	return nil
}

func (d *Driver) BatchRead(_ context.Context, h *Handle, keys []string) (store.Documents, error) {
	found := make(store.Documents, len(keys))
	for _, key := range keys {
		raw, ok := h.data.Load(key)
		if !ok {
			continue
		}
		doc, err := store.DecodeDocument(raw)
		if err != nil {
			return nil, err
		}
		found[key] = doc
	}
	return found, nil
}

func (d *Driver) BatchWrite(_ context.Context, h *Handle, docs store.Documents) error {
	encoded := make(map[string][]byte, len(docs))
	for key, doc := range docs {
		raw, err := store.EncodeDocument(doc)
		if err != nil {
			return store.OperationFailed("encode", err)
		}
		encoded[key] = raw
	}
	for key, raw := range encoded {
		h.data.Store(key, raw)
	}
	return nil
}

func (d *Driver) Delete(_ context.Context, h *Handle, key string) error {
	h.data.Delete(key)
	return nil
}

func (d *Driver) DeleteAll(_ context.Context, h *Handle) error {
	h.data.Clear()
	return nil
}

// Len reports how many documents are stored.
func (d *Driver) Len() int {
	return d.data.Size()
}
