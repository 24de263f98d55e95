package store_test

import (
	"context"
	"errors"
	"sync"

	"github.com/nimburion/docstore/pkg/store"
)

type fakeConn struct {
	target string
}

// fakeDriver keeps documents outside the connection so they survive reconnects.
type fakeDriver struct {
	mu       sync.Mutex
	data     map[string]store.Document
	dialErrs []error
	dials    []string
	closes   int
	pingErr  error
	writeErr error
	onRead   func(ctx context.Context)
	onPing   func()
	link     store.Link
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{data: make(map[string]store.Document)}
}

func (d *fakeDriver) Name() string { return "fake" }

func (d *fakeDriver) BindLink(link store.Link) { d.link = link }

func (d *fakeDriver) Dial(ctx context.Context, target string) (*fakeConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials = append(d.dials, target)
	if len(d.dialErrs) > 0 {
		err := d.dialErrs[0]
		d.dialErrs = d.dialErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &fakeConn{target: target}, nil
}

func (d *fakeDriver) Ping(ctx context.Context, c *fakeConn) error {
	if d.onPing != nil {
		d.onPing()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pingErr
}

func (d *fakeDriver) Close(ctx context.Context, c *fakeConn) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes++
	return nil
}

func (d *fakeDriver) BatchRead(ctx context.Context, c *fakeConn, keys []string) (store.Documents, error) {
	if d.onRead != nil {
		d.onRead(ctx)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	found := make(store.Documents)
	for _, key := range keys {
		if doc, ok := d.data[key]; ok {
			found[key] = doc
		}
	}
	return found, nil
}

func (d *fakeDriver) BatchWrite(ctx context.Context, c *fakeConn, docs store.Documents) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.writeErr != nil {
		return d.writeErr
	}
	for key, doc := range docs {
		d.data[key] = doc
	}
	return nil
}

func (d *fakeDriver) Delete(ctx context.Context, c *fakeConn, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.data, key)
	return nil
}

func (d *fakeDriver) DeleteAll(ctx context.Context, c *fakeConn) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data = make(map[string]store.Document)
	return nil
}

func (d *fakeDriver) Dials() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.dials...)
}

var errRefused = errors.New("connection refused")
