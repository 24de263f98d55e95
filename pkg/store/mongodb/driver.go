// Package mongodb stores documents in a MongoDB collection, one document
// per key with the key as _id.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/nimburion/docstore/pkg/store"
)

// Name is the backend name used in configuration and errors.
const Name = "mongo"

const idField = "_id"

// Driver implements store.Driver for MongoDB.
type Driver struct {
	cfg  Config
	link store.Link

	mu      sync.Mutex
	servers map[string]bool
}

// NewDriver returns a driver for cfg. cfg must be valid.
func NewDriver(cfg Config) *Driver {
	return &Driver{cfg: cfg, servers: make(map[string]bool)}
}

// Cosa fa: costruisce un client documentale su MongoDB, ancora disconnesso.
// Cosa NON fa: non apre connessioni; la prima avviene in Connect.
// Esempio minimo: client, err := mongodb.New(cfg, store.WithLogger(log))
func New(cfg Config, opts ...store.Option) (*store.Adapter[*mongo.Client], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts = append(cfg.Common.Options(cfg.URL), opts...)
	return store.NewAdapter[*mongo.Client](NewDriver(cfg), cfg.Common.Settings(cfg.URL), opts...), nil
}

func (d *Driver) Name() string { return Name }

// BindLink reports server heartbeats: the link is down while no known
// server answers.
func (d *Driver) BindLink(link store.Link) { d.link = link }

func (d *Driver) Dial(ctx context.Context, target string) (*mongo.Client, error) {
	clientOpts := options.Client().ApplyURI(target)
	if d.cfg.ConnectTimeout > 0 {
		clientOpts.SetConnectTimeout(d.cfg.ConnectTimeout)
		clientOpts.SetServerSelectionTimeout(d.cfg.ConnectTimeout)
	}
	if d.cfg.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(d.cfg.MaxPoolSize)
	}
	if d.cfg.Username != "" {
		clientOpts.SetAuth(options.Credential{
			Username:   d.cfg.Username,
			Password:   d.cfg.Password,
			AuthSource: d.cfg.AuthSource,
		})
	}
	if d.link != nil {
		clientOpts.SetServerMonitor(d.serverMonitor())
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return client, nil
}

func (d *Driver) serverMonitor() *event.ServerMonitor {
	return &event.ServerMonitor{
		ServerHeartbeatSucceeded: func(e *event.ServerHeartbeatSucceededEvent) {
			d.heartbeat(e.ConnectionID, nil)
		},
		ServerHeartbeatFailed: func(e *event.ServerHeartbeatFailedEvent) {
			d.heartbeat(e.ConnectionID, e.Failure)
		},
	}
}

func (d *Driver) heartbeat(server string, failure error) {
	d.mu.Lock()
	d.servers[server] = failure == nil
	healthy := false
	for _, ok := range d.servers {
		if ok {
			healthy = true
			break
		}
	}
	d.mu.Unlock()

	if healthy {
		d.link.Up()
		return
	}
	d.link.Down(failure)
}

func (d *Driver) Ping(ctx context.Context, client *mongo.Client) error {
	return client.Ping(ctx, readpref.Primary())
}

func (d *Driver) Close(ctx context.Context, client *mongo.Client) error {
	d.mu.Lock()
	d.servers = make(map[string]bool)
	d.mu.Unlock()

	if err := client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to close mongodb connection: %w", err)
	}
	return nil
}

func (d *Driver) collection(client *mongo.Client) *mongo.Collection {
	return client.Database(d.cfg.Database).Collection(d.cfg.Collection)
}

func (d *Driver) BatchRead(ctx context.Context, client *mongo.Client, keys []string) (store.Documents, error) {
	cursor, err := d.collection(client).Find(ctx, bson.M{idField: bson.M{"$in": keys}})
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	defer cursor.Close(ctx)

	found := make(store.Documents, len(keys))
	for cursor.Next(ctx) {
		key, doc, err := decodeRaw(cursor.Current)
		if err != nil {
			return nil, err
		}
		found[key] = doc
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor: %w", err)
	}
	return found, nil
}

// decodeRaw turns a stored BSON document into its key and a JSON-typed
// Document, going through relaxed extended JSON.
func decodeRaw(raw bson.Raw) (string, store.Document, error) {
	key, ok := raw.Lookup(idField).StringValueOK()
	if !ok {
		return "", nil, fmt.Errorf("document without string %s", idField)
	}
	text, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return "", nil, fmt.Errorf("convert document %q: %w", key, err)
	}
	doc, err := store.DecodeDocument(text)
	if err != nil {
		return "", nil, fmt.Errorf("convert document %q: %w", key, err)
	}
	delete(doc, idField)
	return key, doc, nil
}

func replacement(key string, doc store.Document) bson.M {
	out := make(bson.M, len(doc)+1)
	for field, value := range doc {
		out[field] = value
	}
	out[idField] = key
	return out
}

// BatchWrite upserts every document in one unordered bulk write.
func (d *Driver) BatchWrite(ctx context.Context, client *mongo.Client, docs store.Documents) error {
	models := make([]mongo.WriteModel, 0, len(docs))
	for key, doc := range docs {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{idField: key}).
			SetReplacement(replacement(key, doc)).
			SetUpsert(true))
	}

	_, err := d.collection(client).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err == nil {
		return nil
	}

	var bulkErr mongo.BulkWriteException
	if errors.As(err, &bulkErr) && len(bulkErr.WriteErrors) < len(models) {
		return store.PartialFailure("bulk write", err)
	}
	return store.OperationFailed("bulk write", err)
}

func (d *Driver) Delete(ctx context.Context, client *mongo.Client, key string) error {
	if _, err := d.collection(client).DeleteOne(ctx, bson.M{idField: key}); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

func (d *Driver) DeleteAll(ctx context.Context, client *mongo.Client) error {
	if _, err := d.collection(client).DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("delete all: %w", err)
	}
	return nil
}
