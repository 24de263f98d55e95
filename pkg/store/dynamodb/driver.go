// Package dynamodb stores documents as items of a DynamoDB table holding the
// key in "id" and the JSON document in "doc".
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/nimburion/docstore/pkg/resilience"
	"github.com/nimburion/docstore/pkg/store"
)

// Name is the backend name used in configuration and errors.
const Name = "dynamodb"

const (
	keyAttribute = "id"
	docAttribute = "doc"

	// request limits of BatchGetItem and BatchWriteItem
	maxBatchGet   = 100
	maxBatchWrite = 25

	maxUnprocessedRounds = 5
	unprocessedBackoff   = 50 * time.Millisecond
)

// API is the subset of the DynamoDB client the driver uses.
type API interface {
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	BatchGetItem(ctx context.Context, in *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Driver implements store.Driver for DynamoDB.
type Driver struct {
	cfg       Config
	newClient func(ctx context.Context, target string) (API, error)
}

// NewDriver returns a driver for cfg. cfg must be valid.
func NewDriver(cfg Config) *Driver {
	d := &Driver{cfg: cfg}
	d.newClient = d.awsClient
	return d
}

// Cosa fa: costruisce un client documentale su una tabella DynamoDB (AWS SDK v2).
// Cosa NON fa: non crea tabelle o throughput policy.
// Esempio minimo: client, err := dynamodb.New(cfg, store.WithLogger(log))
func New(cfg Config, opts ...store.Option) (*store.Adapter[API], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts = append(cfg.Common.Options(cfg.Target()), opts...)
	return store.NewAdapter[API](NewDriver(cfg), cfg.Common.Settings(cfg.Target()), opts...), nil
}

func (d *Driver) Name() string { return Name }

func (d *Driver) awsClient(ctx context.Context, target string) (API, error) {
	loadOptions := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(d.cfg.Region)}
	if d.cfg.AccessKeyID != "" {
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(d.cfg.AccessKeyID, d.cfg.SecretAccessKey, d.cfg.SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	var opts []func(*dynamodb.Options)
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		opts = append(opts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(target)
		})
	}
	return dynamodb.NewFromConfig(awsCfg, opts...), nil
}

func (d *Driver) Dial(ctx context.Context, target string) (API, error) {
	client, err := d.newClient(ctx, target)
	if err != nil {
		return nil, err
	}
	if err := d.Ping(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}

// Ping checks that the table exists and is reachable.
func (d *Driver) Ping(ctx context.Context, client API) error {
	out, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(d.cfg.Table)})
	if err != nil {
		return fmt.Errorf("dynamodb ping failed: %w", err)
	}
	if out.Table != nil && out.Table.TableStatus == types.TableStatusDeleting {
		return fmt.Errorf("dynamodb table %s is being deleted", d.cfg.Table)
	}
	return nil
}

// Close is a no-op: the SDK client holds no connection of its own.
func (d *Driver) Close(context.Context, API) error { return nil }

func keyOf(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{keyAttribute: &types.AttributeValueMemberS{Value: key}}
}

func stringAttribute(item map[string]types.AttributeValue, name string) (string, bool) {
	value, ok := item[name].(*types.AttributeValueMemberS)
	if !ok {
		return "", false
	}
	return value.Value, true
}

func (d *Driver) BatchRead(ctx context.Context, client API, keys []string) (store.Documents, error) {
	found := make(store.Documents, len(keys))
	for start := 0; start < len(keys); start += maxBatchGet {
		end := min(start+maxBatchGet, len(keys))

		requested := make([]map[string]types.AttributeValue, 0, end-start)
		for _, key := range keys[start:end] {
			requested = append(requested, keyOf(key))
		}
		pending := map[string]types.KeysAndAttributes{
			d.cfg.Table: {Keys: requested, ConsistentRead: aws.Bool(d.cfg.ConsistentRead)},
		}

		for round := 0; len(pending) > 0; round++ {
			if round == maxUnprocessedRounds {
				return nil, errors.New("batch get: keys left unprocessed after retries")
			}
			if round > 0 {
				if err := resilience.Sleep(ctx, unprocessedBackoff<<(round-1)); err != nil {
					return nil, err
				}
			}

			out, err := client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: pending})
			if IsThrottlingError(err) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("batch get: %w", err)
			}
			for _, item := range out.Responses[d.cfg.Table] {
				key, ok := stringAttribute(item, keyAttribute)
				if !ok {
					continue
				}
				raw, ok := stringAttribute(item, docAttribute)
				if !ok {
					return nil, fmt.Errorf("key %q: missing %s attribute", key, docAttribute)
				}
				doc, err := store.DecodeDocument([]byte(raw))
				if err != nil {
					return nil, fmt.Errorf("key %q: %w", key, err)
				}
				found[key] = doc
			}
			pending = out.UnprocessedKeys
		}
	}
	return found, nil
}

// BatchWrite puts every document in chunks of 25. Chunks are independent:
// a failure after the first chunk is reported as a partial failure.
func (d *Driver) BatchWrite(ctx context.Context, client API, docs store.Documents) error {
	requests := make([]types.WriteRequest, 0, len(docs))
	for key, doc := range docs {
		raw, err := store.EncodeDocument(doc)
		if err != nil {
			return store.OperationFailed("encode", err)
		}
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: map[string]types.AttributeValue{
			keyAttribute: &types.AttributeValueMemberS{Value: key},
			docAttribute: &types.AttributeValueMemberS{Value: string(raw)},
		}}})
	}
	return d.writeBatches(ctx, client, "batch put", requests)
}

func (d *Driver) writeBatches(ctx context.Context, client API, op string, requests []types.WriteRequest) error {
	written := 0
	for start := 0; start < len(requests); start += maxBatchWrite {
		end := min(start+maxBatchWrite, len(requests))
		chunk := requests[start:end]

		applied, err := d.writeChunk(ctx, client, chunk)
		written += applied
		if err != nil {
			if written > 0 {
				return store.PartialFailure(op, err)
			}
			return store.OperationFailed(op, err)
		}
	}
	return nil
}

// writeChunk sends one BatchWriteItem request, resubmitting unprocessed and
// throttled items, and returns how many items were applied.
func (d *Driver) writeChunk(ctx context.Context, client API, chunk []types.WriteRequest) (int, error) {
	pending := map[string][]types.WriteRequest{d.cfg.Table: chunk}
	applied := 0
	for round := 0; ; round++ {
		if round == maxUnprocessedRounds {
			return applied, fmt.Errorf("%d items left unprocessed after retries", len(pending[d.cfg.Table]))
		}
		if round > 0 {
			if err := resilience.Sleep(ctx, unprocessedBackoff<<(round-1)); err != nil {
				return applied, err
			}
		}

		sent := len(pending[d.cfg.Table])
		out, err := client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if IsThrottlingError(err) {
			continue
		}
		if err != nil {
			return applied, err
		}
		applied += sent - len(out.UnprocessedItems[d.cfg.Table])
		if len(out.UnprocessedItems[d.cfg.Table]) == 0 {
			return applied, nil
		}
		pending = out.UnprocessedItems
	}
}

func (d *Driver) Delete(ctx context.Context, client API, key string) error {
	_, err := client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.cfg.Table),
		Key:       keyOf(key),
	})
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

// DeleteAll scans the table keys and deletes them in batches.
func (d *Driver) DeleteAll(ctx context.Context, client API) error {
	paginator := dynamodb.NewScanPaginator(client, &dynamodb.ScanInput{
		TableName:                aws.String(d.cfg.Table),
		ProjectionExpression:     aws.String("#k"),
		ExpressionAttributeNames: map[string]string{"#k": keyAttribute},
		ConsistentRead:           aws.Bool(d.cfg.ConsistentRead),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		requests := make([]types.WriteRequest, 0, len(page.Items))
		for _, item := range page.Items {
			if key, ok := stringAttribute(item, keyAttribute); ok {
				requests = append(requests, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: keyOf(key)}})
			}
		}
		if err := d.writeBatches(ctx, client, "batch delete", requests); err != nil {
			return err
		}
	}
	return nil
}

// IsThrottlingError reports whether err was caused by exhausted table throughput.
func IsThrottlingError(err error) bool {
	if err == nil {
		return false
	}
	var pte *types.ProvisionedThroughputExceededException
	return errors.As(err, &pte)
}
