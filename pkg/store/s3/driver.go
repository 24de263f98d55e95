// Package s3 stores documents as JSON objects in an S3 compatible bucket.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	awss3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"golang.org/x/sync/errgroup"

	"github.com/nimburion/docstore/pkg/store"
)

// Name is the backend name used in configuration and errors.
const Name = "s3"

const (
	objectSuffix = ".json"
	contentType  = "application/json"
	// DeleteObjects accepts at most 1000 keys
	maxDeleteBatch = 1000
)

// API is the subset of the S3 client the driver uses.
type API interface {
	HeadBucket(ctx context.Context, params *awss3.HeadBucketInput, optFns ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error)
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *awss3.DeleteObjectsInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, params *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
}

// Driver implements store.Driver for S3.
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

// Cosa fa: costruisce un client documentale su un bucket S3 (o compatibile).
// Cosa NON fa: non crea il bucket; RemoveAll cancella solo gli oggetti sotto il prefisso.
// Esempio minimo: client, err := s3.New(cfg, store.WithLogger(log))
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

	clientOptions := make([]func(*awss3.Options), 0, 2)
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		clientOptions = append(clientOptions, func(o *awss3.Options) {
			o.BaseEndpoint = aws.String(target)
		})
	}
	if d.cfg.UsePathStyle {
		clientOptions = append(clientOptions, func(o *awss3.Options) {
			o.UsePathStyle = true
		})
	}
	return awss3.NewFromConfig(awsCfg, clientOptions...), nil
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

// Ping verifies that the configured bucket is accessible.
func (d *Driver) Ping(ctx context.Context, client API) error {
	_, err := client.HeadBucket(ctx, &awss3.HeadBucketInput{Bucket: aws.String(d.cfg.Bucket)})
	if err != nil {
		return fmt.Errorf("s3 ping failed: %w", err)
	}
	return nil
}

// Close is a no-op: the SDK client holds no connection of its own.
func (d *Driver) Close(context.Context, API) error { return nil }

func (d *Driver) objectKey(key string) string {
	return d.cfg.Prefix + key + objectSuffix
}

func (d *Driver) concurrency() int {
	if d.cfg.Concurrency <= 0 {
		return 8
	}
	return d.cfg.Concurrency
}

func isNotFound(err error) bool {
	var noSuchKey *awss3types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey")
}

func (d *Driver) BatchRead(ctx context.Context, client API, keys []string) (store.Documents, error) {
	var mu sync.Mutex
	found := make(store.Documents, len(keys))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(d.concurrency())
	for _, key := range keys {
		group.Go(func() error {
			doc, err := d.read(groupCtx, client, key)
			if err != nil || doc == nil {
				return err
			}
			mu.Lock()
			found[key] = doc
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return found, nil
}

func (d *Driver) read(ctx context.Context, client API, key string) (store.Document, error) {
	resp, err := client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(d.cfg.Bucket),
		Key:    aws.String(d.objectKey(key)),
	})
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get object for key %q: %w", key, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object for key %q: %w", key, err)
	}
	doc, err := store.DecodeDocument(payload)
	if err != nil {
		return nil, fmt.Errorf("key %q: %w", key, err)
	}
	return doc, nil
}

// BatchWrite uploads every document in parallel. Object writes are
// independent, so failures next to successful uploads are partial failures.
func (d *Driver) BatchWrite(ctx context.Context, client API, docs store.Documents) error {
	encoded := make(map[string][]byte, len(docs))
	for key, doc := range docs {
		raw, err := store.EncodeDocument(doc)
		if err != nil {
			return store.OperationFailed("encode", err)
		}
		encoded[key] = raw
	}

	var (
		mu       sync.Mutex
		failures []error
		written  int
	)
	var group errgroup.Group
	group.SetLimit(d.concurrency())
	for key, raw := range encoded {
		group.Go(func() error {
			_, err := client.PutObject(ctx, &awss3.PutObjectInput{
				Bucket:      aws.String(d.cfg.Bucket),
				Key:         aws.String(d.objectKey(key)),
				Body:        bytes.NewReader(raw),
				ContentType: aws.String(contentType),
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, fmt.Errorf("key %q: %w", key, err))
				return nil
			}
			written++
			return nil
		})
	}
	_ = group.Wait()

	switch {
	case len(failures) == 0:
		return nil
	case written > 0:
		return store.PartialFailure("put objects", errors.Join(failures...))
	default:
		return store.OperationFailed("put objects", errors.Join(failures...))
	}
}

func (d *Driver) Delete(ctx context.Context, client API, key string) error {
	_, err := client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(d.cfg.Bucket),
		Key:    aws.String(d.objectKey(key)),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete object for key %q: %w", key, err)
	}
	return nil
}

// DeleteAll deletes every document object under the configured prefix.
func (d *Driver) DeleteAll(ctx context.Context, client API) error {
	paginator := awss3.NewListObjectsV2Paginator(client, &awss3.ListObjectsV2Input{
		Bucket:  aws.String(d.cfg.Bucket),
		Prefix:  aws.String(d.cfg.Prefix),
		MaxKeys: aws.Int32(maxDeleteBatch),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list objects with prefix %q: %w", d.cfg.Prefix, err)
		}

		objects := make([]awss3types.ObjectIdentifier, 0, len(page.Contents))
		for _, item := range page.Contents {
			if strings.HasSuffix(aws.ToString(item.Key), objectSuffix) {
				objects = append(objects, awss3types.ObjectIdentifier{Key: item.Key})
			}
		}
		if len(objects) == 0 {
			continue
		}

		out, err := client.DeleteObjects(ctx, &awss3.DeleteObjectsInput{
			Bucket: aws.String(d.cfg.Bucket),
			Delete: &awss3types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("failed to delete objects: %w", err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf("failed to delete %d objects, first %q: %s", len(out.Errors), aws.ToString(first.Key), aws.ToString(first.Message))
		}
	}
	return nil
}
