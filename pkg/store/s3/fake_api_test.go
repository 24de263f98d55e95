package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	awss3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeBucket is an in-memory bucket.
type fakeBucket struct {
	mu      sync.Mutex
	name    string
	objects map[string][]byte

	headErr error
	// failPut makes uploads of object keys containing the substring fail
	failPut  string
	pageSize int32
	lists    int
}

func newFakeBucket(name string) *fakeBucket {
	return &fakeBucket{name: name, objects: make(map[string][]byte), pageSize: 1000}
}

var errNoSuchBucket = errors.New("NoSuchBucket")

func (f *fakeBucket) check(bucket *string) error {
	if aws.ToString(bucket) != f.name {
		return errNoSuchBucket
	}
	return nil
}

func (f *fakeBucket) HeadBucket(_ context.Context, in *awss3.HeadBucketInput, _ ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headErr != nil {
		return nil, f.headErr
	}
	if err := f.check(in.Bucket); err != nil {
		return nil, err
	}
	return &awss3.HeadBucketOutput{}, nil
}

func (f *fakeBucket) PutObject(_ context.Context, in *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	payload, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(in.Bucket); err != nil {
		return nil, err
	}
	key := aws.ToString(in.Key)
	if f.failPut != "" && strings.Contains(key, f.failPut) {
		return nil, errors.New("SlowDown")
	}
	f.objects[key] = payload
	return &awss3.PutObjectOutput{ETag: aws.String(`"etag"`)}, nil
}

func (f *fakeBucket) GetObject(_ context.Context, in *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(in.Bucket); err != nil {
		return nil, err
	}
	payload, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &awss3types.NoSuchKey{Message: aws.String("not found")}
	}
	return &awss3.GetObjectOutput{
		Body:        io.NopCloser(bytes.NewReader(payload)),
		ContentType: aws.String(contentType),
	}, nil
}

func (f *fakeBucket) DeleteObject(_ context.Context, in *awss3.DeleteObjectInput, _ ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(in.Bucket); err != nil {
		return nil, err
	}
	delete(f.objects, aws.ToString(in.Key))
	return &awss3.DeleteObjectOutput{}, nil
}

func (f *fakeBucket) DeleteObjects(_ context.Context, in *awss3.DeleteObjectsInput, _ ...func(*awss3.Options)) (*awss3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(in.Bucket); err != nil {
		return nil, err
	}
	if len(in.Delete.Objects) > maxDeleteBatch {
		return nil, errors.New("MalformedXML")
	}
	for _, object := range in.Delete.Objects {
		delete(f.objects, aws.ToString(object.Key))
	}
	return &awss3.DeleteObjectsOutput{}, nil
}

func (f *fakeBucket) ListObjectsV2(_ context.Context, in *awss3.ListObjectsV2Input, _ ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if err := f.check(in.Bucket); err != nil {
		return nil, err
	}

	prefix := aws.ToString(in.Prefix)
	var keys []string
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	start := 0
	if token := aws.ToString(in.ContinuationToken); token != "" {
		start = sort.SearchStrings(keys, token)
	}
	limit := min(f.pageSize, aws.ToInt32(in.MaxKeys))
	end := min(start+int(limit), len(keys))

	out := &awss3.ListObjectsV2Output{KeyCount: aws.Int32(int32(end - start))}
	for _, key := range keys[start:end] {
		out.Contents = append(out.Contents, awss3types.Object{Key: aws.String(key), Size: aws.Int64(int64(len(f.objects[key])))})
	}
	if end < len(keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[end])
	}
	return out, nil
}

func (f *fakeBucket) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

func (f *fakeBucket) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}
