package dynamodb

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeAPI is an in-memory table keyed by "id".
type fakeAPI struct {
	mu    sync.Mutex
	table string
	items map[string]map[string]types.AttributeValue

	describeErr error
	// throttle fails the next n batch calls with a throughput error
	throttle int
	// deferHalf leaves half of the next batch write unprocessed
	deferHalf bool
	// failWriteCall fails the n-th BatchWriteItem call (1-based)
	failWriteCall int
	writeCalls    int
	pageSize      int
	scanCalls     int
}

func newFakeAPI(table string) *fakeAPI {
	return &fakeAPI{
		table:    table,
		items:    make(map[string]map[string]types.AttributeValue),
		pageSize: 2,
	}
}

var errTableNotFound = &types.ResourceNotFoundException{Message: aws.String("table not found")}

func (f *fakeAPI) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	if aws.ToString(in.TableName) != f.table {
		return nil, errTableNotFound
	}
	return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{
		TableName:   in.TableName,
		TableStatus: types.TableStatusActive,
	}}, nil
}

func (f *fakeAPI) BatchGetItem(_ context.Context, in *dynamodb.BatchGetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.throttle > 0 {
		f.throttle--
		return nil, &types.ProvisionedThroughputExceededException{Message: aws.String("slow down")}
	}

	request, ok := in.RequestItems[f.table]
	if !ok || len(in.RequestItems) != 1 {
		return nil, errTableNotFound
	}
	if len(request.Keys) > maxBatchGet {
		return nil, errors.New("too many keys")
	}

	var found []map[string]types.AttributeValue
	for _, key := range request.Keys {
		id, _ := stringAttribute(key, keyAttribute)
		if item, ok := f.items[id]; ok {
			found = append(found, item)
		}
	}
	return &dynamodb.BatchGetItemOutput{Responses: map[string][]map[string]types.AttributeValue{f.table: found}}, nil
}

func (f *fakeAPI) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeCalls++
	if f.failWriteCall == f.writeCalls {
		return nil, errors.New("internal server error")
	}
	if f.throttle > 0 {
		f.throttle--
		return nil, &types.ProvisionedThroughputExceededException{Message: aws.String("slow down")}
	}

	requests, ok := in.RequestItems[f.table]
	if !ok || len(in.RequestItems) != 1 {
		return nil, errTableNotFound
	}
	if len(requests) > maxBatchWrite {
		return nil, errors.New("too many items")
	}

	var unprocessed []types.WriteRequest
	if f.deferHalf {
		f.deferHalf = false
		half := len(requests) / 2
		unprocessed = requests[half:]
		requests = requests[:half]
	}
	for _, req := range requests {
		switch {
		case req.PutRequest != nil:
			id, _ := stringAttribute(req.PutRequest.Item, keyAttribute)
			f.items[id] = req.PutRequest.Item
		case req.DeleteRequest != nil:
			id, _ := stringAttribute(req.DeleteRequest.Key, keyAttribute)
			delete(f.items, id)
		}
	}

	out := &dynamodb.BatchWriteItemOutput{}
	if len(unprocessed) > 0 {
		out.UnprocessedItems = map[string][]types.WriteRequest{f.table: unprocessed}
	}
	return out, nil
}

func (f *fakeAPI) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if aws.ToString(in.TableName) != f.table {
		return nil, errTableNotFound
	}
	id, _ := stringAttribute(in.Key, keyAttribute)
	delete(f.items, id)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeAPI) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanCalls++
	if aws.ToString(in.TableName) != f.table {
		return nil, errTableNotFound
	}

	ids := make([]string, 0, len(f.items))
	for id := range f.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	start := 0
	if in.ExclusiveStartKey != nil {
		after, _ := stringAttribute(in.ExclusiveStartKey, keyAttribute)
		start = sort.SearchStrings(ids, after)
		if start < len(ids) && ids[start] == after {
			start++
		}
	}
	end := min(start+f.pageSize, len(ids))

	out := &dynamodb.ScanOutput{}
	for _, id := range ids[start:end] {
		out.Items = append(out.Items, keyOf(id))
	}
	if end < len(ids) {
		out.LastEvaluatedKey = keyOf(ids[end-1])
	}
	return out, nil
}

func (f *fakeAPI) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}
