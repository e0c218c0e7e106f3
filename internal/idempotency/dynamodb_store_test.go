package idempotency

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
)

// fakeDynamoDB is a small in-memory stand-in for the DynamoDB client. It
// honors the full conditional expression DynamoDBStore issues, including
// the TTL and lease-expiry takeover clauses, not just attribute_not_exists.
type fakeDynamoDB struct {
	mu    sync.Mutex
	table map[string]map[string]types.AttributeValue
}

func newFakeDynamoDB() *fakeDynamoDB {
	return &fakeDynamoDB{table: map[string]map[string]types.AttributeValue{}}
}

func numAttr(item map[string]types.AttributeValue, name string) (int64, bool) {
	av, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(av.Value, 10, 64)
	return v, err == nil
}

func strAttr(item map[string]types.AttributeValue, name string) (string, bool) {
	av, ok := item[name].(*types.AttributeValueMemberS)
	if !ok {
		return "", false
	}
	return av.Value, true
}

func (m *fakeDynamoDB) conditionSatisfied(existing map[string]types.AttributeValue, now, nowMs int64) bool {
	if existing == nil {
		return true
	}
	if exp, ok := numAttr(existing, "expiration"); ok && exp <= now {
		return true
	}
	status, _ := strAttr(existing, "status")
	if status == string(StatusInProgress) {
		if lexp, ok := numAttr(existing, "in_progress_expiration"); ok && lexp <= nowMs {
			return true
		}
	}
	return false
}

// rowKey extracts whichever attribute holds the per-row identity: "id" in
// single-key mode, or "sk" in composite-key mode (the fake has no knowledge
// of ColumnMap, so it checks both).
func rowKey(item map[string]types.AttributeValue) string {
	if v, ok := strAttr(item, "sk"); ok {
		return v
	}
	v, _ := strAttr(item, "id")
	return v
}

func (m *fakeDynamoDB) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pk := rowKey(in.Item)

	if in.ConditionExpression != nil {
		existing, exists := m.table[pk]
		var existingOrNil map[string]types.AttributeValue
		if exists {
			existingOrNil = existing
		}
		nowStr := in.ExpressionAttributeValues[":now"].(*types.AttributeValueMemberN).Value
		nowMsStr := in.ExpressionAttributeValues[":now_ms"].(*types.AttributeValueMemberN).Value
		now, _ := strconv.ParseInt(nowStr, 10, 64)
		nowMs, _ := strconv.ParseInt(nowMsStr, 10, 64)
		if exists && !m.conditionSatisfied(existingOrNil, now, nowMs) {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}

	m.table[pk] = in.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *fakeDynamoDB) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pk := rowKey(in.Key)
	item, ok := m.table[pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *fakeDynamoDB) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	return nil, nil
}

func (m *fakeDynamoDB) DeleteItem(ctx context.Context, in *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk := rowKey(in.Key)
	delete(m.table, pk)
	return &dyn.DeleteItemOutput{}, nil
}

func (m *fakeDynamoDB) TransactWriteItems(ctx context.Context, in *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	return &dyn.TransactWriteItemsOutput{}, nil
}

func TestDynamoDBStore_PutConditionalSuccess(t *testing.T) {
	client := newFakeDynamoDB()
	s := NewDynamoDBStore(client, "idempotency")
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	rec := DataRecord{
		IdempotencyKey:     "fn#abc",
		Status:             StatusInProgress,
		ExpiryTimestamp:    now.Add(time.Hour).Unix(),
		InProgressExpiryMs: now.Add(30 * time.Second).UnixMilli(),
	}
	require.NoError(t, s.Put(ctx, rec, now))

	got, err := s.Get(ctx, "fn#abc")
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, got.Status)
}

func TestDynamoDBStore_PutConditionalFailure(t *testing.T) {
	client := newFakeDynamoDB()
	s := NewDynamoDBStore(client, "idempotency")
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	rec := DataRecord{
		IdempotencyKey:     "fn#abc",
		Status:             StatusInProgress,
		ExpiryTimestamp:    now.Add(time.Hour).Unix(),
		InProgressExpiryMs: now.Add(30 * time.Second).UnixMilli(),
	}
	require.NoError(t, s.Put(ctx, rec, now))
	require.ErrorIs(t, s.Put(ctx, rec, now), ErrItemAlreadyExists)
}

func TestDynamoDBStore_PutSucceedsOverLapsedLease(t *testing.T) {
	client := newFakeDynamoDB()
	s := NewDynamoDBStore(client, "idempotency")
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	stale := DataRecord{
		IdempotencyKey:     "fn#abc",
		Status:             StatusInProgress,
		ExpiryTimestamp:    now.Add(time.Hour).Unix(),
		InProgressExpiryMs: now.Add(-time.Second).UnixMilli(),
	}
	require.NoError(t, s.Put(ctx, stale, now.Add(-2*time.Second)))

	fresh := stale
	fresh.InProgressExpiryMs = now.Add(30 * time.Second).UnixMilli()
	require.NoError(t, s.Put(ctx, fresh, now), "expected put to succeed over lapsed lease")
}

func TestDynamoDBStore_GetNotFound(t *testing.T) {
	client := newFakeDynamoDB()
	s := NewDynamoDBStore(client, "idempotency")
	_, err := s.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestDynamoDBStore_CompositeKeyMode(t *testing.T) {
	client := newFakeDynamoDB()
	columns := DefaultColumnMap()
	columns.PartitionKeyAttr = "pk"
	columns.SortKeyAttr = "sk"
	columns.StaticPartitionValue = "idempotency"
	s := NewDynamoDBStoreWithColumns(client, "idempotency", columns)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	rec := DataRecord{
		IdempotencyKey:     "fn#xyz",
		Status:             StatusInProgress,
		ExpiryTimestamp:    now.Add(time.Hour).Unix(),
		InProgressExpiryMs: now.Add(30 * time.Second).UnixMilli(),
	}
	require.NoError(t, s.Put(ctx, rec, now))
	got, err := s.Get(ctx, "fn#xyz")
	require.NoError(t, err)
	require.Equal(t, "fn#xyz", got.IdempotencyKey)
}

func TestDynamoDBStore_Delete(t *testing.T) {
	client := newFakeDynamoDB()
	s := NewDynamoDBStore(client, "idempotency")
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	rec := DataRecord{IdempotencyKey: "fn#abc", Status: StatusInProgress, ExpiryTimestamp: now.Add(time.Hour).Unix()}
	require.NoError(t, s.Put(ctx, rec, now))
	require.NoError(t, s.Delete(ctx, "fn#abc"))
	_, err := s.Get(ctx, "fn#abc")
	require.ErrorIs(t, err, ErrItemNotFound)
}
