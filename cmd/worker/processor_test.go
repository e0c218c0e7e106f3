package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	awsDynamo "github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-idempotent-orderflow/internal/awsx"
	"github.com/imrishuroy/go-idempotent-orderflow/internal/hashing"
	"github.com/imrishuroy/go-idempotent-orderflow/internal/idempotency"
	"github.com/imrishuroy/go-idempotent-orderflow/internal/orders"
)

// mockDynamo is a minimal stand-in for the DynamoDB client, servicing both
// the orders table and the idempotency table's "id" partition key.
type mockDynamo struct {
	tables map[string]map[string]map[string]types.AttributeValue
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{
		tables: map[string]map[string]map[string]types.AttributeValue{
			"idempotency": {},
			"orders":      {},
		},
	}
}

func rowKeyFor(m map[string]types.AttributeValue) string {
	for _, attr := range []string{"order_id", "id", "idempotency_key"} {
		if v, ok := m[attr].(*types.AttributeValueMemberS); ok {
			return v.Value
		}
	}
	return ""
}

func (m *mockDynamo) PutItem(ctx context.Context, in *awsDynamo.PutItemInput, optFns ...func(*awsDynamo.Options)) (*awsDynamo.PutItemOutput, error) {
	table := *in.TableName
	m.tables[table][rowKeyFor(in.Item)] = in.Item
	return &awsDynamo.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, in *awsDynamo.GetItemInput, optFns ...func(*awsDynamo.Options)) (*awsDynamo.GetItemOutput, error) {
	table := *in.TableName
	item, ok := m.tables[table][rowKeyFor(in.Key)]
	if !ok {
		return &awsDynamo.GetItemOutput{}, nil
	}
	return &awsDynamo.GetItemOutput{Item: item}, nil
}

func (m *mockDynamo) UpdateItem(ctx context.Context, in *awsDynamo.UpdateItemInput, optFns ...func(*awsDynamo.Options)) (*awsDynamo.UpdateItemOutput, error) {
	table := *in.TableName
	k := rowKeyFor(in.Key)

	_, ok := m.tables[table][k]
	if !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}

	m.tables[table][k]["status"] = in.ExpressionAttributeValues[":new"]
	return &awsDynamo.UpdateItemOutput{}, nil
}

func (m *mockDynamo) DeleteItem(ctx context.Context, in *awsDynamo.DeleteItemInput, optFns ...func(*awsDynamo.Options)) (*awsDynamo.DeleteItemOutput, error) {
	table := *in.TableName
	delete(m.tables[table], rowKeyFor(in.Key))
	return &awsDynamo.DeleteItemOutput{}, nil
}

func (m *mockDynamo) TransactWriteItems(ctx context.Context, in *awsDynamo.TransactWriteItemsInput, optFns ...func(*awsDynamo.Options)) (*awsDynamo.TransactWriteItemsOutput, error) {
	return &awsDynamo.TransactWriteItemsOutput{}, nil
}

func TestWorkerProcess_Success(t *testing.T) {
	mock := newMockDynamo()

	order := orders.Order{
		OrderID:    "o1",
		CustomerID: "c1",
		Status:     orders.StatusPending,
		Amount:     10,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	item, _ := attributevalue.MarshalMap(order)
	mock.tables["orders"]["o1"] = item

	key, err := idempotency.DeriveKey(createOrderFunctionName, "k1", hashing.AlgorithmMD5)
	require.NoError(t, err)
	mock.tables["idempotency"][key] = map[string]types.AttributeValue{
		"id":                     &types.AttributeValueMemberS{Value: key},
		"status":                 &types.AttributeValueMemberS{Value: string(idempotency.StatusInProgress)},
		"expiration":             &types.AttributeValueMemberN{Value: "9999999999"},
		"in_progress_expiration": &types.AttributeValueMemberN{Value: "9999999999999"},
	}

	clients := &awsx.AWSClients{DynamoDB: mock}
	p := NewProcessor(clients, "idempotency", "orders")

	msg := WorkerMessage{
		OrderID:        "o1",
		IdempotencyKey: "k1",
	}
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	ev := events.SQSEvent{
		Records: []events.SQSMessage{
			{Body: string(body)},
		},
	}

	require.NoError(t, p.Handle(context.Background(), ev))

	got, ok := mock.tables["idempotency"][key]
	require.True(t, ok, "expected idempotency row to still exist")
	status := got["status"].(*types.AttributeValueMemberS).Value
	require.Equal(t, string(idempotency.StatusCompleted), status)
}

// TestWorkerProcess_DoesNotClobberAlreadyCompletedResponse guards against a
// race between a client's duplicate request and the worker's async
// completion: once the handler middleware has already transitioned a row to
// COMPLETED and recorded the response it returned to the caller, the worker
// must not overwrite that response with its own view of the outcome.
func TestWorkerProcess_DoesNotClobberAlreadyCompletedResponse(t *testing.T) {
	mock := newMockDynamo()

	order := orders.Order{
		OrderID:    "o1",
		CustomerID: "c1",
		Status:     orders.StatusPending,
		Amount:     10,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	item, err := attributevalue.MarshalMap(order)
	require.NoError(t, err)
	mock.tables["orders"]["o1"] = item

	key, err := idempotency.DeriveKey(createOrderFunctionName, "k1", hashing.AlgorithmMD5)
	require.NoError(t, err)

	originalResponse := `{"order_id":"o1","status":"PENDING"}`
	mock.tables["idempotency"][key] = map[string]types.AttributeValue{
		"id":         &types.AttributeValueMemberS{Value: key},
		"status":     &types.AttributeValueMemberS{Value: string(idempotency.StatusCompleted)},
		"expiration": &types.AttributeValueMemberN{Value: "9999999999"},
		"data":       &types.AttributeValueMemberS{Value: originalResponse},
	}

	clients := &awsx.AWSClients{DynamoDB: mock}
	p := NewProcessor(clients, "idempotency", "orders")

	msg := WorkerMessage{OrderID: "o1", IdempotencyKey: "k1"}
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	ev := events.SQSEvent{Records: []events.SQSMessage{{Body: string(body)}}}

	require.NoError(t, p.Handle(context.Background(), ev))

	got, ok := mock.tables["idempotency"][key]
	require.True(t, ok)
	require.Equal(t, originalResponse, got["data"].(*types.AttributeValueMemberS).Value,
		"worker must not overwrite the response the middleware already returned to the caller")
}
