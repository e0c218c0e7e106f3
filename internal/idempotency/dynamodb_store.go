package idempotency

import (
	"context"
	"fmt"
	"strconv"
	"time"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/cockroachdb/errors"

	"github.com/imrishuroy/go-idempotent-orderflow/internal/awsx"
)

// DynamoDBStore is the DynamoDB-backed implementation of Store. It
// implements the conditional-write contract directly: a single PutItem call
// whose ConditionExpression covers both "no row exists" and "the existing
// row is logically absent" (TTL-expired, or an INPROGRESS row whose lease
// has lapsed).
type DynamoDBStore struct {
	client    awsx.DynamoDBAPI
	tableName string
	columns   ColumnMap
}

// NewDynamoDBStore returns a Store backed by tableName using the default
// column mapping. Use NewDynamoDBStoreWithColumns for a custom layout or
// composite-key mode.
func NewDynamoDBStore(client awsx.DynamoDBAPI, tableName string) *DynamoDBStore {
	return NewDynamoDBStoreWithColumns(client, tableName, DefaultColumnMap())
}

// NewDynamoDBStoreWithColumns returns a Store with an overridden column mapping.
func NewDynamoDBStoreWithColumns(client awsx.DynamoDBAPI, tableName string, columns ColumnMap) *DynamoDBStore {
	return &DynamoDBStore{
		client:    client,
		tableName: tableName,
		columns:   columns.withDefaults(),
	}
}

func (s *DynamoDBStore) keyAttrs(key string) map[string]types.AttributeValue {
	c := s.columns
	if c.usesCompositeKey() {
		return map[string]types.AttributeValue{
			c.PartitionKeyAttr: &types.AttributeValueMemberS{Value: c.StaticPartitionValue},
			c.SortKeyAttr:      &types.AttributeValueMemberS{Value: key},
		}
	}
	return map[string]types.AttributeValue{
		c.PartitionKeyAttr: &types.AttributeValueMemberS{Value: key},
	}
}

func (s *DynamoDBStore) itemFor(record DataRecord) map[string]types.AttributeValue {
	c := s.columns
	item := s.keyAttrs(record.IdempotencyKey)
	item[c.StatusAttr] = &types.AttributeValueMemberS{Value: string(record.Status)}
	item[c.ExpiryAttr] = &types.AttributeValueMemberN{Value: strconv.FormatInt(record.ExpiryTimestamp, 10)}
	item[c.InProgressExpiryAttr] = &types.AttributeValueMemberN{Value: strconv.FormatInt(record.InProgressExpiryMs, 10)}
	if record.ResponseData != "" {
		item[c.ResponseDataAttr] = &types.AttributeValueMemberS{Value: record.ResponseData}
	}
	if record.PayloadHash != "" {
		item[c.PayloadHashAttr] = &types.AttributeValueMemberS{Value: record.PayloadHash}
	}
	return item
}

func (s *DynamoDBStore) recordFrom(item map[string]types.AttributeValue) (DataRecord, error) {
	c := s.columns
	var rec DataRecord

	if c.usesCompositeKey() {
		sk, ok := item[c.SortKeyAttr].(*types.AttributeValueMemberS)
		if !ok {
			return DataRecord{}, NewMalformedRecordError(errors.New("idempotency: item missing sort key attribute"))
		}
		rec.IdempotencyKey = sk.Value
	} else {
		pk, ok := item[c.PartitionKeyAttr].(*types.AttributeValueMemberS)
		if !ok {
			return DataRecord{}, NewMalformedRecordError(errors.New("idempotency: item missing partition key attribute"))
		}
		rec.IdempotencyKey = pk.Value
	}

	if st, ok := item[c.StatusAttr].(*types.AttributeValueMemberS); ok {
		rec.Status = Status(st.Value)
	}
	if exp, ok := item[c.ExpiryAttr].(*types.AttributeValueMemberN); ok {
		v, err := strconv.ParseInt(exp.Value, 10, 64)
		if err != nil {
			return DataRecord{}, NewMalformedRecordError(errors.Wrapf(err, "parse %s", c.ExpiryAttr))
		}
		rec.ExpiryTimestamp = v
	}
	if lexp, ok := item[c.InProgressExpiryAttr].(*types.AttributeValueMemberN); ok {
		v, err := strconv.ParseInt(lexp.Value, 10, 64)
		if err != nil {
			return DataRecord{}, NewMalformedRecordError(errors.Wrapf(err, "parse %s", c.InProgressExpiryAttr))
		}
		rec.InProgressExpiryMs = v
	}
	if rb, ok := item[c.ResponseDataAttr].(*types.AttributeValueMemberS); ok {
		rec.ResponseData = rb.Value
	}
	if ph, ok := item[c.PayloadHashAttr].(*types.AttributeValueMemberS); ok {
		rec.PayloadHash = ph.Value
	}
	return rec, nil
}

// conditionExpression builds the store's reference condition:
//
//	attribute_not_exists(pk) OR expiration <= :now OR (status = :inprogress AND in_progress_expiration <= :now_ms)
//
// The comparisons match DataRecord.Expired, so a row the handler sees as
// stale is also one this Put may overwrite.
//
// In composite-key mode the "no row" branch checks the sort key instead of
// the partition key, since the partition key is a shared literal.
func (s *DynamoDBStore) conditionExpression() string {
	c := s.columns
	existsAttr := c.PartitionKeyAttr
	if c.usesCompositeKey() {
		existsAttr = c.SortKeyAttr
	}
	return fmt.Sprintf(
		"attribute_not_exists(%s) OR #exp <= :now OR (#st = :inprogress AND #lexp <= :now_ms)",
		existsAttr,
	)
}

// Put implements Store.Put via a single conditional PutItem call.
func (s *DynamoDBStore) Put(ctx context.Context, record DataRecord, now time.Time) error {
	c := s.columns
	item := s.itemFor(record)
	cond := s.conditionExpression()

	input := &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: &cond,
		ExpressionAttributeNames: map[string]string{
			"#exp":  c.ExpiryAttr,
			"#st":   c.StatusAttr,
			"#lexp": c.InProgressExpiryAttr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now":        &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
			":now_ms":     &types.AttributeValueMemberN{Value: strconv.FormatInt(now.UnixMilli(), 10)},
			":inprogress": &types.AttributeValueMemberS{Value: string(StatusInProgress)},
		},
	}

	_, err := s.client.PutItem(ctx, input)
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException" {
			return ErrItemAlreadyExists
		}
		return NewPersistenceLayerError(errors.Wrap(err, "put item"))
	}
	return nil
}

// Get implements Store.Get.
func (s *DynamoDBStore) Get(ctx context.Context, key string) (DataRecord, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       s.keyAttrs(key),
	})
	if err != nil {
		return DataRecord{}, NewPersistenceLayerError(errors.Wrap(err, "get item"))
	}
	if len(out.Item) == 0 {
		return DataRecord{}, ErrItemNotFound
	}
	rec, err := s.recordFrom(out.Item)
	if err != nil {
		return DataRecord{}, err
	}
	return rec, nil
}

// Update implements Store.Update via an unconditional PutItem (overwriting
// the row entirely is simpler and no less correct than a SET expression
// here, since the caller always supplies the full desired row).
func (s *DynamoDBStore) Update(ctx context.Context, record DataRecord) error {
	_, err := s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      s.itemFor(record),
	})
	if err != nil {
		return NewPersistenceLayerError(errors.Wrap(err, "update (put) item"))
	}
	return nil
}

// Delete implements Store.Delete.
func (s *DynamoDBStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName: &s.tableName,
		Key:       s.keyAttrs(key),
	})
	if err != nil {
		return NewPersistenceLayerError(errors.Wrap(err, "delete item"))
	}
	return nil
}
