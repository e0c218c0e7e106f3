package idempotency

import (
	"context"
	"time"
)

// Store is the persistence capability the Handler drives. Every
// implementation — DynamoDBStore, InMemoryStore, or a future relational one
// — must honor the conditional-write semantics of Put below; if the backend
// cannot express the condition natively, the implementation must emulate it
// with a transaction or equivalent isolation.
type Store interface {
	// Put inserts a new INPROGRESS row for record.IdempotencyKey. It must
	// succeed atomically iff no row currently exists for the key, OR the
	// existing row is logically absent per DataRecord.Expired(now). On
	// contention it returns ErrItemAlreadyExists wrapping (or alongside) the
	// existing row, obtainable via Get.
	Put(ctx context.Context, record DataRecord, now time.Time) error
	// Get returns the stored record for key, or ErrItemNotFound. Get does
	// not adjust Status to EXPIRED itself — callers use
	// DataRecord.EffectiveStatus for that — since different callers need
	// the raw stored status (to build an update) and the effective one (to
	// decide whether to treat it as stale).
	Get(ctx context.Context, key string) (DataRecord, error)
	// Update unconditionally overwrites Status, ExpiryTimestamp,
	// ResponseData and PayloadHash for record.IdempotencyKey.
	Update(ctx context.Context, record DataRecord) error
	// Delete unconditionally removes the row for key. Implementations
	// should treat deleting an absent key as a no-op, not an error: callers
	// use Delete as a best-effort cleanup after a failed execution.
	Delete(ctx context.Context, key string) error
}

// ColumnMap overrides the physical attribute names a Store implementation
// uses, and optionally switches it into composite-key mode (a static
// partition key plus a sort key holding the idempotency key). Semantics are
// unchanged either way — this only affects how a DataRecord is laid out on
// the wire.
type ColumnMap struct {
	// PartitionKeyAttr is the partition key attribute name. Default "id".
	PartitionKeyAttr string
	// SortKeyAttr, when non-empty, names the sort key attribute and puts
	// the store into composite-key mode: PartitionKeyAttr becomes
	// StaticPartitionValue (a literal, the same on every row) and
	// SortKeyAttr holds the idempotency key instead.
	SortKeyAttr string
	// StaticPartitionValue is the literal partition key value used when
	// SortKeyAttr is set.
	StaticPartitionValue string
	// StatusAttr names the status attribute. Default "status".
	StatusAttr string
	// ExpiryAttr names the TTL attribute (unix seconds). Default "expiration".
	ExpiryAttr string
	// InProgressExpiryAttr names the lease attribute (unix milliseconds).
	// Default "in_progress_expiration".
	InProgressExpiryAttr string
	// ResponseDataAttr names the response payload attribute. Default "data".
	ResponseDataAttr string
	// PayloadHashAttr names the validation hash attribute. Default "validation".
	PayloadHashAttr string
}

// DefaultColumnMap returns the default physical attribute layout.
func DefaultColumnMap() ColumnMap {
	return ColumnMap{
		PartitionKeyAttr:     "id",
		StatusAttr:           "status",
		ExpiryAttr:           "expiration",
		InProgressExpiryAttr: "in_progress_expiration",
		ResponseDataAttr:     "data",
		PayloadHashAttr:      "validation",
	}
}

// withDefaults fills in any zero-valued attribute names with their defaults,
// leaving an explicitly configured composite-key mode intact.
func (m ColumnMap) withDefaults() ColumnMap {
	d := DefaultColumnMap()
	if m.PartitionKeyAttr == "" {
		m.PartitionKeyAttr = d.PartitionKeyAttr
	}
	if m.StatusAttr == "" {
		m.StatusAttr = d.StatusAttr
	}
	if m.ExpiryAttr == "" {
		m.ExpiryAttr = d.ExpiryAttr
	}
	if m.InProgressExpiryAttr == "" {
		m.InProgressExpiryAttr = d.InProgressExpiryAttr
	}
	if m.ResponseDataAttr == "" {
		m.ResponseDataAttr = d.ResponseDataAttr
	}
	if m.PayloadHashAttr == "" {
		m.PayloadHashAttr = d.PayloadHashAttr
	}
	return m
}

// usesCompositeKey reports whether this mapping splits the primary key into
// a static partition key plus a sort key.
func (m ColumnMap) usesCompositeKey() bool {
	return m.SortKeyAttr != ""
}
