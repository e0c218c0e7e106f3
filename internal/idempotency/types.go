package idempotency

import "time"

// Status is the lifecycle state of a DataRecord.
type Status string

const (
	// StatusInProgress marks a row whose user function is currently
	// executing (or presumed to be — its lease may have lapsed).
	StatusInProgress Status = "INPROGRESS"
	// StatusCompleted marks a row carrying a stored ResponseData.
	StatusCompleted Status = "COMPLETED"
	// StatusExpired is never written. It is assigned on read when a row's
	// ExpiryTimestamp has passed; see DataRecord.Expired.
	StatusExpired Status = "EXPIRED"
)

// DataRecord is the persisted shape of a single idempotency row.
type DataRecord struct {
	// IdempotencyKey is the primary lookup key: "{function_name}#{hex_digest}".
	IdempotencyKey string
	// Status is INPROGRESS or COMPLETED as stored. EXPIRED is derived, see Expired.
	Status Status
	// ExpiryTimestamp is unix seconds: when the row becomes meaningless.
	// now + ExecutionTimeout-derived for INPROGRESS rows is wrong — it is
	// always now + RecordTTL, so a row surviving past lease expiry is still
	// found (and recognized as stale) rather than vanishing from GetItem.
	ExpiryTimestamp int64
	// InProgressExpiryMs is unix milliseconds: the lease deadline. Zero for
	// COMPLETED rows.
	InProgressExpiryMs int64
	// ResponseData is the serialized successful return value. Always
	// non-empty when Status == StatusCompleted.
	ResponseData string
	// PayloadHash is the hash of the validation subtree, present only when
	// payload validation is configured.
	PayloadHash string
}

// Expired reports whether the record is logically absent at instant now:
// either its ExpiryTimestamp has passed, or it is an in-progress row whose
// lease has lapsed.
func (r DataRecord) Expired(now time.Time) bool {
	if r.ExpiryTimestamp <= now.Unix() {
		return true
	}
	if r.Status == StatusInProgress && r.InProgressExpiryMs <= now.UnixMilli() {
		return true
	}
	return false
}

// EffectiveStatus returns StatusExpired instead of the stored status when
// the record is logically absent, without mutating the stored row.
func (r DataRecord) EffectiveStatus(now time.Time) Status {
	if r.Expired(now) {
		return StatusExpired
	}
	return r.Status
}
