package idempotency

import (
	"time"

	"github.com/cockroachdb/errors"
)

// Internal store-level errors. These never escape the Handler — they are
// consumed internally to decide the next state transition.
var (
	// ErrItemAlreadyExists is returned by Store.Put when the conditional
	// write loses the race: a live row already occupies the key.
	ErrItemAlreadyExists = errors.New("idempotency: item already exists")
	// ErrItemNotFound is returned by Store.Get when no row exists for the key.
	ErrItemNotFound = errors.New("idempotency: item not found")
)

// Sentinel marker errors. These are never returned directly — they are
// attached to a concrete cause with errors.Mark so callers can classify a
// failure with errors.Is without caring which Store implementation or code
// path produced it.
var (
	// ErrPersistenceOperationFailed marks any PersistenceLayerError cause:
	// a network failure, a throttled request, or a malformed stored row.
	ErrPersistenceOperationFailed = errors.New("idempotency: persistence operation failed")
	// ErrMalformedRecord marks a PersistenceLayerError whose cause is a
	// stored row that failed to decode into a DataRecord.
	ErrMalformedRecord = errors.New("idempotency: malformed record")
	// ErrConfigurationInvalid marks every ConfigurationError cause.
	ErrConfigurationInvalid = errors.New("idempotency: invalid configuration")
)

// AlreadyInProgressError is user-visible: it signals a live duplicate
// execution elsewhere. The caller (the host runtime) is expected to retry
// later rather than block.
type AlreadyInProgressError struct {
	Key            string
	LeaseExpiresAt time.Time
}

func (e *AlreadyInProgressError) Error() string {
	return "idempotency: execution already in progress for key " + e.Key
}

// NewAlreadyInProgressError constructs an AlreadyInProgressError reporting
// the other lease's expiry, derived from the stored row's InProgressExpiryMs.
func NewAlreadyInProgressError(key string, leaseExpiresAt time.Time) *AlreadyInProgressError {
	return &AlreadyInProgressError{Key: key, LeaseExpiresAt: leaseExpiresAt}
}

// PayloadValidationFailedError is user-visible: the recomputed validation
// hash did not match the one stored alongside a prior completion, indicating
// either a key collision or a tampered retry.
type PayloadValidationFailedError struct {
	Key string
}

func (e *PayloadValidationFailedError) Error() string {
	return "idempotency: payload validation failed for key " + e.Key
}

// NewPayloadValidationFailedError constructs a PayloadValidationFailedError.
func NewPayloadValidationFailedError(key string) *PayloadValidationFailedError {
	return &PayloadValidationFailedError{Key: key}
}

// KeyExtractionFailedError is user-visible, surfaced only when
// Config.RaiseOnNoIdempotencyKey is true and the selector found nothing.
type KeyExtractionFailedError struct {
	Expression string
}

func (e *KeyExtractionFailedError) Error() string {
	return "idempotency: no value found for selector " + e.Expression
}

// NewKeyExtractionFailedError constructs a KeyExtractionFailedError.
func NewKeyExtractionFailedError(expr string) *KeyExtractionFailedError {
	return &KeyExtractionFailedError{Expression: expr}
}

// PersistenceLayerError wraps any unexpected backend failure: network,
// throttling, malformed row, or exhaustion of the lease-recovery retry bound.
// The cause is marked with ErrPersistenceOperationFailed (and, for a decode
// failure, also ErrMalformedRecord) so callers can classify it with
// errors.Is without depending on a concrete Store implementation.
type PersistenceLayerError struct {
	cause error
}

func (e *PersistenceLayerError) Error() string {
	return "idempotency: persistence layer error: " + e.cause.Error()
}

func (e *PersistenceLayerError) Unwrap() error { return e.cause }

// NewPersistenceLayerError marks cause with ErrPersistenceOperationFailed and
// wraps it as a PersistenceLayerError. Returns nil if cause is nil, so it is
// safe to write `if err := ...; err != nil { return NewPersistenceLayerError(err) }`.
func NewPersistenceLayerError(cause error) error {
	if cause == nil {
		return nil
	}
	marked := errors.Mark(cause, ErrPersistenceOperationFailed)
	return &PersistenceLayerError{
		cause: errors.WithHint(marked, "retry the operation; if this persists, check backend connectivity and conditional-write throttling"),
	}
}

// NewMalformedRecordError marks cause with both ErrMalformedRecord and
// ErrPersistenceOperationFailed: a stored row that a Store implementation
// could not decode back into a DataRecord.
func NewMalformedRecordError(cause error) error {
	if cause == nil {
		return nil
	}
	marked := errors.Mark(cause, ErrMalformedRecord)
	return NewPersistenceLayerError(marked)
}

// ConfigurationError is returned at construction time for invalid Config
// values (non-positive TTL, missing selector when required, and so on). It
// is never returned from a live invocation. cause is marked with
// ErrConfigurationInvalid so validation failures can be recognized uniformly
// regardless of which field tripped it.
type ConfigurationError struct {
	cause error
}

func (e *ConfigurationError) Error() string {
	return "idempotency: configuration error: " + e.cause.Error()
}

func (e *ConfigurationError) Unwrap() error { return e.cause }

// NewConfigurationError marks cause with ErrConfigurationInvalid and wraps it
// as a ConfigurationError.
func NewConfigurationError(cause error) error {
	if cause == nil {
		return nil
	}
	return &ConfigurationError{cause: errors.Mark(cause, ErrConfigurationInvalid)}
}

// IsAlreadyInProgress reports whether err (or a wrapped cause) is an
// AlreadyInProgressError.
func IsAlreadyInProgress(err error) bool {
	var target *AlreadyInProgressError
	return errors.As(err, &target)
}

// IsPayloadValidationFailed reports whether err (or a wrapped cause) is a
// PayloadValidationFailedError.
func IsPayloadValidationFailed(err error) bool {
	var target *PayloadValidationFailedError
	return errors.As(err, &target)
}

// IsPersistenceFailure reports whether err (or a wrapped cause) was marked
// with ErrPersistenceOperationFailed.
func IsPersistenceFailure(err error) bool {
	return errors.Is(err, ErrPersistenceOperationFailed)
}

// IsMalformedRecord reports whether err (or a wrapped cause) was marked with
// ErrMalformedRecord — a stored row a Store implementation could not decode.
func IsMalformedRecord(err error) bool {
	return errors.Is(err, ErrMalformedRecord)
}

// IsConfigurationError reports whether err (or a wrapped cause) was marked
// with ErrConfigurationInvalid.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfigurationInvalid)
}
