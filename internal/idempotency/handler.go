package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-idempotent-orderflow/internal/awsx"
	"github.com/imrishuroy/go-idempotent-orderflow/internal/hashing"
	"github.com/imrishuroy/go-idempotent-orderflow/internal/selector"
)

// maxPutRetries bounds the lease-expiry retry loop in acquireOrObserve: at
// most this many extra attempts to re-Put after observing a stale row, to
// avoid livelock against a backend that keeps handing back expired rows.
const maxPutRetries = 2

// IdempotentFunc is the handler entry-point contract: a function that takes
// an opaque event and returns a response of type T. event stands in for
// "event plus invocation handle" — the invocation handle itself is an
// out-of-scope collaborator the middleware never touches, so it is not
// threaded through this signature.
type IdempotentFunc[T any] func(ctx context.Context, event any) (T, error)

// Handler wraps a user function and drives the NEW -> INPROGRESS ->
// COMPLETED|EXPIRED state machine against a Store. Handler itself is not
// generic — the response type only matters at the point a specific user
// function is wrapped, via MakeIdempotent — so one Handler can protect
// multiple differently-typed functions sharing the same key/cache/store
// configuration.
type Handler struct {
	store        Store
	cache        *lruCache
	config       Config
	functionName string

	keySelector        *selector.Selector
	validationSelector *selector.Selector

	clock   func() time.Time
	logger  *zap.Logger
	metrics *awsx.MetricsEmitter
}

// HandlerOption configures optional Handler collaborators.
type HandlerOption func(*Handler)

// WithLogger attaches a structured logger. A nil logger (the default) is
// replaced with zap.NewNop() so every call site can log unconditionally.
func WithLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMetrics attaches a CloudWatch metrics emitter. Emission is always
// best-effort and never affects the handler's outcome.
func WithMetrics(m *awsx.MetricsEmitter) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

// WithClock overrides the handler's source of "now". Intended for tests
// that need to simulate lease expiry deterministically.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// New compiles the selectors named in cfg, builds the local cache if
// configured, and returns a ready Handler bound to store and functionName.
// Selectors are compiled exactly once here, never per invocation.
func New(store Store, functionName string, cfg Config, opts ...HandlerOption) (*Handler, error) {
	keySel, err := selector.Compile(cfg.EventKeyJMESPath)
	if err != nil {
		return nil, NewConfigurationError(errors.Wrap(err, "event_key_jmes"))
	}

	var validationSel *selector.Selector
	if cfg.PayloadValidationJMESPath != "" {
		validationSel, err = selector.Compile(cfg.PayloadValidationJMESPath)
		if err != nil {
			return nil, NewConfigurationError(errors.Wrap(err, "payload_validation_jmes"))
		}
	}

	var cache *lruCache
	if cfg.UseLocalCache {
		cache, err = newLRUCache(cfg.LocalCacheMaxItems)
		if err != nil {
			return nil, NewConfigurationError(errors.Wrap(err, "local cache"))
		}
	}

	h := &Handler{
		store:              store,
		cache:              cache,
		config:             cfg,
		functionName:       functionName,
		keySelector:        keySel,
		validationSelector: validationSel,
		clock:              time.Now,
		logger:             zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// MakeIdempotent wraps fn with h's idempotency guarantee. The returned
// function has the exact same signature as fn: callers get duplicate
// suppression by wrapping, not by annotating the handler.
//
// Go methods cannot carry their own type parameters, so the state machine
// itself lives in the package-level generic function handle below; this is
// purely the public entry point.
func MakeIdempotent[T any](h *Handler, fn IdempotentFunc[T]) IdempotentFunc[T] {
	return func(ctx context.Context, event any) (T, error) {
		if Disabled() {
			return fn(ctx, event)
		}
		return handle(ctx, h, event, fn)
	}
}

// handle implements the full state machine: entry (selector bypass), the
// local-cache fast path, the conditional Put and its three possible
// outcomes, and execution of fn on the winning path.
func handle[T any](ctx context.Context, h *Handler, event any, fn IdempotentFunc[T]) (T, error) {
	var zero T

	keyValue, found := h.keySelector.Evaluate(event)
	if !found {
		if h.config.RaiseOnNoIdempotencyKey {
			return zero, NewKeyExtractionFailedError(h.keySelector.Expression())
		}
		h.logger.Debug("idempotency bypassed: selector found no value",
			zap.String("function", h.functionName),
			zap.String("selector", h.keySelector.Expression()))
		return fn(ctx, event)
	}

	key, err := DeriveKey(h.functionName, keyValue, h.config.HashFunction)
	if err != nil {
		return zero, NewPersistenceLayerError(errors.Wrap(err, "hash idempotency key"))
	}

	payloadHash, err := h.computePayloadHash(event)
	if err != nil {
		return zero, NewPersistenceLayerError(errors.Wrap(err, "hash validation payload"))
	}

	if h.cache != nil {
		if cached, ok := h.cache.get(key, h.clock()); ok {
			return respondFromRecord[T](ctx, h, key, cached, payloadHash)
		}
	}

	record, shouldExecute, err := h.acquireOrObserve(ctx, key, payloadHash)
	if err != nil {
		return zero, err
	}
	if !shouldExecute {
		return respondFromRecord[T](ctx, h, key, record, payloadHash)
	}

	result, fnErr := fn(ctx, event)
	if fnErr != nil {
		if delErr := h.store.Delete(ctx, key); delErr != nil {
			h.logger.Warn("idempotency: failed to clean up in-progress row after function failure",
				zap.String("key", key), zap.Error(delErr))
		}
		if h.cache != nil {
			h.cache.remove(key)
		}
		return zero, fnErr
	}

	responseData, err := json.Marshal(result)
	if err != nil {
		return zero, NewPersistenceLayerError(errors.Wrap(err, "serialize response"))
	}

	now := h.clock()
	completed := DataRecord{
		IdempotencyKey:  key,
		Status:          StatusCompleted,
		ExpiryTimestamp: now.Add(h.config.RecordTTL).Unix(),
		ResponseData:    string(responseData),
		PayloadHash:     payloadHash,
	}
	if err := h.store.Update(ctx, completed); err != nil {
		h.logger.Error("idempotency: failed to persist completed record; duplicate suppression for this key will lapse at lease expiry",
			zap.String("key", key), zap.Error(err))
	}
	if h.cache != nil {
		h.cache.add(completed)
	}
	h.emitMetric(ctx, awsx.MetricSuccessfulCompletion)
	return result, nil
}

// acquireOrObserve attempts the conditional Put, and on contention resolves
// the duplicate against the existing row's lease and status. It returns
// (zero DataRecord, true, nil) when the caller won the race and should
// execute fn, or (existingRecord, false, nil) when the caller should
// respond from existingRecord instead.
func (h *Handler) acquireOrObserve(ctx context.Context, key, payloadHash string) (DataRecord, bool, error) {
	for attempt := 0; attempt <= maxPutRetries; attempt++ {
		now := h.clock()
		candidate := DataRecord{
			IdempotencyKey:     key,
			Status:             StatusInProgress,
			ExpiryTimestamp:    now.Add(h.config.RecordTTL).Unix(),
			InProgressExpiryMs: now.Add(h.config.ExecutionTimeout).UnixMilli(),
			PayloadHash:        payloadHash,
		}

		err := h.store.Put(ctx, candidate, now)
		if err == nil {
			return DataRecord{}, true, nil
		}
		if !isAlreadyExists(err) {
			return DataRecord{}, false, NewPersistenceLayerError(errors.Wrap(err, "put idempotency record"))
		}

		existing, getErr := h.store.Get(ctx, key)
		if getErr != nil {
			return DataRecord{}, false, NewPersistenceLayerError(errors.Wrap(getErr, "get existing idempotency record"))
		}

		switch existing.EffectiveStatus(now) {
		case StatusExpired:
			h.logger.Debug("idempotency: observed stale record, retrying put",
				zap.String("key", key), zap.Int("attempt", attempt))
			h.emitMetric(ctx, awsx.MetricLeaseRecovered)
			continue
		case StatusCompleted:
			return existing, false, nil
		default:
			// Live INPROGRESS lease: do not block-wait, fail fast.
			h.emitMetric(ctx, awsx.MetricAlreadyInProgress)
			leaseExpiry := time.UnixMilli(existing.InProgressExpiryMs)
			return DataRecord{}, false, NewAlreadyInProgressError(key, leaseExpiry)
		}
	}
	return DataRecord{}, false, NewPersistenceLayerError(
		errors.Newf("exceeded retry bound (%d) recovering from stale idempotency record for key %s", maxPutRetries, key))
}

// respondFromRecord validates the stored payload hash, if configured, then
// deserializes and returns the stored response.
func respondFromRecord[T any](ctx context.Context, h *Handler, key string, record DataRecord, payloadHash string) (T, error) {
	var zero T

	if h.validationSelector != nil && record.PayloadHash != "" && record.PayloadHash != payloadHash {
		h.emitMetric(ctx, awsx.MetricValidationFailure)
		return zero, NewPayloadValidationFailedError(key)
	}

	if h.cache != nil {
		h.cache.add(record)
	}

	var result T
	if record.ResponseData == "" {
		return zero, nil
	}
	if err := json.Unmarshal([]byte(record.ResponseData), &result); err != nil {
		return zero, NewPersistenceLayerError(errors.Wrapf(err, "deserialize stored response for key %s", key))
	}
	return result, nil
}

// computePayloadHash returns the validation hash for event, or "" when
// payload validation is not configured. A selector that finds nothing still
// hashes (a consistent "nil") rather than skipping validation, so two events
// that both omit the validation subtree are treated as matching rather than
// as automatically failing validation.
func (h *Handler) computePayloadHash(event any) (string, error) {
	if h.validationSelector == nil {
		return "", nil
	}
	value, _ := h.validationSelector.Evaluate(event)
	return hashing.Hash(value, h.config.HashFunction)
}

func (h *Handler) emitMetric(ctx context.Context, name string) {
	if h.metrics == nil {
		return
	}
	h.metrics.Emit(ctx, name, h.functionName)
}

func isAlreadyExists(err error) bool {
	return errors.Is(err, ErrItemAlreadyExists)
}

// DeriveKey computes the store row key a Handler configured with
// functionName and algo would use for a raw selector value. It is exported
// so collaborators outside the request path — notably the worker that later
// finalizes a record the API handler put INPROGRESS — can look up the same
// row without duplicating the hashing scheme inline.
func DeriveKey(functionName string, keyValue any, algo hashing.Algorithm) (string, error) {
	digest, err := hashing.Hash(keyValue, algo)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s#%s", functionName, digest), nil
}
