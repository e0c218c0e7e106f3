package idempotency

import (
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/imrishuroy/go-idempotent-orderflow/internal/hashing"
)

// Config holds the immutable knobs of the idempotency middleware. Build one
// with NewConfig; all fields are read once at construction and never mutated
// afterward — no code path touches a Config after a Handler has started
// using it.
type Config struct {
	// EventKeyJMESPath selects the subtree used to derive the idempotency key.
	EventKeyJMESPath string
	// PayloadValidationJMESPath selects the subtree hashed for tamper/
	// collision detection. Empty disables validation.
	PayloadValidationJMESPath string
	// RecordTTL is how long a COMPLETED row survives. Default 1 hour.
	RecordTTL time.Duration
	// ExecutionTimeout is the in-progress lease length. Default 30s.
	ExecutionTimeout time.Duration
	// UseLocalCache enables the bounded in-process LRU.
	UseLocalCache bool
	// LocalCacheMaxItems bounds the LRU. Default 256.
	LocalCacheMaxItems int
	// HashFunction selects the digest algorithm for keys and validation hashes.
	HashFunction hashing.Algorithm
	// RaiseOnNoIdempotencyKey, if true, fails KeyExtractionFailed when the
	// selector finds nothing. If false (default), the middleware is
	// bypassed and the user function runs without an idempotency guarantee.
	RaiseOnNoIdempotencyKey bool
}

// ConfigOption mutates a Config under construction.
type ConfigOption func(*Config)

// WithPayloadValidationJMESPath enables payload validation using expr as the
// validation subtree selector.
func WithPayloadValidationJMESPath(expr string) ConfigOption {
	return func(c *Config) { c.PayloadValidationJMESPath = expr }
}

// WithRecordTTL overrides the default COMPLETED row retention.
func WithRecordTTL(ttl time.Duration) ConfigOption {
	return func(c *Config) { c.RecordTTL = ttl }
}

// WithExecutionTimeout overrides the default in-progress lease length.
func WithExecutionTimeout(timeout time.Duration) ConfigOption {
	return func(c *Config) { c.ExecutionTimeout = timeout }
}

// WithLocalCache enables the bounded LRU, optionally overriding its capacity.
// A non-positive maxItems leaves the default (256) in place.
func WithLocalCache(maxItems int) ConfigOption {
	return func(c *Config) {
		c.UseLocalCache = true
		if maxItems > 0 {
			c.LocalCacheMaxItems = maxItems
		}
	}
}

// WithHashFunction overrides the default digest algorithm.
func WithHashFunction(algo hashing.Algorithm) ConfigOption {
	return func(c *Config) { c.HashFunction = algo }
}

// WithRaiseOnNoIdempotencyKey makes a missing selector result a
// KeyExtractionFailed error instead of a silent bypass.
func WithRaiseOnNoIdempotencyKey(raise bool) ConfigOption {
	return func(c *Config) { c.RaiseOnNoIdempotencyKey = raise }
}

// NewConfig builds a Config for eventKeyJMESPath (required — see
// ConfigurationError in errors.go for the validation this feeds) with the
// documented defaults, then applies opts in order.
func NewConfig(eventKeyJMESPath string, opts ...ConfigOption) (Config, error) {
	cfg := Config{
		EventKeyJMESPath:   eventKeyJMESPath,
		RecordTTL:          1 * time.Hour,
		ExecutionTimeout:   30 * time.Second,
		LocalCacheMaxItems: 256,
		HashFunction:       hashing.AlgorithmMD5,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.EventKeyJMESPath == "" {
		return NewConfigurationError(errors.New("event_key_jmes is required"))
	}
	if c.RecordTTL <= 0 {
		return NewConfigurationError(errors.New("record_ttl must be positive"))
	}
	if c.ExecutionTimeout <= 0 {
		return NewConfigurationError(errors.New("execution_timeout must be positive"))
	}
	if c.LocalCacheMaxItems <= 0 {
		return NewConfigurationError(errors.New("local_cache_max_items must be positive"))
	}
	return nil
}

var (
	disabledOnce   sync.Once
	disabledCached bool
)

// Disabled reports whether the global IDEMPOTENCY_DISABLED kill switch is
// set. It is read once per process and cached: the switch is an operational
// flag flipped at deploy time, not something that changes mid-process.
func Disabled() bool {
	disabledOnce.Do(func() {
		disabledCached = os.Getenv("IDEMPOTENCY_DISABLED") == "true"
	})
	return disabledCached
}
