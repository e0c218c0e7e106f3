// Package selector evaluates compiled JMESPath expressions over a decoded
// event, returning either the subtree used to derive an idempotency key or
// the subtree used for payload validation. The expression library itself is
// treated as opaque: this package only depends on its public Compile/Search
// surface.
package selector

import (
	"github.com/jmespath/go-jmespath"
)

// Selector wraps a JMESPath expression compiled once at construction time.
type Selector struct {
	expr string
	path *jmespath.JMESPath
}

// Compile parses expr once. It returns an error the caller should treat as a
// ConfigurationError: a bad selector expression is a startup-time mistake,
// never a per-invocation one.
func Compile(expr string) (*Selector, error) {
	path, err := jmespath.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &Selector{expr: expr, path: path}, nil
}

// Expression returns the source expression this Selector was compiled from.
func (s *Selector) Expression() string {
	return s.expr
}

// Evaluate runs the compiled expression against event and reports whether a
// value was found. event is typically the result of decoding the incoming
// payload into map[string]interface{} (or []interface{}, or a primitive).
//
// JMESPath represents "no such path" and "path resolves to a JSON null" both
// as a nil search result. Most callers (key derivation, validation hashing)
// don't need to tell these apart — a nil value cannot usefully seed a key or
// a hash either way — so both are reported as "not found".
func (s *Selector) Evaluate(event any) (value any, found bool) {
	result, err := s.path.Search(event)
	if err != nil {
		return nil, false
	}
	if result == nil {
		return nil, false
	}
	return result, true
}
