package dispatcher

import "github.com/catenae-go/catenae/envelope"

// ResultKind tags which shape a transform invocation returned, replacing
// the positional/variadic return-value polymorphism of §4.6 step 2 with
// an explicit sum type (§9 Design Notes).
type ResultKind int

const (
	// ResultNone is returned when the transform produced nothing.
	ResultNone ResultKind = iota
	// ResultOne carries a single output envelope.
	ResultOne
	// ResultMany carries a batch of output envelopes.
	ResultMany
	// ResultOneWithCallback carries a single envelope plus a
	// user-supplied post-publish callback.
	ResultOneWithCallback
	// ResultManyWithCallback carries a batch plus a user-supplied
	// post-publish callback, anchored onto the last envelope only.
	ResultManyWithCallback
)

// TransformResult is what a user transform function returns.
// Constructors below are the only supported way to build one; the zero
// value is ResultNone.
type TransformResult struct {
	kind     ResultKind
	one      *envelope.Envelope
	many     []*envelope.Envelope
	callback func() error
}

// None is the empty result: the transform produced nothing.
func None() TransformResult { return TransformResult{kind: ResultNone} }

// One wraps a single output envelope.
func One(e *envelope.Envelope) TransformResult {
	return TransformResult{kind: ResultOne, one: e}
}

// Many wraps a batch of output envelopes.
func Many(es []*envelope.Envelope) TransformResult {
	return TransformResult{kind: ResultMany, many: es}
}

// OneWithCallback wraps a single envelope plus a post-publish callback
// supplied by the user transform.
func OneWithCallback(e *envelope.Envelope, cb func() error) TransformResult {
	return TransformResult{kind: ResultOneWithCallback, one: e, callback: cb}
}

// ManyWithCallback wraps a batch plus a post-publish callback, anchored
// onto the last envelope of the batch by normalize.
func ManyWithCallback(es []*envelope.Envelope, cb func() error) TransformResult {
	return TransformResult{kind: ResultManyWithCallback, many: es, callback: cb}
}

// normalize flattens any TransformResult into a plain slice of
// envelopes plus the optional user callback (§4.6 main worker, step 2:
// "normalize to a list of envelopes").
func (r TransformResult) normalize() ([]*envelope.Envelope, func() error) {
	switch r.kind {
	case ResultNone:
		return nil, nil
	case ResultOne:
		return []*envelope.Envelope{r.one}, nil
	case ResultMany:
		return r.many, nil
	case ResultOneWithCallback:
		return []*envelope.Envelope{r.one}, r.callback
	case ResultManyWithCallback:
		return r.many, r.callback
	default:
		return nil, nil
	}
}
