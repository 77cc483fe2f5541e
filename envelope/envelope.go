// Package envelope defines the unit of data that crosses a link: a key,
// a value, the topics it arrived on and is destined for, and the chain
// of completion callbacks that run once it has been published.
//
// Envelopes are value-like. Duplicate produces an independent copy;
// callbacks are re-anchored onto the last envelope of a produced batch
// rather than duplicated across every envelope in that batch.
package envelope

// Envelope is the unit of data passed from the consumer through the
// transform dispatcher to the producer.
type Envelope struct {
	// Key is the partition key. It is either a string, some other
	// value that EncodeKey encodes deterministically, or nil ("absent").
	Key interface{}

	// Value is the payload. After DecodeRaw it is either the plain-text
	// string or the generically decoded binary value (a map, slice or
	// scalar); DecodeRaw does not rebuild a nested *Envelope.
	Value interface{}

	// OriginTopic is set by the consumer path to the bus topic the
	// envelope arrived on. Empty for envelopes constructed fresh by a
	// transform.
	OriginTopic string

	// DestinationTopic is the topic the envelope should be published
	// to. Empty means "use the first configured output topic".
	DestinationTopic string

	// StringLiteral disables value serialization when Value is
	// already a string: the producer sends it as-is instead of
	// running it through the self-describing binary encoding.
	StringLiteral bool

	// Callbacks is populated only on the last envelope emitted by a
	// single transform invocation. They execute left-to-right after a
	// successful publish.
	Callbacks []Callback
}

// New constructs an envelope with no callbacks and no destination.
func New(key, value interface{}) *Envelope {
	return &Envelope{Key: key, Value: value}
}

// Duplicate returns a copy whose fields can be reassigned without
// affecting the original. The copy's Callbacks slice is a fresh slice
// backed by the same Callback values (callbacks themselves are not
// mutated after creation, so a shallow copy of the slice elements is
// sufficient). Key and Value are copied as-is, not deep-copied: a map
// or slice held in them is shared with the original.
func (e *Envelope) Duplicate() *Envelope {
	if e == nil {
		return nil
	}
	dup := *e
	if e.Callbacks != nil {
		dup.Callbacks = make([]Callback, len(e.Callbacks))
		copy(dup.Callbacks, e.Callbacks)
	}
	return &dup
}

// Sendable returns a projection of the envelope stripped of
// runtime-only fields (callbacks), suitable for serialization onto the
// bus.
func (e *Envelope) Sendable() *Envelope {
	dup := e.Duplicate()
	dup.Callbacks = nil
	return dup
}

// WithCallbacks returns a copy of the envelope with its callback list
// replaced. Used by the dispatcher to anchor the commit/user callbacks
// onto the last envelope of a batch without mutating the others.
func (e *Envelope) WithCallbacks(cbs []Callback) *Envelope {
	dup := e.Duplicate()
	dup.Callbacks = cbs
	return dup
}

// HasDestination reports whether a destination topic has been set
// explicitly (as opposed to falling back to the first configured
// output).
func (e *Envelope) HasDestination() bool {
	return e.DestinationTopic != ""
}
