package envelope

import (
	"log"
	"time"
)

// Kind distinguishes a plain user callback from the special commit
// callback that advances a consumer's committed offset.
type Kind int

const (
	// KindUser is an arbitrary post-publish callback supplied by the
	// user's transform function.
	KindUser Kind = iota

	// KindCommitSourceMessage advances the offset of the source
	// message that produced this envelope's batch. It is always the
	// last callback to run.
	KindCommitSourceMessage
)

// SourceRef is an opaque reference to the message a commit callback
// should advance past. Its concrete type is owned by whatever package
// constructs the callback (the consumer engine); envelope never
// inspects it.
type SourceRef interface{}

// Committer advances the committed offset for a SourceRef. Implemented
// by the consumer engine so that envelope has no dependency on the bus
// package.
type Committer interface {
	Commit(ref SourceRef) error
}

// Callback is a deferred invocation anchored to the last envelope of a
// produced batch. Target/args/kwargs from the distilled design become a
// plain closure for KindUser; KindCommitSourceMessage instead carries
// the consumer handle and message reference needed to advance the
// offset.
type Callback struct {
	Kind Kind

	// Fn is invoked for KindUser callbacks.
	Fn func() error

	// Committer and Ref are used for KindCommitSourceMessage callbacks.
	Committer Committer
	Ref       SourceRef
}

// NewUserCallback wraps an arbitrary post-publish closure.
func NewUserCallback(fn func() error) Callback {
	return Callback{Kind: KindUser, Fn: fn}
}

// NewCommitCallback builds the callback that advances ref's offset on
// committer once the batch that produced it has been fully published.
func NewCommitCallback(committer Committer, ref SourceRef) Callback {
	return Callback{Kind: KindCommitSourceMessage, Committer: committer, Ref: ref}
}

// commitRetryDelay is the pause between unbounded retries of a failed
// commit. The first failure logs at WARN; subsequent ones repeat the
// warning so an operator watching logs sees the retry is still stuck.
const commitRetryDelay = 2 * time.Second

// Execute runs the callback. For KindUser it simply invokes Fn. For
// KindCommitSourceMessage it retries the commit indefinitely on
// transient failure, logging a warning after the first attempt.
func (c Callback) Execute() error {
	switch c.Kind {
	case KindCommitSourceMessage:
		attempt := 0
		for {
			err := c.Committer.Commit(c.Ref)
			if err == nil {
				return nil
			}
			attempt++
			if attempt == 1 {
				log.Printf("[WARN] commit failed, retrying indefinitely: %v", err)
			} else {
				log.Printf("[WARN] commit still failing after %d attempts: %v", attempt, err)
			}
			time.Sleep(commitRetryDelay)
		}
	default:
		if c.Fn == nil {
			return nil
		}
		return c.Fn()
	}
}

// ExecuteChain runs a list of callbacks in order, stopping at the first
// error. The commit callback, when present, is always last in the
// slice by construction (see dispatcher's runMainWorker), so a failure
// earlier in the chain never skips it silently — it surfaces instead.
func ExecuteChain(callbacks []Callback) error {
	for _, cb := range callbacks {
		if err := cb.Execute(); err != nil {
			return err
		}
	}
	return nil
}
