// Package consumer implements the main-consumer topic scheduling
// policy of §4.5: parity mode (one shared subscription) and weighted
// "exp" mode (per-topic timed slices with geometric weighting and
// starvation penalization). It sits on top of bus.Consumer, turning
// consumed messages into queue.Queue items for the transform
// dispatcher.
package consumer

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/catenae-go/catenae/bus"
	"github.com/catenae-go/catenae/envelope"
	"github.com/catenae-go/catenae/queue"
)

// Mode selects the topic scheduling policy.
type Mode int

const (
	ModeParity Mode = iota
	ModeWeighted
)

const (
	// weightBase is the geometric base for weighted-mode slices (§4.5).
	weightBase = 1.7

	// weightWindowSeconds is the full cycle window weighted slices sum
	// to (§4.5, §8 property 5).
	weightWindowSeconds = 900.0

	// noInputTopicBackoff is the pause between checks when no input
	// topics are configured (§5).
	noInputTopicBackoff = 1 * time.Second

	// penalizationDelta is the constant from the open question in §9:
	// a topic is penalized (its slice cut short) once its locally
	// buffered count falls to or below prevCount-2. Preserved verbatim
	// per §9; tunable without changing the surrounding semantics.
	penalizationDelta = 2

	// admissionBatchSize is the implementation-chosen starting value for
	// the weighted-admission counter of §4.2: the number of messages a
	// single topic's slice may admit into its local buffer before a
	// fairness checkpoint forces that buffer to be dumped to the shared
	// work queue.
	admissionBatchSize = 50
)

// Item is the unit the scheduler hands to the work queue: a raw source
// message plus the commit callback that should fire once every
// envelope it produces has published successfully. The main scheduler
// leaves Commit nil in async mode, where no per-message commit chain
// exists (§4.6 step 1); the RPC consumer always sets it.
type Item struct {
	Message *bus.SourceMessage
	Commit  *envelope.Callback
}

// Scheduler runs the main consumer's topic policy and feeds a work
// queue. It owns the mutable input-topic list and "changed" flag
// described in §4.5/§5.
type Scheduler struct {
	bus  *bus.Consumer
	mode Mode
	sync bool // sync mode: attach a commit callback per message

	queue *queue.Queue

	mu      sync.Mutex
	topics  []string
	changed bool

	lastCounts map[string]int
}

// New constructs a scheduler over an already-connected bus consumer.
func New(busConsumer *bus.Consumer, mode Mode, sync bool, topics []string, q *queue.Queue) *Scheduler {
	s := &Scheduler{
		bus:        busConsumer,
		mode:       mode,
		sync:       sync,
		queue:      q,
		topics:     append([]string(nil), topics...),
		lastCounts: make(map[string]int),
	}
	return s
}

// AddInputTopic registers a new input topic and marks the subscription
// changed, satisfying testable property 6: the next scheduler iteration
// subscribes to a set including T.
func (s *Scheduler) AddInputTopic(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.topics {
		if t == topic {
			return
		}
	}
	s.topics = append(s.topics, topic)
	s.changed = true
}

// RemoveInputTopic deregisters an input topic and marks the
// subscription changed.
func (s *Scheduler) RemoveInputTopic(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.topics {
		if t == topic {
			s.topics = append(s.topics[:i], s.topics[i+1:]...)
			s.changed = true
			return
		}
	}
}

func (s *Scheduler) snapshotTopics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changed = false
	return append([]string(nil), s.topics...)
}

func (s *Scheduler) isChanged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

// Run drives the scheduler until ctx is cancelled. It also returns
// after a bus error, once that error has been reported through onFatal.
func (s *Scheduler) Run(ctx context.Context, onFatal func(reason string, err error)) {
	for {
		if ctx.Err() != nil {
			return
		}

		topics := s.snapshotTopics()
		if len(topics) == 0 {
			log.Printf("[DEBUG] no input topics, waiting...")
			select {
			case <-ctx.Done():
				return
			case <-time.After(noInputTopicBackoff):
				continue
			}
		}

		var err error
		if s.mode == ModeParity {
			err = s.runParity(ctx, topics)
		} else {
			err = s.runWeighted(ctx, topics)
		}
		if err != nil {
			onFatal("consumer engine error", err)
			return
		}
	}
}

// runParity holds every input topic in one subscription until the
// topic list changes or the context is cancelled.
func (s *Scheduler) runParity(ctx context.Context, topics []string) error {
	roundCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.bus.ConsumeSlice(roundCtx, topics, s.makeHandler(nil))
	}()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			cancel()
			<-errCh
			return nil
		case err := <-errCh:
			return err
		case <-ticker.C:
			if s.isChanged() {
				cancel()
				<-errCh
				return nil
			}
		}
	}
}

// runWeighted iterates the topic list once, giving each topic a slice
// proportional to computeSlices, before the outer Run loop starts a
// fresh round (which re-evaluates the topic list and weights).
func (s *Scheduler) runWeighted(ctx context.Context, topics []string) error {
	slices := computeSlices(len(topics), weightWindowSeconds, weightBase)

	for i, topic := range topics {
		if ctx.Err() != nil {
			return nil
		}
		if s.isChanged() {
			return nil // restart the round with the updated topic list
		}

		if err := s.runSlice(ctx, topic, slices[i]); err != nil {
			return err
		}
	}
	return nil
}

// runSlice consumes a single topic for duration (or until penalized,
// changed, or cancelled), buffering locally. §4.2's weighted-admission
// counter caps how many messages accumulate before a fairness
// checkpoint forces the buffer out to the shared work queue, so one
// heavily-producing topic cannot hold every other topic's messages
// hostage for the whole slice; whatever remains unflushed is drained at
// slice end regardless of where the counter stood.
func (s *Scheduler) runSlice(ctx context.Context, topic string, durationSeconds float64) error {
	sliceCtx, cancel := context.WithTimeout(ctx, time.Duration(durationSeconds*float64(time.Second)))
	defer cancel()

	var bufMu sync.Mutex
	var buf []Item
	var totalAdmitted int

	flush := func() {
		bufMu.Lock()
		drained := buf
		buf = nil
		bufMu.Unlock()
		for _, item := range drained {
			s.queue.Put(item)
		}
	}

	s.queue.InitAdmission(admissionBatchSize)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.bus.ConsumeSlice(sliceCtx, []string{topic}, func(msg *bus.SourceMessage, committer envelope.Committer, ref envelope.SourceRef) {
			bufMu.Lock()
			buf = append(buf, s.buildItem(msg, committer, ref))
			totalAdmitted++
			bufMu.Unlock()
			if s.queue.AdmitPenalized(admissionBatchSize) {
				flush()
			}
		})
	}()

	prevCount := s.lastCounts[topic]
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

monitor:
	for {
		select {
		case err := <-errCh:
			if err != nil {
				return err
			}
			break monitor
		case <-ticker.C:
			if s.isChanged() {
				cancel()
				<-errCh
				break monitor
			}
			bufMu.Lock()
			current := len(buf)
			bufMu.Unlock()
			if current <= prevCount-penalizationDelta {
				log.Printf("[DEBUG] penalized topic: %s", topic)
				cancel()
				<-errCh
				break monitor
			}
		}
	}

	s.lastCounts[topic] = totalAdmitted
	flush()
	return nil
}

// makeHandler builds a bus.Handler that pushes straight to the work
// queue (parity mode has no per-topic local buffering step).
func (s *Scheduler) makeHandler(_ *struct{}) bus.Handler {
	return func(msg *bus.SourceMessage, committer envelope.Committer, ref envelope.SourceRef) {
		s.queue.Put(s.buildItem(msg, committer, ref))
	}
}

func (s *Scheduler) buildItem(msg *bus.SourceMessage, committer envelope.Committer, ref envelope.SourceRef) Item {
	item := Item{Message: msg}
	if s.sync {
		cb := envelope.NewCommitCallback(committer, ref)
		item.Commit = &cb
	}
	return item
}

// computeSlices implements the geometric weighting of §4.5:
// slice[i] = window * base^(n-1-i) / Σ_{j=0}^{n-1} base^j.
//
// The worked example in spec.md §8 property 5 (557.6/328.0/192.9 for
// n=3) does not arithmetically satisfy this formula — evaluating it
// directly for n=3 gives 465.3/273.7/161.0. Both satisfy the two
// properties a test can actually check (ratios of exactly `base`
// between consecutive slices, and a total of `window`); this
// implementation follows the formula as stated (and matches the
// original `_get_index_assignment`), not the inconsistent illustration.
// See DESIGN.md.
func computeSlices(n int, window, base float64) []float64 {
	if n == 0 {
		return nil
	}
	weights := make([]float64, n)
	var sum float64
	for j := 0; j < n; j++ {
		weights[j] = math.Pow(base, float64(j))
		sum += weights[j]
	}
	slices := make([]float64, n)
	for i := 0; i < n; i++ {
		reverseIndex := n - 1 - i
		slices[i] = weights[reverseIndex] / sum * window
	}
	return slices
}
