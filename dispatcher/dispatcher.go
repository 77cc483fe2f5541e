// Package dispatcher implements the transform dispatcher (§4.6): the
// single thread that drains the work queue, decodes raw bus messages,
// and routes each envelope to either the RPC worker pool or the main
// transform worker pool.
package dispatcher

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/catenae-go/catenae/bus"
	"github.com/catenae-go/catenae/consumer"
	"github.com/catenae-go/catenae/envelope"
	"github.com/catenae-go/catenae/queue"
	"github.com/catenae-go/catenae/rpc"
	"github.com/catenae-go/catenae/workerpool"
)

// dispatchPollInterval is the Queue.Get timeout the dispatcher loop
// polls at, matching the cooperative-cancellation cadence used
// elsewhere in the core (§5: "every work-queue get" is a suspension
// point where the stop flag is re-checked).
const dispatchPollInterval = 250 * time.Millisecond

// TransformFunc is the user-supplied transform invoked for every
// envelope arriving on a non-RPC topic (§4.6 Main worker).
type TransformFunc func(e *envelope.Envelope) TransformResult

// Publisher is the narrow surface the dispatcher needs from the
// producer engine. *bus.Producer satisfies it; tests substitute a fake
// that records publishes instead of talking to a broker.
type Publisher interface {
	Publish(e *envelope.Envelope, opts bus.Options) error
}

// Dispatcher drains a shared work queue fed by both the main consumer
// scheduler and the RPC consumer, and fans envelopes out to the two
// worker pools (§4.6).
type Dispatcher struct {
	Queue    *queue.Queue
	MainPool *workerpool.Pool
	RPCPool  *workerpool.Pool

	Producer  Publisher
	PubOpts   bus.Options // DefaultTopic/Sequential/LinkUID/Sync, fixed for the link's lifetime
	Transform TransformFunc

	// RPCMutex is the global RPC mutex of §5: held for the duration of
	// every transform call and every RPC handler invocation, so the two
	// never interleave.
	RPCMutex *sync.Mutex
	Registry *rpc.Registry
	Self     rpc.Context

	// rpcTopics names the three well-known topics (§4.5/§6) that route
	// to the RPC pool instead of the main pool.
	rpcTopics map[string]bool

	// Sync selects whether a Main worker with zero output envelopes
	// still runs its commit callback immediately (§4.6 step 5) — it is
	// the same flag as PubOpts.Sync, kept separately because the
	// producer doesn't need to know about commit semantics.
	Sync bool

	OnFatal func(reason string, err error)
}

// New constructs a dispatcher. rpcTopics should be consumer.RPCTopics's
// output for this link.
func New(rpcTopics []string) *Dispatcher {
	set := make(map[string]bool, len(rpcTopics))
	for _, t := range rpcTopics {
		set[t] = true
	}
	return &Dispatcher{rpcTopics: set}
}

// Run drains the work queue until stop is closed. It is meant to run
// on its own goroutine, per the lifecycle's "launch all threads" step.
func (d *Dispatcher) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		raw, ok := d.Queue.Get(dispatchPollInterval)
		if !ok {
			continue
		}
		item, ok := raw.(consumer.Item)
		if !ok {
			log.Printf("[ERROR] dispatcher: unexpected queue item type %T", raw)
			continue
		}
		d.handle(item)
	}
}

// handle implements §4.6 steps 1-4: decode, tag origin, clear
// destination, and route.
func (d *Dispatcher) handle(item consumer.Item) {
	e, err := envelope.DecodeRaw(item.Message.Value)
	if err != nil {
		log.Printf("[ERROR] dispatcher: decode failed for topic %s: %v", item.Message.Topic, err)
		return
	}
	e.OriginTopic = item.Message.Topic
	e.DestinationTopic = ""

	if d.rpcTopics[item.Message.Topic] {
		d.submitRPC(e, item)
		return
	}
	d.submitMain(e, item)
}

func (d *Dispatcher) submitMain(e *envelope.Envelope, item consumer.Item) {
	err := d.MainPool.Submit(func() {
		d.runMainWorker(e, item)
	})
	if err != nil {
		log.Printf("[ERROR] dispatcher: main pool closed, dropping message from %s", item.Message.Topic)
	}
}

func (d *Dispatcher) submitRPC(e *envelope.Envelope, item consumer.Item) {
	err := d.RPCPool.Submit(func() {
		d.runRPCWorker(e, item)
	})
	if err != nil {
		log.Printf("[ERROR] dispatcher: rpc pool closed, dropping message from %s", item.Message.Topic)
	}
}

// runMainWorker is §4.6's "Main worker (per envelope)".
func (d *Dispatcher) runMainWorker(e *envelope.Envelope, item consumer.Item) {
	d.RPCMutex.Lock()
	result, panicked := d.invokeTransform(e)
	d.RPCMutex.Unlock()

	if panicked != nil {
		// "Any exception during transform is fatal" (§4.6, §7).
		d.OnFatal("user transform exception", panicked)
		return
	}

	envelopes, userCallback := result.normalize()

	if len(envelopes) == 0 {
		if d.Sync && item.Commit != nil {
			if err := item.Commit.Execute(); err != nil {
				log.Printf("[ERROR] dispatcher: immediate commit failed: %v", err)
			}
		}
		return
	}

	for i, out := range envelopes {
		if i == len(envelopes)-1 {
			var cbs []envelope.Callback
			if userCallback != nil {
				cbs = append(cbs, envelope.NewUserCallback(userCallback))
			}
			if item.Commit != nil {
				cbs = append(cbs, *item.Commit)
			}
			out = out.WithCallbacks(cbs)
		}
		if err := d.Producer.Publish(out, d.PubOpts); err != nil {
			d.OnFatal("publish failed", err)
			return
		}
	}
}

// invokeTransform recovers a transform panic, converting it into an
// error the caller treats as fatal (§7: "User transform exception —
// fatal").
func (d *Dispatcher) invokeTransform(e *envelope.Envelope) (result TransformResult, panicErr error) {
	defer func() {
		if r := recover(); r != nil {
			panicErr = fmt.Errorf("transform panicked: %v", r)
		}
	}()
	result = d.Transform(e)
	return result, nil
}

// runRPCWorker is §4.6's "RPC worker (per envelope)": validate, invoke
// under the global RPC mutex, commit on success in sync mode. Bus-RPC
// handlers are fire-and-forget — unlike direct RPC there is no caller
// waiting on a result, so a method-not-found or handler error is only
// logged (§7: "bus path drops silently").
func (d *Dispatcher) runRPCWorker(e *envelope.Envelope, item consumer.Item) {
	payload, ctx, err := rpc.DecodePayload(e.Value)
	if err != nil {
		log.Printf("[ERROR] dispatcher: rpc payload decode failed: %v", err)
		return
	}
	// ctx.Group/UID come from the caller's own wire-embedded context, not
	// d.Self; only Topic is filled in locally. The direct-RPC path
	// (direct_server.go) uses the receiver's self context instead. §4.6
	// names the shape {group, uid, topic} without fixing whose identity
	// it holds, so both are conforming.
	ctx.Topic = e.OriginTopic

	d.RPCMutex.Lock()
	_, rpcErr := rpc.Dispatch(d.Registry, ctx, payload)
	d.RPCMutex.Unlock()

	if rpcErr != nil {
		return // already logged by Dispatch at the appropriate level
	}

	if d.Sync && item.Commit != nil {
		if err := item.Commit.Execute(); err != nil {
			log.Printf("[ERROR] dispatcher: rpc commit failed: %v", err)
		}
	}
}
