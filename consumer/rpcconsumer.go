package consumer

import (
	"context"
	"strings"

	"github.com/catenae-go/catenae/bus"
	"github.com/catenae-go/catenae/envelope"
	"github.com/catenae-go/catenae/queue"
)

// RPCTopics builds the three well-known topics a link's RPC consumer
// subscribes to (§4.5 RPC consumer, §6): instance, group (class name,
// lowercased) and fan-out.
func RPCTopics(uid, className string) []string {
	return []string{"rpc_" + uid, "rpc_" + strings.ToLower(className), "rpc_broadcast"}
}

// RPCConsumer drains the three RPC topics and feeds the work queue.
// Unlike the main consumer it has no scheduling policy — it always
// holds all three topics in one subscription — and it always uses
// manual commit (§4.5: "Uses manual-commit configuration. For every
// received message it enqueues a tuple (raw-message, commit-callback,
// [consumer, raw-message])... the commit runs only after downstream
// processing completes.").
type RPCConsumer struct {
	bus   *bus.Consumer
	queue *queue.Queue
}

// NewRPCConsumer wraps an already-connected manual-commit bus consumer.
func NewRPCConsumer(busConsumer *bus.Consumer, q *queue.Queue) *RPCConsumer {
	return &RPCConsumer{bus: busConsumer, queue: q}
}

// Run drains the RPC topics until ctx is cancelled, enqueueing every
// message with its commit callback attached.
func (c *RPCConsumer) Run(ctx context.Context, topics []string, onFatal func(reason string, err error)) {
	err := c.bus.ConsumeSlice(ctx, topics, func(msg *bus.SourceMessage, committer envelope.Committer, ref envelope.SourceRef) {
		cb := envelope.NewCommitCallback(committer, ref)
		c.queue.Put(Item{Message: msg, Commit: &cb})
	})
	if err != nil && ctx.Err() == nil {
		onFatal("rpc consumer engine error", err)
	}
}
