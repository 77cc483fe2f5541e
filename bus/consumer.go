package bus

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"

	"github.com/catenae-go/catenae/envelope"
)

// SourceMessage is the bus-side view of a consumed record: the fields
// the transform dispatcher and producer engine need, stripped of
// sarama's internal bookkeeping.
type SourceMessage struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
}

// msgRef binds a consumed message to the consumer-group session that
// produced it. A session is only valid for the lifetime of one
// ConsumeSlice call, which is exactly the lifetime a commit callback
// needs it for.
type msgRef struct {
	session sarama.ConsumerGroupSession
	msg     *sarama.ConsumerMessage
}

// Consumer wraps a sarama consumer group and implements
// envelope.Committer so commit callbacks can advance offsets directly.
type Consumer struct {
	group       sarama.ConsumerGroup
	groupID     string
	autoCommit  bool
	pollTimeout time.Duration
}

// NewConsumer dials brokers and joins groupID. autoCommit selects the
// async-mode (auto-commit enabled) vs sync-mode (manual commit)
// configuration described in §6. pollTimeout (PollTimeoutMain or
// PollTimeoutRPC) governs how long ConsumeClaim will sit idle with no
// message before logging a liveness line — sarama's consumer-group API
// is push-based, so nothing actually polls, but the §5 poll timeout
// still bounds how long a stalled partition assignment goes unremarked.
func NewConsumer(brokers []string, groupID string, autoCommit bool, consumerTimeout, pollTimeout time.Duration) (*Consumer, error) {
	group, err := sarama.NewConsumerGroup(brokers, groupID, ConsumerConfig(autoCommit, consumerTimeout))
	if err != nil {
		return nil, fmt.Errorf("bus: consumer group: %w", err)
	}
	return &Consumer{group: group, groupID: groupID, autoCommit: autoCommit, pollTimeout: pollTimeout}, nil
}

// Commit implements envelope.Committer. ref must be a *msgRef produced
// by this same Consumer during the session that is still current.
func (c *Consumer) Commit(ref envelope.SourceRef) error {
	r, ok := ref.(*msgRef)
	if !ok {
		return fmt.Errorf("bus: commit: ref is not a bus message reference")
	}
	r.session.MarkMessage(r.msg, "")
	r.session.Commit()
	return nil
}

// Handler receives a consumed message along with the committer/ref pair
// a commit callback should be built from. For end-of-partition (no more
// data right now) sarama simply does not invoke Handler again until
// more arrives — there is no explicit per-poll error to ignore, unlike
// a lower-level poll API; genuine consumer errors surface through
// Errors() and ConsumeSlice's return value instead (§4.5).
type Handler func(msg *SourceMessage, committer envelope.Committer, ref envelope.SourceRef)

type groupHandler struct {
	onMessage   func(sarama.ConsumerGroupSession, *sarama.ConsumerMessage)
	pollTimeout time.Duration
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.onMessage(sess, msg)
		case <-sess.Context().Done():
			return nil
		case <-time.After(h.pollTimeout):
			log.Printf("[DEBUG] bus: no message on partition claim within poll timeout (%s)", h.pollTimeout)
		}
	}
}

// ConsumeSlice joins topics and runs until ctx is cancelled (the
// weighted scheduler uses a time-boxed ctx per slice; the RPC consumer
// and parity-mode main consumer use a ctx that only ends at shutdown).
// It follows sarama's documented consumer-group loop: Consume returns
// whenever a rebalance happens, and must be called again as long as the
// context is still live.
func (c *Consumer) ConsumeSlice(ctx context.Context, topics []string, handle Handler) error {
	handler := &groupHandler{
		onMessage: func(sess sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage) {
			sm := &SourceMessage{Topic: msg.Topic, Partition: msg.Partition, Offset: msg.Offset, Key: msg.Key, Value: msg.Value}
			ref := &msgRef{session: sess, msg: msg}
			handle(sm, c, ref)
			if c.autoCommit {
				sess.MarkMessage(msg, "")
			}
		},
		pollTimeout: c.pollTimeout,
	}

	for {
		if err := c.group.Consume(ctx, topics, handler); err != nil {
			if err == sarama.ErrClosedConsumerGroup {
				return nil
			}
			return fmt.Errorf("bus: consume %v: %w", topics, err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Errors forwards the consumer group's asynchronous error channel so
// the caller can distinguish transient I/O errors (logged, polling
// continues) from connectivity failures (fatal, per §4.5).
func (c *Consumer) Errors() <-chan error {
	return c.group.Errors()
}

// Close leaves the consumer group.
func (c *Consumer) Close() error {
	return c.group.Close()
}
