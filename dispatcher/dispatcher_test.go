package dispatcher

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catenae-go/catenae/bus"
	"github.com/catenae-go/catenae/consumer"
	"github.com/catenae-go/catenae/envelope"
	"github.com/catenae-go/catenae/queue"
	"github.com/catenae-go/catenae/rpc"
	"github.com/catenae-go/catenae/workerpool"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []*envelope.Envelope
}

func (f *fakePublisher) Publish(e *envelope.Envelope, opts bus.Options) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, e)
	return envelope.ExecuteChain(e.Callbacks)
}

func (f *fakePublisher) snapshot() []*envelope.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*envelope.Envelope, len(f.published))
	copy(out, f.published)
	return out
}

type fakeCommitter struct {
	committed int
}

func (c *fakeCommitter) Commit(ref envelope.SourceRef) error {
	c.committed++
	return nil
}

func newTestDispatcher(transform TransformFunc) (*Dispatcher, *fakePublisher) {
	pub := &fakePublisher{}
	d := New(consumer.RPCTopics("uid1", "echo"))
	d.Queue = queue.New()
	d.MainPool = workerpool.New(2)
	d.RPCPool = workerpool.New(1)
	d.Producer = pub
	d.PubOpts = bus.Options{DefaultTopic: "out", Sync: true}
	d.Transform = transform
	d.RPCMutex = &sync.Mutex{}
	d.Registry = rpc.NewRegistry()
	d.Registry.Freeze()
	d.Sync = true
	d.OnFatal = func(reason string, err error) {}
	return d, pub
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestDispatcherEchoPublishesAndCommits(t *testing.T) {
	d, pub := newTestDispatcher(func(e *envelope.Envelope) TransformResult {
		return One(envelope.New(nil, e.Value))
	})
	committer := &fakeCommitter{}
	d.handle(consumer.Item{
		Message: &bus.SourceMessage{Topic: "in", Value: []byte("hello")},
		Commit:  commitCallback(committer),
	})

	waitFor(t, func() bool { return len(pub.snapshot()) == 1 })
	assert.Equal(t, "hello", pub.snapshot()[0].Value)
	waitFor(t, func() bool { return committer.committed == 1 })
}

func TestDispatcherFanOutAttachesCallbackOnlyToLast(t *testing.T) {
	d, pub := newTestDispatcher(func(e *envelope.Envelope) TransformResult {
		return Many([]*envelope.Envelope{
			envelope.New(nil, "a"),
			envelope.New(nil, "b"),
			envelope.New(nil, "c"),
		})
	})
	committer := &fakeCommitter{}
	d.handle(consumer.Item{
		Message: &bus.SourceMessage{Topic: "in", Value: []byte("x")},
		Commit:  commitCallback(committer),
	})

	waitFor(t, func() bool { return len(pub.snapshot()) == 3 })
	out := pub.snapshot()
	assert.Empty(t, out[0].Callbacks)
	assert.Empty(t, out[1].Callbacks)
	require.Len(t, out[2].Callbacks, 1)
	waitFor(t, func() bool { return committer.committed == 1 })
}

func TestDispatcherEmptyResultCommitsImmediatelyInSyncMode(t *testing.T) {
	d, pub := newTestDispatcher(func(e *envelope.Envelope) TransformResult {
		return None()
	})
	committer := &fakeCommitter{}
	d.handle(consumer.Item{
		Message: &bus.SourceMessage{Topic: "in", Value: []byte("x")},
		Commit:  commitCallback(committer),
	})

	waitFor(t, func() bool { return committer.committed == 1 })
	assert.Empty(t, pub.snapshot())
}

func TestDispatcherRoutesRPCTopicToRegistry(t *testing.T) {
	var called bool
	d, _ := newTestDispatcher(func(e *envelope.Envelope) TransformResult {
		t.Fatal("transform must not run for an rpc envelope")
		return None()
	})
	d.Registry = rpc.NewRegistry()
	d.Registry.Register("ping", func(ctx rpc.Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		called = true
		return "pong", nil
	})
	d.Registry.Freeze()

	raw, err := rpcEnvelopeBytes("ping")
	require.NoError(t, err)

	d.handle(consumer.Item{Message: &bus.SourceMessage{Topic: "rpc_broadcast", Value: raw}})
	waitFor(t, func() bool { return called })
}

func commitCallback(c *fakeCommitter) *envelope.Callback {
	cb := envelope.NewCommitCallback(c, struct{}{})
	return &cb
}

// rpcEnvelopeBytes builds the same wire bytes bus.Producer.Publish would
// produce for a bus-RPC call, without going through a real producer.
func rpcEnvelopeBytes(method string) ([]byte, error) {
	body := map[string]interface{}{
		"method":  method,
		"context": map[string]interface{}{"group": "g", "uid": "u"},
	}
	e := envelope.New(nil, body)
	return envelope.EncodeValue(e)
}
