package bus

import (
	"fmt"
	"log"
	"sync"

	"github.com/IBM/sarama"

	"github.com/catenae-go/catenae/envelope"
)

// Producer maintains the two producer instances described in §4.4: a
// sync producer used when the link runs in synchronous mode, and an
// async producer used otherwise. Both are always constructed — a link
// commits to a single execution mode at start, but nothing here assumes
// which, so Publish takes the mode per call.
type Producer struct {
	sync  sarama.SyncProducer
	async sarama.AsyncProducer

	// onFatal is invoked by drainAsync for every failed async delivery —
	// publish failure terminates the link per §4.4 step 5. The link wires
	// this to its own Suicide method, which acts only on its first call.
	onFatal func(reason string, err error)

	closeOnce sync.Once
	drainWG   sync.WaitGroup
}

// NewProducer dials brokers and builds both producer instances.
// onFatal is called from the async drain goroutine whenever an async
// publish fails; a failed sync publish is instead returned as an error
// from Publish.
func NewProducer(brokers []string, onFatal func(reason string, err error)) (*Producer, error) {
	sp, err := sarama.NewSyncProducer(brokers, SyncProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("bus: sync producer: %w", err)
	}
	ap, err := sarama.NewAsyncProducer(brokers, AsyncProducerConfig())
	if err != nil {
		sp.Close()
		return nil, fmt.Errorf("bus: async producer: %w", err)
	}

	p := &Producer{sync: sp, async: ap, onFatal: onFatal}
	p.drainWG.Add(1)
	go p.drainAsync()
	return p, nil
}

// drainAsync polls the async producer's delivery events without
// blocking the publisher, per §4.4 step 4. On success it runs the
// callback chain that rode along on the message's Metadata; on failure
// it treats the publish as fatal, matching sync mode's behavior (§4.4
// step 5 draws no distinction between modes for this).
func (p *Producer) drainAsync() {
	defer p.drainWG.Done()
	for {
		select {
		case msg, ok := <-p.async.Successes():
			if !ok {
				return
			}
			if cbs, ok := msg.Metadata.([]envelope.Callback); ok {
				if err := envelope.ExecuteChain(cbs); err != nil {
					log.Printf("[ERROR] async callback chain failed: %v", err)
				}
			}
		case perr, ok := <-p.async.Errors():
			if !ok {
				return
			}
			log.Printf("[ERROR] async publish failed for topic %s: %v", perr.Msg.Topic, perr.Err)
			if p.onFatal != nil {
				p.onFatal("async publish failed", perr.Err)
			}
		}
	}
}

// Options carries the per-publish inputs Publish needs beyond the
// envelope itself.
type Options struct {
	// DefaultTopic is used when the envelope carries no destination
	// (§4.4 step 2).
	DefaultTopic string

	// Sequential pins the partition key to LinkUID when the envelope
	// has no key of its own (§4.4 step 1, sequential mode).
	Sequential bool
	LinkUID    string

	// Sync selects the sync vs async producer instance.
	Sync bool
}

// Publish serializes and sends a single envelope, following §4.4's
// five steps. In sync mode it blocks until the broker acknowledges the
// write and then runs the envelope's callback chain in order. In async
// mode it hands the message to the async producer's input channel and
// returns immediately; the callback chain runs later from drainAsync
// once delivery is confirmed.
func (p *Producer) Publish(e *envelope.Envelope, opts Options) error {
	topic := e.DestinationTopic
	if topic == "" {
		topic = opts.DefaultTopic
	}
	if topic == "" {
		return fmt.Errorf("bus: envelope has no destination and no output topic is configured")
	}

	var keyBytes []byte
	if e.Key != nil {
		kb, err := envelope.EncodeKey(e.Key)
		if err != nil {
			return fmt.Errorf("bus: encode key: %w", err)
		}
		keyBytes = kb
	} else if opts.Sequential {
		keyBytes = []byte(opts.LinkUID)
	}

	valueBytes, err := envelope.EncodeValue(e)
	if err != nil {
		return fmt.Errorf("bus: encode value: %w", err)
	}

	msg := &sarama.ProducerMessage{Topic: topic, Value: sarama.ByteEncoder(valueBytes)}
	if keyBytes != nil {
		msg.Key = sarama.ByteEncoder(keyBytes)
	}

	if opts.Sync {
		if _, _, err := p.sync.SendMessage(msg); err != nil {
			return fmt.Errorf("bus: sync publish failed: %w", err)
		}
		return envelope.ExecuteChain(e.Callbacks)
	}

	msg.Metadata = e.Callbacks
	p.async.Input() <- msg
	return nil
}

// Close flushes and closes both producer instances.
func (p *Producer) Close() error {
	var firstErr error
	p.closeOnce.Do(func() {
		if err := p.async.Close(); err != nil {
			firstErr = err
		}
		p.drainWG.Wait()
		if err := p.sync.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	})
	return firstErr
}
