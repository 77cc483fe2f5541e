// Package bus wraps the Kafka bus client (github.com/IBM/sarama) with
// the two producer instances and two consumer configurations the
// runtime core needs. The bus client library itself is an external
// collaborator per spec.md §1 — this package fixes only the
// configuration and the narrow surface (§6) the rest of the core
// depends on.
package bus

import (
	"time"

	"github.com/IBM/sarama"
)

// fetchCeilingBytes is the 1 MiB fetch/message ceiling required by §6.
const fetchCeilingBytes = 1 << 20

// SyncProducerConfig returns the configuration for the sync producer:
// acks from all replicas, effectively unbounded retries, batch size 1,
// single in-flight request, snappy compression — §4.4 and §6.
func SyncProducerConfig() *sarama.Config {
	cfg := baseProducerConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 10000000 // effectively unbounded, per §6
	cfg.Producer.Return.Successes = true
	return cfg
}

// AsyncProducerConfig returns the configuration for the async producer:
// ack from leader only, retries capped at 10 — §4.4 and §6.
func AsyncProducerConfig() *sarama.Config {
	cfg := baseProducerConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Retry.Max = 10
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	return cfg
}

func baseProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_8_0_0
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.MaxMessageBytes = fetchCeilingBytes
	cfg.Producer.Partitioner = sarama.NewRoundRobinPartitioner
	cfg.Producer.Flush.MaxMessages = 1    // batch size 1
	cfg.Producer.Flush.Frequency = time.Millisecond
	cfg.Net.MaxOpenRequests = 1 // max in-flight 1
	return cfg
}

// ConsumerConfig returns the configuration shared by both consumer
// threads, differing only in auto-commit per §6: async mode commits
// automatically, sync mode commits manually through
// envelope.KindCommitSourceMessage callbacks.
func ConsumerConfig(autoCommit bool, consumerTimeout time.Duration) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_8_0_0
	cfg.Consumer.Fetch.Max = fetchCeilingBytes
	cfg.Metadata.RefreshFrequency = 10 * time.Second
	cfg.Consumer.Group.Session.Timeout = 10 * time.Second
	cfg.Consumer.Group.Rebalance.Timeout = consumerTimeout
	cfg.Consumer.MaxProcessingTime = consumerTimeout
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest // offset reset = smallest
	cfg.Consumer.Offsets.AutoCommit.Enable = autoCommit
	cfg.Consumer.Return.Errors = true
	return cfg
}

// PollTimeoutMain and PollTimeoutRPC are the bus poll timeouts from §5:
// 3s for the main consumer, 5s for the RPC consumer. Passed to
// NewConsumer and used by groupHandler.ConsumeClaim as the idle-poll
// liveness interval (§5's poll timeout has no literal equivalent in
// sarama's push-based ConsumeClaim, so it governs a log line rather
// than gating message delivery).
const (
	PollTimeoutMain = 3 * time.Second
	PollTimeoutRPC  = 5 * time.Second
)
