package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/carehub/carehub/internal/platform/metrics"
)

// Producer is the slice of *kgo.Client the Kafka sink needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaSink publishes events keyed by entity id, so all events of one
// booking land on the same partition in order. A circuit breaker stops the
// request path from waiting on an unreachable cluster.
type KafkaSink struct {
	producer Producer
	topic    string
	breaker  *gobreaker.CircuitBreaker
}

type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      1,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

func NewKafkaSink(producer Producer, topic string, cfg BreakerConfig, m *metrics.Metrics) *KafkaSink {
	const name = "audit-kafka"
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
	}
	if m != nil {
		settings.OnStateChange = func(name string, _ gobreaker.State, to gobreaker.State) {
			m.BreakerState.WithLabelValues(name).Set(float64(to))
		}
		m.BreakerState.WithLabelValues(name).Set(float64(gobreaker.StateClosed))
	}
	return &KafkaSink{
		producer: producer,
		topic:    topic,
		breaker:  gobreaker.NewCircuitBreaker(settings),
	}
}

// NewKafkaClient builds the franz-go client used by the sink.
func NewKafkaClient(brokers []string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5*time.Millisecond),
		kgo.RecordRetries(3),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Write(ctx context.Context, ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	rec := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(ev.EntityID.String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(ev.Action)},
			{Key: "request_id", Value: []byte(ev.Actor.RequestID)},
		},
	}
	_, err = s.breaker.Execute(func() (interface{}, error) {
		return nil, s.producer.ProduceSync(ctx, rec).FirstErr()
	})
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", ev.Action, s.topic, err)
	}
	return nil
}
