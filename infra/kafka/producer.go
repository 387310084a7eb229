// Package kafka wraps the kafka-go writer used by the market-depth feed.
package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // one partition per pool key
			RequiredAcks: kafka.RequireOne,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Send publishes one message keyed by pool id, so per-pool ordering is
// preserved across partitions.
func (p *Producer) Send(ctx context.Context, pool string, value []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(pool),
		Value: value,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
