// Package broadcaster drains the durable event outbox to Kafka. Delivery
// is at-least-once: an entry is marked SENT before the publish attempt
// and ACKED only after the broker accepts it, so a crash in between
// re-sends rather than drops.
package broadcaster

import (
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
	"gopkg.in/tomb.v2"

	"scalex/infra/outbox"
)

const maxRetries = 5

type Broadcaster struct {
	log      *zap.Logger
	outbox   *outbox.Outbox
	producer sarama.SyncProducer
	topic    string
	interval time.Duration
	tomb     tomb.Tomb
}

func New(log *zap.Logger, ob *outbox.Outbox, brokers []string, topic string) (*Broadcaster, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return &Broadcaster{
		log:      log,
		outbox:   ob,
		producer: producer,
		topic:    topic,
		interval: 250 * time.Millisecond,
	}, nil
}

func (b *Broadcaster) Start() {
	b.tomb.Go(b.loop)
}

func (b *Broadcaster) loop() error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.tomb.Dying():
			return nil
		case <-ticker.C:
			b.drainOnce()
		}
	}
}

// drainOnce walks NEW entries in sequence order, then retries SENT
// entries left behind by a crash mid-publish.
func (b *Broadcaster) drainOnce() {
	for _, state := range []outbox.State{outbox.StateNew, outbox.StateSent} {
		err := b.outbox.ScanByState(state, func(seq uint64, e outbox.Entry) error {
			return b.publish(seq, e)
		})
		if err != nil {
			b.log.Error("outbox scan failed", zap.Error(err))
		}
	}
}

func (b *Broadcaster) publish(seq uint64, e outbox.Entry) error {
	if e.Retries >= maxRetries {
		b.log.Error("event delivery abandoned",
			zap.Uint64("seq", seq), zap.Uint32("retries", e.Retries))
		return b.outbox.UpdateState(seq, outbox.StateFailed, e.Retries)
	}

	if err := b.outbox.UpdateState(seq, outbox.StateSent, e.Retries+1); err != nil {
		return err
	}

	// A fixed key keeps every event on one partition, in order.
	msg := &sarama.ProducerMessage{
		Topic: b.topic,
		Key:   sarama.StringEncoder("events"),
		Value: sarama.ByteEncoder(e.Payload),
	}
	if _, _, err := b.producer.SendMessage(msg); err != nil {
		b.log.Warn("event publish failed, will retry",
			zap.Uint64("seq", seq), zap.Error(err))
		return nil
	}

	if err := b.outbox.UpdateState(seq, outbox.StateAcked, e.Retries+1); err != nil {
		return err
	}
	return b.outbox.Delete(seq)
}

// Stop halts the drain loop and closes the producer.
func (b *Broadcaster) Stop() error {
	b.tomb.Kill(nil)
	err := b.tomb.Wait()
	if cerr := b.producer.Close(); err == nil {
		err = cerr
	}
	return err
}
