package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// kafkaProducer publishes envelopes through a kafka-go writer.
type kafkaProducer struct {
	w *kafka.Writer
}

func newKafkaProducer(brokers []string, topic string) *kafkaProducer {
	return &kafkaProducer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

func (p *kafkaProducer) Publish(ctx context.Context, key string, value []byte) error {
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	})
}

func (p *kafkaProducer) Close() error { return p.w.Close() }

// kafkaConsumer reads envelopes through a kafka-go reader and fans them
// into a channel.
type kafkaConsumer struct {
	reader   *kafka.Reader
	messages chan []byte
}

func newKafkaConsumer(brokers []string, group, topic string) *kafkaConsumer {
	return &kafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  group,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		messages: make(chan []byte, 100),
	}
}

func (c *kafkaConsumer) Start(ctx context.Context) error {
	go func() {
		for {
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, io.ErrClosedPipe) {
					return
				}
				slog.Warn("Relay: kafka read error", "error", err)
				continue
			}
			c.messages <- msg.Value
		}
	}()
	return nil
}

func (c *kafkaConsumer) Messages() <-chan []byte { return c.messages }

func (c *kafkaConsumer) Close() error { return c.reader.Close() }
