// Package relay federates broadcast and delegation traffic between
// forgeloop nodes over Kafka. Each node publishes its outbound messages
// wrapped in an envelope carrying its node id, and injects inbound
// envelopes from other nodes into the local broker.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/forgeloop/forgeloop/internal/broker"
	"github.com/forgeloop/forgeloop/internal/config"
)

// metadataRelayOrigin marks a message as injected by the relay. Messages
// carrying it are never forwarded again, which stops ping-pong between
// nodes.
const metadataRelayOrigin = "relay_origin"

// Producer publishes relay envelopes.
type Producer interface {
	Publish(ctx context.Context, key string, value []byte) error
	Close() error
}

// Consumer delivers raw relay envelopes from the wire.
type Consumer interface {
	Start(ctx context.Context) error
	Messages() <-chan []byte
	Close() error
}

// envelope is the wire format on the federation topic.
type envelope struct {
	NodeID  string          `json:"node_id"`
	Message *broker.Message `json:"message"`
}

// Relay bridges the local broker and the federation topic. It implements
// broker.Forwarder for the outbound side.
type Relay struct {
	nodeID   string
	broker   *broker.Broker
	producer Producer
	consumer Consumer

	closeOnce sync.Once
	done      chan struct{}
}

// New builds a relay from config, wiring Kafka transport for the topic
// "<prefix>.federation". The returned relay is inert until Start.
func New(cfg config.RelayConfig, b *broker.Broker) *Relay {
	nodeID := cfg.NodeID
	if nodeID == "" {
		nodeID = uuid.NewString()
	}
	topic := cfg.TopicPrefix + ".federation"
	// Every node needs the full stream, so the consumer group is unique
	// per node.
	group := cfg.GroupID + "-" + nodeID
	return &Relay{
		nodeID:   nodeID,
		broker:   b,
		producer: newKafkaProducer(cfg.Brokers, topic),
		consumer: newKafkaConsumer(cfg.Brokers, group, topic),
		done:     make(chan struct{}),
	}
}

// NewWithTransport builds a relay over explicit producer and consumer
// implementations. Used by tests.
func NewWithTransport(nodeID string, b *broker.Broker, p Producer, c Consumer) *Relay {
	if nodeID == "" {
		nodeID = uuid.NewString()
	}
	return &Relay{
		nodeID:   nodeID,
		broker:   b,
		producer: p,
		consumer: c,
		done:     make(chan struct{}),
	}
}

// NodeID returns this relay's node identity on the federation topic.
func (r *Relay) NodeID() string { return r.nodeID }

// Forward implements broker.Forwarder. Messages the relay itself injected
// are dropped here instead of bouncing back onto the topic.
func (r *Relay) Forward(msg *broker.Message) error {
	if msg == nil || msg.Metadata[metadataRelayOrigin] != "" {
		return nil
	}
	data, err := json.Marshal(envelope{NodeID: r.nodeID, Message: msg})
	if err != nil {
		return err
	}
	return r.producer.Publish(context.Background(), msg.ID, data)
}

// Start begins consuming the federation topic and injecting remote
// messages into the local broker. Runs until ctx is cancelled or Close.
func (r *Relay) Start(ctx context.Context) error {
	if err := r.consumer.Start(ctx); err != nil {
		return err
	}
	go r.run(ctx)
	return nil
}

func (r *Relay) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case data, ok := <-r.consumer.Messages():
			if !ok {
				return
			}
			r.inject(data)
		}
	}
}

// inject decodes one envelope and hands the message to the local broker.
// Own messages come back through the consumer group and are skipped by
// node id.
func (r *Relay) inject(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		slog.Warn("Relay: undecodable envelope", "error", err)
		return
	}
	if env.Message == nil || env.NodeID == r.nodeID {
		return
	}
	msg := env.Message
	if msg.Metadata == nil {
		msg.Metadata = make(map[string]string)
	}
	msg.Metadata[metadataRelayOrigin] = env.NodeID
	if !r.broker.Send(msg) {
		slog.Warn("Relay: inbound message undeliverable", "id", msg.ID, "to", msg.To, "origin", env.NodeID)
	}
}

// Close stops the run loop and releases the transport.
func (r *Relay) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.done)
		if cerr := r.consumer.Close(); cerr != nil {
			err = cerr
		}
		if perr := r.producer.Close(); perr != nil && err == nil {
			err = perr
		}
	})
	return err
}
