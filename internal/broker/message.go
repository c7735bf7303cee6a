// Package broker provides the in-process message broker for agent-to-agent
// communication: per-agent FIFO queues, broadcast fan-out, and a bounded
// message history.
package broker

import (
	"fmt"
	"time"
)

// Broadcast is the sentinel recipient meaning "every other registered agent".
const Broadcast = "all"

// MessageKind classifies the intent of a message.
type MessageKind string

// Message kind constants.
const (
	KindRequest       MessageKind = "request"
	KindResponse      MessageKind = "response"
	KindBroadcast     MessageKind = "broadcast"
	KindNotification  MessageKind = "notification"
	KindDelegation    MessageKind = "delegation"
	KindCollaboration MessageKind = "collaboration"
	KindFeedback      MessageKind = "feedback"
	KindImprovement   MessageKind = "improvement"
)

// ParseMessageKind maps a stored string to a MessageKind, rejecting unknown
// values so corrupt state fails loud at the persistence boundary.
func ParseMessageKind(s string) (MessageKind, error) {
	switch MessageKind(s) {
	case KindRequest, KindResponse, KindBroadcast, KindNotification,
		KindDelegation, KindCollaboration, KindFeedback, KindImprovement:
		return MessageKind(s), nil
	}
	return "", fmt.Errorf("unknown message kind %q", s)
}

// Priority orders messages by urgency. Delivery itself is FIFO per queue;
// priority is advisory metadata for the consumer.
type Priority string

// Priority constants.
const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority maps a stored string to a Priority.
func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return Priority(s), nil
	}
	return "", fmt.Errorf("unknown priority %q", s)
}

// Message is one unit of agent-to-agent communication. Treated as immutable
// once enqueued, except that the broker assigns ID when it is empty.
type Message struct {
	ID               string            `json:"id"`
	Kind             MessageKind       `json:"kind"`
	From             string            `json:"from"`
	To               string            `json:"to"`
	Body             string            `json:"body"`
	Context          map[string]any    `json:"context,omitempty"`
	Priority         Priority          `json:"priority"`
	CreatedAt        time.Time         `json:"created_at"`
	RequiresResponse bool              `json:"requires_response,omitempty"`
	InResponseTo     string            `json:"in_response_to,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// clone returns a shallow copy sharing the context and metadata maps. Copies
// are only created for broadcast fan-out, where recipients must not mutate
// the shared payload.
func (m *Message) clone() *Message {
	c := *m
	return &c
}
