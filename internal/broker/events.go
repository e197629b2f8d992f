package appkafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

type EventType string

const (
	PostCreated    EventType = "post_created"
	UserRegistered EventType = "user_registered"
)

// Event is the payload published for account and post activity.
type Event struct {
	Type     EventType `json:"type"`
	UserID   string    `json:"user_id"`
	Username string    `json:"username,omitempty"`
	PostID   string    `json:"post_id,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher emits domain events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// EncodeEvent builds the Kafka message for ev, keyed by user so one user's
// events stay ordered within a partition.
func EncodeEvent(ev Event) (kafka.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(ev.UserID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}, nil
}

// DecodeEvent parses a message produced by EncodeEvent.
func DecodeEvent(msg kafka.Message) (Event, error) {
	var ev Event
	err := json.Unmarshal(msg.Value, &ev)
	return ev, err
}

// WriterPublisher publishes events through a KafkaWriter.
type WriterPublisher struct {
	writer KafkaWriter
}

func NewPublisher(w KafkaWriter) *WriterPublisher {
	return &WriterPublisher{writer: w}
}

func (p *WriterPublisher) Publish(ctx context.Context, ev Event) error {
	msg, err := EncodeEvent(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *WriterPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops every event; used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
