// Package pubsub implements a Google Cloud Pub/Sub event sink.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// Sink publishes events to a Pub/Sub topic. The event name travels as a
// message attribute so subscribers can filter without decoding payloads.
type Sink struct {
	topic *pubsub.Topic
}

// New creates a Sink for the provided topic.
func New(topic *pubsub.Topic) *Sink {
	return &Sink{topic: topic}
}

// NewFromProject creates a client and Sink for project and topic IDs.
func NewFromProject(ctx context.Context, projectID, topicID string) (*Sink, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(topicID)
	ok, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check pubsub topic: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", topicID, projectID)
	}
	return &Sink{topic: topic}, nil
}

// Emit marshals the payload to JSON and publishes it, waiting for the
// server acknowledgment.
func (s *Sink) Emit(ctx context.Context, event string, payload any) error {
	if s.topic == nil {
		return fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	result := s.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"event": event},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Close stops the topic's background goroutines.
func (s *Sink) Close() {
	if s.topic != nil {
		s.topic.Stop()
	}
}
