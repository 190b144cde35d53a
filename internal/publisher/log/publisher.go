// Package log provides an event sink that writes events to the logger.
// It is the default sink when no Pub/Sub topic is configured.
package log

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Sink logs emitted events at info level.
type Sink struct {
	logger *zap.Logger
}

// New returns a logging Sink.
func New(logger *zap.Logger) *Sink {
	return &Sink{logger: logger}
}

// Emit logs the event with its JSON payload.
func (s *Sink) Emit(_ context.Context, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	s.logger.Info("event emitted",
		zap.String("event", event),
		zap.ByteString("payload", data),
	)
	return nil
}
