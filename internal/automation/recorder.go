package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

// ExecutionStream is the stream finished runs are appended to.
const ExecutionStream = "decisionbot:executions"

// MultiRecorder fans a result out to every recorder and joins their errors.
type MultiRecorder []domain.ExecutionRecorder

// RecordExecution implements domain.ExecutionRecorder.
func (m MultiRecorder) RecordExecution(ctx context.Context, res domain.ExecutionResult) error {
	var errs []error
	for _, r := range m {
		if err := r.RecordExecution(ctx, res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StreamRecorder appends finished runs to a durable stream as JSON and
// announces them on a Pub/Sub channel of the same name.
type StreamRecorder struct {
	bus    domain.SignalBus
	stream string
}

// NewStreamRecorder creates a StreamRecorder. An empty stream name selects
// ExecutionStream.
func NewStreamRecorder(bus domain.SignalBus, stream string) *StreamRecorder {
	if stream == "" {
		stream = ExecutionStream
	}
	return &StreamRecorder{bus: bus, stream: stream}
}

// RecordExecution implements domain.ExecutionRecorder.
func (s *StreamRecorder) RecordExecution(ctx context.Context, res domain.ExecutionResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("automation: encode execution %s: %w", res.ID, err)
	}
	if err := s.bus.StreamAppend(ctx, s.stream, payload); err != nil {
		return fmt.Errorf("automation: stream execution %s: %w", res.ID, err)
	}
	if err := s.bus.Publish(ctx, s.stream, payload); err != nil {
		return fmt.Errorf("automation: publish execution %s: %w", res.ID, err)
	}
	return nil
}

var (
	_ domain.ExecutionRecorder = MultiRecorder(nil)
	_ domain.ExecutionRecorder = (*StreamRecorder)(nil)
)
