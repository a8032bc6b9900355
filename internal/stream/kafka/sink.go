package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// MessageWriter is the subset of *kafka.Writer the sink needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OpportunitySink writes each record as a JSON message keyed by pair id.
type OpportunitySink struct {
	w MessageWriter
}

// NewOpportunitySink wraps w.
func NewOpportunitySink(w MessageWriter) *OpportunitySink {
	return &OpportunitySink{w: w}
}

// Name implements domain.OpportunitySink.
func (s *OpportunitySink) Name() string { return "kafka" }

// Emit implements domain.OpportunitySink.
func (s *OpportunitySink) Emit(ctx context.Context, rec domain.OpportunityRecord) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("kafka: marshal opportunity %s: %w", rec.ID, err)
	}
	msg := kafka.Message{
		Key:   []byte(rec.PairID),
		Value: value,
		Time:  rec.DetectedAt,
		Headers: []kafka.Header{
			{Key: "admission", Value: []byte(rec.Admission)},
		},
	}
	if err := s.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write opportunity %s: %w", rec.ID, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (s *OpportunitySink) Close() error {
	return s.w.Close()
}

var _ domain.OpportunitySink = (*OpportunitySink)(nil)
