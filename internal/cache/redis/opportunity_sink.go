package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// OpportunitySink publishes each record on a Pub/Sub channel for live
// consumers and appends it to a stream for late readers.
type OpportunitySink struct {
	bus     domain.SignalBus
	channel string
	stream  string
}

// NewOpportunitySink creates a sink. An empty channel or stream disables
// that half.
func NewOpportunitySink(bus domain.SignalBus, channel, stream string) *OpportunitySink {
	return &OpportunitySink{bus: bus, channel: channel, stream: stream}
}

// Name implements domain.OpportunitySink.
func (s *OpportunitySink) Name() string { return "redis" }

// Emit implements domain.OpportunitySink.
func (s *OpportunitySink) Emit(ctx context.Context, rec domain.OpportunityRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redis: marshal opportunity %s: %w", rec.ID, err)
	}
	if s.channel != "" {
		if err := s.bus.Publish(ctx, s.channel, payload); err != nil {
			return err
		}
	}
	if s.stream != "" {
		if err := s.bus.StreamAppend(ctx, s.stream, payload); err != nil {
			return err
		}
	}
	return nil
}

var _ domain.OpportunitySink = (*OpportunitySink)(nil)
