package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestOpportunitySink_Emit(t *testing.T) {
	w := &fakeWriter{}
	sink := NewOpportunitySink(w)
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	rec := domain.OpportunityRecord{ID: "o1", PairID: "fed", Profit: 3, Admission: "Admitted", DetectedAt: at}
	if err := sink.Emit(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	m := w.msgs[0]
	if string(m.Key) != "fed" || !m.Time.Equal(at) {
		t.Errorf("key/time = %s/%v", m.Key, m.Time)
	}
	if len(m.Headers) != 1 || string(m.Headers[0].Value) != "Admitted" {
		t.Errorf("headers = %v", m.Headers)
	}
	var back domain.OpportunityRecord
	if err := json.Unmarshal(m.Value, &back); err != nil || back.Profit != 3 {
		t.Errorf("value = %s (%v)", m.Value, err)
	}

	if err := sink.Close(); err != nil || !w.closed {
		t.Error("Close not forwarded")
	}
}

func TestOpportunitySink_WrapsWriteError(t *testing.T) {
	boom := errors.New("leader not available")
	sink := NewOpportunitySink(&fakeWriter{err: boom})
	if err := sink.Emit(context.Background(), domain.OpportunityRecord{ID: "o1"}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
}

func TestEnsureTopic_NoBrokers(t *testing.T) {
	if err := EnsureTopic(context.Background(), nil, "t", 1); err == nil {
		t.Error("expected error with no brokers")
	}
	if err := WaitForBroker(context.Background(), nil); err == nil {
		t.Error("expected error with no brokers")
	}
}
