package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/platform/kalshi"
	"github.com/alanyoungcy/crossarb/internal/platform/polymarket"
	"github.com/alanyoungcy/crossarb/internal/risk"
)

type fakeKalshi map[string]kalshi.Market

func (f fakeKalshi) GetMarket(_ context.Context, ticker string) (kalshi.Market, error) {
	m, ok := f[ticker]
	if !ok {
		return kalshi.Market{}, domain.ErrNotFound
	}
	return m, nil
}

type fakePoly map[string]polymarket.Resolution

func (f fakePoly) GetMarketResolution(_ context.Context, ref string) (polymarket.Resolution, error) {
	r, ok := f[ref]
	if !ok {
		return polymarket.Resolution{}, domain.ErrNotFound
	}
	return r, nil
}

type recordingJournal struct {
	mu   sync.Mutex
	sets []domain.Settlement
}

func (j *recordingJournal) InsertSettlement(_ context.Context, s domain.Settlement) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.sets = append(j.sets, s)
	return nil
}

func (j *recordingJournal) Settled(ctx context.Context, s domain.Settlement) error {
	return j.InsertSettlement(ctx, s)
}

type recordingBus struct {
	mu       sync.Mutex
	messages map[string][][]byte
	err      error
}

func (b *recordingBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	if b.messages == nil {
		b.messages = make(map[string][][]byte)
	}
	b.messages[channel] = append(b.messages[channel], payload)
	return nil
}

func (b *recordingBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, nil
}

func (b *recordingBus) StreamAppend(context.Context, string, []byte) error { return nil }

var watchedPairs = []domain.MarketPair{
	{ID: "p1", KalshiTicker: "KX-P1", PolyMarket: "poly-p1", PolyYesToken: "y1", PolyNoToken: "n1"},
	{ID: "p2", KalshiTicker: "KX-P2", PolyMarket: "poly-p2", PolyYesToken: "y2", PolyNoToken: "n2"},
}

func openPosition(t *testing.T, svc *RiskService, pair string, cost domain.Cents) {
	t.Helper()
	adm, err := svc.Process(context.Background(), opportunity(pair, cost), 1)
	if err != nil || !adm.Admitted {
		t.Fatalf("Process(%s) = %v, %v", pair, adm, err)
	}
}

func TestResolutionWatcher_SettlesResolvedPair(t *testing.T) {
	svc := newTestRisk(risk.DefaultLimits())
	openPosition(t, svc, "p1", 95)
	openPosition(t, svc, "p2", 96)

	journal := &recordingJournal{}
	bus := &recordingBus{}
	w := NewResolutionWatcher(ResolutionConfig{
		Kalshi: fakeKalshi{
			"KX-P1": {Ticker: "KX-P1", Status: "settled", Result: "no"},
			"KX-P2": {Ticker: "KX-P2", Status: "active"},
		},
		Risk:    svc,
		Journal: journal,
		Bus:     bus,
	}, watchedPairs, slog.New(slog.NewTextHandler(io.Discard, nil)))

	got := w.Check(context.Background())
	if len(got) != 1 {
		t.Fatalf("settlements = %d, want 1", len(got))
	}
	if got[0].PairID != "p1" || got[0].Payout != domain.PayoutCents || got[0].RealizedPnL != 5 {
		t.Errorf("settlement = %+v", got[0])
	}
	if open := svc.OpenPairs(); len(open) != 1 || open[0] != "p2" {
		t.Errorf("open pairs = %v, want [p2]", open)
	}
	if len(journal.sets) != 1 {
		t.Errorf("journaled %d settlements, want 1", len(journal.sets))
	}

	msgs := bus.messages["settlements"]
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	var ev map[string]any
	if err := json.Unmarshal(msgs[0], &ev); err != nil {
		t.Fatal(err)
	}
	if ev["pair_id"] != "p1" || ev["result"] != "no" {
		t.Errorf("event = %v", ev)
	}

	// Already settled: a second pass does nothing.
	if again := w.Check(context.Background()); len(again) != 0 {
		t.Errorf("second check settled %d", len(again))
	}
}

func TestResolutionWatcher_CrossCheck(t *testing.T) {
	tests := []struct {
		name   string
		poly   polymarket.Resolution
		settle bool
	}{
		{"agree", polymarket.Resolution{Closed: true, Decided: true, YesWon: true}, true},
		{"disagree", polymarket.Resolution{Closed: true, Decided: true, YesWon: false}, false},
		{"polymarket open", polymarket.Resolution{}, false},
		{"closed undecided", polymarket.Resolution{Closed: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestRisk(risk.DefaultLimits())
			openPosition(t, svc, "p1", 97)
			notifier := &recordingJournal{}

			w := NewResolutionWatcher(ResolutionConfig{
				Kalshi:     fakeKalshi{"KX-P1": {Status: "finalized", Result: "yes"}},
				Polymarket: fakePoly{"poly-p1": tt.poly},
				Risk:       svc,
				Notifier:   notifier,
			}, watchedPairs, slog.New(slog.NewTextHandler(io.Discard, nil)))

			got := w.Check(context.Background())
			if (len(got) == 1) != tt.settle {
				t.Fatalf("settled = %d, want settle=%v", len(got), tt.settle)
			}
			if (len(notifier.sets) == 1) != tt.settle {
				t.Errorf("notified = %d, want settle=%v", len(notifier.sets), tt.settle)
			}
			if !tt.settle && len(svc.OpenPairs()) != 1 {
				t.Error("position closed despite unconfirmed resolution")
			}
		})
	}
}

func TestResolutionWatcher_SkipsVoidResult(t *testing.T) {
	svc := newTestRisk(risk.DefaultLimits())
	openPosition(t, svc, "p1", 95)
	w := NewResolutionWatcher(ResolutionConfig{
		Kalshi: fakeKalshi{"KX-P1": {Status: "settled", Result: "void"}},
		Risk:   svc,
	}, watchedPairs, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if got := w.Check(context.Background()); len(got) != 0 {
		t.Fatalf("settled %d, want 0", len(got))
	}
	if len(svc.OpenPairs()) != 1 {
		t.Error("void market should leave the position open")
	}
}

func TestResolutionWatcher_PublishFailureIsLogged(t *testing.T) {
	svc := newTestRisk(risk.DefaultLimits())
	openPosition(t, svc, "p1", 95)

	var logs bytes.Buffer
	journal := &recordingJournal{}
	w := NewResolutionWatcher(ResolutionConfig{
		Kalshi:  fakeKalshi{"KX-P1": {Status: "settled", Result: "yes"}},
		Risk:    svc,
		Journal: journal,
		Bus:     &recordingBus{err: errors.New("bus down")},
	}, watchedPairs, slog.New(slog.NewTextHandler(&logs, nil)))

	if got := w.Check(context.Background()); len(got) != 1 {
		t.Fatalf("settled %d, want 1", len(got))
	}
	if len(journal.sets) != 1 {
		t.Errorf("journaled %d settlements, want 1", len(journal.sets))
	}
	out := logs.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "settlement publish failed") || !strings.Contains(out, "pair=p1") {
		t.Errorf("missing publish warning in logs:\n%s", out)
	}
}
