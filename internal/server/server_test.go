package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/market"
	"github.com/alanyoungcy/crossarb/internal/position"
	"github.com/alanyoungcy/crossarb/internal/risk"
	"github.com/alanyoungcy/crossarb/internal/server/handler"
	"github.com/alanyoungcy/crossarb/internal/service"
)

var testPairs = []domain.MarketPair{
	{ID: "fed-cut", DisplayName: "Fed cuts in March", KalshiTicker: "FED-MAR", PolyYesToken: "y1", PolyNoToken: "n1"},
}

type fakeJournal struct {
	mu    sync.Mutex
	limit int
	recs  []domain.OpportunityRecord
}

func (j *fakeJournal) ListRecent(_ context.Context, limit int) ([]domain.OpportunityRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.limit = limit
	return j.recs, nil
}

type countingLimiter struct {
	mu    sync.Mutex
	calls map[string]int
}

func (l *countingLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.calls == nil {
		l.calls = make(map[string]int)
	}
	l.calls[key]++
	return l.calls[key] <= limit, nil
}

type fixture struct {
	store *market.Store
	risk  *service.RiskService
	h     http.Handler
}

func newFixture(t *testing.T, cfg Config, journal handler.OpportunityLister, limiter domain.RateLimiter) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := market.NewStore(testPairs, logger)
	st := &domain.BreakerState{}
	riskSvc := service.NewRiskService(st,
		risk.NewCircuitBreaker(risk.Limits{MaxPositionSize: 10, MaxDailyLoss: 5000}, st, logger),
		position.NewTracker(st, store),
		logger,
	)
	h := NewHandler(cfg, Handlers{
		Health:        handler.NewHealthHandler(time.Now()),
		Status:        handler.NewStatusHandler("bus", true, riskSvc, nil, logger),
		Pairs:         handler.NewPairHandler(testPairs, store, logger),
		Positions:     handler.NewPositionHandler(riskSvc),
		Opportunities: handler.NewOpportunityHandler(journal, logger),
		Breaker:       handler.NewBreakerHandler(riskSvc, logger),
	}, nil, limiter, logger)
	return &fixture{store: store, risk: riskSvc, h: h}
}

func (f *fixture) do(t *testing.T, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestAuth_HealthIsPublic(t *testing.T) {
	f := newFixture(t, Config{APIKey: "secret"}, nil, nil)

	if rec := f.do(t, http.MethodGet, "/api/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("health: status %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/status", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without token: %d, want 401", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/status", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status with wrong token: %d, want 401", rec.Code)
	}

	rec := f.do(t, http.MethodGet, "/api/status", "secret")
	if rec.Code != http.StatusOK {
		t.Fatalf("status with token: %d", rec.Code)
	}
	var body struct {
		Mode    string `json:"mode"`
		DryRun  bool   `json:"dry_run"`
		Breaker struct {
			State           string `json:"state"`
			MaxPositionSize int64  `json:"max_position_size"`
		} `json:"breaker"`
	}
	decode(t, rec, &body)
	if body.Mode != "bus" || !body.DryRun {
		t.Errorf("mode/dry_run = %q/%v", body.Mode, body.DryRun)
	}
	if body.Breaker.State != "ARMED" || body.Breaker.MaxPositionSize != 10 {
		t.Errorf("breaker = %+v", body.Breaker)
	}
}

func TestPairs_ReportsQuotes(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)
	f.store.Apply(domain.QuoteUpdate{
		Venue:        domain.VenueKalshi,
		MarketPairID: "fed-cut",
		Side:         domain.SideYes,
		Price:        40,
		ObservedAt:   time.Now(),
	})

	rec := f.do(t, http.MethodGet, "/api/pairs", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var list struct {
		Pairs []struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			KalshiYes *struct {
				PriceCents int64 `json:"price_cents"`
			} `json:"kalshi_yes"`
			PolyNo *struct{} `json:"polymarket_no"`
		} `json:"pairs"`
	}
	decode(t, rec, &list)
	if len(list.Pairs) != 1 {
		t.Fatalf("pairs = %d, want 1", len(list.Pairs))
	}
	p := list.Pairs[0]
	if p.ID != "fed-cut" || p.Name != "Fed cuts in March" {
		t.Errorf("pair = %+v", p)
	}
	if p.KalshiYes == nil || p.KalshiYes.PriceCents != 40 {
		t.Errorf("kalshi_yes = %+v, want 40", p.KalshiYes)
	}
	if p.PolyNo != nil {
		t.Error("polymarket_no should be null before any quote")
	}

	if rec := f.do(t, http.MethodGet, "/api/pairs/fed-cut", ""); rec.Code != http.StatusOK {
		t.Errorf("get pair: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/pairs/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown pair: %d, want 404", rec.Code)
	}
}

func TestPositions_ListsAdmittedFills(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)
	opp := domain.ArbOpportunity{
		ID:        "opp-1",
		PairID:    "fed-cut",
		Strategy:  domain.StrategyKalshiYesPolyNo,
		Yes:       domain.Leg{Venue: domain.VenueKalshi, Side: domain.SideYes, Price: 40},
		No:        domain.Leg{Venue: domain.VenuePolymarket, Side: domain.SideNo, Price: 50},
		TotalCost: 92,
		Profit:    8,
	}
	if _, err := f.risk.Process(context.Background(), opp, 2); err != nil {
		t.Fatal(err)
	}

	rec := f.do(t, http.MethodGet, "/api/positions", "")
	var body struct {
		Positions []struct {
			PairID   string `json:"market_pair_id"`
			Quantity int64  `json:"quantity"`
			Lots     []struct {
				YesVenue string `json:"yes_venue"`
				NoVenue  string `json:"no_venue"`
			} `json:"lots"`
		} `json:"positions"`
	}
	decode(t, rec, &body)
	if len(body.Positions) != 1 {
		t.Fatalf("positions = %d, want 1", len(body.Positions))
	}
	pos := body.Positions[0]
	if pos.PairID != "fed-cut" || pos.Quantity != 2 || len(pos.Lots) != 1 {
		t.Fatalf("position = %+v", pos)
	}
	if pos.Lots[0].YesVenue != "kalshi" || pos.Lots[0].NoVenue != "polymarket" {
		t.Errorf("lot venues = %+v", pos.Lots[0])
	}
}

func TestOpportunities(t *testing.T) {
	t.Run("no journal", func(t *testing.T) {
		f := newFixture(t, Config{}, nil, nil)
		if rec := f.do(t, http.MethodGet, "/api/opportunities/recent", ""); rec.Code != http.StatusNotImplemented {
			t.Fatalf("status %d, want 501", rec.Code)
		}
	})

	t.Run("limit is capped", func(t *testing.T) {
		j := &fakeJournal{recs: []domain.OpportunityRecord{{ID: "a", PairID: "fed-cut", Admitted: true}}}
		f := newFixture(t, Config{}, j, nil)
		rec := f.do(t, http.MethodGet, "/api/opportunities/recent?limit=5000", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status %d", rec.Code)
		}
		if j.limit != 200 {
			t.Errorf("limit = %d, want 200", j.limit)
		}
		if !strings.Contains(rec.Body.String(), `"market_pair_id":"fed-cut"`) {
			t.Errorf("body = %s", rec.Body.String())
		}
	})
}

func TestBreakerReset(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)

	// 11 contracts exceed the size limit of 10.
	opp := domain.ArbOpportunity{ID: "o", PairID: "fed-cut", TotalCost: 90, Profit: 10}
	if _, err := f.risk.Process(context.Background(), opp, 11); err != nil {
		t.Fatal(err)
	}
	if f.risk.Summary().BreakerState != risk.StateTripped {
		t.Fatal("breaker should be tripped")
	}

	if rec := f.do(t, http.MethodGet, "/api/breaker/reset", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET reset: %d, want 405", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/breaker/reset", ""); rec.Code != http.StatusOK {
		t.Fatalf("POST reset: %d", rec.Code)
	}
	if f.risk.Summary().BreakerState != risk.StateArmed {
		t.Error("breaker should be armed after reset")
	}
}

func TestRateLimit(t *testing.T) {
	lim := &countingLimiter{}
	f := newFixture(t, Config{RateLimit: 2}, nil, lim)

	for i := 0; i < 2; i++ {
		if rec := f.do(t, http.MethodGet, "/api/health", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d: %d", i, rec.Code)
		}
	}
	rec := f.do(t, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request: %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

func TestCORS_Preflight(t *testing.T) {
	f := newFixture(t, Config{CORSOrigins: []string{"https://dash.example"}}, nil, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/status", nil)
	req.Header.Set("Origin", "https://dash.example")
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example" {
		t.Errorf("allow-origin = %q", got)
	}
}
