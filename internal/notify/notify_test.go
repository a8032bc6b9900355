package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

type recordingSender struct {
	name   string
	titles []string
	err    error
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotifier_FiltersEvents(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{EventTripped}, discard())

	_ = n.Notify(context.Background(), EventAdmitted, "a", "")
	_ = n.Notify(context.Background(), EventTripped, "b", "")
	if len(s.titles) != 1 || s.titles[0] != "b" {
		t.Errorf("titles = %v, want [b]", s.titles)
	}
}

func TestNotifier_ContinuesPastFailures(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discard())

	err := n.Notify(context.Background(), EventAdmitted, "t", "m")
	if err == nil || !strings.Contains(err.Error(), "bad: boom") {
		t.Errorf("err = %v", err)
	}
	if len(good.titles) != 1 {
		t.Error("second sender skipped after first failed")
	}
}

func TestTelegramSender_Send(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	s := NewTelegramSender(srv.URL, "TOKEN", "42")
	if err := s.Send(context.Background(), "Title", "body"); err != nil {
		t.Fatal(err)
	}
	if got["chat_id"] != "42" || got["text"] != "*Title*\nbody" {
		t.Errorf("payload = %v", got)
	}
}

func TestDiscordSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("err = %v, want status 429", err)
	}
}

func TestSink_RoutesByAdmission(t *testing.T) {
	s := &recordingSender{name: "rec"}
	sink := NewSink(NewNotifier([]Sender{s}, []string{EventRejected}, discard()))

	rec := domain.OpportunityRecord{MarketName: "Fed", Admitted: true, Admission: "Admitted"}
	_ = sink.Emit(context.Background(), rec)
	rec.Admitted, rec.Admission = false, "Rejected(CircuitOpen)"
	_ = sink.Emit(context.Background(), rec)

	if len(s.titles) != 1 {
		t.Errorf("sent %d notifications, want 1", len(s.titles))
	}
}

func TestFormatOpportunity(t *testing.T) {
	msg := FormatOpportunity(domain.OpportunityRecord{
		Description: "Buy Kalshi YES + Polymarket NO",
		YesPrice:    42, NoPrice: 55, Fee: 2, TotalCost: 99,
		Profit: 1, ProfitPct: 1.0101, Quantity: 1,
		Admission: "Admitted", DryRun: true,
	})
	for _, want := range []string{"42¢", "= 99¢", "Profit 1¢ (1.01%)", "[DRY RUN]"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}
