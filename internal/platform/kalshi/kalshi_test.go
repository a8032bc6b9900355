package kalshi

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSigner(t *testing.T, pkcs1 bool) *Signer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var block *pem.Block
	if pkcs1 {
		block = &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	} else {
		der, err := x509.MarshalPKCS8PrivateKey(key)
		if err != nil {
			t.Fatalf("marshal pkcs8: %v", err)
		}
		block = &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	}
	s, err := NewSigner("key-1", pem.EncodeToMemory(block))
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return s
}

func TestSigner_HeadersVerify(t *testing.T) {
	for _, pkcs1 := range []bool{false, true} {
		s := testSigner(t, pkcs1)
		h, err := s.Headers("GET", "/trade-api/ws/v2")
		if err != nil {
			t.Fatalf("Headers: %v", err)
		}
		if h.Get("KALSHI-ACCESS-KEY") != "key-1" {
			t.Errorf("key header = %q", h.Get("KALSHI-ACCESS-KEY"))
		}
		if h.Get("KALSHI-ACCESS-TIMESTAMP") == "" {
			t.Error("timestamp header empty")
		}
		if err := s.verify("GET", "/trade-api/ws/v2", h); err != nil {
			t.Errorf("verify: %v", err)
		}
		if err := s.verify("POST", "/trade-api/ws/v2", h); err == nil {
			t.Error("verify succeeded for a different method")
		}
	}
}

func TestSigner_NilAndBadPEM(t *testing.T) {
	var s *Signer
	h, err := s.Headers("GET", "/x")
	if err != nil || len(h) != 0 {
		t.Fatalf("nil signer: headers=%v err=%v", h, err)
	}
	if _, err := NewSigner("k", []byte("not pem")); err == nil {
		t.Fatal("expected error for invalid PEM")
	}
	got, err := LoadSigner("", "")
	if got != nil || err != nil {
		t.Fatalf("LoadSigner without credentials = %v, %v", got, err)
	}
}

func TestPriceLevel_Unmarshal(t *testing.T) {
	tests := []struct {
		in        string
		wantPrice string
		wantQty   string
	}{
		{`[52, 100]`, "52", "100"},
		{`["0.52", 7]`, "52", "7"},
		{`["0.5250", 3]`, "52.5", "3"},
		{`{"price": 41, "quantity": 9}`, "41", "9"},
	}
	for _, tt := range tests {
		var l PriceLevel
		if err := json.Unmarshal([]byte(tt.in), &l); err != nil {
			t.Fatalf("%s: %v", tt.in, err)
		}
		if !l.Price.Equal(decimal.RequireFromString(tt.wantPrice)) {
			t.Errorf("%s: price = %s, want %s", tt.in, l.Price, tt.wantPrice)
		}
		if !l.Quantity.Equal(decimal.RequireFromString(tt.wantQty)) {
			t.Errorf("%s: qty = %s, want %s", tt.in, l.Quantity, tt.wantQty)
		}
	}

	var l PriceLevel
	if err := json.Unmarshal([]byte(`[1, 2, 3]`), &l); err == nil {
		t.Error("expected error for three-element level")
	}
}

func TestDelta_ToEvent(t *testing.T) {
	var d WSDelta
	if err := json.Unmarshal([]byte(`{"market_ticker":"T","price":40,"delta":-5,"side":"yes"}`), &d); err != nil {
		t.Fatal(err)
	}
	ev, err := d.toEvent()
	if err != nil {
		t.Fatal(err)
	}
	if ev.Kind != BookDelta || ev.Side != "yes" || !ev.Price.Equal(decimal.NewFromInt(40)) || !ev.Delta.Equal(decimal.NewFromInt(-5)) {
		t.Errorf("event = %+v", ev)
	}

	bad := WSDelta{Ticker: "T", Side: "maybe", PriceDollars: "0.40"}
	if _, err := bad.toEvent(); err == nil {
		t.Error("expected error for unknown side")
	}
	noPrice := WSDelta{Ticker: "T", Side: "no"}
	if _, err := noPrice.toEvent(); err == nil {
		t.Error("expected error for missing price")
	}
}

func TestMarket_Settled(t *testing.T) {
	tests := []struct {
		m       Market
		settled bool
		yes     bool
	}{
		{Market{Status: "open"}, false, false},
		{Market{Status: "settled", Result: "yes"}, true, true},
		{Market{Status: "finalized", Result: "no"}, true, false},
		{Market{Status: "settled"}, false, false},
	}
	for _, tt := range tests {
		if got := tt.m.Settled(); got != tt.settled {
			t.Errorf("%+v Settled() = %v", tt.m, got)
		}
		if got := tt.m.YesWon(); got != tt.yes {
			t.Errorf("%+v YesWon() = %v", tt.m, got)
		}
	}
}

func TestClient_GetMarket(t *testing.T) {
	signer := testSigner(t, false)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := signer.verify(r.Method, r.URL.Path, r.Header); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":"bad_sig","message":"signature"}`))
			return
		}
		switch r.URL.Path {
		case "/trade-api/v2/markets/PRES-24":
			_, _ = w.Write([]byte(`{"market":{"ticker":"PRES-24","status":"settled","result":"yes"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":"not_found","message":"market"}`))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/trade-api/v2/", signer)
	m, err := c.GetMarket(context.Background(), "PRES-24")
	if err != nil {
		t.Fatalf("GetMarket: %v", err)
	}
	if !m.Settled() || !m.YesWon() {
		t.Errorf("market = %+v", m)
	}

	_, err = c.GetMarket(context.Background(), "MISSING")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing market err = %v, want ErrNotFound", err)
	}

	unsigned := NewClient(srv.URL+"/trade-api/v2", nil)
	_, err = unsigned.GetMarket(context.Background(), "PRES-24")
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("unsigned err = %v, want ErrUnauthorized", err)
	}
}

func TestWSClient_SubscribeAndDispatch(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan WSSubscribeCmd, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var cmd WSSubscribeCmd
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		subscribed <- cmd

		frames := []string{
			`{"type":"subscribed","msg":{"channel":"orderbook_delta","sid":1}}`,
			`{"type":"orderbook_snapshot","sid":1,"seq":1,"msg":{"market_ticker":"PRES-24","yes":[[40,10],[42,5]],"no":[[55,3]]}}`,
			`{"type":"orderbook_delta","sid":1,"seq":2,"msg":{"market_ticker":"PRES-24","price":56,"delta":4,"side":"no"}}`,
			`not json`,
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// Hold the connection open until the client closes it.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	var mu sync.Mutex
	var events []BookEvent
	got := make(chan struct{}, 4)

	c := NewWSClient("ws"+strings.TrimPrefix(srv.URL, "http"), nil, testLogger())
	c.OnBook(func(ev BookEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
		got <- struct{}{}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()
	if err := c.Subscribe(ctx, []string{"PRES-24"}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	select {
	case cmd := <-subscribed:
		if cmd.Cmd != "subscribe" || len(cmd.Params.Tickers) != 1 || cmd.Params.Tickers[0] != "PRES-24" {
			t.Errorf("subscribe cmd = %+v", cmd)
		}
		if len(cmd.Params.Channels) != 1 || cmd.Params.Channels[0] != "orderbook_delta" {
			t.Errorf("channels = %v", cmd.Params.Channels)
		}
	case <-ctx.Done():
		t.Fatal("no subscribe command received")
	}

	for i := 0; i < 2; i++ {
		select {
		case <-got:
		case <-ctx.Done():
			t.Fatalf("received %d events, want 2", i)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	snap := events[0]
	if snap.Kind != BookSnapshot || snap.Ticker != "PRES-24" || len(snap.Yes) != 2 || len(snap.No) != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
	delta := events[1]
	if delta.Kind != BookDelta || delta.Side != "no" || !delta.Price.Equal(decimal.NewFromInt(56)) {
		t.Errorf("delta = %+v", delta)
	}
}

func TestWSClient_ConnectAfterClose(t *testing.T) {
	c := NewWSClient("ws://127.0.0.1:1", nil, testLogger())
	_ = c.Close()
	if err := c.Connect(context.Background()); !errors.Is(err, domain.ErrWSDisconnect) {
		t.Fatalf("Connect after Close = %v, want ErrWSDisconnect", err)
	}
}
