package kalshi

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// --------------------------------------------------------------------------
// Kalshi API DTOs
// --------------------------------------------------------------------------

// Market is the subset of a Kalshi market the bot needs to follow a
// contract through settlement.
type Market struct {
	Ticker      string `json:"ticker"`
	EventTicker string `json:"event_ticker"`
	Title       string `json:"title"`
	Status      string `json:"status"` // "open", "closed", "settled", "finalized"
	Result      string `json:"result"` // "yes", "no", "" (unsettled)
	YesBid      int64  `json:"yes_bid"`
	YesAsk      int64  `json:"yes_ask"`
	NoBid       int64  `json:"no_bid"`
	NoAsk       int64  `json:"no_ask"`
	CloseTime   string `json:"close_time"`
}

// Settled reports whether the market has a final result.
func (m Market) Settled() bool {
	switch strings.ToLower(m.Status) {
	case "settled", "finalized", "determined":
		return m.Result != ""
	}
	return false
}

// YesWon reports whether the settled result is YES.
func (m Market) YesWon() bool {
	return strings.EqualFold(m.Result, "yes")
}

// ErrorResponse represents a Kalshi API error response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// --------------------------------------------------------------------------
// Kalshi WebSocket DTOs
// --------------------------------------------------------------------------

// PriceLevel is one resting bid: a price in cents (sub-penny allowed) and
// the contracts resting there.
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// UnmarshalJSON accepts [price, qty] pairs in either cents ([52, 100]) or
// dollar strings (["0.52", 100]), and {"price":..,"quantity":..} objects.
func (l *PriceLevel) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err == nil {
		if len(pair) != 2 {
			return fmt.Errorf("kalshi: price level: want 2 elements, got %d", len(pair))
		}
		price, err := parseCents(pair[0])
		if err != nil {
			return err
		}
		qty, err := parseNumber(pair[1])
		if err != nil {
			return err
		}
		l.Price, l.Quantity = price, qty
		return nil
	}

	var obj struct {
		Price    json.RawMessage `json:"price"`
		Quantity json.RawMessage `json:"quantity"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("kalshi: price level: %w", err)
	}
	price, err := parseCents(obj.Price)
	if err != nil {
		return err
	}
	qty, err := parseNumber(obj.Quantity)
	if err != nil {
		return err
	}
	l.Price, l.Quantity = price, qty
	return nil
}

// parseCents reads a price: JSON numbers are cents, JSON strings are
// dollars.
func parseCents(raw json.RawMessage) (decimal.Decimal, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, fmt.Errorf("kalshi: price %q: %w", s, err)
		}
		return d.Shift(2), nil
	}
	return parseNumber(raw)
}

func parseNumber(raw json.RawMessage) (decimal.Decimal, error) {
	var d decimal.Decimal
	if err := json.Unmarshal(raw, &d); err != nil {
		return decimal.Zero, fmt.Errorf("kalshi: number %s: %w", string(raw), err)
	}
	return d, nil
}

// WSMessage is the envelope for Kalshi WebSocket messages.
type WSMessage struct {
	Type string          `json:"type"` // "orderbook_snapshot", "orderbook_delta", "subscribed", "error"
	Msg  json.RawMessage `json:"msg"`
	SID  int64           `json:"sid"`
	Seq  int64           `json:"seq"`
}

// WSSnapshot is the body of an orderbook_snapshot message.
type WSSnapshot struct {
	Ticker     string       `json:"market_ticker"`
	Yes        []PriceLevel `json:"yes"`
	No         []PriceLevel `json:"no"`
	YesDollars []PriceLevel `json:"yes_dollars"`
	NoDollars  []PriceLevel `json:"no_dollars"`
}

// WSDelta is the body of an orderbook_delta message.
type WSDelta struct {
	Ticker       string          `json:"market_ticker"`
	Price        json.RawMessage `json:"price"`
	PriceDollars string          `json:"price_dollars"`
	Delta        decimal.Decimal `json:"delta"`
	Side         string          `json:"side"` // "yes" or "no"
}

// WSSubscribeCmd is the command sent to subscribe to Kalshi WebSocket channels.
type WSSubscribeCmd struct {
	ID     int64             `json:"id"`
	Cmd    string            `json:"cmd"` // "subscribe" or "unsubscribe"
	Params WSSubscribeParams `json:"params"`
}

// WSSubscribeParams defines the subscription parameters.
type WSSubscribeParams struct {
	Channels []string `json:"channels"`
	Tickers  []string `json:"market_tickers"`
}

// --------------------------------------------------------------------------
// Normalised events
// --------------------------------------------------------------------------

// BookEventKind distinguishes full snapshots from single-level deltas.
type BookEventKind int

const (
	BookSnapshot BookEventKind = iota
	BookDelta
)

// BookEvent is a decoded orderbook message. For snapshots Yes and No hold
// the full bid ladders; for deltas Side, Price and Delta describe the
// change to one level.
type BookEvent struct {
	Kind   BookEventKind
	Ticker string
	Yes    []PriceLevel
	No     []PriceLevel
	Side   string
	Price  decimal.Decimal
	Delta  decimal.Decimal
}

func (s *WSSnapshot) toEvent() BookEvent {
	yes, no := s.Yes, s.No
	if len(yes) == 0 && len(s.YesDollars) > 0 {
		yes = s.YesDollars
	}
	if len(no) == 0 && len(s.NoDollars) > 0 {
		no = s.NoDollars
	}
	return BookEvent{Kind: BookSnapshot, Ticker: s.Ticker, Yes: yes, No: no}
}

func (d *WSDelta) toEvent() (BookEvent, error) {
	var price decimal.Decimal
	switch {
	case d.PriceDollars != "":
		p, err := decimal.NewFromString(d.PriceDollars)
		if err != nil {
			return BookEvent{}, fmt.Errorf("kalshi: delta price %q: %w", d.PriceDollars, err)
		}
		price = p.Shift(2)
	case len(d.Price) > 0:
		p, err := parseCents(d.Price)
		if err != nil {
			return BookEvent{}, err
		}
		price = p
	default:
		return BookEvent{}, fmt.Errorf("kalshi: delta for %s has no price", d.Ticker)
	}

	side := strings.ToLower(d.Side)
	if side != "yes" && side != "no" {
		return BookEvent{}, fmt.Errorf("kalshi: delta side %q", d.Side)
	}
	return BookEvent{Kind: BookDelta, Ticker: d.Ticker, Side: side, Price: price, Delta: d.Delta}, nil
}
