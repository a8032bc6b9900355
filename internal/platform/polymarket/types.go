package polymarket

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether a flag is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket is the subset of a Gamma market needed to route and settle a
// configured pair.
type APIMarket struct {
	ID           string   `json:"id"`
	Question     string   `json:"question"`
	ConditionID  string   `json:"conditionId"`
	Slug         string   `json:"slug"`
	Closed       flexBool `json:"closed"`
	Outcomes     string   `json:"outcomes"`      // JSON-encoded: e.g. "[\"Yes\",\"No\"]"
	OutcomePrice string   `json:"outcomePrices"` // JSON-encoded: e.g. "[\"1\",\"0\"]"
	ClobTokenIDs string   `json:"clobTokenIds"`  // JSON-encoded: e.g. "[\"123\",\"456\"]"
	Tokens       []Token  `json:"tokens"`
}

// Token represents a token entry inside a market response.
type Token struct {
	TokenID string `json:"token_id"`
	Outcome string `json:"outcome"`
	Winner  bool   `json:"winner"`
}

// OutcomeTokens returns the YES and NO token ids, from the tokens array
// when present and otherwise from the JSON-encoded outcome/token strings.
func (m *APIMarket) OutcomeTokens() (yes, no string, err error) {
	for _, t := range m.Tokens {
		switch strings.ToLower(t.Outcome) {
		case "yes":
			yes = t.TokenID
		case "no":
			no = t.TokenID
		}
	}
	if yes != "" && no != "" {
		return yes, no, nil
	}

	var outcomes, ids []string
	if err := json.Unmarshal([]byte(m.Outcomes), &outcomes); err != nil {
		return "", "", fmt.Errorf("polymarket: market %s outcomes: %w", m.Slug, err)
	}
	if err := json.Unmarshal([]byte(m.ClobTokenIDs), &ids); err != nil {
		return "", "", fmt.Errorf("polymarket: market %s token ids: %w", m.Slug, err)
	}
	if len(outcomes) != len(ids) {
		return "", "", fmt.Errorf("polymarket: market %s has %d outcomes and %d tokens", m.Slug, len(outcomes), len(ids))
	}
	for i, o := range outcomes {
		switch strings.ToLower(o) {
		case "yes":
			yes = ids[i]
		case "no":
			no = ids[i]
		}
	}
	if yes == "" || no == "" {
		return "", "", fmt.Errorf("polymarket: market %s is not a YES/NO market", m.Slug)
	}
	return yes, no, nil
}

// Resolution is the settled outcome of a market.
type Resolution struct {
	Closed bool
	YesWon bool
	// Decided is false while the market is closed but not yet resolved.
	Decided bool
}

// Resolution reads the outcome from token winners, falling back to final
// outcome prices of exactly 1 and 0.
func (m *APIMarket) Resolution() Resolution {
	res := Resolution{Closed: bool(m.Closed)}
	if !res.Closed {
		return res
	}
	for _, t := range m.Tokens {
		if t.Winner {
			res.Decided = true
			res.YesWon = strings.EqualFold(t.Outcome, "yes")
			return res
		}
	}

	var outcomes, prices []string
	if json.Unmarshal([]byte(m.Outcomes), &outcomes) != nil || json.Unmarshal([]byte(m.OutcomePrice), &prices) != nil {
		return res
	}
	if len(outcomes) != len(prices) {
		return res
	}
	for i, o := range outcomes {
		p, err := decimal.NewFromString(prices[i])
		if err != nil || !p.Equal(decimal.NewFromInt(1)) {
			continue
		}
		res.Decided = true
		res.YesWon = strings.EqualFold(o, "yes")
	}
	return res
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// WSPriceLevel is a single bid/ask level in the WebSocket orderbook data.
// Prices are dollars in [0, 1].
type WSPriceLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// BookMessage represents a full orderbook snapshot delivered over WebSocket.
type BookMessage struct {
	EventType string         `json:"event_type"`
	AssetID   string         `json:"asset_id"`
	Market    string         `json:"market"`
	Bids      []WSPriceLevel `json:"bids"`
	Asks      []WSPriceLevel `json:"asks"`
	Buys      []WSPriceLevel `json:"buys"`
	Sells     []WSPriceLevel `json:"sells"`
	Timestamp string         `json:"timestamp"`
	Hash      string         `json:"hash"`
}

// PriceChange is one level update inside a price_change message. Size is
// the new total at that level; "0" means the level was removed.
type PriceChange struct {
	AssetID string          `json:"asset_id"`
	Side    string          `json:"side"` // "BUY" or "SELL"
	Price   decimal.Decimal `json:"price"`
	Size    decimal.Decimal `json:"size"`
}

// PriceChangeMessage represents incremental orderbook updates. Depending on
// the server version the changes arrive in price_changes (each carrying an
// asset id), in changes (sharing the top-level asset id), or flat.
type PriceChangeMessage struct {
	EventType    string          `json:"event_type"`
	AssetID      string          `json:"asset_id"`
	Market       string          `json:"market"`
	PriceChanges []PriceChange   `json:"price_changes"`
	Changes      []PriceChange   `json:"changes"`
	Side         string          `json:"side"`
	Price        decimal.Decimal `json:"price"`
	Size         json.RawMessage `json:"size"`
	Timestamp    string          `json:"timestamp"`
}

// WSCommand is the JSON payload sent to the market channel to subscribe.
type WSCommand struct {
	Type   string   `json:"type"` // "market"
	Assets []string `json:"assets_ids"`
}

// --------------------------------------------------------------------------
// Normalised events
// --------------------------------------------------------------------------

// BookEventKind distinguishes full snapshots from level updates.
type BookEventKind int

const (
	BookSnapshot BookEventKind = iota
	BookChange
)

// BookEvent is a decoded book or price_change for one asset (token).
// Snapshots carry the full ask ladder; changes carry one level in Price and
// Size. Prices are dollars.
type BookEvent struct {
	Kind    BookEventKind
	AssetID string
	Asks    []WSPriceLevel
	Bids    []WSPriceLevel
	Side    string
	Price   decimal.Decimal
	Size    decimal.Decimal
}

func (b *BookMessage) toEvent() BookEvent {
	asks, bids := b.Asks, b.Bids
	if len(asks) == 0 && len(b.Sells) > 0 {
		asks = b.Sells
	}
	if len(bids) == 0 && len(b.Buys) > 0 {
		bids = b.Buys
	}
	return BookEvent{Kind: BookSnapshot, AssetID: b.AssetID, Asks: asks, Bids: bids}
}

func (p *PriceChangeMessage) toEvents() ([]BookEvent, error) {
	var changes []PriceChange
	switch {
	case len(p.PriceChanges) > 0:
		changes = p.PriceChanges
	case len(p.Changes) > 0:
		changes = p.Changes
	case len(p.Size) > 0:
		var size decimal.Decimal
		if err := json.Unmarshal(p.Size, &size); err != nil {
			return nil, fmt.Errorf("polymarket: price_change size: %w", err)
		}
		changes = []PriceChange{{Side: p.Side, Price: p.Price, Size: size}}
	default:
		return nil, fmt.Errorf("polymarket: price_change for %s carries no changes", p.AssetID)
	}

	events := make([]BookEvent, 0, len(changes))
	for _, c := range changes {
		asset := c.AssetID
		if asset == "" {
			asset = p.AssetID
		}
		if asset == "" {
			return nil, fmt.Errorf("polymarket: price_change without asset id")
		}
		events = append(events, BookEvent{
			Kind:    BookChange,
			AssetID: asset,
			Side:    strings.ToUpper(c.Side),
			Price:   c.Price,
			Size:    c.Size,
		})
	}
	return events, nil
}
