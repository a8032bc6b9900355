package domain

// MarketPair links one Kalshi market to the equivalent Polymarket market.
// Pairs are loaded from configuration and never change while running.
type MarketPair struct {
	ID           string
	DisplayName  string
	KalshiTicker string // venue A symbol
	PolyMarket   string // venue B symbol (condition id or slug)
	PolyYesToken string // CLOB token id of the YES outcome
	PolyNoToken  string // CLOB token id of the NO outcome
}

// PolySide maps a Polymarket token id back to the outcome it represents.
func (p MarketPair) PolySide(tokenID string) (Side, bool) {
	switch tokenID {
	case p.PolyYesToken:
		return SideYes, tokenID != ""
	case p.PolyNoToken:
		return SideNo, tokenID != ""
	default:
		return 0, false
	}
}
