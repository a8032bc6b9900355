package feed

import (
	"github.com/shopspring/decimal"
)

// Level is one price level of a ladder.
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Ladder is one side of an orderbook keyed by price. It is not safe for
// concurrent use; feeds guard it with their own mutex.
type Ladder struct {
	levels map[string]Level
}

// NewLadder returns an empty ladder.
func NewLadder() *Ladder {
	return &Ladder{levels: make(map[string]Level)}
}

// Reset replaces the ladder contents with levels. Levels with a
// non-positive size are skipped.
func (l *Ladder) Reset(levels []Level) {
	clear(l.levels)
	for _, lv := range levels {
		l.Set(lv.Price, lv.Size)
	}
}

// Set stores the total size resting at price. A non-positive size removes
// the level.
func (l *Ladder) Set(price, size decimal.Decimal) {
	key := price.String()
	if !size.IsPositive() {
		delete(l.levels, key)
		return
	}
	l.levels[key] = Level{Price: price, Size: size}
}

// Add applies a signed change to the size at price.
func (l *Ladder) Add(price, delta decimal.Decimal) {
	cur := l.levels[price.String()]
	l.Set(price, cur.Size.Add(delta))
}

// Best returns the highest price when highest is set (bids) and the lowest
// otherwise (asks).
func (l *Ladder) Best(highest bool) (decimal.Decimal, bool) {
	var best decimal.Decimal
	found := false
	for _, lv := range l.levels {
		if !found ||
			(highest && lv.Price.GreaterThan(best)) ||
			(!highest && lv.Price.LessThan(best)) {
			best = lv.Price
			found = true
		}
	}
	return best, found
}

// Len returns the number of populated levels.
func (l *Ladder) Len() int {
	return len(l.levels)
}
