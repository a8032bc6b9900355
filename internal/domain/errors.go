package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrWSDisconnect      = errors.New("websocket disconnected")
	ErrMalformedQuote    = errors.New("malformed quote")
	ErrUnknownPair       = errors.New("unknown market pair")
	ErrInvalidSettlement = errors.New("invalid settlement payout")
	ErrNoPosition        = errors.New("no open position")
)
