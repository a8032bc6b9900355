package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// BookHandler is called for every decoded book snapshot or level change.
type BookHandler func(BookEvent)

// WSClient is a WebSocket client for the Polymarket CLOB market channel.
// It manages the connection lifecycle, subscriptions, and dispatches
// messages to registered handlers.
type WSClient struct {
	wsURL  string
	logger *slog.Logger

	mu     sync.RWMutex
	conn   *websocket.Conn
	closed bool

	// Asset ids to restore on reconnect.
	assets []string

	bookHandlers []BookHandler
	handlerMu    sync.RWMutex

	backoff    time.Duration
	maxBackoff time.Duration

	// done is closed when the client is shut down.
	done chan struct{}
}

// NewWSClient creates a new WebSocket client for the given WebSocket URL.
//
// wsURL is the CLOB market channel, e.g. "wss://ws-subscriptions-clob.polymarket.com/ws/market".
func NewWSClient(wsURL string, logger *slog.Logger) *WSClient {
	return &WSClient{
		wsURL:      wsURL,
		logger:     logger.With(slog.String("component", "polymarket_ws")),
		backoff:    reconnectDelay,
		maxBackoff: maxReconnectDelay,
		done:       make(chan struct{}),
	}
}

// SetBackoff overrides the reconnect backoff bounds.
func (w *WSClient) SetBackoff(base, max time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.backoff, w.maxBackoff = base, max
}

// Connect establishes a WebSocket connection to the Polymarket CLOB WebSocket
// and restores any previous subscription.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("polymarket/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("polymarket/ws: connect: %w", err)
	}

	w.conn = conn

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go w.readLoop(conn)
	go w.pingLoop(conn)

	if len(w.assets) > 0 {
		if err := w.sendCommand(WSCommand{Type: "market", Assets: w.assets}); err != nil {
			return fmt.Errorf("polymarket/ws: restore subscription: %w", err)
		}
	}

	return nil
}

// Subscribe adds asset (token) ids to the market channel subscription. The
// server answers with a book snapshot per asset.
func (w *WSClient) Subscribe(ctx context.Context, assetIDs []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("polymarket/ws: not connected")
	}

	seen := make(map[string]struct{}, len(w.assets)+len(assetIDs))
	merged := make([]string, 0, len(w.assets)+len(assetIDs))
	for _, a := range append(append([]string(nil), w.assets...), assetIDs...) {
		if _, ok := seen[a]; ok || a == "" {
			continue
		}
		seen[a] = struct{}{}
		merged = append(merged, a)
	}

	w.assets = merged
	if err := w.sendCommand(WSCommand{Type: "market", Assets: merged}); err != nil {
		return fmt.Errorf("polymarket/ws: subscribe: %w", err)
	}

	return nil
}

// OnBook registers a handler that is called for every book event.
func (w *WSClient) OnBook(handler BookHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.bookHandlers = append(w.bookHandlers, handler)
}

// Close shuts down the WebSocket connection and stops the read loop.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		return w.conn.Close()
	}

	return nil
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

// sendCommand sends a JSON command to the WebSocket. Caller must hold w.mu.
func (w *WSClient) sendCommand(cmd WSCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads messages from conn until it fails, then reconnects unless
// the client was closed or conn was already replaced.
func (w *WSClient) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}

			w.mu.RLock()
			current := w.conn == conn
			w.mu.RUnlock()
			if !current {
				return
			}

			w.logger.Warn("polymarket ws disconnected, reconnecting", slog.String("error", err.Error()))
			w.reconnect()
			return
		}

		w.handleMessage(message)
	}
}

// pingLoop keeps conn alive until it fails or the client shuts down.
func (w *WSClient) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// handleMessage parses a frame, which may hold one event object or an
// array of them, and routes each to the handlers.
func (w *WSClient) handleMessage(raw []byte) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return
	}

	var items []json.RawMessage
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &items); err != nil {
			w.logger.Debug("polymarket ws: unparseable frame", slog.String("error", err.Error()))
			return
		}
	} else {
		items = []json.RawMessage{raw}
	}

	for _, item := range items {
		for _, ev := range w.decode(item) {
			w.dispatch(ev)
		}
	}
}

func (w *WSClient) decode(raw json.RawMessage) []BookEvent {
	var envelope struct {
		MsgType string `json:"msg_type"`
		Event   string `json:"event_type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		// Plain-text frames such as "PONG" land here.
		return nil
	}

	msgType := envelope.Event
	if msgType == "" {
		msgType = envelope.MsgType
	}

	switch msgType {
	case "book":
		var book BookMessage
		if err := json.Unmarshal(raw, &book); err != nil {
			w.logger.Warn("polymarket ws: bad book", slog.String("error", err.Error()))
			return nil
		}
		return []BookEvent{book.toEvent()}

	case "price_change":
		var pc PriceChangeMessage
		if err := json.Unmarshal(raw, &pc); err != nil {
			w.logger.Warn("polymarket ws: bad price_change", slog.String("error", err.Error()))
			return nil
		}
		events, err := pc.toEvents()
		if err != nil {
			w.logger.Warn("polymarket ws: bad price_change", slog.String("error", err.Error()))
			return nil
		}
		return events
	}
	return nil
}

func (w *WSClient) dispatch(ev BookEvent) {
	w.handlerMu.RLock()
	handlers := w.bookHandlers
	w.handlerMu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

// reconnect attempts to re-establish the WebSocket connection with
// exponential backoff. It blocks until successful or the client is closed.
func (w *WSClient) reconnect() {
	w.mu.RLock()
	delay, maxDelay := w.backoff, w.maxBackoff
	w.mu.RUnlock()

	for {
		select {
		case <-w.done:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.Connect(ctx)
		cancel()

		if err == nil {
			w.logger.Info("polymarket ws reconnected")
			return
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}
