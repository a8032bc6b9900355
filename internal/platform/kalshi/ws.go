package kalshi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	// kalshiWriteWait is the time allowed to write a message to the peer.
	kalshiWriteWait = 10 * time.Second

	// kalshiPongWait is the time allowed to read the next pong message.
	kalshiPongWait = 30 * time.Second

	// kalshiPingPeriod sends pings at this interval. Must be less than pongWait.
	kalshiPingPeriod = (kalshiPongWait * 9) / 10

	// kalshiReconnectDelay is the base delay before attempting to reconnect.
	kalshiReconnectDelay = 2 * time.Second

	// kalshiMaxReconnectDelay caps the exponential backoff.
	kalshiMaxReconnectDelay = 60 * time.Second

	kalshiDefaultWSPath = "/trade-api/ws/v2"
)

// BookHandler is called for every decoded orderbook snapshot or delta.
type BookHandler func(BookEvent)

// WSClient is a WebSocket client for real-time Kalshi orderbook data.
type WSClient struct {
	wsURL  string
	signer *Signer
	logger *slog.Logger

	mu     sync.RWMutex
	conn   *websocket.Conn
	closed bool

	// Tracked subscriptions for reconnection.
	subscribedTickers []string
	cmdID             int64

	bookHandlers []BookHandler
	handlerMu    sync.RWMutex

	backoff    time.Duration
	maxBackoff time.Duration

	// done is closed when the client shuts down.
	done chan struct{}
}

// NewWSClient creates a new Kalshi WebSocket client.
//
// wsURL is the WebSocket endpoint, e.g. "wss://api.elections.kalshi.com/trade-api/ws/v2".
// signer may be nil to connect without authentication.
func NewWSClient(wsURL string, signer *Signer, logger *slog.Logger) *WSClient {
	return &WSClient{
		wsURL:      wsURL,
		signer:     signer,
		logger:     logger.With(slog.String("component", "kalshi_ws")),
		backoff:    kalshiReconnectDelay,
		maxBackoff: kalshiMaxReconnectDelay,
		done:       make(chan struct{}),
	}
}

// SetBackoff overrides the reconnect backoff bounds.
func (w *WSClient) SetBackoff(base, max time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.backoff, w.maxBackoff = base, max
}

// Connect establishes a WebSocket connection to the Kalshi WebSocket API
// and restores any tracked subscriptions.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("kalshi/ws: %w", domain.ErrWSDisconnect)
	}

	header, err := w.authHeader()
	if err != nil {
		return fmt.Errorf("kalshi/ws: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.wsURL, header)
	if err != nil {
		return fmt.Errorf("kalshi/ws: connect: %w", err)
	}

	w.conn = conn

	conn.SetReadDeadline(time.Now().Add(kalshiPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(kalshiPongWait))
		return nil
	})

	go w.readLoop(conn)
	go w.pingLoop(conn)

	// Re-subscribe to any previously tracked tickers. The server answers
	// with a fresh snapshot per ticker.
	if len(w.subscribedTickers) > 0 {
		if err := w.sendSubscribe(w.subscribedTickers); err != nil {
			return fmt.Errorf("kalshi/ws: restore subscriptions: %w", err)
		}
	}

	return nil
}

// Subscribe subscribes to orderbook updates for the given market tickers.
func (w *WSClient) Subscribe(ctx context.Context, tickers []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("kalshi/ws: not connected")
	}

	// Track first: if the write fails the read loop reconnects and the
	// restored subscription covers these tickers.
	existing := make(map[string]struct{}, len(w.subscribedTickers))
	for _, t := range w.subscribedTickers {
		existing[t] = struct{}{}
	}
	for _, t := range tickers {
		if _, ok := existing[t]; !ok {
			w.subscribedTickers = append(w.subscribedTickers, t)
		}
	}

	if err := w.sendSubscribe(tickers); err != nil {
		return fmt.Errorf("kalshi/ws: subscribe: %w", err)
	}

	return nil
}

// OnBook registers a handler that is called for every orderbook event.
func (w *WSClient) OnBook(handler BookHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.bookHandlers = append(w.bookHandlers, handler)
}

// Close shuts down the WebSocket connection.
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
			time.Now().Add(kalshiWriteWait),
		)
		return w.conn.Close()
	}

	return nil
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

func (w *WSClient) authHeader() (http.Header, error) {
	path := kalshiDefaultWSPath
	if u, err := url.Parse(w.wsURL); err == nil && u.Path != "" {
		path = u.Path
	}
	return w.signer.Headers("GET", path)
}

// sendSubscribe sends a subscribe command. Caller must hold w.mu.
func (w *WSClient) sendSubscribe(tickers []string) error {
	w.cmdID++

	cmd := WSSubscribeCmd{
		ID:  w.cmdID,
		Cmd: "subscribe",
		Params: WSSubscribeParams{
			Channels: []string{"orderbook_delta"},
			Tickers:  tickers,
		},
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal subscribe: %w", err)
	}

	w.conn.SetWriteDeadline(time.Now().Add(kalshiWriteWait))
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

			w.logger.Warn("kalshi ws disconnected, reconnecting", slog.String("error", err.Error()))
			w.reconnect()
			return
		}

		w.handleMessage(message)
	}
}

// pingLoop keeps conn alive until it fails or the client shuts down.
func (w *WSClient) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(kalshiPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(kalshiWriteWait)); err != nil {
				return
			}
		}
	}
}

// handleMessage parses a raw WebSocket message and routes it.
func (w *WSClient) handleMessage(raw []byte) {
	var envelope WSMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		w.logger.Debug("kalshi ws: unparseable frame", slog.String("error", err.Error()))
		return
	}

	var ev BookEvent
	switch envelope.Type {
	case "orderbook_snapshot":
		var snap WSSnapshot
		if err := json.Unmarshal(envelope.Msg, &snap); err != nil {
			w.logger.Warn("kalshi ws: bad snapshot", slog.String("error", err.Error()))
			return
		}
		ev = snap.toEvent()

	case "orderbook_delta":
		var delta WSDelta
		if err := json.Unmarshal(envelope.Msg, &delta); err != nil {
			w.logger.Warn("kalshi ws: bad delta", slog.String("error", err.Error()))
			return
		}
		var err error
		if ev, err = delta.toEvent(); err != nil {
			w.logger.Warn("kalshi ws: bad delta", slog.String("error", err.Error()))
			return
		}

	case "error":
		w.logger.Warn("kalshi ws: server error", slog.String("msg", string(envelope.Msg)))
		return

	default:
		return
	}

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
			w.logger.Info("kalshi ws reconnected")
			return
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}
