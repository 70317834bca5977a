package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// SignatureResult is the outcome of a watched transaction signature.
type SignatureResult struct {
	Signature string
	Slot      int64
	Err       interface{} // non-nil when the transaction failed on-ledger
}

// WatcherConfig configures ConfirmationWatcher behavior.
type WatcherConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultWatcherConfig returns default watcher configuration.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// ConfirmationWatcher tracks submitted transaction signatures over a
// WebSocket signatureSubscribe stream. Subscriptions are one-shot: the
// ledger fires a single notification when the signature reaches confirmed
// commitment and then cancels the subscription server-side.
type ConfirmationWatcher struct {
	endpoint string
	config   WatcherConfig

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subs maps subscription ID to the waiting channel
	subs   map[int64]chan SignatureResult
	subsMu sync.Mutex

	// sigBySub stores signatures for resubscription after reconnect
	sigBySub   map[int64]string
	sigBySubMu sync.Mutex

	// pendingSubs maps request ID to channel waiting for subscription ID
	pendingSubs   map[uint64]chan int64
	pendingSubsMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

// NewConfirmationWatcher creates a watcher and connects to the endpoint.
func NewConfirmationWatcher(ctx context.Context, endpoint string, config *WatcherConfig) (*ConfirmationWatcher, error) {
	cfg := DefaultWatcherConfig()
	if config != nil {
		cfg = *config
	}

	w := &ConfirmationWatcher{
		endpoint:    endpoint,
		config:      cfg,
		subs:        make(map[int64]chan SignatureResult),
		sigBySub:    make(map[int64]string),
		pendingSubs: make(map[uint64]chan int64),
		done:        make(chan struct{}),
	}

	if err := w.connect(ctx); err != nil {
		return nil, err
	}

	w.wg.Add(1)
	go w.readLoop()

	w.wg.Add(1)
	go w.pingLoop()

	return w, nil
}

// connect establishes the WebSocket connection.
func (w *ConfirmationWatcher) connect(ctx context.Context) error {
	w.connMu.Lock()
	defer w.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	w.conn = conn
	return nil
}

// WatchSignature subscribes to confirmation of a signature. The returned
// channel delivers exactly one result and is then closed.
func (w *ConfirmationWatcher) WatchSignature(ctx context.Context, signature string) (<-chan SignatureResult, error) {
	subID, err := w.subscribeSignature(ctx, signature)
	if err != nil {
		return nil, err
	}

	ch := make(chan SignatureResult, 1)
	w.subsMu.Lock()
	w.subs[subID] = ch
	w.subsMu.Unlock()

	w.sigBySubMu.Lock()
	w.sigBySub[subID] = signature
	w.sigBySubMu.Unlock()

	return ch, nil
}

// subscribeSignature issues signatureSubscribe and waits for the
// subscription ID.
func (w *ConfirmationWatcher) subscribeSignature(ctx context.Context, signature string) (int64, error) {
	if w.closed.Load() {
		return 0, fmt.Errorf("watcher closed")
	}

	reqID := w.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "signatureSubscribe",
		Params: []interface{}{
			signature,
			map[string]string{"commitment": "confirmed"},
		},
	}

	confirmCh := make(chan int64, 1)
	w.pendingSubsMu.Lock()
	w.pendingSubs[reqID] = confirmCh
	w.pendingSubsMu.Unlock()

	dropPending := func() {
		w.pendingSubsMu.Lock()
		delete(w.pendingSubs, reqID)
		w.pendingSubsMu.Unlock()
	}

	w.connMu.Lock()
	if w.conn == nil {
		w.connMu.Unlock()
		dropPending()
		return 0, fmt.Errorf("not connected")
	}

	w.conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
	err := w.conn.WriteJSON(req)
	w.connMu.Unlock()

	if err != nil {
		dropPending()
		return 0, fmt.Errorf("write subscribe: %w", err)
	}

	select {
	case subID := <-confirmCh:
		return subID, nil
	case <-time.After(30 * time.Second):
		dropPending()
		return 0, fmt.Errorf("subscription timeout after 30s")
	case <-w.done:
		return 0, fmt.Errorf("watcher closed")
	case <-ctx.Done():
		dropPending()
		return 0, ctx.Err()
	}
}

// Close closes the WebSocket connection.
func (w *ConfirmationWatcher) Close() error {
	if w.closed.Swap(true) {
		return nil // Already closed
	}

	close(w.done)

	w.connMu.Lock()
	if w.conn != nil {
		w.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		w.conn.Close()
	}
	w.connMu.Unlock()

	w.subsMu.Lock()
	for id, ch := range w.subs {
		close(ch)
		delete(w.subs, id)
	}
	w.subsMu.Unlock()

	w.pendingSubsMu.Lock()
	for id, ch := range w.pendingSubs {
		close(ch)
		delete(w.pendingSubs, id)
	}
	w.pendingSubsMu.Unlock()

	w.wg.Wait()
	return nil
}

// readLoop reads messages and dispatches to waiters.
func (w *ConfirmationWatcher) readLoop() {
	defer w.wg.Done()

	reconnectDelay := w.config.ReconnectDelay

	for !w.closed.Load() {
		w.connMu.Lock()
		conn := w.conn
		w.connMu.Unlock()

		if conn == nil {
			select {
			case <-w.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(w.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if w.closed.Load() {
				return
			}

			if !w.reconnecting.Swap(true) {
				go w.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > w.config.MaxReconnectDelay {
				reconnectDelay = w.config.MaxReconnectDelay
			}

			select {
			case <-w.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		reconnectDelay = w.config.ReconnectDelay

		w.handleMessage(message)
	}
}

// reconnect attempts to reconnect and rewatch outstanding signatures.
func (w *ConfirmationWatcher) reconnect(delay time.Duration) {
	defer w.reconnecting.Store(false)

	if w.closed.Load() {
		return
	}

	select {
	case <-w.done:
		return
	case <-time.After(delay):
	}

	w.connMu.Lock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := w.connect(ctx); err != nil {
		// Reconnect failed, will retry on next read error
		return
	}

	w.rewatchAll()
}

// rewatchAll re-issues signatureSubscribe for signatures still awaiting a
// result after reconnect.
func (w *ConfirmationWatcher) rewatchAll() {
	w.sigBySubMu.Lock()
	pending := make(map[int64]string, len(w.sigBySub))
	for id, sig := range w.sigBySub {
		pending[id] = sig
	}
	w.sigBySubMu.Unlock()

	for oldSubID, signature := range pending {
		w.subsMu.Lock()
		ch := w.subs[oldSubID]
		w.subsMu.Unlock()
		if ch == nil {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		newSubID, err := w.subscribeSignature(ctx, signature)
		cancel()

		if err != nil {
			// Failed to rewatch, keep old mapping
			continue
		}

		w.subsMu.Lock()
		delete(w.subs, oldSubID)
		w.subs[newSubID] = ch
		w.subsMu.Unlock()

		w.sigBySubMu.Lock()
		delete(w.sigBySub, oldSubID)
		w.sigBySub[newSubID] = signature
		w.sigBySubMu.Unlock()
	}
}

// handleMessage processes an incoming WebSocket message.
func (w *ConfirmationWatcher) handleMessage(message []byte) {
	// Try to parse as subscription response first
	var resp wsSubscribeResponse
	if err := json.Unmarshal(message, &resp); err == nil && resp.Result > 0 {
		w.handleSubscribeResponse(&resp)
		return
	}

	// Try to parse as notification
	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err == nil && notif.Method == "signatureNotification" {
		w.handleSignatureNotification(&notif)
		return
	}

	// Check for error response
	var errResp struct {
		JSONRPC string `json:"jsonrpc"`
		ID      uint64 `json:"id"`
		Error   *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(message, &errResp); err == nil && errResp.Error != nil {
		// Surface and move on - the waiting subscribe will time out
		log.Printf("[ledger-ws] error response: code=%d msg=%s", errResp.Error.Code, errResp.Error.Message)
	}
}

// handleSubscribeResponse handles subscription confirmation.
func (w *ConfirmationWatcher) handleSubscribeResponse(resp *wsSubscribeResponse) {
	w.pendingSubsMu.Lock()
	ch, ok := w.pendingSubs[resp.ID]
	if ok {
		delete(w.pendingSubs, resp.ID)
	}
	w.pendingSubsMu.Unlock()

	if ok {
		select {
		case ch <- resp.Result:
		default:
		}
	}
}

// handleSignatureNotification delivers the one-shot result and retires the
// subscription.
func (w *ConfirmationWatcher) handleSignatureNotification(notif *wsNotification) {
	if notif.Params == nil {
		return
	}

	subID := notif.Params.Subscription

	w.subsMu.Lock()
	ch, ok := w.subs[subID]
	delete(w.subs, subID)
	w.subsMu.Unlock()

	w.sigBySubMu.Lock()
	signature := w.sigBySub[subID]
	delete(w.sigBySub, subID)
	w.sigBySubMu.Unlock()

	if !ok {
		return
	}

	result := SignatureResult{
		Signature: signature,
		Err:       notif.Params.Result.Value.Err,
	}
	if notif.Params.Result.Context != nil {
		result.Slot = notif.Params.Result.Context.Slot
	}

	ch <- result
	close(ch)
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (w *ConfirmationWatcher) pingLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.connMu.Lock()
			if w.conn != nil {
				w.conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
				if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will handle reconnect
				}
			}
			w.connMu.Unlock()
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsSubscribeResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Result  int64  `json:"result"` // subscription ID
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext       `json:"context"`
	Value   wsSignatureValue `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

type wsSignatureValue struct {
	Err interface{} `json:"err"`
}
