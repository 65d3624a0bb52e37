// Package stream provides the reconnecting WebSocket transport used by every
// venue driver. One Websocket handles one URL: it dials, heartbeats, inflates
// compressed frames, fans inbound messages into the driver handler and
// replays stored subscriptions after reconnecting.
package stream

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	mrand "math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	pkgerrors "github.com/pkg/errors"
	"golang.org/x/net/proxy"

	"github.com/unifex/unifex/exchanges/subscription"
	"github.com/unifex/unifex/log"
	"github.com/unifex/unifex/metrics"
)

const responseMaxLimit = 7 * time.Second

// Websocket is a reconnecting transport for a single URL
type Websocket struct {
	name    string
	verbose bool

	urlFunc      func(ctx context.Context) (string, error)
	handler      func(ctx context.Context, conn *Websocket, msg []byte) error
	subscriber   func(ctx context.Context, conn *Websocket, sub *subscription.Subscription) error
	unsubscriber func(ctx context.Context, conn *Websocket, sub *subscription.Subscription) error
	onConnected  func(ctx context.Context, conn *Websocket) error

	ping                 PingHandler
	reconnectInitial     time.Duration
	reconnectCap         time.Duration
	maxReconnectAttempts int
	connectTimeout       time.Duration
	writeTimeout         time.Duration
	dialHeaders          http.Header
	proxyURL             string

	// DataHandler receives decoded events and asynchronous errors for the
	// owning driver
	DataHandler chan interface{}
	// Match correlates request/response message pairs
	Match *Match
	// TrafficAlert pulses once per inbound frame, non-blocking
	TrafficAlert chan struct{}

	subs *subscription.Store

	conn      *websocket.Conn
	connMu    sync.Mutex
	state     atomic.Uint32
	retries   atomic.Int32
	closing   atomic.Bool
	shutdownC chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	urlMu sync.RWMutex
	url   string
}

// New validates a Setup and returns a transport ready to Connect
func New(s *Setup) (*Websocket, error) {
	if s == nil {
		return nil, errSetupIsNil
	}
	if s.Name == "" {
		return nil, errNameUnset
	}
	if s.URL == "" && s.URLFunc == nil {
		return nil, errURLUnset
	}
	if s.Handler == nil {
		return nil, errHandlerUnset
	}

	w := &Websocket{
		name:                 s.Name,
		verbose:              s.Verbose,
		urlFunc:              s.URLFunc,
		handler:              s.Handler,
		subscriber:           s.Subscriber,
		unsubscriber:         s.Unsubscriber,
		onConnected:          s.OnConnected,
		ping:                 s.PingHandler,
		reconnectInitial:     s.ReconnectInitial,
		reconnectCap:         s.ReconnectCap,
		maxReconnectAttempts: s.MaxReconnectAttempts,
		connectTimeout:       s.ConnectTimeout,
		writeTimeout:         s.WriteTimeout,
		dialHeaders:          s.DialHeaders,
		proxyURL:             s.ProxyURL,
		DataHandler:          s.DataHandler,
		Match:                NewMatch(),
		TrafficAlert:         make(chan struct{}, 1),
		subs:                 subscription.NewStore(),
		shutdownC:            make(chan struct{}),
		url:                  s.URL,
	}
	if w.reconnectInitial <= 0 {
		w.reconnectInitial = DefaultReconnectInitial
	}
	if w.reconnectCap <= 0 {
		w.reconnectCap = DefaultReconnectCap
	}
	if w.connectTimeout <= 0 {
		w.connectTimeout = defaultConnectTimeout
	}
	if w.writeTimeout <= 0 {
		w.writeTimeout = defaultWriteTimeout
	}
	if w.DataHandler == nil {
		w.DataHandler = make(chan interface{}, 128)
	}
	if w.ping.MessageType == 0 {
		w.ping.MessageType = websocket.TextMessage
	}
	return w, nil
}

// GetName returns the owning venue name
func (w *Websocket) GetName() string { return w.name }

// GetURL returns the current resolved URL
func (w *Websocket) GetURL() string {
	w.urlMu.RLock()
	defer w.urlMu.RUnlock()
	return w.url
}

// IsConnected exposes connection status
func (w *Websocket) IsConnected() bool {
	return w.state.Load() == connectedState
}

// IsConnecting reports an in-flight dial or reconnect cycle
func (w *Websocket) IsConnecting() bool {
	return w.state.Load() == connectingState
}

// RetryCount returns the current reconnect attempt count. It resets to zero
// on every successful connect.
func (w *Websocket) RetryCount() int {
	return int(w.retries.Load())
}

// Subscriptions returns the stored subscriptions in registration order
func (w *Websocket) Subscriptions() []*subscription.Subscription {
	return w.subs.List()
}

// Connect dials the venue and starts the reader and heartbeat routines.
// Safe to call once per transport; reconnections are internal.
func (w *Websocket) Connect(ctx context.Context) error {
	if w.closing.Load() {
		return errShuttingDown
	}
	if !w.state.CompareAndSwap(disconnectedState, connectingState) {
		return fmt.Errorf("%w: %s", ErrAlreadyConnected, w.name)
	}
	if err := w.dial(ctx); err != nil {
		w.state.Store(disconnectedState)
		return err
	}
	w.afterConnect(ctx)
	return nil
}

// dial resolves the URL and establishes the socket
func (w *Websocket) dial(ctx context.Context) error {
	target := w.GetURL()
	if w.urlFunc != nil {
		resolved, err := w.urlFunc(ctx)
		if err != nil {
			return fmt.Errorf("%s websocket: resolve url: %w", w.name, err)
		}
		w.urlMu.Lock()
		w.url = resolved
		w.urlMu.Unlock()
		target = resolved
	}

	dialer := websocket.Dialer{
		HandshakeTimeout:  w.connectTimeout,
		EnableCompression: true,
	}
	if w.proxyURL != "" {
		if err := applyProxy(&dialer, w.proxyURL); err != nil {
			return err
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, w.connectTimeout)
	defer cancel()
	conn, resp, err := dialer.DialContext(dialCtx, target, w.dialHeaders)
	if err != nil {
		status := ""
		if resp != nil {
			status = resp.Status
		}
		return pkgerrors.Wrapf(err, "%s websocket: dial %s %s", w.name, removeURLQueryString(target), status)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	w.connMu.Lock()
	w.conn = conn
	w.connMu.Unlock()
	w.state.Store(connectedState)
	w.retries.Store(0)

	if w.verbose {
		log.Debugf(log.WebsocketMgr, "%s websocket: connected to %s", w.name, removeURLQueryString(target))
	}
	return nil
}

// afterConnect runs the connected hook, begins heartbeats and reading, and
// replays stored subscriptions
func (w *Websocket) afterConnect(ctx context.Context) {
	if w.onConnected != nil {
		if err := w.onConnected(ctx, w); err != nil {
			w.pushError(fmt.Errorf("%s websocket: connected hook: %w", w.name, err))
		}
	}

	done := make(chan struct{})
	w.startPing(done)

	w.wg.Add(1)
	go w.readLoop(ctx, done)

	w.replaySubscriptions(ctx)
}

// readLoop delivers inbound frames in arrival order until disconnection
func (w *Websocket) readLoop(ctx context.Context, done chan struct{}) {
	defer w.wg.Done()
	defer close(done)

	w.armReadDeadline()

	for {
		conn := w.connection()
		if conn == nil {
			break
		}
		mType, raw, err := conn.ReadMessage()
		if err != nil {
			w.state.Store(disconnectedState)
			if w.closing.Load() {
				return
			}
			if isDisconnectionError(err) {
				w.pushError(pkgerrors.Wrapf(err, "%s websocket: read", w.name))
			}
			w.wg.Add(1)
			go w.reconnect(ctx)
			return
		}

		select {
		case w.TrafficAlert <- struct{}{}:
		default:
		}
		metrics.RecordWSMessage(w.name)

		msg := raw
		if mType == websocket.BinaryMessage {
			msg, err = parseBinaryResponse(raw)
			if err != nil {
				w.pushError(fmt.Errorf("%s websocket: inflate frame: %w", w.name, err))
				continue
			}
		}
		if w.verbose {
			log.Debugf(log.WebsocketMgr, "%s websocket: message received: %s", w.name, msg)
		}
		if err := w.handler(ctx, w, msg); err != nil {
			w.pushError(err)
		}
	}
}

// reconnect loops dial attempts with capped exponential backoff and 0-25%
// jitter until success, shutdown, or the attempt cap
func (w *Websocket) reconnect(ctx context.Context) {
	defer w.wg.Done()
	w.state.Store(connectingState)

	for attempt := 1; ; attempt++ {
		if w.maxReconnectAttempts > 0 && attempt > w.maxReconnectAttempts {
			w.state.Store(disconnectedState)
			w.pushError(fmt.Errorf("%s websocket: reconnect attempts exhausted after %d tries", w.name, attempt-1))
			return
		}
		w.retries.Store(int32(attempt))
		metrics.RecordReconnect(w.name)

		delay := reconnectDelay(w.reconnectInitial, w.reconnectCap, attempt)
		if w.verbose {
			log.Debugf(log.WebsocketMgr, "%s websocket: reconnect attempt %d in %s", w.name, attempt, delay)
		}
		select {
		case <-w.shutdownC:
			w.state.Store(disconnectedState)
			return
		case <-ctx.Done():
			w.state.Store(disconnectedState)
			return
		case <-time.After(delay):
		}

		if err := w.dial(ctx); err != nil {
			w.pushError(fmt.Errorf("%s websocket: reconnect attempt %d: %w", w.name, attempt, err))
			continue
		}

		log.Infof(log.WebsocketMgr, "%s websocket: reconnected after %d attempts", w.name, attempt)
		w.afterConnect(ctx)
		return
	}
}

// reconnectDelay returns the capped exponential backoff for attempt,
// stretched by a uniform 0-25% jitter
func reconnectDelay(initial, ceiling time.Duration, attempt int) time.Duration {
	d := initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= ceiling {
			d = ceiling
			break
		}
	}
	jitter := 1 + mrand.Float64()*0.25 // nolint:gosec // pacing only
	return time.Duration(float64(d) * jitter)
}

// replaySubscriptions re-sends every stored subscription in registration
// order, once each
func (w *Websocket) replaySubscriptions(ctx context.Context) {
	if w.subscriber == nil {
		return
	}
	for _, sub := range w.subs.List() {
		_ = sub.SetState(subscription.ResubscribingState)
		if err := w.subscriber(ctx, w, sub); err != nil {
			w.pushError(fmt.Errorf("%s websocket: resubscribe %s: %w", w.name, sub, err))
			continue
		}
		_ = sub.SetState(subscription.SubscribedState)
	}
}

// Subscribe stores subscriptions and transmits their venue subscribe
// messages. A transmit failure rolls the stored entry back so no partial
// subscription remains.
func (w *Websocket) Subscribe(ctx context.Context, subs ...*subscription.Subscription) error {
	if w.subscriber == nil {
		return ErrSubscriberUnset
	}
	if !w.IsConnected() {
		return fmt.Errorf("%w: %s", ErrNotConnected, w.name)
	}
	for _, sub := range subs {
		if err := w.subs.Add(sub); err != nil {
			return err
		}
		_ = sub.SetState(subscription.SubscribingState)
		if err := w.subscriber(ctx, w, sub); err != nil {
			_ = w.subs.Remove(sub)
			return fmt.Errorf("%s websocket: subscribe %s: %w", w.name, sub, err)
		}
		_ = sub.SetState(subscription.SubscribedState)
	}
	return nil
}

// Unsubscribe transmits unsubscribe messages and removes stored entries
func (w *Websocket) Unsubscribe(ctx context.Context, subs ...*subscription.Subscription) error {
	for _, sub := range subs {
		stored := w.subs.Get(sub)
		if stored == nil {
			return fmt.Errorf("%w: %s", subscription.ErrNotFound, sub)
		}
		_ = stored.SetState(subscription.UnsubscribingState)
		if w.unsubscriber != nil {
			if err := w.unsubscriber(ctx, w, stored); err != nil {
				_ = stored.SetState(subscription.SubscribedState)
				return fmt.Errorf("%s websocket: unsubscribe %s: %w", w.name, stored, err)
			}
		}
		if err := w.subs.Remove(stored); err != nil {
			return err
		}
		_ = stored.SetState(subscription.UnsubscribedState)
	}
	return nil
}

// GetSubscription returns the stored subscription matching the identity of
// match, or nil
func (w *Websocket) GetSubscription(match *subscription.Subscription) *subscription.Subscription {
	return w.subs.Get(match)
}

// TerminateSubscription drops a stored subscription without transmitting an
// unsubscribe message. Drivers call this when payloads for the subscription
// can no longer be decoded; it will not be replayed after reconnects.
func (w *Websocket) TerminateSubscription(sub *subscription.Subscription) {
	stored := w.subs.Get(sub)
	if stored == nil {
		return
	}
	_ = w.subs.Remove(stored)
	_ = stored.SetState(subscription.InactiveState)
}

// SendJSONMessage marshals and writes v to the socket
func (w *Websocket) SendJSONMessage(ctx context.Context, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return w.SendRawMessage(ctx, websocket.TextMessage, payload)
}

// SendRawMessage writes a raw frame to the socket
func (w *Websocket) SendRawMessage(_ context.Context, messageType int, payload []byte) error {
	if !w.IsConnected() {
		return fmt.Errorf("%w: %s cannot send %s", ErrNotConnected, w.name, payload)
	}
	w.connMu.Lock()
	defer w.connMu.Unlock()
	if w.conn == nil {
		return fmt.Errorf("%w: %s", ErrNotConnected, w.name)
	}
	if w.verbose {
		log.Debugf(log.WebsocketMgr, "%s websocket: sending message: %s", w.name, payload)
	}
	_ = w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	return w.conn.WriteMessage(messageType, payload)
}

// SendMessageReturnResponse sends payload and blocks until the inbound
// dispatcher offers a message under signature, the context ends, or the
// response window lapses
func (w *Websocket) SendMessageReturnResponse(ctx context.Context, signature, payload interface{}) ([]byte, error) {
	matcher, err := w.Match.Set(signature, 1)
	if err != nil {
		return nil, err
	}
	defer matcher.Cleanup()

	if err := w.SendJSONMessage(ctx, payload); err != nil {
		return nil, err
	}

	timer := time.NewTimer(responseMaxLimit)
	defer timer.Stop()
	select {
	case resp := <-matcher.C:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s signature %v", ErrSignatureTimeout, w.name, signature)
	}
}

// GenerateMessageID returns a random positive id for request correlation
func (w *Websocket) GenerateMessageID(highPrecision bool) int64 {
	var minValue, maxValue int64 = 1e8, 2e8
	if highPrecision {
		minValue, maxValue = 1e12, 2e12
	}
	n, err := rand.Int(rand.Reader, big.NewInt(maxValue-minValue+1))
	if err != nil {
		return time.Now().UnixNano()
	}
	return n.Int64() + minValue
}

// Shutdown closes the transport intentionally; no reconnect is scheduled.
// It blocks until the reader and heartbeat routines have stopped.
func (w *Websocket) Shutdown() error {
	if !w.closing.CompareAndSwap(false, true) {
		return nil
	}
	w.closeOnce.Do(func() { close(w.shutdownC) })

	w.connMu.Lock()
	if w.conn != nil {
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = w.conn.Close()
	}
	w.connMu.Unlock()

	w.wg.Wait()
	w.state.Store(disconnectedState)
	if w.verbose {
		log.Debugf(log.WebsocketMgr, "%s websocket: completed shutdown", w.name)
	}
	return nil
}

// startPing installs the configured heartbeat for the current connection.
// done is closed when the owning reader exits.
func (w *Websocket) startPing(done <-chan struct{}) {
	if w.ping.UseGorillaHandler {
		conn := w.connection()
		if conn == nil {
			return
		}
		// Venue pings us; reply with its payload and refresh the read
		// deadline
		conn.SetPingHandler(func(msg string) error {
			w.armReadDeadline()
			err := conn.WriteControl(websocket.PongMessage, []byte(msg), time.Now().Add(w.writeTimeout))
			if err == websocket.ErrCloseSent {
				return nil
			} else if e, ok := err.(net.Error); ok && e.Timeout() {
				return nil
			}
			return err
		})
		return
	}
	if w.ping.Delay <= 0 {
		return
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.ping.Delay)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-w.shutdownC:
				return
			case <-ticker.C:
				if len(w.ping.Message) != 0 {
					if err := w.SendRawMessage(context.Background(), w.ping.MessageType, w.ping.Message); err != nil {
						log.Errorf(log.WebsocketMgr, "%s websocket: ping handler failed to send message [%s]: %v", w.name, w.ping.Message, err)
						return
					}
					continue
				}
				conn := w.connection()
				if conn == nil {
					return
				}
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.writeTimeout)); err != nil {
					log.Errorf(log.WebsocketMgr, "%s websocket: ping frame: %v", w.name, err)
					return
				}
			}
		}
	}()
}

// armReadDeadline applies the pong deadline for protocol heartbeats. The
// deadline is refreshed on every pong; lapsing terminates the read loop and
// triggers the reconnect path rather than surfacing to callers.
func (w *Websocket) armReadDeadline() {
	if w.ping.PongDeadline <= 0 {
		return
	}
	conn := w.connection()
	if conn == nil {
		return
	}
	_ = conn.SetReadDeadline(time.Now().Add(w.ping.PongDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(w.ping.PongDeadline))
	})
}

func (w *Websocket) connection() *websocket.Conn {
	w.connMu.Lock()
	defer w.connMu.Unlock()
	return w.conn
}

// pushError forwards an asynchronous failure to the owning driver
func (w *Websocket) pushError(err error) {
	select {
	case w.DataHandler <- err:
	case <-w.shutdownC:
	}
}

// parseBinaryResponse inflates a gzip or deflate compressed frame
func parseBinaryResponse(resp []byte) ([]byte, error) {
	var reader io.ReadCloser
	var err error
	if len(resp) >= 2 && resp[0] == 31 && resp[1] == 139 { // gzip magic
		reader, err = gzip.NewReader(bytes.NewReader(resp))
		if err != nil {
			return nil, err
		}
	} else {
		reader = flate.NewReader(bytes.NewReader(resp))
	}
	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	return out, reader.Close()
}

// applyProxy wires http, https or socks5 proxies into the dialer
func applyProxy(d *websocket.Dialer, proxyAddr string) error {
	u, err := url.Parse(proxyAddr)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "http", "https":
		d.Proxy = http.ProxyURL(u)
	case "socks5":
		var auth *proxy.Auth
		if u.User != nil {
			pw, _ := u.User.Password()
			auth = &proxy.Auth{User: u.User.Username(), Password: pw}
		}
		dialer, err := proxy.SOCKS5("tcp", u.Host, auth, proxy.Direct)
		if err != nil {
			return err
		}
		d.NetDial = dialer.Dial
	default:
		return fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	return nil
}

// isDisconnectionError distinguishes connection-loss errors from intentional
// closure noise
func isDisconnectionError(err error) bool {
	if websocket.IsUnexpectedCloseError(err) {
		return true
	}
	if _, ok := err.(*net.OpError); ok {
		return !strings.Contains(err.Error(), errClosedConnection.Error())
	}
	if e, ok := err.(net.Error); ok && e.Timeout() {
		return true
	}
	return false
}

// removeURLQueryString strips query parameters, which can carry bootstrap
// tokens, before a URL reaches logs
func removeURLQueryString(u string) string {
	if idx := strings.Index(u, "?"); idx != -1 {
		return u[:idx]
	}
	return u
}
