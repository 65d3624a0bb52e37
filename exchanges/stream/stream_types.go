package stream

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/unifex/unifex/exchanges/subscription"
)

// Connection states
const (
	disconnectedState uint32 = iota
	connectingState
	connectedState
)

// Defaults for reconnect pacing and heartbeats
const (
	DefaultReconnectInitial = time.Second
	DefaultReconnectCap     = time.Minute
	defaultConnectTimeout   = 30 * time.Second
	defaultWriteTimeout     = 10 * time.Second
)

// Public errors
var (
	ErrWebsocketNotEnabled  = errors.New("websocket not enabled")
	ErrNotConnected         = errors.New("websocket not connected")
	ErrAlreadyConnected     = errors.New("websocket already connected")
	ErrSignatureTimeout     = errors.New("websocket response timeout")
	ErrSubscriberUnset      = errors.New("subscriber function unset")
	errSetupIsNil           = errors.New("websocket setup is nil")
	errHandlerUnset         = errors.New("message handler unset")
	errURLUnset             = errors.New("websocket url unset")
	errNameUnset            = errors.New("websocket name unset")
	errClosedConnection     = errors.New("use of closed network connection")
	errShuttingDown         = errors.New("websocket shutting down")
)

// Response holds a decompressed inbound frame
type Response struct {
	Raw  []byte
	Type int
}

// PingHandler configures heartbeats on a connection. When Message is set an
// application-level JSON heartbeat is sent every Delay; otherwise protocol
// PING frames are used, with PongDeadline arming a read-deadline watchdog.
type PingHandler struct {
	Message           []byte
	MessageType       int
	Delay             time.Duration
	PongDeadline      time.Duration
	UseGorillaHandler bool
}

// Setup configures one Websocket transport
type Setup struct {
	// Name of the owning venue for logs and metrics
	Name string
	// URL to dial. Ignored when URLFunc is set.
	URL string
	// URLFunc resolves the dial URL before every connect attempt for venues
	// with ephemeral bootstrap endpoints
	URLFunc func(ctx context.Context) (string, error)
	// Handler dispatches every decompressed inbound message. It must not
	// block; arrival order is delivery order.
	Handler func(ctx context.Context, conn *Websocket, msg []byte) error
	// Subscriber builds and transmits the venue subscribe message for one
	// subscription. Invoked on Subscribe and again for every stored
	// subscription after a reconnect.
	Subscriber func(ctx context.Context, conn *Websocket, sub *subscription.Subscription) error
	// Unsubscriber transmits the venue unsubscribe message. Optional.
	Unsubscriber func(ctx context.Context, conn *Websocket, sub *subscription.Subscription) error
	// OnConnected runs after the socket is established, before subscription
	// replay. Optional.
	OnConnected func(ctx context.Context, conn *Websocket) error
	// PingHandler configures heartbeats
	PingHandler PingHandler
	// ReconnectInitial and ReconnectCap bound the exponential backoff
	ReconnectInitial time.Duration
	ReconnectCap     time.Duration
	// MaxReconnectAttempts caps scheduling; <= 0 retries indefinitely
	MaxReconnectAttempts int
	ConnectTimeout       time.Duration
	WriteTimeout         time.Duration
	// DialHeaders are sent with the upgrade request
	DialHeaders http.Header
	// ProxyURL supports http, https and socks5 schemes
	ProxyURL string
	// DataHandler receives decoded events and errors for the owning driver
	DataHandler chan interface{}
	Verbose     bool
}
