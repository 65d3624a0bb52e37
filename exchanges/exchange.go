// Package exchange holds the shared driver runtime: credentials and
// capability state, the market registry, the websocket transport table and
// the unified interface every venue implements.
package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kat-co/vala"

	"github.com/unifex/unifex/common"
	"github.com/unifex/unifex/exchanges/request"
	"github.com/unifex/unifex/exchanges/stream"
	"github.com/unifex/unifex/log"
)

// Credentials holds API access material. Fields are write-once at
// construction.
type Credentials struct {
	Key        string
	Secret     string
	ClientID   string
	Passphrase string
	// PEMKey carries an EC private key for venues signing with JWTs
	PEMKey string
}

// Validate checks the fields a venue requires are present
func (c *Credentials) Validate(requiresPassphrase, requiresPEM bool) error {
	checks := []vala.Checker{
		vala.StringNotEmpty(c.Key, "apiKey"),
	}
	if requiresPEM {
		checks = append(checks, vala.StringNotEmpty(c.PEMKey, "pemKey"))
	} else {
		checks = append(checks, vala.StringNotEmpty(c.Secret, "secret"))
	}
	if requiresPassphrase {
		checks = append(checks, vala.StringNotEmpty(c.Passphrase, "passphrase"))
	}
	return vala.BeginValidation().Validate(checks...).Check()
}

// Config is the construction state for a driver
type Config struct {
	Name            string
	Credentials     Credentials
	Verbose         bool
	EnableRateLimit bool
	// Timeout bounds each HTTP request
	Timeout time.Duration
	// RecvWindow for Binance-family signed requests
	RecvWindow time.Duration
	ProxyURL   string
}

// Validate checks baseline construction parameters
func (c *Config) Validate() error {
	err := vala.BeginValidation().Validate(
		vala.StringNotEmpty(c.Name, "name"),
	).Check()
	if err != nil {
		return err
	}
	return nil
}

// Features advertises which unified methods a venue driver supports
type Features struct {
	Ticker          bool
	Tickers         bool
	OrderBook       bool
	Trades          bool
	OHLCV           bool
	CreateOrder     bool
	CancelOrder     bool
	CancelAllOrders bool
	FetchOrder      bool
	OpenOrders      bool
	ClosedOrders    bool
	MyTrades        bool
	Balance         bool
	TradingFees     bool
	WatchTicker     bool
	WatchOrderBook  bool
	WatchTrades     bool
	WatchOHLCV      bool
	WatchOrders     bool
	WatchBalance    bool
}

// Base is the shared venue driver runtime embedded by every implementation
type Base struct {
	Name       string
	Enabled    bool
	Verbose    bool
	Features   Features
	API        Credentials
	Requester  *request.Requester
	RecvWindow time.Duration
	ProxyURL   string

	marketsMu       sync.RWMutex
	marketsBySymbol map[string]*Market
	marketsByID     map[string]*Market
	symbols         []string
	marketsLoaded   bool

	wsMu     sync.Mutex
	ws       map[string]*stream.Websocket
	wsClosed bool

	// events fans in typed unified values and errors from every transport
	// owned by this driver
	events chan interface{}
}

// SetDefaults seeds the embedded runtime from a Config
func (b *Base) SetDefaults(cfg *Config) {
	b.Name = cfg.Name
	b.Enabled = true
	b.Verbose = cfg.Verbose
	b.API = cfg.Credentials
	b.RecvWindow = cfg.RecvWindow
	b.ProxyURL = cfg.ProxyURL
	b.ws = make(map[string]*stream.Websocket)
	b.events = make(chan interface{}, 256)
}

// GetName returns the venue name
func (b *Base) GetName() string { return b.Name }

// GetFeatures returns the capability bits
func (b *Base) GetFeatures() Features { return b.Features }

// StreamEvents returns the driver event stream carrying typed unified
// values and errors from all of the driver's websocket transports
func (b *Base) StreamEvents() <-chan interface{} { return b.events }

// EventSink exposes the writable event channel for transport setup
func (b *Base) EventSink() chan interface{} { return b.events }

// RequireFeature gates a unified method behind a capability bit
func (b *Base) RequireFeature(method string, supported bool) error {
	if !supported {
		return fmt.Errorf("%s %s: %w", b.Name, method, common.ErrFunctionNotSupported)
	}
	return nil
}

// RegisterWebsocket stores a transport under its URL key. Registration fails
// once CloseAllWs has begun.
func (b *Base) RegisterWebsocket(key string, ws *stream.Websocket) error {
	b.wsMu.Lock()
	defer b.wsMu.Unlock()
	if b.wsClosed {
		return fmt.Errorf("%s: %w", b.Name, ErrClosing)
	}
	b.ws[key] = ws
	return nil
}

// WebsocketByKey returns the transport registered under key, or nil
func (b *Base) WebsocketByKey(key string) *stream.Websocket {
	b.wsMu.Lock()
	defer b.wsMu.Unlock()
	return b.ws[key]
}

// CloseAllWs shuts down every registered transport and blocks new
// registrations. Synchronous: when it returns all transports have stopped.
func (b *Base) CloseAllWs() error {
	b.wsMu.Lock()
	b.wsClosed = true
	transports := make([]*stream.Websocket, 0, len(b.ws))
	for _, ws := range b.ws {
		transports = append(transports, ws)
	}
	b.ws = make(map[string]*stream.Websocket)
	b.wsMu.Unlock()

	var firstErr error
	for _, ws := range transports {
		if err := ws.Shutdown(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if len(transports) > 0 {
		log.Debugf(log.ExchangeSys, "%s closed %d websocket transport(s)", b.Name, len(transports))
	}
	return firstErr
}

// EnsureWebsocket returns the transport for key, building and connecting it
// through construct on first use
func (b *Base) EnsureWebsocket(ctx context.Context, key string, construct func() (*stream.Websocket, error)) (*stream.Websocket, error) {
	b.wsMu.Lock()
	if b.wsClosed {
		b.wsMu.Unlock()
		return nil, fmt.Errorf("%s: %w", b.Name, ErrClosing)
	}
	if ws, ok := b.ws[key]; ok {
		b.wsMu.Unlock()
		return ws, nil
	}
	b.wsMu.Unlock()

	ws, err := construct()
	if err != nil {
		return nil, err
	}
	if err := ws.Connect(ctx); err != nil {
		return nil, err
	}
	if err := b.RegisterWebsocket(key, ws); err != nil {
		_ = ws.Shutdown()
		return nil, err
	}
	return ws, nil
}
