// Package subscription holds the streaming subscription model shared by all
// venue websocket implementations
package subscription

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/unifex/unifex/currency"
	"github.com/unifex/unifex/exchanges/kline"
)

// State constants
const (
	InactiveState State = iota
	SubscribingState
	SubscribedState
	ResubscribingState
	UnsubscribingState
	UnsubscribedState
)

// Unified channel names. Drivers translate these to venue topics.
const (
	TickerChannel    = "ticker"
	OrderbookChannel = "orderbook"
	CandlesChannel   = "candles"
	AllTradesChannel = "allTrades"
	MyTradesChannel  = "myTrades"
	MyOrdersChannel  = "myOrders"
	BalancesChannel  = "balances"
)

// Public errors
var (
	ErrNotFound       = errors.New("subscription not found")
	ErrInStateAlready = errors.New("subscription already in state")
	ErrInvalidState   = errors.New("invalid subscription state")
	ErrDuplicate      = errors.New("duplicate subscription")
)

// State tracks the status of a subscription channel
type State uint8

// Subscription container for streaming subscriptions
type Subscription struct {
	Enabled bool   `json:"enabled"`
	Channel string `json:"channel,omitempty"`
	// Key overrides the derived identity; drivers set it when venue topics
	// collide under the derived form
	Key   string         `json:"-"`
	Pairs currency.Pairs `json:"pairs,omitempty"`
	// QualifiedChannel is the venue wire form of the channel, set when the
	// subscribe message is built
	QualifiedChannel string                 `json:"qualifiedChannel,omitempty"`
	Params           map[string]interface{} `json:"params,omitempty"`
	Interval         kline.Interval         `json:"interval,omitempty"`
	Levels           int                    `json:"levels,omitempty"`
	Authenticated    bool                   `json:"authenticated,omitempty"`
	state            State
	m                sync.RWMutex
}

// String implements the Stringer interface giving a human representation
func (s *Subscription) String() string {
	return fmt.Sprintf("%s %s", s.Channel, strings.Join(s.Pairs.Strings(), ","))
}

// ID returns the store identity for the subscription
func (s *Subscription) ID() string {
	if s.Key != "" {
		return s.Key
	}
	id := s.Channel + "|" + strings.Join(s.Pairs.Strings(), ",")
	if s.Interval != 0 {
		id += "|" + s.Interval.Short()
	}
	if s.Levels != 0 {
		id += fmt.Sprintf("|%d", s.Levels)
	}
	return id
}

// State returns the subscription state
func (s *Subscription) State() State {
	s.m.RLock()
	defer s.m.RUnlock()
	return s.state
}

// SetState sets the subscription state. Errors if already in that state or
// the new state is not valid.
func (s *Subscription) SetState(state State) error {
	s.m.Lock()
	defer s.m.Unlock()
	if state == s.state {
		return ErrInStateAlready
	}
	if state > UnsubscribedState {
		return ErrInvalidState
	}
	s.state = state
	return nil
}

// Clone returns a copy of a subscription with state reset
func (s *Subscription) Clone() *Subscription {
	s.m.RLock()
	n := &Subscription{
		Enabled:          s.Enabled,
		Channel:          s.Channel,
		Key:              s.Key,
		Pairs:            append(currency.Pairs(nil), s.Pairs...),
		QualifiedChannel: s.QualifiedChannel,
		Interval:         s.Interval,
		Levels:           s.Levels,
		Authenticated:    s.Authenticated,
	}
	if s.Params != nil {
		n.Params = make(map[string]interface{}, len(s.Params))
		for k, v := range s.Params {
			n.Params[k] = v
		}
	}
	s.m.RUnlock()
	return n
}
