// Package nonce provides monotonic nonce values for signers that require a
// strictly increasing counter per API key.
package nonce

import (
	"strconv"
	"sync"
	"time"
)

// Nonce struct holds the nonce value
type Nonce struct {
	n int64
	m sync.Mutex
}

// GetInc returns a strictly increasing microsecond-clock value. Calls landing
// within the same microsecond increment past the previous value instead of
// repeating it.
func (n *Nonce) GetInc() Value {
	n.m.Lock()
	defer n.m.Unlock()
	now := time.Now().UnixMicro()
	if now <= n.n {
		n.n++
	} else {
		n.n = now
	}
	return Value(n.n)
}

// Get retrieves the nonce value without advancing it
func (n *Nonce) Get() Value {
	n.m.Lock()
	defer n.m.Unlock()
	return Value(n.n)
}

// Set seeds the nonce value
func (n *Nonce) Set(val int64) {
	n.m.Lock()
	n.n = val
	n.m.Unlock()
}

// String returns a string version of the nonce
func (n *Nonce) String() string {
	return n.Get().String()
}

// Value is a return type for Get
type Value int64

// String is a Value method that changes format to a string
func (v Value) String() string {
	return strconv.FormatInt(int64(v), 10)
}
