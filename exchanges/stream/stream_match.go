package stream

import (
	"errors"
	"sync"
)

// NewMatch returns a new Match
func NewMatch() *Match {
	return &Match{m: make(map[interface{}]chan []byte)}
}

// Match correlates outbound requests with their acknowledgements. All
// inbound traffic funnels through one dispatch routine, so handlers offer
// payloads here first and only fall through to stream processing when no
// waiter claims them.
type Match struct {
	m  map[interface{}]chan []byte
	mu sync.Mutex
}

// Matcher defines a payload matching return mechanism
type Matcher struct {
	C   chan []byte
	sig interface{}
	m   *Match
}

// IncomingWithData offers a payload to the waiter registered under
// signature, reporting whether one claimed it
func (m *Match) IncomingWithData(signature interface{}, data []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.m[signature]
	if !ok {
		return false
	}
	select {
	case ch <- data:
	default:
	}
	return true
}

// Set registers a response channel for signature
func (m *Match) Set(signature interface{}, bufSize int) (Matcher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.m[signature]; ok {
		return Matcher{}, errors.New("signature collision")
	}
	ch := make(chan []byte, bufSize)
	m.m[signature] = ch
	return Matcher{C: ch, sig: signature, m: m}, nil
}

// Cleanup closes the underlying channel and deregisters the signature
func (m *Matcher) Cleanup() {
	m.m.mu.Lock()
	close(m.C)
	delete(m.m.m, m.sig)
	m.m.mu.Unlock()
}
