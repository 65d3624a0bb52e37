package subscription

import (
	"fmt"
	"sync"
)

// Store holds subscriptions in registration order. Replay after a reconnect
// walks List, so ordering is part of the contract.
type Store struct {
	m       sync.RWMutex
	lookup  map[string]*Subscription
	ordered []*Subscription
}

// NewStore returns an empty subscription store
func NewStore() *Store {
	return &Store{lookup: make(map[string]*Subscription)}
}

// Add stores a subscription, erroring on identity collision
func (s *Store) Add(sub *Subscription) error {
	s.m.Lock()
	defer s.m.Unlock()
	id := sub.ID()
	if _, ok := s.lookup[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	s.lookup[id] = sub
	s.ordered = append(s.ordered, sub)
	return nil
}

// Get returns the subscription matching the identity of match, or nil
func (s *Store) Get(match *Subscription) *Subscription {
	s.m.RLock()
	defer s.m.RUnlock()
	return s.lookup[match.ID()]
}

// GetByID returns the subscription under id, or nil
func (s *Store) GetByID(id string) *Subscription {
	s.m.RLock()
	defer s.m.RUnlock()
	return s.lookup[id]
}

// Remove deletes a subscription by identity
func (s *Store) Remove(sub *Subscription) error {
	s.m.Lock()
	defer s.m.Unlock()
	id := sub.ID()
	if _, ok := s.lookup[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.lookup, id)
	for i := range s.ordered {
		if s.ordered[i].ID() == id {
			s.ordered = append(s.ordered[:i], s.ordered[i+1:]...)
			break
		}
	}
	return nil
}

// List returns subscriptions in registration order
func (s *Store) List() []*Subscription {
	s.m.RLock()
	defer s.m.RUnlock()
	out := make([]*Subscription, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// Len returns the number of stored subscriptions
func (s *Store) Len() int {
	s.m.RLock()
	defer s.m.RUnlock()
	return len(s.ordered)
}

// Clear removes all subscriptions
func (s *Store) Clear() {
	s.m.Lock()
	s.lookup = make(map[string]*Subscription)
	s.ordered = nil
	s.m.Unlock()
}
