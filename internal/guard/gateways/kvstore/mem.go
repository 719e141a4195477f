package kvstore

import (
	"encoding/json"
	"fmt"
	"sync"
)

// memStore is an in-memory Store with the same notification semantics as the
// Bolt implementation. Used in tests and as an ephemeral mode.
type memStore struct {
	mu   sync.Mutex
	data map[string]map[string][]byte
	subs map[int]chan Change
	next int
}

// NewMemStore returns an empty in-memory Store.
func NewMemStore() Store {
	return &memStore{
		data: map[string]map[string][]byte{
			NamespaceSynced: {},
			NamespaceLocal:  {},
		},
		subs: map[int]chan Change{},
	}
}

func (s *memStore) Get(namespace, key string, v any) (bool, error) {
	s.mu.Lock()
	ns, ok := s.data[namespace]
	if !ok {
		s.mu.Unlock()
		return false, fmt.Errorf("unknown namespace %q", namespace)
	}
	raw, ok := ns[key]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decoding %s/%s: %w", namespace, key, err)
	}
	return true, nil
}

func (s *memStore) Put(namespace, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", namespace, key, err)
	}
	s.mu.Lock()
	ns, ok := s.data[namespace]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown namespace %q", namespace)
	}
	ns[key] = raw
	for _, ch := range s.subs {
		select {
		case ch <- Change{Namespace: namespace, Key: key}:
		default:
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *memStore) Delete(namespace, key string) error {
	s.mu.Lock()
	ns, ok := s.data[namespace]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown namespace %q", namespace)
	}
	delete(ns, key)
	for _, ch := range s.subs {
		select {
		case ch <- Change{Namespace: namespace, Key: key}:
		default:
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *memStore) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, subscriberBuffer)
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()
	cancel := func() {
		s.mu.Lock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *memStore) Close() error {
	s.mu.Lock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.mu.Unlock()
	return nil
}

var _ Store = (*memStore)(nil)
