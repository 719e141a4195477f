package kvstore

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bbolt "go.etcd.io/bbolt"
)

var buckets = [][]byte{[]byte(NamespaceSynced), []byte(NamespaceLocal)}

// subscriberBuffer bounds each listener channel. Listeners re-read values on
// every event, so dropped notifications only delay convergence until the
// next write or periodic re-check.
const subscriberBuffer = 16

// boltStore implements Store using bbolt, one bucket per namespace.
type boltStore struct {
	db *bbolt.DB

	mu   sync.Mutex
	subs map[int]chan Change
	next int
}

// Open opens (or creates) a Bolt database at path and ensures the namespace
// buckets exist.
func Open(path string) (Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltStore{db: db, subs: map[int]chan Change{}}, nil
}

func (s *boltStore) Get(namespace, key string, v any) (bool, error) {
	var raw []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return fmt.Errorf("unknown namespace %q", namespace)
		}
		if data := b.Get([]byte(key)); data != nil {
			raw = make([]byte, len(data))
			copy(raw, data)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decoding %s/%s: %w", namespace, key, err)
	}
	return true, nil
}

func (s *boltStore) Put(namespace, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", namespace, key, err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return fmt.Errorf("unknown namespace %q", namespace)
		}
		return b.Put([]byte(key), raw)
	})
	if err != nil {
		return err
	}
	s.notify(Change{Namespace: namespace, Key: key})
	return nil
}

func (s *boltStore) Delete(namespace, key string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return fmt.Errorf("unknown namespace %q", namespace)
		}
		return b.Delete([]byte(key))
	})
	if err != nil {
		return err
	}
	s.notify(Change{Namespace: namespace, Key: key})
	return nil
}

func (s *boltStore) Subscribe() (<-chan Change, func()) {
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

// notify fans a change out to every subscriber without blocking the writer.
func (s *boltStore) notify(c Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

func (s *boltStore) Close() error {
	s.mu.Lock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.mu.Unlock()
	return s.db.Close()
}

var _ Store = (*boltStore)(nil)
