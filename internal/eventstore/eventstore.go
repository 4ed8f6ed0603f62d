// Package eventstore implements the bounded FIFO that transport receivers
// append raw edge events into, and that the workflow runner drains once per
// cycle. It mirrors the single-mutex, O(1)-append / O(n)-drain discipline
// the tracking pipeline uses for its own frame queues.
package eventstore

import (
	"io"
	"log"
	"sync"

	"github.com/allenshie/integration-core/internal/model"
)

var (
	opsLogger *log.Logger
)

// SetLogWriters configures the store's ops logging stream. Pass nil to
// disable it.
func SetLogWriters(ops io.Writer) {
	opsLogger = newLogger("[eventstore] ", ops)
}

func newLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

func opsf(format string, args ...interface{}) {
	if opsLogger != nil {
		opsLogger.Printf(format, args...)
	}
}

// DefaultCapacity is the store's default bound (spec: 2000).
const DefaultCapacity = 2000

// Store is a bounded, thread-safe FIFO of raw inbound events. When full,
// Append evicts the oldest entry to make room for the newest (P2: length
// never exceeds capacity under any interleaving of Append and DrainAll).
type Store struct {
	mu       sync.Mutex
	capacity int
	buf      []model.Event
}

// New creates a Store with the given capacity. A non-positive capacity
// falls back to DefaultCapacity.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{capacity: capacity, buf: make([]model.Event, 0, capacity)}
}

// Append adds ev to the tail of the queue, evicting the oldest entry first
// if the store is at capacity.
func (s *Store) Append(ev model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) >= s.capacity {
		s.buf = s.buf[1:]
		opsf("event store at capacity %d, evicting oldest", s.capacity)
	}
	s.buf = append(s.buf, ev)
}

// DrainAll returns and clears every event currently buffered, in arrival
// order.
func (s *Store) DrainAll() []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) == 0 {
		return nil
	}
	out := s.buf
	s.buf = make([]model.Event, 0, s.capacity)
	return out
}

// Len reports the current buffered count.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// Capacity reports the configured bound.
func (s *Store) Capacity() int {
	return s.capacity
}
