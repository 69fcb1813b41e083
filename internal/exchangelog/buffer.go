// Package exchangelog keeps the most recent upstream exchanges in memory,
// newest first, and forwards each entry to the configured publishers.
package exchangelog

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultCapacity = 2000

// Entry is one recorded request/response exchange.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Request   any       `json:"request"`
	Response  any       `json:"response"`
	IsError   bool      `json:"isError"`
}

// Publisher receives a copy of every entry. Implementations must not block.
type Publisher interface {
	Publish(any)
}

type Buffer struct {
	mu         sync.RWMutex
	entries    []Entry
	capacity   int
	now        func() time.Time
	publishers []Publisher
}

func NewBuffer(capacity int, publishers ...Publisher) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		entries:    make([]Entry, 0, 64),
		capacity:   capacity,
		now:        time.Now,
		publishers: publishers,
	}
}

// Record builds an entry and adds it.
func (b *Buffer) Record(request, response any, isError bool) Entry {
	e := Entry{
		ID:        uuid.NewString(),
		Timestamp: b.now().UTC(),
		Request:   request,
		Response:  response,
		IsError:   isError,
	}
	b.Add(e)
	return e
}

// Add inserts e at the front and evicts the oldest entry past capacity.
func (b *Buffer) Add(e Entry) {
	b.mu.Lock()
	b.entries = append(b.entries, Entry{})
	copy(b.entries[1:], b.entries)
	b.entries[0] = e
	if len(b.entries) > b.capacity {
		b.entries[len(b.entries)-1] = Entry{}
		b.entries = b.entries[:b.capacity]
	}
	b.mu.Unlock()

	for _, p := range b.publishers {
		p.Publish(e)
	}
}

// Entries returns a copy, newest first. Never nil.
func (b *Buffer) Entries() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.entries)
	b.entries = b.entries[:0]
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

func (b *Buffer) Capacity() int { return b.capacity }
