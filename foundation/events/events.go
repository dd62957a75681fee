// Package events fans out the node's event lines to websocket clients.
package events

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNotAcquired is returned when releasing an id that holds no channel.
var ErrNotAcquired = errors.New("events: id not acquired")

// bufferSize is how many lines a slow client can fall behind before lines
// are dropped for it.
const bufferSize = 100

// Events keeps one buffered channel per client id.
type Events struct {
	mu      sync.RWMutex
	clients map[string]chan string
	dropped uint64
}

// New constructs an empty set of clients.
func New() *Events {
	return &Events{
		clients: make(map[string]chan string),
	}
}

// Acquire returns the channel for the id, creating it on first use.
func (evt *Events) Acquire(id string) chan string {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	if ch, exists := evt.clients[id]; exists {
		return ch
	}

	ch := make(chan string, bufferSize)
	evt.clients[id] = ch

	return ch
}

// Release closes the channel for the id and forgets it.
func (evt *Events) Release(id string) error {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.clients[id]
	if !exists {
		return fmt.Errorf("%w: %q", ErrNotAcquired, id)
	}

	delete(evt.clients, id)
	close(ch)

	return nil
}

// Shutdown releases every client so the websocket handlers return.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, ch := range evt.clients {
		close(ch)
		delete(evt.clients, id)
	}
}

// Count returns the number of connected clients.
func (evt *Events) Count() int {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	return len(evt.clients)
}

// Dropped returns the number of lines lost to clients with a full buffer.
func (evt *Events) Dropped() uint64 {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	return evt.dropped
}

// Send hands the line to every client without blocking. A client whose
// buffer is full misses the line.
func (evt *Events) Send(s string) {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for _, ch := range evt.clients {
		select {
		case ch <- s:
		default:
			evt.dropped++
		}
	}
}
