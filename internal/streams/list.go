// Package streams owns the user's list of configured video sources and its
// persistence. The list is the only state shared with the session layer:
// the UI reads it to decide which sessions exist and whether they play.
package streams

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrInvalidStream is returned by Add when the name or URL is blank.
var ErrInvalidStream = errors.New("streams: name and url are required")

// List is the ordered, persisted set of streams. Every mutation is saved
// before it returns; a save error is reported but the in-memory change stays.
type List struct {
	mu    sync.Mutex
	items []Stream
	store *Store
}

// Open loads the list from store.
func Open(store *Store) (*List, error) {
	items, err := store.Load()
	if err != nil {
		return nil, err
	}
	return &List{items: items, store: store}, nil
}

// All returns a copy of the list in display order.
func (l *List) All() []Stream {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Stream, len(l.items))
	copy(out, l.items)
	return out
}

// Len returns the number of configured streams.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Get returns the stream with the given id.
func (l *List) Get(id string) (Stream, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i := l.indexLocked(id); i >= 0 {
		return l.items[i], true
	}
	return Stream{}, false
}

// Add appends a new playing stream. Blank name or URL yields
// ErrInvalidStream and leaves the list untouched.
func (l *List) Add(name, url string) (Stream, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(url) == "" {
		return Stream{}, ErrInvalidStream
	}
	s := Stream{
		ID:      uuid.NewString(),
		Name:    strings.TrimSpace(name),
		URL:     strings.TrimSpace(url),
		Playing: true,
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, s)
	return s, l.saveLocked()
}

// Toggle flips Playing for id and returns the updated stream.
func (l *List) Toggle(id string) (Stream, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.indexLocked(id)
	if i < 0 {
		return Stream{}, false, nil
	}
	l.items[i].Playing = !l.items[i].Playing
	return l.items[i], true, l.saveLocked()
}

// Delete removes id from the list.
func (l *List) Delete(id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.indexLocked(id)
	if i < 0 {
		return false, nil
	}
	l.items = append(l.items[:i], l.items[i+1:]...)
	return true, l.saveLocked()
}

func (l *List) indexLocked(id string) int {
	for i := range l.items {
		if l.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (l *List) saveLocked() error {
	if l.store == nil {
		return nil
	}
	return l.store.Save(l.items)
}
