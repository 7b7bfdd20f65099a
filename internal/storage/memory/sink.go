// Package memory stores records in-memory for development and dry runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/wikidot-crawler/internal/crawler"
	"github.com/JakeFAU/wikidot-crawler/internal/storage"
)

// Sink keeps the latest encoded copy of every record, keyed by object path.
type Sink struct {
	mu     sync.RWMutex
	data   map[string][]byte
	writes int
}

var _ crawler.RecordSink = (*Sink)(nil)

// NewSink creates a new in-memory sink.
func NewSink() *Sink {
	return &Sink{data: make(map[string][]byte)}
}

// Write encodes and stores the record.
func (s *Sink) Write(_ context.Context, record crawler.Record) error {
	path, err := storage.ObjectPath("", record)
	if err != nil {
		return fmt.Errorf("memory sink: %w", err)
	}
	data, err := storage.Encode(record)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[path] = data
	s.writes++
	return nil
}

// Get returns a copy of the stored bytes for path.
func (s *Sink) Get(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[path]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Paths lists stored object paths in sorted order.
func (s *Sink) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data))
	for p := range s.data {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Writes reports how many writes were accepted, including overwrites.
func (s *Sink) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}
