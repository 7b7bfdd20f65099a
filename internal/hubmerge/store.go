// Package hubmerge reconciles hub pages with their paginated link fragments.
package hubmerge

import (
	"slices"
	"sync"

	"github.com/JakeFAU/wikidot-crawler/internal/crawler"
)

// Store buffers fragments by owner key for the duration of one crawl run. It is
// safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	fragments map[string][]crawler.Fragment
	finalized map[string]struct{}
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		fragments: make(map[string][]crawler.Fragment),
		finalized: make(map[string]struct{}),
	}
}

// Reset discards all buffered fragments and finalized owners.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.fragments)
	clear(s.finalized)
}

// Add buffers a fragment. It reports true when the owner was already finalized,
// meaning the fragment can no longer reach its hub.
func (s *Store) Add(f crawler.Fragment) (late bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fragments[f.OwnerKey] = append(s.fragments[f.OwnerKey], f)
	_, late = s.finalized[f.OwnerKey]
	return late
}

// Take removes and returns the fragments buffered for owner sorted by page
// number, and marks owner finalized.
func (s *Store) Take(owner string) []crawler.Fragment {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalized[owner] = struct{}{}
	frags, ok := s.fragments[owner]
	if !ok {
		return nil
	}
	delete(s.fragments, owner)
	slices.SortStableFunc(frags, func(a, b crawler.Fragment) int {
		return a.PageNumber - b.PageNumber
	})
	return frags
}

// Finalized reports whether owner has already been merged and emitted.
func (s *Store) Finalized(owner string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.finalized[owner]
	return ok
}

// Unclaimed returns, per owner key, the number of buffered fragments whose
// owner has not been finalized.
func (s *Store) Unclaimed() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int)
	for owner, frags := range s.fragments {
		if _, done := s.finalized[owner]; done {
			continue
		}
		out[owner] = len(frags)
	}
	return out
}
