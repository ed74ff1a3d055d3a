// internal/campaign/selection/set.go
package selection

import (
	"errors"
	"sort"
	"sync"

	"campaign-client/internal/models"
)

var (
	ErrUnknownItem = errors.New("UNKNOWN_ITEM")
)

// Set is a toggle selection over a master list. Items are identified by K and
// displayed as the selected subset followed by the unselected subset, each
// sorted with less.
type Set[K comparable, T any] struct {
	mu       sync.Mutex
	master   []T
	index    map[K]int
	selected map[K]struct{}
	id       func(T) K
	less     func(a, b T) bool
}

func NewSet[K comparable, T any](id func(T) K, less func(a, b T) bool) *Set[K, T] {
	return &Set[K, T]{
		index:    make(map[K]int),
		selected: make(map[K]struct{}),
		id:       id,
		less:     less,
	}
}

// NewFeatureSet orders features by key, then id.
func NewFeatureSet() *Set[int, models.Feature] {
	return NewSet(
		func(f models.Feature) int { return f.ID },
		func(a, b models.Feature) bool {
			if a.Key != b.Key {
				return a.Key < b.Key
			}
			return a.ID < b.ID
		},
	)
}

// NewAudienceSet orders segment labels lexicographically.
func NewAudienceSet() *Set[string, string] {
	return NewSet(
		func(label string) string { return label },
		func(a, b string) bool { return a < b },
	)
}

// Reset replaces the master list and clears the selection. Items with a
// duplicate id keep their first occurrence.
func (s *Set[K, T]) Reset(master []T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.master = s.master[:0]
	s.index = make(map[K]int, len(master))
	s.selected = make(map[K]struct{})
	for _, item := range master {
		k := s.id(item)
		if _, dup := s.index[k]; dup {
			continue
		}
		s.index[k] = len(s.master)
		s.master = append(s.master, item)
	}
}

// Toggle adds the item if absent from the selection, removes it otherwise,
// and reports the new membership.
func (s *Set[K, T]) Toggle(id K) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[id]; !ok {
		return false, ErrUnknownItem
	}
	if _, ok := s.selected[id]; ok {
		delete(s.selected, id)
		return false, nil
	}
	s.selected[id] = struct{}{}
	return true, nil
}

func (s *Set[K, T]) IsSelected(id K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.selected[id]
	return ok
}

func (s *Set[K, T]) Selected() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partition(true)
}

func (s *Set[K, T]) Unselected() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partition(false)
}

// Display returns selected items (sorted) followed by unselected items (sorted).
func (s *Set[K, T]) Display() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(s.partition(true), s.partition(false)...)
}

// Master returns the master list in insertion order.
func (s *Set[K, T]) Master() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]T(nil), s.master...)
}

func (s *Set[K, T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.master)
}

func (s *Set[K, T]) SelectedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.selected)
}

func (s *Set[K, T]) partition(selected bool) []T {
	out := make([]T, 0, len(s.master))
	for _, item := range s.master {
		if _, ok := s.selected[s.id(item)]; ok == selected {
			out = append(out, item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return s.less(out[i], out[j]) })
	return out
}

// FeaturesFromSummary turns an extraction feature_summary into features sorted
// by key with ids assigned in that order.
func FeaturesFromSummary(summary map[string]string) []models.Feature {
	keys := make([]string, 0, len(summary))
	for k := range summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	features := make([]models.Feature, len(keys))
	for i, k := range keys {
		features[i] = models.Feature{Key: k, Value: summary[k], ID: i}
	}
	return features
}

