// internal/campaign/results/store.go
package results

import (
	"context"
	"sort"
	"sync"

	"campaign-client/internal/common/errors"
	"campaign-client/internal/common/logger"
	"campaign-client/internal/models"
)

// Store holds the per-segment image results of the current campaign and
// fronts the generated email cache.
type Store struct {
	mu      sync.Mutex
	images  models.PerTargetImages
	targets []string
	emails  EmailCache
	logger  logger.Logger
}

func NewStore(emails EmailCache, log logger.Logger) *Store {
	if emails == nil {
		emails = NewMemoryEmailCache()
	}
	return &Store{
		images: make(models.PerTargetImages),
		emails: emails,
		logger: logger.ForComponent(log, "result-store"),
	}
}

// Get returns a copy of the bucket for target, or an empty list when the
// target is unknown.
func (s *Store) Get(target string, bucket models.Bucket) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	imgs, ok := s.images[target]
	if !ok {
		return []string{}
	}
	switch bucket {
	case models.BucketAccepted:
		return append([]string{}, imgs.Accepted...)
	case models.BucketRejected:
		return append([]string{}, imgs.Rejected...)
	}
	return []string{}
}

func (s *Store) Has(target string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.images[target]
	return ok
}

// Targets returns the segments in the order they were requested.
func (s *Store) Targets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.targets...)
}

// Snapshot returns a deep copy of all results.
func (s *Store) Snapshot() models.PerTargetImages {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(models.PerTargetImages, len(s.images))
	for k, v := range s.images {
		out[k] = v.Clone()
	}
	return out
}

// ReplaceAll overwrites the store from a terminal result frame. The stored
// keys are exactly the requested segments: missing ones become empty and
// unrequested ones are dropped. Any difference is returned as a
// RESULT_MISMATCH anomaly. With no requested segments the mapping is taken
// as is.
func (s *Store) ReplaceAll(mapping models.PerTargetImages, requested []string) *errors.StandardError {
	if len(requested) == 0 {
		requested = make([]string, 0, len(mapping))
		for k := range mapping {
			requested = append(requested, k)
		}
		sort.Strings(requested)
	}

	next := make(models.PerTargetImages, len(requested))
	want := make(map[string]struct{}, len(requested))
	var missing, unexpected []string
	for _, target := range requested {
		want[target] = struct{}{}
		imgs, ok := mapping[target]
		if !ok {
			missing = append(missing, target)
		}
		next[target] = imgs.Clone()
	}
	for k := range mapping {
		if _, ok := want[k]; !ok {
			unexpected = append(unexpected, k)
		}
	}
	sort.Strings(unexpected)

	s.mu.Lock()
	s.images = next
	s.targets = append([]string(nil), requested...)
	s.mu.Unlock()

	if len(missing) == 0 && len(unexpected) == 0 {
		return nil
	}
	anomaly := errors.NewResultMismatchError(missing, unexpected)
	s.logger.Warn("result segments differ from request", map[string]interface{}{
		"missing":    missing,
		"unexpected": unexpected,
	})
	return anomaly
}

// ApplyPostProcessing writes a logo overlay result back. Accepted is always
// overwritten. Rejected is overwritten only when the result carries a
// non-empty rejected list.
func (s *Store) ApplyPostProcessing(target string, result models.TargetImages) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	imgs, ok := s.images[target]
	if !ok {
		return errors.NewTargetUnknownError(target)
	}
	imgs.Accepted = append([]string{}, result.Accepted...)
	if len(result.Rejected) > 0 {
		imgs.Rejected = append([]string{}, result.Rejected...)
	}
	s.images[target] = imgs
	return nil
}

// Clear drops all image results.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = make(models.PerTargetImages)
	s.targets = nil
}

// Email returns the cached email for target.
func (s *Store) Email(ctx context.Context, target string) (models.Email, bool, error) {
	return s.emails.Get(ctx, target)
}

func (s *Store) PutEmail(ctx context.Context, target string, email models.Email) error {
	return s.emails.Put(ctx, target, email)
}

// ResetEmails clears the email cache for a new campaign.
func (s *Store) ResetEmails(ctx context.Context) error {
	return s.emails.Clear(ctx)
}
