// internal/campaign/selection/resolution.go
package selection

import (
	"sort"
	"sync"

	"campaign-client/internal/models"
)

// DefaultResolutions is the built-in catalog used when none is configured.
func DefaultResolutions() []models.ImageResolution {
	return []models.ImageResolution{
		{Width: 360, Height: 640, ID: 0},
		{Width: 414, Height: 896, ID: 1},
		{Width: 512, Height: 512, ID: 2},
	}
}

// Exclusive is a single-choice selection over image resolutions. At most one
// resolution is selected at any time.
type Exclusive struct {
	mu       sync.Mutex
	master   []models.ImageResolution
	selected int
	has      bool
}

func NewExclusive(master []models.ImageResolution) *Exclusive {
	e := &Exclusive{}
	e.Reset(master)
	return e
}

// Reset replaces the catalog and clears the selection.
func (e *Exclusive) Reset(master []models.ImageResolution) {
	e.mu.Lock()
	defer e.mu.Unlock()

	seen := make(map[int]struct{}, len(master))
	e.master = e.master[:0]
	for _, r := range master {
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		e.master = append(e.master, r)
	}
	e.has = false
}

// Toggle clears the selection when id is already selected and replaces it otherwise.
func (e *Exclusive) Toggle(id int) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.find(id); !ok {
		return false, ErrUnknownItem
	}
	if e.has && e.selected == id {
		e.has = false
		return false, nil
	}
	e.selected = id
	e.has = true
	return true, nil
}

func (e *Exclusive) Selected() (models.ImageResolution, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.has {
		return models.ImageResolution{}, false
	}
	return e.find(e.selected)
}

func (e *Exclusive) SelectedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.has {
		return 1
	}
	return 0
}

// Display returns the selected resolution first, then the rest of the
// catalog, each group sorted by width.
func (e *Exclusive) Display() []models.ImageResolution {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := append([]models.ImageResolution(nil), e.master...)
	sort.SliceStable(out, func(i, j int) bool {
		si := e.has && out[i].ID == e.selected
		sj := e.has && out[j].ID == e.selected
		if si != sj {
			return si
		}
		if out[i].Width != out[j].Width {
			return out[i].Width < out[j].Width
		}
		return out[i].Height < out[j].Height
	})
	return out
}

func (e *Exclusive) find(id int) (models.ImageResolution, bool) {
	for _, r := range e.master {
		if r.ID == id {
			return r, true
		}
	}
	return models.ImageResolution{}, false
}
