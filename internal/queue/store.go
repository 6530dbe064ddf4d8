package queue

import (
	"sync"

	"github.com/google/uuid"

	"github.com/okarpov/imgpress/internal/model"
)

// Outcome is the terminal result of one conversion attempt for one item.
type Outcome struct {
	ID         uuid.UUID
	ResultKey  string
	ResultSize int64
	FailReason string // non-empty means the attempt failed
}

// Store is the single source of truth for the conversion queue and the
// active output preset. Insertion order is preserved; reads hand out
// value snapshots so callers never observe in-place mutation.
type Store struct {
	mu     sync.RWMutex
	items  []model.Item
	preset model.Preset
}

// NewStore creates an empty store with the default preset active.
func NewStore() *Store {
	return &Store{preset: model.DefaultPreset}
}

// Append adds items to the end of the queue.
func (s *Store) Append(items ...model.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = append(s.items, items...)
}

// Remove pops the item with the given id and returns it, so the caller
// can release its storage handles exactly once. It is a no-op when the
// id is not present; remaining items keep their order.
func (s *Store) Remove(id uuid.UUID) (model.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, it := range s.items {
		if it.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return it, true
		}
	}

	return model.Item{}, false
}

// Drain empties the queue and returns every removed item for handle
// release.
func (s *Store) Drain() []model.Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	drained := s.items
	s.items = nil

	return drained
}

// Snapshot returns a copy of the current queue in insertion order.
func (s *Store) Snapshot() []model.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Item, len(s.items))
	copy(out, s.items)

	return out
}

// Get returns a copy of a single item by id.
func (s *Store) Get(id uuid.UUID) (model.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, it := range s.items {
		if it.ID == id {
			return it, true
		}
	}

	return model.Item{}, false
}

// Len returns the number of queued items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.items)
}

// SetPreset replaces the active output preset. It has no effect on
// items already converted; only later conversion runs see it.
func (s *Store) SetPreset(p model.Preset) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.preset = p
}

// Preset returns the active output preset.
func (s *Store) Preset() model.Preset {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.preset
}

// MarkProcessing moves the given items into the processing state in a
// single locked update, clearing any result fields left over from a
// previous attempt. Items removed since the caller took its snapshot
// are skipped.
func (s *Store) MarkProcessing(ids ...uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		for i := range s.items {
			if s.items[i].ID != id {
				continue
			}
			s.items[i].Status = model.StatusProcessing
			s.items[i].ResultKey = ""
			s.items[i].ResultSize = 0
			s.items[i].FailReason = ""
			break
		}
	}
}

// Resolve applies terminal outcomes in a single locked update, so a
// joined conversion run never exposes a half-finished queue. Only items
// still in the processing state are touched: a processing item moves to
// done or error exactly once per attempt.
func (s *Store) Resolve(outcomes ...Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, out := range outcomes {
		for i := range s.items {
			if s.items[i].ID != out.ID || s.items[i].Status != model.StatusProcessing {
				continue
			}

			if out.FailReason != "" {
				s.items[i].Status = model.StatusError
				s.items[i].FailReason = out.FailReason
			} else {
				s.items[i].Status = model.StatusDone
				s.items[i].ResultKey = out.ResultKey
				s.items[i].ResultSize = out.ResultSize
			}
			break
		}
	}
}
