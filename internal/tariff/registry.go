package tariff

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownSchedule is returned when a schedule key is not registered.
var ErrUnknownSchedule = errors.New("tariff: unknown schedule")

// Registry holds named schedules. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	schedules map[string]Schedule
}

// NewRegistry returns a registry preloaded with list. Every schedule must
// validate and keys must be unique.
func NewRegistry(list []Schedule) (*Registry, error) {
	r := &Registry{schedules: make(map[string]Schedule, len(list))}
	for _, s := range list {
		if _, dup := r.schedules[s.Key]; dup {
			return nil, fmt.Errorf("tariff: schedule %q registered twice", s.Key)
		}
		if err := r.Put(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Put adds or replaces a schedule after validating it.
func (r *Registry) Put(s Schedule) error {
	if s.Key == "" {
		return fmt.Errorf("%w: schedule key is empty", ErrInvalidInput)
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("schedule %q: %w", s.Key, err)
	}
	s.Slabs = append([]Slab(nil), s.Slabs...)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.schedules[s.Key] = s
	return nil
}

// Get returns the schedule registered under key.
func (r *Registry) Get(key string) (Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schedules[key]
	if !ok {
		return Schedule{}, fmt.Errorf("%w: %s", ErrUnknownSchedule, key)
	}
	s.Slabs = append([]Slab(nil), s.Slabs...)
	return s, nil
}

// Delete removes key and reports whether it was present.
func (r *Registry) Delete(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.schedules[key]
	delete(r.schedules, key)
	return ok
}

// List returns all schedules sorted by key.
func (r *Registry) List() []Schedule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Schedule, 0, len(r.schedules))
	for _, s := range r.schedules {
		s.Slabs = append([]Slab(nil), s.Slabs...)
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
