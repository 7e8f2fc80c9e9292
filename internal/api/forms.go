package api

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"customer-manager/internal/common/errors"
	"customer-manager/internal/common/metrics"
	"customer-manager/internal/form"
)

// FormRegistry holds the open forms by id. When it is full, closed forms and
// forms nobody has touched within the idle timeout are evicted before a new
// form is refused.
type FormRegistry struct {
	mu    sync.Mutex
	forms map[string]*formEntry
	order []string
	limit int
	idle  time.Duration
	newID func() string
	now   func() time.Time
}

type formEntry struct {
	controller *form.Controller
	lastSeen   time.Time
}

type RegistryOption func(*FormRegistry)

// WithIdleTimeout makes forms untouched for d evictable. Zero disables idle
// eviction.
func WithIdleTimeout(d time.Duration) RegistryOption {
	return func(r *FormRegistry) {
		r.idle = d
	}
}

func NewFormRegistry(limit int, opts ...RegistryOption) *FormRegistry {
	r := &FormRegistry{
		forms: make(map[string]*formEntry),
		limit: limit,
		newID: uuid.NewString,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Put registers c and returns its id.
func (r *FormRegistry) Put(c *form.Controller) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.limit > 0 && len(r.forms) >= r.limit {
		r.evict()
		if len(r.forms) >= r.limit {
			return "", errors.NewFormLimitError(r.limit)
		}
	}

	id := r.newID()
	r.forms[id] = &formEntry{controller: c, lastSeen: r.now()}
	r.order = append(r.order, id)
	metrics.FormsOpen.Set(float64(len(r.forms)))
	return id, nil
}

// Get returns the form with id and marks it as in use.
func (r *FormRegistry) Get(id string) (*form.Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.forms[id]
	if !ok {
		return nil, errors.NewFormNotFoundError(id)
	}
	e.lastSeen = r.now()
	return e.controller, nil
}

// Remove cancels and forgets the form with id.
func (r *FormRegistry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.forms[id]
	if !ok {
		return errors.NewFormNotFoundError(id)
	}
	e.controller.Cancel()
	r.forget(id)
	return nil
}

// CancelAll closes every open form, used on shutdown.
func (r *FormRegistry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.forms {
		e.controller.Cancel()
	}
}

func (r *FormRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.forms)
}

func (r *FormRegistry) evict() {
	now := r.now()
	for _, id := range append([]string(nil), r.order...) {
		e := r.forms[id]
		switch {
		case e.controller.Snapshot().Done:
		case r.idle > 0 && now.Sub(e.lastSeen) >= r.idle:
			e.controller.Cancel()
		default:
			continue
		}
		r.forget(id)
		metrics.FormsEvicted.Inc()
	}
}

func (r *FormRegistry) forget(id string) {
	delete(r.forms, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	metrics.FormsOpen.Set(float64(len(r.forms)))
}
