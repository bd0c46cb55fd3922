package banks

import (
	"sort"
	"sync"

	"github.com/grovetools/remit/errors"
)

// Registry is the set of banks a transfer can target, keyed by id.
type Registry struct {
	mu    sync.RWMutex
	banks map[string]Bank
}

// NewRegistry creates a registry holding banks. Later entries win on duplicate ids.
func NewRegistry(banks ...Bank) *Registry {
	r := &Registry{banks: make(map[string]Bank, len(banks))}
	r.Merge(banks)
	return r
}

// Default returns a registry of the built-in banks, overlaid with the table at
// extraFile when it is not empty.
func Default(extraFile string) (*Registry, error) {
	r := NewRegistry(Builtin()...)
	if extraFile == "" {
		return r, nil
	}
	extra, err := LoadFile(extraFile)
	if err != nil {
		return nil, err
	}
	r.Merge(extra)
	return r, nil
}

// Merge adds or replaces banks by id.
func (r *Registry) Merge(banks []Bank) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range banks {
		r.banks[b.ID] = b
	}
}

// Get returns the bank with the given id.
func (r *Registry) Get(id string) (Bank, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.banks[id]
	if !ok {
		return Bank{}, errors.BankNotFound(id)
	}
	return b, nil
}

// List returns all banks ordered by id.
func (r *Registry) List() []Bank {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Bank, 0, len(r.banks))
	for _, b := range r.banks {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
