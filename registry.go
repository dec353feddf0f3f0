package graft

import (
	"reflect"
	"sync"
)

// registry maps contracts to their registrations, preserving both the order
// contracts were first seen and the order providers were added under each.
type registry struct {
	providers map[reflect.Type][]*providerEntry
	order     []reflect.Type
	mu        sync.RWMutex
}

func newRegistry() *registry {
	return &registry{
		providers: make(map[reflect.Type][]*providerEntry),
	}
}

// register appends entry under contract. The same provider may be registered
// under many contracts but only once under each.
func (r *registry) register(contract reflect.Type, entry *providerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, exists := r.providers[contract]
	for _, e := range entries {
		if e.provider == entry.provider {
			return newDuplicateBindingError(contract)
		}
	}

	if !exists {
		r.order = append(r.order, contract)
	}

	r.providers[contract] = append(entries, entry)

	return nil
}

// unregister removes p from every contract and drops contracts left empty.
// It reports how many registrations were removed.
func (r *registry) unregister(p Provider) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0

	for contract, entries := range r.providers {
		kept := entries[:0:0]

		for _, e := range entries {
			if e.provider == p {
				removed++

				continue
			}

			kept = append(kept, e)
		}

		if len(kept) == 0 {
			delete(r.providers, contract)
		} else {
			r.providers[contract] = kept
		}
	}

	if removed > 0 {
		r.compactOrder()
	}

	return removed
}

// removeContract drops every registration under contract and returns the
// providers that are no longer registered anywhere.
func (r *registry) removeContract(contract reflect.Type) []Provider {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.providers[contract]
	delete(r.providers, contract)
	r.compactOrder()

	var orphaned []Provider

	for _, e := range entries {
		if !r.isRegisteredLocked(e.provider) {
			orphaned = append(orphaned, e.provider)
		}
	}

	return orphaned
}

func (r *registry) compactOrder() {
	kept := r.order[:0]

	for _, contract := range r.order {
		if _, ok := r.providers[contract]; ok {
			kept = append(kept, contract)
		}
	}

	r.order = kept
}

func (r *registry) isRegisteredLocked(p Provider) bool {
	for _, entries := range r.providers {
		for _, e := range entries {
			if e.provider == p {
				return true
			}
		}
	}

	return false
}

// lookup returns the registrations of ctx.Contract that match ctx, in
// registration order.
func (r *registry) lookup(ctx *InjectContext) []*providerEntry {
	r.mu.RLock()
	entries := r.providers[ctx.Contract]
	r.mu.RUnlock()

	var matches []*providerEntry

	for _, e := range entries {
		if e.matches(ctx) {
			matches = append(matches, e)
		}
	}

	return matches
}

// has reports whether contract has any registration, matching or not.
func (r *registry) has(contract reflect.Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.providers[contract]

	return ok
}

// contracts returns every contract in first-registration order.
func (r *registry) contracts() []reflect.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]reflect.Type, len(r.order))
	copy(out, r.order)

	return out
}

// entries returns a snapshot of the registrations under contract.
func (r *registry) entries(contract reflect.Type) []*providerEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*providerEntry, len(r.providers[contract]))
	copy(out, r.providers[contract])

	return out
}

// distinctProviders returns every registered provider once, in registration order.
func (r *registry) distinctProviders() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[Provider]struct{})

	var out []Provider

	for _, contract := range r.order {
		for _, e := range r.providers[contract] {
			if _, ok := seen[e.provider]; ok {
				continue
			}

			seen[e.provider] = struct{}{}
			out = append(out, e.provider)
		}
	}

	return out
}
