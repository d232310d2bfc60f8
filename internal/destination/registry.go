package destination

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNotFound reports a lookup for a destination id nothing is registered
// under.
var ErrNotFound = errors.New("destination not found")

// Registry holds every installed destination, keyed by id. Destinations are
// registered at startup; lookups are read-only afterwards, so no locking.
type Registry struct {
	destinations map[string]*Destination
}

// NewRegistry creates an empty destination registry.
func NewRegistry() *Registry {
	return &Registry{destinations: make(map[string]*Destination)}
}

// Register installs a destination. Duplicate ids are rejected.
func (r *Registry) Register(d *Destination) error {
	if d == nil || d.ID == "" {
		return fmt.Errorf("cannot register a destination without an id")
	}
	if _, exists := r.destinations[d.ID]; exists {
		return fmt.Errorf("destination %q already registered", d.ID)
	}
	r.destinations[d.ID] = d
	return nil
}

// Get returns the destination registered under id.
func (r *Registry) Get(id string) (*Destination, error) {
	d, ok := r.destinations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return d, nil
}

// IDs returns every registered destination id, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.destinations))
	for id := range r.destinations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ApplySubscriptions installs every loaded subscription set onto its
// destination. A set naming an unregistered destination is a startup error.
func (r *Registry) ApplySubscriptions(repo SubscriptionRepository) error {
	for _, set := range repo.Sets() {
		d, err := r.Get(set.Destination)
		if err != nil {
			return fmt.Errorf("subscription set for unregistered destination %q", set.Destination)
		}
		if err := d.SetSubscriptions(set.Subscriptions); err != nil {
			return err
		}
	}
	return nil
}
