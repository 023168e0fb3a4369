// Package registry holds the configured relays and their last confirmed state.
//
// All read-modify-write operations run under one mutex together with the write to the
// settings store, so concurrent status callbacks, API commands and timer expirations
// observe a consistent relay list. The lock is never held across MQTT I/O; callers
// receive copies.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"tasmota_mqtt/internal/models"
)

var ErrDuplicateRelay = errors.New("relay already configured")

// Store persists the settings document.
type Store interface {
	Load(ctx context.Context) (models.Settings, error)
	Save(ctx context.Context, s models.Settings) error
}

type Registry struct {
	mu       sync.Mutex
	store    Store
	settings models.Settings
}

// Load reads the settings from store and returns a registry over them.
func Load(ctx context.Context, store Store) (*Registry, error) {
	s, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return New(store, s), nil
}

// New returns a registry seeded with s without touching the store.
func New(store Store, s models.Settings) *Registry {
	if s.Relays == nil {
		s.Relays = []models.Relay{}
	}
	return &Registry{store: store, settings: s.Clone()}
}

// Settings returns a copy of the current settings.
func (r *Registry) Settings() models.Settings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings.Clone()
}

// Relays returns a copy of the relay list in configuration order.
func (r *Registry) Relays() []models.Relay {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings.Clone().Relays
}

// Find returns the first relay whose topic and channel match exactly.
func (r *Registry) Find(key models.RelayKey) (models.Relay, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(key, false)
	if i < 0 {
		return models.Relay{}, false
	}
	return r.settings.Relays[i], true
}

// FindFold is Find with a case-insensitive topic match. The channel still matches exactly.
func (r *Registry) FindFold(key models.RelayKey) (models.Relay, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(key, true)
	if i < 0 {
		return models.Relay{}, false
	}
	return r.settings.Relays[i], true
}

// Any reports whether some relay satisfies pred.
func (r *Registry) Any(pred func(models.Relay) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, relay := range r.settings.Relays {
		if pred(relay) {
			return true
		}
	}
	return false
}

// Filter returns copies of the relays that satisfy pred.
func (r *Registry) Filter(pred func(models.Relay) bool) []models.Relay {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Relay
	for _, relay := range r.settings.Relays {
		if pred(relay) {
			out = append(out, relay)
		}
	}
	return out
}

// UpdateState records a confirmed state. It reports changed=false, and does not
// persist, when the relay is unknown or already in that state.
func (r *Registry) UpdateState(ctx context.Context, key models.RelayKey, state models.State) (models.Relay, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(key, false)
	if i < 0 {
		return models.Relay{}, false, nil
	}
	if r.settings.Relays[i].CurrentState == state {
		return r.settings.Relays[i], false, nil
	}
	r.settings.Relays[i].CurrentState = state
	relay := r.settings.Relays[i]

	// The state was observed on the wire, so it stays in memory even if the write fails.
	if err := r.store.Save(ctx, r.settings.Clone()); err != nil {
		return relay, true, fmt.Errorf("persist state of %s: %w", key, err)
	}
	return relay, true, nil
}

// Upsert adds a relay or replaces the one with the same key. The confirmed state of an
// existing relay is kept. When previous is non-nil the relay at that key is replaced,
// which allows renaming a relay.
func (r *Registry) Upsert(ctx context.Context, relay models.Relay, previous *models.RelayKey) (old models.Relay, existed bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lookup := relay.Key()
	if previous != nil {
		lookup = *previous
	}
	next := r.settings.Clone()

	i := r.indexIn(next.Relays, lookup, false)
	if previous != nil && *previous != relay.Key() && r.indexIn(next.Relays, relay.Key(), false) >= 0 {
		return models.Relay{}, false, fmt.Errorf("%w: %s", ErrDuplicateRelay, relay.Key())
	}
	if i >= 0 {
		old, existed = next.Relays[i], true
		relay.CurrentState = old.CurrentState
		next.Relays[i] = relay
	} else {
		if relay.CurrentState == "" {
			relay.CurrentState = models.StateUnknown
		}
		next.Relays = append(next.Relays, relay)
	}

	if err := r.store.Save(ctx, next); err != nil {
		return models.Relay{}, false, fmt.Errorf("persist relay %s: %w", relay.Key(), err)
	}
	r.settings = next
	return old, existed, nil
}

// Remove deletes the first relay with key.
func (r *Registry) Remove(ctx context.Context, key models.RelayKey) (models.Relay, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(key, false)
	if i < 0 {
		return models.Relay{}, false, nil
	}
	next := r.settings.Clone()
	removed := next.Relays[i]
	next.Relays = append(next.Relays[:i], next.Relays[i+1:]...)

	if err := r.store.Save(ctx, next); err != nil {
		return models.Relay{}, false, fmt.Errorf("persist removal of %s: %w", key, err)
	}
	r.settings = next
	return removed, true, nil
}

// Update applies fn to a copy of the settings and persists it. On error nothing changes.
func (r *Registry) Update(ctx context.Context, fn func(s *models.Settings)) (models.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.settings.Clone()
	fn(&next)
	if err := r.store.Save(ctx, next); err != nil {
		return models.Settings{}, fmt.Errorf("persist settings: %w", err)
	}
	r.settings = next
	return next.Clone(), nil
}

func (r *Registry) indexLocked(key models.RelayKey, fold bool) int {
	return r.indexIn(r.settings.Relays, key, fold)
}

func (r *Registry) indexIn(relays []models.Relay, key models.RelayKey, fold bool) int {
	for i, relay := range relays {
		if relay.RelayN != key.RelayN {
			continue
		}
		if relay.Topic == key.Topic || (fold && strings.EqualFold(relay.Topic, key.Topic)) {
			return i
		}
	}
	return -1
}
