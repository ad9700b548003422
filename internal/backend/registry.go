// SPDX-License-Identifier: MIT

package backend

import (
	"fmt"

	"github.com/mhartwig/tunerhub/internal/ident"
	xlog "github.com/mhartwig/tunerhub/internal/log"
	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
)

var fold = cases.Fold()

// Registry holds every registered backend for the lifetime of the process.
// Backends are added once at startup and never removed; after AddBackends
// all access is read-only, so no lock is needed.
type Registry struct {
	backends []Client
	byName   map[string]Client
	byPrefix map[string]Client
	refreshC chan string
	log      zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:   map[string]Client{},
		byPrefix: map[string]Client{},
		refreshC: make(chan string, 16),
		log:      xlog.WithComponent("registry"),
	}
}

// AddBackends registers the given clients. Names are unique
// case-insensitively and session prefixes must not collide, otherwise
// ResolveSessionID could route to the wrong instance; either duplicate is a
// startup configuration error.
func (r *Registry) AddBackends(clients ...Client) error {
	for _, c := range clients {
		key := fold.String(c.Name())
		if _, dup := r.byName[key]; dup {
			return fmt.Errorf("backend: duplicate backend name %q", c.Name())
		}
		prefix := ident.Prefix(c.ImplementationKey())
		if other, dup := r.byPrefix[prefix]; dup {
			return fmt.Errorf("backend: %q and %q share session prefix %q, implementation keys must be unique", c.Name(), other.Name(), prefix)
		}
		r.backends = append(r.backends, c)
		r.byName[key] = c
		r.byPrefix[prefix] = c
		r.log.Info().
			Str("event", "registry.add").
			Str("backend", c.Name()).
			Str("prefix", prefix).
			Msg("backend registered")
	}
	return nil
}

// ByName returns the backend registered under name, case-insensitively.
func (r *Registry) ByName(name string) (Client, error) {
	c, ok := r.byName[fold.String(name)]
	if !ok {
		return nil, &Error{Sentinel: ErrBackendNotFound, Backend: name, Op: "lookup"}
	}
	return c, nil
}

// All returns the registered backends in registration order.
func (r *Registry) All() []Client {
	out := make([]Client, len(r.backends))
	copy(out, r.backends)
	return out
}

// Count returns the number of registered backends.
func (r *Registry) Count() int {
	return len(r.backends)
}

// ComposeSessionID builds the composite session/tuner id for a backend-local
// id.
func (r *Registry) ComposeSessionID(c Client, localID string) string {
	return ident.ComposeSessionID(c.ImplementationKey(), localID)
}

// ResolveSessionID maps a composite session/tuner id back to the owning
// backend and the backend-local id. Fails with ErrInvalidIdentifier when the
// id is not composite and with ErrBackendNotFound when no registered backend
// matches the prefix.
func (r *Registry) ResolveSessionID(compositeID string) (Client, string, error) {
	prefix, localID, err := ident.SplitSessionID(compositeID)
	if err != nil {
		return nil, "", &Error{Sentinel: ErrInvalidIdentifier, Op: "resolve", Err: err}
	}
	c, ok := r.byPrefix[prefix]
	if !ok {
		return nil, "", &Error{Sentinel: ErrBackendNotFound, Op: "resolve", Err: fmt.Errorf("no backend with prefix %q", prefix)}
	}
	return c, localID, nil
}

// DataSourceChanged re-exposes a backend's change signal to whoever drives
// refreshes. The registry never schedules work itself; a full channel just
// means a refresh is already pending.
func (r *Registry) DataSourceChanged(backendName string) {
	select {
	case r.refreshC <- backendName:
	default:
	}
	r.log.Debug().
		Str("event", "registry.datasource_changed").
		Str("backend", backendName).
		Msg("data source changed")
}

// RefreshNeeded delivers the names of backends that reported changed data.
func (r *Registry) RefreshNeeded() <-chan string {
	return r.refreshC
}
