// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrNotFound reports a lookup for an id the store does not hold.
var ErrNotFound = errors.New("catalog: item not found")

// IsNotFound reports whether err means the item does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Store is the persistence port for reconciled entities. Implementations
// must be safe for concurrent use. Deleting an entity removes metadata only;
// stores never touch media files.
type Store interface {
	PutChannel(ctx context.Context, c *Channel) error
	Channel(ctx context.Context, id string) (*Channel, error)
	Channels(ctx context.Context) ([]*Channel, error)

	PutProgram(ctx context.Context, p *Program) error
	Program(ctx context.Context, id string) (*Program, error)
	Programs(ctx context.Context, channelID string) ([]*Program, error)

	PutRecording(ctx context.Context, r *Recording) error
	Recording(ctx context.Context, id string) (*Recording, error)
	Recordings(ctx context.Context) ([]*Recording, error)

	// IDs lists every stored id of the given kind.
	IDs(ctx context.Context, kind Kind) ([]string, error)
	// Delete removes one item. Deleting an absent id is not an error.
	Delete(ctx context.Context, kind Kind, id string) error

	Close() error
}

// MemoryStore is the in-process Store used by tests and by deployments that
// do not need the catalog to survive restarts.
type MemoryStore struct {
	mu         sync.RWMutex
	channels   map[string]*Channel
	programs   map[string]*Program
	recordings map[string]*Recording
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		channels:   map[string]*Channel{},
		programs:   map[string]*Program{},
		recordings: map[string]*Recording{},
	}
}

func (s *MemoryStore) PutChannel(_ context.Context, c *Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[c.ID] = cloneChannel(c)
	return nil
}

func (s *MemoryStore) Channel(_ context.Context, id string) (*Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.channels[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneChannel(c), nil
}

func (s *MemoryStore) Channels(_ context.Context) ([]*Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Channel, 0, len(s.channels))
	for _, c := range s.channels {
		out = append(out, cloneChannel(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (s *MemoryStore) PutProgram(_ context.Context, p *Program) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.programs[p.ID] = cloneProgram(p)
	return nil
}

func (s *MemoryStore) Program(_ context.Context, id string) (*Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.programs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneProgram(p), nil
}

func (s *MemoryStore) Programs(_ context.Context, channelID string) ([]*Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Program
	for _, p := range s.programs {
		if channelID == "" || p.ChannelID == channelID {
			out = append(out, cloneProgram(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *MemoryStore) PutRecording(_ context.Context, r *Recording) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordings[r.ID] = cloneRecording(r)
	return nil
}

func (s *MemoryStore) Recording(_ context.Context, id string) (*Recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.recordings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecording(r), nil
}

func (s *MemoryStore) Recordings(_ context.Context) ([]*Recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Recording, 0, len(s.recordings))
	for _, r := range s.recordings {
		out = append(out, cloneRecording(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *MemoryStore) IDs(_ context.Context, kind Kind) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	switch kind {
	case KindChannel:
		for id := range s.channels {
			out = append(out, id)
		}
	case KindProgram:
		for id := range s.programs {
			out = append(out, id)
		}
	case KindVideoRecording, KindAudioRecording:
		for id, r := range s.recordings {
			if r.Kind == kind {
				out = append(out, id)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, kind Kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case KindChannel:
		delete(s.channels, id)
	case KindProgram:
		delete(s.programs, id)
	case KindVideoRecording, KindAudioRecording:
		if r, ok := s.recordings[id]; ok && r.Kind == kind {
			delete(s.recordings, id)
		}
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }
