package store

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/maastricht-university/harmon/types"
)

type Memory struct {
	mu       sync.RWMutex
	segments map[string][]types.Segment
	notes    map[string][]types.Note
	discs    map[string]types.Discussion
}

func NewMemory() *Memory {
	return &Memory{
		segments: make(map[string][]types.Segment),
		notes:    make(map[string][]types.Note),
		discs:    make(map[string]types.Discussion),
	}
}

func (m *Memory) AppendNote(_ context.Context, conversationID string, note types.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.register(types.Discussion{ID: conversationID, Created: note.Timestamp})
	m.notes[conversationID] = append(m.notes[conversationID], note)
	return nil
}

func (m *Memory) AppendTranscriptSegment(_ context.Context, conversationID string, seg types.Segment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.register(types.Discussion{ID: conversationID, Created: seg.Timestamp})
	m.segments[conversationID] = append(m.segments[conversationID], seg)
	return nil
}

func (m *Memory) RecentSegments(_ context.Context, conversationID string, limit int) ([]types.Segment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	segs := m.segments[conversationID]
	if limit > 0 && len(segs) > limit {
		segs = segs[len(segs)-limit:]
	}
	return append([]types.Segment(nil), segs...), nil
}

func (m *Memory) Notes(_ context.Context, conversationID string) ([]types.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]types.Note(nil), m.notes[conversationID]...), nil
}

func (m *Memory) CreateDiscussion(_ context.Context, d types.Discussion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.register(d)
	return nil
}

// register must be called with mu held.
func (m *Memory) register(d types.Discussion) {
	if _, ok := m.discs[d.ID]; ok {
		return
	}
	m.discs[d.ID] = withCreated(d)
}

func (m *Memory) Discussions(_ context.Context) ([]types.Discussion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := slices.Collect(maps.Values(m.discs))
	sortDiscussions(out)
	return out, nil
}

func (m *Memory) Close() error { return nil }

func withCreated(d types.Discussion) types.Discussion {
	if d.Created.IsZero() {
		d.Created = time.Now().UTC()
	}
	return d
}

func sortDiscussions(ds []types.Discussion) {
	slices.SortFunc(ds, func(a, b types.Discussion) int {
		if c := a.Created.Compare(b.Created); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
