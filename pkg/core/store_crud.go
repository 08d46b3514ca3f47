package core

import (
	"fmt"
	"time"

	"github.com/traelm/memengine/pkg/events"
)

// MemoryInput is the caller-supplied shape for Store/Update; it mirrors
// Memory but omits the fields the store itself owns (timestamps, access
// stats, consolidation bookkeeping).
type MemoryInput struct {
	ID         string
	Type       MemoryType
	Content    string
	Summary    string
	Tags       []string
	Context    *Context
	Importance *float64
	ExpiresAt  *time.Time
	Metadata   map[string]any
}

// Store persists a new memory. Returns ErrDuplicateID if the id already
// exists, ErrInvalidInput if content is empty or the type is unrecognized,
// and ErrInvalidInput if ExpiresAt is not strictly after the creation
// time. When the store is at capacity it first runs an expiration sweep;
// if still full, the store rejects the write and emits CapacityWarning.
func (s *Store) Store(in MemoryInput) (*Memory, error) {
	if in.ID == "" || in.Content == "" {
		return nil, wrapError("Store", ErrInvalidInput)
	}
	if in.Type == "" {
		in.Type = Semantic
	}
	if !in.Type.valid() {
		return nil, wrapError("Store", fmt.Errorf("%w: unknown memory type %q", ErrInvalidInput, in.Type))
	}

	s.mu.Lock()

	if _, exists := s.memories[in.ID]; exists {
		s.mu.Unlock()
		return nil, wrapError("Store", ErrDuplicateID)
	}

	if len(s.memories) >= s.cfg.MaxSize {
		s.cleanupExpiredLocked()
		if len(s.memories) >= s.cfg.MaxSize {
			s.mu.Unlock()
			s.events.Emit(events.CapacityWarning, map[string]any{"maxSize": s.cfg.MaxSize})
			return nil, wrapError("Store", ErrCapacityExceeded)
		}
	}

	now := s.clock.Now()
	m := &Memory{
		ID:        in.ID,
		Type:      in.Type,
		Content:   in.Content,
		Summary:   in.Summary,
		Context:   in.Context,
		Metadata:  in.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.setTags(in.Tags)

	if in.ExpiresAt != nil {
		if !in.ExpiresAt.After(now) {
			s.mu.Unlock()
			return nil, wrapError("Store", fmt.Errorf("%w: expiresAt must be after creation time", ErrInvalidInput))
		}
		exp := *in.ExpiresAt
		m.ExpiresAt = &exp
	}

	if in.Importance != nil {
		m.Importance = clamp01(*in.Importance)
	} else {
		m.Importance = defaultImportance(m)
	}

	s.memories[m.ID] = m
	s.indexAdd(m)
	s.markDirty()
	stored, out := m.Clone(), m.Clone()
	s.mu.Unlock()

	// Handlers run synchronously and may call back into the store (the
	// linker calls GetRelated), so the event is emitted after unlocking.
	s.events.Emit(events.MemoryStored, stored)
	return out, nil
}

// MemoryPatch describes a partial update to a memory. Nil fields are left
// unchanged. Tags and Context are applied only when TagsSet/ContextSet is
// true (so either can be cleared); Metadata, when non-nil, replaces the
// existing value wholesale.
type MemoryPatch struct {
	Content    *string
	Summary    *string
	Tags       []string
	TagsSet    bool
	Context    *Context
	ContextSet bool
	Importance *float64
	ExpiresAt  *time.Time
	Metadata   map[string]any
}

// Update applies patch to the memory identified by id, reindexing type and
// context when they change and recomputing importance only when content,
// context, or tags were touched (per spec.md §4.2). Emits MemoryUpdated
// with the old and new snapshots. Returns ErrNotFound if id is absent.
func (s *Store) Update(id string, patch MemoryPatch) (*Memory, error) {
	s.mu.Lock()

	m, ok := s.memories[id]
	if !ok {
		s.mu.Unlock()
		return nil, wrapError("Update", ErrNotFound)
	}
	before := m.Clone()

	s.indexRemove(m)

	recompute := false
	if patch.Content != nil {
		m.Content = *patch.Content
		recompute = true
	}
	if patch.Summary != nil {
		m.Summary = *patch.Summary
	}
	if patch.TagsSet {
		m.setTags(patch.Tags)
		recompute = true
	}
	if patch.ContextSet {
		m.Context = patch.Context
		recompute = true
	}
	if patch.Metadata != nil {
		m.Metadata = patch.Metadata
	}
	if patch.ExpiresAt != nil {
		exp := *patch.ExpiresAt
		m.ExpiresAt = &exp
	}

	if patch.Importance != nil {
		m.Importance = clamp01(*patch.Importance)
	} else if recompute {
		m.Importance = defaultImportance(m)
	}

	m.UpdatedAt = s.clock.Now()
	s.indexAdd(m)
	s.markDirty()

	after := m.Clone()
	s.mu.Unlock()
	s.events.Emit(events.MemoryUpdated, map[string]*Memory{"old": before, "new": after})
	return after, nil
}

// Remove deletes the memory identified by id, detaching it from every
// index and emitting MemoryRemoved. Returns ErrNotFound if absent.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(id)
}

func (s *Store) removeLocked(id string) error {
	m, ok := s.memories[id]
	if !ok {
		return wrapError("Remove", ErrNotFound)
	}
	s.indexRemove(m)
	delete(s.memories, id)
	s.markDirty()
	s.events.Emit(events.MemoryRemoved, m.Clone())
	return nil
}

// Get retrieves a memory by id, bumping its LastAccessedAt/AccessCount.
// Returns ErrNotFound if absent.
func (s *Store) Get(id string) (*Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memories[id]
	if !ok {
		return nil, wrapError("Get", ErrNotFound)
	}
	s.touch(m)
	return m.Clone(), nil
}

// Peek retrieves a memory by id without bumping its access statistics.
func (s *Store) Peek(id string) (*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memories[id]
	if !ok {
		return nil, wrapError("Peek", ErrNotFound)
	}
	return m.Clone(), nil
}

func (s *Store) touch(m *Memory) {
	now := s.clock.Now()
	m.LastAccessedAt = &now
	m.AccessCount++
	s.markDirty()
}

func (s *Store) markDirty() {
	s.dirty = true
	s.scheduleDebouncedSave()
}
