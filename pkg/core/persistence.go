package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/traelm/memengine/pkg/events"
)

// snapshotFile is the on-disk shape of the single JSON snapshot described
// in spec.md §6: a flat object holding the memory list, tolerant of being
// handed a bare array on read (older snapshots, or hand-edited files).
type snapshotFile struct {
	Memories []*Memory `json:"memories"`
}

func (s *Store) snapshotPath() string {
	return filepath.Join(s.cfg.Persistence.Dir, s.cfg.Persistence.FileName)
}

// scheduleDebouncedSave arms (or re-arms) the auto-save timer when
// persistence and auto-save are both enabled. Call with s.mu held.
func (s *Store) scheduleDebouncedSave() {
	if s.closed || !s.cfg.Persistence.Enabled || !s.cfg.Persistence.AutoSave {
		return
	}
	if s.persistTimer != nil {
		s.persistTimer.Stop()
	}
	interval := s.cfg.Persistence.AutoSaveInterval
	if interval <= 0 {
		interval = DefaultConfig().Persistence.AutoSaveInterval
	}
	s.persistTimer = s.clock.AfterFunc(interval, func() {
		if err := s.SaveNow(); err != nil {
			s.logger.Error("auto-save failed", "error", err)
		}
	})
}

// SaveNow writes the current state to the configured snapshot file
// immediately, regardless of the debounce timer. Per spec.md §7, a failed
// save is reported to the caller rather than silently swallowed.
func (s *Store) SaveNow() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if !s.cfg.Persistence.Enabled {
		return nil
	}

	snap := snapshotFile{Memories: make([]*Memory, 0, len(s.memories))}
	for _, m := range s.memories {
		snap.Memories = append(snap.Memories, m)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return wrapError("SaveNow", fmt.Errorf("%w: %v", ErrPersistenceFailure, err))
	}

	dir := s.cfg.Persistence.Dir
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return wrapError("SaveNow", fmt.Errorf("%w: %v", ErrPersistenceFailure, err))
		}
	}

	path := s.snapshotPath()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return wrapError("SaveNow", fmt.Errorf("%w: %v", ErrPersistenceFailure, err))
	}
	if err := os.Rename(tmp, path); err != nil {
		return wrapError("SaveNow", fmt.Errorf("%w: %v", ErrPersistenceFailure, err))
	}

	s.dirty = false
	s.events.Emit(events.MemoriesPersisted, map[string]any{"count": len(snap.Memories), "path": path})
	return nil
}

// LoadNow reads the configured snapshot file and replaces the store's
// in-memory state and indices with its contents. A missing file is not an
// error: the store simply starts empty. Tolerates a bare JSON array at the
// root in addition to the canonical {"memories": [...]} object.
func (s *Store) LoadNow() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cfg.Persistence.Enabled {
		return nil
	}

	path := s.snapshotPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return wrapError("LoadNow", fmt.Errorf("%w: %v", ErrPersistenceFailure, err))
	}

	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		var bare []*Memory
		if err2 := json.Unmarshal(data, &bare); err2 != nil {
			return wrapError("LoadNow", fmt.Errorf("%w: %v", ErrPersistenceFailure, err))
		}
		snap.Memories = bare
	}

	s.memories = make(map[string]*Memory, len(snap.Memories))
	s.byType = make(map[MemoryType]map[string]struct{})
	s.byContextKey = make(map[string]map[string]struct{})
	s.byKeyword = make(map[string]map[string]struct{})

	for _, m := range snap.Memories {
		if m == nil || m.ID == "" {
			continue
		}
		m.setTags(m.TagList)
		if m.CreatedAt.IsZero() {
			m.CreatedAt = s.clock.Now()
		}
		if m.UpdatedAt.IsZero() {
			m.UpdatedAt = m.CreatedAt
		}
		s.memories[m.ID] = m
		s.indexAdd(m)
	}

	s.dirty = false
	s.events.Emit(events.MemoriesLoaded, map[string]any{"count": len(s.memories), "path": path})
	return nil
}

// Destroy stops the auto-save timer, optionally flushes a final snapshot
// (per PersistenceConfig.SaveOnDestroy), and releases the store's indices.
// Safe to call more than once.
func (s *Store) Destroy() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.persistTimer != nil {
		s.persistTimer.Stop()
		s.persistTimer = nil
	}
	shouldSave := s.dirty && s.cfg.Persistence.Enabled && s.cfg.Persistence.SaveOnDestroy
	s.mu.Unlock()

	if shouldSave {
		if err := s.SaveNow(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.memories = make(map[string]*Memory)
	s.byType = make(map[MemoryType]map[string]struct{})
	s.byContextKey = make(map[string]map[string]struct{})
	s.byKeyword = make(map[string]map[string]struct{})
	s.mu.Unlock()
	return nil
}
