package core

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/traelm/memengine/pkg/events"
)

// SearchQuery composes the filters described in spec.md §4.2's search
// operation.
type SearchQuery struct {
	Type          *MemoryType
	TagsAny       []string
	Context       *Context // exact equality on every key present
	TextContains  string   // substring match over content/summary/tags
	MinImportance float64
	CreatedAfter  *time.Time
	CreatedBefore *time.Time

	SortBy   string // "importance", "createdAt", "updatedAt"; "" leaves the order unspecified
	SortDesc bool
	Limit    int
}

// Search returns memories matching query, sorted per SortBy/SortDesc and
// truncated to Limit (0 means unlimited). Every returned memory has its
// access stats bumped, matching the store's Get semantics.
func (s *Store) Search(q SearchQuery) ([]*Memory, error) {
	if q.Limit < 0 {
		return nil, wrapError("Search", ErrInvalidQuery)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tagsAny := lowerSlice(q.TagsAny)
	textContains := strings.ToLower(q.TextContains)

	matches := make([]*Memory, 0)
	for _, m := range s.memories {
		if !matchesQuery(m, q, tagsAny, textContains) {
			continue
		}
		matches = append(matches, m)
	}

	sortMemories(matches, q.SortBy, q.SortDesc)

	if q.Limit > 0 && len(matches) > q.Limit {
		matches = matches[:q.Limit]
	}

	out := make([]*Memory, len(matches))
	for i, m := range matches {
		s.touch(m)
		out[i] = m.Clone()
	}
	return out, nil
}

func matchesQuery(m *Memory, q SearchQuery, tagsAny map[string]struct{}, textContains string) bool {
	if q.Type != nil && m.Type != *q.Type {
		return false
	}
	if m.Importance < q.MinImportance {
		return false
	}
	if q.CreatedAfter != nil && m.CreatedAt.Before(*q.CreatedAfter) {
		return false
	}
	if q.CreatedBefore != nil && m.CreatedAt.After(*q.CreatedBefore) {
		return false
	}
	if len(tagsAny) > 0 {
		found := false
		for t := range lowerSet(m.Tags) {
			if _, ok := tagsAny[t]; ok {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.Context != nil {
		for k, v := range q.Context.entries() {
			mv, ok := m.Context.entries()[k]
			if !ok || mv != v {
				return false
			}
		}
	}
	if textContains != "" {
		haystack := strings.ToLower(m.Content + " " + m.Summary + " " + strings.Join(m.TagList, " "))
		if !strings.Contains(haystack, textContains) {
			return false
		}
	}
	return true
}

func lowerSlice(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, it := range items {
		out[strings.ToLower(it)] = struct{}{}
	}
	return out
}

func sortMemories(memories []*Memory, sortBy string, desc bool) {
	less := func(i, j int) bool {
		a, b := memories[i], memories[j]
		var lt bool
		switch sortBy {
		case "importance":
			lt = a.Importance < b.Importance
		case "updatedAt":
			lt = a.UpdatedAt.Before(b.UpdatedAt)
		case "createdAt":
			lt = a.CreatedAt.Before(b.CreatedAt)
		default:
			return false // preserve insertion/map order otherwise
		}
		if desc {
			return !lt && a != b
		}
		return lt
	}
	if sortBy == "" {
		return
	}
	sort.SliceStable(memories, less)
}

// RelatedMemory pairs a memory with its similarity score relative to the
// reference used by GetRelated.
type RelatedMemory struct {
	Memory     *Memory
	Similarity float64
}

// GetRelated computes pairwise similarity between the memory identified by
// id and every other memory, returning those scoring at least minScore,
// sorted descending, truncated to limit (0 means unlimited).
func (s *Store) GetRelated(id string, limit int, minScore float64) ([]RelatedMemory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, ok := s.memories[id]
	if !ok {
		return nil, wrapError("GetRelated", ErrNotFound)
	}

	out := make([]RelatedMemory, 0)
	for otherID, m := range s.memories {
		if otherID == id {
			continue
		}
		score := Similarity(ref, m)
		if score >= minScore {
			out = append(out, RelatedMemory{Memory: m.Clone(), Similarity: score})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].Memory.ID < out[j].Memory.ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FindSimilarText ranks every memory against free-text query using
// TextSimilarity, returning the top limit results descending.
func (s *Store) FindSimilarText(query string, limit int) []RelatedMemory {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RelatedMemory, 0, len(s.memories))
	for _, m := range s.memories {
		out = append(out, RelatedMemory{Memory: m.Clone(), Similarity: TextSimilarity(query, m)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].Memory.ID < out[j].Memory.ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// FindSimilarTo is the reference-memory overload of findSimilar: it is
// GetRelated with minScore 0, provided as a distinctly named entry point
// per Design Note §9 (no ad-hoc overload resolution).
func (s *Store) FindSimilarTo(id string, limit int) ([]RelatedMemory, error) {
	return s.GetRelated(id, limit, 0)
}

// MergePatch overrides fields of the memory produced by Merge.
type MergePatch struct {
	Content    *string
	Summary    *string
	Importance *float64
}

// Merge combines two or more existing memories into a new one with id
// prefix "merged_", per spec.md §4.2. Content is patch.Content if set,
// else the originals' content joined with "\n\n". Tags are unioned;
// context is merged first-writer-wins per key (string-slice-valued extras
// are unioned instead of overwritten); importance is the max of the
// originals; createdAt is the min of the originals. The originals are
// deleted and MemoriesMerged is emitted.
func (s *Store) Merge(ids []string, patch MergePatch) (*Memory, error) {
	if len(ids) < 2 {
		return nil, wrapError("Merge", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	originals := make([]*Memory, 0, len(ids))
	for _, id := range ids {
		m, ok := s.memories[id]
		if !ok {
			return nil, wrapError("Merge", ErrNotFound)
		}
		originals = append(originals, m)
	}

	merged := &Memory{
		ID:       "merged_" + uuid.New().String(),
		Type:     originals[0].Type,
		Metadata: map[string]any{},
	}

	tags := make(map[string]struct{})
	contents := make([]string, 0, len(originals))
	mergedCtx := &Context{Extras: map[string]any{}}
	maxImportance := 0.0
	minCreated := originals[0].CreatedAt

	for _, o := range originals {
		contents = append(contents, o.Content)
		for t := range o.Tags {
			tags[t] = struct{}{}
		}
		mergeContextFirstWriterWins(mergedCtx, o.Context)
		if o.Importance > maxImportance {
			maxImportance = o.Importance
		}
		if o.CreatedAt.Before(minCreated) {
			minCreated = o.CreatedAt
		}
	}

	if patch.Content != nil {
		merged.Content = *patch.Content
	} else {
		merged.Content = strings.Join(contents, "\n\n")
	}
	if patch.Summary != nil {
		merged.Summary = *patch.Summary
	}
	if patch.Importance != nil {
		merged.Importance = clamp01(*patch.Importance)
	} else {
		merged.Importance = maxImportance
	}

	tagList := make([]string, 0, len(tags))
	for t := range tags {
		tagList = append(tagList, t)
	}
	merged.setTags(tagList)
	merged.Context = mergedCtx
	merged.ConsolidatedFrom = append([]string(nil), ids...)
	merged.CreatedAt = minCreated
	merged.UpdatedAt = s.clock.Now()

	s.memories[merged.ID] = merged
	s.indexAdd(merged)

	for _, id := range ids {
		_ = s.removeLocked(id)
	}
	s.markDirty()

	s.events.Emit(events.MemoriesMerged, map[string]any{"originalIds": ids, "mergedId": merged.ID})
	return merged.Clone(), nil
}

// mergeContextFirstWriterWins folds src into dst: a key already present in
// dst is left alone unless both sides hold a []string, in which case the
// two slices are unioned.
func mergeContextFirstWriterWins(dst *Context, src *Context) {
	if src == nil {
		return
	}
	if src.UserID != "" && dst.UserID == "" {
		dst.UserID = src.UserID
	}
	if src.SessionID != "" && dst.SessionID == "" {
		dst.SessionID = src.SessionID
	}
	if src.Domain != "" && dst.Domain == "" {
		dst.Domain = src.Domain
	}
	if src.Task != "" && dst.Task == "" {
		dst.Task = src.Task
	}
	for k, v := range src.Extras {
		existing, ok := dst.Extras[k]
		if !ok {
			dst.Extras[k] = v
			continue
		}
		existingList, eok := existing.([]string)
		newList, nok := v.([]string)
		if eok && nok {
			dst.Extras[k] = unionStrings(existingList, newList)
		}
		// else: first-writer-wins, leave existing value untouched.
	}
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// CleanupExpired removes every memory whose ExpiresAt has passed, emits
// MemoriesExpired with the removed count, and returns that count.
func (s *Store) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanupExpiredLocked()
}

func (s *Store) cleanupExpiredLocked() int {
	now := s.clock.Now()
	var toRemove []string
	for id, m := range s.memories {
		if m.ExpiresAt != nil && !m.ExpiresAt.After(now) {
			toRemove = append(toRemove, id)
		}
	}
	for _, id := range toRemove {
		_ = s.removeLocked(id)
	}
	if len(toRemove) > 0 {
		s.events.Emit(events.MemoriesExpired, map[string]any{"count": len(toRemove), "ids": toRemove})
	}
	return len(toRemove)
}

// CleanupLowImportance removes up to maxToRemove memories whose importance
// is below threshold, lowest-importance first, emitting
// LowImportanceMemoriesRemoved with the removed count.
func (s *Store) CleanupLowImportance(threshold float64, maxToRemove int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make([]*Memory, 0)
	for _, m := range s.memories {
		if m.Importance < threshold {
			candidates = append(candidates, m)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Importance < candidates[j].Importance })

	if maxToRemove > 0 && len(candidates) > maxToRemove {
		candidates = candidates[:maxToRemove]
	}
	for _, m := range candidates {
		_ = s.removeLocked(m.ID)
	}
	if len(candidates) > 0 {
		ids := make([]string, len(candidates))
		for i, m := range candidates {
			ids[i] = m.ID
		}
		s.events.Emit(events.LowImportanceMemoriesRemoved, map[string]any{"count": len(candidates), "ids": ids})
	}
	return len(candidates)
}
