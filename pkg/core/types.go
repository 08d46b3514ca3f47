// Package core implements the memory store: the canonical owner of Memory
// records, their lifecycle, their three lookup indices, and the similarity
// machinery other components (pkg/linker, pkg/retrieval) build on.
//
// It is grounded in the teacher's pkg/core/store*.go family, generalized
// from a SQLite-backed vector store to a pure in-memory record store with
// an optional single-file JSON snapshot (spec.md explicitly rules out any
// durable index beyond that, which is why modernc.org/sqlite — the
// teacher's storage engine — is not used here; see DESIGN.md).
package core

import "time"

// MemoryType is the epistemic kind of a memory, per spec.md §3.
type MemoryType string

const (
	ShortTerm   MemoryType = "short_term"
	LongTerm    MemoryType = "long_term"
	Working     MemoryType = "working"
	Episodic    MemoryType = "episodic"
	Semantic    MemoryType = "semantic"
	Procedural  MemoryType = "procedural"
	Consolidated MemoryType = "consolidated"
)

// valid reports whether t is one of the seven recognized kinds.
func (t MemoryType) valid() bool {
	switch t {
	case ShortTerm, LongTerm, Working, Episodic, Semantic, Procedural, Consolidated:
		return true
	}
	return false
}

// Context carries a memory's provenance. The four known keys get their own
// fields per Design Note §9 (dynamic context maps split into known keys +
// an opaque extras bag); anything else goes in Extras.
type Context struct {
	UserID    string         `json:"userId,omitempty"`
	SessionID string         `json:"sessionId,omitempty"`
	Domain    string         `json:"domain,omitempty"`
	Task      string         `json:"task,omitempty"`
	Extras    map[string]any `json:"extras,omitempty"`
}

// IsZero reports whether the context carries no information at all.
func (c *Context) IsZero() bool {
	return c == nil || (c.UserID == "" && c.SessionID == "" && c.Domain == "" && c.Task == "" && len(c.Extras) == 0)
}

// entries returns every key/value pair in the context, known fields first,
// for Jaccard-style comparisons and indexing.
func (c *Context) entries() map[string]any {
	out := make(map[string]any)
	if c == nil {
		return out
	}
	if c.UserID != "" {
		out["userId"] = c.UserID
	}
	if c.SessionID != "" {
		out["sessionId"] = c.SessionID
	}
	if c.Domain != "" {
		out["domain"] = c.Domain
	}
	if c.Task != "" {
		out["task"] = c.Task
	}
	for k, v := range c.Extras {
		out[k] = v
	}
	return out
}

// Memory is an opaque piece of recorded information, per spec.md §3.
type Memory struct {
	ID      string     `json:"id"`
	Type    MemoryType `json:"type"`
	Content string     `json:"content"`
	Summary string     `json:"summary,omitempty"`

	Tags    map[string]struct{} `json:"-"`
	TagList []string            `json:"tags,omitempty"`

	Context *Context `json:"context,omitempty"`

	Importance float64        `json:"importance"`
	ExpiresAt  *time.Time     `json:"expiresAt,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`

	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	LastAccessedAt *time.Time `json:"lastAccessedAt,omitempty"`
	AccessCount    int        `json:"accessCount"`

	ConsolidatedFrom []string `json:"consolidatedFrom,omitempty"`
	ConsolidatedInto string   `json:"consolidatedInto,omitempty"`
	Consolidated     bool     `json:"consolidated,omitempty"`
}

// Clone returns a deep-enough copy safe for callers to mutate without
// corrupting the store's internal record. Maps and slices are copied;
// the Context pointer is copied into a new Context.
func (m *Memory) Clone() *Memory {
	if m == nil {
		return nil
	}
	clone := *m
	clone.Tags = make(map[string]struct{}, len(m.Tags))
	for t := range m.Tags {
		clone.Tags[t] = struct{}{}
	}
	clone.TagList = append([]string(nil), m.TagList...)
	if m.Context != nil {
		ctx := *m.Context
		if m.Context.Extras != nil {
			ctx.Extras = make(map[string]any, len(m.Context.Extras))
			for k, v := range m.Context.Extras {
				ctx.Extras[k] = v
			}
		}
		clone.Context = &ctx
	}
	if m.Metadata != nil {
		clone.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			clone.Metadata[k] = v
		}
	}
	clone.ConsolidatedFrom = append([]string(nil), m.ConsolidatedFrom...)
	return &clone
}

// syncTagList keeps TagList (serialization-friendly, deterministic order
// not required) in lockstep with the Tags set.
func (m *Memory) syncTagList() {
	m.TagList = m.TagList[:0]
	for t := range m.Tags {
		m.TagList = append(m.TagList, t)
	}
}

// setTags replaces the memory's tag set from a plain slice.
func (m *Memory) setTags(tags []string) {
	m.Tags = make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		m.Tags[t] = struct{}{}
	}
	m.syncTagList()
}
