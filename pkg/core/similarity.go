package core

import (
	"fmt"
	"strings"
	"unicode"
)

// maxKeywords bounds keyword extraction, per spec.md §4.2.
const maxKeywords = 50

// isCJK reports whether r falls in one of the common CJK unicode blocks.
// Grounded in the corpus's own CJK-aware tokenizers (liliang-cn/sqvect
// ships pinyin/Chinese-aware search helpers elsewhere in the pack); the
// exact block list mirrors the common Han/Hiragana/Katakana/Hangul ranges.
func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}

// extractKeywords implements spec.md §4.2's tokenizer: lowercase, replace
// non-[CJK/ASCII-alphanumeric/space] with space, split each CJK character
// into its own token, split on whitespace, drop empties, cap at
// maxKeywords. This is the single tokenizer used by both the store's
// similarity scoring and the graph linker's linkage scoring — spec.md §9
// notes the source disagreed between the two call sites; this
// reimplementation picks one and uses it everywhere (see DESIGN.md).
func extractKeywords(text string) []string {
	lower := strings.ToLower(text)
	var b strings.Builder
	b.Grow(len(lower) * 2)
	for _, r := range lower {
		switch {
		case isCJK(r):
			b.WriteRune(' ')
			b.WriteRune(r)
			b.WriteRune(' ')
		case r <= unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), unicode.IsSpace(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	fields := strings.Fields(b.String())
	if len(fields) > maxKeywords {
		fields = fields[:maxKeywords]
	}
	return fields
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}

// jaccard computes the Jaccard index of two string sets. Two empty sets
// are defined as perfectly similar (1.0); one empty and one non-empty set
// has zero similarity.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 1.0
	}
	return float64(intersection) / float64(union)
}

func lowerSet(tags map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(tags))
	for t := range tags {
		out[strings.ToLower(t)] = struct{}{}
	}
	return out
}

// contextJaccard computes the Jaccard index over identical key/value pairs
// (both key and stringified value must match) between two contexts.
func contextJaccard(a, b *Context) float64 {
	ae, be := a.entries(), b.entries()
	if len(ae) == 0 && len(be) == 0 {
		return 1.0
	}
	if len(ae) == 0 || len(be) == 0 {
		return 0.0
	}
	asTokens := func(m map[string]any) map[string]struct{} {
		out := make(map[string]struct{}, len(m))
		for k, v := range m {
			out[fmt.Sprintf("%s=%v", k, v)] = struct{}{}
		}
		return out
	}
	return jaccard(asTokens(ae), asTokens(be))
}

// Similarity computes the pairwise similarity between two memories per
// spec.md §4.2: content (Jaccard over keywords, weight 0.4), tags
// (Jaccard over lowercased tags, weight 0.3), type equality (weight 0.2),
// and context (Jaccard over identical key/value pairs, weight 0.1).
// A factor is skipped, and the remaining weights renormalized, whenever
// either side lacks the relevant input: empty content, no tags, or a
// zero-value context. Type equality always counts.
func Similarity(a, b *Memory) float64 {
	if a == nil || b == nil {
		return 0
	}
	if a.ID == b.ID {
		return 1
	}

	type factor struct {
		weight float64
		score  float64
		active bool
	}

	factors := []factor{
		{weight: 0.4, active: a.Content != "" && b.Content != "", score: jaccard(toSet(extractKeywords(a.Content)), toSet(extractKeywords(b.Content)))},
		{weight: 0.3, active: len(a.Tags) > 0 && len(b.Tags) > 0, score: jaccard(lowerSet(a.Tags), lowerSet(b.Tags))},
		{weight: 0.2, active: true, score: boolScore(a.Type == b.Type)},
		{weight: 0.1, active: len(a.Context.entries()) > 0 && len(b.Context.entries()) > 0, score: contextJaccard(a.Context, b.Context)},
	}

	var totalWeight, weighted float64
	for _, f := range factors {
		if !f.active {
			continue
		}
		totalWeight += f.weight
		weighted += f.weight * f.score
	}
	if totalWeight == 0 {
		return 0
	}
	return weighted / totalWeight
}

func boolScore(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// TextSimilarity scores free text against a memory: 0.7 content overlap +
// 0.3 tag Jaccard (tags are matched against keywords extracted from the
// query text), per spec.md §4.2's findSimilar free-text overload.
func TextSimilarity(query string, m *Memory) float64 {
	if m == nil {
		return 0
	}
	qKeywords := toSet(extractKeywords(query))
	contentScore := jaccard(qKeywords, toSet(extractKeywords(m.Content)))
	tagScore := jaccard(qKeywords, lowerSet(m.Tags))
	return 0.7*contentScore + 0.3*tagScore
}
