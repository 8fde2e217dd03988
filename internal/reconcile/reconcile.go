// Package reconcile merges external dataset rows into the structural index
// entry list. Matching is confidence-ranked; ambiguity is resolved, logged
// and never fatal. Row input order is load-bearing: ties within a confidence
// level resolve to the first match, and consumed ids/tags gate later rows,
// so reordering the dataset changes outcomes.
package reconcile

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/openpano/tourdex/internal/domain"
	"github.com/openpano/tourdex/internal/filter"
)

// Match confidence levels. Higher wins.
const (
	confidenceName    = 1
	confidenceTag     = 2
	confidenceHostID  = 2
	confidenceExactID = 3
)

// Config controls how external rows are applied.
type Config struct {
	// UseAsPrimary makes matched rows authoritative: the row's name, subtitle
	// and tag overwrite the structural entry's. When false, matched rows are
	// discarded (present but not authoritative).
	UseAsPrimary bool
	// IncludeStandalone synthesizes entries for rows with no structural match.
	IncludeStandalone bool
}

// Engine applies external rows to a built entry list.
type Engine struct {
	cfg      Config
	pipeline *filter.Pipeline
	logger   *zap.Logger
}

// New creates a reconciliation engine.
func New(cfg Config, pipeline *filter.Pipeline, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, pipeline: pipeline, logger: logger}
}

type match struct {
	entryIdx   int
	confidence int
}

// Merge applies rows to entries in row input order and returns the merged
// list. The input slice is modified in place for enriched entries; standalone
// entries are appended after all structural content.
func (e *Engine) Merge(entries []domain.IndexEntry, rows []domain.ExternalRow) []domain.IndexEntry {
	consumedIDs := map[string]bool{}
	consumedTags := map[string]bool{}
	claimed := map[int]bool{}

	seen := map[string]bool{}
	nextSeq := 0
	for i := range entries {
		if key := entries[i].Key(); key != "" {
			seen[key] = true
		}
		if entries[i].SequenceIndex >= nextSeq {
			nextSeq = entries[i].SequenceIndex + 1
		}
	}

	for i := range rows {
		row := rows[i]
		if row.IsEmpty() {
			continue
		}
		if (row.ID != "" && consumedIDs[strings.ToLower(row.ID)]) ||
			(row.Tag != "" && consumedTags[strings.ToLower(row.Tag)]) {
			e.logger.Debug("external row skipped, id or tag already consumed",
				zap.String("id", row.ID), zap.String("tag", row.Tag))
			continue
		}

		matches := findMatches(entries, claimed, row)

		if len(matches) == 0 {
			if !e.cfg.IncludeStandalone {
				continue
			}
			if standalone, ok := e.synthesize(row, nextSeq, seen); ok {
				entries = append(entries, standalone)
				nextSeq++
				e.consume(consumedIDs, consumedTags, row)
			}
			continue
		}

		if len(matches) > 1 {
			e.logger.Warn("ambiguous external row, highest confidence wins",
				zap.String("id", row.ID), zap.String("tag", row.Tag),
				zap.Int("candidates", len(matches)))
		}
		// Stable sort keeps entry order within a confidence level, so the
		// first structural match wins ties.
		sort.SliceStable(matches, func(a, b int) bool {
			return matches[a].confidence > matches[b].confidence
		})
		winner := matches[0].entryIdx

		if !e.cfg.UseAsPrimary {
			continue
		}
		if e.enrich(&entries[winner], row) {
			claimed[winner] = true
			e.consume(consumedIDs, consumedTags, row)
		}
	}

	return entries
}

// findMatches evaluates the four match rules against every unclaimed entry.
// Each entry contributes at most once, at its highest confidence.
func findMatches(entries []domain.IndexEntry, claimed map[int]bool, row domain.ExternalRow) []match {
	var out []match
	for i := range entries {
		if claimed[i] || entries[i].IsStandalone {
			continue
		}
		if c := matchConfidence(&entries[i], row); c > 0 {
			out = append(out, match{entryIdx: i, confidence: c})
		}
	}
	return out
}

func matchConfidence(entry *domain.IndexEntry, row domain.ExternalRow) int {
	if row.ID != "" {
		if strings.EqualFold(entry.Identifier, row.ID) {
			return confidenceExactID
		}
		if entry.HostID != "" && strings.EqualFold(entry.HostID, row.ID) {
			return confidenceHostID
		}
		if entry.IsContainer && strings.EqualFold(entry.Label, row.ID) {
			return confidenceHostID
		}
	}
	if row.Tag != "" && tagContains(entry.Tags, row.Tag) {
		return confidenceTag
	}
	if row.Name != "" {
		if strings.EqualFold(entry.Label, row.Name) ||
			strings.EqualFold(entry.OriginalLabel, row.Name) {
			return confidenceName
		}
	}
	return 0
}

// tagContains matches a row tag against entry tags by case-insensitive
// containment, so a dataset tag "room" matches an entry tagged "room-12".
func tagContains(tags []string, rowTag string) bool {
	needle := strings.ToLower(rowTag)
	for _, t := range tags {
		if strings.Contains(strings.ToLower(t), needle) {
			return true
		}
	}
	return false
}

// enrich overwrites the entry's presentation fields from the row. The row's
// derived label/subtitle/tags pass through the filter pipeline exactly as
// structural entries do; a rejected row contributes nothing.
func (e *Engine) enrich(entry *domain.IndexEntry, row domain.ExternalRow) bool {
	lbl, tags := rowFacts(entry.Label, entry.Tags, row)
	if e.pipeline != nil && !e.pipeline.Allow(entry.Kind, lbl, tags, row.Description) {
		e.logger.Debug("external row rejected by filter", zap.String("id", row.ID))
		return false
	}

	rowCopy := row
	entry.ExternalRow = &rowCopy
	if row.Name != "" {
		entry.Label = row.Name
	}
	if row.Description != "" {
		entry.Subtitle = row.Description
	}
	if row.Tag != "" && !entry.HasTag(row.Tag) {
		entry.Tags = append(entry.Tags, row.Tag)
	}
	return true
}

// synthesize builds a standalone entry for a row with no structural match.
// Standalone entries carry no host reference and sort after all discovered
// content.
func (e *Engine) synthesize(row domain.ExternalRow, seq int, seen map[string]bool) (domain.IndexEntry, bool) {
	kind, _ := domain.ParseKind(row.ElementType)

	lbl := row.Name
	if lbl == "" {
		lbl = row.Tag
	}
	tags := []string(nil)
	if row.Tag != "" {
		tags = []string{row.Tag}
	}
	if e.pipeline != nil && !e.pipeline.Allow(kind, lbl, tags, row.Description) {
		e.logger.Debug("standalone row rejected by filter", zap.String("id", row.ID))
		return domain.IndexEntry{}, false
	}

	identifier := row.ID
	if identifier == "" {
		identifier = row.Tag
	}
	entry := domain.IndexEntry{
		Kind:                kind,
		Source:              domain.SourceExternal,
		Label:               lbl,
		OriginalLabel:       row.Name,
		Subtitle:            row.Description,
		Tags:                tags,
		Identifier:          identifier,
		SequenceIndex:       seq,
		ParentSequenceIndex: -1,
		IsStandalone:        true,
	}
	rowCopy := row
	entry.ExternalRow = &rowCopy

	if key := entry.Key(); key != "" {
		if seen[key] {
			e.logger.Debug("duplicate standalone entry skipped", zap.String("key", key))
			return domain.IndexEntry{}, false
		}
		seen[key] = true
	}
	return entry, true
}

func (e *Engine) consume(ids, tags map[string]bool, row domain.ExternalRow) {
	if row.ID != "" {
		ids[strings.ToLower(row.ID)] = true
	}
	if row.Tag != "" {
		tags[strings.ToLower(row.Tag)] = true
	}
}

// rowFacts derives the post-enrichment label and tags for filter evaluation
// without mutating the entry.
func rowFacts(entryLabel string, entryTags []string, row domain.ExternalRow) (string, []string) {
	lbl := entryLabel
	if row.Name != "" {
		lbl = row.Name
	}
	tags := entryTags
	if row.Tag != "" {
		tags = append(append([]string(nil), entryTags...), row.Tag)
	}
	return lbl, tags
}
