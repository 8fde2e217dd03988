// Package index assembles the searchable structure from a reconciled entry
// list and answers queries against it. The index is immutable once
// assembled; rebuilds produce a fresh Index that the session swaps in
// atomically.
package index

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"go.uber.org/zap"

	"github.com/openpano/tourdex/internal/domain"
)

// Field names inside the search index.
const (
	fieldLabel       = "label"
	fieldLabelExact  = "label_exact"
	fieldAlias       = "alias"
	fieldSubtitle    = "subtitle"
	fieldTags        = "tags"
	fieldParentLabel = "parent_label"
)

// Wildcard is the browse-all query term.
const Wildcard = "*"

// ExactPrefix marks an exact-label query, bypassing fuzzy scoring.
const ExactPrefix = "="

// Weights are the per-field match weights. The alias field mirrors label's
// weight.
type Weights struct {
	Label       float64 `yaml:"label"`
	Subtitle    float64 `yaml:"subtitle"`
	Tags        float64 `yaml:"tags"`
	ParentLabel float64 `yaml:"parent_label"`
}

// Boosts is the fixed per-entry relevance ladder, highest first.
type Boosts struct {
	ExternalMatch float64 `yaml:"external_match"`
	OwnLabel      float64 `yaml:"own_label"`
	NoLabel       float64 `yaml:"no_label"`
	ChildElement  float64 `yaml:"child_element"`
}

// Config is the assembler and query configuration.
type Config struct {
	Weights Weights `yaml:"weights"`
	Boosts  Boosts  `yaml:"boosts"`

	// Fuzziness is the edit-distance allowance for fuzzy terms. Numeric terms
	// always match with fuzziness 0.
	Fuzziness int `yaml:"fuzziness"`
	// PrefixLength is the number of leading characters that must match
	// exactly before fuzziness applies.
	PrefixLength int `yaml:"prefix_length"`
	// MinQueryLength gates queries shorter than this (wildcard exempt).
	MinQueryLength int `yaml:"min_query_length"`
}

// ApplyDefaults fills zero values with the standard parameters.
func (c *Config) ApplyDefaults() {
	if c.Weights.Label == 0 {
		c.Weights.Label = 10
	}
	if c.Weights.Subtitle == 0 {
		c.Weights.Subtitle = 5
	}
	if c.Weights.Tags == 0 {
		c.Weights.Tags = 3
	}
	if c.Weights.ParentLabel == 0 {
		c.Weights.ParentLabel = 1
	}
	if c.Boosts.ExternalMatch == 0 {
		c.Boosts.ExternalMatch = 2
	}
	if c.Boosts.OwnLabel == 0 {
		c.Boosts.OwnLabel = 1.5
	}
	if c.Boosts.NoLabel == 0 {
		c.Boosts.NoLabel = 1
	}
	if c.Boosts.ChildElement == 0 {
		c.Boosts.ChildElement = 0.75
	}
	if c.Fuzziness == 0 {
		c.Fuzziness = 1
	}
	if c.MinQueryLength == 0 {
		c.MinQueryLength = 2
	}
}

// Hit is one query result: the matched entry and its relevance score.
// Wildcard hits carry a neutral zero score.
type Hit struct {
	Entry domain.IndexEntry `json:"entry"`
	Score float64           `json:"score"`
}

// Index is the assembled, immutable search structure.
type Index struct {
	cfg     Config
	entries []domain.IndexEntry
	idx     bleve.Index
	logger  *zap.Logger
}

// Assemble builds the index from a reconciled entry list. It assigns each
// entry's relevance boost and indexes every entry under its slice position.
func Assemble(cfg Config, entries []domain.IndexEntry, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	owned := make([]domain.IndexEntry, len(entries))
	copy(owned, entries)
	for i := range owned {
		owned[i].RelevanceBoost = boostFor(&owned[i], cfg.Boosts)
	}

	idx, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, fmt.Errorf("create search index: %w", err)
	}

	batch := idx.NewBatch()
	for i := range owned {
		if err := batch.Index(strconv.Itoa(i), document(&owned[i])); err != nil {
			return nil, fmt.Errorf("index entry %d: %w", i, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		return nil, fmt.Errorf("commit index batch: %w", err)
	}

	return &Index{cfg: cfg, entries: owned, idx: idx, logger: logger}, nil
}

// boostFor picks the relevance boost by the first ladder condition the entry
// satisfies: external match, own label, top-level without label, child.
func boostFor(e *domain.IndexEntry, b Boosts) float64 {
	switch {
	case e.ExternalRow != nil:
		return b.ExternalMatch
	case e.HasOwnLabel():
		return b.OwnLabel
	case e.ParentSequenceIndex < 0:
		return b.NoLabel
	default:
		return b.ChildElement
	}
}

// buildMapping declares the indexed fields: analyzed text for the weighted
// fields and a lowercased keyword field for exact-label queries.
func buildMapping() mapping.IndexMapping {
	doc := bleve.NewDocumentMapping()

	text := bleve.NewTextFieldMapping()
	for _, name := range []string{fieldLabel, fieldAlias, fieldSubtitle, fieldTags, fieldParentLabel} {
		doc.AddFieldMappingsAt(name, text)
	}

	exact := bleve.NewTextFieldMapping()
	exact.Analyzer = keyword.Name
	doc.AddFieldMappingsAt(fieldLabelExact, exact)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	return im
}

// Search answers one query term.
//
//   - Empty term: no results, no error (caller shows an empty state).
//   - Term shorter than the minimum (and not the wildcard): ErrQueryTooShort.
//   - "*": every entry in index order with a zero score.
//   - "=term": exact label match, no fuzzy scoring.
//   - Anything else: weighted fuzzy query; scores are multiplied by the
//     entry's relevance boost.
func (x *Index) Search(term string) ([]Hit, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}
	if term == Wildcard {
		return x.all(), nil
	}
	if len([]rune(term)) < x.cfg.MinQueryLength {
		return nil, domain.ErrQueryTooShort
	}
	if rest, ok := strings.CutPrefix(term, ExactPrefix); ok {
		return x.exact(rest)
	}
	return x.fuzzy(term)
}

func (x *Index) all() []Hit {
	hits := make([]Hit, len(x.entries))
	for i := range x.entries {
		hits[i] = Hit{Entry: x.entries[i]}
	}
	return hits
}

func (x *Index) exact(term string) ([]Hit, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil, nil
	}
	q := bleve.NewTermQuery(term)
	q.SetField(fieldLabelExact)
	return x.run(q)
}

func (x *Index) fuzzy(term string) ([]Hit, error) {
	// Numeric terms match literally: fuzzy matching over digits produces
	// nonsense neighbors ("101" matching "201").
	fuzziness := x.cfg.Fuzziness
	if isNumeric(term) {
		fuzziness = 0
	}

	fields := []struct {
		name  string
		boost float64
	}{
		{fieldLabel, x.cfg.Weights.Label},
		{fieldAlias, x.cfg.Weights.Label},
		{fieldSubtitle, x.cfg.Weights.Subtitle},
		{fieldTags, x.cfg.Weights.Tags},
		{fieldParentLabel, x.cfg.Weights.ParentLabel},
	}
	dis := bleve.NewDisjunctionQuery()
	for _, f := range fields {
		q := bleve.NewMatchQuery(term)
		q.SetField(f.name)
		q.SetBoost(f.boost)
		q.SetFuzziness(fuzziness)
		q.SetPrefix(x.cfg.PrefixLength)
		dis.AddQuery(q)
	}
	return x.run(dis)
}

func (x *Index) run(q query.Query) ([]Hit, error) {
	req := bleve.NewSearchRequestOptions(q, len(x.entries), 0, false)
	res, err := x.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		pos, err := strconv.Atoi(h.ID)
		if err != nil || pos < 0 || pos >= len(x.entries) {
			x.logger.Warn("search hit with unknown document id", zap.String("id", h.ID))
			continue
		}
		entry := x.entries[pos]
		hits = append(hits, Hit{Entry: entry, Score: h.Score * entry.RelevanceBoost})
	}
	// Boosts reweight scores after the fact, so the engine's order no longer
	// holds. Stable sort keeps the engine's order for equal final scores.
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })
	return hits, nil
}

// Entries returns the assembled entry list in sequence order.
func (x *Index) Entries() []domain.IndexEntry {
	out := make([]domain.IndexEntry, len(x.entries))
	copy(out, x.entries)
	return out
}

// Len returns the number of indexed entries.
func (x *Index) Len() int { return len(x.entries) }

// Find resolves one entry by its (source, identifier, sequenceIndex) triple.
// Identifier match wins; sequence index disambiguates entries without one.
func (x *Index) Find(source domain.Source, identifier string, seq int) (domain.IndexEntry, error) {
	for i := range x.entries {
		e := &x.entries[i]
		if e.Source != source {
			continue
		}
		if identifier != "" && e.Identifier == identifier {
			return *e, nil
		}
		if identifier == "" && e.SequenceIndex == seq {
			return *e, nil
		}
	}
	return domain.IndexEntry{}, domain.ErrEntryNotFound
}

// Close releases the underlying search structure.
func (x *Index) Close() error {
	return x.idx.Close()
}

// document flattens one entry into the indexed field map. The exact-match
// field is lowercased at index time so "=" queries are case-insensitive.
func document(e *domain.IndexEntry) map[string]interface{} {
	doc := map[string]interface{}{
		fieldLabel:      e.Label,
		fieldLabelExact: strings.ToLower(e.Label),
	}
	if alias := aliasFor(e); alias != "" {
		doc[fieldAlias] = alias
	}
	if e.Subtitle != "" {
		doc[fieldSubtitle] = e.Subtitle
	}
	if len(e.Tags) > 0 {
		doc[fieldTags] = strings.Join(e.Tags, " ")
	}
	if e.ParentLabel != "" {
		doc[fieldParentLabel] = e.ParentLabel
	}
	return doc
}

// aliasFor returns the entry's secondary label: the pre-fallback label when
// an external row renamed the entry, so both names stay searchable.
func aliasFor(e *domain.IndexEntry) string {
	if e.OriginalLabel != "" && !strings.EqualFold(e.OriginalLabel, e.Label) {
		return e.OriginalLabel
	}
	return ""
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}
