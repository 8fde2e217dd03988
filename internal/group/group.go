// Package group arranges query hits into display groups. Grouping is
// presentation-only: the group key may be overridden by external data, but
// filtering always ran against the structural kind.
package group

import (
	"sort"

	"github.com/openpano/tourdex/internal/domain"
	"github.com/openpano/tourdex/internal/index"
)

// Config controls group key selection.
type Config struct {
	// ByExternalKind keys entries by their external row's element type when
	// one is present. Display-only; the structural kind is untouched.
	ByExternalKind bool `yaml:"by_external_kind"`
}

// Group is one display group of hits sharing a key.
type Group struct {
	// Key is the display name of the group.
	Key string `json:"key"`
	// Kind is the representative kind used to order groups.
	Kind domain.Kind `json:"kind"`
	Hits []index.Hit `json:"hits"`
}

// Arrange buckets hits by group key, sorts each bucket and orders the
// buckets by the fixed kind priority. Kinds outside the priority list sort
// last, in the order they were first seen.
func Arrange(cfg Config, hits []index.Hit) []Group {
	byKey := map[string]*Group{}
	var order []*Group

	for _, h := range hits {
		kind, key := keyFor(cfg, &h.Entry)
		g, ok := byKey[key]
		if !ok {
			g = &Group{Key: key, Kind: kind}
			byKey[key] = g
			order = append(order, g)
		}
		g.Hits = append(g.Hits, h)
	}

	for _, g := range order {
		sortHits(g.Hits)
	}

	rank := make(map[domain.Kind]int, len(domain.GroupOrder))
	for i, k := range domain.GroupOrder {
		rank[k] = i
	}
	unranked := len(domain.GroupOrder)
	sort.SliceStable(order, func(a, b int) bool {
		ra, ok := rank[order[a].Kind]
		if !ok {
			ra = unranked
		}
		rb, ok := rank[order[b].Kind]
		if !ok {
			rb = unranked
		}
		return ra < rb
	})

	out := make([]Group, len(order))
	for i, g := range order {
		out[i] = *g
	}
	return out
}

// keyFor picks the group key: the external element type when the override is
// enabled and the entry carries one, otherwise the structural kind's display
// name.
func keyFor(cfg Config, e *domain.IndexEntry) (domain.Kind, string) {
	if cfg.ByExternalKind && e.ExternalRow != nil && e.ExternalRow.ElementType != "" {
		if kind, ok := domain.ParseKind(e.ExternalRow.ElementType); ok {
			return kind, kind.DisplayName()
		}
		return e.Kind, e.ExternalRow.ElementType
	}
	return e.Kind, e.Kind.DisplayName()
}

// sortHits orders one bucket: sequence index ascending, then label, then
// parent label.
func sortHits(hits []index.Hit) {
	sort.SliceStable(hits, func(a, b int) bool {
		ea, eb := &hits[a].Entry, &hits[b].Entry
		if ea.SequenceIndex != eb.SequenceIndex {
			return ea.SequenceIndex < eb.SequenceIndex
		}
		if ea.Label != eb.Label {
			return ea.Label < eb.Label
		}
		return ea.ParentLabel < eb.ParentLabel
	})
}
