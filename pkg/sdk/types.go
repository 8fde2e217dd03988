package tourdex

import (
	"github.com/openpano/tourdex/internal/domain"
	"github.com/openpano/tourdex/internal/group"
	"github.com/openpano/tourdex/internal/index"
)

// Entry is one searchable element of the tour.
type Entry struct {
	Kind   string
	Source string

	Label    string
	Subtitle string
	Tags     []string

	// Identifier plus Source plus SequenceIndex address the entry for
	// Dispatch.
	Identifier    string
	SequenceIndex int

	ParentLabel string

	IsContainer  bool
	IsStandalone bool
}

// Hit is a single search result.
type Hit struct {
	Entry Entry
	Score float64
}

// Group is a display group of hits sharing an element kind.
type Group struct {
	Key  string
	Kind string
	Hits []Hit
}

func entryFromInternal(e domain.IndexEntry) Entry {
	return Entry{
		Kind:          string(e.Kind),
		Source:        string(e.Source),
		Label:         e.Label,
		Subtitle:      e.Subtitle,
		Tags:          e.Tags,
		Identifier:    e.Identifier,
		SequenceIndex: e.SequenceIndex,
		ParentLabel:   e.ParentLabel,
		IsContainer:   e.IsContainer,
		IsStandalone:  e.IsStandalone,
	}
}

func hitFromInternal(h index.Hit) Hit {
	return Hit{Entry: entryFromInternal(h.Entry), Score: h.Score}
}

func hitsFromInternal(hits []index.Hit) []Hit {
	out := make([]Hit, len(hits))
	for i, h := range hits {
		out[i] = hitFromInternal(h)
	}
	return out
}

func groupFromInternal(g group.Group) Group {
	return Group{Key: g.Key, Kind: string(g.Kind), Hits: hitsFromInternal(g.Hits)}
}
