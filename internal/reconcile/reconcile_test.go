package reconcile

import (
	"testing"

	"github.com/openpano/tourdex/internal/domain"
	"github.com/openpano/tourdex/internal/filter"
)

func newEngine(t *testing.T, cfg Config, fcfg filter.Config) *Engine {
	t.Helper()
	p, err := filter.New(fcfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return New(cfg, p, nil)
}

func structural(kind domain.Kind, id, lbl string, seq int, tags ...string) domain.IndexEntry {
	return domain.IndexEntry{
		Kind: kind, Source: domain.SourcePrimary,
		Label: lbl, OriginalLabel: lbl,
		Identifier: id, HostID: id,
		SequenceIndex: seq, ParentSequenceIndex: -1,
		Tags: tags,
	}
}

func TestMerge_ExactIDEnriches(t *testing.T) {
	entries := []domain.IndexEntry{
		structural(domain.KindPanorama, "p0", "Lobby", 0),
		structural(domain.KindPanorama, "p1", "Garden", 1),
	}
	rows := []domain.ExternalRow{
		{ID: "p1", Name: "Winter Garden", Description: "North wing"},
	}

	e := newEngine(t, Config{UseAsPrimary: true}, filter.Config{})
	out := e.Merge(entries, rows)

	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	got := out[1]
	if got.Label != "Winter Garden" {
		t.Errorf("Label = %q", got.Label)
	}
	if got.Subtitle != "North wing" {
		t.Errorf("Subtitle = %q", got.Subtitle)
	}
	if got.OriginalLabel != "Garden" {
		t.Errorf("OriginalLabel = %q, must keep the structural label", got.OriginalLabel)
	}
	if got.ExternalRow == nil || got.ExternalRow.ID != "p1" {
		t.Errorf("ExternalRow = %+v", got.ExternalRow)
	}
	if out[0].ExternalRow != nil {
		t.Error("unmatched entry must stay untouched")
	}
}

func TestMerge_NotPrimaryDiscardsMatches(t *testing.T) {
	entries := []domain.IndexEntry{structural(domain.KindPanorama, "p0", "Lobby", 0)}
	rows := []domain.ExternalRow{{ID: "p0", Name: "Reception"}}

	e := newEngine(t, Config{UseAsPrimary: false}, filter.Config{})
	out := e.Merge(entries, rows)

	if out[0].Label != "Lobby" || out[0].ExternalRow != nil {
		t.Errorf("entry = %+v, matched row must be discarded", out[0])
	}
}

func TestMerge_ConfidenceOrder(t *testing.T) {
	// One row matching three entries at different confidence levels; the
	// exact-identifier match must win.
	entries := []domain.IndexEntry{
		structural(domain.KindHotspot, "other", "meeting", 0),           // name match (1)
		structural(domain.KindHotspot, "h1", "Door", 1, "meeting-room"), // tag match (2)
		structural(domain.KindHotspot, "meeting", "Exit", 2),            // exact id (3)
	}
	rows := []domain.ExternalRow{{ID: "meeting", Tag: "meeting", Name: "meeting"}}

	e := newEngine(t, Config{UseAsPrimary: true}, filter.Config{})
	out := e.Merge(entries, rows)

	if out[2].ExternalRow == nil {
		t.Error("exact-id entry should be enriched")
	}
	if out[0].ExternalRow != nil || out[1].ExternalRow != nil {
		t.Error("lower-confidence candidates must stay untouched")
	}
}

func TestMerge_HostIDMatchesWrapperID(t *testing.T) {
	// A node with a separate media payload indexes under the payload's id but
	// keeps the wrapper node's id as the host reference; rows may cite either.
	wrapped := structural(domain.KindPanorama, "media-1", "Lobby", 0)
	wrapped.HostID = "node-1"
	entries := []domain.IndexEntry{wrapped}
	rows := []domain.ExternalRow{{ID: "node-1", Name: "Grand Lobby"}}

	e := newEngine(t, Config{UseAsPrimary: true}, filter.Config{})
	out := e.Merge(entries, rows)

	if out[0].Label != "Grand Lobby" || out[0].ExternalRow == nil {
		t.Errorf("out[0] = %+v, want the wrapper-id match enriched", out[0])
	}
}

func TestMerge_ExactIDOutranksHostID(t *testing.T) {
	wrapped := structural(domain.KindPanorama, "media-1", "Lobby", 0)
	wrapped.HostID = "shared"
	entries := []domain.IndexEntry{
		wrapped,
		structural(domain.KindPanorama, "shared", "Garden", 1),
	}
	rows := []domain.ExternalRow{{ID: "shared", Name: "Winner"}}

	e := newEngine(t, Config{UseAsPrimary: true}, filter.Config{})
	out := e.Merge(entries, rows)

	if out[1].ExternalRow == nil {
		t.Error("exact-identifier entry should outrank the host-id candidate")
	}
	if out[0].ExternalRow != nil {
		t.Error("host-id candidate must stay untouched")
	}
}

func TestMerge_TieResolvesToFirstEntry(t *testing.T) {
	entries := []domain.IndexEntry{
		structural(domain.KindHotspot, "a", "Same Name", 0),
		structural(domain.KindHotspot, "b", "Same Name", 1),
	}
	rows := []domain.ExternalRow{{Name: "Same Name", Description: "enriched"}}

	e := newEngine(t, Config{UseAsPrimary: true}, filter.Config{})
	out := e.Merge(entries, rows)

	if out[0].ExternalRow == nil {
		t.Error("first entry in input order should win the tie")
	}
	if out[1].ExternalRow != nil {
		t.Error("second entry must stay untouched")
	}
}

func TestMerge_ConsumedIDSkipsLaterRows(t *testing.T) {
	entries := []domain.IndexEntry{structural(domain.KindPanorama, "p0", "Lobby", 0)}
	rows := []domain.ExternalRow{
		{ID: "p0", Name: "First Writer"},
		{ID: "p0", Name: "Second Writer"},
	}

	e := newEngine(t, Config{UseAsPrimary: true}, filter.Config{})
	out := e.Merge(entries, rows)

	if out[0].Label != "First Writer" {
		t.Errorf("Label = %q, first writer must win", out[0].Label)
	}
}

func TestMerge_ConsumedTagSkipsLaterRows(t *testing.T) {
	entries := []domain.IndexEntry{
		structural(domain.KindHotspot, "h0", "Door", 0, "room-1"),
		structural(domain.KindHotspot, "h1", "Window", 1, "room-1"),
	}
	rows := []domain.ExternalRow{
		{Tag: "room-1", Name: "Meeting Room"},
		{Tag: "room-1", Name: "Should Be Skipped"},
	}

	e := newEngine(t, Config{UseAsPrimary: true}, filter.Config{})
	out := e.Merge(entries, rows)

	if out[0].Label != "Meeting Room" {
		t.Errorf("out[0].Label = %q", out[0].Label)
	}
	if out[1].ExternalRow != nil {
		t.Errorf("out[1] = %+v, later row with consumed tag must be skipped", out[1])
	}
}

func TestMerge_StandaloneSynthesis(t *testing.T) {
	entries := []domain.IndexEntry{structural(domain.KindPanorama, "p0", "Lobby", 0)}
	rows := []domain.ExternalRow{
		{ID: "x1", Name: "Floor Plan", ElementType: "Image"},
		{ID: "x2", Name: "Mystery", ElementType: "does-not-exist"},
	}

	e := newEngine(t, Config{IncludeStandalone: true}, filter.Config{})
	out := e.Merge(entries, rows)

	if len(out) != 3 {
		t.Fatalf("len(out) = %d, want 3", len(out))
	}
	s1, s2 := out[1], out[2]
	if s1.Kind != domain.KindImage {
		t.Errorf("s1.Kind = %q", s1.Kind)
	}
	if s2.Kind != domain.KindElement {
		t.Errorf("s2.Kind = %q, unknown type must degrade to element", s2.Kind)
	}
	for _, s := range []domain.IndexEntry{s1, s2} {
		if !s.IsStandalone {
			t.Errorf("IsStandalone = false for %q", s.Label)
		}
		if s.Source != domain.SourceExternal {
			t.Errorf("Source = %q", s.Source)
		}
		if s.HostID != "" {
			t.Errorf("HostID = %q, standalone entries carry no host reference", s.HostID)
		}
		if s.SequenceIndex <= entries[0].SequenceIndex {
			t.Errorf("SequenceIndex = %d, must sort after structural content", s.SequenceIndex)
		}
	}
	if s2.SequenceIndex != s1.SequenceIndex+1 {
		t.Errorf("standalone seqs = %d, %d", s1.SequenceIndex, s2.SequenceIndex)
	}
}

func TestMerge_StandaloneDisabledDiscardsRow(t *testing.T) {
	entries := []domain.IndexEntry{structural(domain.KindPanorama, "p0", "Lobby", 0)}
	rows := []domain.ExternalRow{{ID: "x1", Name: "Floor Plan"}}

	e := newEngine(t, Config{IncludeStandalone: false}, filter.Config{})
	out := e.Merge(entries, rows)
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
}

func TestMerge_FilterRejectsRow(t *testing.T) {
	entries := []domain.IndexEntry{structural(domain.KindPanorama, "p0", "Lobby", 0)}
	rows := []domain.ExternalRow{
		{ID: "p0", Name: "hidden room"},
		{ID: "x1", Name: "hidden plan"},
	}

	e := newEngine(t,
		Config{UseAsPrimary: true, IncludeStandalone: true},
		filter.Config{
			Value: filter.ValueRule{
				Mode: filter.ModeBlacklist, Match: filter.MatchContains, Terms: []string{"hidden"},
			},
		})
	out := e.Merge(entries, rows)

	if out[0].Label != "Lobby" || out[0].ExternalRow != nil {
		t.Errorf("out[0] = %+v, rejected row must contribute nothing", out[0])
	}
	if len(out) != 1 {
		t.Errorf("len(out) = %d, rejected standalone must not be appended", len(out))
	}
}

func TestMerge_EmptyRowsIgnored(t *testing.T) {
	entries := []domain.IndexEntry{structural(domain.KindPanorama, "p0", "Lobby", 0)}
	e := newEngine(t,
		Config{UseAsPrimary: true, IncludeStandalone: true},
		filter.Config{})
	out := e.Merge(entries, []domain.ExternalRow{{}, {}})
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
}

func TestMerge_DedupInvariantHolds(t *testing.T) {
	entries := []domain.IndexEntry{structural(domain.KindPanorama, "p0", "Lobby", 0)}
	rows := []domain.ExternalRow{
		{ID: "x1", Name: "Plan A"},
		{ID: "X1", Name: "Plan B", Tag: "other"},
	}

	e := newEngine(t, Config{IncludeStandalone: true}, filter.Config{})
	out := e.Merge(entries, rows)

	keys := map[string]bool{}
	for i := range out {
		key := out[i].Key()
		if key == "" {
			continue
		}
		if keys[key] {
			t.Errorf("duplicate key %q", key)
		}
		keys[key] = true
	}
}
