package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/openpano/tourdex/internal/config"
	"github.com/openpano/tourdex/internal/domain"
	"github.com/openpano/tourdex/internal/host"
)

func testConfig() config.Config {
	cfg := config.Config{}
	cfg.HTTP.Port = 8080
	cfg.Scene.Path = "scene.json"
	cfg.ApplyDefaults()
	return cfg
}

// testScene is a two-panorama scene: the lobby carries one hotspot overlay.
func testScene() (*host.StaticHandle, *host.StaticCollection) {
	lobby := &host.StaticNode{
		NodeID: "pano-lobby", NodeClass: "panorama", NodeLabel: "Lobby",
		Overlay: []*host.StaticNode{
			{NodeID: "hs-desk", NodeClass: "hotspot", NodeLabel: "Info Desk"},
		},
	}
	garden := &host.StaticNode{NodeID: "pano-garden", NodeClass: "panorama", NodeLabel: "Garden"}
	primary := host.NewStaticCollection(lobby, garden)
	return host.NewStaticHandle(primary, nil), primary
}

func TestSession_NoIndexBeforeRebuild(t *testing.T) {
	h, _ := testScene()
	s := New(testConfig(), h, nil, nil, nil)
	ctx := context.Background()

	if _, err := s.Search(ctx, "lobby"); !errors.Is(err, domain.ErrNoIndex) {
		t.Fatalf("Search error = %v, want ErrNoIndex", err)
	}
	if _, err := s.Entries(ctx); !errors.Is(err, domain.ErrNoIndex) {
		t.Fatalf("Entries error = %v, want ErrNoIndex", err)
	}
	if err := s.Dispatch(ctx, domain.SourcePrimary, "pano-lobby", 0); !errors.Is(err, domain.ErrNoIndex) {
		t.Fatalf("Dispatch error = %v, want ErrNoIndex", err)
	}
}

func TestSession_RebuildAndSearch(t *testing.T) {
	h, _ := testScene()
	s := New(testConfig(), h, nil, nil, nil)
	ctx := context.Background()

	if err := s.Rebuild(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := s.Entries(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}

	hits, err := s.Search(ctx, "lobby")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) == 0 || hits[0].Entry.Label != "Lobby" {
		t.Fatalf("search 'lobby' = %+v, want Lobby first", hits)
	}

	all, err := s.Search(ctx, "*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("wildcard returned %d hits, want 3", len(all))
	}
}

func TestSession_SearchTooShort(t *testing.T) {
	h, _ := testScene()
	s := New(testConfig(), h, nil, nil, nil)
	ctx := context.Background()
	if err := s.Rebuild(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Search(ctx, "a"); !errors.Is(err, domain.ErrQueryTooShort) {
		t.Fatalf("error = %v, want ErrQueryTooShort", err)
	}
}

func TestSession_DatasetEnrichment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id": "pano-lobby", "name": "Grand Lobby", "description": "Main entrance"}]`))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Dataset.Enabled = true
	cfg.Dataset.URL = srv.URL
	cfg.Dataset.UseAsPrimary = true

	h, _ := testScene()
	s := New(cfg, h, nil, srv.Client(), nil)
	ctx := context.Background()

	if err := s.Rebuild(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hits, err := s.Search(ctx, "grand")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("no hits for enriched label")
	}
	got := hits[0].Entry
	if got.Label != "Grand Lobby" || got.Subtitle != "Main entrance" {
		t.Fatalf("got label %q subtitle %q, want enriched values", got.Label, got.Subtitle)
	}
	if got.Source != domain.SourcePrimary {
		t.Fatalf("enriched entry source = %q, want primary", got.Source)
	}
}

func TestSession_DatasetFailureDoesNotAbortBuild(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Dataset.Enabled = true
	cfg.Dataset.URL = srv.URL

	h, _ := testScene()
	s := New(cfg, h, nil, srv.Client(), nil)
	ctx := context.Background()

	if err := s.Rebuild(ctx); err != nil {
		t.Fatalf("build must survive a dataset failure, got: %v", err)
	}
	entries, err := s.Entries(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want the 3 structural ones", len(entries))
	}
}

func TestSession_Dispatch(t *testing.T) {
	h, primary := testScene()
	s := New(testConfig(), h, nil, nil, nil)
	ctx := context.Background()

	if err := s.Rebuild(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := s.Entries(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var garden *domain.IndexEntry
	for i := range entries {
		if entries[i].Label == "Garden" {
			garden = &entries[i]
		}
	}
	if garden == nil {
		t.Fatal("garden entry not built")
	}

	if err := s.Dispatch(ctx, garden.Source, garden.Identifier, garden.SequenceIndex); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := primary.CurrentIndex(); got != 1 {
		t.Fatalf("primary index = %d, want 1", got)
	}
}

func TestSession_DispatchUnknownEntry(t *testing.T) {
	h, _ := testScene()
	s := New(testConfig(), h, nil, nil, nil)
	ctx := context.Background()
	if err := s.Rebuild(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := s.Dispatch(ctx, domain.SourcePrimary, "no-such-node", 99)
	if !errors.Is(err, domain.ErrEntryNotFound) {
		t.Fatalf("error = %v, want ErrEntryNotFound", err)
	}
}

func TestSession_Groups(t *testing.T) {
	h, _ := testScene()
	s := New(testConfig(), h, nil, nil, nil)
	ctx := context.Background()
	if err := s.Rebuild(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	groups, err := s.Groups(ctx, "*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2 (panoramas, hotspots)", len(groups))
	}
	if groups[0].Kind != domain.KindPanorama {
		t.Fatalf("first group kind = %q, want panorama", groups[0].Kind)
	}
	if len(groups[0].Hits) != 2 || len(groups[1].Hits) != 1 {
		t.Fatalf("group sizes = %d/%d, want 2/1", len(groups[0].Hits), len(groups[1].Hits))
	}
}

func TestSession_GroupsDoNotBlockOnRebuild(t *testing.T) {
	blocked := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(blocked)
		<-release
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	h, _ := testScene()
	s := New(testConfig(), h, nil, srv.Client(), nil)
	ctx := context.Background()
	if err := s.Rebuild(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Enable the dataset so the triggered rebuild stalls inside the fetch.
	patch := []byte("dataset:\n  enabled: true\n  url: " + srv.URL + "\n")
	done := make(chan error, 1)
	go func() {
		_, err := s.UpdateConfig(ctx, patch)
		done <- err
	}()

	// While the rebuild is parked in the handler, grouped queries must still
	// answer from the active index. A hang here is the regression.
	<-blocked
	groups, err := s.Groups(ctx, "*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2 from the active index", len(groups))
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSession_UpdateConfig_PresentationOnly(t *testing.T) {
	h, _ := testScene()
	s := New(testConfig(), h, nil, nil, nil)
	ctx := context.Background()
	if err := s.Rebuild(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rebuilt, err := s.UpdateConfig(ctx, []byte("group:\n  by_external_kind: true\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rebuilt {
		t.Fatal("presentation-only change must not rebuild the index")
	}
	if !s.Config().Group.ByExternalKind {
		t.Fatal("patched group setting not applied")
	}
}

func TestSession_UpdateConfig_MembershipChangeRebuilds(t *testing.T) {
	h, _ := testScene()
	s := New(testConfig(), h, nil, nil, nil)
	ctx := context.Background()
	if err := s.Rebuild(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	patch := []byte("filter:\n  labels:\n    mode: blacklist\n    values: [garden]\n")
	rebuilt, err := s.UpdateConfig(ctx, patch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rebuilt {
		t.Fatal("membership change must rebuild the index")
	}

	all, err := s.Search(ctx, "*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, hit := range all {
		if hit.Entry.Label == "Garden" {
			t.Fatal("blacklisted entry survived the rebuild")
		}
	}
}

func TestSession_UpdateConfig_InvalidPatch(t *testing.T) {
	h, _ := testScene()
	s := New(testConfig(), h, nil, nil, nil)
	ctx := context.Background()

	before := s.Config()
	if _, err := s.UpdateConfig(ctx, []byte("http:\n  port: -1\n")); err == nil {
		t.Fatal("expected validation error")
	}
	if !reflect.DeepEqual(s.Config(), before) {
		t.Fatal("failed patch must not mutate the active config")
	}
}
