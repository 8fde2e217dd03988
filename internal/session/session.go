// Package session owns the live index lifecycle: full rebuilds, query
// serving, entry dispatch and runtime configuration updates. Queries read
// the active index through an atomic pointer and never block on rebuilds;
// rebuilds and config updates are serialized.
package session

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/openpano/tourdex/internal/config"
	"github.com/openpano/tourdex/internal/dataset"
	"github.com/openpano/tourdex/internal/dispatch"
	"github.com/openpano/tourdex/internal/domain"
	"github.com/openpano/tourdex/internal/filter"
	"github.com/openpano/tourdex/internal/group"
	"github.com/openpano/tourdex/internal/host"
	"github.com/openpano/tourdex/internal/index"
	"github.com/openpano/tourdex/internal/metrics"
	"github.com/openpano/tourdex/internal/reconcile"
	"github.com/openpano/tourdex/internal/traverse"
)

// Session ties one host handle to one live index.
type Session struct {
	handle host.Handle
	cache  dataset.Store
	client *http.Client
	logger *zap.Logger

	mu  sync.Mutex // serializes rebuilds and config updates
	cfg config.Config

	// Read paths never take mu: the index and the presentation snapshot
	// (grouping config, dispatcher) are swapped atomically.
	idx        atomic.Pointer[index.Index]
	dispatcher atomic.Pointer[dispatch.Dispatcher]
	groupCfg   atomic.Pointer[group.Config]
}

// New creates a session. cache may be nil (dataset loads skip caching);
// client may be nil (http.DefaultClient).
func New(cfg config.Config, h host.Handle, cache dataset.Store, client *http.Client, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		handle: h,
		cache:  cache,
		client: client,
		logger: logger,
		cfg:    cfg,
	}
	s.dispatcher.Store(dispatch.New(cfg.Dispatch, logger))
	gc := cfg.Group
	s.groupCfg.Store(&gc)
	return s
}

// Config returns a snapshot of the active configuration.
func (s *Session) Config() config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Rebuild runs the full pipeline (load, traverse, reconcile, assemble) and
// swaps the resulting index in. A dataset load failure degrades to zero
// external rows; it never aborts the build.
func (s *Session) Rebuild(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebuildLocked(ctx)
}

func (s *Session) rebuildLocked(ctx context.Context) error {
	start := time.Now()
	cfg := s.cfg

	rows := s.loadRows(ctx, cfg)

	pipeline, err := filter.New(cfg.Filter, s.logger)
	if err != nil {
		metrics.BuildsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("compile filter: %w", err)
	}

	walker := traverse.New(traverse.Config{
		Labels:     cfg.Labels,
		Containers: cfg.Content.Containers,
	}, pipeline, s.logger)
	entries := walker.Build(s.handle)

	merger := reconcile.New(reconcile.Config{
		UseAsPrimary:      cfg.Dataset.UseAsPrimary,
		IncludeStandalone: cfg.Dataset.IncludeStandalone,
	}, pipeline, s.logger)
	entries = merger.Merge(entries, rows)

	idx, err := index.Assemble(cfg.Search, entries, s.logger)
	if err != nil {
		metrics.BuildsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("assemble index: %w", err)
	}

	if old := s.idx.Swap(idx); old != nil {
		_ = old.Close()
	}

	observeEntries(idx)
	metrics.BuildDuration.Observe(time.Since(start).Seconds())
	metrics.BuildsTotal.WithLabelValues("ok").Inc()
	s.logger.Info("index rebuilt",
		zap.Int("entries", idx.Len()),
		zap.Int("external_rows", len(rows)),
		zap.Duration("took", time.Since(start)))
	return nil
}

// loadRows fetches the external dataset. Any failure is logged and
// swallowed: the build proceeds with zero rows.
func (s *Session) loadRows(ctx context.Context, cfg config.Config) []domain.ExternalRow {
	if !cfg.Dataset.Enabled {
		metrics.DatasetLoadsTotal.WithLabelValues("disabled").Inc()
		return nil
	}
	loader := dataset.NewLoader(cfg.Dataset, s.cache, s.client, s.logger)
	rows, err := loader.Load(ctx)
	if err != nil {
		metrics.DatasetLoadsTotal.WithLabelValues("error").Inc()
		s.logger.Warn("external dataset load failed, building without it", zap.Error(err))
		return nil
	}
	metrics.DatasetLoadsTotal.WithLabelValues("ok").Inc()
	return rows
}

func observeEntries(idx *index.Index) {
	counts := map[domain.Kind]int{}
	for _, e := range idx.Entries() {
		counts[e.Kind]++
	}
	metrics.IndexEntries.Reset()
	for kind, n := range counts {
		metrics.IndexEntries.WithLabelValues(string(kind)).Set(float64(n))
	}
}

func (s *Session) current() (*index.Index, error) {
	idx := s.idx.Load()
	if idx == nil {
		return nil, domain.ErrNoIndex
	}
	return idx, nil
}

// Search answers one query term against the active index.
func (s *Session) Search(_ context.Context, term string) ([]index.Hit, error) {
	idx, err := s.current()
	if err != nil {
		return nil, err
	}
	hits, err := idx.Search(term)
	if err != nil {
		metrics.QueriesTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	metrics.QueriesTotal.WithLabelValues(queryType(term)).Inc()
	return hits, nil
}

// Groups answers a query and arranges the hits into display groups.
func (s *Session) Groups(ctx context.Context, term string) ([]group.Group, error) {
	hits, err := s.Search(ctx, term)
	if err != nil {
		return nil, err
	}
	return group.Arrange(*s.groupCfg.Load(), hits), nil
}

// Entries returns the active index's entry list in sequence order.
func (s *Session) Entries(_ context.Context) ([]domain.IndexEntry, error) {
	idx, err := s.current()
	if err != nil {
		return nil, err
	}
	return idx.Entries(), nil
}

// Dispatch resolves one entry by (source, identifier, sequenceIndex) and
// navigates the host to it.
func (s *Session) Dispatch(ctx context.Context, source domain.Source, identifier string, seq int) error {
	idx, err := s.current()
	if err != nil {
		return err
	}
	entry, err := idx.Find(source, identifier, seq)
	if err != nil {
		return err
	}
	metrics.DispatchesTotal.WithLabelValues(string(entry.Kind)).Inc()

	return s.dispatcher.Load().Dispatch(ctx, s.handle, entry)
}

// UpdateConfig applies a YAML patch to the active configuration. Changes
// that affect index membership or scoring trigger a full rebuild; changes
// that affect only presentation do not. Returns whether a rebuild ran.
func (s *Session) UpdateConfig(ctx context.Context, patch []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged, err := s.cfg.Merge(patch)
	if err != nil {
		return false, err
	}
	rebuild := config.RequiresRebuild(s.cfg, merged)
	s.cfg = merged
	s.dispatcher.Store(dispatch.New(merged.Dispatch, s.logger))
	gc := merged.Group
	s.groupCfg.Store(&gc)

	if !rebuild {
		return false, nil
	}
	return true, s.rebuildLocked(ctx)
}

func queryType(term string) string {
	switch {
	case strings.TrimSpace(term) == index.Wildcard:
		return "wildcard"
	case strings.HasPrefix(strings.TrimSpace(term), index.ExactPrefix):
		return "exact"
	default:
		return "fuzzy"
	}
}
