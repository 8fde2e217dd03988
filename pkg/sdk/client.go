package tourdex

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/openpano/tourdex/internal/config"
	"github.com/openpano/tourdex/internal/dataset"
	"github.com/openpano/tourdex/internal/domain"
	"github.com/openpano/tourdex/internal/host"
	"github.com/openpano/tourdex/internal/session"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	defaultCacheTimeout     = 5 * time.Minute
)

// Client is the tourdex SDK entry point. It holds one built index over one
// scene; Rebuild refreshes it in place.
type Client struct {
	sess  *session.Session
	store dataset.Store
	obs   *observer
}

// New creates a Client, connects to the configured cache, and runs the
// initial index build. The provided context bounds the build and the cache
// readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}

	handle := cfg.handle
	if handle == nil {
		if cfg.scenePath == "" {
			return nil, errors.New("tourdex: scene required (use WithSceneFile or WithHandle)")
		}
		h, err := host.LoadScene(cfg.scenePath)
		if err != nil {
			return nil, fmt.Errorf("tourdex: load scene: %w", err)
		}
		handle = h
	}

	store, err := createStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	sess := session.New(buildConfig(cfg), handle, store, http.DefaultClient, zap.NewNop())
	c := &Client{sess: sess, store: store, obs: obs}

	if err := c.Rebuild(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("tourdex: initial build: %w", err)
	}
	return c, nil
}

func createStore(ctx context.Context, cfg *clientConfig) (dataset.Store, error) {
	if cfg.cacheAddr == "" {
		return dataset.NewMemoryStore(), nil
	}
	store, err := dataset.NewRedisStore(dataset.RedisConfig{
		Addrs:    []string{cfg.cacheAddr},
		Password: cfg.cachePassword,
	})
	if err != nil {
		return nil, fmt.Errorf("tourdex: create cache store: %w", err)
	}
	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("tourdex: cache not ready: %w", err)
	}
	return store, nil
}

// buildConfig translates client options into the internal configuration.
func buildConfig(cfg *clientConfig) config.Config {
	var c config.Config
	c.Scene.Path = cfg.scenePath
	ttl := cfg.cacheTTL
	if ttl == 0 {
		ttl = defaultCacheTimeout
	}
	c.Dataset = dataset.Config{
		Enabled:           cfg.datasetURL != "" || cfg.datasetPath != "",
		URL:               cfg.datasetURL,
		Path:              cfg.datasetPath,
		UseAsPrimary:      cfg.useAsPrimary,
		IncludeStandalone: cfg.includeStandalone,
		CacheTimeoutSec:   int(ttl / time.Second),
	}
	c.Content.Containers = cfg.containers
	c.ApplyDefaults()
	return c
}

// Close releases the cache connection, if any.
func (c *Client) Close() {
	if closer, ok := c.store.(interface{ Close() }); ok {
		closer.Close()
	}
}

// Rebuild re-runs the full index build: dataset load, scene traversal,
// reconciliation, assembly.
func (c *Client) Rebuild(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("rebuild", start, err) }()

	if err = c.sess.Rebuild(ctx); err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}
	return nil
}

// Search answers one query term. "*" lists everything in scene order; a
// leading "=" requires an exact label match.
func (c *Client) Search(ctx context.Context, term string) (hits []Hit, err error) {
	start := time.Now()
	defer func() { c.obs.observe("search", start, err) }()

	internal, err := c.sess.Search(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return hitsFromInternal(internal), nil
}

// Groups answers one query term and arranges the hits into display groups,
// ordered by element kind.
func (c *Client) Groups(ctx context.Context, term string) (groups []Group, err error) {
	start := time.Now()
	defer func() { c.obs.observe("groups", start, err) }()

	internal, err := c.sess.Groups(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("groups: %w", err)
	}
	groups = make([]Group, len(internal))
	for i, g := range internal {
		groups[i] = groupFromInternal(g)
	}
	return groups, nil
}

// Entries returns the full index contents in sequence order.
func (c *Client) Entries(ctx context.Context) (entries []Entry, err error) {
	start := time.Now()
	defer func() { c.obs.observe("entries", start, err) }()

	internal, err := c.sess.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("entries: %w", err)
	}
	entries = make([]Entry, len(internal))
	for i, e := range internal {
		entries[i] = entryFromInternal(e)
	}
	return entries, nil
}

// Dispatch navigates the host to the given entry.
func (c *Client) Dispatch(ctx context.Context, e Entry) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("dispatch", start, err) }()

	if err = c.sess.Dispatch(ctx, domain.Source(e.Source), e.Identifier, e.SequenceIndex); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	return nil
}
