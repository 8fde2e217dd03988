package tourdex

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/openpano/tourdex/internal/host"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	scenePath string
	handle    host.Handle

	datasetURL        string
	datasetPath       string
	useAsPrimary      bool
	includeStandalone bool

	containers []string

	cacheAddr     string
	cachePassword string
	cacheTTL      time.Duration

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithSceneFile loads the scene graph from a JSON scene file.
func WithSceneFile(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.scenePath = path
	})
}

// WithHandle attaches the client to a live host handle instead of a scene
// file. Takes precedence over WithSceneFile.
func WithHandle(h host.Handle) Option {
	return optionFunc(func(c *clientConfig) {
		c.handle = h
	})
}

// WithDatasetURL enables the external dataset, fetched over HTTP.
// The payload format (CSV or JSON) is sniffed.
func WithDatasetURL(url string) Option {
	return optionFunc(func(c *clientConfig) {
		c.datasetURL = url
	})
}

// WithDatasetFile enables the external dataset, read from a local file.
// Takes precedence over WithDatasetURL.
func WithDatasetFile(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.datasetPath = path
	})
}

// WithDatasetAsPrimary makes matched dataset rows authoritative: the row's
// name and description overwrite the structural label and subtitle.
func WithDatasetAsPrimary() Option {
	return optionFunc(func(c *clientConfig) {
		c.useAsPrimary = true
	})
}

// WithStandaloneRows synthesizes index entries for dataset rows that match
// no structural element.
func WithStandaloneRows() Option {
	return optionFunc(func(c *clientConfig) {
		c.includeStandalone = true
	})
}

// WithContainers declares container entries by name; they are appended after
// all discovered content and dispatched through the host's menu.
func WithContainers(names ...string) Option {
	return optionFunc(func(c *clientConfig) {
		c.containers = append(c.containers, names...)
	})
}

// WithRedisCache caches dataset fetches in Redis instead of process memory.
func WithRedisCache(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.cacheAddr = addr
		c.cachePassword = password
	})
}

// WithCacheTimeout sets how long a cached dataset fetch stays valid before a
// rebuild refetches it. Defaults to five minutes.
func WithCacheTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.cacheTTL = d
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
