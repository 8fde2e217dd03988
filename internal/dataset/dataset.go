// Package dataset loads and normalizes the secondary external dataset
// (spreadsheet/CSV export or JSON) into ExternalRow records, with an
// optional cache in front of the fetch. A load failure is never fatal to the
// index build: callers proceed with zero rows.
package dataset

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openpano/tourdex/internal/domain"
)

// Format selects the payload decoder.
type Format string

// Dataset formats.
const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Config holds the external dataset connection settings.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	// Path points at a local file and takes precedence over URL when set.
	Path   string `yaml:"path"`
	Format Format `yaml:"format"`

	CacheKey        string `yaml:"cache_key"`
	CacheTimeoutSec int    `yaml:"cache_timeout_sec"`

	// UseAsPrimary makes reconciled rows authoritative for labels/subtitles.
	UseAsPrimary bool `yaml:"use_as_primary"`
	// IncludeStandalone appends entries for rows with no structural match.
	IncludeStandalone bool `yaml:"include_standalone"`
}

// CacheTimeout returns the configured cache lifetime.
func (c Config) CacheTimeout() time.Duration {
	return time.Duration(c.CacheTimeoutSec) * time.Second
}

// Loader fetches, decodes and caches the dataset.
type Loader struct {
	cfg    Config
	client *http.Client
	cache  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewLoader creates a loader. cache may be nil (no caching); client may be
// nil (http.DefaultClient).
func NewLoader(cfg Config, cache Store, client *http.Client, logger *zap.Logger) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{cfg: cfg, client: client, cache: cache, logger: logger, now: time.Now}
}

// Load returns the normalized row list, in source order. The cache is
// consulted first; a record older than the configured timeout is ignored.
// Returns ErrDatasetDisabled when the dataset is not configured.
func (l *Loader) Load(ctx context.Context) ([]domain.ExternalRow, error) {
	if !l.cfg.Enabled {
		return nil, domain.ErrDatasetDisabled
	}

	if rows, ok := l.fromCache(ctx); ok {
		return rows, nil
	}

	payload, err := l.fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch dataset: %w", err)
	}

	rows, err := Decode(payload, l.cfg.Format)
	if err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}

	l.toCache(ctx, rows)
	return rows, nil
}

func (l *Loader) fetch(ctx context.Context) ([]byte, error) {
	if l.cfg.Path != "" {
		data, err := os.ReadFile(l.cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", l.cfg.Path, err)
		}
		return data, nil
	}
	if l.cfg.URL == "" {
		return nil, errors.New("dataset url or path is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", l.cfg.URL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: unexpected status %d", l.cfg.URL, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

// cacheRecord is the persisted cache payload: rows plus fetch timestamp.
type cacheRecord struct {
	Rows      []domain.ExternalRow `json:"rows"`
	FetchedAt time.Time            `json:"fetched_at"`
}

func (l *Loader) fromCache(ctx context.Context) ([]domain.ExternalRow, bool) {
	if l.cache == nil || l.cfg.CacheKey == "" || l.cfg.CacheTimeout() <= 0 {
		return nil, false
	}
	data, err := l.cache.Get(ctx, l.cfg.CacheKey)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			l.logger.Warn("dataset cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var rec cacheRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		l.logger.Warn("dataset cache record malformed", zap.Error(err))
		return nil, false
	}
	if l.now().Sub(rec.FetchedAt) > l.cfg.CacheTimeout() {
		return nil, false
	}
	return rec.Rows, true
}

func (l *Loader) toCache(ctx context.Context, rows []domain.ExternalRow) {
	if l.cache == nil || l.cfg.CacheKey == "" || l.cfg.CacheTimeout() <= 0 {
		return
	}
	data, err := json.Marshal(cacheRecord{Rows: rows, FetchedAt: l.now()})
	if err != nil {
		return
	}
	if err := l.cache.SetWithTTL(ctx, l.cfg.CacheKey, data, l.cfg.CacheTimeout()); err != nil {
		l.logger.Warn("dataset cache write failed", zap.Error(err))
	}
}

// Decode parses a raw payload into rows. When format is empty it is sniffed:
// payloads starting with '[' or '{' decode as JSON, everything else as CSV.
func Decode(payload []byte, format Format) ([]domain.ExternalRow, error) {
	if format == "" {
		trimmed := strings.TrimSpace(string(payload))
		if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
			format = FormatJSON
		} else {
			format = FormatCSV
		}
	}
	switch format {
	case FormatJSON:
		return decodeJSON(payload)
	case FormatCSV:
		return decodeCSV(payload)
	default:
		return nil, fmt.Errorf("unknown dataset format %q", format)
	}
}

func decodeJSON(payload []byte) ([]domain.ExternalRow, error) {
	var rows []domain.ExternalRow
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return compact(rows), nil
}

// columnAliases maps recognized header names onto row fields. Unrecognized
// columns are ignored, not errors.
var columnAliases = map[string]string{
	"id":           "id",
	"tag":          "tag",
	"name":         "name",
	"title":        "name",
	"description":  "description",
	"desc":         "description",
	"image":        "image_url",
	"image_url":    "image_url",
	"imageurl":     "image_url",
	"type":         "element_type",
	"element_type": "element_type",
	"elementtype":  "element_type",
	"parent":       "parent_id",
	"parent_id":    "parent_id",
	"parentid":     "parent_id",
}

func decodeCSV(payload []byte) ([]domain.ExternalRow, error) {
	r := csv.NewReader(strings.NewReader(string(payload)))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse csv header: %w", err)
	}

	fields := make([]string, len(header))
	for i, h := range header {
		fields[i] = columnAliases[strings.ToLower(strings.TrimSpace(h))]
	}

	var rows []domain.ExternalRow
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		var row domain.ExternalRow
		for i, val := range record {
			if i >= len(fields) {
				break
			}
			val = strings.TrimSpace(val)
			switch fields[i] {
			case "id":
				row.ID = val
			case "tag":
				row.Tag = val
			case "name":
				row.Name = val
			case "description":
				row.Description = val
			case "image_url":
				row.ImageURL = val
			case "element_type":
				row.ElementType = val
			case "parent_id":
				row.ParentID = val
			}
		}
		rows = append(rows, row)
	}
	return compact(rows), nil
}

// compact drops rows with nothing usable for matching, preserving order.
func compact(rows []domain.ExternalRow) []domain.ExternalRow {
	kept := rows[:0:0]
	for _, r := range rows {
		if !r.IsEmpty() {
			kept = append(kept, r)
		}
	}
	return kept
}
