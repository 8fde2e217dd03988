// Package traverse walks the host scene graph and produces the flat index
// entry list. It processes the primary collection, then the secondary
// collection, then the declared containers, so sequence indexes are
// reproducible across rebuilds given identical source data.
package traverse

import (
	"strings"

	"go.uber.org/zap"

	"github.com/openpano/tourdex/internal/classify"
	"github.com/openpano/tourdex/internal/domain"
	"github.com/openpano/tourdex/internal/filter"
	"github.com/openpano/tourdex/internal/host"
	"github.com/openpano/tourdex/internal/label"
)

// childStride spaces child sequence indexes so overlays and 3D sub-objects
// never collide with top-level indexes for collections under stride size.
const childStride = 1000

// Config holds the traversal-facing configuration.
type Config struct {
	Labels label.Config
	// Containers are container entries declared purely by name; they are
	// appended after all discovered content.
	Containers []string
}

// Engine builds index entries from a host handle.
type Engine struct {
	cfg      Config
	pipeline *filter.Pipeline
	logger   *zap.Logger
}

// New creates a traversal engine.
func New(cfg Config, pipeline *filter.Pipeline, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, pipeline: pipeline, logger: logger}
}

// Build walks both collections and returns the entry list in sequence order.
// A bad node degrades that one entry, never the whole build.
func (e *Engine) Build(h host.Handle) []domain.IndexEntry {
	var entries []domain.IndexEntry
	seen := map[string]bool{}

	primaryLen := 0
	if primary := h.Primary(); primary != nil {
		items := primary.Items()
		primaryLen = len(items)
		for i, n := range items {
			entries = e.appendNode(entries, seen, h, n, i, i, domain.SourcePrimary)
		}
	}
	if secondary := h.Secondary(); secondary != nil {
		for i, n := range secondary.Items() {
			global := primaryLen + i
			entries = e.appendNode(entries, seen, h, n, global, i, domain.SourceSecondary)
		}
	}

	entries = e.appendContainers(entries, seen)
	return entries
}

// appendNode emits the entry for one top-level node plus its children.
// ordinal is the node's position within its own collection, used for the
// "Kind N" label fallback.
func (e *Engine) appendNode(
	entries []domain.IndexEntry, seen map[string]bool,
	h host.Handle, n host.Node, globalIndex, ordinal int, source domain.Source,
) (out []domain.IndexEntry) {
	out = entries
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("node traversal panicked, entry skipped",
				zap.Int("index", globalIndex), zap.Any("panic", r))
			out = entries
		}
	}()

	media := resolveMedia(n)
	if media == nil {
		e.logger.Warn("node has no media payload, skipped", zap.Int("index", globalIndex))
		return out
	}

	if classify.IsModelClass(media) {
		return e.appendModel(out, seen, n, media, globalIndex, ordinal, source)
	}
	return e.appendPanorama(out, seen, h, n, media, globalIndex, ordinal, source)
}

func (e *Engine) appendPanorama(
	entries []domain.IndexEntry, seen map[string]bool,
	h host.Handle, n, media host.Node, globalIndex, ordinal int, source domain.Source,
) []domain.IndexEntry {
	parent, ok := e.makeEntry(media, nodeOrMediaLabel(n, media), source, globalIndex, -1, "", ordinal)
	if ok {
		// The wrapper node's own id is the host reference; the media payload's
		// id stays on Identifier. Dataset rows referencing either still match.
		if id := n.ID(); id != "" {
			parent.HostID = id
		}
		if e.remember(seen, &parent) {
			entries = append(entries, parent)
		}
	}

	for j, overlay := range detectOverlays(h, media) {
		if overlay == nil {
			continue
		}
		seq := (globalIndex+1)*childStride + j
		child, ok := e.makeEntry(overlay, overlay.Label(), source, seq, globalIndex, parent.Label, j)
		if !ok {
			continue
		}
		if cam, k := overlay.(host.CameraHinted); k {
			if yaw, pitch, fov, has := cam.Camera(); has {
				child.CameraHint = &domain.CameraHint{Yaw: yaw, Pitch: pitch, FieldOfView: fov}
			}
		}
		if e.remember(seen, &child) {
			entries = append(entries, child)
		}
	}
	return entries
}

func (e *Engine) appendModel(
	entries []domain.IndexEntry, seen map[string]bool,
	n, media host.Node, globalIndex, ordinal int, source domain.Source,
) []domain.IndexEntry {
	parent, ok := e.makeEntry(media, nodeOrMediaLabel(n, media), source, globalIndex, -1, "", ordinal)
	if ok {
		parent.Kind = domain.KindThreeDModel
		if id := n.ID(); id != "" {
			parent.HostID = id
		}
		if e.remember(seen, &parent) {
			entries = append(entries, parent)
		}
	}

	objects, _ := media.(host.ObjectProvider)
	if objects == nil {
		return entries
	}
	for j, obj := range objects.Objects() {
		if obj == nil {
			continue
		}
		seq := (globalIndex+1)*childStride + j
		child, ok := e.makeEntry(obj, obj.Label(), source, seq, globalIndex, parent.Label, j)
		if !ok {
			continue
		}
		if child.Kind != domain.KindThreeDHotspot {
			child.Kind = domain.KindThreeDModelObject
		}
		if pos, k := obj.(host.Positioned); k {
			if x, y, z, has := pos.Position(); has {
				child.SpatialHint = &domain.SpatialHint{X: x, Y: y, Z: z}
			}
		}
		if e.remember(seen, &child) {
			entries = append(entries, child)
		}
	}
	return entries
}

func (e *Engine) appendContainers(entries []domain.IndexEntry, seen map[string]bool) []domain.IndexEntry {
	next := 0
	for _, entry := range entries {
		if entry.SequenceIndex >= next {
			next = entry.SequenceIndex + 1
		}
	}
	for _, name := range e.cfg.Containers {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if e.pipeline != nil && !e.pipeline.Allow(domain.KindContainer, name, nil, "") {
			continue
		}
		entry := domain.IndexEntry{
			Kind:                domain.KindContainer,
			Source:              domain.SourceContainer,
			Label:               name,
			OriginalLabel:       name,
			Identifier:          name,
			HostID:              name,
			SequenceIndex:       next,
			ParentSequenceIndex: -1,
			IsContainer:         true,
		}
		if e.remember(seen, &entry) {
			entries = append(entries, entry)
			next++
		}
	}
	return entries
}

// makeEntry classifies, labels and filters one node. rawLabel is the
// pre-fallback label chosen by the caller (a top-level node may carry its
// label on the wrapper rather than the media payload).
func (e *Engine) makeEntry(
	node host.Node, rawLabel string, source domain.Source,
	seq, parentSeq int, parentLabel string, ordinal int,
) (domain.IndexEntry, bool) {
	kind := classify.Classify(node, rawLabel)

	// Membership is decided on the pre-fallback label so the emptiness and
	// substring rules see real content, not generated names.
	if e.pipeline != nil && !e.pipeline.Allow(kind, rawLabel, node.Tags(), node.Subtitle()) {
		return domain.IndexEntry{}, false
	}

	resolved := label.Resolve(e.cfg.Labels, rawLabel, node.Subtitle(), node.Tags(),
		label.Context{Kind: kind, Identifier: node.ID(), Index: ordinal})

	return domain.IndexEntry{
		Kind:                kind,
		Source:              source,
		Label:               resolved,
		OriginalLabel:       rawLabel,
		Subtitle:            node.Subtitle(),
		Tags:                append([]string(nil), node.Tags()...),
		Identifier:          node.ID(),
		HostID:              node.ID(),
		SequenceIndex:       seq,
		ParentSequenceIndex: parentSeq,
		ParentLabel:         parentLabel,
	}, true
}

// remember enforces the (source, identifier) dedup invariant; the first
// entry wins.
func (e *Engine) remember(seen map[string]bool, entry *domain.IndexEntry) bool {
	key := entry.Key()
	if key == "" {
		return true
	}
	if seen[key] {
		e.logger.Debug("duplicate entry skipped", zap.String("key", key))
		return false
	}
	seen[key] = true
	return true
}

// resolveMedia returns the node's media payload. Nodes without a media
// accessor act as their own payload; an accessor returning nil means the
// source is absent and the node is skipped.
func resolveMedia(n host.Node) host.Node {
	if n == nil {
		return nil
	}
	if mp, ok := n.(host.MediaProvider); ok {
		return mp.Media()
	}
	return n
}

func nodeOrMediaLabel(n, media host.Node) string {
	if l := strings.TrimSpace(media.Label()); l != "" {
		return l
	}
	return strings.TrimSpace(n.Label())
}
