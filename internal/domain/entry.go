package domain

import "strings"

// Source identifies which traversal root produced an entry.
type Source string

// Entry sources.
const (
	SourcePrimary   Source = "primary"
	SourceSecondary Source = "secondary"
	SourceExternal  Source = "external"
	SourceContainer Source = "container"
)

// CameraHint is the view orientation applied when dispatching an overlay entry.
type CameraHint struct {
	Yaw         float64 `json:"yaw"`
	Pitch       float64 `json:"pitch"`
	FieldOfView float64 `json:"fov"`
}

// SpatialHint is the position of a 3D-object entry inside its model.
type SpatialHint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// IndexEntry is one searchable unit produced by the index builder pipeline.
// The pipeline owns and mutates entries until they are handed to the search
// index; from then on they are shared read-only.
type IndexEntry struct {
	Kind   Kind   `json:"kind"`
	Source Source `json:"source"`

	// Label is the resolved display label; OriginalLabel is the pre-fallback
	// label as read from the host node (may be empty).
	Label         string   `json:"label"`
	OriginalLabel string   `json:"original_label,omitempty"`
	Subtitle      string   `json:"subtitle,omitempty"`
	Tags          []string `json:"tags,omitempty"`

	// Identifier is the host node id, when the host exposes one.
	Identifier string `json:"identifier,omitempty"`

	// SequenceIndex is the stable sort key for one build. Child entries point
	// back at their parent via ParentSequenceIndex (-1 when top-level).
	SequenceIndex       int    `json:"sequence_index"`
	ParentSequenceIndex int    `json:"parent_sequence_index"`
	ParentLabel         string `json:"parent_label,omitempty"`

	ExternalRow *ExternalRow `json:"external_row,omitempty"`
	CameraHint  *CameraHint  `json:"camera_hint,omitempty"`
	SpatialHint *SpatialHint `json:"spatial_hint,omitempty"`

	RelevanceBoost float64 `json:"relevance_boost"`

	// IsStandalone marks an entry synthesized purely from an external row.
	// Standalone entries carry no host reference.
	IsStandalone bool `json:"is_standalone,omitempty"`
	IsContainer  bool `json:"is_container,omitempty"`

	// HostID is a weak reference back to the owning host node: an id for
	// later lookup, never the node itself.
	HostID string `json:"host_id,omitempty"`
}

// Key returns the (source, identifier) dedup key. Entries without an
// identifier have no key and are exempt from the dedup invariant.
func (e *IndexEntry) Key() string {
	if e.Identifier == "" {
		return ""
	}
	return string(e.Source) + "/" + e.Identifier
}

// HasOwnLabel reports whether the entry had a non-blank label before the
// fallback chain ran.
func (e *IndexEntry) HasOwnLabel() bool {
	return strings.TrimSpace(e.OriginalLabel) != ""
}

// HasTag reports case-insensitive membership of tag in the entry's tag list.
func (e *IndexEntry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}
