// Package host defines the contract consumed from the tour player. The
// player object is opaque and exposes the same concept through several
// shapes, so everything beyond the required core is an optional capability
// discovered via type assertion. Each call site has a fallback when a
// capability is missing.
package host

// Node is one element of the tour scene graph. Nodes are host-owned and
// read-only to this module.
type Node interface {
	// ID returns the host identifier, empty when the node has none.
	ID() string
	// Class returns the host's native class name.
	Class() string
	Label() string
	Subtitle() string
	Tags() []string
	// Has reports whether the node carries the named structural property
	// ("url", "video", "image", "model3d", "sprite3d", "projected", ...).
	Has(prop string) bool
	// VertexCount returns the polygon vertex count, 0 for non-polygon nodes.
	VertexCount() int
}

// Collection is an ordered list of nodes with index selection.
type Collection interface {
	Items() []Node
	// SelectIndex navigates to the node at i. Out-of-range is a host no-op.
	SelectIndex(i int)
	// CurrentIndex returns the index of the active node, -1 when none.
	CurrentIndex() int
}

// Handle is the player handle: the ordered primary collection plus an
// optional secondary/root collection.
type Handle interface {
	Primary() Collection
	// Secondary returns nil when the host has no secondary collection.
	Secondary() Collection
}

// Optional node capabilities, probed in the traversal engine's overlay
// detection chain. Only the first shape that yields results is used.

// MediaProvider exposes a top-level node's media payload. Top-level nodes
// without it are used as their own payload.
type MediaProvider interface {
	Media() Node
}

// OverlayProvider is the direct overlay accessor shape.
type OverlayProvider interface {
	Overlays() []Node
}

// AttachmentCarrier is the flat-property overlay shape.
type AttachmentCarrier interface {
	Attachments() []Node
}

// TaggedOverlayProvider is the tag-grouped overlay accessor shape.
type TaggedOverlayProvider interface {
	OverlaysByTag() map[string][]Node
}

// ObjectProvider exposes a 3D model's sub-object collection.
type ObjectProvider interface {
	Objects() []Node
}

// CameraHinted exposes the stored view orientation of an overlay node.
type CameraHinted interface {
	Camera() (yaw, pitch, fov float64, ok bool)
}

// Positioned exposes the spatial position of a 3D object node.
type Positioned interface {
	Position() (x, y, z float64, ok bool)
}

// VisibilityToggler allows flipping a node's visibility flag directly.
type VisibilityToggler interface {
	Visible() bool
	SetVisible(v bool)
}

// Optional handle capabilities.

// ClassIndex is a global class-based node lookup. ownerID scopes the lookup
// to nodes attached to the owning node; empty ownerID searches globally.
type ClassIndex interface {
	NodesByClass(class, ownerID string) []Node
}

// NodeActivator activates a node directly by id. Returns false when the id
// is not (yet) resolvable; callers retry with backoff.
type NodeActivator interface {
	ActivateByID(id string) bool
}

// CameraApplier applies a view orientation to the active panorama.
type CameraApplier interface {
	ApplyCamera(yaw, pitch, fov float64)
}

// OverlayFocuser focuses an overlay on the active panorama by name.
type OverlayFocuser interface {
	FocusOverlay(name string) bool
}

// MenuToggler toggles a named container through the host menu collaborator.
type MenuToggler interface {
	ToggleContainer(name string) bool
}

// NodeLookup resolves a node by id, used as the container-toggle fallback.
type NodeLookup interface {
	NodeByID(id string) (Node, bool)
}

// ActivationBinder is the optional per-node one-shot "activation begins"
// event. fn runs once, right before the host activates the node with the
// given id. The returned cancel removes the binding without firing it.
type ActivationBinder interface {
	OnActivationBegin(id string, fn func()) (cancel func())
}
