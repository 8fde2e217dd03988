package host

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// StaticNode is an in-memory Node used by the demo binary and as the shared
// test double. It implements every optional node capability; capabilities
// with no data behave as absent.
type StaticNode struct {
	NodeID    string                   `json:"id"`
	NodeClass string                   `json:"class"`
	NodeLabel string                   `json:"label"`
	NodeSub   string                   `json:"subtitle"`
	NodeTags  []string                 `json:"tags"`
	Props     []string                 `json:"props"`
	Vertices  int                      `json:"vertices"`
	MediaNode *StaticNode              `json:"media"`
	Overlay   []*StaticNode            `json:"overlays"`
	Attached  []*StaticNode            `json:"attachments"`
	ByTag     map[string][]*StaticNode `json:"overlays_by_tag"`
	Objs      []*StaticNode            `json:"objects"`
	Cam       *StaticCamera            `json:"camera"`
	Pos       *StaticPosition          `json:"position"`
	Shown     bool                     `json:"visible"`
}

// StaticCamera is the stored view orientation of a StaticNode.
type StaticCamera struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	FOV   float64 `json:"fov"`
}

// StaticPosition is the spatial position of a StaticNode.
type StaticPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

var _ Node = (*StaticNode)(nil)

// ID implements Node.
func (n *StaticNode) ID() string { return n.NodeID }

// Class implements Node.
func (n *StaticNode) Class() string { return n.NodeClass }

// Label implements Node.
func (n *StaticNode) Label() string { return n.NodeLabel }

// Subtitle implements Node.
func (n *StaticNode) Subtitle() string { return n.NodeSub }

// Tags implements Node.
func (n *StaticNode) Tags() []string { return n.NodeTags }

// Has implements Node.
func (n *StaticNode) Has(prop string) bool {
	for _, p := range n.Props {
		if strings.EqualFold(p, prop) {
			return true
		}
	}
	return false
}

// VertexCount implements Node.
func (n *StaticNode) VertexCount() int { return n.Vertices }

// Media implements MediaProvider. Returns the node itself when no separate
// payload is attached.
func (n *StaticNode) Media() Node {
	if n.MediaNode == nil {
		return n
	}
	return n.MediaNode
}

// Overlays implements OverlayProvider.
func (n *StaticNode) Overlays() []Node { return liftNodes(n.Overlay) }

// Attachments implements AttachmentCarrier.
func (n *StaticNode) Attachments() []Node { return liftNodes(n.Attached) }

// OverlaysByTag implements TaggedOverlayProvider.
func (n *StaticNode) OverlaysByTag() map[string][]Node {
	if len(n.ByTag) == 0 {
		return nil
	}
	out := make(map[string][]Node, len(n.ByTag))
	for tag, nodes := range n.ByTag {
		out[tag] = liftNodes(nodes)
	}
	return out
}

// Objects implements ObjectProvider.
func (n *StaticNode) Objects() []Node { return liftNodes(n.Objs) }

// Camera implements CameraHinted.
func (n *StaticNode) Camera() (yaw, pitch, fov float64, ok bool) {
	if n.Cam == nil {
		return 0, 0, 0, false
	}
	return n.Cam.Yaw, n.Cam.Pitch, n.Cam.FOV, true
}

// Position implements Positioned.
func (n *StaticNode) Position() (x, y, z float64, ok bool) {
	if n.Pos == nil {
		return 0, 0, 0, false
	}
	return n.Pos.X, n.Pos.Y, n.Pos.Z, true
}

// Visible implements VisibilityToggler.
func (n *StaticNode) Visible() bool { return n.Shown }

// SetVisible implements VisibilityToggler.
func (n *StaticNode) SetVisible(v bool) { n.Shown = v }

func liftNodes(nodes []*StaticNode) []Node {
	if len(nodes) == 0 {
		return nil
	}
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = n
	}
	return out
}

// StaticCollection is an in-memory Collection with one-shot activation
// events: SelectIndex fires and removes any handler bound to the selected
// node's id.
type StaticCollection struct {
	mu       sync.Mutex
	items    []*StaticNode
	current  int
	handlers map[string]func()
}

var (
	_ Collection       = (*StaticCollection)(nil)
	_ ActivationBinder = (*StaticCollection)(nil)
)

// NewStaticCollection creates a collection over the given nodes.
func NewStaticCollection(items ...*StaticNode) *StaticCollection {
	return &StaticCollection{items: items, current: -1, handlers: map[string]func(){}}
}

// Items implements Collection.
func (c *StaticCollection) Items() []Node { return liftNodes(c.items) }

// CurrentIndex implements Collection.
func (c *StaticCollection) CurrentIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// SelectIndex implements Collection. Fires the pending activation handler
// for the selected node, if any.
func (c *StaticCollection) SelectIndex(i int) {
	c.mu.Lock()
	if i < 0 || i >= len(c.items) {
		c.mu.Unlock()
		return
	}
	c.current = i
	id := c.items[i].NodeID
	fn := c.handlers[id]
	delete(c.handlers, id)
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// OnActivationBegin implements ActivationBinder. At most one handler per
// node id is kept; binding replaces any previous one.
func (c *StaticCollection) OnActivationBegin(id string, fn func()) (cancel func()) {
	c.mu.Lock()
	c.handlers[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.handlers, id)
		c.mu.Unlock()
	}
}

// StaticHandle is an in-memory Handle implementing every optional handle
// capability. It backs the demo binary (loaded from a JSON scene file) and
// package tests across the module.
type StaticHandle struct {
	mu        sync.Mutex
	primary   *StaticCollection
	secondary *StaticCollection

	// FailActivations makes ActivateByID fail the given number of times per
	// id before succeeding; ids absent from all nodes always fail.
	FailActivations map[string]int

	activated    []string
	camYaw       float64
	camPitch     float64
	camFOV       float64
	camApplied   int
	focused      []string
	menuDisabled bool
	toggled      []string
}

var (
	_ Handle         = (*StaticHandle)(nil)
	_ ClassIndex     = (*StaticHandle)(nil)
	_ NodeActivator  = (*StaticHandle)(nil)
	_ CameraApplier  = (*StaticHandle)(nil)
	_ OverlayFocuser = (*StaticHandle)(nil)
	_ MenuToggler    = (*StaticHandle)(nil)
	_ NodeLookup     = (*StaticHandle)(nil)
)

// NewStaticHandle creates a handle over the given collections. secondary may
// be nil.
func NewStaticHandle(primary, secondary *StaticCollection) *StaticHandle {
	return &StaticHandle{
		primary:         primary,
		secondary:       secondary,
		FailActivations: map[string]int{},
	}
}

// Primary implements Handle.
func (h *StaticHandle) Primary() Collection { return h.primary }

// Secondary implements Handle. Returns nil when absent (typed nil guarded).
func (h *StaticHandle) Secondary() Collection {
	if h.secondary == nil {
		return nil
	}
	return h.secondary
}

// DisableMenu makes ToggleContainer report failure, exercising the direct
// visibility-flip fallback.
func (h *StaticHandle) DisableMenu() { h.menuDisabled = true }

// NodesByClass implements ClassIndex.
func (h *StaticHandle) NodesByClass(class, ownerID string) []Node {
	var out []Node
	for _, n := range h.allNodes() {
		if ownerID != "" && !attachedTo(n, ownerID, h.allNodes()) {
			continue
		}
		if strings.EqualFold(n.NodeClass, class) {
			out = append(out, n)
		}
	}
	return out
}

// ActivateByID implements NodeActivator.
func (h *StaticHandle) ActivateByID(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if left, ok := h.FailActivations[id]; ok && left > 0 {
		h.FailActivations[id] = left - 1
		return false
	}
	if h.findNode(id) == nil {
		return false
	}
	h.activated = append(h.activated, id)
	return true
}

// Activated returns the ids activated so far, in order.
func (h *StaticHandle) Activated() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.activated...)
}

// ApplyCamera implements CameraApplier.
func (h *StaticHandle) ApplyCamera(yaw, pitch, fov float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.camYaw, h.camPitch, h.camFOV = yaw, pitch, fov
	h.camApplied++
}

// AppliedCamera returns the last applied camera and the apply count.
func (h *StaticHandle) AppliedCamera() (yaw, pitch, fov float64, count int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.camYaw, h.camPitch, h.camFOV, h.camApplied
}

// FocusOverlay implements OverlayFocuser.
func (h *StaticHandle) FocusOverlay(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.focused = append(h.focused, name)
	return true
}

// Focused returns the overlay names focused so far.
func (h *StaticHandle) Focused() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.focused...)
}

// ToggleContainer implements MenuToggler.
func (h *StaticHandle) ToggleContainer(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.menuDisabled {
		return false
	}
	h.toggled = append(h.toggled, name)
	return true
}

// Toggled returns the container names toggled through the menu so far.
func (h *StaticHandle) Toggled() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.toggled...)
}

// NodeByID implements NodeLookup.
func (h *StaticHandle) NodeByID(id string) (Node, bool) {
	if n := h.findNode(id); n != nil {
		return n, true
	}
	return nil, false
}

func (h *StaticHandle) findNode(id string) *StaticNode {
	for _, n := range h.allNodes() {
		if n.NodeID == id {
			return n
		}
	}
	return nil
}

// allNodes flattens collections, media payloads, overlays and sub-objects
// into one list, depth-first, in collection order.
func (h *StaticHandle) allNodes() []*StaticNode {
	var out []*StaticNode
	var walk func(n *StaticNode)
	walk = func(n *StaticNode) {
		if n == nil {
			return
		}
		out = append(out, n)
		walk(n.MediaNode)
		for _, c := range n.Overlay {
			walk(c)
		}
		for _, c := range n.Attached {
			walk(c)
		}
		tags := make([]string, 0, len(n.ByTag))
		for tag := range n.ByTag {
			tags = append(tags, tag)
		}
		sort.Strings(tags)
		for _, tag := range tags {
			for _, c := range n.ByTag[tag] {
				walk(c)
			}
		}
		for _, c := range n.Objs {
			walk(c)
		}
	}
	if h.primary != nil {
		for _, n := range h.primary.items {
			walk(n)
		}
	}
	if h.secondary != nil {
		for _, n := range h.secondary.items {
			walk(n)
		}
	}
	return out
}

// attachedTo reports whether node n is a descendant of the node with ownerID.
func attachedTo(n *StaticNode, ownerID string, all []*StaticNode) bool {
	for _, candidate := range all {
		if candidate.NodeID != ownerID {
			continue
		}
		found := false
		var walk func(c *StaticNode)
		walk = func(c *StaticNode) {
			if c == nil || found {
				return
			}
			if c == n {
				found = true
				return
			}
			walk(c.MediaNode)
			for _, child := range c.Overlay {
				walk(child)
			}
			for _, child := range c.Attached {
				walk(child)
			}
			for _, children := range c.ByTag {
				for _, child := range children {
					walk(child)
				}
			}
			for _, child := range c.Objs {
				walk(child)
			}
		}
		for _, child := range candidate.Overlay {
			walk(child)
		}
		for _, child := range candidate.Attached {
			walk(child)
		}
		for _, children := range candidate.ByTag {
			for _, child := range children {
				walk(child)
			}
		}
		for _, child := range candidate.Objs {
			walk(child)
		}
		walk(candidate.MediaNode)
		return found
	}
	return false
}

// sceneFile is the JSON layout consumed by LoadScene.
type sceneFile struct {
	Primary   []*StaticNode `json:"primary"`
	Secondary []*StaticNode `json:"secondary"`
}

// LoadScene builds a StaticHandle from a JSON scene file.
func LoadScene(path string) (*StaticHandle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene %s: %w", path, err)
	}
	var scene sceneFile
	if err := json.Unmarshal(data, &scene); err != nil {
		return nil, fmt.Errorf("parse scene %s: %w", path, err)
	}
	primary := NewStaticCollection(scene.Primary...)
	var secondary *StaticCollection
	if len(scene.Secondary) > 0 {
		secondary = NewStaticCollection(scene.Secondary...)
	}
	return NewStaticHandle(primary, secondary), nil
}
