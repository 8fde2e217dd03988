package traverse

import (
	"sort"

	"github.com/openpano/tourdex/internal/classify"
	"github.com/openpano/tourdex/internal/host"
)

// The host exposes overlay attachments through several shapes depending on
// player version. Detection is a capability-probe chain: an ordered list of
// strategies with a uniform signature, tried until one yields results. Only
// the first successful strategy's results are used.

type overlayStrategy func(h host.Handle, n host.Node) []host.Node

var overlayStrategies = []overlayStrategy{
	overlaysDirect,
	overlaysFlat,
	overlaysTagged,
	overlaysByClassScoped,
	overlaysByClassGlobal,
}

func detectOverlays(h host.Handle, n host.Node) []host.Node {
	for _, strategy := range overlayStrategies {
		if found := strategy(h, n); len(found) > 0 {
			return found
		}
	}
	return nil
}

func overlaysDirect(_ host.Handle, n host.Node) []host.Node {
	if p, ok := n.(host.OverlayProvider); ok {
		return p.Overlays()
	}
	return nil
}

func overlaysFlat(_ host.Handle, n host.Node) []host.Node {
	if p, ok := n.(host.AttachmentCarrier); ok {
		return p.Attachments()
	}
	return nil
}

// overlaysTagged flattens the tag-grouped accessor. Tag groups are visited
// in sorted tag order so the emitted sequence is stable.
func overlaysTagged(_ host.Handle, n host.Node) []host.Node {
	p, ok := n.(host.TaggedOverlayProvider)
	if !ok {
		return nil
	}
	grouped := p.OverlaysByTag()
	if len(grouped) == 0 {
		return nil
	}
	tags := make([]string, 0, len(grouped))
	for tag := range grouped {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	var out []host.Node
	for _, tag := range tags {
		out = append(out, grouped[tag]...)
	}
	return out
}

func overlaysByClassScoped(h host.Handle, n host.Node) []host.Node {
	return overlaysByClass(h, n.ID())
}

// overlaysByClassGlobal is the loosest fallback: an unscoped class lookup.
// On hosts that only expose a global registry this attributes every overlay
// of a known class to the node being scanned; accepted degrade for an opaque
// API surface.
func overlaysByClassGlobal(h host.Handle, _ host.Node) []host.Node {
	return overlaysByClass(h, "")
}

func overlaysByClass(h host.Handle, ownerID string) []host.Node {
	idx, ok := h.(host.ClassIndex)
	if !ok {
		return nil
	}
	var out []host.Node
	for _, class := range classify.OverlayClasses() {
		out = append(out, idx.NodesByClass(class, ownerID)...)
	}
	return out
}
