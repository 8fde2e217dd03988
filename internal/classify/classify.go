// Package classify maps raw scene-graph nodes onto the closed element kind
// enumeration. Classification is a pure function of the node shape and never
// fails: anything unrecognized degrades to domain.KindElement.
package classify

import (
	"strings"

	"github.com/openpano/tourdex/internal/domain"
	"github.com/openpano/tourdex/internal/host"
)

const projectedKeyword = "projected"

var imageKeywords = []string{"image", "photo", "picture"}

// classByName maps the host's native class names onto kinds. 3D object
// subclasses collapse to ThreeDModelObject and sprite subclasses to
// ThreeDHotspot; the host distinguishes them, the index does not.
var classByName = map[string]domain.Kind{
	"panorama":              domain.KindPanorama,
	"panoramaplayer":        domain.KindPanorama,
	"hotspot":               domain.KindHotspot,
	"hotspotpanoramaoverlay": domain.KindHotspot,
	"polygonoverlay":        domain.KindPolygon,
	"videooverlay":          domain.KindVideo,
	"videopanoramaoverlay":  domain.KindVideo,
	"webframeoverlay":       domain.KindWebframe,
	"imageoverlay":          domain.KindImage,
	"textoverlay":           domain.KindText,
	"textpanoramaoverlay":   domain.KindText,
	"projectedimageoverlay": domain.KindProjectedImage,
	"model3d":               domain.KindThreeDModel,
	"model3dobject":         domain.KindThreeDModelObject,
	"meshobject":            domain.KindThreeDModelObject,
	"groupobject":           domain.KindThreeDModelObject,
	"sprite3d":              domain.KindThreeDHotspot,
	"spritemodel3dobject":   domain.KindThreeDHotspot,
	"spritehotspotobject":   domain.KindThreeDHotspot,
	"container":             domain.KindContainer,
}

// labelPatterns is the last-resort substring table, checked in order.
var labelPatterns = []struct {
	substr string
	kind   domain.Kind
}{
	{"web", domain.KindWebframe},
	{"goto", domain.KindHotspot},
	{"info", domain.KindHotspot},
	{"3d-model", domain.KindThreeDModel},
	{"video", domain.KindVideo},
	{"text", domain.KindText},
}

// Classify determines the element kind of a node. knownLabel is the label
// already resolved by the caller, when available; it participates in the
// keyword probes alongside the node's own identifier and label.
func Classify(n host.Node, knownLabel string) domain.Kind {
	if n == nil {
		return domain.KindElement
	}

	id := strings.ToLower(n.ID())
	label := strings.ToLower(n.Label())
	if knownLabel != "" {
		label = strings.ToLower(knownLabel)
	}

	kind := classifyNode(n, id, label)

	// A hotspot whose label says "polygon" is reclassified: hosts reuse the
	// hotspot class for polygon overlays and only the label tells them apart.
	// Heuristic, not a guarantee.
	if kind == domain.KindHotspot && strings.Contains(label, "polygon") {
		return domain.KindPolygon
	}
	return kind
}

func classifyNode(n host.Node, id, label string) domain.Kind {
	// 1. Explicit projected flag or projected keyword.
	if n.Has("projected") ||
		strings.Contains(id, projectedKeyword) || strings.Contains(label, projectedKeyword) {
		return domain.KindProjectedImage
	}

	// 2. Polygon geometry; embedded media wins over the bare polygon.
	if n.VertexCount() >= 3 {
		if n.Has("video") {
			return domain.KindVideo
		}
		if n.Has("image") {
			return domain.KindImage
		}
		return domain.KindPolygon
	}

	// 3. Generic image keywords (projected handled above).
	for _, kw := range imageKeywords {
		if strings.Contains(id, kw) || strings.Contains(label, kw) {
			return domain.KindImage
		}
	}

	// 4. Sprite identifier.
	if strings.Contains(id, "sprite") {
		return domain.KindThreeDHotspot
	}

	// 5. Known native class names.
	if kind, ok := classByName[strings.ToLower(n.Class())]; ok {
		return kind
	}

	// 6. Structural property probes.
	switch {
	case n.Has("url"):
		return domain.KindWebframe
	case n.Has("video"):
		return domain.KindVideo
	case n.Has("vertices") || n.Has("polygon"):
		return domain.KindPolygon
	case n.Has("model3d"):
		return domain.KindThreeDModel
	case n.Has("sprite3d"):
		return domain.KindThreeDHotspot
	}

	// 7. Label substring table.
	for _, p := range labelPatterns {
		if strings.Contains(label, p.substr) {
			return p.kind
		}
	}

	// 8. Default.
	return domain.KindElement
}

// OverlayClasses returns the native class names of overlay attachments, for
// class-based overlay lookups.
func OverlayClasses() []string {
	return []string{
		"hotspotpanoramaoverlay",
		"hotspot",
		"polygonoverlay",
		"videooverlay",
		"videopanoramaoverlay",
		"webframeoverlay",
		"imageoverlay",
		"textoverlay",
		"textpanoramaoverlay",
		"projectedimageoverlay",
	}
}

// ObjectClasses returns the native class names of 3D model sub-objects, for
// the dispatcher's label-based activation fallback.
func ObjectClasses() []string {
	return []string{
		"model3dobject",
		"meshobject",
		"groupobject",
		"sprite3d",
		"spritemodel3dobject",
		"spritehotspotobject",
	}
}

// IsModelClass reports whether the node's native class is a 3D model
// container whose sub-objects the traversal engine should recurse into.
func IsModelClass(n host.Node) bool {
	return classByName[strings.ToLower(n.Class())] == domain.KindThreeDModel
}
