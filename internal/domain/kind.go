package domain

import "strings"

// Kind is the closed classification of an index entry.
type Kind string

// Element kinds. Unknown inputs degrade to KindElement, never to an empty kind.
const (
	KindPanorama          Kind = "panorama"
	KindHotspot           Kind = "hotspot"
	KindPolygon           Kind = "polygon"
	KindVideo             Kind = "video"
	KindWebframe          Kind = "webframe"
	KindImage             Kind = "image"
	KindText              Kind = "text"
	KindProjectedImage    Kind = "projected-image"
	KindElement           Kind = "element"
	KindThreeDHotspot     Kind = "3d-hotspot"
	KindThreeDModel       Kind = "3d-model"
	KindThreeDModelObject Kind = "3d-model-object"
	KindContainer         Kind = "container"
)

// GroupOrder is the fixed kind priority used when ordering result groups.
// Kinds absent from this list sort after it, in discovery order.
var GroupOrder = []Kind{
	KindPanorama,
	KindHotspot,
	KindPolygon,
	KindVideo,
	KindWebframe,
	KindImage,
	KindText,
	KindProjectedImage,
	KindThreeDModel,
	KindThreeDHotspot,
	KindElement,
	KindContainer,
}

var displayNames = map[Kind]string{
	KindPanorama:          "Panorama",
	KindHotspot:           "Hotspot",
	KindPolygon:           "Polygon",
	KindVideo:             "Video",
	KindWebframe:          "Webframe",
	KindImage:             "Image",
	KindText:              "Text",
	KindProjectedImage:    "Projected Image",
	KindElement:           "Element",
	KindThreeDHotspot:     "3D Hotspot",
	KindThreeDModel:       "3D Model",
	KindThreeDModelObject: "3D Model Object",
	KindContainer:         "Container",
}

var parseAliases = map[string]Kind{
	"projectedimage": KindProjectedImage,
	"projected":      KindProjectedImage,
	"3dhotspot":      KindThreeDHotspot,
	"sprite":         KindThreeDHotspot,
	"3dmodel":        KindThreeDModel,
	"model3d":        KindThreeDModel,
	"3dmodelobject":  KindThreeDModelObject,
	"frame":          KindWebframe,
	"photo":          KindImage,
}

// IsValid reports whether k is one of the closed enumeration.
func (k Kind) IsValid() bool {
	_, ok := displayNames[k]
	return ok
}

// DisplayName returns the human-readable kind name ("3d-model" -> "3D Model").
func (k Kind) DisplayName() string {
	if name, ok := displayNames[k]; ok {
		return name
	}
	return displayNames[KindElement]
}

// ParseKind resolves a free-form kind label (for example from an external
// dataset row) to a Kind. Matching is case-insensitive and tolerant of
// spaces, dashes and underscores. Unknown labels return KindElement, false.
func ParseKind(s string) (Kind, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(norm)
	if norm == "" {
		return KindElement, false
	}
	for k, name := range displayNames {
		flat := strings.NewReplacer(" ", "", "-", "").Replace(strings.ToLower(name))
		if norm == flat || norm == strings.NewReplacer("-", "").Replace(string(k)) {
			return k, true
		}
	}
	if k, ok := parseAliases[norm]; ok {
		return k, true
	}
	return KindElement, false
}
