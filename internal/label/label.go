// Package label resolves the display label of an index entry through an
// ordered, configuration-gated fallback chain. Resolution is deterministic
// and never returns an empty string.
package label

import (
	"fmt"
	"strings"

	"github.com/openpano/tourdex/internal/domain"
)

// DefaultPlaceholder is the final fallback when every other step is
// disabled or empty.
const DefaultPlaceholder = "[Unnamed Item]"

// Config gates the individual fallback steps.
type Config struct {
	// SubtitleOnly switches the display to subtitles wholesale: when set and
	// a subtitle is present, it wins over the label.
	SubtitleOnly bool `yaml:"subtitle_only"`
	// SubtitleAsLabel enables the subtitle fallback for blank labels.
	SubtitleAsLabel bool `yaml:"subtitle_as_label"`
	// TagsAsLabel enables the joined-tags fallback.
	TagsAsLabel bool `yaml:"tags_as_label"`
	// KindAsLabel enables the "Kind N" fallback.
	KindAsLabel bool `yaml:"kind_as_label"`
	// Placeholder overrides DefaultPlaceholder.
	Placeholder string `yaml:"placeholder"`
}

// Context carries the entry facts the kind fallback needs.
type Context struct {
	Kind       domain.Kind
	Identifier string
	Index      int
}

// Resolve returns the display string for an entry. The chain, each step
// gated by its Config flag:
//
//  1. subtitle, in subtitle-only mode
//  2. trimmed label
//  3. subtitle
//  4. joined tags
//  5. "Kind N" (or the bare kind name when no index is known)
//  6. placeholder
func Resolve(cfg Config, lbl, subtitle string, tags []string, ctx Context) string {
	if cfg.SubtitleOnly {
		if s := strings.TrimSpace(subtitle); s != "" {
			return s
		}
	}

	if l := strings.TrimSpace(lbl); l != "" {
		return l
	}

	if cfg.SubtitleAsLabel {
		if s := strings.TrimSpace(subtitle); s != "" {
			return s
		}
	}

	if cfg.TagsAsLabel {
		if joined := joinTags(tags); joined != "" {
			return joined
		}
	}

	if cfg.KindAsLabel {
		kind := ctx.Kind
		if !kind.IsValid() {
			kind = domain.KindElement
		}
		if ctx.Index >= 0 {
			return fmt.Sprintf("%s %d", kind.DisplayName(), ctx.Index+1)
		}
		return kind.DisplayName()
	}

	if cfg.Placeholder != "" {
		return cfg.Placeholder
	}
	return DefaultPlaceholder
}

func joinTags(tags []string) string {
	kept := tags[:0:0]
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			kept = append(kept, t)
		}
	}
	return strings.Join(kept, ", ")
}
