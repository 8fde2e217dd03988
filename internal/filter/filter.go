// Package filter decides index membership. A pipeline is an ordered chain of
// seven independent stages; any stage rejecting an entry short-circuits the
// rest. The stages are commutative in effect (reject wins) but run in a
// fixed order so cheap checks go first. The rule set is immutable per
// index-build cycle.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/openpano/tourdex/internal/domain"
)

// Mode selects whitelist/blacklist semantics for one rule axis.
type Mode string

// Rule modes.
const (
	ModeNone      Mode = "none"
	ModeWhitelist Mode = "whitelist"
	ModeBlacklist Mode = "blacklist"
)

// MatchKind selects how the top-level value filter compares terms.
type MatchKind string

// Value filter match kinds.
const (
	MatchExact      MatchKind = "exact"
	MatchStartsWith MatchKind = "starts_with"
	MatchContains   MatchKind = "contains"
	MatchRegex      MatchKind = "regex"
)

// ValueRule is the top-level value filter, matched against the normalized
// label with a configurable match kind.
type ValueRule struct {
	Mode  Mode      `yaml:"mode"`
	Match MatchKind `yaml:"match"`
	Terms []string  `yaml:"terms"`
}

// SetRule is a case-insensitive membership rule over one axis.
type SetRule struct {
	Mode   Mode     `yaml:"mode"`
	Values []string `yaml:"values"`
}

// Config is the declarative rule set consumed by New.
type Config struct {
	Value           ValueRule `yaml:"value"`
	Kinds           SetRule   `yaml:"kinds"`
	LabelSubstrings SetRule   `yaml:"labels"`
	Tags            SetRule   `yaml:"tags"`
	MinLabelLength  int       `yaml:"min_label_length"`
	// DropEmptyLabels rejects entries whose pre-fallback label is blank. Off
	// by default: blank entries survive and get generated names downstream.
	DropEmptyLabels bool `yaml:"drop_empty_labels"`
	// IncludeKinds toggles whole kinds off; kinds absent from the map stay
	// included.
	IncludeKinds map[string]bool `yaml:"include"`
}

// Pipeline is a compiled, immutable filter rule set.
type Pipeline struct {
	cfg      Config
	valueRes []*regexp.Regexp
	logger   *zap.Logger
}

// New compiles a pipeline. Regex terms are compiled once here; a malformed
// pattern fails the build rather than every evaluation.
func New(cfg Config, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{cfg: cfg, logger: logger}
	if cfg.Value.Mode != ModeNone && cfg.Value.Mode != "" && cfg.Value.Match == MatchRegex {
		for _, term := range cfg.Value.Terms {
			re, err := regexp.Compile(term)
			if err != nil {
				return nil, fmt.Errorf("value filter pattern %q: %w", term, err)
			}
			p.valueRes = append(p.valueRes, re)
		}
	}
	return p, nil
}

// Allow reports whether an entry with the given facts belongs in the index.
func (p *Pipeline) Allow(kind domain.Kind, lbl string, tags []string, subtitle string) bool {
	// 1. Kind validity. Unknown kinds are allowed (they will have degraded to
	// element upstream); only a structurally empty kind is rejected.
	if strings.TrimSpace(string(kind)) == "" {
		return false
	}
	if !kind.IsValid() {
		p.logger.Info("unrecognized kind allowed through filter", zap.String("kind", string(kind)))
	}

	// 2. Label emptiness and minimum length.
	trimmed := strings.TrimSpace(lbl)
	if trimmed == "" && p.cfg.DropEmptyLabels {
		return false
	}
	if p.cfg.MinLabelLength > 0 && len([]rune(trimmed)) < p.cfg.MinLabelLength {
		return false
	}

	// 3. Top-level value filter against the normalized label.
	if !p.allowValue(Normalize(lbl)) {
		return false
	}

	// 4. Kind whitelist/blacklist.
	if !allowSet(p.cfg.Kinds, func(v string) bool {
		return strings.EqualFold(v, string(kind)) || strings.EqualFold(v, kind.DisplayName())
	}) {
		return false
	}

	// 5. Label substring whitelist/blacklist (always "contains", unlike the
	// value filter's configurable match kind).
	lowerLabel := strings.ToLower(lbl)
	if !allowSet(p.cfg.LabelSubstrings, func(v string) bool {
		return v != "" && strings.Contains(lowerLabel, strings.ToLower(v))
	}) {
		return false
	}

	// 6. Tag whitelist/blacklist. An entry with zero tags trivially fails a
	// tag whitelist.
	if !allowSet(p.cfg.Tags, func(v string) bool {
		for _, t := range tags {
			if strings.EqualFold(t, v) {
				return true
			}
		}
		return false
	}) {
		return false
	}

	// 7. Per-kind inclusion toggle.
	if include, ok := p.lookupToggle(kind); ok && !include {
		return false
	}

	return true
}

func (p *Pipeline) allowValue(normalized string) bool {
	rule := p.cfg.Value
	switch rule.Mode {
	case ModeWhitelist:
		if len(rule.Terms) == 0 {
			return true
		}
		return p.valueMatches(normalized, false)
	case ModeBlacklist:
		return !p.valueMatches(normalized, true)
	default:
		return true
	}
}

// valueMatches evaluates the configured match kind. Blacklists additionally
// treat plain terms with "contains" semantics: a forbidden word anywhere in
// the label rejects it.
func (p *Pipeline) valueMatches(normalized string, blacklist bool) bool {
	if p.cfg.Value.Match == MatchRegex {
		for _, re := range p.valueRes {
			if re.MatchString(normalized) {
				return true
			}
		}
		return false
	}
	for _, term := range p.cfg.Value.Terms {
		t := Normalize(term)
		if t == "" {
			continue
		}
		switch p.cfg.Value.Match {
		case MatchStartsWith:
			if strings.HasPrefix(normalized, t) {
				return true
			}
		case MatchContains:
			if strings.Contains(normalized, t) {
				return true
			}
		default: // exact
			if normalized == t {
				return true
			}
			if blacklist && strings.Contains(normalized, t) {
				return true
			}
		}
	}
	return false
}

func (p *Pipeline) lookupToggle(kind domain.Kind) (include, ok bool) {
	for key, v := range p.cfg.IncludeKinds {
		if strings.EqualFold(key, string(kind)) || strings.EqualFold(key, kind.DisplayName()) {
			return v, true
		}
	}
	return false, false
}

func allowSet(rule SetRule, matches func(v string) bool) bool {
	switch rule.Mode {
	case ModeWhitelist:
		if len(rule.Values) == 0 {
			return true
		}
		for _, v := range rule.Values {
			if matches(v) {
				return true
			}
		}
		return false
	case ModeBlacklist:
		for _, v := range rule.Values {
			if matches(v) {
				return false
			}
		}
		return true
	default:
		return true
	}
}
