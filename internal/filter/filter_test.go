package filter

import (
	"testing"

	"github.com/openpano/tourdex/internal/domain"
)

func mustNew(t *testing.T, cfg Config) *Pipeline {
	t.Helper()
	p, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return p
}

func TestAllow_EmptyConfigAllowsEverything(t *testing.T) {
	p := mustNew(t, Config{})
	if !p.Allow(domain.KindPanorama, "Lobby", []string{"t"}, "") {
		t.Error("expected allow with empty config")
	}
}

func TestAllow_EmptyKindRejected(t *testing.T) {
	p := mustNew(t, Config{})
	if p.Allow(domain.Kind(""), "Lobby", nil, "") {
		t.Error("empty kind must be rejected")
	}
	if p.Allow(domain.Kind("  "), "Lobby", nil, "") {
		t.Error("blank kind must be rejected")
	}
}

func TestAllow_UnknownKindStillAllowed(t *testing.T) {
	p := mustNew(t, Config{})
	if !p.Allow(domain.Kind("mystery"), "Lobby", nil, "") {
		t.Error("unknown but non-empty kind must pass the validity stage")
	}
}

func TestAllow_LabelRules(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		label string
		want  bool
	}{
		{"empty label allowed by default", Config{}, "  ", true},
		{"empty label rejected when configured", Config{DropEmptyLabels: true}, "", false},
		{"below min length", Config{MinLabelLength: 4}, "abc", false},
		{"at min length", Config{MinLabelLength: 4}, "abcd", true},
		{"min length measured after trim", Config{MinLabelLength: 4}, " abc ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mustNew(t, tt.cfg)
			if got := p.Allow(domain.KindHotspot, tt.label, nil, ""); got != tt.want {
				t.Errorf("Allow(%q) = %v, want %v", tt.label, got, tt.want)
			}
		})
	}
}

func TestAllow_ValueFilter(t *testing.T) {
	tests := []struct {
		name  string
		rule  ValueRule
		label string
		want  bool
	}{
		{
			"whitelist exact match",
			ValueRule{Mode: ModeWhitelist, Match: MatchExact, Terms: []string{"lobby"}},
			"Lobby", true,
		},
		{
			"whitelist exact miss",
			ValueRule{Mode: ModeWhitelist, Match: MatchExact, Terms: []string{"lobby"}},
			"Lobby Bar", false,
		},
		{
			"whitelist startsWith",
			ValueRule{Mode: ModeWhitelist, Match: MatchStartsWith, Terms: []string{"conf"}},
			"Conference Room", true,
		},
		{
			"whitelist regex",
			ValueRule{Mode: ModeWhitelist, Match: MatchRegex, Terms: []string{`^room \d+$`}},
			"Room 12", true,
		},
		{
			"blacklist contains",
			ValueRule{Mode: ModeBlacklist, Match: MatchExact, Terms: []string{"private"}},
			"Private Suite", false,
		},
		{
			"blacklist miss allows",
			ValueRule{Mode: ModeBlacklist, Match: MatchExact, Terms: []string{"private"}},
			"Suite", true,
		},
		{
			"normalization folds dashes and quotes",
			ValueRule{Mode: ModeBlacklist, Match: MatchExact, Terms: []string{"back-office"}},
			"“Back—office”", false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mustNew(t, Config{Value: tt.rule})
			got := p.Allow(domain.KindHotspot, tt.label, nil, "")
			if got != tt.want {
				t.Errorf("Allow(%q) = %v, want %v", tt.label, got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"  Lobby   Bar ", "lobby bar"},
		{"Café", "cafe"},
		{"Room – 12", "room - 12"},
		{`"quoted" [bracketed] (parens)`, "quoted bracketed parens"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAllow_KindSetRules(t *testing.T) {
	wl := mustNew(t, Config{Kinds: SetRule{Mode: ModeWhitelist, Values: []string{"Panorama", "hotspot"}}})
	if !wl.Allow(domain.KindPanorama, "a", nil, "") {
		t.Error("whitelisted kind rejected")
	}
	if wl.Allow(domain.KindText, "a", nil, "") {
		t.Error("non-whitelisted kind allowed")
	}

	bl := mustNew(t, Config{Kinds: SetRule{Mode: ModeBlacklist, Values: []string{"text"}}})
	if bl.Allow(domain.KindText, "a", nil, "") {
		t.Error("blacklisted kind allowed")
	}
	if !bl.Allow(domain.KindImage, "a", nil, "") {
		t.Error("non-blacklisted kind rejected")
	}
}

func TestAllow_LabelSubstringRules(t *testing.T) {
	bl := mustNew(t, Config{LabelSubstrings: SetRule{Mode: ModeBlacklist, Values: []string{"WIP"}}})
	if bl.Allow(domain.KindHotspot, "lobby wip v2", nil, "") {
		t.Error("substring blacklist must match case-insensitively")
	}

	wl := mustNew(t, Config{LabelSubstrings: SetRule{Mode: ModeWhitelist, Values: []string{"room"}}})
	if !wl.Allow(domain.KindHotspot, "Conference Room", nil, "") {
		t.Error("substring whitelist rejected a containing label")
	}
	if wl.Allow(domain.KindHotspot, "Lobby", nil, "") {
		t.Error("substring whitelist allowed a non-containing label")
	}
}

func TestAllow_TagRules(t *testing.T) {
	wl := mustNew(t, Config{Tags: SetRule{Mode: ModeWhitelist, Values: []string{"public"}}})
	if !wl.Allow(domain.KindHotspot, "a", []string{"Public", "misc"}, "") {
		t.Error("tag whitelist must match case-insensitively")
	}
	if wl.Allow(domain.KindHotspot, "a", nil, "") {
		t.Error("zero tags must fail a tag whitelist")
	}

	bl := mustNew(t, Config{Tags: SetRule{Mode: ModeBlacklist, Values: []string{"hidden"}}})
	if bl.Allow(domain.KindHotspot, "a", []string{"hidden"}, "") {
		t.Error("blacklisted tag allowed")
	}
}

func TestAllow_PerKindToggle(t *testing.T) {
	p := mustNew(t, Config{IncludeKinds: map[string]bool{"panorama": false}})
	if p.Allow(domain.KindPanorama, "Lobby", nil, "") {
		t.Error("toggled-off kind allowed")
	}
	if !p.Allow(domain.KindHotspot, "Lobby", nil, "") {
		t.Error("untoggled kind rejected")
	}
}

func TestAllow_ShortCircuitOrderIndependence(t *testing.T) {
	// Reject wins regardless of which stage fires; combining rules never
	// un-rejects an entry.
	cfg := Config{
		Kinds: SetRule{Mode: ModeBlacklist, Values: []string{"text"}},
		Tags:  SetRule{Mode: ModeWhitelist, Values: []string{"public"}},
	}
	p := mustNew(t, cfg)
	if p.Allow(domain.KindText, "a", []string{"public"}, "") {
		t.Error("kind blacklist must reject even when tag whitelist passes")
	}
	if p.Allow(domain.KindImage, "a", nil, "") {
		t.Error("tag whitelist must reject even when kind passes")
	}
}

func TestNew_BadRegex(t *testing.T) {
	_, err := New(Config{
		Value: ValueRule{Mode: ModeWhitelist, Match: MatchRegex, Terms: []string{"("}},
	}, nil)
	if err == nil {
		t.Fatal("expected error for malformed pattern")
	}
}

func TestAllow_Monotonic(t *testing.T) {
	// Adding a blacklist term can only remove entries, never add them.
	labels := []string{"Lobby", "Private Suite", "Garden", "private garden"}
	base := mustNew(t, Config{})
	stricter := mustNew(t, Config{
		Value: ValueRule{Mode: ModeBlacklist, Match: MatchExact, Terms: []string{"private"}},
	})
	for _, l := range labels {
		before := base.Allow(domain.KindHotspot, l, nil, "")
		after := stricter.Allow(domain.KindHotspot, l, nil, "")
		if after && !before {
			t.Errorf("label %q: blacklist addition admitted a previously rejected entry", l)
		}
	}
}
