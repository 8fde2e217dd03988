// Package dispatch turns one chosen index entry into host navigation. Each
// entry kind maps to a strategy; strategies retry and fall back but never
// fail the caller: a selection that goes nowhere is logged, not raised.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/openpano/tourdex/internal/classify"
	"github.com/openpano/tourdex/internal/domain"
	"github.com/openpano/tourdex/internal/host"
)

// Config holds dispatcher tuning.
type Config struct {
	Retry RetryPolicy `yaml:"retry"`
	// SettleDelay is the wait applied before post-selection actions on hosts
	// without an activation event hook.
	SettleDelay time.Duration `yaml:"settle_delay"`
}

// UnmarshalYAML accepts a Go duration string ("500ms") for the settle delay.
// Keys absent from the node keep their current values.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	raw := struct {
		Retry       RetryPolicy `yaml:"retry"`
		SettleDelay string      `yaml:"settle_delay"`
	}{
		Retry: c.Retry,
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	c.Retry = raw.Retry
	if raw.SettleDelay != "" {
		d, err := time.ParseDuration(raw.SettleDelay)
		if err != nil {
			return fmt.Errorf("settle_delay: %w", err)
		}
		c.SettleDelay = d
	}
	return nil
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	c.Retry.ApplyDefaults()
	if c.SettleDelay == 0 {
		c.SettleDelay = 500 * time.Millisecond
	}
}

// Dispatcher executes navigation for chosen entries against a host handle.
type Dispatcher struct {
	cfg    Config
	logger *zap.Logger
	sleep  func(time.Duration)

	mu sync.Mutex
	// pending holds the cancel token for the outstanding one-shot activation
	// binding per node id. At most one binding may be outstanding per node;
	// the dispatcher owns this invariant rather than assuming the host
	// replaces on rebind.
	pending map[string]func()
}

// New creates a dispatcher.
func New(cfg Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	return &Dispatcher{cfg: cfg, logger: logger, sleep: time.Sleep, pending: map[string]func(){}}
}

// Dispatch navigates the host to the chosen entry. The returned error covers
// unroutable entries only; a routed entry whose host action fails logs a
// warning and returns nil, keeping the surface responsive.
func (d *Dispatcher) Dispatch(ctx context.Context, h host.Handle, entry domain.IndexEntry) error {
	if entry.IsStandalone {
		d.logger.Warn("standalone entry has no host target", zap.String("label", entry.Label))
		return nil
	}

	switch entry.Kind {
	case domain.KindPanorama, domain.KindThreeDModel:
		return d.selectTopLevel(h, entry)
	case domain.KindThreeDModelObject, domain.KindThreeDHotspot:
		return d.activateModelObject(ctx, h, entry)
	case domain.KindContainer:
		return d.toggleContainer(h, entry)
	default:
		if entry.CameraHint != nil {
			return d.focusWithCamera(h, entry)
		}
		return d.focusByName(h, entry)
	}
}

// collectionFor resolves the owning collection and the entry's local index
// within it. Secondary-collection sequence indexes are offset by the primary
// collection's length.
func (d *Dispatcher) collectionFor(h host.Handle, source domain.Source, seq int) (host.Collection, int, error) {
	switch source {
	case domain.SourcePrimary, domain.SourceContainer:
		primary := h.Primary()
		if primary == nil {
			return nil, 0, domain.ErrSourceAbsent
		}
		return primary, seq, nil
	case domain.SourceSecondary:
		secondary := h.Secondary()
		if secondary == nil {
			return nil, 0, domain.ErrSourceAbsent
		}
		primaryLen := 0
		if primary := h.Primary(); primary != nil {
			primaryLen = len(primary.Items())
		}
		return secondary, seq - primaryLen, nil
	default:
		return nil, 0, domain.ErrSourceAbsent
	}
}

func (d *Dispatcher) selectTopLevel(h host.Handle, entry domain.IndexEntry) error {
	col, local, err := d.collectionFor(h, entry.Source, entry.SequenceIndex)
	if err != nil {
		return err
	}
	col.SelectIndex(local)
	return nil
}

// activateModelObject selects the parent model, then activates the object by
// id with retries once the model's activation begins; a label scan over the
// model's object classes is the last resort.
func (d *Dispatcher) activateModelObject(ctx context.Context, h host.Handle, entry domain.IndexEntry) error {
	col, parentLocal, err := d.collectionFor(h, entry.Source, entry.ParentSequenceIndex)
	if err != nil {
		return err
	}

	run := func() { d.activateByIDThenLabel(ctx, h, entry) }
	d.afterSelection(col, parentLocal, run)
	return nil
}

// focusWithCamera selects the parent panorama and applies the stored camera
// orientation: immediately when the panorama is already active, otherwise
// once its activation begins.
func (d *Dispatcher) focusWithCamera(h host.Handle, entry domain.IndexEntry) error {
	col, parentLocal, err := d.collectionFor(h, entry.Source, entry.ParentSequenceIndex)
	if err != nil {
		return err
	}
	applier, ok := h.(host.CameraApplier)
	if !ok {
		d.logger.Warn("host cannot apply cameras", zap.String("label", entry.Label))
		col.SelectIndex(parentLocal)
		return nil
	}
	hint := *entry.CameraHint
	apply := func() { applier.ApplyCamera(hint.Yaw, hint.Pitch, hint.FieldOfView) }

	if col.CurrentIndex() == parentLocal {
		apply()
		return nil
	}
	d.afterSelection(col, parentLocal, apply)
	return nil
}

// focusByName selects the parent panorama and asks the host to focus the
// overlay by name, when that capability exists.
func (d *Dispatcher) focusByName(h host.Handle, entry domain.IndexEntry) error {
	col, parentLocal, err := d.collectionFor(h, entry.Source, entry.ParentSequenceIndex)
	if err != nil {
		return err
	}
	col.SelectIndex(parentLocal)
	if focuser, ok := h.(host.OverlayFocuser); ok {
		if !focuser.FocusOverlay(entry.Label) {
			d.logger.Warn("overlay focus refused", zap.String("label", entry.Label))
		}
	}
	return nil
}

// toggleContainer prefers the host menu collaborator; without one (or when
// it refuses) the container node's visibility flag is flipped directly.
func (d *Dispatcher) toggleContainer(h host.Handle, entry domain.IndexEntry) error {
	if menu, ok := h.(host.MenuToggler); ok && menu.ToggleContainer(entry.Label) {
		return nil
	}
	lookup, ok := h.(host.NodeLookup)
	if !ok {
		d.logger.Warn("host cannot toggle containers", zap.String("label", entry.Label))
		return nil
	}
	node, ok := lookup.NodeByID(entry.HostID)
	if !ok {
		d.logger.Warn("container node not found", zap.String("id", entry.HostID))
		return nil
	}
	toggler, ok := node.(host.VisibilityToggler)
	if !ok {
		d.logger.Warn("container node has no visibility flag", zap.String("id", entry.HostID))
		return nil
	}
	toggler.SetVisible(!toggler.Visible())
	return nil
}

// afterSelection selects index local on col and runs fn once the selected
// node's activation begins. Hosts with an activation event hook get a
// one-shot binding; hosts without one get a fixed settle delay instead.
// Binding a new handler for a node first cancels any handler still pending
// for it, so handlers replace, never stack, regardless of host semantics.
func (d *Dispatcher) afterSelection(col host.Collection, local int, fn func()) {
	binder, ok := col.(host.ActivationBinder)
	if !ok {
		col.SelectIndex(local)
		d.sleep(d.cfg.SettleDelay)
		fn()
		return
	}

	items := col.Items()
	if local < 0 || local >= len(items) {
		d.logger.Warn("selection index out of range", zap.Int("index", local))
		return
	}
	id := items[local].ID()

	d.mu.Lock()
	if cancel := d.pending[id]; cancel != nil {
		cancel()
	}
	fired := func() {
		d.mu.Lock()
		delete(d.pending, id)
		d.mu.Unlock()
		fn()
	}
	d.pending[id] = binder.OnActivationBegin(id, fired)
	d.mu.Unlock()

	col.SelectIndex(local)
}

// activateByIDThenLabel tries direct id activation under the retry policy,
// then falls back to a case-insensitive label scan over the model's object
// classes.
func (d *Dispatcher) activateByIDThenLabel(ctx context.Context, h host.Handle, entry domain.IndexEntry) {
	activator, ok := h.(host.NodeActivator)
	if !ok {
		d.logger.Warn("host cannot activate nodes by id", zap.String("id", entry.HostID))
		return
	}
	if entry.HostID != "" {
		if d.cfg.Retry.Do(ctx, d.sleep, func() bool { return activator.ActivateByID(entry.HostID) }) {
			return
		}
	}
	if id, found := d.findObjectByLabel(h, entry.Label); found {
		if activator.ActivateByID(id) {
			return
		}
	}
	d.logger.Warn("object activation exhausted retries and fallbacks",
		zap.String("id", entry.HostID), zap.String("label", entry.Label))
}

// findObjectByLabel scans the host's 3D object classes for a node whose
// label matches exactly or by substring, case-insensitively.
func (d *Dispatcher) findObjectByLabel(h host.Handle, lbl string) (string, bool) {
	idx, ok := h.(host.ClassIndex)
	if !ok || strings.TrimSpace(lbl) == "" {
		return "", false
	}
	needle := strings.ToLower(lbl)

	var substring string
	for _, class := range classify.ObjectClasses() {
		for _, n := range idx.NodesByClass(class, "") {
			candidate := strings.ToLower(n.Label())
			if candidate == needle {
				return n.ID(), true
			}
			if substring == "" && candidate != "" && strings.Contains(candidate, needle) {
				substring = n.ID()
			}
		}
	}
	if substring != "" {
		return substring, true
	}
	return "", false
}
