package dispatch

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// RetryPolicy is bounded exponential backoff with a ceiling, used for
// id-based activation where the host may not have resolved the target yet.
type RetryPolicy struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	BaseInterval time.Duration `yaml:"base_interval"`
	MaxInterval  time.Duration `yaml:"max_interval"`
	Multiplier   float64       `yaml:"multiplier"`
}

// ApplyDefaults fills zero values with the standard policy.
func (p *RetryPolicy) ApplyDefaults() {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 5
	}
	if p.BaseInterval == 0 {
		p.BaseInterval = 100 * time.Millisecond
	}
	if p.MaxInterval == 0 {
		p.MaxInterval = 2 * time.Second
	}
	if p.Multiplier == 0 {
		p.Multiplier = 2
	}
}

// UnmarshalYAML accepts Go duration strings ("100ms", "2s") for the
// intervals. Keys absent from the node keep their current values.
func (p *RetryPolicy) UnmarshalYAML(value *yaml.Node) error {
	raw := struct {
		MaxAttempts  int     `yaml:"max_attempts"`
		BaseInterval string  `yaml:"base_interval"`
		MaxInterval  string  `yaml:"max_interval"`
		Multiplier   float64 `yaml:"multiplier"`
	}{
		MaxAttempts: p.MaxAttempts,
		Multiplier:  p.Multiplier,
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	p.MaxAttempts = raw.MaxAttempts
	p.Multiplier = raw.Multiplier
	if raw.BaseInterval != "" {
		d, err := time.ParseDuration(raw.BaseInterval)
		if err != nil {
			return fmt.Errorf("base_interval: %w", err)
		}
		p.BaseInterval = d
	}
	if raw.MaxInterval != "" {
		d, err := time.ParseDuration(raw.MaxInterval)
		if err != nil {
			return fmt.Errorf("max_interval: %w", err)
		}
		p.MaxInterval = d
	}
	return nil
}

// Do runs attempt until it reports success or the policy is exhausted.
// sleep is injectable so tests run without real delays. Returns false on
// exhaustion or context cancellation.
func (p RetryPolicy) Do(ctx context.Context, sleep func(time.Duration), attempt func() bool) bool {
	interval := p.BaseInterval
	for i := 0; i < p.MaxAttempts; i++ {
		if ctx.Err() != nil {
			return false
		}
		if attempt() {
			return true
		}
		if i == p.MaxAttempts-1 {
			break
		}
		sleep(interval)
		interval = time.Duration(float64(interval) * p.Multiplier)
		if interval > p.MaxInterval {
			interval = p.MaxInterval
		}
	}
	return false
}
