// Package netem models netem impairment configuration: a feature-keyed
// structure with validation, structural and effective equality, and the
// reorder-requires-delay desugaring rule.
package netem

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Loss models packet loss: percentage of packets dropped, with an optional
// Gilbert-Elliott correlation to the previous decision.
type Loss struct {
	Percentage  float64 `validate:"gte=0,lte=100"`
	Correlation float64 `validate:"gte=0,lte=100"`
}

// Delay models added latency with optional jitter and correlation.
type Delay struct {
	BaseMs      float64 `validate:"gte=0,lte=5000"`
	JitterMs    float64 `validate:"gte=0,lte=1000"`
	Correlation float64 `validate:"gte=0,lte=100"`
}

// Duplicate models packet duplication.
type Duplicate struct {
	Percentage  float64 `validate:"gte=0,lte=100"`
	Correlation float64 `validate:"gte=0,lte=100"`
}

// Reorder models packet reordering. Gap is the number of packets sent in
// order before one is reordered ahead, per netem's gap semantics.
type Reorder struct {
	Percentage  float64 `validate:"gte=0,lte=100"`
	Correlation float64 `validate:"gte=0,lte=100"`
	Gap         uint32  `validate:"gte=1,lte=10"`
}

// Corrupt models bit-level packet corruption.
type Corrupt struct {
	Percentage  float64 `validate:"gte=0,lte=100"`
	Correlation float64 `validate:"gte=0,lte=100"`
}

// Rate models an egress rate limit.
type Rate struct {
	RateKbps uint64 `validate:"gte=1,lte=1000000"`
}

// Config is a mapping from feature key to feature settings. A feature is
// absent (nil pointer) or present; presence alone enables it — there is no
// separate "enabled" flag on any feature.
type Config struct {
	Loss      *Loss
	Delay     *Delay
	Duplicate *Duplicate
	Reorder   *Reorder
	Corrupt   *Corrupt
	Rate      *Rate
}

// IsEmpty reports whether no feature is present. An empty Config means "no
// impairment"; applying it is equivalent to clearing TC on the interface.
func (c Config) IsEmpty() bool {
	return c.Loss == nil && c.Delay == nil && c.Duplicate == nil &&
		c.Reorder == nil && c.Corrupt == nil && c.Rate == nil
}

// Features returns the set of feature keys present in c.
func (c Config) Features() map[string]bool {
	f := make(map[string]bool, 6)
	if c.Loss != nil {
		f["loss"] = true
	}
	if c.Delay != nil {
		f["delay"] = true
	}
	if c.Duplicate != nil {
		f["duplicate"] = true
	}
	if c.Reorder != nil {
		f["reorder"] = true
	}
	if c.Corrupt != nil {
		f["corrupt"] = true
	}
	if c.Rate != nil {
		f["rate"] = true
	}
	return f
}

// Validate checks every present feature's fields against the ranges in
// spec.md §3, via struct tags evaluated by go-playground/validator.
func (c Config) Validate() error {
	if c.Loss != nil {
		if err := validate.Struct(c.Loss); err != nil {
			return fmt.Errorf("loss: %w", err)
		}
	}
	if c.Delay != nil {
		if err := validate.Struct(c.Delay); err != nil {
			return fmt.Errorf("delay: %w", err)
		}
	}
	if c.Duplicate != nil {
		if err := validate.Struct(c.Duplicate); err != nil {
			return fmt.Errorf("duplicate: %w", err)
		}
	}
	if c.Reorder != nil {
		if err := validate.Struct(c.Reorder); err != nil {
			return fmt.Errorf("reorder: %w", err)
		}
	}
	if c.Corrupt != nil {
		if err := validate.Struct(c.Corrupt); err != nil {
			return fmt.Errorf("corrupt: %w", err)
		}
	}
	if c.Rate != nil {
		if err := validate.Struct(c.Rate); err != nil {
			return fmt.Errorf("rate: %w", err)
		}
	}
	return nil
}

// minimalReorderDelayMs is the base delay the engine synthesizes for a
// reorder feature with no explicit delay, per spec.md §3/§4.6/P10.
const minimalReorderDelayMs = 1

// Desugar returns a copy of c with the reorder-requires-delay rule applied:
// if Reorder is present and Delay is absent, a synthetic 1ms base delay is
// added to the returned copy. The original Config (as stored, e.g. in a
// ScenarioStep) is never mutated — desugaring only happens when a config is
// about to be emitted to the kernel.
func (c Config) Desugar() Config {
	if c.Reorder == nil || c.Delay != nil {
		return c
	}
	out := c
	out.Delay = &Delay{BaseMs: minimalReorderDelayMs}
	return out
}

// Equal reports structural equality: every feature pointer present/absent
// the same way, with identical field values.
func (c Config) Equal(other Config) bool {
	return equalLoss(c.Loss, other.Loss) &&
		equalDelay(c.Delay, other.Delay) &&
		equalDuplicate(c.Duplicate, other.Duplicate) &&
		equalReorder(c.Reorder, other.Reorder) &&
		equalCorrupt(c.Corrupt, other.Corrupt) &&
		equalRate(c.Rate, other.Rate)
}

// EffectivelyEqual reports whether c and other would produce the same
// kernel-observable netem parameters, i.e. structural equality after both
// sides have had the reorder→minimal-delay desugar applied.
func (c Config) EffectivelyEqual(other Config) bool {
	return c.Desugar().Equal(other.Desugar())
}

func equalLoss(a, b *Loss) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

func equalDelay(a, b *Delay) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

func equalDuplicate(a, b *Duplicate) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

func equalReorder(a, b *Reorder) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

func equalCorrupt(a, b *Corrupt) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

func equalRate(a, b *Rate) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

// RateBytesPerSec converts the configured rate to the bytes/sec unit the
// kernel contract (spec.md §6) requires: kbps * 125.
func (r Rate) RateBytesPerSec() uint64 {
	return r.RateKbps * 125
}
