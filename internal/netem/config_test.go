package netem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigIsEmpty(t *testing.T) {
	var c Config
	assert.True(t, c.IsEmpty())

	c.Loss = &Loss{Percentage: 5}
	assert.False(t, c.IsEmpty())
}

func TestConfigValidateRanges(t *testing.T) {
	t.Run("ValidAcceptsEverything", func(t *testing.T) {
		c := Config{
			Loss:      &Loss{Percentage: 5, Correlation: 10},
			Delay:     &Delay{BaseMs: 100, JitterMs: 20, Correlation: 0},
			Duplicate: &Duplicate{Percentage: 1, Correlation: 0},
			Reorder:   &Reorder{Percentage: 10, Correlation: 0, Gap: 5},
			Corrupt:   &Corrupt{Percentage: 1, Correlation: 0},
			Rate:      &Rate{RateKbps: 1000},
		}
		assert.NoError(t, c.Validate())
	})

	t.Run("LossPercentageOutOfRange", func(t *testing.T) {
		c := Config{Loss: &Loss{Percentage: 101}}
		assert.Error(t, c.Validate())
	})

	t.Run("DelayBaseMsOutOfRange", func(t *testing.T) {
		c := Config{Delay: &Delay{BaseMs: 5001}}
		assert.Error(t, c.Validate())
	})

	t.Run("ReorderGapBelowMinimum", func(t *testing.T) {
		c := Config{Reorder: &Reorder{Percentage: 1, Gap: 0}}
		assert.Error(t, c.Validate())
	})

	t.Run("ReorderGapAboveMaximum", func(t *testing.T) {
		c := Config{Reorder: &Reorder{Percentage: 1, Gap: 11}}
		assert.Error(t, c.Validate())
	})

	t.Run("RateBelowMinimum", func(t *testing.T) {
		c := Config{Rate: &Rate{RateKbps: 0}}
		assert.Error(t, c.Validate())
	})

	t.Run("RateAboveMaximum", func(t *testing.T) {
		c := Config{Rate: &Rate{RateKbps: 1_000_001}}
		assert.Error(t, c.Validate())
	})
}

func TestDesugarReorderRequiresDelay(t *testing.T) {
	t.Run("SynthesizesMinimalDelay", func(t *testing.T) {
		c := Config{Reorder: &Reorder{Percentage: 10, Gap: 5}}
		d := c.Desugar()
		require.NotNil(t, d.Delay)
		assert.Equal(t, float64(1), d.Delay.BaseMs, "P10: delay.base_ms >= 1")
		// the stored config must not be mutated
		assert.Nil(t, c.Delay)
	})

	t.Run("LeavesExplicitDelayAlone", func(t *testing.T) {
		c := Config{
			Reorder: &Reorder{Percentage: 10, Gap: 5},
			Delay:   &Delay{BaseMs: 100},
		}
		d := c.Desugar()
		assert.Equal(t, float64(100), d.Delay.BaseMs)
	})

	t.Run("NoOpWithoutReorder", func(t *testing.T) {
		c := Config{Loss: &Loss{Percentage: 5}}
		d := c.Desugar()
		assert.Nil(t, d.Delay)
	})
}

func TestConfigEqualAndEffectivelyEqual(t *testing.T) {
	a := Config{Loss: &Loss{Percentage: 5}}
	b := Config{Loss: &Loss{Percentage: 5}}
	c := Config{Loss: &Loss{Percentage: 6}}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))

	reorderOnly := Config{Reorder: &Reorder{Percentage: 10, Gap: 5}}
	reorderWithMinimalDelay := Config{
		Reorder: &Reorder{Percentage: 10, Gap: 5},
		Delay:   &Delay{BaseMs: 1},
	}
	assert.False(t, reorderOnly.Equal(reorderWithMinimalDelay), "structural equality ignores desugaring")
	assert.True(t, reorderOnly.EffectivelyEqual(reorderWithMinimalDelay), "effective equality applies the desugar rule to both sides")
}

func TestRateBytesPerSec(t *testing.T) {
	r := Rate{RateKbps: 100}
	assert.Equal(t, uint64(12500), r.RateBytesPerSec())
}

func TestFeatures(t *testing.T) {
	c := Config{
		Loss:  &Loss{Percentage: 1},
		Delay: &Delay{BaseMs: 1},
	}
	f := c.Features()
	assert.True(t, f["loss"])
	assert.True(t, f["delay"])
	assert.False(t, f["duplicate"])
	assert.Len(t, f, 2)
}
