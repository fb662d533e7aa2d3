package browser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsFromMap(t *testing.T) {
	t.Run("nil map renders headless", func(t *testing.T) {
		opts, err := OptionsFromMap(nil)
		require.NoError(t, err)
		assert.True(t, opts.Headless)
	})

	t.Run("headless can be switched off", func(t *testing.T) {
		opts, err := OptionsFromMap(map[string]any{"headless": false})
		require.NoError(t, err)
		assert.False(t, opts.Headless)
	})

	t.Run("full option set", func(t *testing.T) {
		opts, err := OptionsFromMap(map[string]any{
			"headless":   true,
			"wait_until": "networkidle",
			"timeout":    5.5,
			"sleep":      float64(2),
			"width":      float64(1920),
			"height":     float64(1080),
		})
		require.NoError(t, err)
		assert.True(t, opts.Headless)
		assert.Equal(t, WaitNetworkIdle, opts.WaitUntil)
		assert.Equal(t, 5500*time.Millisecond, opts.Timeout)
		assert.Equal(t, 2*time.Second, opts.Sleep)
		assert.Equal(t, 1920, opts.Width)
		assert.Equal(t, 1080, opts.Height)
	})

	t.Run("unknown keys are ignored", func(t *testing.T) {
		opts, err := OptionsFromMap(map[string]any{"mock_human": true})
		require.NoError(t, err)
		assert.True(t, opts.Headless)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		cases := map[string]map[string]any{
			"headless not bool":   {"headless": "yes"},
			"wait_until not text": {"wait_until": 3},
			"wait_until unknown":  {"wait_until": "whenever"},
			"negative timeout":    {"timeout": -1.0},
			"fractional width":    {"width": 1.5},
			"sleep not numeric":   {"sleep": "soon"},
		}
		for name, raw := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := OptionsFromMap(raw)
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidOptions)
			})
		}
	})
}
