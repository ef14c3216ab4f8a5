package main

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// uniformHash returns an n-bit hash with every bit set to on.
func uniformHash(n int, on bool) FrameHash {
	h := newFrameHash(n)
	if on {
		for i := 0; i < n; i++ {
			h.set(i)
		}
	}
	return h
}

func randomHash(r *rand.Rand, n int) FrameHash {
	h := newFrameHash(n)
	for i := 0; i < n; i++ {
		if r.Intn(2) == 1 {
			h.set(i)
		}
	}
	return h
}

func TestFrameCost(t *testing.T) {
	t.Parallel()

	zero := uniformHash(256, false)
	ones := uniformHash(256, true)

	c, err := frameCost(zero, zero)
	require.NoError(t, err)
	assert.Equal(t, 0.0, c)

	c, err = frameCost(zero, ones)
	require.NoError(t, err)
	assert.Equal(t, 1.0, c)

	half := newFrameHash(256)
	for i := 0; i < 128; i++ {
		half.set(i)
	}
	c, err = frameCost(zero, half)
	require.NoError(t, err)
	assert.Equal(t, 0.5, c)

	_, err = frameCost(zero, uniformHash(64, false))
	assert.ErrorIs(t, err, errContractViolation)
}

func TestFrameCostBounded(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewSource(11))
	empty := newFrameHash(0)
	c, err := frameCost(empty, empty)
	require.NoError(t, err)
	assert.Equal(t, 0.0, c)

	for i := 0; i < 200; i++ {
		n := 1 + r.Intn(300)
		c, err := frameCost(randomHash(r, n), randomHash(r, n))
		require.NoError(t, err)
		assert.False(t, math.IsNaN(c))
		assert.GreaterOrEqual(t, c, 0.0)
		assert.LessOrEqual(t, c, 1.0)
	}
}

func TestOptimizeSequence(t *testing.T) {
	t.Parallel()

	t.Run("identical frames keep everything", func(t *testing.T) {
		hashes := make([]FrameHash, 8)
		for i := range hashes {
			hashes[i] = uniformHash(256, false)
		}
		order, err := optimizeSequence(hashes, OptimizerConfig{Lookahead: 3, SkipPenalty: 0.2})
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, order)
	})

	t.Run("outlier frame is skipped", func(t *testing.T) {
		near := uniformHash(256, false)
		far := uniformHash(256, true)
		hashes := []FrameHash{near, near, far, near, near}
		order, err := optimizeSequence(hashes, OptimizerConfig{Lookahead: 3, SkipPenalty: 0.2})
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1, 3, 4}, order)
	})

	t.Run("skip penalty can outweigh the jump", func(t *testing.T) {
		near := uniformHash(256, false)
		far := uniformHash(256, true)
		hashes := []FrameHash{near, near, far, near, near}
		order, err := optimizeSequence(hashes, OptimizerConfig{Lookahead: 3, SkipPenalty: 5})
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	})

	t.Run("lookahead bounds the skip", func(t *testing.T) {
		near := uniformHash(256, false)
		far := uniformHash(256, true)
		hashes := []FrameHash{near, far, far, near}
		order, err := optimizeSequence(hashes, OptimizerConfig{Lookahead: 2, SkipPenalty: 0.1})
		require.NoError(t, err)
		assert.Equal(t, 0, order[0])
		assert.Equal(t, 3, order[len(order)-1])
		for k := 1; k < len(order); k++ {
			assert.LessOrEqual(t, order[k]-order[k-1], 2)
		}
	})

	t.Run("single frame", func(t *testing.T) {
		order, err := optimizeSequence([]FrameHash{uniformHash(64, false)}, defaultOptimizerConfig())
		require.NoError(t, err)
		assert.Equal(t, []int{0}, order)
	})

	t.Run("no frames", func(t *testing.T) {
		_, err := optimizeSequence(nil, defaultOptimizerConfig())
		assert.ErrorIs(t, err, errInvalidInput)
	})

	t.Run("mixed hash lengths", func(t *testing.T) {
		hashes := []FrameHash{uniformHash(64, false), uniformHash(256, false)}
		_, err := optimizeSequence(hashes, defaultOptimizerConfig())
		assert.ErrorIs(t, err, errContractViolation)
	})

	t.Run("invalid config", func(t *testing.T) {
		hashes := []FrameHash{uniformHash(64, false), uniformHash(64, false)}
		for _, cfg := range []OptimizerConfig{
			{Lookahead: 0, SkipPenalty: 0.2},
			{Lookahead: 3, SkipPenalty: math.NaN()},
			{Lookahead: 3, SkipPenalty: math.Inf(1)},
			{Lookahead: 3, SkipPenalty: -1},
		} {
			_, err := optimizeSequence(hashes, cfg)
			assert.ErrorIs(t, err, errInvalidInput, "%+v", cfg)
		}
	})
}

func TestOptimizeSequenceProperties(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewSource(7))
	for _, lookahead := range []int{1, 2, 3, 5} {
		for _, n := range []int{1, 2, 7, 40} {
			t.Run(strconv.Itoa(lookahead)+"/"+strconv.Itoa(n), func(t *testing.T) {
				hashes := make([]FrameHash, n)
				for i := range hashes {
					hashes[i] = randomHash(r, 128)
				}
				order, err := optimizeSequence(hashes, OptimizerConfig{Lookahead: lookahead, SkipPenalty: 0.15})
				require.NoError(t, err)
				require.NotEmpty(t, order)
				assert.Equal(t, 0, order[0])
				assert.Equal(t, n-1, order[len(order)-1])
				for k := 1; k < len(order); k++ {
					gap := order[k] - order[k-1]
					assert.Greater(t, gap, 0)
					assert.LessOrEqual(t, gap, lookahead)
				}
				if lookahead == 1 {
					assert.Len(t, order, n)
				}
			})
		}
	}
}

func TestReorderFrames(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, strconv.Itoa(i)+".jpg"), []byte("frame "+strconv.Itoa(i)), 0o644))
	}

	require.NoError(t, reorderFrames(dir, []int{0, 1, 3, 4}))

	for to, from := range []int{0, 1, 3, 4} {
		data, err := os.ReadFile(filepath.Join(dir, optimizedFrameName(to)))
		require.NoError(t, err)
		assert.Equal(t, "frame "+strconv.Itoa(from), string(data))
	}
	_, err := os.Stat(filepath.Join(dir, "2.jpg"))
	assert.NoError(t, err, "skipped frame stays in place")

	err = reorderFrames(dir, []int{9})
	assert.Error(t, err)
}
