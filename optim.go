package main

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
)

// OptimizerConfig tunes the frame-selection dynamic program.
type OptimizerConfig struct {
	// Lookahead is the largest forward jump between two kept frames;
	// a jump of k skips k-1 frames.
	Lookahead int `yaml:"lookahead"`
	// SkipPenalty is charged once per skipped frame.
	SkipPenalty float64 `yaml:"skip_penalty"`
}

func defaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{Lookahead: 3, SkipPenalty: 0.2}
}

func (c OptimizerConfig) validate() error {
	if c.Lookahead < 1 {
		return fmt.Errorf("%w: lookahead must be at least 1, got %d", errInvalidInput, c.Lookahead)
	}
	if math.IsNaN(c.SkipPenalty) || math.IsInf(c.SkipPenalty, 0) || c.SkipPenalty < 0 {
		return fmt.Errorf("%w: skip penalty must be a non-negative number, got %v", errInvalidInput, c.SkipPenalty)
	}
	return nil
}

// frameCost is the normalized visual distance between two frames, in [0, 1].
func frameCost(a, b FrameHash) (float64, error) {
	d, err := a.Hamming(b)
	if err != nil {
		return 0, err
	}
	if a.Len() == 0 {
		return 0, nil
	}
	return float64(d) / float64(a.Len()), nil
}

// optimizeSequence picks the increasing run of frame indices from 0 to
// len(hashes)-1 that minimizes total visual jump cost plus skip penalties.
func optimizeSequence(hashes []FrameHash, cfg OptimizerConfig) ([]int, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	n := len(hashes)
	if n == 0 {
		return nil, fmt.Errorf("%w: no frames to optimize", errInvalidInput)
	}

	bestCost := make([]float64, n)
	predecessor := make([]int, n)
	for i := 1; i < n; i++ {
		bestCost[i] = math.Inf(1)
		lo := max(0, i-cfg.Lookahead)
		// Walk backwards so equal costs keep the nearest predecessor.
		for j := i - 1; j >= lo; j-- {
			jump, err := frameCost(hashes[i], hashes[j])
			if err != nil {
				return nil, fmt.Errorf("frames %d and %d: %w", j, i, err)
			}
			c := bestCost[j] + jump + cfg.SkipPenalty*float64(i-j-1)
			// Defensive: validate and the bounded frameCost keep c finite,
			// but an undefined cost must never win the comparison below.
			if math.IsNaN(c) {
				return nil, fmt.Errorf("%w: undefined cost reaching frame %d from %d", errContractViolation, i, j)
			}
			if c < bestCost[i] {
				bestCost[i] = c
				predecessor[i] = j
			}
		}
		if math.IsInf(bestCost[i], 0) {
			return nil, fmt.Errorf("%w: no finite path reaches frame %d", errContractViolation, i)
		}
	}

	order := []int{n - 1}
	for i := n - 1; i > 0; {
		i = predecessor[i]
		order = append(order, i)
	}
	for l, r := 0, len(order)-1; l < r; l, r = l+1, r-1 {
		order[l], order[r] = order[r], order[l]
	}
	return order, nil
}

// reorderFrames renames {order[k]}.jpg to {k}.opt.jpg in dir so the kept
// frames form a contiguous sequence.
func reorderFrames(dir string, order []int) error {
	for to, from := range order {
		src := filepath.Join(dir, strconv.Itoa(from)+".jpg")
		dst := filepath.Join(dir, optimizedFrameName(to))
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("failed to move frame %d to %d: %w", from, to, err)
		}
	}
	return nil
}

func optimizedFrameName(i int) string {
	return strconv.Itoa(i) + ".opt.jpg"
}
