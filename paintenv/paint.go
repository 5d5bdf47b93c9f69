// Package paintenv implements a minimal canvas-painting environment: each
// action places a square brush stroke of a chosen size and intensity on a
// grayscale grid. Episodes run for a fixed number of strokes; all meaningful
// reward comes from the trainer's discriminator, the environment itself only
// charges the configured stroke penalty.
package paintenv

import (
	"fmt"

	"github.com/atelier-rl/paintpool/core"
	"github.com/atelier-rl/paintpool/util"
)

type Config struct {
	GridWidth     int
	EpisodeLength int
	BrushSizes    []int
	Levels        int
	StrokePenalty float64
}

func DefaultConfig() Config {
	return Config{
		GridWidth:     32,
		EpisodeLength: 20,
		BrushSizes:    []int{1, 2, 4, 8},
		Levels:        8,
		StrokePenalty: 0,
	}
}

// ActionSpace returns the per-component sizes of the flat action vector:
// stroke location, brush size, intensity.
func (c Config) ActionSpace() []int {
	return []int{c.GridWidth * c.GridWidth, len(c.BrushSizes), c.Levels}
}

func (c Config) FrameLen() int {
	return c.GridWidth * c.GridWidth
}

type Env struct {
	cfg           Config
	canvas        []float64
	episodeStep   int
	episodeReturn float64
}

var _ core.Environment = &Env{}

func New(cfg Config) *Env {
	return &Env{
		cfg:    cfg,
		canvas: make([]float64, cfg.FrameLen()),
	}
}

func (e *Env) Reset() (core.EnvOutput, error) {
	e.reset()
	return core.EnvOutput{Frame: util.CopyFloats(e.canvas)}, nil
}

func (e *Env) reset() {
	for i := range e.canvas {
		e.canvas[i] = 0
	}
	e.episodeStep = 0
	e.episodeReturn = 0
}

// Step paints one stroke. When the episode ends the returned frame is the
// freshly reset canvas with the done flag set, so callers can keep stepping
// across episode boundaries.
func (e *Env) Step(action []int) (core.EnvOutput, error) {
	if len(action) != 3 {
		return core.EnvOutput{}, fmt.Errorf("want 3 action components, got %d", len(action))
	}
	loc, brush, level := action[0], action[1], action[2]
	if loc < 0 || loc >= e.cfg.GridWidth*e.cfg.GridWidth {
		return core.EnvOutput{}, fmt.Errorf("stroke location %d out of range", loc)
	}
	if brush < 0 || brush >= len(e.cfg.BrushSizes) {
		return core.EnvOutput{}, fmt.Errorf("brush index %d out of range", brush)
	}
	if level < 0 || level >= e.cfg.Levels {
		return core.EnvOutput{}, fmt.Errorf("intensity level %d out of range", level)
	}

	e.paint(loc, e.cfg.BrushSizes[brush], float64(level)/float64(e.cfg.Levels-1))

	reward := -e.cfg.StrokePenalty
	e.episodeStep++
	e.episodeReturn += reward

	out := core.EnvOutput{
		Reward:        reward,
		EpisodeStep:   e.episodeStep,
		EpisodeReturn: e.episodeReturn,
	}
	if e.episodeStep >= e.cfg.EpisodeLength {
		out.Done = true
		e.reset()
	}
	out.Frame = util.CopyFloats(e.canvas)
	return out, nil
}

func (e *Env) paint(loc, size int, value float64) {
	w := e.cfg.GridWidth
	row, col := loc/w, loc%w
	for dr := 0; dr < size; dr++ {
		for dc := 0; dc < size; dc++ {
			r, c := row+dr, col+dc
			if r < w && c < w {
				e.canvas[r*w+c] = value
			}
		}
	}
}

func (e *Env) Close() error {
	return nil
}
