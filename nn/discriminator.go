package nn

import (
	"github.com/atelier-rl/paintpool/core"
	erand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
)

// Disc is the discriminator: a linear logit over the frame (concatenated
// with the conditioning image when conditioning is enabled). Higher scores
// mean "more real".
type Disc struct {
	frameLen  int
	condition bool
	inDim     int
	params    *paramSet
}

var _ core.TrainableDiscriminator = &Disc{}

func NewDisc(frameLen int, condition bool, seed uint64) *Disc {
	inDim := frameLen
	if condition {
		inDim *= 2
	}
	rng := erand.New(erand.NewSource(seed))
	params := newParamSet()
	params.add("score.w", 1, inDim, rng)
	params.add("score.b", 1, 1, rng)
	return &Disc{
		frameLen:  frameLen,
		condition: condition,
		inDim:     inDim,
		params:    params,
	}
}

// NewDiscFromSnapshot builds an evaluation-mode copy carrying the given weights.
func NewDiscFromSnapshot(frameLen int, condition bool, seed uint64, ws core.WeightSnapshot) *Disc {
	d := NewDisc(frameLen, condition, seed)
	d.Restore(ws)
	return d
}

func (d *Disc) features(frame, condition []float64) []float64 {
	x := make([]float64, 0, d.inDim)
	x = append(x, frame...)
	if d.condition {
		if condition != nil {
			x = append(x, condition...)
		} else {
			x = append(x, make([]float64, d.frameLen)...)
		}
	}
	return x
}

func (d *Disc) Score(frames [][]float64, condition [][]float64) []float64 {
	w := d.params.ws["score.w"].RawMatrix().Data
	b := d.params.ws["score.b"].At(0, 0)
	out := make([]float64, len(frames))
	for i, f := range frames {
		var cond []float64
		if condition != nil {
			cond = condition[i]
		}
		out[i] = floats.Dot(w, d.features(f, cond)) + b
	}
	return out
}

func (d *Disc) ZeroGrad() {
	d.params.zeroGrad()
}

func (d *Disc) Backward(frames [][]float64, condition [][]float64, dScore []float64) {
	gw := d.params.gs["score.w"].RawMatrix().Data
	gb := d.params.gs["score.b"]
	for i, f := range frames {
		if dScore[i] == 0 {
			continue
		}
		var cond []float64
		if condition != nil {
			cond = condition[i]
		}
		x := d.features(f, cond)
		floats.AddScaled(gw, dScore[i], x)
		gb.Set(0, 0, gb.At(0, 0)+dScore[i])
	}
}

func (d *Disc) ClipGrad(maxNorm float64) float64 {
	return d.params.clipGrad(maxNorm)
}

func (d *Disc) Snapshot() core.WeightSnapshot {
	return d.params.snapshot()
}

func (d *Disc) Restore(ws core.WeightSnapshot) {
	d.params.restore(ws)
}

// Params exposes the parameter set to the optimizer.
func (d *Disc) Params() *paramSet {
	return d.params
}
