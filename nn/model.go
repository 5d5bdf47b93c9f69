package nn

import (
	"fmt"
	"math"
	"sync"

	"github.com/atelier-rl/paintpool/core"
	erand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/sampleuv"
)

// Net is the policy/value module: a linear head per action component over
// the concatenated (frame, condition, previous action, noise) features, plus
// a scalar baseline head. Actions are sampled from the per-component softmax.
type Net struct {
	frameLen    int
	noiseDim    int
	actionSpace []int
	condition   bool
	inDim       int

	params *paramSet

	mu  sync.Mutex
	rng *erand.Rand
}

var _ core.TrainableModel = &Net{}

func NewNet(frameLen int, actionSpace []int, noiseDim int, condition bool, seed uint64) *Net {
	inDim := frameLen + len(actionSpace) + noiseDim
	if condition {
		inDim += frameLen
	}
	rng := erand.New(erand.NewSource(seed))
	params := newParamSet()
	for c, n := range actionSpace {
		params.add(fmt.Sprintf("pi%d.w", c), n, inDim, rng)
		params.add(fmt.Sprintf("pi%d.b", c), n, 1, rng)
	}
	params.add("baseline.w", 1, inDim, rng)
	params.add("baseline.b", 1, 1, rng)

	return &Net{
		frameLen:    frameLen,
		noiseDim:    noiseDim,
		actionSpace: actionSpace,
		condition:   condition,
		inDim:       inDim,
		params:      params,
		rng:         rng,
	}
}

// NewNetFromSnapshot builds an actor-facing copy carrying the given weights.
func NewNetFromSnapshot(frameLen int, actionSpace []int, noiseDim int, condition bool, seed uint64, ws core.WeightSnapshot) *Net {
	n := NewNet(frameLen, actionSpace, noiseDim, condition, seed)
	n.Restore(ws)
	return n
}

// features builds the input vector of one batch row.
func (n *Net) features(in core.ModelInput, row int) []float64 {
	x := make([]float64, 0, n.inDim)
	x = append(x, in.Frames[row]...)
	if n.condition {
		if in.Condition != nil {
			x = append(x, in.Condition[row]...)
		} else {
			x = append(x, make([]float64, n.frameLen)...)
		}
	}
	for c, a := range in.PrevActions[row] {
		x = append(x, float64(a)/float64(n.actionSpace[c]))
	}
	x = append(x, in.Noise[row]...)
	return x
}

func (n *Net) head(name string, x []float64) []float64 {
	w := n.params.ws[name+".w"]
	b := n.params.ws[name+".b"]
	rows, _ := w.Dims()
	out := mat.NewVecDense(rows, nil)
	out.MulVec(w, mat.NewVecDense(len(x), x))
	y := make([]float64, rows)
	for i := range y {
		y[i] = out.AtVec(i) + b.At(i, 0)
	}
	return y
}

func (n *Net) Forward(in core.ModelInput, states []core.AgentState) ([]core.AgentOutput, []core.AgentState) {
	outs := make([]core.AgentOutput, len(in.Frames))
	for b := range in.Frames {
		x := n.features(in, b)
		out := core.AgentOutput{
			Action: make([]int, len(n.actionSpace)),
			Logits: make([][]float64, len(n.actionSpace)),
		}
		for c := range n.actionSpace {
			logits := n.head(fmt.Sprintf("pi%d", c), x)
			out.Logits[c] = logits
			out.Action[c] = n.sample(logits)
		}
		out.Baseline = n.head("baseline", x)[0]
		outs[b] = out
	}
	return outs, states
}

// sample draws one action from softmax(logits).
func (n *Net) sample(logits []float64) int {
	weights := make([]float64, len(logits))
	max := floats.Max(logits)
	for i, l := range logits {
		weights[i] = math.Exp(l - max)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	w := sampleuv.NewWeighted(weights, n.rng)
	idx, ok := w.Take()
	if !ok {
		return 0
	}
	return idx
}

func (n *Net) InitialState() core.AgentState {
	return core.AgentState{}
}

func (n *Net) InitialAction() []int {
	return make([]int, len(n.actionSpace))
}

func (n *Net) ZeroGrad() {
	n.params.zeroGrad()
}

// Backward accumulates gradients for one timestep of inputs given the loss
// gradients with respect to each row's logits and baseline.
func (n *Net) Backward(in core.ModelInput, states []core.AgentState, dLogits [][][]float64, dBaseline []float64) {
	for b := range in.Frames {
		x := n.features(in, b)
		for c := range n.actionSpace {
			n.accumulate(fmt.Sprintf("pi%d", c), x, dLogits[b][c])
		}
		n.accumulate("baseline", x, []float64{dBaseline[b]})
	}
}

func (n *Net) accumulate(name string, x []float64, d []float64) {
	gw := n.params.gs[name+".w"]
	gb := n.params.gs[name+".b"]
	for i, di := range d {
		if di == 0 {
			continue
		}
		for j, xj := range x {
			gw.Set(i, j, gw.At(i, j)+di*xj)
		}
		gb.Set(i, 0, gb.At(i, 0)+di)
	}
}

func (n *Net) ClipGrad(maxNorm float64) float64 {
	return n.params.clipGrad(maxNorm)
}

func (n *Net) Snapshot() core.WeightSnapshot {
	return n.params.snapshot()
}

func (n *Net) Restore(ws core.WeightSnapshot) {
	n.params.restore(ws)
}

// Params exposes the parameter set to the optimizer.
func (n *Net) Params() *paramSet {
	return n.params
}
