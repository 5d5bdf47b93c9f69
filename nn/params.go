package nn

import (
	"math"

	"github.com/atelier-rl/paintpool/core"
	"github.com/atelier-rl/paintpool/util"
	erand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// paramSet is a named collection of weight matrices and their gradient
// accumulators, shared by the models and the optimizer.
type paramSet struct {
	names []string
	ws    map[string]*mat.Dense
	gs    map[string]*mat.Dense
}

func newParamSet() *paramSet {
	return &paramSet{
		names: make([]string, 0),
		ws:    make(map[string]*mat.Dense),
		gs:    make(map[string]*mat.Dense),
	}
}

func (p *paramSet) add(name string, rows, cols int, rng *erand.Rand) {
	data := make([]float64, rows*cols)
	scale := 1.0 / math.Sqrt(float64(cols))
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * scale
	}
	p.names = append(p.names, name)
	p.ws[name] = mat.NewDense(rows, cols, data)
	p.gs[name] = mat.NewDense(rows, cols, nil)
}

func (p *paramSet) zeroGrad() {
	for _, name := range p.names {
		g := p.gs[name].RawMatrix().Data
		for i := range g {
			g[i] = 0
		}
	}
}

// clipGrad rescales all gradients so their global norm does not exceed
// maxNorm, returning the pre-clip norm.
func (p *paramSet) clipGrad(maxNorm float64) float64 {
	var sq float64
	for _, name := range p.names {
		for _, g := range p.gs[name].RawMatrix().Data {
			sq += g * g
		}
	}
	norm := math.Sqrt(sq)
	if norm > maxNorm && norm > 0 {
		scale := maxNorm / norm
		for _, name := range p.names {
			g := p.gs[name].RawMatrix().Data
			for i := range g {
				g[i] *= scale
			}
		}
	}
	return norm
}

func (p *paramSet) snapshot() core.WeightSnapshot {
	out := make(core.WeightSnapshot, len(p.names))
	for _, name := range p.names {
		out[name] = util.CopyFloats(p.ws[name].RawMatrix().Data)
	}
	return out
}

func (p *paramSet) restore(ws core.WeightSnapshot) {
	for _, name := range p.names {
		if src, ok := ws[name]; ok {
			copy(p.ws[name].RawMatrix().Data, src)
		}
	}
}
