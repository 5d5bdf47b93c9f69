package nn

import (
	"math"

	"github.com/atelier-rl/paintpool/core"
	"github.com/atelier-rl/paintpool/util"
)

// Adam applies the Adam update to a parameter set using whatever gradients
// have been accumulated since the last step.
type Adam struct {
	params *paramSet

	lr     float64
	baseLR float64
	beta1  float64
	beta2  float64
	eps    float64

	step int
	m    map[string][]float64
	v    map[string][]float64
}

var _ core.Optimizer = &Adam{}

func NewAdam(params *paramSet, lr, beta1, beta2 float64) *Adam {
	a := &Adam{
		params: params,
		lr:     lr,
		baseLR: lr,
		beta1:  beta1,
		beta2:  beta2,
		eps:    1e-8,
		m:      make(map[string][]float64),
		v:      make(map[string][]float64),
	}
	for _, name := range params.names {
		n := len(params.ws[name].RawMatrix().Data)
		a.m[name] = make([]float64, n)
		a.v[name] = make([]float64, n)
	}
	return a
}

func (a *Adam) Step() {
	a.step++
	bc1 := 1 - math.Pow(a.beta1, float64(a.step))
	bc2 := 1 - math.Pow(a.beta2, float64(a.step))
	for _, name := range a.params.names {
		w := a.params.ws[name].RawMatrix().Data
		g := a.params.gs[name].RawMatrix().Data
		m := a.m[name]
		v := a.v[name]
		for i := range w {
			m[i] = a.beta1*m[i] + (1-a.beta1)*g[i]
			v[i] = a.beta2*v[i] + (1-a.beta2)*g[i]*g[i]
			mHat := m[i] / bc1
			vHat := v[i] / bc2
			w[i] -= a.lr * mHat / (math.Sqrt(vHat) + a.eps)
		}
	}
}

func (a *Adam) setLR(lr float64) {
	a.lr = lr
}

func (a *Adam) State() core.OptState {
	s := core.OptState{
		Step: a.step,
		LR:   a.lr,
		M:    make(map[string][]float64, len(a.m)),
		V:    make(map[string][]float64, len(a.v)),
	}
	for name := range a.m {
		s.M[name] = util.CopyFloats(a.m[name])
		s.V[name] = util.CopyFloats(a.v[name])
	}
	return s
}

func (a *Adam) Restore(s core.OptState) {
	a.step = s.Step
	if s.LR != 0 {
		a.lr = s.LR
	}
	for name := range a.m {
		if src, ok := s.M[name]; ok {
			copy(a.m[name], src)
		}
		if src, ok := s.V[name]; ok {
			copy(a.v[name], src)
		}
	}
}

// LinearDecay anneals the optimizer's learning rate linearly in the number
// of consumed environment steps, reaching zero at the total-step budget.
type LinearDecay struct {
	opt           *Adam
	baseLR        float64
	stepsPerBatch int64
	totalSteps    int64
	epoch         int
}

var _ core.Scheduler = &LinearDecay{}

func NewLinearDecay(opt *Adam, stepsPerBatch, totalSteps int64) *LinearDecay {
	return &LinearDecay{
		opt:           opt,
		baseLR:        opt.baseLR,
		stepsPerBatch: stepsPerBatch,
		totalSteps:    totalSteps,
	}
}

func (s *LinearDecay) Step() {
	s.epoch++
	s.apply()
}

func (s *LinearDecay) apply() {
	consumed := int64(s.epoch) * s.stepsPerBatch
	if consumed > s.totalSteps {
		consumed = s.totalSteps
	}
	factor := 1 - float64(consumed)/float64(s.totalSteps)
	s.opt.setLR(s.baseLR * factor)
}

func (s *LinearDecay) State() core.SchedState {
	return core.SchedState{Epoch: s.epoch}
}

func (s *LinearDecay) Restore(st core.SchedState) {
	s.epoch = st.Epoch
	s.apply()
}
