package core

import (
	"fmt"
	"sync"
	"time"
)

// fakeEnv counts steps and mirrors the first action component into the
// frame so tests can check action/observation alignment.
type fakeEnv struct {
	frameLen   int
	episodeLen int
	failAfter  int

	step  int
	ret   float64
	calls int
}

func newFakeEnv(frameLen, episodeLen int) *fakeEnv {
	return &fakeEnv{frameLen: frameLen, episodeLen: episodeLen}
}

func (e *fakeEnv) Reset() (EnvOutput, error) {
	e.step, e.ret = 0, 0
	return EnvOutput{Frame: make([]float64, e.frameLen)}, nil
}

func (e *fakeEnv) Step(action []int) (EnvOutput, error) {
	e.calls++
	if e.failAfter > 0 && e.calls >= e.failAfter {
		return EnvOutput{}, fmt.Errorf("injected failure at call %d", e.calls)
	}
	e.step++
	e.ret++
	frame := make([]float64, e.frameLen)
	if len(action) > 0 {
		frame[0] = float64(action[0])
	}
	out := EnvOutput{
		Frame:         frame,
		Reward:        1,
		EpisodeStep:   e.step,
		EpisodeReturn: e.ret,
	}
	if e.step >= e.episodeLen {
		out.Done = true
		e.step, e.ret = 0, 0
	}
	return out, nil
}

func (e *fakeEnv) Close() error { return nil }

// fakeModel returns zero logits and baselines and instruments Backward so
// tests can detect overlapping updates.
type fakeModel struct {
	actionSpace []int

	mu        sync.Mutex
	weights   WeightSnapshot
	active    int
	maxActive int
	backwards int
}

func newFakeModel(actionSpace []int) *fakeModel {
	return &fakeModel{
		actionSpace: actionSpace,
		weights:     WeightSnapshot{"w": {0}},
	}
}

func (m *fakeModel) Forward(in ModelInput, states []AgentState) ([]AgentOutput, []AgentState) {
	outs := make([]AgentOutput, len(in.Frames))
	for i := range outs {
		out := AgentOutput{
			Action: make([]int, len(m.actionSpace)),
			Logits: make([][]float64, len(m.actionSpace)),
		}
		for c, n := range m.actionSpace {
			out.Logits[c] = make([]float64, n)
		}
		outs[i] = out
	}
	return outs, states
}

func (m *fakeModel) InitialState() AgentState { return AgentState{} }

func (m *fakeModel) InitialAction() []int { return make([]int, len(m.actionSpace)) }

func (m *fakeModel) Snapshot() WeightSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := WeightSnapshot{}
	for k, v := range m.weights {
		out[k] = append([]float64(nil), v...)
	}
	return out
}

func (m *fakeModel) Restore(ws WeightSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.weights = ws
}

func (m *fakeModel) ZeroGrad() {}

func (m *fakeModel) Backward(in ModelInput, states []AgentState, dLogits [][][]float64, dBaseline []float64) {
	m.enter()
	time.Sleep(50 * time.Microsecond)
	m.leave()
}

func (m *fakeModel) ClipGrad(maxNorm float64) float64 { return 0 }

func (m *fakeModel) enter() {
	m.mu.Lock()
	m.active++
	if m.active > m.maxActive {
		m.maxActive = m.active
	}
	m.backwards++
	m.mu.Unlock()
}

func (m *fakeModel) leave() {
	m.mu.Lock()
	m.active--
	m.mu.Unlock()
}

func (m *fakeModel) stats() (maxActive, backwards int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxActive, m.backwards
}

// fakeDisc scores frames through scoreFn (zero by default) and carries the
// same Backward instrumentation as fakeModel.
type fakeDisc struct {
	scoreFn func(frame []float64) float64

	mu        sync.Mutex
	weights   WeightSnapshot
	active    int
	maxActive int
	backwards int
}

func newFakeDisc() *fakeDisc {
	return &fakeDisc{weights: WeightSnapshot{"w": {0}}}
}

func (d *fakeDisc) Score(frames [][]float64, condition [][]float64) []float64 {
	out := make([]float64, len(frames))
	if d.scoreFn != nil {
		for i, f := range frames {
			out[i] = d.scoreFn(f)
		}
	}
	return out
}

func (d *fakeDisc) Snapshot() WeightSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := WeightSnapshot{}
	for k, v := range d.weights {
		out[k] = append([]float64(nil), v...)
	}
	return out
}

func (d *fakeDisc) Restore(ws WeightSnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.weights = ws
}

func (d *fakeDisc) ZeroGrad() {}

func (d *fakeDisc) Backward(frames [][]float64, condition [][]float64, dScore []float64) {
	d.mu.Lock()
	d.active++
	if d.active > d.maxActive {
		d.maxActive = d.active
	}
	d.backwards++
	d.mu.Unlock()
	time.Sleep(50 * time.Microsecond)
	d.mu.Lock()
	d.active--
	d.mu.Unlock()
}

func (d *fakeDisc) ClipGrad(maxNorm float64) float64 { return 0 }

type fakeOptimizer struct {
	mu    sync.Mutex
	steps int
}

func (o *fakeOptimizer) Step() {
	o.mu.Lock()
	o.steps++
	o.mu.Unlock()
}

func (o *fakeOptimizer) State() OptState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return OptState{Step: o.steps}
}

func (o *fakeOptimizer) Restore(s OptState) {
	o.mu.Lock()
	o.steps = s.Step
	o.mu.Unlock()
}

func (o *fakeOptimizer) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.steps
}

type fakeScheduler struct {
	mu    sync.Mutex
	epoch int
}

func (s *fakeScheduler) Step() {
	s.mu.Lock()
	s.epoch++
	s.mu.Unlock()
}

func (s *fakeScheduler) State() SchedState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SchedState{Epoch: s.epoch}
}

func (s *fakeScheduler) Restore(st SchedState) {
	s.mu.Lock()
	s.epoch = st.Epoch
	s.mu.Unlock()
}

// fakeSource hands out zero images of a fixed size, forever.
type fakeSource struct {
	frameLen int
}

func (s fakeSource) Next() ([]float64, error) {
	return make([]float64, s.frameLen), nil
}
