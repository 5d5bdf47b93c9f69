package core

import "sync/atomic"

// WeightSnapshot is the serialized parameter set of a policy or
// discriminator, keyed by parameter name.
type WeightSnapshot map[string][]float64

// OptState is the persistable state of an optimizer.
type OptState struct {
	Step int                  `json:"step"`
	LR   float64              `json:"lr"`
	M    map[string][]float64 `json:"m"`
	V    map[string][]float64 `json:"v"`
}

// SchedState is the persistable state of a learning-rate schedule.
type SchedState struct {
	Epoch int `json:"epoch"`
}

// ModelInput is one timestep of model input for a batch of B rows.
type ModelInput struct {
	Frames      [][]float64
	Condition   [][]float64 // nil unless conditioning is enabled
	PrevActions [][]int
	Noise       [][]float64
	Done        []bool
}

// Model is the opaque policy/value function. Forward maps one timestep of
// batched inputs and per-row agent states to agent outputs and new states.
type Model interface {
	Forward(in ModelInput, states []AgentState) ([]AgentOutput, []AgentState)
	InitialState() AgentState
	InitialAction() []int
	Snapshot() WeightSnapshot
	Restore(WeightSnapshot)
}

// TrainableModel is a Model whose parameters can be updated. Backward
// accumulates parameter gradients for one timestep given the loss gradients
// with respect to that timestep's logits and baseline.
type TrainableModel interface {
	Model
	ZeroGrad()
	Backward(in ModelInput, states []AgentState, dLogits [][][]float64, dBaseline []float64)
	ClipGrad(maxNorm float64) float64
}

// Discriminator scores frames (optionally conditioned on a real image);
// higher scores mean "more real".
type Discriminator interface {
	Score(frames [][]float64, condition [][]float64) []float64
	Snapshot() WeightSnapshot
	Restore(WeightSnapshot)
}

// TrainableDiscriminator is a Discriminator whose parameters can be updated.
type TrainableDiscriminator interface {
	Discriminator
	ZeroGrad()
	Backward(frames [][]float64, condition [][]float64, dScore []float64)
	ClipGrad(maxNorm float64) float64
}

// Optimizer applies accumulated gradients to a parameter set.
type Optimizer interface {
	Step()
	State() OptState
	Restore(OptState)
}

// Scheduler advances a learning-rate schedule, one step per update.
type Scheduler interface {
	Step()
	State() SchedState
	Restore(SchedState)
}

// ModelBox publishes the actor-facing policy snapshot. The stored model is
// replaced wholesale after each learner step so readers never observe a
// partially-updated parameter set.
type ModelBox struct {
	v atomic.Value
}

func NewModelBox(m Model) *ModelBox {
	b := &ModelBox{}
	b.v.Store(&m)
	return b
}

func (b *ModelBox) Load() Model {
	return *b.v.Load().(*Model)
}

func (b *ModelBox) Store(m Model) {
	b.v.Store(&m)
}

// DiscriminatorBox publishes the evaluation-mode discriminator snapshot
// consumed by the policy learner, replaced wholesale after each
// discriminator step.
type DiscriminatorBox struct {
	v atomic.Value
}

func NewDiscriminatorBox(d Discriminator) *DiscriminatorBox {
	b := &DiscriminatorBox{}
	b.v.Store(&d)
	return b
}

func (b *DiscriminatorBox) Load() Discriminator {
	return *b.v.Load().(*Discriminator)
}

func (b *DiscriminatorBox) Store(d Discriminator) {
	b.v.Store(&d)
}
