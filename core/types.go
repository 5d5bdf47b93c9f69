package core

import "fmt"

// EnvOutput is the result of one environment step.
type EnvOutput struct {
	Frame         []float64 `json:"frame"`
	Reward        float64   `json:"reward"`
	Done          bool      `json:"done"`
	EpisodeStep   int       `json:"episode_step"`
	EpisodeReturn float64   `json:"episode_return"`
}

// AgentOutput is one policy decision. Action holds one value per discrete
// action component, Logits the unnormalized scores of each component.
type AgentOutput struct {
	Action   []int
	Logits   [][]float64
	Baseline float64
}

// AgentState is the opaque hidden state carried between inference calls.
type AgentState []float64

// InferenceRequest is one pending actor's model input.
type InferenceRequest struct {
	Env        EnvOutput
	PrevAction []int
	State      AgentState
	Image      []float64
}

// InferenceResult carries the model outputs back to the submitting actor.
type InferenceResult struct {
	Output AgentOutput
	State  AgentState
	Noise  []float64
	Image  []float64
}

// Unroll is a fixed-length sequence of environment/agent interaction steps
// collected by one actor. It holds unroll_length+1 pairs: pair 0 is the final
// pair of the previous unroll so the learner can shift observations against
// actions. InitialState is the agent state at the start of the unroll, Noise
// the per-step noise samples and Image the actor's conditioning image.
type Unroll struct {
	Env          []EnvOutput
	Agent        []AgentOutput
	Noise        [][]float64
	InitialState AgentState
	Image        []float64
}

// shape returns a fingerprint of the per-field sizes of the unroll, used by
// the batching queue to reject mismatched members of a batch.
func (u *Unroll) shape() string {
	frameLen := -1
	if len(u.Env) > 0 {
		frameLen = len(u.Env[0].Frame)
	}
	components := -1
	logitLens := ""
	if len(u.Agent) > 0 {
		components = len(u.Agent[0].Action)
		for _, l := range u.Agent[0].Logits {
			logitLens += fmt.Sprintf(".%d", len(l))
		}
	}
	noiseLen := -1
	if len(u.Noise) > 0 {
		noiseLen = len(u.Noise[0])
	}
	return fmt.Sprintf("T%d/F%d/A%d%s/N%d/I%d",
		len(u.Env), frameLen, components, logitLens, noiseLen, len(u.Image))
}

// TrainingBatch is a fixed number of unrolls stacked along the batch axis.
// The member unrolls are guaranteed to share identical per-step shapes.
type TrainingBatch struct {
	Unrolls []*Unroll
}

// Size returns the number of stacked unrolls.
func (b *TrainingBatch) Size() int {
	return len(b.Unrolls)
}
