package core

import (
	"errors"
	"log"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// SamplePair is forwarded from the policy learner to the discriminator
// learner after every update: the generated frames of one training batch and
// the real conditioning image of each batch row.
type SamplePair struct {
	Fake [][][]float64 // (T+1, B, frame)
	Real [][]float64   // (B, frame)
}

// policyLearner consumes training batches and updates the policy weights.
// All learner goroutines share one lock so exactly one update proceeds at a
// time; pulling batches stays concurrent.
type policyLearner struct {
	cfg         Config
	queue       *BatchingQueue
	dQueue      chan<- SamplePair
	model       TrainableModel
	actorModel  *ModelBox
	dEval       *DiscriminatorBox
	optimizer   Optimizer
	scheduler   Scheduler
	stats       *Stats
	lock        *sync.Mutex
	stopCh      <-chan struct{}
	newSnapshot func(WeightSnapshot) Model
}

func (l *policyLearner) run() error {
	for {
		batch, err := l.queue.NextBatch()
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return nil
			}
			var shapeErr *ShapeError
			if errors.As(err, &shapeErr) {
				log.Printf("training batch rejected: %v", err)
				continue
			}
			return err
		}
		if err := l.step(batch); err != nil {
			if errors.Is(err, ErrClosed) {
				return nil
			}
			return err
		}
	}
}

func (l *policyLearner) step(batch *TrainingBatch) error {
	B := batch.Size()
	steps := len(batch.Unrolls[0].Env) // unroll length + 1
	T := steps - 1

	frames := make([][][]float64, steps)
	for t := 0; t < steps; t++ {
		frames[t] = make([][]float64, B)
		for b, u := range batch.Unrolls {
			frames[t][b] = u.Env[t].Frame
		}
	}
	images := make([][]float64, B)
	for b, u := range batch.Unrolls {
		images[b] = u.Image
	}

	// Forward the generated/real pair to the discriminator learner before
	// taking the update lock. A slow discriminator throttles us here.
	select {
	case l.dQueue <- SamplePair{Fake: frames, Real: images}:
	case <-l.stopCh:
		return ErrClosed
	}

	l.lock.Lock()
	defer l.lock.Unlock()

	var condition [][]float64
	if l.cfg.Condition {
		condition = images
	}

	// Replay the target policy over the full unroll.
	states := make([]AgentState, B)
	for b, u := range batch.Unrolls {
		states[b] = u.InitialState
	}
	inputs := make([]ModelInput, steps)
	statesAt := make([][]AgentState, steps)
	learnerOuts := make([][]AgentOutput, steps)
	for t := 0; t < steps; t++ {
		in := ModelInput{
			Frames:      frames[t],
			Condition:   condition,
			PrevActions: make([][]int, B),
			Noise:       make([][]float64, B),
			Done:        make([]bool, B),
		}
		for b, u := range batch.Unrolls {
			in.PrevActions[b] = u.Agent[t].Action
			in.Noise[b] = u.Noise[t]
			in.Done[b] = u.Env[t].Done
		}
		inputs[t] = in
		statesAt[t] = states
		learnerOuts[t], states = l.model.Forward(in, states)
	}

	rewards := l.shapedRewards(batch, frames, condition)

	// Shift so that action t lines up with the observation it produced.
	// Behavior data comes from unroll entries 1..T, target data from the
	// learner forward at 0..T-1; the final baseline bootstraps the horizon.
	components := len(l.cfg.ActionSpace)
	behaviorLogits := make([][][][]float64, components)
	targetLogits := make([][][][]float64, components)
	for c := 0; c < components; c++ {
		behaviorLogits[c] = make([][][]float64, T)
		targetLogits[c] = make([][][]float64, T)
		for t := 0; t < T; t++ {
			behaviorLogits[c][t] = make([][]float64, B)
			targetLogits[c][t] = make([][]float64, B)
			for b, u := range batch.Unrolls {
				behaviorLogits[c][t][b] = u.Agent[t+1].Logits[c]
				targetLogits[c][t][b] = learnerOuts[t][b].Logits[c]
			}
		}
	}
	actions := make([][][]int, T)
	discounts := make([][]float64, T)
	values := make([][]float64, T)
	for t := 0; t < T; t++ {
		actions[t] = make([][]int, B)
		discounts[t] = make([]float64, B)
		values[t] = make([]float64, B)
		for b, u := range batch.Unrolls {
			actions[t][b] = u.Agent[t+1].Action
			if u.Env[t+1].Done {
				discounts[t][b] = 0
			} else {
				discounts[t][b] = l.cfg.Discounting
			}
			values[t][b] = learnerOuts[t][b].Baseline
		}
	}
	bootstrap := make([]float64, B)
	for b := range bootstrap {
		bootstrap[b] = learnerOuts[T][b].Baseline
	}

	vt := VTraceFromLogits(
		behaviorLogits, targetLogits, actions,
		discounts, rewards, values, bootstrap,
		l.cfg.RhoBar, l.cfg.CBar,
	)

	// Losses and their gradients with respect to the learner outputs. The
	// V-trace targets and advantages are treated as constants.
	var pgLoss, baselineLoss, entropyLoss float64
	l.model.ZeroGrad()
	for t := 0; t < T; t++ {
		dLogits := make([][][]float64, B)
		dBaseline := make([]float64, B)
		for b := 0; b < B; b++ {
			adv := vt.PGAdvantages[t][b]
			dLogits[b] = make([][]float64, components)
			for c := 0; c < components; c++ {
				logits := targetLogits[c][t][b]
				a := actions[t][b][c]
				probs, logProbs := softmax(logits)
				pgLoss += -logProbs[a] * adv

				var plogp float64
				for i := range probs {
					plogp += probs[i] * logProbs[i]
				}
				entropyLoss += l.cfg.EntropyCost * plogp

				d := make([]float64, len(logits))
				for i := range d {
					d[i] = adv * probs[i]
					if i == a {
						d[i] -= adv
					}
					d[i] += l.cfg.EntropyCost * probs[i] * (logProbs[i] - plogp)
				}
				dLogits[b][c] = d
			}
			diff := vt.Vs[t][b] - values[t][b]
			baselineLoss += l.cfg.BaselineCost * 0.5 * diff * diff
			dBaseline[b] = l.cfg.BaselineCost * -diff
		}
		l.model.Backward(inputs[t], statesAt[t], dLogits, dBaseline)
	}
	totalLoss := pgLoss + baselineLoss + entropyLoss

	l.model.ClipGrad(l.cfg.GradNormClipping)
	l.optimizer.Step()
	l.scheduler.Step()

	// Republish the actor-facing policy.
	l.actorModel.Store(l.newSnapshot(l.model.Snapshot()))

	l.stats.AddSteps(int64(l.cfg.UnrollLength) * int64(B))
	l.stats.Set("total_loss", totalLoss)
	l.stats.Set("pg_loss", pgLoss)
	l.stats.Set("baseline_loss", baselineLoss)
	l.stats.Set("entropy_loss", entropyLoss)
	l.stats.Set("final_reward", mean(rewards[T-1]))
	l.stats.Set("episode_reward", sumOfMeans(rewards))
	l.stats.Set("learner_queue_size", float64(l.queue.Size()))
	if l.cfg.Condition {
		l.stats.Set("l2_loss", meanSquaredError(frames[T], images))
	}
	return nil
}

// shapedRewards folds the frozen discriminator's score into the environment
// rewards and shifts them to length T. Without temporal credit assignment the
// score of the final frame lands on the final reward; with it, the telescoped
// per-step score difference is added at every step.
func (l *policyLearner) shapedRewards(batch *TrainingBatch, frames [][][]float64, condition [][]float64) [][]float64 {
	B := batch.Size()
	steps := len(frames)
	T := steps - 1
	D := l.dEval.Load()

	rewards := make([][]float64, T)
	for t := 0; t < T; t++ {
		rewards[t] = make([]float64, B)
		for b, u := range batch.Unrolls {
			rewards[t][b] = u.Env[t+1].Reward
		}
	}

	if l.cfg.UseTCA {
		scores := make([][]float64, steps)
		for t := 0; t < steps; t++ {
			scores[t] = D.Score(frames[t], condition)
		}
		for t := 0; t < T; t++ {
			for b := 0; b < B; b++ {
				rewards[t][b] += scores[t+1][b] - scores[t][b]
			}
		}
		return rewards
	}

	final := D.Score(frames[T], condition)
	for b := 0; b < B; b++ {
		rewards[T-1][b] += final[b]
	}
	return rewards
}

// softmax returns the probabilities and log probabilities of a logit vector.
func softmax(logits []float64) ([]float64, []float64) {
	lse := floats.LogSumExp(logits)
	probs := make([]float64, len(logits))
	logProbs := make([]float64, len(logits))
	for i, l := range logits {
		logProbs[i] = l - lse
		probs[i] = math.Exp(logProbs[i])
	}
	return probs, logProbs
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return floats.Sum(xs) / float64(len(xs))
}

func sumOfMeans(rows [][]float64) float64 {
	total := 0.0
	for _, r := range rows {
		total += mean(r)
	}
	return total
}

func meanSquaredError(a, b [][]float64) float64 {
	var sum float64
	var n int
	for i := range a {
		for j := range a[i] {
			d := a[i][j] - b[i][j]
			sum += d * d
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
