package core

import (
	"math"
	"sync"
)

const (
	realLabel = 1.0
	fakeLabel = 0.0
)

// discriminatorLearner trains the discriminator on (fake, real) pairs
// forwarded by the policy learner. It runs under its own lock, independent
// from the policy learner's, and republishes an evaluation snapshot after
// every update. The two subsystems tolerate arbitrary interleaving; each
// trains against a recent snapshot of the other.
type discriminatorLearner struct {
	cfg         Config
	queue       <-chan SamplePair
	d           TrainableDiscriminator
	dEval       *DiscriminatorBox
	optimizer   Optimizer
	scheduler   Scheduler
	stats       *Stats
	lock        *sync.Mutex
	newSnapshot func(WeightSnapshot) Discriminator
}

func (l *discriminatorLearner) run() {
	for pair := range l.queue {
		l.step(pair)
	}
}

func (l *discriminatorLearner) step(pair SamplePair) {
	l.lock.Lock()
	defer l.lock.Unlock()

	var condition [][]float64
	if l.cfg.Condition {
		condition = pair.Real
	}

	l.d.ZeroGrad()

	// Real samples against the real label. The real and fake terms are
	// backpropagated separately so each gets its own norm clip.
	pReal := l.d.Score(pair.Real, condition)
	realLoss := 0.0
	dReal := make([]float64, len(pReal))
	sigmaReal := 0.0
	for i, p := range pReal {
		realLoss += bceWithLogits(p, realLabel)
		dReal[i] = (sigmoid(p) - realLabel) / float64(len(pReal))
		sigmaReal += sigmoid(p)
	}
	realLoss /= float64(len(pReal))
	sigmaReal /= float64(len(pReal))
	l.d.Backward(pair.Real, condition, dReal)
	l.d.ClipGrad(l.cfg.GradNormClipping)

	// Fake samples: the unroll flattened along time, against the fake label.
	steps := len(pair.Fake)
	b := len(pair.Real)
	fakeRows := make([][]float64, 0, steps*b)
	var fakeCond [][]float64
	if l.cfg.Condition {
		fakeCond = make([][]float64, 0, steps*b)
	}
	for t := 0; t < steps; t++ {
		for i := 0; i < b; i++ {
			fakeRows = append(fakeRows, pair.Fake[t][i])
			if l.cfg.Condition {
				fakeCond = append(fakeCond, pair.Real[i])
			}
		}
	}
	pFake := l.d.Score(fakeRows, fakeCond)
	fakeLoss := 0.0
	dFake := make([]float64, len(pFake))
	sigmaFake := 0.0
	for i, p := range pFake {
		fakeLoss += bceWithLogits(p, fakeLabel)
		dFake[i] = (sigmoid(p) - fakeLabel) / float64(len(pFake))
		sigmaFake += sigmoid(p)
	}
	fakeLoss /= float64(len(pFake))
	sigmaFake /= float64(len(pFake))
	l.d.Backward(fakeRows, fakeCond, dFake)
	l.d.ClipGrad(l.cfg.GradNormClipping)

	l.optimizer.Step()
	l.scheduler.Step()

	l.dEval.Store(l.newSnapshot(l.d.Snapshot()))

	l.stats.Set("D_loss", realLoss+fakeLoss)
	l.stats.Set("real_loss", realLoss)
	l.stats.Set("fake_loss", fakeLoss)
	l.stats.Set("D_x", sigmaReal)
	l.stats.Set("D_G_z1", sigmaFake)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// bceWithLogits is the numerically stable binary cross entropy on a logit.
func bceWithLogits(logit, label float64) float64 {
	return math.Max(logit, 0) - logit*label + math.Log1p(math.Exp(-math.Abs(logit)))
}
