package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/atelier-rl/paintpool/util"
)

// Source supplies real images for conditioning and discriminator training.
type Source interface {
	Next() ([]float64, error)
}

// Trainer owns the full pipeline: actor pool, inference servers, policy
// learners, discriminator learners and the image supply, wired through the
// DynamicBatcher, the BatchingQueue and the bounded cross-subsystem queues.
type Trainer struct {
	cfg Config

	model      TrainableModel
	d          TrainableDiscriminator
	newModel   func(WeightSnapshot) Model
	newD       func(WeightSnapshot) Discriminator
	optimizer  Optimizer
	scheduler  Scheduler
	dOptimizer Optimizer
	dScheduler Scheduler
	envs       []Environment
	images     Source

	queue      *BatchingQueue
	batcher    *DynamicBatcher
	dQueue     chan SamplePair
	imageQueue chan []float64
	actorModel *ModelBox
	dEval      *DiscriminatorBox
	stats      *Stats

	learnerLock sync.Mutex
	dLock       sync.Mutex
	stopCh      chan struct{}
}

// TrainerDeps carries the collaborators the core does not construct itself.
type TrainerDeps struct {
	Model      TrainableModel
	NewModel   func(WeightSnapshot) Model
	D          TrainableDiscriminator
	NewD       func(WeightSnapshot) Discriminator
	Optimizer  Optimizer
	Scheduler  Scheduler
	DOptimizer Optimizer
	DScheduler Scheduler
	Envs       []Environment
	Images     Source
}

func NewTrainer(cfg Config, deps TrainerDeps) *Trainer {
	cfg = cfg.withDefaults()
	dQueueSize := cfg.MaxQueueSize / cfg.BatchSize
	if dQueueSize < 1 {
		dQueueSize = 1
	}
	return &Trainer{
		cfg:        cfg,
		model:      deps.Model,
		d:          deps.D,
		newModel:   deps.NewModel,
		newD:       deps.NewD,
		optimizer:  deps.Optimizer,
		scheduler:  deps.Scheduler,
		dOptimizer: deps.DOptimizer,
		dScheduler: deps.DScheduler,
		envs:       deps.Envs,
		images:     deps.Images,

		queue:      NewBatchingQueue(cfg.BatchSize, cfg.MaxQueueSize, true),
		batcher:    NewDynamicBatcher(cfg.BatcherMinBatch, cfg.BatcherMaxBatch, cfg.BatcherTimeout, true),
		dQueue:     make(chan SamplePair, dQueueSize),
		imageQueue: make(chan []float64, cfg.MaxQueueSize),
		stats:      NewStats(),
		stopCh:     make(chan struct{}),
	}
}

// Stats exposes the shared counters for external reporting.
func (t *Trainer) Stats() *Stats {
	return t.stats
}

// Run trains until the total-step budget is reached or ctx is cancelled,
// then closes the queues and joins the primary workers. Natural completion
// writes a final checkpoint; cancellation skips it. Discriminator learners
// and the image loader are daemons and are deliberately not joined.
func (t *Trainer) Run(ctx context.Context) error {
	if err := t.resume(); err != nil {
		return fmt.Errorf("restoring checkpoint: %w", err)
	}

	// Actor-facing snapshots start out equal to the trained copies.
	t.actorModel = NewModelBox(t.newModel(t.model.Snapshot()))
	t.dEval = NewDiscriminatorBox(t.newD(t.d.Snapshot()))

	initialOutput := AgentOutput{
		Action: t.model.InitialAction(),
		Logits: make([][]float64, len(t.cfg.ActionSpace)),
	}
	for c, n := range t.cfg.ActionSpace {
		initialOutput.Logits[c] = make([]float64, n)
	}
	pool := NewActorPool(
		t.cfg.UnrollLength, t.queue, t.batcher, t.envs,
		initialOutput, t.model.InitialState(),
		make([]float64, t.cfg.FrameLen), t.cfg.NoiseDim,
	)

	// Daemons: image supply and discriminator learners.
	go t.runImageLoader()
	for i := 0; i < t.cfg.NumLearnerThreads; i++ {
		dl := &discriminatorLearner{
			cfg:         t.cfg,
			queue:       t.dQueue,
			d:           t.d,
			dEval:       t.dEval,
			optimizer:   t.dOptimizer,
			scheduler:   t.dScheduler,
			stats:       t.stats,
			lock:        &t.dLock,
			newSnapshot: t.newD,
		}
		go dl.run()
	}

	// Primary workers, joined at shutdown.
	var wg sync.WaitGroup
	errCh := make(chan error, 1+t.cfg.NumLearnerThreads+t.cfg.NumInferenceThreads)
	start := func(name string, f func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f(); err != nil {
				select {
				case errCh <- fmt.Errorf("%s: %w", name, err):
				default:
				}
			}
		}()
	}

	start("actor pool", pool.Run)
	for i := 0; i < t.cfg.NumInferenceThreads; i++ {
		srv := &inferenceServer{
			batcher:    t.batcher,
			actorModel: t.actorModel,
			imageQueue: t.imageQueue,
			stopCh:     t.stopCh,
			condition:  t.cfg.Condition,
			noiseDim:   t.cfg.NoiseDim,
			rng:        rand.New(rand.NewSource(int64(i) + 1)),
		}
		start(fmt.Sprintf("inference server %d", i), srv.run)
	}
	for i := 0; i < t.cfg.NumLearnerThreads; i++ {
		pl := &policyLearner{
			cfg:         t.cfg,
			queue:       t.queue,
			dQueue:      t.dQueue,
			model:       t.model,
			actorModel:  t.actorModel,
			dEval:       t.dEval,
			optimizer:   t.optimizer,
			scheduler:   t.scheduler,
			stats:       t.stats,
			lock:        &t.learnerLock,
			stopCh:      t.stopCh,
			newSnapshot: t.newModel,
		}
		start(fmt.Sprintf("learner %d", i), pl.run)
	}

	runErr := t.watch(ctx, errCh)
	completed := runErr == nil

	if completed && !t.cfg.DisableCheckpoint {
		if err := t.checkpoint(); err != nil {
			log.Printf("final checkpoint failed: %v", err)
		}
	}

	// The single shutdown signal: every blocked worker observes it.
	close(t.stopCh)
	t.batcher.Close()
	t.queue.Close()
	wg.Wait()
	close(t.dQueue)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// watch is the reporting loop: it prints live progress, writes periodic
// checkpoints and returns once the step budget is reached (nil), the context
// is cancelled, or a worker reports a fatal error.
func (t *Trainer) watch(ctx context.Context, errCh <-chan error) error {
	printer := util.NewTerminalPrinter(t.cfg.ReportInterval)
	line := printer.NewLine()
	printer.Start(ctx)
	defer printer.Stop()

	lastCheckpoint := time.Now()
	lastStep := t.stats.Step()
	lastTime := time.Now()

	ticker := time.NewTicker(t.cfg.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		case err := <-errCh:
			return err
		case <-ticker.C:
		}

		step, values := t.stats.Snapshot()
		now := time.Now()
		sps := float64(step-lastStep) / now.Sub(lastTime).Seconds()
		lastStep, lastTime = step, now

		line.Set(fmt.Sprintf(
			"Step %d @ %.1f SPS. Batcher: %d pending. Queue: %d unrolls. Loss: %.5f (pg %.5f, baseline %.5f, entropy %.5f). D: %.5f",
			step, sps, t.batcher.Size(), t.queue.Size(),
			values["total_loss"], values["pg_loss"], values["baseline_loss"],
			values["entropy_loss"], values["D_loss"],
		))

		if step >= t.cfg.TotalSteps {
			return nil
		}
		if !t.cfg.DisableCheckpoint && time.Since(lastCheckpoint) > t.cfg.CheckpointInterval {
			if err := t.checkpoint(); err != nil {
				log.Printf("periodic checkpoint failed: %v", err)
			}
			lastCheckpoint = time.Now()
		}
	}
}

// runImageLoader refills the bounded image queue from the dataset. Daemon;
// abandoned at process exit.
func (t *Trainer) runImageLoader() {
	for {
		img, err := t.images.Next()
		if err != nil {
			log.Printf("image source: %v", err)
			return
		}
		select {
		case t.imageQueue <- img:
		case <-t.stopCh:
			return
		}
	}
}

func (t *Trainer) checkpoint() error {
	if t.cfg.CheckpointPath == "" {
		return nil
	}
	t.learnerLock.Lock()
	t.dLock.Lock()
	step, values := t.stats.Snapshot()
	c := &Checkpoint{
		Model:       t.model.Snapshot(),
		D:           t.d.Snapshot(),
		Optimizer:   t.optimizer.State(),
		DOptimizer:  t.dOptimizer.State(),
		Scheduler:   t.scheduler.State(),
		DScheduler:  t.dScheduler.State(),
		StatsStep:   step,
		StatsValues: values,
	}
	t.dLock.Unlock()
	t.learnerLock.Unlock()
	return SaveCheckpoint(t.cfg.CheckpointPath, c)
}

// resume restores all checkpoint fields before any worker starts.
func (t *Trainer) resume() error {
	if t.cfg.CheckpointPath == "" || !util.FileExists(t.cfg.CheckpointPath) {
		return nil
	}
	c, err := LoadCheckpoint(t.cfg.CheckpointPath)
	if err != nil {
		return err
	}
	t.model.Restore(c.Model)
	t.d.Restore(c.D)
	t.optimizer.Restore(c.Optimizer)
	t.dOptimizer.Restore(c.DOptimizer)
	t.scheduler.Restore(c.Scheduler)
	t.dScheduler.Restore(c.DScheduler)
	t.stats.Restore(c.StatsStep, c.StatsValues)
	log.Printf("resuming preempted run at step %d", c.StatsStep)
	return nil
}
