package core

import (
	"errors"
	"fmt"
	"log"
	"sync"
)

// ActorPool owns one loop per actor. Each loop steps its environment through
// the DynamicBatcher and pushes completed unrolls into the learner's
// BatchingQueue. The pool is told to stop by closing the batcher and queue;
// any other failure inside an actor loop is treated as a pipeline-integrity
// failure: the pool closes both queues itself and Run returns the error.
type ActorPool struct {
	unrollLength  int
	queue         *BatchingQueue
	batcher       *DynamicBatcher
	envs          []Environment
	initialOutput AgentOutput
	initialState  AgentState
	initialImage  []float64
	noiseDim      int

	closeOnce sync.Once
	fatalErr  error
}

func NewActorPool(
	unrollLength int,
	queue *BatchingQueue,
	batcher *DynamicBatcher,
	envs []Environment,
	initialOutput AgentOutput,
	initialState AgentState,
	initialImage []float64,
	noiseDim int,
) *ActorPool {
	return &ActorPool{
		unrollLength:  unrollLength,
		queue:         queue,
		batcher:       batcher,
		envs:          envs,
		initialOutput: initialOutput,
		initialState:  initialState,
		initialImage:  initialImage,
		noiseDim:      noiseDim,
	}
}

// Run drives all actor loops and blocks until every one has returned. A clean
// stop (closed queues) returns nil; the first fatal actor error is returned
// after all loops have unwound.
func (p *ActorPool) Run() error {
	var wg sync.WaitGroup
	for i := range p.envs {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := p.runActor(id, p.envs[id]); err != nil && !errors.Is(err, ErrClosed) {
				p.fail(fmt.Errorf("actor %d: %w", id, err))
			}
		}(i)
	}
	wg.Wait()
	return p.fatalErr
}

// fail records the first fatal error and closes the shared queues so every
// other blocked actor unwinds instead of hanging.
func (p *ActorPool) fail(err error) {
	p.closeOnce.Do(func() {
		p.fatalErr = err
		log.Printf("fatal error in actor pool: %v", err)
		p.batcher.Close()
		p.queue.Close()
	})
}

type actorStep struct {
	env   EnvOutput
	agent AgentOutput
	noise []float64
}

// runActor is the per-actor state machine: connect (done by the caller),
// then repeatedly infer through the batcher, step the environment, and queue
// each completed unroll. Unroll entry t pairs an env output with the action
// that produced it; entry 0 repeats the final entry of the previous unroll so
// the learner can align actions against resulting observations.
func (p *ActorPool) runActor(id int, env Environment) error {
	envOut, err := env.Reset()
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	state := p.initialState
	image := p.initialImage
	carry := actorStep{
		env:   envOut,
		agent: p.initialOutput,
		noise: make([]float64, p.noiseDim),
	}

	for {
		unroll := &Unroll{
			Env:          make([]EnvOutput, 0, p.unrollLength+1),
			Agent:        make([]AgentOutput, 0, p.unrollLength+1),
			Noise:        make([][]float64, 0, p.unrollLength+1),
			InitialState: state,
			Image:        image,
		}
		unroll.Env = append(unroll.Env, carry.env)
		unroll.Agent = append(unroll.Agent, carry.agent)
		unroll.Noise = append(unroll.Noise, carry.noise)

		for t := 0; t < p.unrollLength; t++ {
			res, err := p.batcher.Submit(InferenceRequest{
				Env:        envOut,
				PrevAction: carry.agent.Action,
				State:      state,
				Image:      image,
			})
			if err != nil {
				return err
			}
			state = res.State
			image = res.Image

			next, err := env.Step(res.Output.Action)
			if err != nil {
				return fmt.Errorf("step: %w", err)
			}

			carry = actorStep{env: next, agent: res.Output, noise: res.Noise}
			unroll.Env = append(unroll.Env, carry.env)
			unroll.Agent = append(unroll.Agent, carry.agent)
			unroll.Noise = append(unroll.Noise, carry.noise)
			envOut = next
		}

		if err := p.queue.Put(unroll); err != nil {
			return err
		}
	}
}
