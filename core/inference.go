package core

import (
	"errors"
	"log"
	"math/rand"
)

// inferenceServer continuously pulls batches from the DynamicBatcher and runs
// the actor-facing model forward pass over them. Several servers may run
// concurrently against the same batcher.
type inferenceServer struct {
	batcher    *DynamicBatcher
	actorModel *ModelBox
	imageQueue <-chan []float64
	stopCh     <-chan struct{}
	condition  bool
	noiseDim   int
	rng        *rand.Rand
}

func (s *inferenceServer) run() error {
	for {
		batch, err := s.batcher.NextBatch()
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return nil
			}
			return err
		}
		if err := s.serve(batch); err != nil {
			if errors.Is(err, ErrClosed) {
				return nil
			}
			var shapeErr *ShapeError
			if errors.As(err, &shapeErr) {
				// Fatal to this batch only; the callers got the error.
				log.Printf("inference batch rejected: %v", err)
				continue
			}
			return err
		}
	}
}

func (s *inferenceServer) serve(batch *InferenceBatch) error {
	reqs := batch.Requests()
	b := len(reqs)

	in := ModelInput{
		Frames:      make([][]float64, b),
		PrevActions: make([][]int, b),
		Noise:       make([][]float64, b),
		Done:        make([]bool, b),
	}
	states := make([]AgentState, b)
	images := make([][]float64, b)

	for i, r := range reqs {
		// A finished episode means this row needs a fresh conditioning
		// image, fetched in batch order from the image supply.
		if r.Env.Done {
			select {
			case img := <-s.imageQueue:
				images[i] = img
			case <-s.stopCh:
				batch.Fail(ErrClosed)
				return ErrClosed
			}
		} else {
			images[i] = r.Image
		}

		noise := make([]float64, s.noiseDim)
		for j := range noise {
			noise[j] = s.rng.NormFloat64()
		}

		in.Frames[i] = r.Env.Frame
		in.PrevActions[i] = r.PrevAction
		in.Noise[i] = noise
		in.Done[i] = r.Env.Done
		states[i] = r.State
	}
	if s.condition {
		in.Condition = images
	}

	model := s.actorModel.Load()
	outs, newStates := model.Forward(in, states)

	results := make([]InferenceResult, b)
	for i := range results {
		results[i] = InferenceResult{
			Output: outs[i],
			State:  newStates[i],
			Noise:  in.Noise[i],
			Image:  images[i],
		}
	}
	return batch.SetOutputs(results)
}
