package core

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestBatcherDeliversResultsToSubmitters(t *testing.T) {
	b := NewDynamicBatcher(1, 8, 10*time.Millisecond, false)

	const n = 8
	results := make([]InferenceResult, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = b.Submit(InferenceRequest{
				Env: EnvOutput{Reward: float64(i)},
			})
		}(i)
	}

	served := 0
	for served < n {
		batch, err := b.NextBatch()
		if err != nil {
			t.Fatalf("NextBatch failed: %v", err)
		}
		reqs := batch.Requests()
		outs := make([]InferenceResult, len(reqs))
		for j, req := range reqs {
			// echo the request's tag so each submitter can verify
			// it got its own result back
			outs[j] = InferenceResult{Output: AgentOutput{Baseline: req.Env.Reward}}
		}
		if err := batch.SetOutputs(outs); err != nil {
			t.Fatalf("SetOutputs failed: %v", err)
		}
		served += len(reqs)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Errorf("submitter %d got error: %v", i, errs[i])
		}
		if results[i].Output.Baseline != float64(i) {
			t.Errorf("submitter %d got result %.0f, want %d", i, results[i].Output.Baseline, i)
		}
	}
}

func TestBatcherReleasesAtMaxBatch(t *testing.T) {
	const maxBatch = 4
	b := NewDynamicBatcher(1, maxBatch, time.Hour, false)

	var wg sync.WaitGroup
	for i := 0; i < 2*maxBatch; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Submit(InferenceRequest{})
		}()
	}

	for i := 0; i < 2; i++ {
		batch, err := b.NextBatch()
		if err != nil {
			t.Fatalf("NextBatch failed: %v", err)
		}
		if batch.Len() != maxBatch {
			t.Errorf("batch %d has %d requests, want %d", i, batch.Len(), maxBatch)
		}
		batch.SetOutputs(make([]InferenceResult, batch.Len()))
	}
	wg.Wait()
}

func TestBatcherTimeoutReleasesPartialBatch(t *testing.T) {
	b := NewDynamicBatcher(1, 64, 20*time.Millisecond, false)

	go b.Submit(InferenceRequest{})

	done := make(chan *InferenceBatch, 1)
	go func() {
		batch, err := b.NextBatch()
		if err != nil {
			t.Errorf("NextBatch failed: %v", err)
			return
		}
		done <- batch
	}()

	select {
	case batch := <-done:
		if batch.Len() != 1 {
			t.Errorf("got batch of %d, want 1", batch.Len())
		}
		batch.SetOutputs(make([]InferenceResult, batch.Len()))
	case <-time.After(2 * time.Second):
		t.Fatal("single request was never released by the timeout")
	}
}

func TestBatcherHoldsBelowMinBatch(t *testing.T) {
	b := NewDynamicBatcher(4, 8, 10*time.Millisecond, false)

	go b.Submit(InferenceRequest{})

	done := make(chan struct{})
	go func() {
		b.NextBatch()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("batch released below the minimum size")
	case <-time.After(100 * time.Millisecond):
	}
	b.Close()
	<-done
}

func TestBatcherCloseUnblocksSubmitters(t *testing.T) {
	b := NewDynamicBatcher(8, 8, time.Hour, false)

	const n = 5
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := b.Submit(InferenceRequest{})
			errCh <- err
		}()
	}

	for b.Size() < n {
		time.Sleep(time.Millisecond)
	}
	b.Close()

	for i := 0; i < n; i++ {
		select {
		case err := <-errCh:
			if !errors.Is(err, ErrClosed) {
				t.Errorf("submitter got %v, want ErrClosed", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("submitter still blocked after Close")
		}
	}

	if _, err := b.Submit(InferenceRequest{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit after Close got %v, want ErrClosed", err)
	}
	if _, err := b.NextBatch(); !errors.Is(err, ErrClosed) {
		t.Errorf("NextBatch after Close got %v, want ErrClosed", err)
	}
}

func TestBatchFailsAllOnWrongOutputCount(t *testing.T) {
	b := NewDynamicBatcher(1, 8, 10*time.Millisecond, false)

	errCh := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := b.Submit(InferenceRequest{})
			errCh <- err
		}()
	}

	batch, err := b.NextBatch()
	if err != nil {
		t.Fatalf("NextBatch failed: %v", err)
	}
	if err := batch.SetOutputs(make([]InferenceResult, batch.Len()+1)); err == nil {
		t.Error("SetOutputs accepted a mismatched output count")
	}

	for i := 0; i < batch.Len(); i++ {
		if err := <-errCh; err == nil {
			t.Error("submitter got nil error after failed SetOutputs")
		}
	}
	// drain any submitter that landed in a later batch
	b.Close()
}

func TestBatchRejectsInconsistentOutputShapes(t *testing.T) {
	b := NewDynamicBatcher(2, 2, time.Hour, true)

	errCh := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := b.Submit(InferenceRequest{})
			errCh <- err
		}()
	}

	batch, err := b.NextBatch()
	if err != nil {
		t.Fatalf("NextBatch failed: %v", err)
	}
	outs := []InferenceResult{
		{Output: AgentOutput{Action: []int{0, 0}}},
		{Output: AgentOutput{Action: []int{0}}},
	}
	err = batch.SetOutputs(outs)
	var shapeErr *ShapeError
	if !errors.As(err, &shapeErr) {
		t.Fatalf("SetOutputs returned %v, want a ShapeError", err)
	}
	for i := 0; i < 2; i++ {
		if err := <-errCh; !errors.As(err, &shapeErr) {
			t.Errorf("submitter got %v, want a ShapeError", err)
		}
	}
}

func TestBatcherManyProducersOneServer(t *testing.T) {
	b := NewDynamicBatcher(1, 16, 5*time.Millisecond, false)

	const producers = 32
	const perProducer = 20
	var wg sync.WaitGroup
	var failed int64
	var mu sync.Mutex
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				tag := float64(i*perProducer + j)
				res, err := b.Submit(InferenceRequest{Env: EnvOutput{Reward: tag}})
				if err != nil || res.Output.Baseline != tag {
					mu.Lock()
					failed++
					mu.Unlock()
					return
				}
			}
		}(i)
	}

	go func() {
		wg.Wait()
		b.Close()
	}()

	for {
		batch, err := b.NextBatch()
		if err != nil {
			break
		}
		reqs := batch.Requests()
		outs := make([]InferenceResult, len(reqs))
		for j, req := range reqs {
			outs[j] = InferenceResult{Output: AgentOutput{Baseline: req.Env.Reward}}
		}
		batch.SetOutputs(outs)
	}

	if failed != 0 {
		t.Errorf("%d producers got a wrong or failed result", failed)
	}
}
