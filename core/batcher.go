package core

import (
	"fmt"
	"sync"
	"time"
)

type inferenceReply struct {
	res InferenceResult
	err error
}

type pendingInference struct {
	req     InferenceRequest
	arrived time.Time
	replyCh chan inferenceReply
}

// DynamicBatcher accumulates pending inference requests from many actor
// goroutines into batches for the model-serving loop. A batch is released as
// soon as the pending count reaches the maximum, or once the timeout has
// elapsed since the oldest pending request arrived and at least the minimum
// are present. Submit blocks until the serving loop fulfills the request.
type DynamicBatcher struct {
	mu         sync.Mutex
	cond       *sync.Cond
	pending    []*pendingInference
	timerArmed bool
	closed     bool

	minBatch     int
	maxBatch     int
	timeout      time.Duration
	checkOutputs bool
}

func NewDynamicBatcher(minBatch, maxBatch int, timeout time.Duration, checkOutputs bool) *DynamicBatcher {
	b := &DynamicBatcher{
		pending:      make([]*pendingInference, 0),
		minBatch:     minBatch,
		maxBatch:     maxBatch,
		timeout:      timeout,
		checkOutputs: checkOutputs,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Submit enqueues one request and blocks until its outputs are delivered or
// the batcher is closed. Safe to call from many goroutines.
func (b *DynamicBatcher) Submit(req InferenceRequest) (InferenceResult, error) {
	p := &pendingInference{
		req:     req,
		arrived: time.Now(),
		replyCh: make(chan inferenceReply, 1),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return InferenceResult{}, ErrClosed
	}
	b.pending = append(b.pending, p)
	b.cond.Broadcast()
	b.mu.Unlock()

	reply := <-p.replyCh
	return reply.res, reply.err
}

// NextBatch blocks until a batch is ready and removes it from the pending
// set. Returns ErrClosed once the batcher is closed.
func (b *DynamicBatcher) NextBatch() (*InferenceBatch, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		if b.closed {
			return nil, ErrClosed
		}
		n := len(b.pending)
		if n >= b.maxBatch {
			break
		}
		if n >= b.minBatch && n > 0 {
			elapsed := time.Since(b.pending[0].arrived)
			if elapsed >= b.timeout {
				break
			}
			b.armTimer(b.timeout - elapsed)
		}
		b.cond.Wait()
	}

	n := len(b.pending)
	if n > b.maxBatch {
		n = b.maxBatch
	}
	taken := b.pending[:n:n]
	b.pending = append(make([]*pendingInference, 0, len(b.pending)-n), b.pending[n:]...)
	if len(b.pending) > 0 {
		b.cond.Broadcast()
	}
	return &InferenceBatch{pending: taken, checkOutputs: b.checkOutputs}, nil
}

// armTimer schedules a wakeup for the pending-timeout check. At most one
// timer is outstanding at a time.
func (b *DynamicBatcher) armTimer(d time.Duration) {
	if b.timerArmed {
		return
	}
	b.timerArmed = true
	time.AfterFunc(d, func() {
		b.mu.Lock()
		b.timerArmed = false
		b.cond.Broadcast()
		b.mu.Unlock()
	})
}

// Close fails every blocked Submit with ErrClosed and rejects subsequent
// submissions and NextBatch calls.
func (b *DynamicBatcher) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, p := range b.pending {
		p.replyCh <- inferenceReply{err: ErrClosed}
	}
	b.pending = nil
	b.cond.Broadcast()
}

// Size reports the current pending-request count. For monitoring only.
func (b *DynamicBatcher) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// InferenceBatch is one released batch of requests. The serving loop reads
// Requests, runs the model, and fulfills every caller atomically through
// SetOutputs (or fails them all through Fail).
type InferenceBatch struct {
	pending      []*pendingInference
	checkOutputs bool
}

func (ib *InferenceBatch) Len() int {
	return len(ib.pending)
}

func (ib *InferenceBatch) Requests() []InferenceRequest {
	reqs := make([]InferenceRequest, len(ib.pending))
	for i, p := range ib.pending {
		reqs[i] = p.req
	}
	return reqs
}

// SetOutputs delivers one result per request, in request order. With output
// checking enabled, all results must agree on per-field shapes before any
// caller is unblocked; a mismatch fails the whole batch.
func (ib *InferenceBatch) SetOutputs(results []InferenceResult) error {
	if len(results) != len(ib.pending) {
		err := fmt.Errorf("batch of %d requests got %d outputs", len(ib.pending), len(results))
		ib.Fail(err)
		return err
	}
	if ib.checkOutputs && len(results) > 0 {
		want := resultShape(results[0])
		for _, r := range results[1:] {
			if got := resultShape(r); got != want {
				err := &ShapeError{Want: want, Got: got}
				ib.Fail(err)
				return err
			}
		}
	}
	for i, p := range ib.pending {
		p.replyCh <- inferenceReply{res: results[i]}
	}
	return nil
}

// Fail unblocks every caller in the batch with the given error.
func (ib *InferenceBatch) Fail(err error) {
	for _, p := range ib.pending {
		p.replyCh <- inferenceReply{err: err}
	}
}

func resultShape(r InferenceResult) string {
	logitLens := ""
	for _, l := range r.Output.Logits {
		logitLens += fmt.Sprintf(".%d", len(l))
	}
	return fmt.Sprintf("A%d%s/S%d/N%d/I%d",
		len(r.Output.Action), logitLens, len(r.State), len(r.Noise), len(r.Image))
}
