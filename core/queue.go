package core

import "sync"

// BatchingQueue accumulates completed unrolls into fixed-size training
// batches. Put blocks once maxQueueSize unrolls are waiting, applying
// backpressure to the actors. NextBatch blocks until exactly batchSize
// unrolls are available and stacks them, rejecting batches whose members
// disagree on per-field shapes when input checking is enabled.
type BatchingQueue struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond
	items    []*Unroll
	closed   bool

	batchSize    int
	maxQueueSize int
	checkInputs  bool
}

func NewBatchingQueue(batchSize, maxQueueSize int, checkInputs bool) *BatchingQueue {
	q := &BatchingQueue{
		items:        make([]*Unroll, 0, maxQueueSize),
		batchSize:    batchSize,
		maxQueueSize: maxQueueSize,
		checkInputs:  checkInputs,
	}
	q.notFull = sync.NewCond(&q.mu)
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Put enqueues a single unroll, blocking while the queue is at capacity.
// Returns ErrClosed if the queue is or becomes closed while waiting.
func (q *BatchingQueue) Put(u *Unroll) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) >= q.maxQueueSize && !q.closed {
		q.notFull.Wait()
	}
	if q.closed {
		return ErrClosed
	}
	q.items = append(q.items, u)
	q.notEmpty.Signal()
	return nil
}

// NextBatch blocks until a full batch of unrolls is available. After Close,
// any remaining complete batch is still drained; an incomplete trailing
// partial batch is discarded and ErrClosed returned.
func (q *BatchingQueue) NextBatch() (*TrainingBatch, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) < q.batchSize && !q.closed {
		q.notEmpty.Wait()
	}
	if len(q.items) < q.batchSize {
		return nil, ErrClosed
	}

	unrolls := q.items[:q.batchSize:q.batchSize]
	q.items = append(make([]*Unroll, 0, len(q.items)-q.batchSize), q.items[q.batchSize:]...)
	q.notFull.Broadcast()

	if q.checkInputs {
		want := unrolls[0].shape()
		for _, u := range unrolls[1:] {
			if got := u.shape(); got != want {
				return nil, &ShapeError{Want: want, Got: got}
			}
		}
	}
	return &TrainingBatch{Unrolls: unrolls}, nil
}

// Close wakes all blocked producers and consumers. Producers fail with
// ErrClosed; consumers drain complete batches and then stop.
func (q *BatchingQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.notFull.Broadcast()
	q.notEmpty.Broadcast()
}

// Size reports the number of unrolls waiting to be batched.
func (q *BatchingQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
