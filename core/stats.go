package core

import (
	"sync"

	"github.com/atelier-rl/paintpool/util"
)

// Stats is the shared counter/metric state of the trainer. The step count is
// monotonic; every other field reflects the most recent learner step. Writers
// hold their learner lock while mutating; readers take a snapshot copy.
type Stats struct {
	mu     sync.Mutex
	step   int64
	values map[string]float64
}

func NewStats() *Stats {
	return &Stats{
		values: make(map[string]float64),
	}
}

func (s *Stats) AddSteps(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step += n
}

func (s *Stats) Step() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

func (s *Stats) Set(key string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Snapshot returns a consistent copy for the reporting loop and checkpoints.
func (s *Stats) Snapshot() (int64, map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step, util.CopyStringFloatMap(s.values)
}

// Restore overwrites the full state, used when resuming from a checkpoint.
func (s *Stats) Restore(step int64, values map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step = step
	s.values = util.CopyStringFloatMap(values)
}
