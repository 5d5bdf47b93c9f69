package core

import "time"

// Config is the configuration surface of the trainer core.
type Config struct {
	UnrollLength int
	BatchSize    int
	NumActors    int

	NumLearnerThreads   int
	NumInferenceThreads int

	MaxQueueSize    int // learner queue bound, defaults to BatchSize
	BatcherMinBatch int
	BatcherMaxBatch int
	BatcherTimeout  time.Duration

	TotalSteps int64

	Discounting      float64
	EntropyCost      float64
	BaselineCost     float64
	GradNormClipping float64
	RhoBar           float64
	CBar             float64

	Condition bool
	UseTCA    bool

	FrameLen    int
	NoiseDim    int
	ActionSpace []int

	CheckpointPath     string
	CheckpointInterval time.Duration
	DisableCheckpoint  bool
	ReportInterval     time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxQueueSize == 0 {
		c.MaxQueueSize = c.BatchSize
	}
	if c.BatcherMinBatch == 0 {
		c.BatcherMinBatch = 1
	}
	if c.BatcherMaxBatch == 0 {
		c.BatcherMaxBatch = 512
	}
	if c.BatcherTimeout == 0 {
		c.BatcherTimeout = 100 * time.Millisecond
	}
	if c.RhoBar == 0 {
		c.RhoBar = 1.0
	}
	if c.CBar == 0 {
		c.CBar = 1.0
	}
	if c.NoiseDim == 0 {
		c.NoiseDim = 10
	}
	if c.ReportInterval == 0 {
		c.ReportInterval = 5 * time.Second
	}
	if c.CheckpointInterval == 0 {
		c.CheckpointInterval = 10 * time.Minute
	}
	return c
}
