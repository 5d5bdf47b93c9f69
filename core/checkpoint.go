package core

import (
	"log"

	"github.com/atelier-rl/paintpool/util"
)

// Checkpoint is the single on-disk record needed to restart training. Field
// names are fixed; every field is restored before any worker starts.
type Checkpoint struct {
	Model       WeightSnapshot     `json:"model_state_dict"`
	D           WeightSnapshot     `json:"D_state_dict"`
	Optimizer   OptState           `json:"optimizer_state_dict"`
	DOptimizer  OptState           `json:"D_optimizer_state_dict"`
	Scheduler   SchedState         `json:"scheduler_state_dict"`
	DScheduler  SchedState         `json:"D_scheduler_state_dict"`
	StatsStep   int64              `json:"stats_step"`
	StatsValues map[string]float64 `json:"stats"`
}

func SaveCheckpoint(path string, c *Checkpoint) error {
	if err := util.SaveJson(path, c); err != nil {
		return err
	}
	log.Printf("saved checkpoint to %s (digest %.12s)", path, util.JsonHash(c))
	return nil
}

func LoadCheckpoint(path string) (*Checkpoint, error) {
	c := &Checkpoint{}
	if err := util.LoadJson(path, c); err != nil {
		return nil, err
	}
	return c, nil
}
