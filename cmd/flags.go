package cmd

import (
	"path"
	"time"

	"github.com/atelier-rl/paintpool/util"
)

type Flags struct {
	EnvFlags
	SavePath string
	XPID     string
	TrainFlags
	LossFlags
	OptimFlags
}

type EnvFlags struct {
	EnvAddr       string
	ServeEnvs     bool
	EpisodeLength int
	GridWidth     int
	Dataset       string
	DatasetPath   string
}

type TrainFlags struct {
	NumActors           int
	TotalSteps          int64
	BatchSize           int
	UnrollLength        int
	NumLearnerThreads   int
	NumInferenceThreads int
	MaxLearnerQueueSize int
	BatcherTimeout      time.Duration
	Condition           bool
	UseTCA              bool
	NoiseDim            int
	DisableCheckpoint   bool
}

type LossFlags struct {
	EntropyCost      float64
	BaselineCost     float64
	Discounting      float64
	GradNormClipping float64
}

type OptimFlags struct {
	PolicyLearningRate        float64
	DiscriminatorLearningRate float64
}

func DefaultFlags() *Flags {
	return &Flags{
		EnvFlags: EnvFlags{
			EnvAddr:       "127.0.0.1:7861",
			ServeEnvs:     true,
			EpisodeLength: 20,
			GridWidth:     32,
			Dataset:       "synthetic",
			DatasetPath:   "",
		},
		SavePath: "results",
		XPID:     "",
		TrainFlags: TrainFlags{
			NumActors:           4,
			TotalSteps:          100000,
			BatchSize:           8,
			UnrollLength:        20,
			NumLearnerThreads:   2,
			NumInferenceThreads: 2,
			MaxLearnerQueueSize: 0,
			BatcherTimeout:      100 * time.Millisecond,
			Condition:           false,
			UseTCA:              false,
			NoiseDim:            10,
			DisableCheckpoint:   false,
		},
		LossFlags: LossFlags{
			EntropyCost:      0.01,
			BaselineCost:     0.5,
			Discounting:      0.99,
			GradNormClipping: 400.0,
		},
		OptimFlags: OptimFlags{
			PolicyLearningRate:        0.0003,
			DiscriminatorLearningRate: 0.0001,
		},
	}
}

func (f *Flags) Record() {
	util.SaveJson(path.Join(f.SavePath, f.XPID, "config.json"), f)
}
