package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path"
	"time"

	"github.com/atelier-rl/paintpool/core"
	"github.com/atelier-rl/paintpool/dataset"
	"github.com/atelier-rl/paintpool/envlink"
	"github.com/atelier-rl/paintpool/nn"
	"github.com/atelier-rl/paintpool/paintenv"
	"github.com/spf13/cobra"
)

func TrainCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run the actor-learner training pipeline",
		Run: func(cmd *cobra.Command, args []string) {
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt) // channel for interrupts from os

			doneCh := make(chan struct{}) // channel for done signal from application

			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				select {
				case <-sigCh:
				case <-doneCh:
				}
				cancel()
			}()

			if err := runTrain(ctx); err != nil {
				log.Fatalf("training failed: %v", err)
			}
			close(doneCh)
		},
	}

	return cmd
}

func envConfig() paintenv.Config {
	cfg := paintenv.DefaultConfig()
	cfg.GridWidth = flags.GridWidth
	cfg.EpisodeLength = flags.EpisodeLength
	return cfg
}

func runTrain(ctx context.Context) error {
	envCfg := envConfig()

	// Configuration errors surface here, before any worker starts.
	images, err := dataset.Open(flags.Dataset, flags.DatasetPath, flags.GridWidth, time.Now().UnixNano())
	if err != nil {
		return err
	}

	addr := flags.EnvAddr
	if flags.ServeEnvs {
		server, err := envlink.NewServer(flags.EnvAddr, func(id int) core.Environment {
			return paintenv.New(envCfg)
		})
		if err != nil {
			return err
		}
		server.Start()
		defer server.Close()
		addr = server.Addr()
	}

	envs := make([]core.Environment, flags.NumActors)
	for i := range envs {
		env, err := envlink.Dial(fmt.Sprintf("ws://%s/env/%d", addr, i))
		if err != nil {
			return err
		}
		envs[i] = env
		defer env.Close()
	}

	frameLen := envCfg.FrameLen()
	actionSpace := envCfg.ActionSpace()
	seed := uint64(time.Now().UnixNano())

	model := nn.NewNet(frameLen, actionSpace, flags.NoiseDim, flags.Condition, seed)
	d := nn.NewDisc(frameLen, flags.Condition, seed+1)

	optimizer := nn.NewAdam(model.Params(), flags.PolicyLearningRate, 0.9, 0.999)
	dOptimizer := nn.NewAdam(d.Params(), flags.DiscriminatorLearningRate, 0.5, 0.999)
	stepsPerBatch := int64(flags.UnrollLength) * int64(flags.BatchSize)
	scheduler := nn.NewLinearDecay(optimizer, stepsPerBatch, flags.TotalSteps)
	dScheduler := nn.NewLinearDecay(dOptimizer, stepsPerBatch, flags.TotalSteps)

	cfg := core.Config{
		UnrollLength:        flags.UnrollLength,
		BatchSize:           flags.BatchSize,
		NumActors:           flags.NumActors,
		NumLearnerThreads:   flags.NumLearnerThreads,
		NumInferenceThreads: flags.NumInferenceThreads,
		MaxQueueSize:        flags.MaxLearnerQueueSize,
		BatcherTimeout:      flags.BatcherTimeout,
		TotalSteps:          flags.TotalSteps,
		Discounting:         flags.Discounting,
		EntropyCost:         flags.EntropyCost,
		BaselineCost:        flags.BaselineCost,
		GradNormClipping:    flags.GradNormClipping,
		Condition:           flags.Condition,
		UseTCA:              flags.UseTCA,
		FrameLen:            frameLen,
		NoiseDim:            flags.NoiseDim,
		ActionSpace:         actionSpace,
		CheckpointPath:      path.Join(flags.SavePath, flags.XPID, "model.json"),
		DisableCheckpoint:   flags.DisableCheckpoint,
	}

	trainer := core.NewTrainer(cfg, core.TrainerDeps{
		Model: model,
		NewModel: func(ws core.WeightSnapshot) core.Model {
			return nn.NewNetFromSnapshot(frameLen, actionSpace, flags.NoiseDim, flags.Condition, seed+2, ws)
		},
		D: d,
		NewD: func(ws core.WeightSnapshot) core.Discriminator {
			return nn.NewDiscFromSnapshot(frameLen, flags.Condition, seed+3, ws)
		},
		Optimizer:  optimizer,
		Scheduler:  scheduler,
		DOptimizer: dOptimizer,
		DScheduler: dScheduler,
		Envs:       envs,
		Images:     images,
	})

	return trainer.Run(ctx)
}
