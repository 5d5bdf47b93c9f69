package cmd

import (
	"log"
	"path"
	"time"

	"github.com/atelier-rl/paintpool/core"
	"github.com/atelier-rl/paintpool/dataset"
	"github.com/atelier-rl/paintpool/nn"
	"github.com/atelier-rl/paintpool/paintenv"
	"github.com/spf13/cobra"
	"golang.org/x/exp/rand"
)

var evalEpisodes int

func EvalCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Roll episodes with a trained policy and report scores",
		Run: func(cmd *cobra.Command, args []string) {
			if err := runEval(); err != nil {
				log.Fatalf("eval failed: %v", err)
			}
		},
	}
	cmd.Flags().IntVar(&evalEpisodes, "episodes", 10, "Number of episodes to evaluate")

	return cmd
}

func runEval() error {
	envCfg := envConfig()
	frameLen := envCfg.FrameLen()
	actionSpace := envCfg.ActionSpace()

	ckptPath := path.Join(flags.SavePath, flags.XPID, "model.json")
	ckpt, err := core.LoadCheckpoint(ckptPath)
	if err != nil {
		return err
	}
	log.Printf("loaded checkpoint from %s (step %d)", ckptPath, ckpt.StatsStep)

	seed := uint64(time.Now().UnixNano())
	model := nn.NewNetFromSnapshot(frameLen, actionSpace, flags.NoiseDim, flags.Condition, seed, ckpt.Model)
	d := nn.NewDiscFromSnapshot(frameLen, flags.Condition, seed+1, ckpt.D)

	images, err := dataset.Open(flags.Dataset, flags.DatasetPath, flags.GridWidth, int64(seed))
	if err != nil {
		return err
	}

	env := paintenv.New(envCfg)
	defer env.Close()
	rng := rand.New(rand.NewSource(seed + 2))

	var sumReturn, sumScore float64
	for ep := 0; ep < evalEpisodes; ep++ {
		out, err := env.Reset()
		if err != nil {
			return err
		}
		image, err := images.Next()
		if err != nil {
			return err
		}

		var condition [][]float64
		if flags.Condition {
			condition = [][]float64{image}
		}

		state := model.InitialState()
		action := model.InitialAction()
		var episodeReturn float64
		final := out.Frame
		for {
			noise := make([]float64, flags.NoiseDim)
			for i := range noise {
				noise[i] = rng.NormFloat64()
			}
			in := core.ModelInput{
				Frames:      [][]float64{out.Frame},
				Condition:   condition,
				PrevActions: [][]int{action},
				Noise:       [][]float64{noise},
				Done:        []bool{out.Done},
			}
			outs, states := model.Forward(in, []core.AgentState{state})
			action, state = outs[0].Action, states[0]

			out, err = env.Step(action)
			if err != nil {
				return err
			}
			if out.Done {
				episodeReturn = out.EpisodeReturn
				break
			}
			final = out.Frame
		}

		score := d.Score([][]float64{final}, condition)[0]
		sumReturn += episodeReturn
		sumScore += score
		log.Printf("episode %d: return %.3f, D score %.3f", ep, episodeReturn, score)
	}

	log.Printf("mean over %d episodes: return %.3f, D score %.3f",
		evalEpisodes, sumReturn/float64(evalEpisodes), sumScore/float64(evalEpisodes))
	return nil
}
