package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	flags *Flags = DefaultFlags()

	savePath    string
	xpid        string
	envAddr     string
	serveEnvs   bool
	episodeLen  int
	gridWidth   int
	datasetName string
	datasetPath string

	numActors           int
	totalSteps          int64
	batchSize           int
	unrollLength        int
	numLearnerThreads   int
	numInferenceThreads int
	maxLearnerQueueSize int
	batcherTimeout      time.Duration
	condition           bool
	useTCA              bool
	noiseDim            int
	disableCheckpoint   bool

	entropyCost      float64
	baselineCost     float64
	discounting      float64
	gradNormClipping float64

	policyLearningRate        float64
	discriminatorLearningRate float64
)

func AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&savePath, "save-path", flags.SavePath, "Root dir where experiment data is saved")
	cmd.PersistentFlags().StringVar(&xpid, "xpid", flags.XPID, "Experiment id")
	cmd.PersistentFlags().StringVar(&envAddr, "env-addr", flags.EnvAddr, "Base address of the environment servers")
	cmd.PersistentFlags().BoolVar(&serveEnvs, "serve-envs", flags.ServeEnvs, "Host environment servers in-process")
	cmd.PersistentFlags().IntVar(&episodeLen, "episode-length", flags.EpisodeLength, "Environment episode length")
	cmd.PersistentFlags().IntVar(&gridWidth, "grid-width", flags.GridWidth, "Canvas grid width")
	cmd.PersistentFlags().StringVar(&datasetName, "dataset", flags.Dataset, "Dataset name (synthetic, dir)")
	cmd.PersistentFlags().StringVar(&datasetPath, "dataset-path", flags.DatasetPath, "Directory for the dir dataset")

	cmd.PersistentFlags().IntVar(&numActors, "num-actors", flags.NumActors, "Number of actors")
	cmd.PersistentFlags().Int64Var(&totalSteps, "total-steps", flags.TotalSteps, "Total environment steps to train for")
	cmd.PersistentFlags().IntVar(&batchSize, "batch-size", flags.BatchSize, "Learner batch size")
	cmd.PersistentFlags().IntVar(&unrollLength, "unroll-length", flags.UnrollLength, "Unroll length (time dimension)")
	cmd.PersistentFlags().IntVar(&numLearnerThreads, "num-learner-threads", flags.NumLearnerThreads, "Number of learner threads")
	cmd.PersistentFlags().IntVar(&numInferenceThreads, "num-inference-threads", flags.NumInferenceThreads, "Number of inference threads")
	cmd.PersistentFlags().IntVar(&maxLearnerQueueSize, "max-learner-queue-size", flags.MaxLearnerQueueSize, "Learner queue bound, defaults to batch size")
	cmd.PersistentFlags().DurationVar(&batcherTimeout, "batcher-timeout", flags.BatcherTimeout, "Inference batcher timeout")
	cmd.PersistentFlags().BoolVar(&condition, "condition", flags.Condition, "Condition the policy on real images")
	cmd.PersistentFlags().BoolVar(&useTCA, "use-tca", flags.UseTCA, "Temporal credit assignment for the shaped reward")
	cmd.PersistentFlags().IntVar(&noiseDim, "noise-dim", flags.NoiseDim, "Noise input dimension")
	cmd.PersistentFlags().BoolVar(&disableCheckpoint, "disable-checkpoint", flags.DisableCheckpoint, "Disable saving checkpoints")

	cmd.PersistentFlags().Float64Var(&entropyCost, "entropy-cost", flags.EntropyCost, "Entropy cost/multiplier")
	cmd.PersistentFlags().Float64Var(&baselineCost, "baseline-cost", flags.BaselineCost, "Baseline cost/multiplier")
	cmd.PersistentFlags().Float64Var(&discounting, "discounting", flags.Discounting, "Discounting factor")
	cmd.PersistentFlags().Float64Var(&gradNormClipping, "grad-norm-clipping", flags.GradNormClipping, "Global gradient norm clip")

	cmd.PersistentFlags().Float64Var(&policyLearningRate, "policy-learning-rate", flags.PolicyLearningRate, "Policy learning rate")
	cmd.PersistentFlags().Float64Var(&discriminatorLearningRate, "discriminator-learning-rate", flags.DiscriminatorLearningRate, "Discriminator learning rate")
}

func UpdateFlags() {
	flags.SavePath = savePath
	flags.XPID = xpid
	if flags.XPID == "" {
		flags.XPID = fmt.Sprintf("paintpool-%s", time.Now().Format("20060102-150405"))
	}
	flags.EnvAddr = envAddr
	flags.ServeEnvs = serveEnvs
	flags.EpisodeLength = episodeLen
	flags.GridWidth = gridWidth
	flags.Dataset = datasetName
	flags.DatasetPath = datasetPath

	flags.NumActors = numActors
	flags.TotalSteps = totalSteps
	flags.BatchSize = batchSize
	flags.UnrollLength = unrollLength
	flags.NumLearnerThreads = numLearnerThreads
	flags.NumInferenceThreads = numInferenceThreads
	flags.MaxLearnerQueueSize = maxLearnerQueueSize
	flags.BatcherTimeout = batcherTimeout
	flags.Condition = condition
	flags.UseTCA = useTCA
	flags.NoiseDim = noiseDim
	flags.DisableCheckpoint = disableCheckpoint

	flags.EntropyCost = entropyCost
	flags.BaselineCost = baselineCost
	flags.Discounting = discounting
	flags.GradNormClipping = gradNormClipping

	flags.PolicyLearningRate = policyLearningRate
	flags.DiscriminatorLearningRate = discriminatorLearningRate
}
