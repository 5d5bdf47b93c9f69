package core

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// VTraceResult holds the outputs of the off-policy correction: value targets
// for the baseline and advantages for the policy gradient.
type VTraceResult struct {
	Vs           [][]float64
	PGAdvantages [][]float64
}

// VTraceFromLogits computes the V-trace correction from raw policy logits.
//
// behaviorLogits and targetLogits are indexed [component][t][b][logit],
// actions [t][b][component], everything else [t][b]. The importance ratio of
// a multi-component action is the product of the per-component ratios,
// accumulated in log space.
func VTraceFromLogits(
	behaviorLogits, targetLogits [][][][]float64,
	actions [][][]int,
	discounts, rewards, values [][]float64,
	bootstrapValue []float64,
	rhoBar, cBar float64,
) VTraceResult {
	T := len(rewards)
	B := len(bootstrapValue)

	logRhos := make([][]float64, T)
	for t := 0; t < T; t++ {
		logRhos[t] = make([]float64, B)
		for b := 0; b < B; b++ {
			for c := range targetLogits {
				a := actions[t][b][c]
				logRhos[t][b] += logProb(targetLogits[c][t][b], a) - logProb(behaviorLogits[c][t][b], a)
			}
		}
	}
	return VTraceFromImportanceWeights(logRhos, discounts, rewards, values, bootstrapValue, rhoBar, cBar)
}

// VTraceFromImportanceWeights computes the correction from log importance
// ratios. The value targets follow the backward recursion
//
//	vs[t] = V(x_t) + rho_t*(r_t + discount_t*vs[t+1] - V(x_t))
//	        + discount_t*c_t*(vs[t+1] - V(x_{t+1}))  [trace-decay remainder]
//
// seeded at the horizon by bootstrapValue, with rho_t clipped at rhoBar and
// c_t at cBar. Each step's target depends on the next step's already-computed
// target, so this is an exact backward scan, not an elementwise map.
func VTraceFromImportanceWeights(
	logRhos, discounts, rewards, values [][]float64,
	bootstrapValue []float64,
	rhoBar, cBar float64,
) VTraceResult {
	T := len(rewards)
	B := len(bootstrapValue)

	clippedRhos := make([][]float64, T)
	cs := make([][]float64, T)
	for t := 0; t < T; t++ {
		clippedRhos[t] = make([]float64, B)
		cs[t] = make([]float64, B)
		for b := 0; b < B; b++ {
			rho := math.Exp(logRhos[t][b])
			clippedRhos[t][b] = math.Min(rho, rhoBar)
			cs[t][b] = math.Min(rho, cBar)
		}
	}

	vs := make([][]float64, T)
	acc := make([]float64, B)
	for t := T - 1; t >= 0; t-- {
		vs[t] = make([]float64, B)
		for b := 0; b < B; b++ {
			vNext := bootstrapValue[b]
			if t < T-1 {
				vNext = values[t+1][b]
			}
			delta := clippedRhos[t][b] * (rewards[t][b] + discounts[t][b]*vNext - values[t][b])
			acc[b] = delta + discounts[t][b]*cs[t][b]*acc[b]
			vs[t][b] = acc[b] + values[t][b]
		}
	}

	pgAdvantages := make([][]float64, T)
	for t := 0; t < T; t++ {
		pgAdvantages[t] = make([]float64, B)
		for b := 0; b < B; b++ {
			vsNext := bootstrapValue[b]
			if t < T-1 {
				vsNext = vs[t+1][b]
			}
			pgAdvantages[t][b] = clippedRhos[t][b] * (rewards[t][b] + discounts[t][b]*vsNext - values[t][b])
		}
	}

	return VTraceResult{Vs: vs, PGAdvantages: pgAdvantages}
}

// logProb returns log softmax(logits)[action].
func logProb(logits []float64, action int) float64 {
	return logits[action] - floats.LogSumExp(logits)
}
