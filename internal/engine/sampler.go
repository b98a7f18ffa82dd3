package engine

import (
	"math"
	"math/rand"
	"sort"

	"github.com/theawakener0/oxide/internal/metrics"
)

// Sampler converts a logits vector into one chosen token id. The
// pipeline order is fixed: repeat penalty, temperature (0 short-circuits
// to greedy arg-max), top-k, top-p, seeded draw.
type Sampler struct {
	opts GenerateOptions
}

func NewSampler(opts GenerateOptions) *Sampler {
	return &Sampler{opts: opts}
}

type tokenProb struct {
	id   int
	prob float64
}

// Sample picks the next token id for the given position. The caller's
// logits slice is not modified. pos is the absolute token position and
// is mixed into the seed so each draw gets an independent stream while
// the full sequence stays reproducible.
func (s *Sampler) Sample(logits []float32, recent []int, pos int) (int, error) {
	if len(logits) == 0 {
		return 0, &SamplingError{Reason: "empty logits vector"}
	}

	scores := make([]float64, len(logits))
	for i, v := range logits {
		scores[i] = float64(v)
	}

	if s.opts.RepeatPenalty > 1.0 && len(recent) > 0 {
		applyRepeatPenalty(scores, recent, s.opts.RepeatPenalty)
	}

	if s.opts.Temperature == 0 {
		metrics.SamplerDraws.WithLabelValues("greedy").Inc()
		return argMax(scores)
	}

	for i := range scores {
		scores[i] /= s.opts.Temperature
	}

	candidates := softmax(scores)
	if len(candidates) == 0 {
		return 0, &SamplingError{Reason: "all logits filtered out"}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].prob > candidates[j].prob
	})

	candidates = applyTopK(candidates, s.opts.TopK)
	candidates = applyTopP(candidates, s.opts.TopP)
	if len(candidates) == 0 {
		return 0, &SamplingError{Reason: "all logits filtered out"}
	}

	metrics.SamplerDraws.WithLabelValues("stochastic").Inc()
	return drawFrom(candidates, s.opts.Seed, pos), nil
}

// applyRepeatPenalty dampens every token id in the recent window:
// positive scores are divided by the penalty, negative ones multiplied
// (pushed further down). Each id is penalized once regardless of how
// often it appears in the window.
func applyRepeatPenalty(scores []float64, recent []int, penalty float64) {
	seen := make(map[int]struct{}, len(recent))
	for _, id := range recent {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if id < 0 || id >= len(scores) {
			continue
		}
		if scores[id] > 0 {
			scores[id] /= penalty
		} else {
			scores[id] *= penalty
		}
	}
}

// argMax returns the index of the highest score, first index winning
// ties so greedy decoding is reproducible.
func argMax(scores []float64) (int, error) {
	best := -1
	bestVal := math.Inf(-1)
	for i, v := range scores {
		if math.IsNaN(v) {
			continue
		}
		if v > bestVal {
			bestVal = v
			best = i
		}
	}
	if best < 0 || math.IsInf(bestVal, -1) {
		return 0, &SamplingError{Reason: "no finite logits for greedy arg-max"}
	}
	return best, nil
}

// softmax converts scores to a normalized candidate list, dropping
// -Inf and NaN entries.
func softmax(scores []float64) []tokenProb {
	maxVal := math.Inf(-1)
	for _, v := range scores {
		if !math.IsNaN(v) && v > maxVal {
			maxVal = v
		}
	}
	if math.IsInf(maxVal, -1) {
		return nil
	}

	candidates := make([]tokenProb, 0, len(scores))
	sum := 0.0
	for i, v := range scores {
		if math.IsNaN(v) || math.IsInf(v, -1) {
			continue
		}
		p := math.Exp(v - maxVal)
		candidates = append(candidates, tokenProb{id: i, prob: p})
		sum += p
	}
	if sum == 0 {
		return nil
	}
	for i := range candidates {
		candidates[i].prob /= sum
	}
	return candidates
}

// applyTopK keeps the k most probable candidates. k <= 0 or k beyond
// the candidate count is a no-op. Candidates must be sorted descending.
func applyTopK(candidates []tokenProb, k int) []tokenProb {
	if k <= 0 || k >= len(candidates) {
		return candidates
	}
	kept := candidates[:k]
	total := 0.0
	for _, c := range kept {
		total += c.prob
	}
	for i := range kept {
		kept[i].prob /= total
	}
	return kept
}

// applyTopP keeps the smallest prefix whose cumulative probability
// reaches p, then renormalizes. p outside (0,1) is a no-op and p == 1
// keeps the full distribution. Candidates must be sorted descending.
func applyTopP(candidates []tokenProb, p float64) []tokenProb {
	if p <= 0 || p >= 1.0 {
		return candidates
	}
	sum := 0.0
	for i, c := range candidates {
		sum += c.prob
		if sum >= p {
			kept := candidates[:i+1]
			for j := range kept {
				kept[j].prob /= sum
			}
			return kept
		}
	}
	return candidates
}

// drawFrom samples one candidate using a generator seeded from the
// options seed mixed with the position, so step t of two runs with the
// same seed sees the same random value.
func drawFrom(candidates []tokenProb, seed uint64, pos int) int {
	rng := rand.New(rand.NewSource(int64(splitmix64(seed + uint64(pos)))))
	r := rng.Float64()
	acc := 0.0
	for _, c := range candidates {
		acc += c.prob
		if r < acc {
			return c.id
		}
	}
	return candidates[len(candidates)-1].id
}

// splitmix64 decorrelates consecutive seed+pos values before they feed
// math/rand.
func splitmix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	return x ^ (x >> 31)
}
