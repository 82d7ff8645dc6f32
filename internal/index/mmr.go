package index

import (
	"math"

	"github.com/fyrsmithlabs/complyd/internal/vectorstore"
)

// mmr greedily selects up to k candidates maximizing
// lambda*sim(query, d) - (1-lambda)*max sim(d, selected).
// Candidates arrive ordered by query similarity.
func mmr(candidates []vectorstore.Result, k int, lambda float64) ([]vectorstore.Result, error) {
	if k <= 0 || len(candidates) == 0 {
		return nil, nil
	}
	for _, c := range candidates {
		if len(c.Embedding) == 0 {
			return nil, ErrNoEmbeddings
		}
	}
	if k > len(candidates) {
		k = len(candidates)
	}

	selected := make([]int, 0, k)
	used := make([]bool, len(candidates))
	// maxSim[i] is the highest similarity of candidate i to anything selected.
	maxSim := make([]float64, len(candidates))

	for len(selected) < k {
		best, bestScore := -1, math.Inf(-1)
		for i, c := range candidates {
			if used[i] {
				continue
			}
			redundancy := 0.0
			if len(selected) > 0 {
				redundancy = maxSim[i]
			}
			score := lambda*float64(c.Score) - (1-lambda)*redundancy
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		used[best] = true
		selected = append(selected, best)
		for i := range candidates {
			if used[i] {
				continue
			}
			if s := cosine(candidates[i].Embedding, candidates[best].Embedding); len(selected) == 1 || s > maxSim[i] {
				maxSim[i] = s
			}
		}
	}

	out := make([]vectorstore.Result, len(selected))
	for i, idx := range selected {
		out[i] = candidates[idx]
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
