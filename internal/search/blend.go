package search

import "sort"

// blend applies the position-aware weighted sum to each candidate at its
// pre-blend position i (its index in the already rerank-scored, RRF-ordered
// list), then sorts descending by the blended score.
func blend(candidates []candidate) []candidate {
	out := make([]candidate, len(candidates))
	copy(out, candidates)

	for i := range out {
		rrfW, rerankW := blendWeights(i)
		out[i].final = rrfW*out[i].rrf + rerankW*out[i].rerank
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].final > out[j].final })
	return out
}

// blendWeights returns the (rrf, rerank) weight pair for pre-blend position i.
func blendWeights(i int) (rrfWeight, rerankWeight float64) {
	switch {
	case i < 3:
		return 0.75, 0.25
	case i < 10:
		return 0.60, 0.40
	default:
		return 0.40, 0.60
	}
}
