package search

import "sort"

const rrfK = 60

// fuse merges the lexical and dense candidate lists by message id, computes
// each message's reciprocal rank fusion score, applies the post-hoc rank
// bonuses, and returns the merged list sorted best-first.
func fuse(lexical, dense []candidate) []candidate {
	merged := make(map[int64]*candidate)
	order := func(c candidate) {
		if existing, ok := merged[c.messageID]; ok {
			if c.lexRank != nil {
				existing.lexRank = c.lexRank
				existing.lexScore = c.lexScore
			}
			if c.denseRank != nil {
				existing.denseRank = c.denseRank
				existing.denseScore = c.denseScore
			}
			if existing.subject == "" {
				existing.subject = c.subject
			}
			if existing.snippet == "" {
				existing.snippet = c.snippet
			}
			if existing.fromEmail == "" {
				existing.fromEmail = c.fromEmail
			}
			if existing.fromName == "" {
				existing.fromName = c.fromName
			}
			if existing.sentAt.IsZero() {
				existing.sentAt = c.sentAt
			}
			return
		}
		cp := c
		merged[c.messageID] = &cp
	}
	for _, c := range lexical {
		order(c)
	}
	for _, c := range dense {
		order(c)
	}

	out := make([]candidate, 0, len(merged))
	for _, c := range merged {
		rrf := 0.0
		if c.lexRank != nil {
			rrf += 1.0 / float64(rrfK+*c.lexRank+1)
		}
		if c.denseRank != nil {
			rrf += 1.0 / float64(rrfK+*c.denseRank+1)
		}
		c.rrf = rrf
		out = append(out, *c)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.rrf != b.rrf {
			return a.rrf > b.rrf
		}
		return branchRank(a) < branchRank(b)
	})

	for i := range out {
		switch {
		case i == 0:
			out[i].rrf += 0.05
		case i == 1, i == 2:
			out[i].rrf += 0.02
		}
	}

	return out
}

// branchRank is the tie-break key for two candidates with an equal RRF
// score: a candidate present in the lexical branch always sorts before one
// that only appears in the dense branch, consistent within each branch by
// rank ascending (better first).
func branchRank(c candidate) int {
	const denseOnlyOffset = 1_000_000
	if c.lexRank != nil {
		return *c.lexRank
	}
	if c.denseRank != nil {
		return denseOnlyOffset + *c.denseRank
	}
	return 1 << 30
}
