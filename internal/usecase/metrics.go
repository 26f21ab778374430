package usecase

import "path/filepath"

// RetrievalScore grades one ranked list of source paths against the set of
// paths that should have been retrieved.
type RetrievalScore struct {
	Precision      float64 `json:"precision"`
	Recall         float64 `json:"recall"`
	ReciprocalRank float64 `json:"reciprocal_rank"`
}

// ScoreRetrieval compares retrieved to relevant. Paths are matched on their
// base name so fixtures need not know where the corpus lives.
func ScoreRetrieval(retrieved, relevant []string) RetrievalScore {
	got := make([]string, len(retrieved))
	for i, p := range retrieved {
		got[i] = filepath.Base(p)
	}
	want := make([]string, len(relevant))
	for i, p := range relevant {
		want[i] = filepath.Base(p)
	}
	return RetrievalScore{
		Precision:      PrecisionAtK(got, want),
		Recall:         RecallAtK(got, want),
		ReciprocalRank: ReciprocalRank(got, want),
	}
}

func PrecisionAtK(retrieved, relevant []string) float64 {
	if len(retrieved) == 0 {
		return 0
	}
	relevantSet := toSet(relevant)
	hits := 0
	for _, r := range retrieved {
		if relevantSet[r] {
			hits++
		}
	}
	return float64(hits) / float64(len(retrieved))
}

func RecallAtK(retrieved, relevant []string) float64 {
	if len(relevant) == 0 {
		return 0
	}
	relevantSet := toSet(relevant)
	seen := make(map[string]bool)
	for _, r := range retrieved {
		if relevantSet[r] {
			seen[r] = true
		}
	}
	return float64(len(seen)) / float64(len(relevantSet))
}

// ReciprocalRank is 1/rank of the first relevant entry, or 0.
func ReciprocalRank(retrieved, relevant []string) float64 {
	relevantSet := toSet(relevant)
	for i, r := range retrieved {
		if relevantSet[r] {
			return 1.0 / float64(i+1)
		}
	}
	return 0
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, s := range items {
		set[s] = true
	}
	return set
}
