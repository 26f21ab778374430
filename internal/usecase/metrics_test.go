package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrecisionAtK(t *testing.T) {
	cases := []struct {
		name      string
		retrieved []string
		relevant  []string
		wantP     float64
	}{
		{"perfect", []string{"a", "b", "c"}, []string{"a", "b", "c"}, 1.0},
		{"partial", []string{"a", "b", "x"}, []string{"a", "b", "c"}, 0.666},
		{"none", []string{"x", "y", "z"}, []string{"a", "b", "c"}, 0.0},
		{"empty_retrieved", []string{}, []string{"a", "b"}, 0.0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.wantP, PrecisionAtK(tc.retrieved, tc.relevant), 0.01)
		})
	}
}

func TestRecallAtK(t *testing.T) {
	cases := []struct {
		name      string
		retrieved []string
		relevant  []string
		wantR     float64
	}{
		{"perfect", []string{"a", "b", "c"}, []string{"a", "b", "c"}, 1.0},
		{"partial", []string{"a", "b", "x"}, []string{"a", "b", "c"}, 0.666},
		{"none", []string{"x", "y", "z"}, []string{"a", "b", "c"}, 0.0},
		{"empty_relevant", []string{"a", "b"}, []string{}, 0.0},
		{"duplicate_hits", []string{"a", "a"}, []string{"a", "b"}, 0.5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.wantR, RecallAtK(tc.retrieved, tc.relevant), 0.01)
		})
	}
}

func TestReciprocalRank(t *testing.T) {
	cases := []struct {
		name      string
		retrieved []string
		relevant  []string
		want      float64
	}{
		{"first", []string{"a", "b", "c"}, []string{"a"}, 1.0},
		{"second", []string{"x", "a", "c"}, []string{"a"}, 0.5},
		{"third", []string{"x", "y", "a"}, []string{"a", "q"}, 0.333},
		{"missing", []string{"x", "y", "z"}, []string{"a"}, 0.0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, ReciprocalRank(tc.retrieved, tc.relevant), 0.01)
		})
	}
}

func TestScoreRetrieval_MatchesBaseNames(t *testing.T) {
	score := ScoreRetrieval(
		[]string{"/srv/corpus/sky.txt", "/srv/corpus/france.txt"},
		[]string{"france.txt"},
	)
	assert.InDelta(t, 0.5, score.Precision, 1e-9)
	assert.InDelta(t, 1.0, score.Recall, 1e-9)
	assert.InDelta(t, 0.5, score.ReciprocalRank, 1e-9)
}
