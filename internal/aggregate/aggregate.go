package aggregate

import (
	"math"

	"dialogeval/internal/models"
)

// Overall reduces per-parameter scores to one weighted 0-100 score.
// Entries with zero weight do not participate. A nil return means no
// evaluation was possible, which is a different fact from a score of 0.
//
// Weights are the as-stored snapshots from evaluation time; they need not
// sum to 100 here because the division by the weight total normalizes them.
func Overall(scores []models.ParameterScore) *int {
	totalWeighted := 0
	totalWeight := 0

	for _, s := range scores {
		if s.Weight <= 0 {
			continue
		}
		totalWeighted += s.Score * s.Weight
		totalWeight += s.Weight
	}

	if totalWeight == 0 {
		return nil
	}

	overall := int(math.Round(float64(totalWeighted) / float64(totalWeight)))
	return &overall
}

// Mean averages the derived overall scores of completed results, skipping
// results that produced no score. Returns nil when nothing was scorable.
func Mean(results []models.TestResult) *int {
	total := 0
	scored := 0

	for _, r := range results {
		if overall := Overall(r.ParameterScores); overall != nil {
			total += *overall
			scored++
		}
	}

	if scored == 0 {
		return nil
	}

	mean := total / scored
	return &mean
}
