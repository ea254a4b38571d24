package exam

import "github.com/pavelanni/adaptexam/internal/model"

// Weights are the configured relative importance of the three scoring
// components. They are renormalized to sum to 1 before combining.
type Weights struct {
	Correctness float64
	Speed       float64
	Consistency float64
}

// DefaultWeights match the shipped configuration defaults.
var DefaultWeights = Weights{Correctness: 0.6, Speed: 0.2, Consistency: 0.2}

// normalized returns the weights scaled to sum to 1. An all-zero triple
// divides by 1 instead, yielding all-zero weights.
func (w Weights) normalized() Weights {
	total := w.Correctness + w.Speed + w.Consistency
	if total == 0 {
		total = 1
	}
	return Weights{
		Correctness: w.Correctness / total,
		Speed:       w.Speed / total,
		Consistency: w.Consistency / total,
	}
}

// Score converts an attempt's running counters into a 0-100 score and a
// qualitative rating. Pure function of its inputs.
func Score(attempt model.Attempt, policy model.ExamPolicy, avgTimePerQuestion float64, w Weights) (float64, model.Rating) {
	answered := attempt.QuestionsAnswered
	if answered < 1 {
		answered = 1
	}
	correctnessAvg := clamp01(attempt.CorrectnessSum / float64(answered))

	slow := policy.StopSlowSeconds
	if slow < 10 {
		slow = 10
	}
	speedScore := clamp01(1 - avgTimePerQuestion/float64(slow))

	denom := policy.StopConsecutiveIncorrect
	if denom < 1 {
		denom = 1
	}
	consistencyScore := clamp01(1 - float64(attempt.MaxConsecIncorrect)/float64(denom))

	n := w.normalized()
	score := 100 * (n.Correctness*correctnessAvg + n.Speed*speedScore + n.Consistency*consistencyScore)
	return score, RatingFromScore(score)
}

// RatingFromScore maps a 0-100 score onto the four-level rating scale.
// Band lower bounds are inclusive.
func RatingFromScore(score float64) model.Rating {
	switch {
	case score >= 85:
		return model.RatingVeryGood
	case score >= 70:
		return model.RatingGood
	case score >= 50:
		return model.RatingNeedsImprovement
	default:
		return model.RatingBad
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
