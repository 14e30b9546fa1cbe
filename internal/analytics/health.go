package analytics

import (
	"math"

	"github.com/ukydev/maintenance-analytics/internal/models"
)

// Health score weights.
const (
	completionWeight = 0.4
	openWeight       = 0.3
	riskWeight       = 0.3
)

// ScoreHealth blends ticket completion rate, open-ticket ratio and high-risk
// prediction ratio into a 0-100 score. A scope with no tickets counts as fully
// complete and a scope with no predictions as risk free.
func ScoreHealth(stats models.TicketStats, predictions models.PredictionSummary) models.HealthReport {
	completionRate := 100.0
	openRatio := 0.0
	if stats.Total > 0 {
		completionRate = float64(stats.Completed) / float64(stats.Total) * 100
		openRatio = float64(stats.Open+stats.Assigned) / float64(stats.Total) * 100
	}
	highRiskRatio := 0.0
	if predictions.Total > 0 {
		highRiskRatio = float64(predictions.High) / float64(predictions.Total) * 100
	}

	openScore := 100 - openRatio
	riskScore := 100 - highRiskRatio
	raw := completionRate*completionWeight + openScore*openWeight + riskScore*riskWeight
	score := int(math.Round(math.Max(0, math.Min(100, raw))))

	return models.HealthReport{
		Score: score,
		Grade: gradeFor(score),
		Breakdown: models.HealthBreakdown{
			CompletionRate:  round1(completionRate),
			OpenTicketScore: round1(openScore),
			RiskScore:       round1(riskScore),
		},
	}
}

// DegradedHealth is reported when the health inputs could not be computed.
func DegradedHealth() models.HealthReport {
	return models.HealthReport{Score: 0, Grade: gradeFor(0)}
}

func gradeFor(score int) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
