package models

import "time"

// Scope restricts analytics to one building. The zero value is the global,
// cross-building scope.
type Scope struct {
	BuildingID string
}

// GlobalScope returns the cross-building scope.
func GlobalScope() Scope { return Scope{} }

// BuildingScope returns a scope restricted to one building.
func BuildingScope(buildingID string) Scope { return Scope{BuildingID: buildingID} }

// IsGlobal reports whether the scope spans every building.
func (s Scope) IsGlobal() bool { return s.BuildingID == "" }

func (s Scope) String() string {
	if s.IsGlobal() {
		return "global"
	}
	return "building:" + s.BuildingID
}

// LabelCount is one row of a grouped count.
type LabelCount struct {
	Label string `bson:"_id" json:"label"`
	Count int64  `bson:"count" json:"count"`
}

// DayCount is one day of the creation trend, keyed YYYY-MM-DD (UTC).
type DayCount struct {
	Date  string `bson:"_id" json:"date"`
	Count int64  `bson:"count" json:"count"`
}

// CompletionStat summarises completion durations of completed tickets.
type CompletionStat struct {
	AvgHours float64 `bson:"avg_hours"`
	Count    int64   `bson:"count"`
}

// TechnicianGroup is the raw per-assignee grouping the performance
// aggregator derives its figures from.
type TechnicianGroup struct {
	TechnicianID      string   `bson:"_id"`
	TechnicianName    *string  `bson:"name"`
	Total             int64    `bson:"total"`
	Completed         int64    `bson:"completed"`
	InProgress        int64    `bson:"in_progress"`
	CompletionHours   float64  `bson:"completion_hours"`
	CompletionSamples int64    `bson:"completion_samples"`
	Categories        []string `bson:"categories"`
}

// ModelStat is the per-model calibration summary of stored predictions.
type ModelStat struct {
	ModelID        string  `bson:"_id" json:"model_id"`
	Count          int64   `bson:"count" json:"count"`
	AvgProbability float64 `bson:"avg_probability" json:"avg_probability"`
}

// StatusRevenue is revenue grouped by invoice status.
type StatusRevenue struct {
	Status InvoiceStatus `bson:"_id" json:"status"`
	Total  float64       `bson:"total" json:"total"`
	Count  int64         `bson:"count" json:"count"`
}

// MonthRevenue is revenue for one calendar month, keyed YYYY-MM (UTC).
type MonthRevenue struct {
	Month string  `bson:"_id" json:"month"`
	Total float64 `bson:"total" json:"total"`
	Count int64   `bson:"count" json:"count"`
}

// TicketStats is the output of the statistics aggregator.
type TicketStats struct {
	Total              int64        `json:"total"`
	Open               int64        `json:"open"`
	Assigned           int64        `json:"assigned"`
	Accepted           int64        `json:"accepted"`
	InProgress         int64        `json:"in_progress"`
	Completed          int64        `json:"completed"`
	ByStatus           []LabelCount `json:"by_status"`
	ByCategory         []LabelCount `json:"by_category"`
	ByPriority         []LabelCount `json:"by_priority"`
	AvgCompletionHours float64      `json:"avg_completion_hours"`
	DailyTrend         []DayCount   `json:"daily_trend"`
}

// TechnicianPerformance is the derived performance record of one technician.
type TechnicianPerformance struct {
	TechnicianID       string           `json:"technician_id"`
	TechnicianName     string           `json:"technician_name"`
	TotalAssigned      int64            `json:"total_assigned"`
	Completed          int64            `json:"completed"`
	InProgress         int64            `json:"in_progress"`
	CompletionRate     float64          `json:"completion_rate"`
	AvgCompletionHours float64          `json:"avg_completion_hours"`
	Categories         map[string]int64 `json:"categories"`
}

// PredictionDigest is the summary projection of a recent prediction.
type PredictionDigest struct {
	ID                 string     `json:"id"`
	TicketID           *string    `json:"ticket_id,omitempty"`
	RiskLevel          *RiskLevel `json:"risk_level,omitempty"`
	FailureProbability float64    `json:"failure_probability"`
	RecommendedAction  string     `json:"recommended_action"`
	CreatedAt          time.Time  `json:"created_at"`
}

// PredictionSummary is the output of the prediction summary aggregator.
type PredictionSummary struct {
	Total                 int64              `json:"total"`
	High                  int64              `json:"high"`
	Medium                int64              `json:"medium"`
	Low                   int64              `json:"low"`
	ByRisk                []LabelCount       `json:"by_risk"`
	Models                []ModelStat        `json:"models"`
	AvgFailureProbability float64            `json:"avg_failure_probability"`
	Recent                []PredictionDigest `json:"recent"`
}

// InvoiceAnalytics is the output of the invoice analytics aggregator.
type InvoiceAnalytics struct {
	ByStatus         []StatusRevenue `json:"by_status"`
	Monthly          []MonthRevenue  `json:"monthly"`
	TotalRevenue     float64         `json:"total_revenue"`
	TotalInvoices    int64           `json:"total_invoices"`
	AvgInvoiceAmount float64         `json:"avg_invoice_amount"`
}

// HealthBreakdown shows the three weighted inputs of the health score.
type HealthBreakdown struct {
	CompletionRate  float64 `json:"completion_rate"`
	OpenTicketScore float64 `json:"open_ticket_score"`
	RiskScore       float64 `json:"risk_score"`
}

// HealthReport is the composite building health score.
type HealthReport struct {
	Score     int             `json:"health_score"`
	Grade     string          `json:"health_grade"`
	Breakdown HealthBreakdown `json:"breakdown"`
}

// Overview bundles every analytics section for a dashboard.
type Overview struct {
	HealthScore int                     `json:"health_score"`
	HealthGrade string                  `json:"health_grade"`
	Tickets     *TicketStats            `json:"tickets,omitempty"`
	Technicians []TechnicianPerformance `json:"technicians,omitempty"`
	Predictions *PredictionSummary      `json:"predictions,omitempty"`
	Invoices    *InvoiceAnalytics       `json:"invoices,omitempty"`
	GeneratedAt time.Time               `json:"generated_at"`
	Failures    map[string]string       `json:"failures,omitempty"`
}
