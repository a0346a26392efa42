package models

// Holding represents a derived per-instrument position. It is computed
// per request and never persisted.
type Holding struct {
	Code              string
	Name              string
	Quantity          int64
	AverageCost       float64
	CurrentPrice      float64
	PreviousClose     float64
	CurrentValue      float64
	ProfitLoss        float64
	ProfitLossPercent float64
	PositionRatio     float64 // percent of total portfolio value
	TotalDividends    float64
	AdjustedCost      float64
	IsZeroCost        bool
	IsStale           bool
	IsUnpriced        bool // price substituted with average cost
	BestAsk           float64
	TodayChangePct    float64
}

// TodayProfitLoss returns today's P&L for the holding.
func (h *Holding) TodayProfitLoss() float64 {
	return (h.CurrentPrice - h.PreviousClose) * float64(h.Quantity)
}

// PortfolioSummary aggregates all holdings.
type PortfolioSummary struct {
	Holdings          []Holding
	TotalAssets       float64
	TodayProfitLoss   float64
	TodayPLPercent    float64
	TotalProfitLoss   float64
	TotalPLPercent    float64
	TotalAdjustedCost float64
	IsZeroCost        bool
	IncludesDividends bool
}
