package models

import "time"

// DividendType represents the kind of dividend distribution.
type DividendType string

const (
	DividendCash  DividendType = "CASH"
	DividendStock DividendType = "STOCK"
)

// DividendEvent represents a dividend attributed to a single buy
// transaction. At most one event may exist per
// (transaction, ex-dividend date, type) triple.
type DividendEvent struct {
	ID            string
	TransactionID string
	Code          string
	Type          DividendType
	ExDate        time.Time // date-truncated, time of day zeroed
	AmountPerUnit float64   // cash per unit, or shares per unit for stock
	Quantity      int64     // copied from the owning transaction
	TotalAmount   float64   // AmountPerUnit * Quantity for cash, 0 for stock
	Note          string
	CreatedAt     time.Time
}

// ReconcileOutcome classifies the result of a dividend source query.
type ReconcileOutcome string

const (
	ReconcileSuccess  ReconcileOutcome = "SUCCESS"
	ReconcileNotFound ReconcileOutcome = "NOT_FOUND"
	ReconcileAPIError ReconcileOutcome = "API_ERROR"
)

// DividendCalculationRecord tracks the last reconciliation attempt for
// an instrument. One record per instrument, overwritten on every
// attempt, successful or not.
type DividendCalculationRecord struct {
	Code          string
	CalculatedAt  time.Time
	InsertedCount int
	Outcome       ReconcileOutcome
}
