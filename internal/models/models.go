// Package models provides domain models for the portfolio application.
package models

import (
	"time"
)

// Market represents a Taiwanese stock market.
type Market string

const (
	TWSE Market = "tse" // Taiwan Stock Exchange (listed)
	TPEx Market = "otc" // Taipei Exchange (over-the-counter)
)

// TransactionSide represents the side of a transaction.
type TransactionSide string

const (
	SideBuy  TransactionSide = "BUY"
	SideSell TransactionSide = "SELL"
)

// Transaction represents a recorded stock transaction.
type Transaction struct {
	ID        string
	Code      string // e.g. "2330"
	Name      string // e.g. "台積電"
	Side      TransactionSide
	Quantity  int64
	Price     float64
	Fee       float64
	Tax       float64
	Timestamp time.Time
	CreatedAt time.Time
}

// TotalAmount returns the gross amount of the transaction including
// fee and tax.
func (t *Transaction) TotalAmount() float64 {
	return float64(t.Quantity)*t.Price + t.Fee + t.Tax
}
