// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"twstock-portfolio/internal/models"
)

// TransactionStore persists stock transactions.
type TransactionStore interface {
	ListTransactions(ctx context.Context) ([]models.Transaction, error)
	ListTransactionsByCode(ctx context.Context, code string) ([]models.Transaction, error)
	ListTransactionsFiltered(ctx context.Context, filter TransactionFilter) ([]models.Transaction, error)
	ListTodayTransactions(ctx context.Context) ([]models.Transaction, error)
	InsertTransaction(ctx context.Context, txn *models.Transaction) error
	UpdateTransaction(ctx context.Context, txn *models.Transaction) error
	DeleteTransaction(ctx context.Context, id string) error
}

// DividendStore persists attributed dividend events.
type DividendStore interface {
	ListDividends(ctx context.Context) ([]models.DividendEvent, error)
	ListDividendsByCode(ctx context.Context, code string) ([]models.DividendEvent, error)
	ListDividendsByTransaction(ctx context.Context, txnID string) ([]models.DividendEvent, error)
	InsertDividend(ctx context.Context, ev *models.DividendEvent) error
	DeleteDividendsByCode(ctx context.Context, code string) error
	SumDividendsByCode(ctx context.Context, code string) (float64, error)
}

// DividendRecordStore persists per-instrument reconciliation records.
// Get returns (nil, nil) when no record exists for the code.
type DividendRecordStore interface {
	GetDividendRecord(ctx context.Context, code string) (*models.DividendCalculationRecord, error)
	UpsertDividendRecord(ctx context.Context, rec *models.DividendCalculationRecord) error
	DeleteDividendRecord(ctx context.Context, code string) error
}

// PriceCacheStore persists last known-good quotes. Freshness policy is
// the resolver's concern; entries are never expired here.
// GetCacheEntry returns (nil, nil) on a cache miss.
type PriceCacheStore interface {
	GetCacheEntry(ctx context.Context, code string) (*models.PriceCacheEntry, error)
	UpsertCacheEntry(ctx context.Context, entry *models.PriceCacheEntry) error
	DeleteCacheEntry(ctx context.Context, code string) error
	ClearCache(ctx context.Context) error
}

// DataStore combines all persistence concerns behind one handle.
type DataStore interface {
	TransactionStore
	DividendStore
	DividendRecordStore
	PriceCacheStore

	Close() error
}

// TransactionFilter represents filters for querying transactions.
// Zero-valued fields are not applied; EndDate is exclusive.
type TransactionFilter struct {
	Code      string
	Side      models.TransactionSide
	StartDate time.Time
	EndDate   time.Time
	Limit     int
}
