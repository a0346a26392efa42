package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"twstock-portfolio/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Transactions table for buy/sell records
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		price REAL NOT NULL,
		fee REAL DEFAULT 0,
		tax REAL DEFAULT 0,
		timestamp DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Dividend events attributed to buy transactions
	CREATE TABLE IF NOT EXISTS dividends (
		id TEXT PRIMARY KEY,
		transaction_id TEXT NOT NULL,
		code TEXT NOT NULL,
		type TEXT NOT NULL,
		ex_date DATETIME NOT NULL,
		amount_per_unit REAL NOT NULL,
		quantity INTEGER NOT NULL,
		total_amount REAL NOT NULL,
		note TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(transaction_id, ex_date, type),
		FOREIGN KEY (transaction_id) REFERENCES transactions(id)
	);

	-- Per-instrument dividend reconciliation bookkeeping
	CREATE TABLE IF NOT EXISTS dividend_results (
		code TEXT PRIMARY KEY,
		calculated_at DATETIME NOT NULL,
		inserted_count INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Last known-good quotes
	CREATE TABLE IF NOT EXISTS price_cache (
		code TEXT PRIMARY KEY,
		price REAL NOT NULL,
		previous_close REAL NOT NULL,
		change REAL NOT NULL,
		change_percent REAL NOT NULL,
		best_ask REAL DEFAULT 0,
		updated_at DATETIME NOT NULL
	);

	-- Create indexes for performance
	CREATE INDEX IF NOT EXISTS idx_transactions_code ON transactions(code);
	CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(timestamp);
	CREATE INDEX IF NOT EXISTS idx_dividends_code ON dividends(code);
	CREATE INDEX IF NOT EXISTS idx_dividends_transaction ON dividends(transaction_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Transaction Methods
// ============================================================================

const transactionColumns = "id, code, name, side, quantity, price, fee, tax, timestamp, created_at"

// ListTransactions returns all transactions in chronological order.
func (s *SQLiteStore) ListTransactions(ctx context.Context) ([]models.Transaction, error) {
	return s.queryTransactions(ctx, fmt.Sprintf(
		"SELECT %s FROM transactions ORDER BY timestamp ASC", transactionColumns))
}

// ListTransactionsByCode returns all transactions for an instrument in
// chronological order.
func (s *SQLiteStore) ListTransactionsByCode(ctx context.Context, code string) ([]models.Transaction, error) {
	return s.ListTransactionsFiltered(ctx, TransactionFilter{Code: code})
}

// ListTransactionsFiltered returns transactions matching the filter in
// chronological order. Zero-valued filter fields are not applied.
func (s *SQLiteStore) ListTransactionsFiltered(ctx context.Context, filter TransactionFilter) ([]models.Transaction, error) {
	query := fmt.Sprintf("SELECT %s FROM transactions", transactionColumns)
	var conds []string
	var args []interface{}

	if filter.Code != "" {
		conds = append(conds, "code = ?")
		args = append(args, filter.Code)
	}
	if filter.Side != "" {
		conds = append(conds, "side = ?")
		args = append(args, filter.Side)
	}
	if !filter.StartDate.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, filter.StartDate)
	}
	if !filter.EndDate.IsZero() {
		conds = append(conds, "timestamp < ?")
		args = append(args, filter.EndDate)
	}

	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	return s.queryTransactions(ctx, query, args...)
}

// ListTodayTransactions returns transactions recorded today (local time).
func (s *SQLiteStore) ListTodayTransactions(ctx context.Context) ([]models.Transaction, error) {
	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return s.queryTransactions(ctx, fmt.Sprintf(
		"SELECT %s FROM transactions WHERE timestamp >= ? ORDER BY timestamp ASC", transactionColumns), start)
}

func (s *SQLiteStore) queryTransactions(ctx context.Context, query string, args ...interface{}) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txns []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.Code, &t.Name, &t.Side, &t.Quantity, &t.Price, &t.Fee, &t.Tax, &t.Timestamp, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return txns, nil
}

// InsertTransaction saves a transaction.
func (s *SQLiteStore) InsertTransaction(ctx context.Context, txn *models.Transaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, code, name, side, quantity, price, fee, tax, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, txn.ID, txn.Code, txn.Name, txn.Side, txn.Quantity, txn.Price, txn.Fee, txn.Tax, txn.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// UpdateTransaction overwrites an existing transaction.
func (s *SQLiteStore) UpdateTransaction(ctx context.Context, txn *models.Transaction) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET code = ?, name = ?, side = ?, quantity = ?, price = ?, fee = ?, tax = ?, timestamp = ?
		WHERE id = ?
	`, txn.Code, txn.Name, txn.Side, txn.Quantity, txn.Price, txn.Fee, txn.Tax, txn.Timestamp, txn.ID)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("transaction %s not found", txn.ID)
	}
	return nil
}

// DeleteTransaction removes a transaction and its attributed dividends.
func (s *SQLiteStore) DeleteTransaction(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM dividends WHERE transaction_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete attributed dividends: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ============================================================================
// Dividend Methods
// ============================================================================

const dividendColumns = "id, transaction_id, code, type, ex_date, amount_per_unit, quantity, total_amount, note, created_at"

// ListDividends returns all dividend events.
func (s *SQLiteStore) ListDividends(ctx context.Context) ([]models.DividendEvent, error) {
	return s.queryDividends(ctx, fmt.Sprintf(
		"SELECT %s FROM dividends ORDER BY ex_date ASC", dividendColumns))
}

// ListDividendsByCode returns all dividend events for an instrument.
func (s *SQLiteStore) ListDividendsByCode(ctx context.Context, code string) ([]models.DividendEvent, error) {
	return s.queryDividends(ctx, fmt.Sprintf(
		"SELECT %s FROM dividends WHERE code = ? ORDER BY ex_date ASC", dividendColumns), code)
}

// ListDividendsByTransaction returns all dividend events attributed to
// a transaction.
func (s *SQLiteStore) ListDividendsByTransaction(ctx context.Context, txnID string) ([]models.DividendEvent, error) {
	return s.queryDividends(ctx, fmt.Sprintf(
		"SELECT %s FROM dividends WHERE transaction_id = ? ORDER BY ex_date ASC", dividendColumns), txnID)
}

func (s *SQLiteStore) queryDividends(ctx context.Context, query string, args ...interface{}) ([]models.DividendEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query dividends: %w", err)
	}
	defer rows.Close()

	var events []models.DividendEvent
	for rows.Next() {
		var ev models.DividendEvent
		var note sql.NullString
		if err := rows.Scan(&ev.ID, &ev.TransactionID, &ev.Code, &ev.Type, &ev.ExDate, &ev.AmountPerUnit, &ev.Quantity, &ev.TotalAmount, &note, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dividend: %w", err)
		}
		ev.Note = note.String
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dividends: %w", err)
	}

	return events, nil
}

// InsertDividend saves a dividend event. The (transaction, ex-date,
// type) uniqueness invariant is enforced by the schema.
func (s *SQLiteStore) InsertDividend(ctx context.Context, ev *models.DividendEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dividends (id, transaction_id, code, type, ex_date, amount_per_unit, quantity, total_amount, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.TransactionID, ev.Code, ev.Type, ev.ExDate, ev.AmountPerUnit, ev.Quantity, ev.TotalAmount, ev.Note)
	if err != nil {
		return fmt.Errorf("failed to insert dividend: %w", err)
	}
	return nil
}

// DeleteDividendsByCode removes all dividend events for an instrument.
func (s *SQLiteStore) DeleteDividendsByCode(ctx context.Context, code string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM dividends WHERE code = ?", code); err != nil {
		return fmt.Errorf("failed to delete dividends: %w", err)
	}
	return nil
}

// SumDividendsByCode returns the accumulated cash dividend total for an
// instrument. Stock dividends carry a zero amount and do not contribute.
func (s *SQLiteStore) SumDividendsByCode(ctx context.Context, code string) (float64, error) {
	var total sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		"SELECT SUM(total_amount) FROM dividends WHERE code = ?", code).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum dividends: %w", err)
	}
	return total.Float64, nil
}

// ============================================================================
// Dividend Calculation Record Methods
// ============================================================================

// GetDividendRecord returns the reconciliation record for an instrument,
// or nil when no attempt has been recorded.
func (s *SQLiteStore) GetDividendRecord(ctx context.Context, code string) (*models.DividendCalculationRecord, error) {
	var rec models.DividendCalculationRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT code, calculated_at, inserted_count, outcome
		FROM dividend_results WHERE code = ?
	`, code).Scan(&rec.Code, &rec.CalculatedAt, &rec.InsertedCount, &rec.Outcome)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dividend record: %w", err)
	}
	return &rec, nil
}

// UpsertDividendRecord overwrites the reconciliation record for an
// instrument.
func (s *SQLiteStore) UpsertDividendRecord(ctx context.Context, rec *models.DividendCalculationRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dividend_results (code, calculated_at, inserted_count, outcome)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			calculated_at = excluded.calculated_at,
			inserted_count = excluded.inserted_count,
			outcome = excluded.outcome,
			updated_at = CURRENT_TIMESTAMP
	`, rec.Code, rec.CalculatedAt, rec.InsertedCount, rec.Outcome)
	if err != nil {
		return fmt.Errorf("failed to upsert dividend record: %w", err)
	}
	return nil
}

// DeleteDividendRecord removes the reconciliation record for an instrument.
func (s *SQLiteStore) DeleteDividendRecord(ctx context.Context, code string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM dividend_results WHERE code = ?", code); err != nil {
		return fmt.Errorf("failed to delete dividend record: %w", err)
	}
	return nil
}

// ============================================================================
// Price Cache Methods
// ============================================================================

// GetCacheEntry returns the cached quote for an instrument, or nil on a
// cache miss.
func (s *SQLiteStore) GetCacheEntry(ctx context.Context, code string) (*models.PriceCacheEntry, error) {
	var e models.PriceCacheEntry
	err := s.db.QueryRowContext(ctx, `
		SELECT code, price, previous_close, change, change_percent, best_ask, updated_at
		FROM price_cache WHERE code = ?
	`, code).Scan(&e.Code, &e.Price, &e.PreviousClose, &e.Change, &e.ChangePercent, &e.BestAsk, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	return &e, nil
}

// UpsertCacheEntry overwrites the cached quote for an instrument.
func (s *SQLiteStore) UpsertCacheEntry(ctx context.Context, entry *models.PriceCacheEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO price_cache (code, price, previous_close, change, change_percent, best_ask, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			price = excluded.price,
			previous_close = excluded.previous_close,
			change = excluded.change,
			change_percent = excluded.change_percent,
			best_ask = excluded.best_ask,
			updated_at = excluded.updated_at
	`, entry.Code, entry.Price, entry.PreviousClose, entry.Change, entry.ChangePercent, entry.BestAsk, entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return nil
}

// DeleteCacheEntry removes the cached quote for an instrument.
func (s *SQLiteStore) DeleteCacheEntry(ctx context.Context, code string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM price_cache WHERE code = ?", code); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// ClearCache removes all cached quotes.
func (s *SQLiteStore) ClearCache(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM price_cache"); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}
