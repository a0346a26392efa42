// Package dividend discovers ex-dividend events and attributes them to
// individual buy transactions.
package dividend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"twstock-portfolio/internal/logging"
	"twstock-portfolio/internal/models"
	"twstock-portfolio/internal/quote"
	"twstock-portfolio/internal/store"
)

// RecheckInterval bounds how often a SUCCESS or NOT_FOUND outcome is
// re-queried. API_ERROR outcomes retry immediately.
const RecheckInterval = 24 * time.Hour

// EventsSource queries dividend events for a date range.
type EventsSource interface {
	DividendEvents(ctx context.Context, code string, start, end time.Time) ([]quote.DividendRow, error)
}

// Reconciler matches ex-dividend events against buy transactions and
// persists the attributed dividend records.
type Reconciler struct {
	txns      store.TransactionStore
	dividends store.DividendStore
	records   store.DividendRecordStore
	source    EventsSource
	logger    zerolog.Logger
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewReconciler creates a dividend reconciler.
func NewReconciler(txns store.TransactionStore, dividends store.DividendStore, records store.DividendRecordStore, source EventsSource, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		txns:      txns,
		dividends: dividends,
		records:   records,
		source:    source,
		logger:    logger.With().Str("component", "reconciler").Logger(),
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
}

// ShouldReconcile reports whether the instrument is due for a fresh
// dividend query: no prior record, a transient failure last time, or
// the recheck interval has elapsed.
func (r *Reconciler) ShouldReconcile(ctx context.Context, code string) bool {
	rec, err := r.records.GetDividendRecord(ctx, code)
	if err != nil {
		r.logger.Warn().Err(err).Str("code", code).Msg("dividend record read failed")
		return true
	}
	if rec == nil {
		return true
	}
	if rec.Outcome == models.ReconcileAPIError {
		return true
	}
	return r.now().Sub(rec.CalculatedAt) >= RecheckInterval
}

// tripleKey identifies a dividend event by its uniqueness invariant.
// The ex-date is keyed by calendar day as a string: time.Time map keys
// compare location pointers, and events read back from the store carry
// a different location than freshly parsed ones.
type tripleKey struct {
	txnID  string
	exDate string
	typ    models.DividendType
}

func keyFor(txnID string, exDate time.Time, typ models.DividendType) tripleKey {
	return tripleKey{txnID, exDate.Format("2006-01-02"), typ}
}

// Reconcile queries the dividend source for the instrument's full
// purchase history and replaces its recorded dividend events with a
// freshly attributed set. The replace happens only on a provably
// successful query; transport errors propagate and leave prior records
// untouched. The returned count covers newly discovered events only.
func (r *Reconciler) Reconcile(ctx context.Context, code string) (int, error) {
	lock := r.lockFor(code)
	lock.Lock()
	defer lock.Unlock()

	buys, err := r.buyTransactions(ctx, code)
	if err != nil {
		return 0, err
	}
	if len(buys) == 0 {
		return 0, nil
	}

	start := earliestPurchase(buys)
	end := r.now()

	rows, err := r.source.DividendEvents(ctx, code, start, end)
	if err != nil {
		if errors.Is(err, quote.ErrInstrumentNotFound) {
			r.writeRecord(ctx, code, 0, models.ReconcileNotFound)
			return 0, nil
		}
		r.writeRecord(ctx, code, 0, models.ReconcileAPIError)
		return 0, fmt.Errorf("querying dividend events for %s: %w", code, err)
	}

	// Snapshot the triples known before the replace so the inserted
	// count reflects genuinely new discoveries, not the re-insert.
	existing, err := r.dividends.ListDividendsByCode(ctx, code)
	if err != nil {
		return 0, err
	}
	known := make(map[tripleKey]bool, len(existing))
	for _, ev := range existing {
		known[keyFor(ev.TransactionID, ev.ExDate, ev.Type)] = true
	}

	fresh := attribute(code, buys, rows)

	newCount := 0
	for _, ev := range fresh {
		if !known[keyFor(ev.TransactionID, ev.ExDate, ev.Type)] {
			newCount++
		}
	}

	// All-or-nothing replace, gated on the successful query above.
	if err := r.dividends.DeleteDividendsByCode(ctx, code); err != nil {
		return 0, err
	}
	for i := range fresh {
		if err := r.dividends.InsertDividend(ctx, &fresh[i]); err != nil {
			return 0, err
		}
	}

	r.writeRecord(ctx, code, newCount, models.ReconcileSuccess)
	instLogger := logging.WithInstrument(r.logger, code)
	instLogger.Info().
		Int("events", len(fresh)).
		Int("new", newCount).
		Msg("dividend reconciliation completed")
	return newCount, nil
}

func (r *Reconciler) lockFor(code string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[code]
	if !ok {
		l = &sync.Mutex{}
		r.locks[code] = l
	}
	return l
}

func (r *Reconciler) buyTransactions(ctx context.Context, code string) ([]models.Transaction, error) {
	txns, err := r.txns.ListTransactionsByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	var buys []models.Transaction
	for _, t := range txns {
		if t.Side == models.SideBuy {
			buys = append(buys, t)
		}
	}
	return buys, nil
}

func (r *Reconciler) writeRecord(ctx context.Context, code string, inserted int, outcome models.ReconcileOutcome) {
	rec := &models.DividendCalculationRecord{
		Code:          code,
		CalculatedAt:  r.now(),
		InsertedCount: inserted,
		Outcome:       outcome,
	}
	if err := r.records.UpsertDividendRecord(ctx, rec); err != nil {
		r.logger.Error().Err(err).Str("code", code).Msg("persisting dividend record failed")
	}
}

// attribute builds the dividend events for every qualifying
// (buy transaction, event) pair. A transaction qualifies when its
// date-truncated purchase date is strictly earlier than the ex-dividend
// date; a purchase on the ex-date itself is not entitled. Duplicate
// (transaction, date, type) triples within one run are suppressed.
func attribute(code string, buys []models.Transaction, rows []quote.DividendRow) []models.DividendEvent {
	var events []models.DividendEvent
	seen := make(map[tripleKey]bool)

	for _, txn := range buys {
		purchased := truncateDay(txn.Timestamp)

		for i := range rows {
			row := &rows[i]

			if exDate, ok := row.CashExDate(); ok && row.CashPerUnit() > 0 && purchased.Before(exDate) {
				key := keyFor(txn.ID, exDate, models.DividendCash)
				if !seen[key] {
					seen[key] = true
					events = append(events, models.DividendEvent{
						ID:            uuid.NewString(),
						TransactionID: txn.ID,
						Code:          code,
						Type:          models.DividendCash,
						ExDate:        exDate,
						AmountPerUnit: row.CashPerUnit(),
						Quantity:      txn.Quantity,
						TotalAmount:   row.CashPerUnit() * float64(txn.Quantity),
						Note:          row.Year,
					})
				}
			}

			if exDate, ok := row.StockExDate(); ok && row.StockPerUnit() > 0 && purchased.Before(exDate) {
				key := keyFor(txn.ID, exDate, models.DividendStock)
				if !seen[key] {
					seen[key] = true
					// Stock dividends are not valued; the per-unit
					// share count is kept but the amount stays zero.
					events = append(events, models.DividendEvent{
						ID:            uuid.NewString(),
						TransactionID: txn.ID,
						Code:          code,
						Type:          models.DividendStock,
						ExDate:        exDate,
						AmountPerUnit: row.StockPerUnit(),
						Quantity:      txn.Quantity,
						TotalAmount:   0,
						Note:          row.Year,
					})
				}
			}
		}
	}

	return events
}

func earliestPurchase(buys []models.Transaction) time.Time {
	earliest := buys[0].Timestamp
	for _, t := range buys[1:] {
		if t.Timestamp.Before(earliest) {
			earliest = t.Timestamp
		}
	}
	return truncateDay(earliest)
}

// truncateDay zeroes the time of day, keeping the location.
func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
