package portfolio

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"twstock-portfolio/internal/models"
	"twstock-portfolio/internal/quote"
	"twstock-portfolio/internal/store"
)

// memStore backs the store interfaces the aggregator reads from.
type memStore struct {
	txns      []models.Transaction
	today     []models.Transaction
	dividends map[string]float64
	records   map[string]*models.DividendCalculationRecord
}

func newMemStore() *memStore {
	return &memStore{
		dividends: make(map[string]float64),
		records:   make(map[string]*models.DividendCalculationRecord),
	}
}

func (m *memStore) ListTransactions(ctx context.Context) ([]models.Transaction, error) {
	return m.txns, nil
}

func (m *memStore) ListTransactionsByCode(ctx context.Context, code string) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, t := range m.txns {
		if t.Code == code {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) ListTransactionsFiltered(ctx context.Context, f store.TransactionFilter) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, t := range m.txns {
		if f.Code != "" && t.Code != f.Code {
			continue
		}
		if f.Side != "" && t.Side != f.Side {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *memStore) ListTodayTransactions(ctx context.Context) ([]models.Transaction, error) {
	return m.today, nil
}

func (m *memStore) InsertTransaction(ctx context.Context, txn *models.Transaction) error {
	m.txns = append(m.txns, *txn)
	return nil
}

func (m *memStore) UpdateTransaction(ctx context.Context, txn *models.Transaction) error { return nil }
func (m *memStore) DeleteTransaction(ctx context.Context, id string) error              { return nil }

func (m *memStore) ListDividends(ctx context.Context) ([]models.DividendEvent, error) {
	return nil, nil
}

func (m *memStore) ListDividendsByCode(ctx context.Context, code string) ([]models.DividendEvent, error) {
	return nil, nil
}

func (m *memStore) ListDividendsByTransaction(ctx context.Context, txnID string) ([]models.DividendEvent, error) {
	return nil, nil
}

func (m *memStore) InsertDividend(ctx context.Context, ev *models.DividendEvent) error { return nil }
func (m *memStore) DeleteDividendsByCode(ctx context.Context, code string) error       { return nil }

func (m *memStore) SumDividendsByCode(ctx context.Context, code string) (float64, error) {
	return m.dividends[code], nil
}

func (m *memStore) GetDividendRecord(ctx context.Context, code string) (*models.DividendCalculationRecord, error) {
	return m.records[code], nil
}

func (m *memStore) UpsertDividendRecord(ctx context.Context, rec *models.DividendCalculationRecord) error {
	cp := *rec
	m.records[rec.Code] = &cp
	return nil
}

func (m *memStore) DeleteDividendRecord(ctx context.Context, code string) error { return nil }

// fakeResolver maps instrument codes to canned quotes. Missing codes
// resolve to ErrPriceNotAvailable.
type fakeResolver struct {
	quotes map[string]*models.Quote
}

func (r *fakeResolver) Resolve(ctx context.Context, code string, forceRefresh bool) (*models.Quote, error) {
	q, ok := r.quotes[code]
	if !ok {
		return nil, quote.ErrPriceNotAvailable
	}
	cp := *q
	cp.Code = code
	return &cp, nil
}

func txn(code string, side models.TransactionSide, qty int64, price, fee float64) models.Transaction {
	return models.Transaction{
		ID:        code + "-" + string(side),
		Code:      code,
		Side:      side,
		Quantity:  qty,
		Price:     price,
		Fee:       fee,
		Timestamp: time.Date(2024, 3, 1, 10, 0, 0, 0, time.Local),
	}
}

func marketQuote(price, prevClose float64) *models.Quote {
	return &models.Quote{
		Price:         price,
		PreviousClose: prevClose,
		Change:        price - prevClose,
		ResolvedAt:    time.Now(),
	}
}

func newTestAggregator(st *memStore, r PriceResolver) *Aggregator {
	return NewAggregator(st, st, st, r, zerolog.Nop())
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestSummarize_SingleHolding(t *testing.T) {
	st := newMemStore()
	st.txns = append(st.txns, txn("2330", models.SideBuy, 1000, 500, 20))
	resolver := &fakeResolver{quotes: map[string]*models.Quote{
		"2330": marketQuote(520, 510),
	}}

	a := newTestAggregator(st, resolver)

	s, err := a.Summarize(context.Background(), true)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if len(s.Holdings) != 1 {
		t.Fatalf("holdings = %d, want 1", len(s.Holdings))
	}

	h := s.Holdings[0]
	if !approx(h.AverageCost, 500.02) {
		t.Errorf("average cost = %v, want 500.02", h.AverageCost)
	}
	if !approx(h.CurrentValue, 520000) {
		t.Errorf("current value = %v, want 520000", h.CurrentValue)
	}
	if !approx(h.ProfitLoss, 19980) {
		t.Errorf("profit = %v, want 19980", h.ProfitLoss)
	}
	if !approx(h.TodayProfitLoss(), 10000) {
		t.Errorf("today's profit = %v, want 10000", h.TodayProfitLoss())
	}
	if !approx(h.PositionRatio, 100) {
		t.Errorf("position ratio = %v, want 100", h.PositionRatio)
	}
	if !approx(s.TotalAssets, 520000) {
		t.Errorf("total assets = %v, want 520000", s.TotalAssets)
	}
	if !approx(s.TodayPLPercent, 10000/510000.0*100) {
		t.Errorf("today P&L percent = %v", s.TodayPLPercent)
	}
}

func TestSummarize_DividendsAdjustCost(t *testing.T) {
	st := newMemStore()
	st.txns = append(st.txns, txn("2330", models.SideBuy, 1000, 500, 0))
	st.dividends["2330"] = 2500
	resolver := &fakeResolver{quotes: map[string]*models.Quote{
		"2330": marketQuote(520, 510),
	}}

	a := newTestAggregator(st, resolver)
	ctx := context.Background()

	withDiv, err := a.Summarize(ctx, true)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	h := withDiv.Holdings[0]
	if !approx(h.ProfitLoss, 20000+2500) {
		t.Errorf("dividend-adjusted profit = %v, want 22500", h.ProfitLoss)
	}
	if !approx(h.AdjustedCost, 500000-2500) {
		t.Errorf("adjusted cost = %v, want 497500", h.AdjustedCost)
	}
	if !approx(h.ProfitLossPercent, 22500/497500.0*100) {
		t.Errorf("profit percent = %v", h.ProfitLossPercent)
	}

	withoutDiv, err := a.Summarize(ctx, false)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	h = withoutDiv.Holdings[0]
	if !approx(h.ProfitLoss, 20000) {
		t.Errorf("raw profit = %v, want 20000", h.ProfitLoss)
	}
	if !approx(h.AdjustedCost, 500000) {
		t.Errorf("raw cost = %v, want 500000", h.AdjustedCost)
	}
}

func TestSummarize_ZeroCostHolding(t *testing.T) {
	st := newMemStore()
	st.txns = append(st.txns, txn("0050", models.SideBuy, 1000, 1, 0))
	st.dividends["0050"] = 1200
	resolver := &fakeResolver{quotes: map[string]*models.Quote{
		"0050": marketQuote(1.5, 1.4),
	}}

	a := newTestAggregator(st, resolver)

	s, err := a.Summarize(context.Background(), true)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	h := s.Holdings[0]
	if !approx(h.AdjustedCost, 1000-1200) {
		t.Errorf("adjusted cost = %v, want -200", h.AdjustedCost)
	}
	if !h.IsZeroCost {
		t.Error("holding with negative adjusted cost must be zero-cost")
	}
	if h.ProfitLossPercent != 0 {
		t.Errorf("zero-cost profit percent = %v, want 0", h.ProfitLossPercent)
	}
	if !s.IsZeroCost {
		t.Error("portfolio of one zero-cost holding must be zero-cost")
	}
	if s.TotalPLPercent != 0 {
		t.Errorf("zero-cost portfolio percent = %v, want 0", s.TotalPLPercent)
	}
}

func TestSummarize_SoldOutPositionOmitted(t *testing.T) {
	st := newMemStore()
	st.txns = append(st.txns,
		txn("2330", models.SideBuy, 1000, 500, 0),
		txn("2330", models.SideSell, 1000, 520, 0),
		txn("2454", models.SideBuy, 500, 900, 0),
	)
	resolver := &fakeResolver{quotes: map[string]*models.Quote{
		"2330": marketQuote(520, 510),
		"2454": marketQuote(950, 940),
	}}

	a := newTestAggregator(st, resolver)

	s, err := a.Summarize(context.Background(), true)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if len(s.Holdings) != 1 {
		t.Fatalf("holdings = %d, want 1", len(s.Holdings))
	}
	if s.Holdings[0].Code != "2454" {
		t.Errorf("surviving holding = %s, want 2454", s.Holdings[0].Code)
	}
}

func TestSummarize_UnpricedHoldingOmittedUnlessFresh(t *testing.T) {
	st := newMemStore()
	st.txns = append(st.txns,
		txn("2330", models.SideBuy, 1000, 500, 0),
		txn("9999", models.SideBuy, 1000, 10, 0),
	)
	resolver := &fakeResolver{quotes: map[string]*models.Quote{
		"2330": marketQuote(520, 510),
	}}

	a := newTestAggregator(st, resolver)
	ctx := context.Background()

	s, err := a.Summarize(ctx, true)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if len(s.Holdings) != 1 || s.Holdings[0].Code != "2330" {
		t.Fatalf("unresolvable aged position not omitted: %+v", s.Holdings)
	}

	// A position bought today stays visible at its cost basis.
	st.today = append(st.today, txn("9999", models.SideBuy, 1000, 10, 0))

	s, err = a.Summarize(ctx, true)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if len(s.Holdings) != 2 {
		t.Fatalf("holdings = %d, want 2 with fresh position visible", len(s.Holdings))
	}

	var fresh *models.Holding
	for i := range s.Holdings {
		if s.Holdings[i].Code == "9999" {
			fresh = &s.Holdings[i]
		}
	}
	if fresh == nil {
		t.Fatal("fresh position missing from summary")
	}
	if !fresh.IsUnpriced || !fresh.IsStale {
		t.Errorf("fresh position flags = (unpriced %v, stale %v), want both true", fresh.IsUnpriced, fresh.IsStale)
	}
	if !approx(fresh.CurrentPrice, fresh.AverageCost) {
		t.Errorf("fresh position price = %v, want cost %v", fresh.CurrentPrice, fresh.AverageCost)
	}
	if !approx(fresh.TodayProfitLoss(), 0) {
		t.Errorf("fresh position today's profit = %v, want 0", fresh.TodayProfitLoss())
	}
}

func TestSummarize_EmptyPortfolio(t *testing.T) {
	a := newTestAggregator(newMemStore(), &fakeResolver{})

	s, err := a.Summarize(context.Background(), true)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if len(s.Holdings) != 0 || s.TotalAssets != 0 {
		t.Errorf("empty portfolio produced %+v", s)
	}
}

func TestSummarize_PositionRatiosSumToHundred(t *testing.T) {
	st := newMemStore()
	st.txns = append(st.txns,
		txn("2330", models.SideBuy, 1000, 500, 0),
		txn("2454", models.SideBuy, 500, 900, 0),
	)
	resolver := &fakeResolver{quotes: map[string]*models.Quote{
		"2330": marketQuote(520, 510),
		"2454": marketQuote(950, 940),
	}}

	a := newTestAggregator(st, resolver)

	s, err := a.Summarize(context.Background(), true)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	var sum float64
	for _, h := range s.Holdings {
		sum += h.PositionRatio
	}
	if !approx(sum, 100) {
		t.Errorf("position ratios sum = %v, want 100", sum)
	}
}

func TestRatio(t *testing.T) {
	tests := []struct {
		part, whole, want float64
	}{
		{50, 200, 25},
		{10, 0, 0},
		{10, -5, 0},
		{0, 100, 0},
	}
	for _, tt := range tests {
		if got := ratio(tt.part, tt.whole); !approx(got, tt.want) {
			t.Errorf("ratio(%v, %v) = %v, want %v", tt.part, tt.whole, got, tt.want)
		}
	}
}
