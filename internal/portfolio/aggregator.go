// Package portfolio folds transactions, resolved quotes and accumulated
// dividends into per-instrument holdings and a portfolio summary.
package portfolio

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"twstock-portfolio/internal/logging"
	"twstock-portfolio/internal/models"
	"twstock-portfolio/internal/store"
)

// PriceResolver resolves one authoritative quote per instrument.
type PriceResolver interface {
	Resolve(ctx context.Context, code string, forceRefresh bool) (*models.Quote, error)
}

// Aggregator computes portfolio summaries.
type Aggregator struct {
	txns      store.TransactionStore
	dividends store.DividendStore
	records   store.DividendRecordStore
	resolver  PriceResolver
	logger    zerolog.Logger
}

// NewAggregator creates a portfolio aggregator.
func NewAggregator(txns store.TransactionStore, dividends store.DividendStore, records store.DividendRecordStore, resolver PriceResolver, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		txns:      txns,
		dividends: dividends,
		records:   records,
		resolver:  resolver,
		logger:    logger.With().Str("component", "aggregator").Logger(),
	}
}

// position is the intermediate per-instrument fold result.
type position struct {
	code string
	name string
	qty  int64
	cost float64
}

// Summarize folds the full transaction history into a portfolio
// summary. Instruments whose price cannot be resolved by any tier are
// omitted, except positions touched by a transaction today, which stay
// visible with the average cost substituted for both current and
// previous price.
func (a *Aggregator) Summarize(ctx context.Context, includeDividends bool) (*models.PortfolioSummary, error) {
	log := logging.WithOperation(a.logger, "summarize")

	txns, err := a.txns.ListTransactions(ctx)
	if err != nil {
		return nil, err
	}

	held := a.foldPositions(txns)
	if len(held) == 0 {
		return &models.PortfolioSummary{IncludesDividends: includeDividends}, nil
	}

	freshToday, err := a.todayCodes(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("today's transactions unavailable")
		freshToday = map[string]bool{}
	}

	quotes := a.resolveAll(ctx, held)

	summary := &models.PortfolioSummary{IncludesDividends: includeDividends}
	var prevCloseBase float64

	for i, pos := range held {
		avgCost := pos.cost / float64(pos.qty)

		q := quotes[i]
		unpriced := false
		if q == nil {
			if !freshToday[pos.code] {
				log.Warn().Str("code", pos.code).Msg("price unresolvable, omitting holding")
				continue
			}
			// Freshly added position without a resolvable price stays
			// visible at cost; today's P&L contribution is zero.
			q = &models.Quote{
				Code:          pos.code,
				Price:         avgCost,
				PreviousClose: avgCost,
				IsStale:       true,
			}
			unpriced = true
		}

		totalDividends, err := a.dividends.SumDividendsByCode(ctx, pos.code)
		if err != nil {
			log.Warn().Err(err).Str("code", pos.code).Msg("dividend sum unavailable")
			totalDividends = 0
		}
		if rec, err := a.records.GetDividendRecord(ctx, pos.code); err == nil && rec != nil && rec.Outcome == models.ReconcileAPIError {
			log.Warn().Str("code", pos.code).Msg("last dividend check failed, totals may lag")
		}

		h := buildHolding(pos, avgCost, q, totalDividends, includeDividends)
		h.IsUnpriced = unpriced

		summary.Holdings = append(summary.Holdings, h)
		summary.TotalAssets += h.CurrentValue
		summary.TodayProfitLoss += h.TodayProfitLoss()
		summary.TotalProfitLoss += h.ProfitLoss
		summary.TotalAdjustedCost += h.AdjustedCost
		prevCloseBase += h.PreviousClose * float64(h.Quantity)
	}

	for i := range summary.Holdings {
		summary.Holdings[i].PositionRatio = ratio(summary.Holdings[i].CurrentValue, summary.TotalAssets)
	}

	summary.TodayPLPercent = ratio(summary.TodayProfitLoss, prevCloseBase)
	if includeDividends && summary.TotalAdjustedCost <= 0 && len(summary.Holdings) > 0 {
		summary.IsZeroCost = true
		summary.TotalPLPercent = 0
	} else {
		summary.TotalPLPercent = ratio(summary.TotalProfitLoss, summary.TotalAdjustedCost)
	}

	return summary, nil
}

// foldPositions accumulates net quantity and net cost per instrument in
// transaction order. Instruments netting out to zero or less hold no
// position.
func (a *Aggregator) foldPositions(txns []models.Transaction) []position {
	byCode := make(map[string]*position)
	var order []string

	for _, t := range txns {
		pos, ok := byCode[t.Code]
		if !ok {
			pos = &position{code: t.Code}
			byCode[t.Code] = pos
			order = append(order, t.Code)
		}
		if t.Name != "" {
			pos.name = t.Name
		}
		switch t.Side {
		case models.SideBuy:
			pos.qty += t.Quantity
			pos.cost += t.TotalAmount()
		case models.SideSell:
			pos.qty -= t.Quantity
			pos.cost -= t.TotalAmount()
		}
	}

	sort.Strings(order)
	var held []position
	for _, code := range order {
		if pos := byCode[code]; pos.qty > 0 {
			held = append(held, *pos)
		}
	}
	return held
}

// resolveAll resolves every held instrument concurrently. A failed
// resolution leaves a nil slot.
func (a *Aggregator) resolveAll(ctx context.Context, held []position) []*models.Quote {
	quotes := make([]*models.Quote, len(held))
	var wg sync.WaitGroup
	for i := range held {
		wg.Add(1)
		go func(i int, code string) {
			defer wg.Done()
			q, err := a.resolver.Resolve(ctx, code, false)
			if err != nil {
				a.logger.Debug().Err(err).Str("code", code).Msg("resolution failed")
				return
			}
			quotes[i] = q
		}(i, held[i].code)
	}
	wg.Wait()
	return quotes
}

func (a *Aggregator) todayCodes(ctx context.Context) (map[string]bool, error) {
	today, err := a.txns.ListTodayTransactions(ctx)
	if err != nil {
		return nil, err
	}
	codes := make(map[string]bool, len(today))
	for _, t := range today {
		codes[t.Code] = true
	}
	return codes, nil
}

// buildHolding computes the derived per-instrument figures.
func buildHolding(pos position, avgCost float64, q *models.Quote, totalDividends float64, includeDividends bool) models.Holding {
	value := q.Price * float64(pos.qty)
	basePL := (q.Price - avgCost) * float64(pos.qty)

	pl := basePL
	adjusted := avgCost * float64(pos.qty)
	if includeDividends {
		pl += totalDividends
		adjusted -= totalDividends
	}

	h := models.Holding{
		Code:           pos.code,
		Name:           pos.name,
		Quantity:       pos.qty,
		AverageCost:    avgCost,
		CurrentPrice:   q.Price,
		PreviousClose:  q.PreviousClose,
		CurrentValue:   value,
		ProfitLoss:     pl,
		TotalDividends: totalDividends,
		AdjustedCost:   adjusted,
		IsStale:        q.IsStale,
		BestAsk:        q.BestAsk,
		TodayChangePct: q.ChangePercent,
	}

	if includeDividends && adjusted <= 0 {
		// Dividends have fully repaid the position; a percentage of a
		// non-positive base is undefined, not reported.
		h.IsZeroCost = true
		h.ProfitLossPercent = 0
	} else {
		h.ProfitLossPercent = ratio(pl, adjusted)
	}

	return h
}

// ratio returns part/whole as a percentage, 0 when the base is not
// positive.
func ratio(part, whole float64) float64 {
	if whole <= 0 {
		return 0
	}
	return part / whole * 100
}
