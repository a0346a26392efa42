package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperrors "twstock-portfolio/internal/errors"
	"twstock-portfolio/internal/logging"
	"twstock-portfolio/internal/models"
	"twstock-portfolio/pkg/utils"
)

const (
	finmindBaseURL = "https://api.finmindtrade.com/api/v4/data"

	datasetDailyPrice = "TaiwanStockPrice"
	datasetDividend   = "TaiwanStockDividend"

	// Trailing window for the historical-close price path.
	priceLookbackDays = 30
)

var (
	// ErrTokenRequired indicates the source is disabled because no
	// access token is configured.
	ErrTokenRequired = errors.New("quote: finmind token not configured")

	// ErrInstrumentNotFound indicates the feed answered but does not
	// know the instrument.
	ErrInstrumentNotFound = errors.New("quote: instrument not found")
)

// FinMindSource looks up historical daily closes and dividend events
// from the token-gated FinMind data API.
type FinMindSource struct {
	client  *http.Client
	baseURL string
	token   string
	logger  zerolog.Logger
}

// NewFinMindSource creates a FinMind source. An empty token disables
// the price path; dividend lookups are still attempted without one.
// A non-positive timeout falls back to the default.
func NewFinMindSource(token string, logger zerolog.Logger, timeout time.Duration) *FinMindSource {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &FinMindSource{
		client:  &http.Client{Timeout: timeout},
		baseURL: finmindBaseURL,
		token:   token,
		logger:  logger.With().Str("source", "finmind").Logger(),
	}
}

// Name returns the source identifier.
func (s *FinMindSource) Name() string { return "finmind" }

// Lookup resolves a quote from the trailing daily-close series. The
// last two data points become current and previous close. The feed only
// carries historical closes, so the quote is inherently less precise
// than an intraday snapshot.
func (s *FinMindSource) Lookup(ctx context.Context, code string) (*models.Quote, error) {
	if s.token == "" {
		return nil, ErrTokenRequired
	}

	end := time.Now()
	start := end.AddDate(0, 0, -priceLookbackDays)

	cfg := utils.DefaultRetryConfig()
	cfg.MaxAttempts = 2
	closes, err := utils.RetryWithResult(ctx, cfg, func() ([]DailyClose, error) {
		return s.PriceSeries(ctx, code, start, end)
	})
	if err != nil {
		return nil, err
	}
	if len(closes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoData, code)
	}

	current := closes[len(closes)-1].Close
	prev := current
	if len(closes) > 1 {
		prev = closes[len(closes)-2].Close
	}

	change := current - prev
	q := &models.Quote{
		Code:          code,
		Price:         current,
		PreviousClose: prev,
		Change:        change,
		ChangePercent: changePercent(change, prev),
		ResolvedAt:    time.Now(),
	}

	s.logger.Debug().
		Str("code", code).
		Float64("close", current).
		Int("points", len(closes)).
		Msg("daily close series resolved")
	return q, nil
}

// DailyClose is one row of the TaiwanStockPrice dataset.
type DailyClose struct {
	Date  string  `json:"date"`
	Code  string  `json:"stock_id"`
	Close float64 `json:"close"`
}

// PriceSeries fetches ordered daily closes for the date range.
func (s *FinMindSource) PriceSeries(ctx context.Context, code string, start, end time.Time) ([]DailyClose, error) {
	var rows []DailyClose
	if err := s.fetch(ctx, datasetDailyPrice, code, start, end, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// DividendRow is one row of the TaiwanStockDividend dataset. Cash and
// stock distributions carry separate ex-dividend trading dates.
type DividendRow struct {
	Date                       string  `json:"date"`
	Code                       string  `json:"stock_id"`
	Year                       string  `json:"year"`
	CashEarningsDistribution   float64 `json:"CashEarningsDistribution"`
	CashStatutorySurplus       float64 `json:"CashStatutorySurplus"`
	CashExDividendTradingDate  string  `json:"CashExDividendTradingDate"`
	StockEarningsDistribution  float64 `json:"StockEarningsDistribution"`
	StockStatutorySurplus      float64 `json:"StockStatutorySurplus"`
	StockExDividendTradingDate string  `json:"StockExDividendTradingDate"`
}

// CashPerUnit returns the total cash dividend per unit.
func (r *DividendRow) CashPerUnit() float64 {
	return r.CashEarningsDistribution + r.CashStatutorySurplus
}

// StockPerUnit returns the total stock dividend per unit.
func (r *DividendRow) StockPerUnit() float64 {
	return r.StockEarningsDistribution + r.StockStatutorySurplus
}

// CashExDate returns the date-truncated cash ex-dividend date.
func (r *DividendRow) CashExDate() (time.Time, bool) {
	return parseEventDate(r.CashExDividendTradingDate)
}

// StockExDate returns the date-truncated stock ex-dividend date.
func (r *DividendRow) StockExDate() (time.Time, bool) {
	return parseEventDate(r.StockExDividendTradingDate)
}

func parseEventDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// DividendEvents fetches dividend rows for the date range. Unlike the
// price path this may be called with an empty token; the upstream
// answers unauthenticated requests at a reduced rate limit.
func (s *FinMindSource) DividendEvents(ctx context.Context, code string, start, end time.Time) ([]DividendRow, error) {
	var rows []DividendRow
	if err := s.fetch(ctx, datasetDividend, code, start, end, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// finmindResponse is the envelope shared by all FinMind datasets.
type finmindResponse struct {
	Msg    string          `json:"msg"`
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func (s *FinMindSource) fetch(ctx context.Context, dataset, code string, start, end time.Time, out interface{}) error {
	params := url.Values{}
	params.Set("dataset", dataset)
	params.Set("data_id", code)
	params.Set("start_date", start.Format("2006-01-02"))
	params.Set("end_date", end.Format("2006-01-02"))
	if s.token != "" {
		params.Set("token", s.token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("building finmind request: %w", err)
	}

	callStart := time.Now()
	resp, err := s.client.Do(req)
	logging.LogAPICall(s.logger, s.Name(), dataset, time.Since(callStart), err)
	if err != nil {
		return apperrors.NewSourceError(s.Name(), dataset, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperrors.NewSourceError(s.Name(), dataset, fmt.Errorf("http %d", resp.StatusCode))
	}

	var raw finmindResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return apperrors.NewSourceError(s.Name(), dataset, fmt.Errorf("malformed payload: %w", err))
	}
	if raw.Status != http.StatusOK {
		if strings.Contains(strings.ToLower(raw.Msg), "not found") {
			return fmt.Errorf("%w: %s", ErrInstrumentNotFound, code)
		}
		return fmt.Errorf("finmind %s: status %d: %s", dataset, raw.Status, raw.Msg)
	}

	if len(raw.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw.Data, out); err != nil {
		return fmt.Errorf("decoding finmind %s rows: %w", dataset, err)
	}
	return nil
}
