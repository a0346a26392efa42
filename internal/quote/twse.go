// Package quote resolves instrument prices from upstream market feeds
// with a cache-backed ordered fallback chain.
package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperrors "twstock-portfolio/internal/errors"
	"twstock-portfolio/internal/logging"
	"twstock-portfolio/internal/models"
)

const (
	misBaseURL = "https://mis.twse.com.tw/stock/api/getStockInfo.jsp"

	// The MIS feed blocks clients without a browser-ish user agent.
	misUserAgent = "Mozilla/5.0 (compatible; twstock-portfolio/1.0)"

	defaultTimeout = 30 * time.Second
)

var (
	// ErrNoData indicates the feed answered but carried no rows for the
	// requested instrument.
	ErrNoData = errors.New("quote: no data for instrument")

	// ErrNoPreviousClose indicates the snapshot had no usable previous
	// close. Without it no change can be computed, so the whole
	// resolution fails.
	ErrNoPreviousClose = errors.New("quote: previous close missing")
)

// TWSESource looks up intraday snapshots from the free TWSE MIS feed.
// The feed is unauthenticated and carries roughly 5s delayed data for
// both the TWSE and TPEx markets.
type TWSESource struct {
	client  *http.Client
	baseURL string
	logger  zerolog.Logger
}

// NewTWSESource creates a TWSE MIS quote source. A non-positive
// timeout falls back to the default.
func NewTWSESource(logger zerolog.Logger, timeout time.Duration) *TWSESource {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &TWSESource{
		client:  &http.Client{Timeout: timeout},
		baseURL: misBaseURL,
		logger:  logger.With().Str("source", "twse-mis").Logger(),
	}
}

// Name returns the source identifier.
func (s *TWSESource) Name() string { return "twse-mis" }

// Lookup fetches an intraday snapshot for the instrument. The code is
// first tried on the listed market and, when that yields no rows, on
// the OTC market.
func (s *TWSESource) Lookup(ctx context.Context, code string) (*models.Quote, error) {
	for _, market := range []models.Market{models.TWSE, models.TPEx} {
		q, err := s.lookupMarket(ctx, market, code)
		if errors.Is(err, ErrNoData) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return q, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoData, code)
}

func (s *TWSESource) lookupMarket(ctx context.Context, market models.Market, code string) (*models.Quote, error) {
	url := fmt.Sprintf("%s?ex_ch=%s_%s.tw&json=1&delay=0", s.baseURL, market, code)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building MIS request: %w", err)
	}
	req.Header.Set("User-Agent", misUserAgent)

	start := time.Now()
	resp, err := s.client.Do(req)
	logging.LogAPICall(s.logger, s.Name(), "getStockInfo", time.Since(start), err)
	if err != nil {
		return nil, apperrors.NewSourceError(s.Name(), s.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewSourceError(s.Name(), s.baseURL, fmt.Errorf("http %d", resp.StatusCode))
	}

	var raw misResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, apperrors.NewSourceError(s.Name(), s.baseURL, fmt.Errorf("malformed payload: %w", err))
	}
	if len(raw.MsgArray) == 0 {
		return nil, ErrNoData
	}

	q, err := parseSnapshot(&raw.MsgArray[0], code)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("code", code).
		Str("market", string(market)).
		Float64("price", q.Price).
		Msg("MIS snapshot resolved")
	return q, nil
}

// misResponse mirrors the MIS getStockInfo payload.
type misResponse struct {
	MsgArray []misSnapshot `json:"msgArray"`
	Rtcode   string        `json:"rtcode"`
}

// misSnapshot is a single instrument row. All numeric fields arrive as
// strings; absent values are "-".
type misSnapshot struct {
	Code       string `json:"c"`
	Name       string `json:"n"`
	Last       string `json:"z"`  // last traded price
	TrialPrice string `json:"pz"` // pre-open trial match price
	Asks       string `json:"a"`  // underscore-separated ask ladder
	Bids       string `json:"b"`  // underscore-separated bid ladder
	Open       string `json:"o"`
	High       string `json:"h"`
	Low        string `json:"l"`
	PrevClose  string `json:"y"`
	Time       string `json:"t"`
}

// priceRule is one tier of the snapshot price fallback chain.
type priceRule struct {
	name    string
	extract func(m *misSnapshot) (float64, bool)
}

// priceRules is the ordered fallback chain for the current price.
// First satisfied rule wins. Previous close is the terminal fallback
// and is handled separately because its absence is fatal.
var priceRules = []priceRule{
	{"last", func(m *misSnapshot) (float64, bool) {
		return parsePrice(m.Last)
	}},
	{"trial", func(m *misSnapshot) (float64, bool) {
		v, ok := parsePrice(m.TrialPrice)
		return v, ok && v > 0
	}},
	{"ask", func(m *misSnapshot) (float64, bool) {
		v, ok := firstTick(m.Asks)
		return v, ok && v > 0
	}},
	{"bid", func(m *misSnapshot) (float64, bool) {
		v, ok := firstTick(m.Bids)
		return v, ok && v > 0
	}},
	{"open", func(m *misSnapshot) (float64, bool) {
		v, ok := parsePrice(m.Open)
		return v, ok && v > 0
	}},
}

// parseSnapshot normalizes a MIS row into a Quote.
func parseSnapshot(m *misSnapshot, code string) (*models.Quote, error) {
	prevClose, ok := parsePrice(m.PrevClose)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPreviousClose, code)
	}

	price := prevClose
	for _, rule := range priceRules {
		if v, ok := rule.extract(m); ok {
			price = v
			break
		}
	}

	bestAsk, _ := firstTick(m.Asks)

	change := price - prevClose
	return &models.Quote{
		Code:          code,
		Price:         price,
		PreviousClose: prevClose,
		Change:        change,
		ChangePercent: changePercent(change, prevClose),
		BestAsk:       bestAsk,
		ResolvedAt:    time.Now(),
	}, nil
}

// parsePrice parses a MIS price string. "-" marks an absent value.
func parsePrice(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// firstTick parses the best level of an underscore-separated ladder.
func firstTick(s string) (float64, bool) {
	parts := strings.Split(s, "_")
	if len(parts) == 0 {
		return 0, false
	}
	return parsePrice(parts[0])
}

// changePercent computes the percent change, defined as 0 when the
// previous close is exactly 0.
func changePercent(change, prevClose float64) float64 {
	if prevClose == 0 {
		return 0
	}
	return change / prevClose * 100
}
