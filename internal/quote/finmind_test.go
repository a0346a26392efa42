package quote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func finmindServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func newTestFinMind(token, baseURL string) *FinMindSource {
	s := NewFinMindSource(token, zerolog.Nop(), 0)
	s.baseURL = baseURL
	return s
}

func TestNewFinMindSource_Timeout(t *testing.T) {
	s := NewFinMindSource("tok", zerolog.Nop(), 5*time.Second)
	if s.client.Timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", s.client.Timeout)
	}
	s = NewFinMindSource("tok", zerolog.Nop(), 0)
	if s.client.Timeout != defaultTimeout {
		t.Errorf("timeout = %v, want default %v", s.client.Timeout, defaultTimeout)
	}
}

func TestFinMindLookup_RequiresToken(t *testing.T) {
	s := newTestFinMind("", "http://unused.invalid")
	_, err := s.Lookup(context.Background(), "2330")
	if !errors.Is(err, ErrTokenRequired) {
		t.Fatalf("err = %v, want ErrTokenRequired", err)
	}
}

func TestFinMindLookup_LastTwoClosesBecomeQuote(t *testing.T) {
	srv := finmindServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("dataset"); got != datasetDailyPrice {
			t.Errorf("dataset = %q, want %q", got, datasetDailyPrice)
		}
		if got := r.URL.Query().Get("token"); got != "tok" {
			t.Errorf("token = %q, want tok", got)
		}
		fmt.Fprint(w, `{"msg":"success","status":200,"data":[
			{"date":"2024-06-17","stock_id":"2330","close":900},
			{"date":"2024-06-18","stock_id":"2330","close":910},
			{"date":"2024-06-19","stock_id":"2330","close":921}
		]}`)
	})

	s := newTestFinMind("tok", srv.URL)

	q, err := s.Lookup(context.Background(), "2330")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if q.Price != 921 || q.PreviousClose != 910 {
		t.Errorf("quote = (%v, %v), want (921, 910)", q.Price, q.PreviousClose)
	}
	if q.Change != 11 {
		t.Errorf("change = %v, want 11", q.Change)
	}
}

func TestFinMindLookup_SinglePointSeries(t *testing.T) {
	srv := finmindServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"msg":"success","status":200,"data":[
			{"date":"2024-06-19","stock_id":"2330","close":921}
		]}`)
	})

	s := newTestFinMind("tok", srv.URL)

	q, err := s.Lookup(context.Background(), "2330")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if q.Price != 921 || q.PreviousClose != 921 {
		t.Errorf("quote = (%v, %v), want previous close defaulting to current", q.Price, q.PreviousClose)
	}
	if q.Change != 0 || q.ChangePercent != 0 {
		t.Errorf("change = (%v, %v%%), want zero", q.Change, q.ChangePercent)
	}
}

func TestFinMindLookup_EmptySeries(t *testing.T) {
	srv := finmindServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"msg":"success","status":200,"data":[]}`)
	})

	s := newTestFinMind("tok", srv.URL)

	_, err := s.Lookup(context.Background(), "2330")
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("err = %v, want ErrNoData", err)
	}
}

func TestFinMindDividendEvents(t *testing.T) {
	srv := finmindServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("dataset"); got != datasetDividend {
			t.Errorf("dataset = %q, want %q", got, datasetDividend)
		}
		fmt.Fprint(w, `{"msg":"success","status":200,"data":[
			{"date":"2024-03-12","stock_id":"2330","year":"2023",
			 "CashEarningsDistribution":3.0,"CashStatutorySurplus":0.5,
			 "CashExDividendTradingDate":"2024-06-13",
			 "StockEarningsDistribution":0,"StockStatutorySurplus":0,
			 "StockExDividendTradingDate":""}
		]}`)
	})

	s := newTestFinMind("", srv.URL)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local)
	rows, err := s.DividendEvents(context.Background(), "2330", start, time.Now())
	if err != nil {
		t.Fatalf("DividendEvents failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}

	row := rows[0]
	if row.CashPerUnit() != 3.5 {
		t.Errorf("cash per unit = %v, want 3.5", row.CashPerUnit())
	}
	exDate, ok := row.CashExDate()
	if !ok {
		t.Fatal("cash ex-date missing")
	}
	want := time.Date(2024, 6, 13, 0, 0, 0, 0, time.Local)
	if !exDate.Equal(want) {
		t.Errorf("ex-date = %v, want %v", exDate, want)
	}
	if _, ok := row.StockExDate(); ok {
		t.Error("empty stock ex-date parsed as present")
	}
}

func TestFinMindFetch_InstrumentNotFound(t *testing.T) {
	srv := finmindServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"msg":"data not found","status":400,"data":[]}`)
	})

	s := newTestFinMind("", srv.URL)

	_, err := s.DividendEvents(context.Background(), "9999", time.Now().AddDate(-1, 0, 0), time.Now())
	if !errors.Is(err, ErrInstrumentNotFound) {
		t.Fatalf("err = %v, want ErrInstrumentNotFound", err)
	}
}

func TestFinMindFetch_UpstreamFailure(t *testing.T) {
	srv := finmindServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	s := newTestFinMind("", srv.URL)

	_, err := s.DividendEvents(context.Background(), "2330", time.Now().AddDate(-1, 0, 0), time.Now())
	if err == nil {
		t.Fatal("DividendEvents succeeded against a failing upstream")
	}
	if errors.Is(err, ErrInstrumentNotFound) {
		t.Errorf("transport failure mapped to not-found: %v", err)
	}
}
