package models

import "time"

// Quote represents a resolved market quote for a single instrument.
type Quote struct {
	Code          string
	Price         float64
	PreviousClose float64
	Change        float64
	ChangePercent float64
	BestAsk       float64 // 0 when no ask was available
	ResolvedAt    time.Time
	IsStale       bool
}

// PriceCacheEntry is the persisted form of the last known-good quote
// for an instrument.
type PriceCacheEntry struct {
	Code          string
	Price         float64
	PreviousClose float64
	Change        float64
	ChangePercent float64
	BestAsk       float64
	UpdatedAt     time.Time
}

// Quote converts the cache entry back into a Quote with the given
// staleness label.
func (e *PriceCacheEntry) Quote(stale bool) *Quote {
	return &Quote{
		Code:          e.Code,
		Price:         e.Price,
		PreviousClose: e.PreviousClose,
		Change:        e.Change,
		ChangePercent: e.ChangePercent,
		BestAsk:       e.BestAsk,
		ResolvedAt:    e.UpdatedAt,
		IsStale:       stale,
	}
}

// CacheEntry converts a quote into its persisted cache form.
func (q *Quote) CacheEntry() *PriceCacheEntry {
	return &PriceCacheEntry{
		Code:          q.Code,
		Price:         q.Price,
		PreviousClose: q.PreviousClose,
		Change:        q.Change,
		ChangePercent: q.ChangePercent,
		BestAsk:       q.BestAsk,
		UpdatedAt:     q.ResolvedAt,
	}
}
