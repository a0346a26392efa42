package utils

import (
	"time"
)

// MarketStatus represents the current market status.
type MarketStatus string

const (
	MarketOpen    MarketStatus = "OPEN"
	MarketPreOpen MarketStatus = "PRE_OPEN"
	MarketClosed  MarketStatus = "CLOSED"
)

// TaipeiLocation is the timezone for Taiwanese markets.
var TaipeiLocation *time.Location

func init() {
	var err error
	TaipeiLocation, err = time.LoadLocation("Asia/Taipei")
	if err != nil {
		// Fallback to UTC+8
		TaipeiLocation = time.FixedZone("CST", 8*60*60)
	}
}

// GetMarketStatus returns the current market status. Regular trading
// on TWSE/TPEx runs 09:00-13:30 with a pre-open auction from 08:30.
func GetMarketStatus() MarketStatus {
	now := time.Now().In(TaipeiLocation)

	// Check if weekend
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return MarketClosed
	}

	timeMinutes := now.Hour()*60 + now.Minute()

	// Pre-open auction: 8:30 - 9:00
	if timeMinutes >= 510 && timeMinutes < 540 {
		return MarketPreOpen
	}

	// Regular session: 9:00 - 13:30
	if timeMinutes >= 540 && timeMinutes < 810 {
		return MarketOpen
	}

	return MarketClosed
}

// IsMarketOpen returns true if the market is currently open.
func IsMarketOpen() bool {
	return GetMarketStatus() == MarketOpen
}

// IsPreMarket returns true if it's the pre-open auction session.
func IsPreMarket() bool {
	return GetMarketStatus() == MarketPreOpen
}

// GetNextMarketOpen returns the next market opening time.
func GetNextMarketOpen() time.Time {
	now := time.Now().In(TaipeiLocation)

	next := time.Date(now.Year(), now.Month(), now.Day(), 9, 0, 0, 0, TaipeiLocation)
	if now.After(next) {
		next = next.AddDate(0, 0, 1)
	}

	// Skip weekends
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}

	return next
}

// GetMarketClose returns today's market close time.
func GetMarketClose() time.Time {
	now := time.Now().In(TaipeiLocation)
	return time.Date(now.Year(), now.Month(), now.Day(), 13, 30, 0, 0, TaipeiLocation)
}
