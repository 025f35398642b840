package config

import "regexp"

// DefaultSpot is the spot used when no price is supplied or fetched.
const DefaultSpot = 683.39

var tickerPattern = regexp.MustCompile(`^[A-Z][A-Z.]{0,5}$`)

// DefaultTickers returns the tickers offered by the dashboard
func DefaultTickers() []string {
	return []string{"SPY", "QQQ", "IWM", "AAPL", "TSLA", "NVDA", "AMD", "META"}
}

// IsValidTicker reports whether s looks like an equity ticker symbol.
func IsValidTicker(s string) bool {
	return tickerPattern.MatchString(s)
}
