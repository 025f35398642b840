// Package demo generates synthetic options chains. The output is a labelled
// fixture for offline use and tests; it is not market data.
package demo

import (
	"math"
	"math/rand"
	"time"

	"github.com/scmhub/calendar"

	"github.com/dgnsrekt/heatseeker/internal/exposure"
)

const (
	DefaultWindow = 70.0
	DefaultStep   = 1.0
	DefaultSeed   = 42

	peakOpenInterest  = 35000.0
	floorOpenInterest = 4000.0
	decayDistance     = 30.0
	jitterMin         = 0.6
	jitterMax         = 1.4
)

// Config describes the synthetic chain to build around Spot.
type Config struct {
	Spot   float64
	Window float64
	Step   float64
	Seed   int64
	// Expirations is the number of weekly expiries per strike. Zero produces
	// rows without expirations.
	Expirations int
	Valuation   time.Time
}

func DefaultConfig(spot float64) Config {
	return Config{
		Spot:   spot,
		Window: DefaultWindow,
		Step:   DefaultStep,
		Seed:   DefaultSeed,
	}
}

// Generate builds a chain of strikes from Spot-Window to Spot+Window with open
// interest peaking at the money. The same Config always yields the same rows.
func Generate(cfg Config) []exposure.ChainRow {
	if cfg.Step <= 0 {
		cfg.Step = DefaultStep
	}
	if cfg.Window < 0 {
		cfg.Window = DefaultWindow
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	expiries := WeeklyExpirations(cfg.Valuation, cfg.Expirations)

	count := int(math.Floor(2*cfg.Window/cfg.Step)) + 1
	rows := make([]exposure.ChainRow, 0, count*max(1, len(expiries)))

	for i := 0; i < count; i++ {
		strike := round2(cfg.Spot - cfg.Window + float64(i)*cfg.Step)
		if strike <= 0 {
			continue
		}

		dist := math.Abs(strike - cfg.Spot)
		base := math.Max(floorOpenInterest, peakOpenInterest*math.Exp(-dist/decayDistance))
		jitter := jitterMin + rng.Float64()*(jitterMax-jitterMin)
		total := base * jitter

		if len(expiries) == 0 {
			oi := int64(total)
			rows = append(rows, exposure.ChainRow{Strike: strike, OpenInterest: &oi})
			continue
		}

		// nearer expiries carry more open interest
		weights := harmonicWeights(len(expiries))
		for k, exp := range expiries {
			oi := int64(total * weights[k])
			exp := exp
			rows = append(rows, exposure.ChainRow{Strike: strike, OpenInterest: &oi, Expiration: &exp})
		}
	}

	return rows
}

// WeeklyExpirations returns the next n Friday expirations after from on the
// NYSE calendar. A Friday holiday moves to the prior business day.
func WeeklyExpirations(from time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	if from.IsZero() {
		from = time.Now()
	}

	nyse := calendar.XNYS()
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)

	var out []time.Time
	for d := day.AddDate(0, 0, 1); len(out) < n; d = d.AddDate(0, 0, 1) {
		if d.Weekday() != time.Friday {
			continue
		}
		exp := d
		for i := 0; i < 4 && !isBusinessDay(nyse, exp); i++ {
			exp = exp.AddDate(0, 0, -1)
		}
		if !exp.After(day) {
			continue
		}
		out = append(out, exp)
	}
	return out
}

func isBusinessDay(cal *calendar.Calendar, day time.Time) bool {
	// noon avoids any timezone edge when the calendar checks the date
	return cal.IsBusinessDay(time.Date(day.Year(), day.Month(), day.Day(), 12, 0, 0, 0, time.UTC))
}

func harmonicWeights(n int) []float64 {
	weights := make([]float64, n)
	var sum float64
	for i := range weights {
		weights[i] = 1 / float64(i+1)
		sum += weights[i]
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
