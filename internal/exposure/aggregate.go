// Package exposure turns an options chain and a spot price into a per-strike
// net gamma exposure curve and its headline strikes.
package exposure

import (
	"fmt"
	"math"
	"sort"
	"time"
)

const yearDuration = 365 * 24 * time.Hour

// Aggregate computes per-strike net exposure and the king, vanna and
// gatekeeper strikes. It has no side effects.
func Aggregate(rows []ChainRow, spot float64, opts Options) (*Result, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no chain rows", ErrInvalidInput)
	}
	if !isPositive(spot) {
		return nil, fmt.Errorf("%w: spot must be positive, got %v", ErrInvalidInput, spot)
	}
	if !isPositive(opts.Tenor) {
		return nil, fmt.Errorf("%w: tenor must be positive, got %v", ErrInvalidInput, opts.Tenor)
	}
	if opts.TimeAware() && !isPositive(opts.TenorFloor) {
		return nil, fmt.Errorf("%w: tenor floor must be positive, got %v", ErrInvalidInput, opts.TenorFloor)
	}

	result := &Result{}
	sums := make(map[float64]float64, len(rows))
	spotSq := spot * spot

	for i, row := range rows {
		if !isPositive(row.Strike) {
			return nil, fmt.Errorf("%w: row %d: strike must be positive, got %v", ErrInvalidInput, i, row.Strike)
		}

		oi := opts.FallbackOpenInterest
		if row.OpenInterest != nil {
			oi = *row.OpenInterest
		} else {
			result.Substitutions = append(result.Substitutions, Substitution{Row: i, Field: FieldOpenInterest, Value: float64(oi)})
		}
		if oi < 0 {
			return nil, fmt.Errorf("%w: row %d: open interest must be non-negative, got %d", ErrInvalidInput, i, oi)
		}
		result.TotalOpenInterest += oi

		tenor := opts.Tenor
		if opts.TimeAware() {
			if row.Expiration != nil {
				tenor = math.Max(row.Expiration.Sub(opts.Valuation).Hours()/yearDuration.Hours(), opts.TenorFloor)
			} else {
				result.Substitutions = append(result.Substitutions, Substitution{Row: i, Field: FieldExpiration, Value: tenor})
			}
		}

		exp := -float64(oi) * Gamma(row.Strike, tenor) * spotSq * 0.01
		if !isFinite(exp) {
			return nil, fmt.Errorf("%w: row %d: exposure at strike %v is not finite", ErrInvalidInput, i, row.Strike)
		}
		sums[row.Strike] += exp
	}

	result.Rows = make([]AggregatedRow, 0, len(sums))
	for strike, net := range sums {
		if !isFinite(net) {
			return nil, fmt.Errorf("%w: net exposure at strike %v is not finite", ErrInvalidInput, strike)
		}
		result.Rows = append(result.Rows, AggregatedRow{Strike: strike, NetExposure: net})
	}
	sort.Slice(result.Rows, func(i, j int) bool { return result.Rows[i].Strike < result.Rows[j].Strike })

	result.King, result.Vanna = extremes(result.Rows)

	if opts.Gatekeeper {
		result.Gatekeeper = gatekeeper(result.Rows, opts.GatekeeperPercentile)
	}

	return result, nil
}

// Gamma is the synthetic per-contract gamma factor for a strike and tenor in years.
func Gamma(strike, tenor float64) float64 {
	return 0.4 / (strike * 0.2 * math.Sqrt(tenor))
}

// extremes returns the strikes of maximum and minimum net exposure.
// Rows must be strike-ascending; on ties the lowest strike wins.
func extremes(rows []AggregatedRow) (king, vanna float64) {
	maxIdx, minIdx := 0, 0
	for i := 1; i < len(rows); i++ {
		if rows[i].NetExposure > rows[maxIdx].NetExposure {
			maxIdx = i
		}
		if rows[i].NetExposure < rows[minIdx].NetExposure {
			minIdx = i
		}
	}
	return rows[maxIdx].Strike, rows[minIdx].Strike
}

// gatekeeper returns the lowest strike whose net exposure is strictly below
// the p-th percentile, or nil when none is.
func gatekeeper(rows []AggregatedRow, p float64) *float64 {
	values := make([]float64, len(rows))
	for i, r := range rows {
		values[i] = r.NetExposure
	}
	threshold := Percentile(values, p)

	// rows are strike-ascending, so the first hit is the minimum strike
	for _, r := range rows {
		if r.NetExposure < threshold {
			strike := r.Strike
			return &strike
		}
	}
	return nil
}

// Percentile returns the p-th percentile (0-100) of values using linear
// interpolation between order statistics. values is not modified.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	p = math.Min(math.Max(p, 0), 100)
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

func isPositive(v float64) bool {
	return v > 0 && isFinite(v)
}

func isFinite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}
