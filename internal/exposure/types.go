package exposure

import "time"

const (
	// DefaultTenor is the fixed time-to-expiry in years used when no valuation time is set.
	DefaultTenor = 0.08
	// DefaultTenorFloor floors time-aware tenors so same-day and expired rows stay finite.
	DefaultTenorFloor = 0.02
	// DefaultFallbackOpenInterest replaces missing open interest.
	DefaultFallbackOpenInterest int64 = 1000
	// DefaultGatekeeperPercentile is the exposure percentile below which a strike can be a gatekeeper.
	DefaultGatekeeperPercentile = 10.0
)

// ChainRow is one options-chain row. Nil fields were missing or unparsable upstream.
type ChainRow struct {
	Strike       float64    `json:"strike"`
	OpenInterest *int64     `json:"open_interest,omitempty"`
	Expiration   *time.Time `json:"expiration,omitempty"`
}

// AggregatedRow holds the summed exposure for one distinct strike.
type AggregatedRow struct {
	Strike      float64 `json:"strike"`
	NetExposure float64 `json:"net_exposure"`
}

// Field names a ChainRow field that can be substituted.
type Field string

const (
	FieldOpenInterest Field = "open_interest"
	FieldExpiration   Field = "expiration"
)

// Substitution records a fallback value applied to a row.
type Substitution struct {
	Row   int     `json:"row"`
	Field Field   `json:"field"`
	Value float64 `json:"value"`
}

// Result is the output of Aggregate.
type Result struct {
	Rows              []AggregatedRow `json:"rows"`
	King              float64         `json:"king"`
	Vanna             float64         `json:"vanna"`
	Gatekeeper        *float64        `json:"gatekeeper,omitempty"`
	TotalOpenInterest int64           `json:"total_open_interest"`
	Substitutions     []Substitution  `json:"substitutions,omitempty"`
}

// Options tunes Aggregate. The zero value is not usable; start from DefaultOptions.
type Options struct {
	FallbackOpenInterest int64
	Tenor                float64
	TenorFloor           float64
	// Valuation switches to time-aware tenors when non-zero.
	Valuation            time.Time
	Gatekeeper           bool
	GatekeeperPercentile float64
}

// DefaultOptions returns the fixed-tenor settings: T=0.08, OI fallback 1000, gatekeeper at p10.
func DefaultOptions() Options {
	return Options{
		FallbackOpenInterest: DefaultFallbackOpenInterest,
		Tenor:                DefaultTenor,
		TenorFloor:           DefaultTenorFloor,
		Gatekeeper:           true,
		GatekeeperPercentile: DefaultGatekeeperPercentile,
	}
}

// TimeAware reports whether tenors are derived from row expirations.
func (o Options) TimeAware() bool {
	return !o.Valuation.IsZero()
}

// SubstitutionCount returns the number of substitutions per field.
func (r *Result) SubstitutionCount() map[Field]int {
	counts := make(map[Field]int)
	for _, s := range r.Substitutions {
		counts[s.Field]++
	}
	return counts
}
