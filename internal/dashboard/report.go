package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/dgnsrekt/heatseeker/internal/exposure"
	"github.com/dgnsrekt/heatseeker/internal/source"
)

// Headline holds the strikes and summary metrics shown above the chart.
type Headline struct {
	King              float64  `json:"king"`
	Vanna             float64  `json:"vanna"`
	Gatekeeper        *float64 `json:"gatekeeper,omitempty"`
	SpotMinusKing     float64  `json:"spot_minus_king"`
	TotalOpenInterest int64    `json:"total_open_interest"`
}

// Bar is one strike of the exposure chart.
type Bar struct {
	Strike      float64 `json:"strike"`
	NetExposure float64 `json:"net_exposure"`
	// Millions is NetExposure in $ millions, the chart's y axis.
	Millions float64 `json:"net_exposure_millions"`
	Positive bool    `json:"positive"`
}

type Report struct {
	Ticker        string         `json:"ticker"`
	Spot          float64        `json:"spot"`
	SpotOrigin    source.Origin  `json:"spot_origin"`
	ChainOrigin   source.Origin  `json:"chain_origin"`
	TimeAware     bool           `json:"time_aware"`
	Headline      Headline       `json:"headline"`
	Bars          []Bar          `json:"bars"`
	Issues        []source.Issue `json:"issues,omitempty"`
	Substitutions map[string]int `json:"substitutions,omitempty"`
	GeneratedAt   time.Time      `json:"generated_at"`
}

func newReport(snap *source.Snapshot, res *exposure.Result, timeAware bool, now time.Time) *Report {
	bars := make([]Bar, len(res.Rows))
	for i, r := range res.Rows {
		bars[i] = Bar{
			Strike:      r.Strike,
			NetExposure: r.NetExposure,
			Millions:    r.NetExposure / 1e6,
			Positive:    r.NetExposure > 0,
		}
	}

	var subs map[string]int
	if len(res.Substitutions) > 0 {
		subs = make(map[string]int)
		for field, n := range res.SubstitutionCount() {
			subs[string(field)] = n
		}
	}

	return &Report{
		Ticker:      snap.Ticker,
		Spot:        snap.Spot,
		SpotOrigin:  snap.SpotOrigin,
		ChainOrigin: snap.ChainOrigin,
		TimeAware:   timeAware,
		Headline: Headline{
			King:              res.King,
			Vanna:             res.Vanna,
			Gatekeeper:        res.Gatekeeper,
			SpotMinusKing:     snap.Spot - res.King,
			TotalOpenInterest: res.TotalOpenInterest,
		},
		Bars:          bars,
		Issues:        snap.Issues,
		Substitutions: subs,
		GeneratedAt:   now.UTC(),
	}
}

// Summary renders the headline as one line of text.
func (r *Report) Summary() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s spot $%.2f: king $%.1f (%+.2f), vanna $%.1f",
		r.Ticker, r.Spot, r.Headline.King, r.Headline.SpotMinusKing, r.Headline.Vanna))
	if r.Headline.Gatekeeper != nil {
		sb.WriteString(fmt.Sprintf(", gatekeeper $%.1f", *r.Headline.Gatekeeper))
	} else {
		sb.WriteString(", no gatekeeper")
	}
	if r.ChainOrigin == source.OriginDemo {
		sb.WriteString(" [demo data]")
	}
	return sb.String()
}
