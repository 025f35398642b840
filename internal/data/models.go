package data

import (
	"time"

	"github.com/dgnsrekt/heatseeker/internal/exposure"
)

const dateLayout = "2006-01-02"

// ChainRecord is one JSONL line of a chain file.
type ChainRecord struct {
	Strike       float64 `json:"strike"`
	OpenInterest *int64  `json:"open_interest,omitempty"`
	Expiration   string  `json:"expiration,omitempty"`
}

func RecordFromRow(row exposure.ChainRow) ChainRecord {
	rec := ChainRecord{Strike: row.Strike, OpenInterest: row.OpenInterest}
	if row.Expiration != nil {
		rec.Expiration = row.Expiration.Format(dateLayout)
	}
	return rec
}

// Row converts the record back. An unparsable expiration becomes nil.
func (r ChainRecord) Row() exposure.ChainRow {
	row := exposure.ChainRow{Strike: r.Strike, OpenInterest: r.OpenInterest}
	if r.Expiration != "" {
		if exp, err := time.Parse(dateLayout, r.Expiration); err == nil {
			row.Expiration = &exp
		}
	}
	return row
}
