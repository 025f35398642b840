package api

// lastTradeResponse is the body of GET /v2/last/trade/{ticker}.
type lastTradeResponse struct {
	Status  string `json:"status"`
	Results *struct {
		Price *float64 `json:"p"`
	} `json:"results"`
}

// chainSnapshotResponse is one page of GET /v3/snapshot/options/{ticker}.
type chainSnapshotResponse struct {
	Status  string             `json:"status"`
	Results []contractSnapshot `json:"results"`
	NextURL string             `json:"next_url"`
}

type contractSnapshot struct {
	Details *struct {
		StrikePrice    *float64 `json:"strike_price"`
		ExpirationDate string   `json:"expiration_date"`
		ContractType   string   `json:"contract_type"`
	} `json:"details"`
	OpenInterest *float64 `json:"open_interest"`
}
