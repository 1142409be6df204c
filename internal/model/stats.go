package model

// CountryStats is one country's line from the statistics summary endpoint.
// The JSON tags follow the upstream field names so the gateway can decode
// straight into it.
type CountryStats struct {
	Country        string `json:"Country"`
	NewConfirmed   int64  `json:"NewConfirmed"`
	TotalConfirmed int64  `json:"TotalConfirmed"`
	NewDeaths      int64  `json:"NewDeaths"`
	TotalDeaths    int64  `json:"TotalDeaths"`
	NewRecovered   int64  `json:"NewRecovered"`
	TotalRecovered int64  `json:"TotalRecovered"`
}

// SummaryPayload is the body of the "connect" event: parallel slices, index i
// of every slice describing Countries[i].
type SummaryPayload struct {
	Countries      []string `json:"countries"`
	NewConfirmed   []int64  `json:"newconfirmed"`
	TotalConfirmed []int64  `json:"totalconfirmed"`
	NewDeaths      []int64  `json:"newdeaths"`
	TotalDeaths    []int64  `json:"totaldeaths"`
	NewRecovered   []int64  `json:"newrecovered"`
	TotalRecovered []int64  `json:"totalrecovered"`
}

// NewSummaryPayload flattens stats into a SummaryPayload, keeping order.
func NewSummaryPayload(stats []CountryStats) SummaryPayload {
	n := len(stats)
	p := SummaryPayload{
		Countries:      make([]string, 0, n),
		NewConfirmed:   make([]int64, 0, n),
		TotalConfirmed: make([]int64, 0, n),
		NewDeaths:      make([]int64, 0, n),
		TotalDeaths:    make([]int64, 0, n),
		NewRecovered:   make([]int64, 0, n),
		TotalRecovered: make([]int64, 0, n),
	}
	for _, s := range stats {
		p.Countries = append(p.Countries, s.Country)
		p.NewConfirmed = append(p.NewConfirmed, s.NewConfirmed)
		p.TotalConfirmed = append(p.TotalConfirmed, s.TotalConfirmed)
		p.NewDeaths = append(p.NewDeaths, s.NewDeaths)
		p.TotalDeaths = append(p.TotalDeaths, s.TotalDeaths)
		p.NewRecovered = append(p.NewRecovered, s.NewRecovered)
		p.TotalRecovered = append(p.TotalRecovered, s.TotalRecovered)
	}
	return p
}

// ProvinceBreakdown is the body of the "States" event. The capitalised JSON
// names are what the client expects.
type ProvinceBreakdown struct {
	State     []string `json:"State"`
	Confirmed []int64  `json:"Confirmed"`
	Deaths    []int64  `json:"Deaths"`
	Recovered []int64  `json:"Recovered"`
	Active    []int64  `json:"Active"`
}

// CountryTotal is the most recent cumulative record for one country, the body
// of the "search_country" event.
type CountryTotal struct {
	Country   string `json:"country"`
	Confirmed int64  `json:"confirmed"`
	Deaths    int64  `json:"deaths"`
	Recovered int64  `json:"recovered"`
	Active    int64  `json:"active"`
}

// NewsDigest is the body of the "news" event.
type NewsDigest struct {
	Headline []string `json:"headline"`
	Snippet  []string `json:"snippet"`
	URL      []string `json:"url"`
}
