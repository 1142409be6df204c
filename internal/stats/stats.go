package stats

import (
	"context"
	"net/url"

	"github.com/sakif/covid-dashboard/internal/apperror"
	"github.com/sakif/covid-dashboard/internal/model"
)

type summaryResponse struct {
	Countries []model.CountryStats `json:"Countries"`
}

// liveRecord is one line of the live-by-country endpoint. There is one line
// per province per day, so provinces repeat.
type liveRecord struct {
	Province  string `json:"Province"`
	Confirmed int64  `json:"Confirmed"`
	Deaths    int64  `json:"Deaths"`
	Recovered int64  `json:"Recovered"`
	Active    int64  `json:"Active"`
}

type totalRecord struct {
	Country   string `json:"Country"`
	Confirmed int64  `json:"Confirmed"`
	Deaths    int64  `json:"Deaths"`
	Recovered int64  `json:"Recovered"`
	Active    int64  `json:"Active"`
}

// Summary returns the per-country lines of the summary endpoint, in the order
// the API sent them. Duplicates are not removed here.
func (c *Client) Summary(ctx context.Context) ([]model.CountryStats, error) {
	var resp summaryResponse
	if err := c.getStats(ctx, "/summary", &resp); err != nil {
		return nil, err
	}
	if resp.Countries == nil {
		return []model.CountryStats{}, nil
	}
	return resp.Countries, nil
}

// ProvinceStatus returns one entry per distinct province of country. When a
// province appears more than once, its first record wins.
func (c *Client) ProvinceStatus(ctx context.Context, country string) (model.ProvinceBreakdown, error) {
	var records []liveRecord
	path := "/live/country/" + url.PathEscape(country) + "/status/confirmed"
	if err := c.getStats(ctx, path, &records); err != nil {
		return model.ProvinceBreakdown{}, err
	}

	out := model.ProvinceBreakdown{
		State:     []string{},
		Confirmed: []int64{},
		Deaths:    []int64{},
		Recovered: []int64{},
		Active:    []int64{},
	}
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if _, ok := seen[r.Province]; ok {
			continue
		}
		seen[r.Province] = struct{}{}
		out.State = append(out.State, r.Province)
		out.Confirmed = append(out.Confirmed, r.Confirmed)
		out.Deaths = append(out.Deaths, r.Deaths)
		out.Recovered = append(out.Recovered, r.Recovered)
		out.Active = append(out.Active, r.Active)
	}
	return out, nil
}

// CountryTotal returns the most recent cumulative record for slug, which must
// already be in CountrySlug form. The upstream series is oldest first, so the
// last element is taken.
func (c *Client) CountryTotal(ctx context.Context, slug string) (model.CountryTotal, error) {
	var series []totalRecord
	if err := c.getStats(ctx, "/total/country/"+url.PathEscape(slug), &series); err != nil {
		return model.CountryTotal{}, err
	}
	if len(series) == 0 {
		return model.CountryTotal{}, apperror.NotFound("country", slug)
	}

	last := series[len(series)-1]
	return model.CountryTotal{
		Country:   last.Country,
		Confirmed: last.Confirmed,
		Deaths:    last.Deaths,
		Recovered: last.Recovered,
		Active:    last.Active,
	}, nil
}
