package stats

import (
	"context"
	"net/url"

	"github.com/sakif/covid-dashboard/internal/model"
)

// MaxNewsDocs is how many search results News looks at. Results with an empty
// headline or snippet are skipped, not replaced, so fewer may come back.
const MaxNewsDocs = 10

type articleSearchResponse struct {
	Response struct {
		Docs []articleDoc `json:"docs"`
	} `json:"response"`
}

type articleDoc struct {
	Headline struct {
		Main string `json:"main"`
	} `json:"headline"`
	Snippet string `json:"snippet"`
	WebURL  string `json:"web_url"`
}

// News searches articles for query and returns the usable ones among the first
// MaxNewsDocs results, in the order the API ranked them.
func (c *Client) News(ctx context.Context, query string) (model.NewsDigest, error) {
	var resp articleSearchResponse
	params := url.Values{}
	params.Set("q", query)
	if err := c.getNews(ctx, "/svc/search/v2/articlesearch.json", params, &resp); err != nil {
		return model.NewsDigest{}, err
	}

	docs := resp.Response.Docs
	if len(docs) > MaxNewsDocs {
		docs = docs[:MaxNewsDocs]
	}

	out := model.NewsDigest{
		Headline: []string{},
		Snippet:  []string{},
		URL:      []string{},
	}
	for _, d := range docs {
		if d.Headline.Main == "" || d.Snippet == "" {
			continue
		}
		out.Headline = append(out.Headline, d.Headline.Main)
		out.Snippet = append(out.Snippet, d.Snippet)
		out.URL = append(out.URL, d.WebURL)
	}
	return out, nil
}
