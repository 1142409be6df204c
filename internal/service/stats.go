// Package service contains the business logic of the dashboard.
//
// THE LAYERS:
//
//	Realtime handler  → decodes an event, picks the audience, emits the reply
//	Service           → validates input, enforces rules, orchestrates
//	Repository/Gateway/Cache → talks to the database, upstream APIs, Redis
//
// Services take interfaces, not concrete types, so tests can pass fakes for
// the store, the upstream APIs and the cache (see *_test.go).
package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sakif/covid-dashboard/internal/apperror"
	"github.com/sakif/covid-dashboard/internal/cache"
	"github.com/sakif/covid-dashboard/internal/model"
	"github.com/sakif/covid-dashboard/internal/stats"
)

// NewsQuery is the fixed search term for the news feed.
const NewsQuery = "corona"

// Gateway is the slice of the upstream APIs the stats service needs.
// *stats.Client implements it.
type Gateway interface {
	Summary(ctx context.Context) ([]model.CountryStats, error)
	ProvinceStatus(ctx context.Context, country string) (model.ProvinceBreakdown, error)
	CountryTotal(ctx context.Context, slug string) (model.CountryTotal, error)
	News(ctx context.Context, query string) (model.NewsDigest, error)
}

var _ Gateway = (*stats.Client)(nil)

// StatsService fetches statistics and news and keeps the summary cache fresh.
type StatsService struct {
	gateway Gateway
	cache   cache.Store
	logger  *slog.Logger
}

func NewStatsService(gateway Gateway, store cache.Store, logger *slog.Logger) *StatsService {
	return &StatsService{
		gateway: gateway,
		cache:   store,
		logger:  logger,
	}
}

// Summary refetches the per-country summary, merges it into the cache and
// returns the cached view.
//
// REFRESH POLICY:
// Every call hits the upstream API. Countries are deduplicated (first
// occurrence wins) before the upsert, so the cache never holds a country twice
// and keeps the order countries were first seen in. Countries the API stops
// reporting drop out once their cache entry expires.
//
// If the cache itself fails, the freshly fetched list is returned instead so a
// Redis outage does not take the dashboard down with it.
func (s *StatsService) Summary(ctx context.Context) (model.SummaryPayload, error) {
	fetched, err := s.gateway.Summary(ctx)
	if err != nil {
		return model.SummaryPayload{}, err
	}
	fresh := dedupeCountries(fetched)

	if err := s.cache.Upsert(ctx, fresh); err != nil {
		s.logger.Error("summary cache upsert failed", "error", err)
		return model.NewSummaryPayload(fresh), nil
	}

	snapshot, err := s.cache.Snapshot(ctx)
	if err != nil {
		s.logger.Error("summary cache snapshot failed", "error", err)
		return model.NewSummaryPayload(fresh), nil
	}

	s.logger.Debug("summary refreshed", "fetched", len(fetched), "cached", len(snapshot))
	return model.NewSummaryPayload(snapshot), nil
}

// dedupeCountries keeps the first record of every country, in order.
func dedupeCountries(in []model.CountryStats) []model.CountryStats {
	seen := make(map[string]struct{}, len(in))
	out := make([]model.CountryStats, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s.Country]; ok {
			continue
		}
		seen[s.Country] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Provinces returns the per-province breakdown for country. The name is
// passed to the upstream API as given.
func (s *StatsService) Provinces(ctx context.Context, country string) (model.ProvinceBreakdown, error) {
	country = strings.TrimSpace(country)
	if country == "" {
		return model.ProvinceBreakdown{}, apperror.ValidationFailed("country", "country is required")
	}
	return s.gateway.ProvinceStatus(ctx, country)
}

// CountryTotal returns the latest cumulative figures for a country given by
// display name ("United States"). The name is converted to the upstream slug
// form ("united-states") here.
func (s *StatsService) CountryTotal(ctx context.Context, country string) (model.CountryTotal, error) {
	if strings.TrimSpace(country) == "" {
		return model.CountryTotal{}, apperror.ValidationFailed("country", "country is required")
	}
	return s.gateway.CountryTotal(ctx, stats.CountrySlug(country))
}

// News returns the current headlines for NewsQuery.
func (s *StatsService) News(ctx context.Context) (model.NewsDigest, error) {
	return s.gateway.News(ctx, NewsQuery)
}
