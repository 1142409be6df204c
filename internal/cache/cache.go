// Package cache holds the most recent per-country summary figures.
//
// Entries are keyed by country name. An upsert replaces the figures of a
// country already present and appends unseen countries, so a snapshot lists
// countries in the order they were first seen. An entry that is not refreshed
// within the TTL expires and drops out of snapshots.
package cache

import (
	"context"
	"time"

	"github.com/sakif/covid-dashboard/internal/model"
)

const DefaultTTL = 10 * time.Minute

// Store is implemented by the in-memory and Redis backends.
type Store interface {
	Upsert(ctx context.Context, stats []model.CountryStats) error
	Snapshot(ctx context.Context) ([]model.CountryStats, error)
	Ping(ctx context.Context) error
	Close() error
}
