package ics

import (
	"context"
	"errors"
	"sync"
	"time"

	appLog "studyverse/internal/log"
	"studyverse/internal/model"
)

// FeedCache keeps the goals of all subscribed feeds in memory. Subscription
// goals are read-only and never written to the store; a refresh replaces
// the whole set.
type FeedCache struct {
	fetcher *Fetcher
	sources []Source
	convert ConvertConfig

	// refreshMu serializes refreshes so the last one to finish also holds
	// the newest data.
	refreshMu sync.Mutex

	mu          sync.RWMutex
	goals       []model.Goal
	refreshedAt time.Time
}

// NewFeedCache creates an empty cache for sources.
func NewFeedCache(fetcher *Fetcher, sources []Source, convert ConvertConfig) *FeedCache {
	return &FeedCache{
		fetcher: fetcher,
		sources: append([]Source(nil), sources...),
		convert: convert,
		goals:   make([]model.Goal, 0),
	}
}

// Refresh fetches every source and swaps in the converted goals. A feed that
// fails entirely keeps nothing; the others still update. The returned error
// joins per-feed failures. Concurrent calls run one after another.
func (c *FeedCache) Refresh(ctx context.Context) error {
	if len(c.sources) == 0 {
		return nil
	}
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	results, fetchErrs := c.fetcher.FetchAll(ctx, c.sources)

	goals := make([]model.Goal, 0)
	errs := append([]error(nil), fetchErrs...)
	for _, res := range results {
		events, err := ParseICS(res.Source, res.Body, c.convert.Location)
		if err != nil {
			appLog.Error("ics feed parse failed", err, "id", res.Source.ID, "url", redactURL(res.Source.URL))
			errs = append(errs, err)
			continue
		}
		goals = append(goals, ToGoals(events, c.convert)...)
	}

	c.mu.Lock()
	c.goals = goals
	c.refreshedAt = time.Now()
	c.mu.Unlock()

	appLog.Info("ics feeds refreshed", "sources", len(c.sources), "goals", len(goals), "errors", len(errs))
	return errors.Join(errs...)
}

// Goals returns a copy of the cached subscription goals.
func (c *FeedCache) Goals() []model.Goal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Goal, len(c.goals))
	for i, g := range c.goals {
		out[i] = g.Clone()
	}
	return out
}

// RefreshedAt is the time of the last Refresh, zero before the first one.
func (c *FeedCache) RefreshedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshedAt
}

// Import converts a local calendar file into editable goals (no Source).
func Import(body []byte, cfg ConvertConfig) ([]model.Goal, error) {
	events, err := ParseICS(Source{ID: "import"}, body, cfg.Location)
	if err != nil {
		return nil, err
	}
	for i := range events {
		events[i].Source = Source{}
	}
	return ToGoals(events, cfg), nil
}
