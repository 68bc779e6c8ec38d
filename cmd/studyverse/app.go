package main

import (
	"context"
	"path/filepath"

	"studyverse/internal/ai"
	"studyverse/internal/config"
	"studyverse/internal/ics"
	appLog "studyverse/internal/log"
	"studyverse/internal/store"
)

// openStore opens the sqlite database named in the config.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	return store.OpenSQLite(ctx, cfg.Database)
}

func icsSources(cfg *config.Config) []ics.Source {
	out := make([]ics.Source, 0, len(cfg.ICS))
	for _, c := range cfg.ICS {
		out = append(out, ics.Source{ID: c.ID, Name: c.Name, URL: c.URL})
	}
	return out
}

// newFeedCache caches feed bodies next to the database file.
func newFeedCache(cfg *config.Config) *ics.FeedCache {
	cacheDir := filepath.Join(filepath.Dir(cfg.Database), "ics-cache")
	return ics.NewFeedCache(
		ics.NewFetcher(cacheDir, nil),
		icsSources(cfg),
		ics.ConvertConfig{Location: cfg.Location()},
	)
}

// newFlows uses Gemini when an API key is available and always keeps the
// canned answers as fallback.
func newFlows(ctx context.Context, cfg *config.Config) *ai.Flows {
	chain := ai.Chain{Fallback: ai.DefaultFallback()}
	gen, err := ai.NewGenAIGenerator(ctx, cfg.AI.ResolveAPIKey(), cfg.AI.Model, cfg.AI.Timeout())
	if err != nil {
		appLog.Info("AI model disabled; serving canned answers", "reason", err.Error())
	} else {
		chain.Primary = gen
		appLog.Info("AI model enabled", "model", cfg.AI.Model)
	}
	return ai.NewFlows(chain)
}
