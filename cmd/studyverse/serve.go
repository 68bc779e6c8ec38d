package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"studyverse/internal/ics"
	appLog "studyverse/internal/log"
	"studyverse/internal/scheduler"
	"studyverse/internal/store"
	"studyverse/internal/web"
)

const (
	jobRefreshFeeds = "refresh-feeds"
	jobExport       = "export-snapshot"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and background jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	appLog.Info("studyverse starting",
		"version", version,
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"database", conf.Database,
		"ics_count", len(conf.ICS),
	)

	st, err := openStore(ctx, conf)
	if err != nil {
		return err
	}
	defer st.Close()

	feeds := newFeedCache(conf)
	sched := scheduler.New(conf.Location())
	if err := registerJobs(sched, st, feeds); err != nil {
		return err
	}

	server := web.NewServer(web.Options{
		Config: conf,
		Store:  st,
		Feeds:  feeds,
		Flows:  newFlows(ctx, conf),
	})

	// Prime the feed cache so the first calendar view includes subscriptions.
	if len(conf.ICS) > 0 {
		go func() {
			if err := sched.RunNow(jobRefreshFeeds); err != nil {
				appLog.Error("initial feed refresh incomplete", err)
			}
		}()
	}

	sched.Start()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(gctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return sched.Stop(stopCtx)
	})

	err = g.Wait()
	appLog.Info("studyverse exiting")
	return err
}

func registerJobs(sched *scheduler.Scheduler, st store.Store, feeds *ics.FeedCache) error {
	if len(conf.ICS) > 0 {
		if err := sched.Add(scheduler.Job{
			Name: jobRefreshFeeds,
			Spec: conf.RefreshCron,
			Run:  feeds.Refresh,
		}); err != nil {
			return err
		}
	}

	if conf.Export.Path != "" {
		job := scheduler.SnapshotJob(jobExport, conf.Export.Cron, conf.Export.Path, func(ctx context.Context) ([]byte, error) {
			goals, err := st.ListGoals(ctx)
			if err != nil {
				return nil, fmt.Errorf("list goals: %w", err)
			}
			return ics.Export(goals, ics.ExportOptions{Location: conf.Location()})
		})
		if err := sched.Add(job); err != nil {
			return err
		}
	}
	return nil
}
