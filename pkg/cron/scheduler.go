// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fincopilot-dev/fincopilot/internal/domain/categorize"
	"github.com/fincopilot-dev/fincopilot/internal/domain/chart"
)

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron    *cron.Cron
	charts  chart.Source
	matcher *categorize.SwappableMatcher
	expr    string
	logger  *slog.Logger
}

// NewScheduler creates a job scheduler that periodically reloads the chart
// of accounts and rebuilds the rule matcher from it. expr is a standard
// 5-field cron expression.
func NewScheduler(charts chart.Source, matcher *categorize.SwappableMatcher, expr string, logger *slog.Logger) *Scheduler {
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	if expr == "" {
		expr = "0 3 * * *"
	}
	return &Scheduler{
		cron:    c,
		charts:  charts,
		matcher: matcher,
		expr:    expr,
		logger:  logger,
	}
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.expr, s.refreshChart)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
		slog.String("chart_refresh", s.expr),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow manually triggers the chart refresh.
func (s *Scheduler) RunNow() {
	go s.refreshChart()
}

// refreshChart reloads the chart of accounts and swaps a rebuilt matcher
// into the categorization engine.
func (s *Scheduler) refreshChart() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	entries, err := s.charts.GetFullChartOfAccounts(ctx)
	if err != nil {
		s.logger.Error("failed to reload chart of accounts", slog.Any("error", err))
		return
	}

	registry := chart.NewRegistry(entries)
	s.matcher.Swap(categorize.NewTieredMatcher(registry))
	s.logger.Info("chart of accounts refreshed", slog.Int("entries", registry.Len()))
}
