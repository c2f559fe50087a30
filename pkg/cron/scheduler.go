// Package cron runs scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"
	"time"

	robfig "github.com/robfig/cron/v3"

	"github.com/moneta-app/moneta-api/internal/domain/import/repository"
)

// Scheduler owns the background jobs: currently just nightly pruning of
// import audit records past their retention window.
type Scheduler struct {
	cron          *robfig.Cron
	audit         repository.AuditLog
	retentionDays int
	logger        *slog.Logger
}

// NewScheduler builds the scheduler with standard 5-field cron expressions.
func NewScheduler(audit repository.AuditLog, retentionDays int, logger *slog.Logger) *Scheduler {
	c := robfig.New(robfig.WithLogger(robfig.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))
	return &Scheduler{
		cron:          c,
		audit:         audit,
		retentionDays: retentionDays,
		logger:        logger,
	}
}

// Start registers the jobs and begins the schedule. The audit prune runs
// nightly at 03:00.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc("0 3 * * *", s.pruneAuditRecords); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("cron scheduler started", slog.Int("jobs", len(s.cron.Entries())))
	return nil
}

// Stop stops the schedule; the returned context is done once running jobs
// finish.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow triggers the prune out of schedule, for admin use.
func (s *Scheduler) RunNow() {
	go s.pruneAuditRecords()
}

func (s *Scheduler) pruneAuditRecords() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)
	pruned, err := s.audit.Prune(ctx, cutoff)
	if err != nil {
		s.logger.Error("audit prune failed", slog.Any("error", err))
		return
	}
	s.logger.Info("audit prune completed",
		slog.Int64("records_pruned", pruned),
		slog.Time("cutoff", cutoff),
	)
}
