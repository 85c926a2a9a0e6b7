package store

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// PartitionMaintainer drives a scheduled archival job: the on-demand
// partition trigger in schema.sql covers the current and next year,
// but far-past partitions still benefit from a periodic sweep that
// keeps them off the hot indexing path.
type PartitionMaintainer struct {
	pg           *Postgres
	log          *zap.Logger
	cron         *cron.Cron
	archiveAfter time.Duration
	schedule     string
}

// NewPartitionMaintainer builds a maintainer that has not yet started;
// call Start to schedule the archival sweep. schedule is a standard
// five-field cron expression (ARCHIVE_JOB_CRON), defaulting to a daily
// 02:00 run if empty.
func NewPartitionMaintainer(pg *Postgres, log *zap.Logger, archiveAfter time.Duration, schedule string) *PartitionMaintainer {
	if schedule == "" {
		schedule = "0 2 * * *"
	}
	return &PartitionMaintainer{pg: pg, log: log, cron: cron.New(), archiveAfter: archiveAfter, schedule: schedule}
}

// Start schedules the archival sweep and ensures next year's partition
// exists on every run, so no operator action is needed when a new
// calendar year arrives.
func (m *PartitionMaintainer) Start(ctx context.Context) error {
	_, err := m.cron.AddFunc(m.schedule, func() {
		if err := m.ensureUpcomingPartitions(ctx); err != nil {
			m.log.Error("partition maintenance failed", zap.Error(err))
			return
		}
		if err := m.archiveOldPartitions(ctx); err != nil {
			m.log.Error("partition archival failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling partition maintenance: %w", err)
	}
	m.cron.Start()
	return nil
}

func (m *PartitionMaintainer) Stop() {
	<-m.cron.Stop().Done()
}

func (m *PartitionMaintainer) ensureUpcomingPartitions(ctx context.Context) error {
	nextYear := time.Now().AddDate(1, 0, 0).Year()
	var existed bool
	if err := m.pg.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_class WHERE relname = format('documents_y%s', $1::INT))`, nextYear).Scan(&existed); err != nil {
		return err
	}
	_, err := m.pg.pool.Exec(ctx, `SELECT ensure_year_partition($1)`, nextYear)
	if err != nil {
		return err
	}
	if !existed && m.pg.metrics != nil {
		m.pg.metrics.PartitionsCreated.Inc()
	}
	return nil
}

// archiveOldPartitions marks partitions for years older than
// archiveAfter as archived (a metadata flag schema.sql maintains); it
// does not detach or drop them — there is no data loss, only the
// hot path staying free of stale indexing weight.
func (m *PartitionMaintainer) archiveOldPartitions(ctx context.Context) error {
	cutoffYear := time.Now().Add(-m.archiveAfter).Year()
	_, err := m.pg.pool.Exec(ctx, `SELECT archive_years_before($1)`, cutoffYear)
	return err
}
