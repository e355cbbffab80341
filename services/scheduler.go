package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Scheduler runs the nightly status refresh and, when S3 is configured, the backup
type Scheduler struct {
	cron *cron.Cron
}

// jobTimeout bounds a single scheduled run.
const jobTimeout = 5 * time.Minute

// NewScheduler registers the jobs. backup may be nil; its job is then skipped.
func NewScheduler(loc *time.Location, dashboard *Dashboard, backup *BackupService, refreshSpec, backupSpec string) (*Scheduler, error) {
	c := cron.New(cron.WithLocation(loc), cron.WithChain(cron.Recover(cron.DefaultLogger)))

	if _, err := c.AddFunc(refreshSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		changed, err := dashboard.RefreshStatuses(ctx)
		if err != nil {
			log.WithError(err).Error("Scheduled status refresh failed")
			return
		}
		log.WithField("changed", changed).Info("Scheduled status refresh finished")
	}); err != nil {
		return nil, fmt.Errorf("invalid STATUS_REFRESH_CRON %q: %w", refreshSpec, err)
	}

	if backup != nil {
		if _, err := c.AddFunc(backupSpec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			if _, err := backup.Run(ctx); err != nil && !errors.Is(err, ErrBackupDisabled) {
				log.WithError(err).Error("Scheduled backup failed")
			}
		}); err != nil {
			return nil, fmt.Errorf("invalid BACKUP_CRON %q: %w", backupSpec, err)
		}
	}

	return &Scheduler{cron: c}, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	log.WithField("jobs", len(s.cron.Entries())).Info("Scheduler started")
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
