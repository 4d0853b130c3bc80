package search

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Refresher rebuilds a materialized view on a cron schedule. It is the
// process-level replacement for wiring refresh into write paths: the
// view lags source data by at most one schedule interval.
type Refresher struct {
	svc      *Service
	view     string
	schedule string
	cron     *cron.Cron
	log      *logrus.Logger
}

// NewRefresher schedules full refreshes of view per the cron spec,
// e.g. "@every 5m" or "0 * * * *".
func NewRefresher(svc *Service, view, schedule string, log *logrus.Logger) *Refresher {
	if log == nil {
		log = logrus.New()
	}
	return &Refresher{
		svc:      svc,
		view:     view,
		schedule: schedule,
		cron:     cron.New(),
		log:      log,
	}
}

// Start registers the refresh job and starts the scheduler.
func (r *Refresher) Start() error {
	if _, err := r.cron.AddFunc(r.schedule, r.run); err != nil {
		return err
	}
	r.cron.Start()
	r.log.WithFields(logrus.Fields{
		"view":     r.view,
		"schedule": r.schedule,
	}).Info("view refresher started")
	return nil
}

// Stop halts the scheduler and waits for a running refresh to finish.
func (r *Refresher) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Refresher) run() {
	runID := uuid.NewString()
	log := r.log.WithFields(logrus.Fields{
		"view":   r.view,
		"run_id": runID,
	})

	start := time.Now()
	if err := r.svc.Refresh(context.Background(), r.view); err != nil {
		log.WithError(err).Error("view refresh failed")
		return
	}
	log.WithField("duration", time.Since(start).String()).Info("view refreshed")
}
