package background

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// TrialSweeper deactivates tenants whose trial has ended
type TrialSweeper interface {
	DeactivateExpiredTrials(ctx context.Context) (int, error)
}

// InvitationPurger removes invitations that can no longer be accepted
type InvitationPurger interface {
	PurgeExpiredInvitations(ctx context.Context) (int64, error)
}

// Runner manages background jobs for tenant lifecycle maintenance
type Runner struct {
	trials        TrialSweeper
	invitations   InvitationPurger
	sweepInterval time.Duration
	purgeInterval time.Duration
	logger        *logrus.Entry
	stopCh        chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
	sweepTicker   *time.Ticker
	purgeTicker   *time.Ticker
}

// NewRunner creates a new background runner
func NewRunner(trials TrialSweeper, sweepInterval time.Duration, logger *logrus.Entry) *Runner {
	if sweepInterval <= 0 {
		sweepInterval = time.Hour
	}
	return &Runner{
		trials:        trials,
		sweepInterval: sweepInterval,
		purgeInterval: 24 * time.Hour,
		logger:        logger.WithField("component", "background"),
		stopCh:        make(chan struct{}),
	}
}

// SetInvitationPurger enables the daily expired invitation purge
func (r *Runner) SetInvitationPurger(purger InvitationPurger) {
	r.invitations = purger
}

// Start begins the background job processing
func (r *Runner) Start() {
	r.logger.Info("Starting background job runner")

	r.sweepTicker = time.NewTicker(r.sweepInterval)
	r.logger.WithField("interval", r.sweepInterval.String()).Info("Trial expiry sweep scheduled")

	r.wg.Add(1)
	go r.runTrialSweepJob()

	if r.invitations != nil {
		r.purgeTicker = time.NewTicker(r.purgeInterval)
		r.logger.WithField("interval", r.purgeInterval.String()).Info("Invitation purge scheduled")

		r.wg.Add(1)
		go r.runInvitationPurgeJob()
	}
}

// Stop gracefully stops all background jobs
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		r.logger.Info("Stopping background job runner")
		close(r.stopCh)

		if r.sweepTicker != nil {
			r.sweepTicker.Stop()
		}
		if r.purgeTicker != nil {
			r.purgeTicker.Stop()
		}

		// Wait for goroutines to finish with timeout
		done := make(chan struct{})
		go func() {
			r.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			r.logger.Info("Background job runner stopped gracefully")
		case <-time.After(30 * time.Second):
			r.logger.Warn("Background job runner stop timeout - forcing shutdown")
		}
	})
}

// runTrialSweepJob runs the trial expiry sweep periodically
func (r *Runner) runTrialSweepJob() {
	defer r.wg.Done()

	// Run immediately on start to catch trials that ended while the service was down
	r.executeTrialSweep()

	for {
		select {
		case <-r.stopCh:
			return
		case <-r.sweepTicker.C:
			r.executeTrialSweep()
		}
	}
}

func (r *Runner) executeTrialSweep() int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	deactivated, err := r.trials.DeactivateExpiredTrials(ctx)
	if err != nil {
		r.logger.WithError(err).Error("Trial expiry sweep failed")
		return 0
	}
	if deactivated > 0 {
		r.logger.WithField("deactivated", deactivated).Info("Trial expiry sweep completed")
	}
	return deactivated
}

// runInvitationPurgeJob runs the invitation purge periodically (daily)
func (r *Runner) runInvitationPurgeJob() {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopCh:
			return
		case <-r.purgeTicker.C:
			r.executeInvitationPurge()
		}
	}
}

func (r *Runner) executeInvitationPurge() int64 {
	if r.invitations == nil {
		return 0
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	purged, err := r.invitations.PurgeExpiredInvitations(ctx)
	if err != nil {
		r.logger.WithError(err).Error("Invitation purge failed")
		return 0
	}
	if purged > 0 {
		r.logger.WithField("purged", purged).Info("Invitation purge completed")
	}
	return purged
}

// RunOnce runs every job once (for testing/manual trigger)
func (r *Runner) RunOnce(ctx context.Context) (deactivated int, purged int64, err error) {
	deactivated, err = r.trials.DeactivateExpiredTrials(ctx)
	if err != nil {
		return 0, 0, err
	}
	if r.invitations != nil {
		purged, err = r.invitations.PurgeExpiredInvitations(ctx)
		if err != nil {
			return deactivated, 0, err
		}
	}
	return deactivated, purged, nil
}
