package audit

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/r3e-labs/engines-controlplane/internal/platform/logging"
)

// RetentionSweeper periodically erases audit entries older than
// retentionWindow, per tenant. Grounded on the scheduling shape used
// elsewhere in this lineage for periodic background work, adapted to
// robfig/cron/v3 instead of a hand-rolled ticker since the sweep needs a
// cron schedule, not a fixed interval.
type RetentionSweeper struct {
	chain           Chain
	logger          *logging.Logger
	retentionWindow time.Duration
	tenantIDs       func(ctx context.Context) ([]string, error)
	cron            *cron.Cron
}

// NewRetentionSweeper builds a sweeper. tenantIDs supplies the set of
// tenants to sweep on each run (typically backed by the routing registry's
// distinct tenant_id list).
func NewRetentionSweeper(chain Chain, logger *logging.Logger, retentionWindow time.Duration, tenantIDs func(ctx context.Context) ([]string, error)) *RetentionSweeper {
	return &RetentionSweeper{
		chain:           chain,
		logger:          logger,
		retentionWindow: retentionWindow,
		tenantIDs:       tenantIDs,
		cron:            cron.New(),
	}
}

// Start schedules the sweep on spec (standard 5-field cron syntax, e.g.
// "0 3 * * *" for daily at 03:00) and begins running it in the background.
func (s *RetentionSweeper) Start(ctx context.Context, spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.runOnce(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any in-flight run to finish.
func (s *RetentionSweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *RetentionSweeper) runOnce(ctx context.Context) {
	tenantIDs, err := s.tenantIDs(ctx)
	if err != nil {
		if s.logger != nil {
			s.logger.WithContext(ctx).WithError(err).Error("audit retention sweep: list tenants failed")
		}
		return
	}

	cutoff := time.Now().UTC().Add(-s.retentionWindow)
	for _, tenantID := range tenantIDs {
		erased, err := s.chain.Erase(ctx, tenantID, cutoff, "audit_retention_sweeper")
		if err != nil {
			if s.logger != nil {
				s.logger.WithContext(ctx).WithError(err).WithField("tenant_id", tenantID).Error("audit retention sweep failed")
			}
			continue
		}
		if s.logger != nil && erased > 0 {
			s.logger.WithContext(ctx).WithField("tenant_id", tenantID).WithField("erased", erased).Info("audit retention sweep erased entries")
		}
	}
}
