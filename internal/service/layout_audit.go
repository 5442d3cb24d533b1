package service

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"maglink/internal/domain"
	"maglink/internal/errs"
	"maglink/internal/pagelock"
)

// ─────────────────────────────────────────────────────────────
// Layout Audit: periodic overlap sweep over every page
// ─────────────────────────────────────────────────────────────

const auditJobKey = "layout-audit"

// AuditReport summarizes one audit pass.
type AuditReport struct {
	Pages    int             `json:"pages"`
	Repacked []LayoutOutcome `json:"repacked"`
	Failed   []string        `json:"failed,omitempty"`
}

// LayoutAudit walks every page and repacks the ones whose blocks overlap.
// Overlaps should not survive a request, but rows edited outside the
// service or written by an older instance can still carry them.
type LayoutAudit struct {
	pages  domain.PageStore
	blocks *BlockService
	logger *zap.Logger

	guard     pagelock.Guard
	cronSched *cron.Cron
}

func NewLayoutAudit(pages domain.PageStore, blocks *BlockService, logger *zap.Logger) *LayoutAudit {
	return &LayoutAudit{pages: pages, blocks: blocks, logger: logger}
}

// Start schedules RunOnce with a cron expression such as "@every 15m".
// An empty schedule disables the audit.
func (a *LayoutAudit) Start(schedule string) error {
	if schedule == "" {
		a.logger.Info("layout audit disabled")
		return nil
	}
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		report, err := a.RunOnce(context.Background())
		if err != nil {
			a.logger.Warn("layout audit failed", zap.Error(err))
			return
		}
		a.logger.Info("layout audit finished",
			zap.Int("pages", report.Pages),
			zap.Int("repacked", len(report.Repacked)),
			zap.Int("failed", len(report.Failed)),
		)
	})
	if err != nil {
		return fmt.Errorf("invalid audit schedule %q: %w", schedule, err)
	}
	c.Start()
	a.cronSched = c
	a.logger.Info("layout audit scheduled", zap.String("schedule", schedule))
	return nil
}

// Stop halts the scheduler and waits for a running pass, or for ctx.
func (a *LayoutAudit) Stop(ctx context.Context) {
	if a.cronSched != nil {
		stopped := a.cronSched.Stop()
		select {
		case <-stopped.Done():
		case <-ctx.Done():
		}
		a.cronSched = nil
	}
	a.guard.WaitAll(ctx)
}

// RunOnce audits every page. Only one pass runs at a time; a second caller
// gets a conflict error. A page that fails is reported and skipped.
func (a *LayoutAudit) RunOnce(ctx context.Context) (*AuditReport, error) {
	if !a.guard.TryLock(auditJobKey) {
		return nil, errs.New(errs.ErrCodeConflict, "layout audit already running")
	}
	defer a.guard.Unlock(auditJobKey)

	ids, err := a.pages.ListPageIDs(ctx)
	if err != nil {
		return nil, err
	}
	report := &AuditReport{Repacked: []LayoutOutcome{}}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Pages++
		outcome, err := a.blocks.repackPage(ctx, id, TriggerAudit)
		if err != nil {
			a.logger.Warn("audit page failed", zap.String("page", id), zap.Error(err))
			report.Failed = append(report.Failed, id)
			continue
		}
		if outcome.Repacked {
			report.Repacked = append(report.Repacked, outcome)
		}
	}
	return report, nil
}
