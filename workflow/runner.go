package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/infusionsync_backend/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RunDispatcher drains queued sync runs. Claiming goes through a row
// lock with SKIP LOCKED so multiple service replicas can poll the same
// table; a run stuck in running with a stale lock is reclaimed after
// LockTimeout.
type RunDispatcher struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	DispatcherID string

	BatchSize    int
	PollInterval time.Duration
	LockTimeout  time.Duration

	// Process executes one claimed run end to end and reports its
	// terminal status on the run row itself.
	Process func(ctx context.Context, runId uint) error
}

func NewRunDispatcher(db *gorm.DB, logger *logrus.Logger, process func(ctx context.Context, runId uint) error) *RunDispatcher {
	return &RunDispatcher{
		DB:           db,
		Logger:       logger,
		DispatcherID: uuid.NewString(),
		BatchSize:    5,
		PollInterval: 2 * time.Second,
		LockTimeout:  10 * time.Minute,
		Process:      process,
	}
}

func (d *RunDispatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.dispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

func (d *RunDispatcher) dispatchOnce(ctx context.Context) {
	if d.DB == nil || d.Process == nil {
		return
	}
	now := time.Now().UTC()
	staleBefore := now.Add(-d.LockTimeout)

	var claimed []models.SyncRun
	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Eligible:
		// - queued runs never picked up
		// - running runs whose claimant died (stale lock)
		q := tx.
			Where(`
				status = ?
				OR
				(status = ? AND locked_at IS NOT NULL AND locked_at <= ?)
			`, models.SyncRunStatusQueued, models.SyncRunStatusRunning, staleBefore).
			Order("id ASC").
			Limit(d.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		for i := range claimed {
			claimed[i].Status = models.SyncRunStatusRunning
			claimed[i].LockedAt = &now
			claimed[i].LockedBy = &d.DispatcherID
			if err := tx.Model(&models.SyncRun{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
				"status":    models.SyncRunStatusRunning,
				"locked_at": &now,
				"locked_by": d.DispatcherID,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil || len(claimed) == 0 {
		return
	}

	for _, run := range claimed {
		if procErr := d.Process(ctx, run.ID); procErr != nil && d.Logger != nil {
			d.Logger.WithFields(logrus.Fields{
				"field":  "RunDispatcher",
				"run_id": run.ID,
				"phase":  run.Phase,
			}).Error("sync run processing failed: " + procErr.Error())
		}
	}
}
