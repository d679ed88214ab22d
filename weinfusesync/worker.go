package weinfusesync

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/infusionsync_backend/config"
	"bitbucket.org/mmdatafocus/infusionsync_backend/erp"
	"bitbucket.org/mmdatafocus/infusionsync_backend/models"
	"bitbucket.org/mmdatafocus/infusionsync_backend/utils"
	"bitbucket.org/mmdatafocus/infusionsync_backend/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ingestRunKeyPrefix is the handoff slot carrying the day's ingest run
// id to the summarize step.
const ingestRunKeyPrefix = "IngestRunId:"

const phaseLockTTL = 30 * time.Minute

// ProcessRun executes one queued sync run end to end. Failures inside a
// phase land on staged lines and the run counters; the returned error is
// reserved for conditions that prevented the run from executing at all.
func ProcessRun(ctx context.Context, runId uint) error {
	db := config.GetDB()
	logger := config.GetLogger()

	run, err := models.GetSyncRun(ctx, db, runId)
	if err != nil {
		return err
	}
	switch run.Status {
	case models.SyncRunStatusSuccess, models.SyncRunStatusFailed, models.SyncRunStatusPartial:
		return nil
	}

	ctx = utils.SetRunIdInContext(ctx, run.ID)
	ctx = utils.SetPhaseInContext(ctx, string(run.Phase))

	now := time.Now()
	startedAt := run.StartedAt
	if startedAt == nil {
		startedAt = &now
	}
	if err := db.WithContext(ctx).Model(run).Updates(map[string]interface{}{
		"status":     models.SyncRunStatusRunning,
		"started_at": startedAt,
	}).Error; err != nil {
		return err
	}

	summary, runErr := executePhase(ctx, db, logger, run)
	finishRun(ctx, db, logger, run, startedAt, summary, runErr)
	return runErr
}

func executePhase(ctx context.Context, db *gorm.DB, logger *logrus.Logger, run *models.SyncRun) (workflow.Summary, error) {
	settings, err := models.GetReconSettings(ctx, db)
	if err != nil {
		return workflow.Summary{}, err
	}
	store, err := erp.NewRestStore()
	if err != nil {
		return workflow.Summary{}, err
	}
	refs, err := erp.LoadRefMaps(ctx, store, settings.SearchLimit())
	if err != nil {
		return workflow.Summary{}, err
	}

	deps := workflow.PhaseDeps{
		DB:       db,
		Logger:   logger,
		Store:    store,
		Settings: settings,
		Refs:     refs,
		Workers:  config.PhaseWorkerCount(),
		RunId:    run.ID,
	}

	// Build and receive mutate shared order state per purchase
	// reference; a second concurrent run of the same phase could race
	// the idempotency guards, so they run single-flight.
	if run.Phase != models.PhaseIngest && !config.DisablePhaseSingleFlight() {
		lock, err := utils.ObtainPhaseLock(ctx, string(run.Phase), phaseLockTTL, "weinfusesync", "executePhase")
		if err != nil {
			return workflow.Summary{}, err
		}
		defer func() { _ = lock.Release(context.Background()) }()
	}

	switch run.Phase {
	case models.PhaseIngest:
		return runIngest(ctx, db, logger, store, settings, run)
	case models.PhaseBuild:
		return workflow.BuildOrders(ctx, deps, run.PoFilter)
	case models.PhaseReceive:
		return workflow.ReceiveOrders(ctx, deps, run.PoFilter)
	}
	return workflow.Summary{}, errors.New("unknown sync phase: " + string(run.Phase))
}

// runIngest pulls the report and matches every row. Rows sharing one
// identity key are processed sequentially so repeated reports converge
// instead of racing; distinct keys fan out across the worker pool.
func runIngest(ctx context.Context, db *gorm.DB, logger *logrus.Logger, store erp.Store, settings *models.ReconSettings, run *models.SyncRun) (workflow.Summary, error) {
	client, err := newLookerClient()
	if err != nil {
		return workflow.Summary{}, err
	}
	raws, err := client.FetchPurchaseLines(ctx)
	if err != nil {
		return workflow.Summary{}, err
	}
	if filter := strings.TrimSpace(run.PoFilter); filter != "" {
		raws = filterRawLines(raws, filter)
	}

	matcher := NewMatcher(db, logger, NewLookupService(store, settings))

	groups := map[string][]RawPurchaseLine{}
	var order []string
	for _, raw := range raws {
		key := rawIdentityKey(raw)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], raw)
	}

	var (
		mu      sync.Mutex
		summary workflow.Summary
		wg      sync.WaitGroup
	)
	sem := make(chan struct{}, config.PhaseWorkerCount())
	for _, key := range order {
		select {
		case <-ctx.Done():
			wg.Wait()
			return summary, ctx.Err()
		default:
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(rows []RawPurchaseLine) {
			defer wg.Done()
			defer func() { <-sem }()
			outcome := matchRows(ctx, db, matcher, run.ID, rows)
			mu.Lock()
			summary.Created += outcome.Created
			summary.Updated += outcome.Updated
			summary.Failed += outcome.Failed
			mu.Unlock()
		}(groups[key])
	}
	wg.Wait()

	// Handoff slot for the summarize step: the day's ingest run id.
	_ = config.SetRedisValue(ingestRunKeyPrefix+time.Now().Format("2006-01-02"), strconv.FormatUint(uint64(run.ID), 10), 24*time.Hour)
	return summary, nil
}

func matchRows(ctx context.Context, db *gorm.DB, matcher *Matcher, runId uint, rows []RawPurchaseLine) workflow.Summary {
	summary := workflow.Summary{}
	for _, raw := range rows {
		result, err := matcher.MatchLine(ctx, raw)
		if err != nil {
			summary.Failed++
			_ = models.CreateSyncRunError(ctx, db, runId, strings.TrimSpace(raw.LineId), strings.TrimSpace(raw.PoNumber), "", models.ErrorCodeTransactionFailed, err.Error())
			continue
		}
		for _, fe := range result.FieldErrors {
			_ = models.CreateSyncRunError(ctx, db, runId, result.Line.ExternalLineId, result.Line.PoNumber, fe.Field, fe.Code, fe.Message)
		}
		switch {
		case result.Line.Status == models.LineStatusError:
			summary.Failed++
		case result.Created:
			summary.Created++
		default:
			summary.Updated++
		}
	}
	return summary
}

// rawIdentityKey mirrors the staged-line identity: external line id, or
// the back-order composite when the reference carries the suffix.
func rawIdentityKey(raw RawPurchaseLine) string {
	po := strings.TrimSpace(raw.PoNumber)
	if trimmed, ok := cutBackOrderSuffix(po); ok {
		return "bo|" + trimmed + "|" + strings.TrimSpace(raw.GroupId) + "|" +
			strings.TrimSpace(raw.LocationId) + "|" + strings.TrimSpace(raw.NDC) + "|" +
			strings.TrimSpace(raw.OrderDate)
	}
	if id := strings.TrimSpace(raw.LineId); id != "" {
		return "id|" + id
	}
	return "po|" + po + "|" + strings.TrimSpace(raw.NDC) + "|" + strings.TrimSpace(raw.Lot)
}

func filterRawLines(raws []RawPurchaseLine, filter string) []RawPurchaseLine {
	out := make([]RawPurchaseLine, 0, len(raws))
	for _, raw := range raws {
		po, _ := cutBackOrderSuffix(strings.TrimSpace(raw.PoNumber))
		if matchWildcard(po, filter) {
			out = append(out, raw)
		}
	}
	return out
}

// matchWildcard applies the space-as-wildcard filter convention.
func matchWildcard(value string, filter string) bool {
	parts := strings.Split(filter, " ")
	rest := value
	for i, part := range parts {
		if part == "" {
			continue
		}
		idx := strings.Index(rest, part)
		if idx < 0 {
			return false
		}
		if i == 0 && idx != 0 {
			return false
		}
		rest = rest[idx+len(part):]
	}
	return true
}

func finishRun(ctx context.Context, db *gorm.DB, logger *logrus.Logger, run *models.SyncRun, startedAt *time.Time, summary workflow.Summary, runErr error) {
	finishedAt := time.Now()
	durationMs := finishedAt.Sub(*startedAt).Milliseconds()

	status := models.SyncRunStatusSuccess
	errorMessage := ""
	switch {
	case runErr != nil:
		status = models.SyncRunStatusFailed
		errorMessage = runErr.Error()
	case summary.Failed > 0 && summary.Created+summary.Updated == 0:
		status = models.SyncRunStatusFailed
	case summary.Failed > 0:
		status = models.SyncRunStatusPartial
	}

	if err := db.WithContext(ctx).Model(&models.SyncRun{}).Where("id = ?", run.ID).Updates(map[string]interface{}{
		"status":        status,
		"created":       summary.Created,
		"updated":       summary.Updated,
		"failed":        summary.Failed,
		"started_at":    startedAt,
		"finished_at":   &finishedAt,
		"duration_ms":   durationMs,
		"error_message": errorMessage,
		"locked_at":     nil,
		"locked_by":     nil,
	}).Error; err != nil {
		config.LogError(logger, "weinfusesync", "finishRun", "Failed to finalize sync run", run.ID, err)
		return
	}

	if summary.Failed > 0 {
		if _, err := workflow.ExportRunErrors(ctx, db, run.ID); err != nil {
			config.LogError(logger, "weinfusesync", "finishRun", "Failed to export error report", run.ID, err)
		}
	}
}
