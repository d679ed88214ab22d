package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"bitbucket.org/mmdatafocus/infusionsync_backend/erp"
	"bitbucket.org/mmdatafocus/infusionsync_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PhaseDeps bundles the collaborators one phase run needs. Refs and
// Settings are loaded once at phase start; nothing here is shared
// between runs.
type PhaseDeps struct {
	DB       *gorm.DB
	Logger   *logrus.Logger
	Store    erp.Store
	Settings *models.ReconSettings
	Refs     *erp.RefMaps
	Workers  int
	RunId    uint
}

// Summary is the per-run outcome counter surfaced to the audit record.
type Summary struct {
	Created int
	Updated int
	Failed  int
}

func (s *Summary) add(other Summary) {
	s.Created += other.Created
	s.Updated += other.Updated
	s.Failed += other.Failed
}

func groupByPo(lines []models.StagedLine) (map[string][]models.StagedLine, []string) {
	groups := map[string][]models.StagedLine{}
	for _, line := range lines {
		groups[line.PoNumber] = append(groups[line.PoNumber], line)
	}
	keys := make([]string, 0, len(groups))
	for po := range groups {
		keys = append(keys, po)
	}
	sort.Strings(keys)
	return groups, keys
}

// forEachGroup runs fn once per purchase reference. Distinct groups run
// in parallel on a bounded pool; lines within a group stay sequential.
// A panicking group only fails its own lines, never the run.
func forEachGroup(ctx context.Context, logger *logrus.Logger, workers int, groups map[string][]models.StagedLine, order []string, fn func(po string, lines []models.StagedLine) Summary) Summary {
	if workers < 1 {
		workers = 1
	}
	var (
		mu    sync.Mutex
		total Summary
		wg    sync.WaitGroup
	)
	sem := make(chan struct{}, workers)
	for _, po := range order {
		select {
		case <-ctx.Done():
			wg.Wait()
			return total
		default:
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(po string, lines []models.StagedLine) {
			defer wg.Done()
			defer func() { <-sem }()
			outcome := runGroup(logger, po, lines, fn)
			mu.Lock()
			total.add(outcome)
			mu.Unlock()
		}(po, groups[po])
	}
	wg.Wait()
	return total
}

func runGroup(logger *logrus.Logger, po string, lines []models.StagedLine, fn func(po string, lines []models.StagedLine) Summary) (outcome Summary) {
	defer func() {
		if r := recover(); r != nil {
			if logger != nil {
				logger.WithFields(logrus.Fields{
					"module": "workflow",
					"po":     po,
					"panic":  fmt.Sprint(r),
				}).Error("group processing panicked")
			}
			outcome = Summary{Failed: len(lines)}
		}
	}()
	return fn(po, lines)
}

// markGroup applies one shared outcome to every line of a group.
func markGroup(ctx context.Context, deps PhaseDeps, lines []models.StagedLine, upd models.StagedLineUpdate, field string) int {
	count := 0
	for i := range lines {
		if err := models.ApplyUpdate(ctx, deps.DB, &lines[i], upd); err != nil {
			if deps.Logger != nil {
				deps.Logger.WithFields(logrus.Fields{
					"module":  "workflow",
					"line_id": lines[i].ID,
					"po":      lines[i].PoNumber,
				}).Error("failed to persist line update: " + err.Error())
			}
			continue
		}
		if upd.ErrorCode != models.ErrorCodeNone && deps.RunId != 0 {
			_ = models.CreateSyncRunError(ctx, deps.DB, deps.RunId, lines[i].ExternalLineId, lines[i].PoNumber, field, upd.ErrorCode, upd.ErrorLog)
		}
		count++
	}
	return count
}
