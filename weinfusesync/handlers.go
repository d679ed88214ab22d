package weinfusesync

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/infusionsync_backend/config"
	"bitbucket.org/mmdatafocus/infusionsync_backend/models"
	"bitbucket.org/mmdatafocus/infusionsync_backend/utils"
	"bitbucket.org/mmdatafocus/infusionsync_backend/workflow"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// TriggerHandler queues one phase run. The run is published to the
// phase topic when possible; otherwise the dispatcher picks it up from
// the table.
func TriggerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TriggerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			if fields := utils.ProcessValidationErrors(err); len(fields) > 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": fields})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}

		ctx := c.Request.Context()
		db := config.GetDB()
		run := models.SyncRun{
			Phase:       models.SyncPhase(req.Phase),
			Status:      models.SyncRunStatusQueued,
			TriggeredBy: models.SyncTriggeredManual,
			PoFilter:    req.PoFilter,
		}
		if err := db.WithContext(ctx).Create(&run).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if err := PublishPhaseRun(ctx, run.ID); err != nil {
			logger := config.GetLogger()
			config.LogError(logger, "weinfusesync", "TriggerHandler", "Publish failed, run left queued for dispatcher", run.ID, err)
		}

		c.JSON(http.StatusAccepted, TriggerResponse{RunId: run.ID})
	}
}

func RunStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		runId, err := parseRunId(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		ctx := c.Request.Context()
		db := config.GetDB()
		run, err := models.GetSyncRun(ctx, db, runId)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		runErrs, err := models.SyncRunErrors(ctx, db, runId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		detail := SyncRunDetailResponse{SyncRunResponse: toRunResponse(*run)}
		for _, e := range runErrs {
			detail.Errors = append(detail.Errors, SyncErrorResponse{
				ID:             e.ID,
				ExternalLineId: e.ExternalLineId,
				PoNumber:       e.PoNumber,
				Field:          e.Field,
				ErrorCode:      string(e.ErrorCode),
				Message:        e.Message,
			})
		}
		c.JSON(http.StatusOK, detail)
	}
}

func HistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 20
		if v := c.Query("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
				limit = n
			}
		}

		db := config.GetDB().WithContext(c.Request.Context())
		q := db.Model(&models.SyncRun{}).Order("id DESC").Limit(limit)
		if phase := c.Query("phase"); phase != "" {
			if !models.SyncPhase(phase).Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown phase"})
				return
			}
			q = q.Where("phase = ?", phase)
		}

		var runs []models.SyncRun
		if err := q.Find(&runs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		resp := SyncHistoryResponse{Items: make([]SyncRunResponse, 0, len(runs))}
		for _, run := range runs {
			resp.Items = append(resp.Items, toRunResponse(run))
		}
		c.JSON(http.StatusOK, resp)
	}
}

// ErrorReportHandler returns the workbook URL for a run, building and
// uploading it on first request.
func ErrorReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		runId, err := parseRunId(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		ctx := c.Request.Context()
		db := config.GetDB()
		run, err := models.GetSyncRun(ctx, db, runId)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		reportURL := run.ReportURL
		if reportURL == "" {
			reportURL, err = workflow.ExportRunErrors(ctx, db, runId)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			if reportURL == "" {
				c.JSON(http.StatusNotFound, gin.H{"error": "run has no errors"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"reportUrl": reportURL})
	}
}

type UpdateSettingsRequest struct {
	InHouseVendor     string `json:"inHouseVendor" binding:"required"`
	CoreCategory      string `json:"coreCategory" binding:"required"`
	CoreLocationRef   string `json:"coreLocationRef" binding:"required"`
	SourceLocationRef string `json:"sourceLocationRef" binding:"required"`
	SourceSubsidiary  string `json:"sourceSubsidiary" binding:"required"`
	Incoterm          string `json:"incoterm"`
	OrderPrefix       string `json:"orderPrefix"`
	ResultLimit       int    `json:"resultLimit" binding:"omitempty,gt=0"`
}

func SettingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		settings, err := models.GetReconSettings(c.Request.Context(), config.GetDB())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, settings)
	}
}

func UpdateSettingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateSettingsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			if fields := utils.ProcessValidationErrors(err); len(fields) > 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": fields})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}

		ctx := c.Request.Context()
		db := config.GetDB()
		update := map[string]interface{}{
			"in_house_vendor":     req.InHouseVendor,
			"core_category":       req.CoreCategory,
			"core_location_ref":   req.CoreLocationRef,
			"source_location_ref": req.SourceLocationRef,
			"source_subsidiary":   req.SourceSubsidiary,
			"incoterm":            req.Incoterm,
			"order_prefix":        req.OrderPrefix,
		}
		if req.ResultLimit > 0 {
			update["result_limit"] = req.ResultLimit
		}

		var settings models.ReconSettings
		err := db.WithContext(ctx).Order("id").Take(&settings).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			settings = models.ReconSettings{
				InHouseVendor:     req.InHouseVendor,
				CoreCategory:      req.CoreCategory,
				CoreLocationRef:   req.CoreLocationRef,
				SourceLocationRef: req.SourceLocationRef,
				SourceSubsidiary:  req.SourceSubsidiary,
				Incoterm:          req.Incoterm,
				OrderPrefix:       req.OrderPrefix,
				ResultLimit:       req.ResultLimit,
			}
			err = db.WithContext(ctx).Create(&settings).Error
		case err == nil:
			err = db.WithContext(ctx).Model(&settings).Updates(update).Error
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		_ = models.ClearReconSettingsCache()
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// RetireLineHandler deactivates a staged line. Retired lines drop out of
// identity matching and phase batches but keep their history for audits.
func RetireLineHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid line id"})
			return
		}

		ctx := c.Request.Context()
		db := config.GetDB()
		var line models.StagedLine
		if err := db.WithContext(ctx).First(&line, uint(id)).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "line not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if err := models.DeactivateStagedLine(ctx, db, line.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func parseRunId(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

func toRunResponse(run models.SyncRun) SyncRunResponse {
	return SyncRunResponse{
		ID:          run.ID,
		Phase:       string(run.Phase),
		Status:      run.Status,
		PoFilter:    run.PoFilter,
		Created:     run.Created,
		Updated:     run.Updated,
		Failed:      run.Failed,
		StartedAt:   formatTime(run.StartedAt),
		FinishedAt:  formatTime(run.FinishedAt),
		DurationMs:  run.DurationMs,
		TriggeredBy: run.TriggeredBy,
		ReportURL:   run.ReportURL,
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
