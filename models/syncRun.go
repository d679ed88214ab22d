package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// SyncRun is the audit record for one phase invocation.
type SyncRun struct {
	ID           uint       `gorm:"primary_key" json:"id"`
	Phase        SyncPhase  `gorm:"index;size:20;not null" json:"phase"`
	Status       string     `gorm:"size:20;not null" json:"status"`
	TriggeredBy  string     `gorm:"size:20" json:"triggered_by"`
	PoFilter     string     `gorm:"size:64" json:"po_filter"`
	Created      int        `json:"created"`
	Updated      int        `json:"updated"`
	Failed       int        `json:"failed"`
	ParentRunId  *uint      `gorm:"index" json:"parent_run_id"`
	StartedAt    *time.Time `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at"`
	DurationMs   int64      `json:"duration_ms"`
	ErrorMessage string     `gorm:"type:text" json:"error_message"`
	ReportURL    string     `gorm:"size:512" json:"report_url"`
	LockedAt     *time.Time `json:"locked_at"`
	LockedBy     *string    `gorm:"size:64" json:"locked_by"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// SyncRunError is one field-level failure recorded during a run.
type SyncRunError struct {
	ID             uint          `gorm:"primary_key" json:"id"`
	SyncRunId      uint          `gorm:"index;not null" json:"sync_run_id"`
	ExternalLineId string        `gorm:"size:64" json:"external_line_id"`
	PoNumber       string        `gorm:"size:64" json:"po_number"`
	Field          string        `gorm:"size:64" json:"field"`
	ErrorCode      LineErrorCode `gorm:"size:40" json:"error_code"`
	Message        string        `gorm:"type:text" json:"message"`
	CreatedAt      time.Time     `gorm:"autoCreateTime" json:"created_at"`
}

func CreateSyncRunError(ctx context.Context, db *gorm.DB, runId uint, externalLineId string, poNumber string, field string, code LineErrorCode, message string) error {
	rec := SyncRunError{
		SyncRunId:      runId,
		ExternalLineId: externalLineId,
		PoNumber:       poNumber,
		Field:          field,
		ErrorCode:      code,
		Message:        message,
	}
	return db.WithContext(ctx).Create(&rec).Error
}

func GetSyncRun(ctx context.Context, db *gorm.DB, id uint) (*SyncRun, error) {
	var run SyncRun
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func SyncRunErrors(ctx context.Context, db *gorm.DB, runId uint) ([]SyncRunError, error) {
	var errs []SyncRunError
	if err := db.WithContext(ctx).Where("sync_run_id = ?", runId).Order("id").Find(&errs).Error; err != nil {
		return nil, err
	}
	return errs, nil
}
