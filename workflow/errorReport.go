package workflow

import (
	"bytes"
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/infusionsync_backend/models"
	"bitbucket.org/mmdatafocus/infusionsync_backend/utils"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const errorReportContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportRunErrors builds the error workbook for one run, uploads it to
// object storage and records the access URL on the run row. Returns the
// URL; a run without errors returns an empty URL and uploads nothing.
func ExportRunErrors(ctx context.Context, db *gorm.DB, runId uint) (string, error) {
	errs, err := models.SyncRunErrors(ctx, db, runId)
	if err != nil {
		return "", err
	}
	if len(errs) == 0 {
		return "", nil
	}

	f := excelize.NewFile()
	sheetName := "Sheet1"
	if _, err := f.NewSheet(sheetName); err != nil {
		return "", err
	}

	// Add headers
	f.SetCellValue(sheetName, "A1", "ExternalLineId")
	f.SetCellValue(sheetName, "B1", "PoNumber")
	f.SetCellValue(sheetName, "C1", "Field")
	f.SetCellValue(sheetName, "D1", "ErrorCode")
	f.SetCellValue(sheetName, "E1", "Message")

	// Add data
	for i, e := range errs {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(sheetName, "A"+row, e.ExternalLineId)
		f.SetCellValue(sheetName, "B"+row, e.PoNumber)
		f.SetCellValue(sheetName, "C"+row, e.Field)
		f.SetCellValue(sheetName, "D"+row, string(e.ErrorCode))
		f.SetCellValue(sheetName, "E"+row, e.Message)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return "", err
	}

	objectName := fmt.Sprintf("sync-errors/run-%d-%s.xlsx", runId, utils.GenerateUniqueFilename())
	if err := utils.UploadBytesToGCS(ctx, objectName, buf.Bytes(), errorReportContentType); err != nil {
		return "", err
	}
	reportURL := utils.BuildObjectAccessURL(objectName)

	if err := db.WithContext(ctx).Model(&models.SyncRun{}).
		Where("id = ?", runId).
		Update("report_url", reportURL).Error; err != nil {
		return "", err
	}
	return reportURL, nil
}
