package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/infusionsync_backend/config"
	"gorm.io/gorm"
)

// ReconSettings is the singleton configuration row for the pipeline.
// InHouseVendor lines ship from our own stock: their groups become sales
// or transfer orders instead of purchase orders.
type ReconSettings struct {
	ID                uint      `gorm:"primary_key" json:"id"`
	InHouseVendor     string    `gorm:"size:255;not null" json:"in_house_vendor"`
	CoreCategory      string    `gorm:"size:64;not null" json:"core_category"`
	CoreLocationRef   string    `gorm:"size:64;not null" json:"core_location_ref"`
	SourceLocationRef string    `gorm:"size:64;not null" json:"source_location_ref"`
	SourceSubsidiary  string    `gorm:"size:64;not null" json:"source_subsidiary"`
	Incoterm          string    `gorm:"size:64" json:"incoterm"`
	OrderPrefix       string    `gorm:"size:32" json:"order_prefix"`
	ResultLimit       int       `gorm:"default:1000" json:"result_limit"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

const reconSettingsCacheKey = "ReconSettings"

// GetReconSettings loads the singleton row, via the redis cache when warm.
func GetReconSettings(ctx context.Context, db *gorm.DB) (*ReconSettings, error) {
	var cached ReconSettings
	if exists, err := config.GetRedisObject(reconSettingsCacheKey, &cached); err == nil && exists && cached.ID != 0 {
		return &cached, nil
	}

	var settings ReconSettings
	if err := db.WithContext(ctx).Order("id").Take(&settings).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("recon settings row is missing")
		}
		return nil, err
	}
	_ = config.SetRedisObject(reconSettingsCacheKey, &settings, time.Hour)
	return &settings, nil
}

// ClearReconSettingsCache drops the cached row after an operator edit.
func ClearReconSettingsCache() error {
	return config.RemoveRedisKey(reconSettingsCacheKey)
}

func (s *ReconSettings) SearchLimit() int {
	if s.ResultLimit > 0 {
		return s.ResultLimit
	}
	return 1000
}
