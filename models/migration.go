package models

import (
	"log"

	"bitbucket.org/mmdatafocus/infusionsync_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&StagedLine{},
		&SyncRun{}, &SyncRunError{},
		&ReconSettings{},
	)
	if err != nil {
		log.Println(err.Error())
	}
}
