package models

import (
	"log"

	"bitbucket.org/mmhealthfocus/bbms_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&BloodGroup{}, &BloodStock{},
		&Donor{}, &Donation{},
		&Patient{}, &Hospital{},
		&BloodRequest{}, &BloodIssue{},
		&ActivityLog{}, &NotificationLog{},
		&User{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
