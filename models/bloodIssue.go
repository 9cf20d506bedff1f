package models

import (
	"context"
	"time"

	"bitbucket.org/mmhealthfocus/bbms_backend/config"
	"bitbucket.org/mmhealthfocus/bbms_backend/utils"
)

// BloodIssue is the immutable record of units leaving the bank. Rows are
// created only by workflow.IssueBlood inside the transaction that debits the
// stock ledger.
type BloodIssue struct {
	ID          int       `gorm:"primary_key" json:"id"`
	PatientId   int       `gorm:"not null;index" json:"patient_id"`
	HospitalId  *int      `gorm:"index" json:"hospital_id"`
	RequestId   *int      `gorm:"index" json:"request_id"`
	BloodGroup  string    `gorm:"size:3;not null;index" json:"blood_group"`
	UnitsIssued int       `gorm:"not null" json:"units_issued"`
	IssuedTo    string    `gorm:"size:100" json:"issued_to"`
	IssueDate   time.Time `gorm:"not null" json:"issue_date"`
	Notes       string    `gorm:"type:text" json:"notes"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewBloodIssue struct {
	PatientId   int    `json:"patient_id" binding:"required"`
	HospitalId  *int   `json:"hospital_id"`
	RequestId   *int   `json:"request_id"`
	BloodGroup  string `json:"blood_group" binding:"required"`
	UnitsIssued int    `json:"units_issued" binding:"required"`
	IssuedTo    string `json:"issued_to" binding:"required"`
	Notes       string `json:"notes"`
}

func GetBloodIssue(ctx context.Context, id int) (*BloodIssue, error) {
	return utils.FetchModel[BloodIssue](ctx, id)
}

func GetBloodIssues(ctx context.Context, patientId *int, bloodGroup *string) ([]*BloodIssue, error) {
	db := config.GetDB()
	var results []*BloodIssue

	dbCtx := db.WithContext(ctx)
	if patientId != nil && *patientId > 0 {
		dbCtx = dbCtx.Where("patient_id = ?", *patientId)
	}
	if bloodGroup != nil && *bloodGroup != "" {
		dbCtx = dbCtx.Where("blood_group = ?", *bloodGroup)
	}
	err := dbCtx.Order("issue_date DESC").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
