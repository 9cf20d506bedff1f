package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmhealthfocus/bbms_backend/config"
	"bitbucket.org/mmhealthfocus/bbms_backend/models"
	"bitbucket.org/mmhealthfocus/bbms_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func validateIssueInput(ctx context.Context, input *models.NewBloodIssue) error {
	if input.PatientId <= 0 {
		return utils.NewValidationError("patient_id", "please select a patient")
	}
	if err := utils.ValidateResourceId[models.Patient](ctx, input.PatientId); err != nil {
		return utils.NewValidationError("patient_id", "invalid patient selected")
	}
	if input.HospitalId != nil && *input.HospitalId > 0 {
		if err := utils.ValidateResourceId[models.Hospital](ctx, *input.HospitalId); err != nil {
			return utils.NewValidationError("hospital_id", "invalid hospital selected")
		}
	}
	if err := models.ValidateBloodGroupCode(ctx, input.BloodGroup); err != nil {
		return err
	}
	if input.UnitsIssued < models.MinIssueUnits || input.UnitsIssued > models.MaxIssueUnits {
		return utils.NewValidationError("units_issued",
			fmt.Sprintf("units must be between %d and %d", models.MinIssueUnits, models.MaxIssueUnits))
	}
	if strings.TrimSpace(input.IssuedTo) == "" {
		return utils.NewValidationError("issued_to", "recipient name is required")
	}
	return nil
}

// IssueBlood debits the stock ledger and writes the issuance record in one
// transaction, serialized per blood group by an advisory lock. The debit is a
// single conditional UPDATE, so sufficiency is decided at the moment stock
// actually leaves; under concurrent issuance of the last units exactly one
// caller wins and the rest get InsufficientStockError.
//
// When the issue settles an approved request the request is flipped to
// Fulfilled inside the same transaction. The issue fields, not the request
// fields, are authoritative: a group or unit mismatch against the request is
// logged, recorded in the audit trail and the issuance proceeds as entered.
func IssueBlood(ctx context.Context, input *models.NewBloodIssue) (*models.BloodIssue, error) {
	if err := validateIssueInput(ctx, input); err != nil {
		return nil, err
	}

	var mismatched *models.BloodRequest
	if input.RequestId != nil && *input.RequestId > 0 {
		request, err := models.GetBloodRequest(ctx, *input.RequestId)
		if err != nil {
			return nil, utils.NewValidationError("request_id", "invalid blood request selected")
		}
		if request.Status != models.RequestStatusApproved {
			return nil, &utils.InvalidStateError{
				Entity: "blood request",
				ID:     request.ID,
				Status: string(request.Status),
			}
		}
		if request.BloodGroup != input.BloodGroup || request.UnitsRequired != input.UnitsIssued {
			config.GetLogger().WithFields(logrus.Fields{
				"module":        "workflow",
				"funcName":      "IssueBlood",
				"request_id":    request.ID,
				"request_group": request.BloodGroup,
				"request_units": request.UnitsRequired,
				"issue_group":   input.BloodGroup,
				"issue_units":   input.UnitsIssued,
			}).Warn("issue does not match approved request; proceeding with issue values")
			mismatched = request
		}
	}

	var issue models.BloodIssue
	var stock *models.BloodStock

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Serialize issuance per group across instances. The deferred release
		// runs when this closure returns, while the connection still holds
		// the open transaction.
		if err := AcquireGroupPostingLock(tx, input.BloodGroup); err != nil {
			return err
		}
		defer ReleaseGroupPostingLock(tx, input.BloodGroup)

		var err error
		stock, err = models.DebitBloodStock(tx, input.BloodGroup, input.UnitsIssued)
		if err != nil {
			return err
		}

		issue = models.BloodIssue{
			PatientId:   input.PatientId,
			HospitalId:  input.HospitalId,
			RequestId:   input.RequestId,
			BloodGroup:  input.BloodGroup,
			UnitsIssued: input.UnitsIssued,
			IssuedTo:    input.IssuedTo,
			IssueDate:   time.Now(),
			Notes:       input.Notes,
		}
		if err := tx.Create(&issue).Error; err != nil {
			return err
		}

		if input.RequestId != nil && *input.RequestId > 0 {
			if err := models.FulfillBloodRequest(tx, *input.RequestId); err != nil {
				return err
			}
		}

		if mismatched != nil {
			description := fmt.Sprintf("Issue deviates from request %d: requested %d unit(s) %s, issued %d unit(s) %s",
				mismatched.ID, mismatched.UnitsRequired, mismatched.BloodGroup, input.UnitsIssued, input.BloodGroup)
			if err := models.LogActivity(tx, "issue_mismatch", "blood_issues", issue.ID, description); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// After commit only: an alert for a rolled-back debit would be noise.
	models.CheckLowStock(ctx, stock)

	return &issue, nil
}
