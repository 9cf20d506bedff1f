package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmhealthfocus/bbms_backend/config"
	"bitbucket.org/mmhealthfocus/bbms_backend/utils"
	"gorm.io/gorm"
)

// BloodRequest status moves Pending -> Approved | Rejected, and
// Approved -> Fulfilled. Rejected and Fulfilled are terminal. All writes to
// status happen here, as guarded UPDATEs keyed on the prior status, so
// concurrent transitions on the same request have exactly one winner.
type BloodRequest struct {
	ID            int             `gorm:"primary_key" json:"id"`
	PatientId     int             `gorm:"not null;index" json:"patient_id"`
	HospitalId    *int            `gorm:"index" json:"hospital_id"`
	BloodGroup    string          `gorm:"size:3;not null;index" json:"blood_group"`
	UnitsRequired int             `gorm:"not null" json:"units_required"`
	Priority      RequestPriority `gorm:"type:enum('Normal','High','Critical');default:'Normal'" json:"priority"`
	RequiredDate  *time.Time      `json:"required_date"`
	Reason        string          `gorm:"type:text" json:"reason"`
	Status        RequestStatus   `gorm:"type:enum('Pending','Approved','Rejected','Fulfilled');default:'Pending';index" json:"status"`
	ApprovedBy    *int            `json:"approved_by"`
	ApprovedDate  *time.Time      `json:"approved_date"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBloodRequest struct {
	PatientId     int        `json:"patient_id" binding:"required"`
	HospitalId    *int       `json:"hospital_id"`
	BloodGroup    string     `json:"blood_group" binding:"required"`
	UnitsRequired int        `json:"units_required" binding:"required"`
	Priority      string     `json:"priority"`
	RequiredDate  *time.Time `json:"required_date"`
	Reason        string     `json:"reason"`
}

func (input *NewBloodRequest) validate(ctx context.Context) (RequestPriority, error) {
	if input.PatientId <= 0 {
		return "", utils.NewValidationError("patient_id", "please select a patient")
	}
	if err := utils.ValidateResourceId[Patient](ctx, input.PatientId); err != nil {
		return "", utils.NewValidationError("patient_id", "invalid patient selected")
	}
	if input.HospitalId != nil && *input.HospitalId > 0 {
		if err := utils.ValidateResourceId[Hospital](ctx, *input.HospitalId); err != nil {
			return "", utils.NewValidationError("hospital_id", "invalid hospital selected")
		}
	}
	if err := ValidateBloodGroupCode(ctx, input.BloodGroup); err != nil {
		return "", err
	}
	if input.UnitsRequired < MinRequestUnits || input.UnitsRequired > MaxRequestUnits {
		return "", utils.NewValidationError("units_required",
			fmt.Sprintf("units must be between %d and %d", MinRequestUnits, MaxRequestUnits))
	}
	priority := RequestPriorityNormal
	if input.Priority != "" {
		if err := priority.Parse(input.Priority); err != nil {
			return "", utils.NewValidationError("priority", "invalid priority level")
		}
	}
	return priority, nil
}

// CreateBloodRequest submits a request in Pending. Stock is deliberately NOT
// checked here: shortage at submission time is not a rejection reason, since
// stock may be replenished before approval. Critical submissions raise a
// dashboard notification; a notification failure never fails the submission.
func CreateBloodRequest(ctx context.Context, input *NewBloodRequest) (*BloodRequest, error) {
	priority, err := input.validate(ctx)
	if err != nil {
		return nil, err
	}

	request := BloodRequest{
		PatientId:     input.PatientId,
		HospitalId:    input.HospitalId,
		BloodGroup:    input.BloodGroup,
		UnitsRequired: input.UnitsRequired,
		Priority:      priority,
		RequiredDate:  input.RequiredDate,
		Reason:        input.Reason,
		Status:        RequestStatusPending,
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Create(&request).Error
	if err != nil {
		return nil, err
	}

	if priority == RequestPriorityCritical {
		message := fmt.Sprintf("Critical blood request for %s submitted", input.BloodGroup)
		RaiseNotification(ctx, "Critical Blood Request", message, NotificationSeverityCritical)
	}

	return &request, nil
}

// ApproveBloodRequest transitions Pending -> Approved. The stock check here
// is a point-in-time sufficiency gate only; approval does not reserve units.
// The debit at issuance remains the single source of truth, so an approved
// request can still fail issuance with insufficient stock.
func ApproveBloodRequest(ctx context.Context, id int) (*BloodRequest, error) {
	request, err := utils.FetchModel[BloodRequest](ctx, id)
	if err != nil {
		return nil, err
	}
	if request.Status != RequestStatusPending {
		return nil, &utils.InvalidStateError{Entity: "blood request", ID: id, Status: string(request.Status)}
	}

	stock, err := GetBloodStock(ctx, request.BloodGroup)
	if err != nil {
		return nil, err
	}
	if stock.UnitsAvailable < request.UnitsRequired {
		return nil, &utils.InsufficientStockError{
			GroupCode: request.BloodGroup,
			Required:  request.UnitsRequired,
			Available: stock.UnitsAvailable,
		}
	}

	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return nil, errors.New("user id is required")
	}
	now := time.Now()

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&BloodRequest{}).
			Where("id = ? AND status = ?", id, RequestStatusPending).
			Updates(map[string]interface{}{
				"status":        RequestStatusApproved,
				"approved_by":   userId,
				"approved_date": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Lost a concurrent transition race.
			return staleRequestError(tx, id)
		}

		description := fmt.Sprintf("Blood request approved: %s x %d units (request #%d)",
			request.BloodGroup, request.UnitsRequired, id)
		return LogActivity(tx, "request_approve", "blood_requests", id, description)
	})
	if err != nil {
		return nil, err
	}

	request.Status = RequestStatusApproved
	request.ApprovedBy = &userId
	request.ApprovedDate = &now
	return request, nil
}

// RejectBloodRequest transitions Pending -> Rejected (terminal).
func RejectBloodRequest(ctx context.Context, id int) (*BloodRequest, error) {
	request, err := utils.FetchModel[BloodRequest](ctx, id)
	if err != nil {
		return nil, err
	}
	if request.Status != RequestStatusPending {
		return nil, &utils.InvalidStateError{Entity: "blood request", ID: id, Status: string(request.Status)}
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&BloodRequest{}).
			Where("id = ? AND status = ?", id, RequestStatusPending).
			Update("status", RequestStatusRejected)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return staleRequestError(tx, id)
		}

		description := fmt.Sprintf("Blood request rejected: %s x %d units (request #%d)",
			request.BloodGroup, request.UnitsRequired, id)
		return LogActivity(tx, "request_reject", "blood_requests", id, description)
	})
	if err != nil {
		return nil, err
	}

	request.Status = RequestStatusRejected
	return request, nil
}

// FulfillBloodRequest transitions Approved -> Fulfilled inside the caller's
// issuance transaction. Driven only by workflow.IssueBlood; never exposed as
// a standalone operation.
func FulfillBloodRequest(tx *gorm.DB, id int) error {
	result := tx.Model(&BloodRequest{}).
		Where("id = ? AND status = ?", id, RequestStatusApproved).
		Update("status", RequestStatusFulfilled)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return staleRequestError(tx, id)
	}
	return nil
}

func staleRequestError(tx *gorm.DB, id int) error {
	var current BloodRequest
	if err := tx.Select("status").First(&current, id).Error; err != nil {
		return utils.ErrorRecordNotFound
	}
	return &utils.InvalidStateError{Entity: "blood request", ID: id, Status: string(current.Status)}
}

func GetBloodRequest(ctx context.Context, id int) (*BloodRequest, error) {
	return utils.FetchModel[BloodRequest](ctx, id)
}

func GetBloodRequests(ctx context.Context, status *string, priority *string) ([]*BloodRequest, error) {
	db := config.GetDB()
	var results []*BloodRequest

	dbCtx := db.WithContext(ctx)
	if status != nil && *status != "" {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	if priority != nil && *priority != "" {
		dbCtx = dbCtx.Where("priority = ?", *priority)
	}
	err := dbCtx.Order("created_at DESC").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
