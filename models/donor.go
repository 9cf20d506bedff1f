package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmhealthfocus/bbms_backend/config"
	"bitbucket.org/mmhealthfocus/bbms_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Donor struct {
	ID               int             `gorm:"primary_key" json:"id"`
	Name             string          `gorm:"size:100;not null" json:"name"`
	Email            string          `gorm:"size:100" json:"email"`
	Phone            string          `gorm:"size:15;not null" json:"phone"`
	Gender           Gender          `gorm:"type:enum('Male','Female','Other')" json:"gender"`
	Age              int             `gorm:"not null" json:"age"`
	BloodGroup       string          `gorm:"size:3;not null;index" json:"blood_group"`
	Weight           decimal.Decimal `gorm:"type:decimal(5,2)" json:"weight"`
	Address          string          `gorm:"type:text" json:"address"`
	MedicalNotes     string          `gorm:"type:text" json:"medical_notes"`
	Status           DonorStatus     `gorm:"type:enum('Active','Inactive','Deferred');default:'Active';index" json:"status"`
	LastDonationDate *time.Time      `json:"last_donation_date"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewDonor struct {
	Name             string          `json:"name" binding:"required"`
	Email            string          `json:"email"`
	Age              int             `json:"age" binding:"required"`
	Gender           string          `json:"gender" binding:"required"`
	BloodGroup       string          `json:"blood_group" binding:"required"`
	Phone            string          `json:"phone" binding:"required"`
	Weight           decimal.Decimal `json:"weight"`
	LastDonationDate *time.Time      `json:"last_donation_date"`
	Address          string          `json:"address"`
	MedicalNotes     string          `json:"medical_notes"`
}

var minDonorWeight = decimal.NewFromInt(50)

// validate input for both create & update. (id = 0 for create)
func (input *NewDonor) validate(ctx context.Context, id int) (Gender, error) {
	if id > 0 {
		if err := utils.ValidateResourceId[Donor](ctx, id); err != nil {
			return "", err
		}
	}
	if len(input.Name) < 2 {
		return "", utils.NewValidationError("name", "name is required and must be at least 2 characters")
	}
	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return "", utils.NewValidationError("email", "invalid email format")
	}
	if input.Age < 18 || input.Age > 65 {
		return "", utils.NewValidationError("age", "age must be between 18 and 65 years")
	}
	var gender Gender
	if err := gender.Parse(input.Gender); err != nil {
		return "", utils.NewValidationError("gender", "please select a valid gender")
	}
	if err := ValidateBloodGroupCode(ctx, input.BloodGroup); err != nil {
		return "", err
	}
	if !utils.IsValidPhone(input.Phone) {
		return "", utils.NewValidationError("phone", "phone must be a valid 10-digit number")
	}
	if input.Weight.LessThan(minDonorWeight) {
		return "", utils.NewValidationError("weight", "weight must be at least 50 kg")
	}
	return gender, nil
}

func CreateDonor(ctx context.Context, input *NewDonor) (*Donor, error) {
	gender, err := input.validate(ctx, 0)
	if err != nil {
		return nil, err
	}

	donor := Donor{
		Name:             input.Name,
		Email:            input.Email,
		Phone:            input.Phone,
		Gender:           gender,
		Age:              input.Age,
		BloodGroup:       input.BloodGroup,
		Weight:           input.Weight,
		Address:          input.Address,
		MedicalNotes:     input.MedicalNotes,
		Status:           DonorStatusActive,
		LastDonationDate: input.LastDonationDate,
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Create(&donor).Error
	if err != nil {
		return nil, err
	}
	return &donor, nil
}

func UpdateDonor(ctx context.Context, id int, input *NewDonor) (*Donor, error) {
	gender, err := input.validate(ctx, id)
	if err != nil {
		return nil, err
	}

	donor, err := utils.FetchModel[Donor](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(donor).Updates(map[string]interface{}{
		"Name":         input.Name,
		"Email":        input.Email,
		"Phone":        input.Phone,
		"Gender":       gender,
		"Age":          input.Age,
		"BloodGroup":   input.BloodGroup,
		"Weight":       input.Weight,
		"Address":      input.Address,
		"MedicalNotes": input.MedicalNotes,
	}).Error
	if err != nil {
		return nil, err
	}
	return donor, nil
}

// DeleteDonor hard-deletes a donor with no donation history. A donor with
// history is flipped to Inactive instead, preserving referential integrity
// of the donation ledger. Returns the donor and whether it was deactivated
// rather than deleted.
func DeleteDonor(ctx context.Context, id int) (*Donor, bool, error) {
	donor, err := utils.FetchModel[Donor](ctx, id)
	if err != nil {
		return nil, false, err
	}

	donations, err := utils.ResourceCountWhere[Donation](ctx, "donor_id = ?", id)
	if err != nil {
		return nil, false, err
	}

	db := config.GetDB()
	if donations > 0 {
		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(donor).Update("status", DonorStatusInactive).Error; err != nil {
				return err
			}
			description := fmt.Sprintf("Donor deactivated (had %d donations): %s", donations, donor.Name)
			return LogActivity(tx, "donor_deactivate", "donors", donor.ID, description)
		})
		if err != nil {
			return nil, false, err
		}
		donor.Status = DonorStatusInactive
		return donor, true, nil
	}

	err = db.WithContext(ctx).Delete(donor).Error
	if err != nil {
		return nil, false, err
	}
	return donor, false, nil
}

// SetDonorStatus drives explicit status transitions (e.g. deferring a donor
// after a failed screening, or reactivating one).
func SetDonorStatus(ctx context.Context, id int, status DonorStatus) (*Donor, error) {
	donor, err := utils.FetchModel[Donor](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(donor).Update("status", status).Error; err != nil {
			return err
		}
		description := fmt.Sprintf("Donor status changed: %s -> %s (%s)", donor.Status, status, donor.Name)
		return LogActivityChange(tx, "donor_status", "donors", donor.ID, description, donor.Status, status)
	})
	if err != nil {
		return nil, err
	}
	donor.Status = status
	return donor, nil
}

func GetDonor(ctx context.Context, id int) (*Donor, error) {
	return utils.FetchModel[Donor](ctx, id)
}

func GetDonors(ctx context.Context, bloodGroup *string, status *string) ([]*Donor, error) {
	db := config.GetDB()
	var results []*Donor

	dbCtx := db.WithContext(ctx)
	if bloodGroup != nil && *bloodGroup != "" {
		dbCtx = dbCtx.Where("blood_group = ?", *bloodGroup)
	}
	if status != nil && *status != "" {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	err := dbCtx.Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
