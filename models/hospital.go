package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmhealthfocus/bbms_backend/config"
	"bitbucket.org/mmhealthfocus/bbms_backend/utils"
	"gorm.io/gorm"
)

type Hospital struct {
	ID            int            `gorm:"primary_key" json:"id"`
	Name          string         `gorm:"size:100;not null" json:"name"`
	Address       string         `gorm:"type:text" json:"address"`
	Phone         string         `gorm:"size:15" json:"phone"`
	ContactPerson string         `gorm:"size:100" json:"contact_person"`
	Status        HospitalStatus `gorm:"type:enum('Active','Inactive');default:'Active'" json:"status"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewHospital struct {
	Name          string `json:"name" binding:"required"`
	Address       string `json:"address"`
	Phone         string `json:"phone"`
	ContactPerson string `json:"contact_person"`
}

func (input *NewHospital) validate(ctx context.Context, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[Hospital](ctx, id); err != nil {
			return err
		}
	}
	if len(input.Name) < 2 {
		return utils.NewValidationError("name", "name is required and must be at least 2 characters")
	}
	if input.Phone != "" && !utils.IsValidPhone(input.Phone) {
		return utils.NewValidationError("phone", "phone must be a valid 10-digit number")
	}
	return utils.ValidateUnique[Hospital](ctx, "name", input.Name, id)
}

func CreateHospital(ctx context.Context, input *NewHospital) (*Hospital, error) {
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	hospital := Hospital{
		Name:          input.Name,
		Address:       input.Address,
		Phone:         input.Phone,
		ContactPerson: input.ContactPerson,
		Status:        HospitalStatusActive,
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Create(&hospital).Error
	if err != nil {
		return nil, err
	}
	return &hospital, nil
}

func UpdateHospital(ctx context.Context, id int, input *NewHospital) (*Hospital, error) {
	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	hospital, err := utils.FetchModel[Hospital](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(hospital).Updates(map[string]interface{}{
		"Name":          input.Name,
		"Address":       input.Address,
		"Phone":         input.Phone,
		"ContactPerson": input.ContactPerson,
	}).Error
	if err != nil {
		return nil, err
	}
	return hospital, nil
}

// DeleteHospital hard-deletes when nothing references the hospital, and
// flips it to Inactive otherwise. Returns whether it was deactivated.
func DeleteHospital(ctx context.Context, id int) (*Hospital, bool, error) {
	hospital, err := utils.FetchModel[Hospital](ctx, id)
	if err != nil {
		return nil, false, err
	}

	requests, err := utils.ResourceCountWhere[BloodRequest](ctx, "hospital_id = ?", id)
	if err != nil {
		return nil, false, err
	}

	db := config.GetDB()
	if requests > 0 {
		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(hospital).Update("status", HospitalStatusInactive).Error; err != nil {
				return err
			}
			description := fmt.Sprintf("Hospital deactivated (has %d requests): %s", requests, hospital.Name)
			return LogActivity(tx, "hospital_deactivate", "hospitals", hospital.ID, description)
		})
		if err != nil {
			return nil, false, err
		}
		hospital.Status = HospitalStatusInactive
		return hospital, true, nil
	}

	err = db.WithContext(ctx).Delete(hospital).Error
	if err != nil {
		return nil, false, err
	}
	return hospital, false, nil
}

func GetHospital(ctx context.Context, id int) (*Hospital, error) {
	return utils.FetchModel[Hospital](ctx, id)
}

func GetHospitals(ctx context.Context) ([]*Hospital, error) {
	db := config.GetDB()
	var results []*Hospital
	err := db.WithContext(ctx).Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
