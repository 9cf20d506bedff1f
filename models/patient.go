package models

import (
	"context"
	"time"

	"bitbucket.org/mmhealthfocus/bbms_backend/config"
	"bitbucket.org/mmhealthfocus/bbms_backend/utils"
)

type Patient struct {
	ID         int       `gorm:"primary_key" json:"id"`
	Name       string    `gorm:"size:100;not null" json:"name"`
	Age        int       `gorm:"not null" json:"age"`
	Gender     Gender    `gorm:"type:enum('Male','Female','Other')" json:"gender"`
	BloodGroup string    `gorm:"size:3;not null;index" json:"blood_group"`
	Phone      string    `gorm:"size:15" json:"phone"`
	Disease    string    `gorm:"size:255" json:"disease"`
	Address    string    `gorm:"type:text" json:"address"`
	HospitalId *int      `gorm:"index" json:"hospital_id"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPatient struct {
	Name       string `json:"name" binding:"required"`
	Age        int    `json:"age"`
	Gender     string `json:"gender" binding:"required"`
	BloodGroup string `json:"blood_group" binding:"required"`
	Phone      string `json:"phone"`
	Disease    string `json:"disease"`
	Address    string `json:"address"`
	HospitalId *int   `json:"hospital_id"`
}

func (input *NewPatient) validate(ctx context.Context, id int) (Gender, error) {
	if id > 0 {
		if err := utils.ValidateResourceId[Patient](ctx, id); err != nil {
			return "", err
		}
	}
	if len(input.Name) < 2 {
		return "", utils.NewValidationError("name", "name is required and must be at least 2 characters")
	}
	if input.Age < 0 || input.Age > 120 {
		return "", utils.NewValidationError("age", "age must be between 0 and 120")
	}
	var gender Gender
	if err := gender.Parse(input.Gender); err != nil {
		return "", utils.NewValidationError("gender", "please select a valid gender")
	}
	if err := ValidateBloodGroupCode(ctx, input.BloodGroup); err != nil {
		return "", err
	}
	if input.Phone != "" && !utils.IsValidPhone(input.Phone) {
		return "", utils.NewValidationError("phone", "phone must be a valid 10-digit number")
	}
	if input.HospitalId != nil && *input.HospitalId > 0 {
		if err := utils.ValidateResourceId[Hospital](ctx, *input.HospitalId); err != nil {
			return "", utils.NewValidationError("hospital_id", "invalid hospital selected")
		}
	}
	return gender, nil
}

func CreatePatient(ctx context.Context, input *NewPatient) (*Patient, error) {
	gender, err := input.validate(ctx, 0)
	if err != nil {
		return nil, err
	}

	patient := Patient{
		Name:       input.Name,
		Age:        input.Age,
		Gender:     gender,
		BloodGroup: input.BloodGroup,
		Phone:      input.Phone,
		Disease:    input.Disease,
		Address:    input.Address,
		HospitalId: input.HospitalId,
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Create(&patient).Error
	if err != nil {
		return nil, err
	}
	return &patient, nil
}

func UpdatePatient(ctx context.Context, id int, input *NewPatient) (*Patient, error) {
	gender, err := input.validate(ctx, id)
	if err != nil {
		return nil, err
	}

	patient, err := utils.FetchModel[Patient](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(patient).Updates(map[string]interface{}{
		"Name":       input.Name,
		"Age":        input.Age,
		"Gender":     gender,
		"BloodGroup": input.BloodGroup,
		"Phone":      input.Phone,
		"Disease":    input.Disease,
		"Address":    input.Address,
		"HospitalId": input.HospitalId,
	}).Error
	if err != nil {
		return nil, err
	}
	return patient, nil
}

// DeletePatient refuses when blood requests reference the patient.
func DeletePatient(ctx context.Context, id int) (*Patient, error) {
	patient, err := utils.FetchModel[Patient](ctx, id)
	if err != nil {
		return nil, err
	}

	requests, err := utils.ResourceCountWhere[BloodRequest](ctx, "patient_id = ?", id)
	if err != nil {
		return nil, err
	}
	if requests > 0 {
		return nil, utils.NewValidationError("patient", "cannot delete patient with blood requests")
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Delete(patient).Error
	if err != nil {
		return nil, err
	}
	return patient, nil
}

func GetPatient(ctx context.Context, id int) (*Patient, error) {
	return utils.FetchModel[Patient](ctx, id)
}

func GetPatients(ctx context.Context, bloodGroup *string) ([]*Patient, error) {
	db := config.GetDB()
	var results []*Patient

	dbCtx := db.WithContext(ctx)
	if bloodGroup != nil && *bloodGroup != "" {
		dbCtx = dbCtx.Where("blood_group = ?", *bloodGroup)
	}
	err := dbCtx.Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
