package models

import (
	"context"

	"bitbucket.org/mmhealthfocus/bbms_backend/config"
	"bitbucket.org/mmhealthfocus/bbms_backend/utils"
)

// BloodGroup is fixed ABO/Rh reference data. Rows are seeded at migration
// and never mutated by business operations.
type BloodGroup struct {
	GroupCode   string `gorm:"primary_key;size:3" json:"group_code"`
	Description string `gorm:"size:100" json:"description"`
}

var bloodGroupSeed = []BloodGroup{
	{GroupCode: "A+", Description: "A Positive"},
	{GroupCode: "A-", Description: "A Negative"},
	{GroupCode: "B+", Description: "B Positive"},
	{GroupCode: "B-", Description: "B Negative"},
	{GroupCode: "AB+", Description: "AB Positive"},
	{GroupCode: "AB-", Description: "AB Negative"},
	{GroupCode: "O+", Description: "O Positive"},
	{GroupCode: "O-", Description: "O Negative"},
}

// SeedBloodGroups inserts the eight reference groups and one stock row per
// group. Existing rows are left alone, so this is safe to run on every boot.
func SeedBloodGroups() error {
	db := config.GetDB()
	for _, g := range bloodGroupSeed {
		if err := db.Where("group_code = ?", g.GroupCode).FirstOrCreate(&BloodGroup{}, g).Error; err != nil {
			return err
		}
		stock := BloodStock{
			GroupCode:        g.GroupCode,
			UnitsAvailable:   0,
			MinimumThreshold: DefaultMinimumThreshold,
		}
		if err := db.Where("group_code = ?", g.GroupCode).FirstOrCreate(&BloodStock{}, stock).Error; err != nil {
			return err
		}
	}
	return nil
}

func GetBloodGroups(ctx context.Context) ([]*BloodGroup, error) {
	db := config.GetDB()
	var results []*BloodGroup
	err := db.WithContext(ctx).Order("group_code").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ValidateBloodGroupCode rejects codes that are not seeded reference data.
func ValidateBloodGroupCode(ctx context.Context, groupCode string) error {
	if groupCode == "" {
		return utils.NewValidationError("blood_group", "blood group is required")
	}
	count, err := utils.ResourceCountWhere[BloodGroup](ctx, "group_code = ?", groupCode)
	if err != nil {
		return err
	}
	if count <= 0 {
		return utils.NewValidationError("blood_group", "invalid blood group")
	}
	return nil
}
