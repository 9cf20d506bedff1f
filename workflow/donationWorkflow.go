package workflow

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmhealthfocus/bbms_backend/config"
	"bitbucket.org/mmhealthfocus/bbms_backend/models"
	"bitbucket.org/mmhealthfocus/bbms_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordDonation runs the donation intake as one transaction: lock the donor
// row, screen eligibility against the locked row, insert the donation, stamp
// the donor's last donation date and credit the stock ledger. Either all of
// it lands or none of it does, so a donor cannot slip two donations through
// the cooldown window and the stock count never drifts from the donation
// ledger.
func RecordDonation(ctx context.Context, input *models.NewDonation) (*models.Donation, error) {
	donationDate := time.Now()
	if input.DonationDate != nil {
		donationDate = *input.DonationDate
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	var donor models.Donor
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&donor, input.DonorId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		tx.Rollback()
		return nil, utils.NewValidationError("donor_id", "invalid donor selected")
	}
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := models.CanDonate(&donor, donationDate, input.UnitsDonated); err != nil {
		tx.Rollback()
		return nil, err
	}

	donation := models.Donation{
		DonorId:          donor.ID,
		DonationDate:     donationDate,
		UnitsDonated:     input.UnitsDonated,
		Status:           models.DonationStatusCompleted,
		CollectionCenter: input.CollectionCenter,
		CollectedBy:      input.CollectedBy,
		BagNumber:        uuid.New().String(),
		Hemoglobin:       input.Hemoglobin,
		Notes:            input.Notes,
	}
	if err := tx.Create(&donation).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Model(&donor).Update("last_donation_date", donationDate).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := models.CreditBloodStock(tx, donor.BloodGroup, input.UnitsDonated); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &donation, nil
}
