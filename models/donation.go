package models

import (
	"context"
	"time"

	"bitbucket.org/mmhealthfocus/bbms_backend/config"
	"bitbucket.org/mmhealthfocus/bbms_backend/utils"
	"github.com/shopspring/decimal"
)

// Donation is immutable once committed. Rows are created only by
// workflow.RecordDonation inside the transaction that also updates the donor
// and credits the stock ledger.
type Donation struct {
	ID               int             `gorm:"primary_key" json:"id"`
	DonorId          int             `gorm:"not null;index" json:"donor_id"`
	DonationDate     time.Time       `gorm:"not null;index" json:"donation_date"`
	UnitsDonated     int             `gorm:"not null" json:"units_donated"`
	Status           DonationStatus  `gorm:"type:enum('Completed','Discarded');default:'Completed'" json:"status"`
	CollectionCenter string          `gorm:"size:100" json:"collection_center"`
	CollectedBy      string          `gorm:"size:100" json:"collected_by"`
	BagNumber        string          `gorm:"size:50" json:"bag_number"`
	Hemoglobin       decimal.Decimal `gorm:"type:decimal(4,1)" json:"hemoglobin"`
	Notes            string          `gorm:"type:text" json:"notes"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewDonation struct {
	DonorId          int             `json:"donor_id" binding:"required"`
	DonationDate     *time.Time      `json:"donation_date"`
	UnitsDonated     int             `json:"units_donated" binding:"required"`
	CollectionCenter string          `json:"collection_center"`
	CollectedBy      string          `json:"collected_by"`
	Hemoglobin       decimal.Decimal `json:"hemoglobin"`
	Notes            string          `json:"notes"`
}

func GetDonation(ctx context.Context, id int) (*Donation, error) {
	return utils.FetchModel[Donation](ctx, id)
}

func GetDonations(ctx context.Context, donorId *int) ([]*Donation, error) {
	db := config.GetDB()
	var results []*Donation

	dbCtx := db.WithContext(ctx)
	if donorId != nil && *donorId > 0 {
		dbCtx = dbCtx.Where("donor_id = ?", *donorId)
	}
	err := dbCtx.Order("donation_date DESC").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
