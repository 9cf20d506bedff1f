package workflow

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmhealthfocus/bbms_backend/config"
	"bitbucket.org/mmhealthfocus/bbms_backend/models"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RebuildBloodStocks recomputes units_available for every blood group from
// the donation and issue ledgers. The online counters keep blood_stocks exact
// in normal operation; this is the recovery path after manual DB surgery.
// Guarded by a distributed lock so only one rebuild runs at a time.
func RebuildBloodStocks(ctx context.Context) error {
	locker := config.GetRedisLock()
	if locker != nil {
		lock, err := locker.Obtain(ctx, "rebuild:blood_stocks", time.Minute, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			return errors.New("another stock rebuild is already running")
		}
		if err != nil {
			return err
		}
		defer lock.Release(ctx)
	}

	logger := config.GetLogger()
	db := config.GetDB()

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		type ledgerRow struct {
			GroupCode string
			Units     int
		}

		var donated []ledgerRow
		err := tx.Raw(`
			SELECT dr.blood_group AS group_code, COALESCE(SUM(dn.units_donated), 0) AS units
			FROM donations dn
			JOIN donors dr ON dr.id = dn.donor_id
			WHERE dn.status = ?
			GROUP BY dr.blood_group
		`, models.DonationStatusCompleted).Scan(&donated).Error
		if err != nil {
			return err
		}

		var issued []ledgerRow
		err = tx.Raw(`
			SELECT blood_group AS group_code, COALESCE(SUM(units_issued), 0) AS units
			FROM blood_issues
			GROUP BY blood_group
		`).Scan(&issued).Error
		if err != nil {
			return err
		}

		totals := map[string]int{}
		for _, row := range donated {
			totals[row.GroupCode] += row.Units
		}
		for _, row := range issued {
			totals[row.GroupCode] -= row.Units
		}

		var groups []models.BloodGroup
		if err := tx.Find(&groups).Error; err != nil {
			return err
		}

		now := time.Now()
		for _, group := range groups {
			units := totals[group.GroupCode]
			if units < 0 {
				// A negative balance means the ledgers themselves disagree,
				// which the conditional debit should make impossible.
				logger.WithFields(logrus.Fields{
					"module":      "workflow",
					"funcName":    "RebuildBloodStocks",
					"blood_group": group.GroupCode,
					"computed":    units,
				}).Error("ledger recomputation produced negative stock; clamping to 0")
				units = 0
			}

			err := tx.Model(&models.BloodStock{}).
				Where("group_code = ?", group.GroupCode).
				Updates(map[string]interface{}{
					"units_available": units,
					"last_updated":    now,
				}).Error
			if err != nil {
				return err
			}
		}

		return nil
	})
}
