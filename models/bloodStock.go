package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmhealthfocus/bbms_backend/config"
	"bitbucket.org/mmhealthfocus/bbms_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const DefaultMinimumThreshold = 10

// BloodStock is the per-group unit counter. units_available never goes below
// zero: the only way down is DebitBloodStock, and its guard is part of the
// UPDATE statement itself. Callers never read-modify-write this row.
type BloodStock struct {
	GroupCode        string    `gorm:"primary_key;size:3" json:"group_code"`
	UnitsAvailable   int       `gorm:"not null;default:0" json:"units_available"`
	MinimumThreshold int       `gorm:"not null;default:10" json:"minimum_threshold"`
	LastUpdated      time.Time `gorm:"autoUpdateTime" json:"last_updated"`
}

// CreditBloodStock adds units to a group inside the caller's transaction.
// Fails only on an unknown group, which is a configuration error.
func CreditBloodStock(tx *gorm.DB, groupCode string, units int) error {
	if units <= 0 {
		return utils.NewValidationError("units", "credit units must be positive")
	}

	result := tx.Exec(
		"UPDATE blood_stocks SET units_available = units_available + ?, last_updated = ? WHERE group_code = ?",
		units, time.Now(), groupCode)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.ErrorUnknownBloodGroup
	}
	return nil
}

// DebitBloodStock removes units from a group inside the caller's transaction.
// The sufficiency check and the decrement are one statement, so two debits
// racing for the last units serialize on the row lock and exactly one wins.
// On refusal nothing is mutated and the post-refusal available count is
// reported. On success the post-debit row is returned so the caller can act
// on low-stock thresholds after commit.
func DebitBloodStock(tx *gorm.DB, groupCode string, units int) (*BloodStock, error) {
	if units <= 0 {
		return nil, utils.NewValidationError("units", "debit units must be positive")
	}

	result := tx.Exec(
		"UPDATE blood_stocks SET units_available = units_available - ?, last_updated = ? WHERE group_code = ? AND units_available >= ?",
		units, time.Now(), groupCode, units)
	if result.Error != nil {
		return nil, result.Error
	}

	var stock BloodStock
	if result.RowsAffected == 0 {
		// Either the group does not exist or the guard refused the debit.
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("group_code = ?", groupCode).First(&stock).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, utils.ErrorUnknownBloodGroup
			}
			return nil, err
		}
		return nil, &utils.InsufficientStockError{
			GroupCode: groupCode,
			Required:  units,
			Available: stock.UnitsAvailable,
		}
	}

	if err := tx.Where("group_code = ?", groupCode).First(&stock).Error; err != nil {
		return nil, err
	}
	return &stock, nil
}

// GetBloodStock is a point-in-time read. It is not linked to any later
// credit/debit; check-then-act callers must rely on DebitBloodStock's guard.
func GetBloodStock(ctx context.Context, groupCode string) (*BloodStock, error) {
	db := config.GetDB()
	var stock BloodStock
	err := db.WithContext(ctx).Where("group_code = ?", groupCode).First(&stock).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorUnknownBloodGroup
		}
		return nil, err
	}
	return &stock, nil
}

func GetBloodStocks(ctx context.Context) ([]*BloodStock, error) {
	db := config.GetDB()
	var results []*BloodStock
	err := db.WithContext(ctx).Order("group_code").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// GetStockSnapshot returns group -> units_available for reporting.
func GetStockSnapshot(ctx context.Context) (map[string]int, error) {
	stocks, err := GetBloodStocks(ctx)
	if err != nil {
		return nil, err
	}
	snapshot := make(map[string]int, len(stocks))
	for _, s := range stocks {
		snapshot[s.GroupCode] = s.UnitsAvailable
	}
	return snapshot, nil
}

func GetTotalUnitsAvailable(ctx context.Context) (int, error) {
	db := config.GetDB()
	var total int
	err := db.WithContext(ctx).Model(&BloodStock{}).
		Select("COALESCE(SUM(units_available), 0)").Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

// CorrectBloodStock is the administrative set-to-value path. It bypasses the
// debit guard, refuses negative targets, and is audit-logged distinctly with
// the old and new counts.
func CorrectBloodStock(ctx context.Context, groupCode string, units int) (*BloodStock, error) {
	if units < 0 {
		return nil, utils.NewValidationError("units", "units cannot be negative")
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	defer tx.Rollback()

	var stock BloodStock
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("group_code = ?", groupCode).First(&stock).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorUnknownBloodGroup
		}
		return nil, err
	}

	oldUnits := stock.UnitsAvailable
	if err := tx.Model(&stock).Updates(map[string]interface{}{
		"units_available": units,
		"last_updated":    time.Now(),
	}).Error; err != nil {
		return nil, err
	}

	direction := "increased"
	if units < oldUnits {
		direction = "decreased"
	}
	description := fmt.Sprintf("Stock %s for %s: %d -> %d units", direction, groupCode, oldUnits, units)
	if err := LogActivityChange(tx, "stock_correction", "blood_stocks", 0, description, oldUnits, units); err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	stock.UnitsAvailable = units
	return &stock, nil
}

// CheckLowStock raises a deduplicated Warning when a group has fallen to or
// below its threshold. Called after a debiting transaction commits.
func CheckLowStock(ctx context.Context, stock *BloodStock) {
	if stock == nil || stock.UnitsAvailable > stock.MinimumThreshold {
		return
	}
	dedupeKey := fmt.Sprintf("lowstock:%s:%s", stock.GroupCode, time.Now().Format("2006-01-02"))
	message := fmt.Sprintf("Stock for %s is low: %d unit(s) remaining (threshold %d)",
		stock.GroupCode, stock.UnitsAvailable, stock.MinimumThreshold)
	RaiseNotificationOncePerDay(ctx, dedupeKey, "Low Blood Stock", message, NotificationSeverityWarning)
}
