package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireGroupPostingLock serializes issuance per blood group across
// instances using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB that will do the posting transaction.
func AcquireGroupPostingLock(tx *gorm.DB, groupCode string) error {
	lockName := fmt.Sprintf("issue:%s", groupCode)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire issue lock for blood_group=%s", groupCode)
	}
	return nil
}

func ReleaseGroupPostingLock(tx *gorm.DB, groupCode string) {
	lockName := fmt.Sprintf("issue:%s", groupCode)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
