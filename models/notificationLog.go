package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmhealthfocus/bbms_backend/config"
	"bitbucket.org/mmhealthfocus/bbms_backend/utils"
)

// NotificationLog rows surface on the dashboard. Writing one is always
// fire-and-forget from the caller's point of view: a failed insert is logged
// but never fails the business operation that raised it.
type NotificationLog struct {
	ID        int                  `gorm:"primary_key" json:"id"`
	Title     string               `gorm:"size:100;not null" json:"title"`
	Message   string               `gorm:"type:text" json:"message"`
	Severity  NotificationSeverity `gorm:"type:enum('Info','Warning','Critical');default:'Info'" json:"severity"`
	IsRead    *bool                `gorm:"not null;default:false" json:"is_read"`
	CreatedAt time.Time            `gorm:"autoCreateTime;index" json:"created_at"`
}

// RaiseNotification inserts outside any caller transaction so a rollback of
// the business operation cannot be caused by (or cause) a notification.
func RaiseNotification(ctx context.Context, title string, message string, severity NotificationSeverity) {
	db := config.GetDB()
	logger := config.GetLogger()

	n := NotificationLog{
		Title:    title,
		Message:  message,
		Severity: severity,
		IsRead:   utils.NewFalse(),
	}
	if err := db.WithContext(ctx).Create(&n).Error; err != nil {
		config.LogError(logger, "models", "RaiseNotification", title, message, err)
	}
}

// RaiseNotificationOncePerDay suppresses duplicates of the same dedupe key
// for 24h via redis. Used for low-stock alerts so every debit below the
// threshold does not spam the dashboard. Without redis it degrades to
// raising every time.
func RaiseNotificationOncePerDay(ctx context.Context, dedupeKey string, title string, message string, severity NotificationSeverity) {
	claimed, err := config.SetRedisValueIfAbsent("notify:"+dedupeKey, time.Now().Format(time.RFC3339), 24*time.Hour)
	if err != nil {
		config.LogError(config.GetLogger(), "models", "RaiseNotificationOncePerDay", dedupeKey, nil, err)
		return
	}
	if !claimed {
		return
	}
	RaiseNotification(ctx, title, message, severity)
}

func GetUnreadNotifications(ctx context.Context, limit int) ([]*NotificationLog, error) {
	db := config.GetDB()
	var results []*NotificationLog

	if limit <= 0 {
		limit = 5
	}
	err := db.WithContext(ctx).
		Where("is_read = ?", false).
		Order("created_at DESC").
		Limit(limit).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func MarkNotificationRead(ctx context.Context, id int) (*NotificationLog, error) {
	db := config.GetDB()

	result, err := utils.FetchModel[NotificationLog](ctx, id)
	if err != nil {
		return nil, err
	}
	err = db.WithContext(ctx).Model(result).Update("is_read", true).Error
	if err != nil {
		return nil, err
	}
	return result, nil
}

func GetUnreadNotificationCount(ctx context.Context) (int64, error) {
	db := config.GetDB()
	var count int64
	err := db.WithContext(ctx).Model(&NotificationLog{}).Where("is_read = ?", false).Count(&count).Error
	if err != nil {
		return 0, errors.New("could not count notifications")
	}
	return count, nil
}
