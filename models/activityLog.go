package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"bitbucket.org/mmhealthfocus/bbms_backend/config"
	"bitbucket.org/mmhealthfocus/bbms_backend/utils"
	"gorm.io/gorm"
)

// ActivityLog is the append-only audit trail. Every mutating operation writes
// one row inside the same transaction as the mutation itself.
type ActivityLog struct {
	ID          int       `gorm:"primary_key" json:"id"`
	UserId      int       `gorm:"index" json:"user_id"`
	UserName    string    `gorm:"size:100" json:"user_name"`
	Action      string    `gorm:"size:50;not null;index" json:"action"`
	TableName   string    `gorm:"size:50" json:"table_name"`
	RecordId    int       `gorm:"index" json:"record_id"`
	IpAddress   string    `gorm:"size:45" json:"ip_address"`
	Description string    `gorm:"type:text" json:"description"`
	Before      string    `gorm:"type:text" json:"before"`
	After       string    `gorm:"type:text" json:"after"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// LogActivity appends an audit row using the actor identity in ctx.
// Must be called on the same tx as the mutation it describes.
func LogActivity(tx *gorm.DB, action string, tableName string, recordId int, description string) error {
	return logActivityChange(tx, action, tableName, recordId, description, nil, nil)
}

// LogActivityChange additionally records before/after snapshots (as JSON).
func LogActivityChange(tx *gorm.DB, action string, tableName string, recordId int, description string, before interface{}, after interface{}) error {
	return logActivityChange(tx, action, tableName, recordId, description, before, after)
}

func logActivityChange(tx *gorm.DB, action string, tableName string, recordId int, description string, before interface{}, after interface{}) error {
	ctx := tx.Statement.Context

	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return errors.New("user id is required")
	}
	userName, _ := utils.GetUserNameFromContext(ctx)
	ipAddress, _ := utils.GetClientIpFromContext(ctx)

	var b, a []byte
	if before != nil {
		b, _ = json.Marshal(before)
	}
	if after != nil {
		a, _ = json.Marshal(after)
	}

	log := ActivityLog{
		UserId:      userId,
		UserName:    userName,
		Action:      action,
		TableName:   tableName,
		RecordId:    recordId,
		IpAddress:   ipAddress,
		Description: description,
		Before:      string(b),
		After:       string(a),
	}
	return tx.Create(&log).Error
}

func GetActivityLogs(ctx context.Context, action *string, tableName *string, userId *int, limit int) ([]*ActivityLog, error) {
	db := config.GetDB()
	var results []*ActivityLog

	dbCtx := db.WithContext(ctx)
	if action != nil && *action != "" {
		dbCtx = dbCtx.Where("action = ?", *action)
	}
	if tableName != nil && *tableName != "" {
		dbCtx = dbCtx.Where("table_name = ?", *tableName)
	}
	if userId != nil && *userId > 0 {
		dbCtx = dbCtx.Where("user_id = ?", *userId)
	}
	if limit <= 0 {
		limit = 50
	}
	err := dbCtx.Order("created_at DESC").Limit(limit).Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
