package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/forecast_backend/config"
	"github.com/shopspring/decimal"
)

// AuditLog is an append-only record of a value change on an Entry.
// Written synchronously BEFORE the mutation is applied; never updated
// or deleted afterwards.
type AuditLog struct {
	ID        int             `gorm:"primary_key" json:"id"`
	EntryId   int             `gorm:"index;not null" json:"entry_id"`
	PrevValue decimal.Decimal `gorm:"type:decimal(18,4)" json:"prev_value"`
	NewValue  decimal.Decimal `gorm:"type:decimal(18,4)" json:"new_value"`
	ChangedBy int             `gorm:"index" json:"changed_by"`
	ChangedAt time.Time       `gorm:"autoCreateTime" json:"changed_at"`
}

func ListAuditLogsForEntry(ctx context.Context, entryId int) ([]*AuditLog, error) {
	db := config.GetDB()
	var logs []*AuditLog
	if err := db.WithContext(ctx).Model(&AuditLog{}).
		Where("entry_id = ?", entryId).
		Order("changed_at, id").Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
