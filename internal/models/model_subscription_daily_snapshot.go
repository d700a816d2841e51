package models

import (
	"time"
)

// SubscriptionDailySnapshot is a daily copy of a merchant's subscription row for analytics.
type SubscriptionDailySnapshot struct {
	ID          string     `gorm:"column:id;type:uuid;primary_key" json:"id"`
	StoreID     string     `gorm:"column:store_id;type:varchar(128);not null;uniqueIndex:idx_store_id_snapshot_date,priority:1" json:"store_id"`
	PlanID      string     `gorm:"column:plan_id;type:varchar(64);not null;default:''" json:"plan_id"`
	ChargeID    string     `gorm:"column:charge_id;type:varchar(64);not null;default:''" json:"charge_id"`
	IsActive    bool       `gorm:"column:is_active;not null" json:"is_active"`
	Entitled    bool       `gorm:"column:entitled;not null" json:"entitled"`
	RenewAt     *time.Time `gorm:"column:renew_at" json:"renew_at"`
	CancelledAt *time.Time `gorm:"column:cancelled_at" json:"cancelled_at"`
	// SnapshotDate is YYYY-MM-DD in UTC.
	SnapshotDate      string    `gorm:"column:snapshot_date;type:varchar(10);uniqueIndex:idx_store_id_snapshot_date,priority:2" json:"snapshot_date"`
	SnapshotCreatedAt time.Time `gorm:"column:snapshot_created_at" json:"snapshot_created_at"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (SubscriptionDailySnapshot) TableName() string {
	return "subscription_daily_snapshot"
}
