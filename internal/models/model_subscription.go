package models

import (
	"time"
)

// Subscription is the single current subscription row of a merchant.
// The unique index on store_id keeps it single; writers mutate it in place
// and bump Version on every update.
type Subscription struct {
	ID       string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	StoreID  string `gorm:"column:store_id;type:varchar(128);not null;uniqueIndex" json:"store_id"`
	ChargeID string `gorm:"column:charge_id;type:varchar(64);not null;default:''" json:"charge_id"`
	PlanID   string `gorm:"column:plan_id;type:varchar(64);not null;default:''" json:"plan_id"`
	IsActive bool   `gorm:"column:is_active;not null;default:false" json:"is_active"`
	// StartedAt is set once, when the row is created.
	StartedAt time.Time  `gorm:"column:started_at" json:"started_at"`
	RenewAt   *time.Time `gorm:"column:renew_at" json:"renew_at"`
	// CancelledAt is a historical marker; once set it is never cleared.
	CancelledAt *time.Time `gorm:"column:cancelled_at" json:"cancelled_at"`
	// LastEventAt is the updated_at of the newest billing event applied.
	LastEventAt *time.Time `gorm:"column:last_event_at" json:"last_event_at"`
	Version     int64      `gorm:"column:version;not null;default:0" json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscription"
}

// Cancelled reports whether the row ever went through a cancellation.
func (s *Subscription) Cancelled() bool {
	return s != nil && s.CancelledAt != nil
}

// Entitled reports whether the merchant may use paid features at now: either
// the row is active, or it was cancelled but a renewal extended the period.
func (s *Subscription) Entitled(now time.Time) bool {
	if s == nil {
		return false
	}
	if s.IsActive {
		return true
	}
	return s.CancelledAt != nil && s.RenewAt != nil && s.RenewAt.After(now)
}
