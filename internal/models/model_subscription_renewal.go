package models

import "time"

// SubscriptionRenewal is an append-only audit row written for every renewal
// of a previously cancelled subscription.
type SubscriptionRenewal struct {
	ID        string    `gorm:"column:id;type:uuid;primary_key" json:"id"`
	StoreID   string    `gorm:"column:store_id;type:varchar(128);not null;index:idx_renewal_store_renewed,priority:1" json:"store_id"`
	ChargeID  string    `gorm:"column:charge_id;type:varchar(64);not null" json:"charge_id"`
	PlanID    string    `gorm:"column:plan_id;type:varchar(64);not null" json:"plan_id"`
	RenewedAt time.Time `gorm:"column:renewed_at;not null;index:idx_renewal_store_renewed,priority:2" json:"renewed_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (SubscriptionRenewal) TableName() string {
	return "subscription_renewal"
}
