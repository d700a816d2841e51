package models

import (
	"time"

	"github.com/fatflowers/pcbuilder/pkg/types"

	"gorm.io/datatypes"
)

// SubscriptionLog records every reconciler write.
// Use case: troubleshooting.
type SubscriptionLog struct {
	ID      string                            `gorm:"column:id;type:uuid;primary_key" json:"id"`
	StoreID string                            `gorm:"column:store_id;type:varchar(128);index;not null" json:"store_id"`
	Reason  types.SubscriptionChangeReason    `gorm:"column:reason;type:varchar(64);not null" json:"reason"`
	Before  datatypes.JSONType[*Subscription] `gorm:"column:before;type:jsonb;default:'null'" json:"before"`
	After   datatypes.JSONType[*Subscription] `gorm:"column:after;type:jsonb;default:'null'" json:"after"`
	// Extra carries trigger details such as trace id and gateway charge id.
	Extra     datatypes.JSONMap `gorm:"column:extra;type:jsonb;default:'{}'" json:"extra"`
	CreatedAt time.Time         `json:"created_at"`
}

func (SubscriptionLog) TableName() string {
	return "subscription_log"
}
