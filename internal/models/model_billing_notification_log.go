package models

import (
	"time"

	"gorm.io/datatypes"
)

type BillingNotificationLogStatus string

const (
	BillingNotificationLogStatusReceived     BillingNotificationLogStatus = "received"
	BillingNotificationLogStatusHandled      BillingNotificationLogStatus = "handled"
	BillingNotificationLogStatusHandleFailed BillingNotificationLogStatus = "handle_failed"
)

// BillingNotificationLog is one inbound Shopify webhook delivery.
type BillingNotificationLog struct {
	ID        string                       `gorm:"column:id;type:uuid;primary_key" json:"id"`
	WebhookID string                       `gorm:"column:webhook_id;type:varchar(128);index" json:"webhook_id"`
	Topic     string                       `gorm:"column:topic;type:varchar(64);not null" json:"topic"`
	Shop      string                       `gorm:"column:shop;type:varchar(255)" json:"shop"`
	StoreID   *string                      `gorm:"column:store_id;type:varchar(128)" json:"store_id"`
	TraceID   string                       `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	ChargeID  string                       `gorm:"column:charge_id;type:varchar(64)" json:"charge_id"`
	EventTime time.Time                    `gorm:"column:event_time" json:"event_time"`
	Data      datatypes.JSON               `gorm:"column:data;type:jsonb" json:"data"`
	Result    *datatypes.JSON              `gorm:"column:result;type:jsonb" json:"result"`
	Status    BillingNotificationLogStatus `gorm:"column:status;type:varchar(64);not null" json:"status"`
	CreatedAt time.Time                    `json:"created_at"`
	UpdatedAt time.Time                    `json:"updated_at"`
}

func (BillingNotificationLog) TableName() string { return "billing_notification_log" }
