package models

import (
	"time"

	"github.com/fatflowers/pcbuilder/pkg/types"
)

// Merchant is one installed store. Rows are never hard-deleted; uninstall
// flips Status.
type Merchant struct {
	ID             string               `gorm:"column:id;type:uuid;primary_key" json:"id"`
	StoreID        string               `gorm:"column:store_id;type:varchar(128);not null;uniqueIndex" json:"store_id"`
	Domain         string               `gorm:"column:domain;type:varchar(255);not null;uniqueIndex" json:"domain"`
	StoreName      string               `gorm:"column:store_name;type:varchar(255)" json:"store_name"`
	Email          string               `gorm:"column:email;type:varchar(255)" json:"email"`
	Currency       string               `gorm:"column:currency;type:varchar(8)" json:"currency"`
	StoreCreatedAt *time.Time           `gorm:"column:store_created_at" json:"store_created_at"`
	Status         types.MerchantStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

func (Merchant) TableName() string { return "merchant" }

// ShopSession holds the offline Admin API token of a shop.
type ShopSession struct {
	Shop        string    `gorm:"column:shop;type:varchar(255);primary_key" json:"shop"`
	AccessToken string    `gorm:"column:access_token;type:varchar(255);not null" json:"-"`
	Scope       string    `gorm:"column:scope;type:varchar(1024)" json:"scope"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (ShopSession) TableName() string { return "shop_session" }
