package models

import "time"

type SupportRequestStatus string

const (
	SupportRequestStatusOpen   SupportRequestStatus = "open"
	SupportRequestStatusMailed SupportRequestStatus = "mailed"
)

type SupportRequest struct {
	ID        string               `gorm:"column:id;type:uuid;primary_key" json:"id"`
	StoreID   string               `gorm:"column:store_id;type:varchar(128);index" json:"store_id"`
	Kind      string               `gorm:"column:kind;type:varchar(32);not null" json:"kind"`
	Subject   string               `gorm:"column:subject;type:varchar(255);not null" json:"subject"`
	Email     string               `gorm:"column:email;type:varchar(255);not null" json:"email"`
	Message   string               `gorm:"column:message;type:text;not null" json:"message"`
	ImageURL  string               `gorm:"column:image_url;type:varchar(1024)" json:"image_url"`
	Status    SupportRequestStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

func (SupportRequest) TableName() string { return "support_request" }
