package models

import (
	"time"

	"github.com/fatflowers/pcbuilder/pkg/types"
)

// Widget is a named PC builder configured by a store.
type Widget struct {
	ID        string             `gorm:"column:id;type:uuid;primary_key" json:"id"`
	StoreID   string             `gorm:"column:store_id;type:varchar(128);not null;index" json:"store_id"`
	Name      string             `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Status    types.WidgetStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	Steps     []WidgetStep       `gorm:"foreignKey:WidgetID" json:"steps"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func (Widget) TableName() string { return "widget" }

// WidgetStep is one ordered step of a widget; Position is zero-based and
// contiguous after every save.
type WidgetStep struct {
	ID           string    `gorm:"column:id;type:uuid;primary_key" json:"id"`
	WidgetID     string    `gorm:"column:widget_id;type:uuid;not null;index:idx_widget_position,priority:1" json:"widget_id"`
	Position     int       `gorm:"column:position;not null;index:idx_widget_position,priority:2" json:"position"`
	Title        string    `gorm:"column:title;type:varchar(255);not null" json:"title"`
	Description  string    `gorm:"column:description;type:text" json:"description"`
	CollectionID string    `gorm:"column:collection_id;type:varchar(128)" json:"collection_id"`
	ImageURL     string    `gorm:"column:image_url;type:varchar(1024)" json:"image_url"`
	Required     bool      `gorm:"column:required;not null;default:false" json:"required"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (WidgetStep) TableName() string { return "widget_step" }
