package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/fatflowers/pcbuilder/pkg/types"
)

// Pricing is one plan in the catalogue. Rows are seeded from configuration.
type Pricing struct {
	ID        uint                        `gorm:"column:id;primary_key" json:"id"`
	Name      string                      `gorm:"column:name;type:varchar(128);not null" json:"name"`
	Price     decimal.Decimal             `gorm:"column:price;type:numeric(12,2);not null" json:"price"`
	Currency  string                      `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	Interval  types.PlanInterval          `gorm:"column:interval;type:varchar(32);not null" json:"interval"`
	TrialDays int                         `gorm:"column:trial_days;not null;default:0" json:"trial_days"`
	Features  datatypes.JSONSlice[string] `gorm:"column:features;type:jsonb" json:"features"`
	CreatedAt time.Time                   `json:"created_at"`
	UpdatedAt time.Time                   `json:"updated_at"`
}

func (Pricing) TableName() string { return "pricing" }

// IsFree reports whether the plan costs nothing.
func (p *Pricing) IsFree() bool {
	return p.Price.IsZero()
}
