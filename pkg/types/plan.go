package types

import "github.com/shopspring/decimal"

// PlanInterval mirrors Shopify's AppPricingInterval.
type PlanInterval string

const (
	PlanIntervalEvery30Days PlanInterval = "EVERY_30_DAYS"
	PlanIntervalAnnual      PlanInterval = "ANNUAL"
)

// PlanSeed is a pricing plan declared in configuration and upserted into the
// pricing table on start.
type PlanSeed struct {
	ID        uint            `json:"id" mapstructure:"id"`
	Name      string          `json:"name" mapstructure:"name"`
	Price     decimal.Decimal `json:"price" mapstructure:"price"`
	Currency  string          `json:"currency" mapstructure:"currency"`
	Interval  PlanInterval    `json:"interval" mapstructure:"interval"`
	TrialDays int             `json:"trial_days" mapstructure:"trial_days"`
	Features  []string        `json:"features" mapstructure:"features"`
}

func (p *PlanSeed) IsFree() bool {
	return p.Price.IsZero()
}
