package models

import "database/sql"

// Plan represents a subscription tier
type Plan struct {
	ID           int64   `json:"id" db:"id"`
	Name         string  `json:"name" db:"name"`
	Price        float64 `json:"price" db:"price"`
	MaxAccounts  int     `json:"max_accounts" db:"max_accounts"` // How many linked accounts the plan allows
	Description  string  `json:"description" db:"description"`
	DurationDays int     `json:"duration_days" db:"duration_days"`
}

// Subscription is a user's resolved plan state: the plan they hold,
// or the Free fallback when none is assigned or it has expired.
type Subscription struct {
	PlanID      int64        `json:"plan_id"` // 0 for the implicit Free fallback
	Name        string       `json:"name"`
	MaxAccounts int          `json:"max_accounts"`
	Expiry      sql.NullTime `json:"expiry"`
	Expired     bool         `json:"expired"`
}
