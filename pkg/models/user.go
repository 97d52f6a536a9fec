package models

import (
	"database/sql"
	"time"
)

// User represents a Telegram user known to the bot
type User struct {
	TelegramID int64          `json:"telegram_id" db:"telegram_id"` // Telegram User ID, primary key
	Username   sql.NullString `json:"username" db:"username"`
	FirstName  sql.NullString `json:"first_name" db:"first_name"`
	IsAdmin    bool           `json:"is_admin" db:"is_admin"`
	PlanID     sql.NullInt64  `json:"plan_id" db:"plan_id"`         // Active subscription plan, if any
	PlanExpiry sql.NullTime   `json:"plan_expiry" db:"plan_expiry"` // When the subscription runs out
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}

// UserWithAccounts bundles a user with their linked accounts for admin views
type UserWithAccounts struct {
	User
	Accounts []Account `json:"accounts"`
}
