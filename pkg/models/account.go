package models

import (
	"database/sql"
)

// Account represents a linked Asiacell account owned by a user
type Account struct {
	ID                int64        `json:"id" db:"id"`
	UserID            int64        `json:"user_id" db:"user_id"` // Owning user's Telegram ID
	PhoneNumber       string       `json:"phone_number" db:"phone_number"`
	DeviceID          string       `json:"device_id" db:"device_id"` // Device UUID presented to the carrier API
	Cookie            string       `json:"cookie" db:"cookie"`       // Session cookie from the login screen
	AccessToken       string       `json:"access_token" db:"access_token"`
	RefreshToken      string       `json:"refresh_token" db:"refresh_token"`
	CurrentBalance    float64      `json:"current_balance" db:"current_balance"`
	LastBalanceUpdate sql.NullTime `json:"last_balance_update" db:"last_balance_update"`
	TokenUpdatedAt    sql.NullTime `json:"token_updated_at" db:"token_updated_at"`
	IsPrimaryReceiver bool         `json:"is_primary_receiver" db:"is_primary_receiver"` // Designated target of smart recharges
}
