package database

import (
	"fmt"

	"github.com/example/asiabot/pkg/models"
	"github.com/jmoiron/sqlx"
)

// AccountRepository handles database operations for linked accounts
type AccountRepository struct {
	db *sqlx.DB
}

// NewAccountRepository creates a new repository instance
func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, user_id, phone_number,
	COALESCE(device_id, '') AS device_id,
	COALESCE(cookie, '') AS cookie,
	COALESCE(access_token, '') AS access_token,
	COALESCE(refresh_token, '') AS refresh_token,
	COALESCE(current_balance, 0.0) AS current_balance,
	last_balance_update, token_updated_at,
	COALESCE(is_primary_receiver, false) AS is_primary_receiver`

const upsertAccountQuery = `
	INSERT INTO accounts (
		user_id, phone_number, device_id, cookie,
		access_token, refresh_token, token_updated_at
	) VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT (phone_number) DO UPDATE SET
		user_id = excluded.user_id,
		device_id = excluded.device_id,
		cookie = excluded.cookie,
		access_token = excluded.access_token,
		refresh_token = excluded.refresh_token,
		token_updated_at = excluded.token_updated_at`

// Create inserts a new account and returns its ID. Returns
// ErrUniqueViolation if the phone number is already linked anywhere,
// and ErrForeignKeyViolation if the owning user does not exist.
func (r *AccountRepository) Create(acc *models.Account) (int64, error) {
	if r.db.DriverName() == "postgres" {
		var id int64
		err := r.db.QueryRow(
			`INSERT INTO accounts (user_id, phone_number, device_id, cookie, access_token, refresh_token, token_updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, CURRENT_TIMESTAMP) RETURNING id`,
			acc.UserID, acc.PhoneNumber, acc.DeviceID, acc.Cookie, acc.AccessToken, acc.RefreshToken,
		).Scan(&id)
		if err != nil {
			return 0, translateError(err)
		}
		return id, nil
	}

	result, err := r.db.Exec(
		`INSERT INTO accounts (user_id, phone_number, device_id, cookie, access_token, refresh_token, token_updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		acc.UserID, acc.PhoneNumber, acc.DeviceID, acc.Cookie, acc.AccessToken, acc.RefreshToken,
	)
	if err != nil {
		return 0, translateError(err)
	}
	return result.LastInsertId()
}

// Upsert links an account, or relinks it when the phone number is
// already known: ownership moves to the given user and the stored
// session material is replaced. This is the login flow's save path.
func (r *AccountRepository) Upsert(acc *models.Account) error {
	_, err := r.db.Exec(r.db.Rebind(upsertAccountQuery),
		acc.UserID, acc.PhoneNumber, acc.DeviceID, acc.Cookie, acc.AccessToken, acc.RefreshToken)
	if err != nil {
		return translateError(err)
	}
	return nil
}

// UpsertWithLimit performs Upsert after checking the user's plan limit
// inside the same transaction. Relinking an already-owned phone does
// not count against the limit. Returns ErrAccountLimit when the user
// already holds maxAccounts other accounts.
func (r *AccountRepository) UpsertWithLimit(acc *models.Account, maxAccounts int) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	var count int
	err = tx.Get(&count, tx.Rebind(
		"SELECT COUNT(*) FROM accounts WHERE user_id = ? AND phone_number != ?"),
		acc.UserID, acc.PhoneNumber)
	if err != nil {
		return fmt.Errorf("failed to count accounts: %v", err)
	}
	if count >= maxAccounts {
		return ErrAccountLimit
	}

	_, err = tx.Exec(tx.Rebind(upsertAccountQuery),
		acc.UserID, acc.PhoneNumber, acc.DeviceID, acc.Cookie, acc.AccessToken, acc.RefreshToken)
	if err != nil {
		return translateError(err)
	}

	return tx.Commit()
}

// ByUser returns all accounts linked by a user
func (r *AccountRepository) ByUser(userID int64) ([]models.Account, error) {
	var accounts []models.Account
	err := r.db.Select(&accounts, r.db.Rebind(
		"SELECT "+accountColumns+" FROM accounts WHERE user_id = ? ORDER BY id"), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user accounts: %v", err)
	}
	return accounts, nil
}

// All returns every account in the store
func (r *AccountRepository) All() ([]models.Account, error) {
	var accounts []models.Account
	err := r.db.Select(&accounts, "SELECT "+accountColumns+" FROM accounts ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts: %v", err)
	}
	return accounts, nil
}

// ByID returns an account by its surrogate key
func (r *AccountRepository) ByID(id int64) (*models.Account, error) {
	var acc models.Account
	err := r.db.Get(&acc, r.db.Rebind(
		"SELECT "+accountColumns+" FROM accounts WHERE id = ?"), id)
	if err != nil {
		return nil, translateError(err)
	}
	return &acc, nil
}

// ByPhone returns an account by phone number, scoped to its owner
func (r *AccountRepository) ByPhone(phoneNumber string, userID int64) (*models.Account, error) {
	var acc models.Account
	err := r.db.Get(&acc, r.db.Rebind(
		"SELECT "+accountColumns+" FROM accounts WHERE phone_number = ? AND user_id = ?"),
		phoneNumber, userID)
	if err != nil {
		return nil, translateError(err)
	}
	return &acc, nil
}

// UpdateTokens stores rotated tokens for an account. The
// token_updated_at stamp is assigned by the store, not the caller.
func (r *AccountRepository) UpdateTokens(phoneNumber, accessToken, refreshToken string) error {
	result, err := r.db.Exec(r.db.Rebind(
		`UPDATE accounts
		 SET access_token = ?, refresh_token = ?, token_updated_at = CURRENT_TIMESTAMP
		 WHERE phone_number = ?`),
		accessToken, refreshToken, phoneNumber)
	if err != nil {
		return fmt.Errorf("failed to update tokens: %v", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update tokens: %v", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateBalance stores a freshly polled balance for an account. The
// last_balance_update stamp is assigned by the store.
func (r *AccountRepository) UpdateBalance(phoneNumber string, balance float64) error {
	result, err := r.db.Exec(r.db.Rebind(
		`UPDATE accounts
		 SET current_balance = ?, last_balance_update = CURRENT_TIMESTAMP
		 WHERE phone_number = ?`),
		balance, phoneNumber)
	if err != nil {
		return fmt.Errorf("failed to update balance: %v", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update balance: %v", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an account if it belongs to the user. Reports whether
// a row was deleted.
func (r *AccountRepository) Delete(phoneNumber string, userID int64) (bool, error) {
	result, err := r.db.Exec(r.db.Rebind(
		"DELETE FROM accounts WHERE phone_number = ? AND user_id = ?"), phoneNumber, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete account: %v", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete account: %v", err)
	}
	return rows > 0, nil
}

// SetPrimaryReceiver marks one of the user's accounts as the primary
// receiver. The clear and the set run in one transaction so at most one
// primary per user is ever observable.
func (r *AccountRepository) SetPrimaryReceiver(userID int64, phoneNumber string) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(tx.Rebind(
		"UPDATE accounts SET is_primary_receiver = false WHERE user_id = ?"), userID)
	if err != nil {
		return fmt.Errorf("failed to clear primary receiver: %v", err)
	}

	result, err := tx.Exec(tx.Rebind(
		"UPDATE accounts SET is_primary_receiver = true WHERE user_id = ? AND phone_number = ?"),
		userID, phoneNumber)
	if err != nil {
		return fmt.Errorf("failed to set primary receiver: %v", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set primary receiver: %v", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}
