package database

import (
	"fmt"
	"time"

	"github.com/example/asiabot/pkg/models"
	"github.com/jmoiron/sqlx"
)

// UserRepository handles database operations for users
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new repository instance
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = "telegram_id, username, first_name, is_admin, plan_id, plan_expiry, created_at"

// Create inserts a new user. Returns ErrUniqueViolation if the
// telegram_id is already registered; the original row is unchanged.
func (r *UserRepository) Create(user *models.User) error {
	_, err := r.db.Exec(r.db.Rebind(
		"INSERT INTO users (telegram_id, username, first_name, is_admin) VALUES (?, ?, ?, ?)"),
		user.TelegramID, user.Username, user.FirstName, user.IsAdmin)
	if err != nil {
		return translateError(err)
	}
	return nil
}

// EnsureExists registers a user on first contact. Existing rows are
// left untouched.
func (r *UserRepository) EnsureExists(telegramID int64) error {
	_, err := r.db.Exec(r.db.Rebind(
		"INSERT INTO users (telegram_id) VALUES (?) ON CONFLICT (telegram_id) DO NOTHING"), telegramID)
	if err != nil {
		return translateError(err)
	}
	return nil
}

// UpdateProfile refreshes the user's Telegram profile fields
func (r *UserRepository) UpdateProfile(telegramID int64, username, firstName string) error {
	_, err := r.db.Exec(r.db.Rebind(
		"UPDATE users SET username = ?, first_name = ? WHERE telegram_id = ?"),
		username, firstName, telegramID)
	if err != nil {
		return fmt.Errorf("failed to update profile: %v", err)
	}
	return nil
}

// GetByID returns a user by Telegram ID
func (r *UserRepository) GetByID(telegramID int64) (*models.User, error) {
	var user models.User
	err := r.db.Get(&user, r.db.Rebind(
		"SELECT "+userColumns+" FROM users WHERE telegram_id = ?"), telegramID)
	if err != nil {
		return nil, translateError(err)
	}
	return &user, nil
}

// GetAll returns all users ordered by registration time
func (r *UserRepository) GetAll() ([]models.User, error) {
	var users []models.User
	err := r.db.Select(&users, "SELECT "+userColumns+" FROM users ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %v", err)
	}
	return users, nil
}

// SetPlan assigns a subscription plan with an expiry to a user.
// Returns ErrNotFound when the user does not exist and
// ErrForeignKeyViolation when the plan does not exist.
func (r *UserRepository) SetPlan(telegramID, planID int64, expiry time.Time) error {
	result, err := r.db.Exec(r.db.Rebind(
		"UPDATE users SET plan_id = ?, plan_expiry = ? WHERE telegram_id = ?"),
		planID, expiry, telegramID)
	if err != nil {
		return translateError(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set plan: %v", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Subscription resolves the user's active plan. Users without a plan,
// or whose plan has expired, fall back to the Free limits.
func (r *UserRepository) Subscription(telegramID int64) (*models.Subscription, error) {
	var row struct {
		PlanID      *int64     `db:"plan_id"`
		PlanExpiry  *time.Time `db:"plan_expiry"`
		Name        *string    `db:"name"`
		MaxAccounts *int       `db:"max_accounts"`
	}
	err := r.db.Get(&row, r.db.Rebind(`
		SELECT u.plan_id, u.plan_expiry, p.name, p.max_accounts
		FROM users u
		LEFT JOIN plans p ON u.plan_id = p.id
		WHERE u.telegram_id = ?`), telegramID)
	if err != nil {
		return nil, translateError(err)
	}

	free := &models.Subscription{Name: "Free", MaxAccounts: 1}

	if row.PlanID == nil || row.Name == nil {
		return free, nil
	}
	if row.PlanExpiry == nil || !row.PlanExpiry.After(time.Now()) {
		free.Expired = true
		return free, nil
	}

	sub := &models.Subscription{
		PlanID:      *row.PlanID,
		Name:        *row.Name,
		MaxAccounts: 1,
	}
	if row.MaxAccounts != nil {
		sub.MaxAccounts = *row.MaxAccounts
	}
	sub.Expiry.Time = *row.PlanExpiry
	sub.Expiry.Valid = true
	return sub, nil
}

// Delete removes a user. All accounts owned by the user are removed
// atomically by the ON DELETE CASCADE constraint.
func (r *UserRepository) Delete(telegramID int64) error {
	result, err := r.db.Exec(r.db.Rebind("DELETE FROM users WHERE telegram_id = ?"), telegramID)
	if err != nil {
		return translateError(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete user: %v", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// GetAllWithAccounts returns every user together with their linked
// accounts, for the admin dashboard and export.
func (r *UserRepository) GetAllWithAccounts() ([]models.UserWithAccounts, error) {
	users, err := r.GetAll()
	if err != nil {
		return nil, err
	}

	var accounts []models.Account
	err = r.db.Select(&accounts, "SELECT "+accountColumns+" FROM accounts ORDER BY user_id, id")
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts: %v", err)
	}

	byUser := make(map[int64][]models.Account, len(users))
	for _, acc := range accounts {
		byUser[acc.UserID] = append(byUser[acc.UserID], acc)
	}

	result := make([]models.UserWithAccounts, 0, len(users))
	for _, user := range users {
		result = append(result, models.UserWithAccounts{
			User:     user,
			Accounts: byUser[user.TelegramID],
		})
	}
	return result, nil
}
