package database

import (
	"fmt"

	"github.com/example/asiabot/pkg/models"
	"github.com/jmoiron/sqlx"
)

// PlanRepository handles database operations for subscription plans
type PlanRepository struct {
	db *sqlx.DB
}

// NewPlanRepository creates a new repository instance
func NewPlanRepository(db *sqlx.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// Create inserts a new plan and returns its ID. Plan names are not
// required to be unique.
func (r *PlanRepository) Create(plan *models.Plan) (int64, error) {
	if r.db.DriverName() == "postgres" {
		var id int64
		err := r.db.QueryRow(
			`INSERT INTO plans (name, price, max_accounts, description, duration_days)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			plan.Name, plan.Price, plan.MaxAccounts, plan.Description, plan.DurationDays,
		).Scan(&id)
		if err != nil {
			return 0, translateError(err)
		}
		return id, nil
	}

	result, err := r.db.Exec(
		`INSERT INTO plans (name, price, max_accounts, description, duration_days)
		 VALUES (?, ?, ?, ?, ?)`,
		plan.Name, plan.Price, plan.MaxAccounts, plan.Description, plan.DurationDays,
	)
	if err != nil {
		return 0, translateError(err)
	}
	return result.LastInsertId()
}

// GetAll returns all plans ordered by price
func (r *PlanRepository) GetAll() ([]models.Plan, error) {
	var plans []models.Plan
	err := r.db.Select(&plans,
		"SELECT id, name, price, max_accounts, COALESCE(description, '') AS description, duration_days FROM plans ORDER BY price ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to get plans: %v", err)
	}
	return plans, nil
}

// GetByID returns a plan by its ID
func (r *PlanRepository) GetByID(id int64) (*models.Plan, error) {
	var plan models.Plan
	err := r.db.Get(&plan, r.db.Rebind(
		"SELECT id, name, price, max_accounts, COALESCE(description, '') AS description, duration_days FROM plans WHERE id = ?"), id)
	if err != nil {
		return nil, translateError(err)
	}
	return &plan, nil
}

// Delete removes a plan. Deleting a plan still referenced by users
// surfaces ErrForeignKeyViolation.
func (r *PlanRepository) Delete(id int64) error {
	result, err := r.db.Exec(r.db.Rebind("DELETE FROM plans WHERE id = ?"), id)
	if err != nil {
		return translateError(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete plan: %v", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
