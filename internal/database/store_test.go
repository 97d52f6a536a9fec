package database

import (
	"errors"
	"testing"
	"time"

	"github.com/example/asiabot/pkg/models"
	"github.com/jmoiron/sqlx"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := Connect("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mustCreateUser(t *testing.T, users *UserRepository, telegramID int64) {
	t.Helper()
	if err := users.EnsureExists(telegramID); err != nil {
		t.Fatalf("failed to create user %d: %v", telegramID, err)
	}
}

func TestConnectSeedsFreePlan(t *testing.T) {
	db := newTestDB(t)
	plans := NewPlanRepository(db)

	all, err := plans.GetAll()
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 seeded plan, got %d", len(all))
	}
	if all[0].Name != "Free" || all[0].MaxAccounts != 1 {
		t.Fatalf("unexpected seeded plan: %+v", all[0])
	}
}

func TestCreateUserDuplicateTelegramID(t *testing.T) {
	db := newTestDB(t)
	users := NewUserRepository(db)

	first := &models.User{TelegramID: 42}
	first.Username.String, first.Username.Valid = "original", true
	if err := users.Create(first); err != nil {
		t.Fatalf("first create: %v", err)
	}

	dup := &models.User{TelegramID: 42}
	dup.Username.String, dup.Username.Valid = "impostor", true
	err := users.Create(dup)
	if !errors.Is(err, ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation, got %v", err)
	}

	// The original row must be unchanged
	got, err := users.GetByID(42)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Username.String != "original" {
		t.Fatalf("original row was modified: %+v", got)
	}
}

func TestEnsureExistsIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	users := NewUserRepository(db)

	mustCreateUser(t, users, 7)
	mustCreateUser(t, users, 7)

	all, err := users.GetAll()
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 user, got %d", len(all))
	}
}

func TestCreateAccountForUnknownUser(t *testing.T) {
	db := newTestDB(t)
	accounts := NewAccountRepository(db)

	_, err := accounts.Create(&models.Account{UserID: 999, PhoneNumber: "07701234567"})
	if !errors.Is(err, ErrForeignKeyViolation) {
		t.Fatalf("expected ErrForeignKeyViolation, got %v", err)
	}

	// No row may be created by the failed insert
	all, err := accounts.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected no accounts, got %d", len(all))
	}
}

func TestPhoneNumberUniqueAcrossUsers(t *testing.T) {
	db := newTestDB(t)
	users := NewUserRepository(db)
	accounts := NewAccountRepository(db)

	mustCreateUser(t, users, 1)
	mustCreateUser(t, users, 2)

	if _, err := accounts.Create(&models.Account{UserID: 1, PhoneNumber: "07700000001"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := accounts.Create(&models.Account{UserID: 2, PhoneNumber: "07700000001"})
	if !errors.Is(err, ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation for cross-user duplicate, got %v", err)
	}
}

// Full lifecycle: plan, subscription, two accounts, duplicate phone,
// cascade delete.
func TestSubscriptionLifecycle(t *testing.T) {
	db := newTestDB(t)
	users := NewUserRepository(db)
	plans := NewPlanRepository(db)
	accounts := NewAccountRepository(db)

	planID, err := plans.Create(&models.Plan{Name: "Pro", Price: 5, MaxAccounts: 3, DurationDays: 30})
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}

	mustCreateUser(t, users, 42)
	if err := users.SetPlan(42, planID, time.Now().Add(30*24*time.Hour)); err != nil {
		t.Fatalf("SetPlan: %v", err)
	}

	sub, err := users.Subscription(42)
	if err != nil {
		t.Fatalf("Subscription: %v", err)
	}
	if sub.Name != "Pro" || sub.MaxAccounts != 3 {
		t.Fatalf("unexpected subscription: %+v", sub)
	}

	firstID, err := accounts.Create(&models.Account{UserID: 42, PhoneNumber: "+1000"})
	if err != nil {
		t.Fatalf("create first account: %v", err)
	}
	secondID, err := accounts.Create(&models.Account{UserID: 42, PhoneNumber: "+1001"})
	if err != nil {
		t.Fatalf("create second account: %v", err)
	}

	owned, err := accounts.ByUser(42)
	if err != nil {
		t.Fatalf("ByUser: %v", err)
	}
	if len(owned) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(owned))
	}

	if _, err := accounts.Create(&models.Account{UserID: 42, PhoneNumber: "+1000"}); !errors.Is(err, ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation for duplicate phone, got %v", err)
	}

	if err := users.Delete(42); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	// Both accounts vanish with the owner
	for _, id := range []int64{firstID, secondID} {
		if _, err := accounts.ByID(id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound for account %d, got %v", id, err)
		}
	}
	remaining, err := accounts.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected 0 surviving accounts, got %d", len(remaining))
	}
}

func TestSubscriptionFallsBackToFree(t *testing.T) {
	db := newTestDB(t)
	users := NewUserRepository(db)
	plans := NewPlanRepository(db)

	mustCreateUser(t, users, 10)

	sub, err := users.Subscription(10)
	if err != nil {
		t.Fatalf("Subscription: %v", err)
	}
	if sub.Name != "Free" || sub.MaxAccounts != 1 || sub.PlanID != 0 {
		t.Fatalf("expected Free fallback, got %+v", sub)
	}

	// An expired plan is treated as Free too
	planID, err := plans.Create(&models.Plan{Name: "Pro", MaxAccounts: 5, DurationDays: 30})
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	if err := users.SetPlan(10, planID, time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("SetPlan: %v", err)
	}
	sub, err = users.Subscription(10)
	if err != nil {
		t.Fatalf("Subscription: %v", err)
	}
	if sub.Name != "Free" || !sub.Expired {
		t.Fatalf("expected expired Free fallback, got %+v", sub)
	}
}

func TestSetPlanFailures(t *testing.T) {
	db := newTestDB(t)
	users := NewUserRepository(db)
	plans := NewPlanRepository(db)

	planID, err := plans.Create(&models.Plan{Name: "Pro", MaxAccounts: 3})
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}

	if err := users.SetPlan(404, planID, time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing user, got %v", err)
	}

	mustCreateUser(t, users, 11)
	if err := users.SetPlan(11, 9999, time.Now()); !errors.Is(err, ErrForeignKeyViolation) {
		t.Fatalf("expected ErrForeignKeyViolation for missing plan, got %v", err)
	}
}

func TestDeleteReferencedPlan(t *testing.T) {
	db := newTestDB(t)
	users := NewUserRepository(db)
	plans := NewPlanRepository(db)

	planID, err := plans.Create(&models.Plan{Name: "Pro", MaxAccounts: 3})
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	mustCreateUser(t, users, 12)
	if err := users.SetPlan(12, planID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SetPlan: %v", err)
	}

	if err := plans.Delete(planID); !errors.Is(err, ErrForeignKeyViolation) {
		t.Fatalf("expected ErrForeignKeyViolation, got %v", err)
	}
}

func TestUpsertRelinksPhone(t *testing.T) {
	db := newTestDB(t)
	users := NewUserRepository(db)
	accounts := NewAccountRepository(db)

	mustCreateUser(t, users, 1)
	mustCreateUser(t, users, 2)

	err := accounts.Upsert(&models.Account{UserID: 1, PhoneNumber: "07712345678", AccessToken: "old"})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// Relinking the same phone from another user rebinds ownership
	err = accounts.Upsert(&models.Account{UserID: 2, PhoneNumber: "07712345678", AccessToken: "new"})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	acc, err := accounts.ByPhone("07712345678", 2)
	if err != nil {
		t.Fatalf("ByPhone: %v", err)
	}
	if acc.AccessToken != "new" {
		t.Fatalf("tokens not replaced: %+v", acc)
	}
	if _, err := accounts.ByPhone("07712345678", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected old owner to lose the account, got %v", err)
	}

	all, err := accounts.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected a single row after relink, got %d", len(all))
	}
}

func TestUpsertWithLimit(t *testing.T) {
	db := newTestDB(t)
	users := NewUserRepository(db)
	accounts := NewAccountRepository(db)

	mustCreateUser(t, users, 5)

	if err := accounts.UpsertWithLimit(&models.Account{UserID: 5, PhoneNumber: "07700000010"}, 1); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	err := accounts.UpsertWithLimit(&models.Account{UserID: 5, PhoneNumber: "07700000011"}, 1)
	if !errors.Is(err, ErrAccountLimit) {
		t.Fatalf("expected ErrAccountLimit, got %v", err)
	}

	// Relinking the phone already held does not count against the limit
	if err := accounts.UpsertWithLimit(&models.Account{UserID: 5, PhoneNumber: "07700000010", AccessToken: "rotated"}, 1); err != nil {
		t.Fatalf("relink over limit: %v", err)
	}

	all, err := accounts.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 account, got %d", len(all))
	}
}

func TestUpdateTokensAndBalance(t *testing.T) {
	db := newTestDB(t)
	users := NewUserRepository(db)
	accounts := NewAccountRepository(db)

	mustCreateUser(t, users, 3)
	if _, err := accounts.Create(&models.Account{UserID: 3, PhoneNumber: "07700000020"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := accounts.UpdateTokens("07700000020", "acc", "ref"); err != nil {
		t.Fatalf("UpdateTokens: %v", err)
	}
	if err := accounts.UpdateBalance("07700000020", 1500); err != nil {
		t.Fatalf("UpdateBalance: %v", err)
	}

	acc, err := accounts.ByPhone("07700000020", 3)
	if err != nil {
		t.Fatalf("ByPhone: %v", err)
	}
	if acc.AccessToken != "acc" || acc.RefreshToken != "ref" {
		t.Fatalf("tokens not stored: %+v", acc)
	}
	if acc.CurrentBalance != 1500 {
		t.Fatalf("balance not stored: %+v", acc)
	}
	if !acc.TokenUpdatedAt.Valid || !acc.LastBalanceUpdate.Valid {
		t.Fatalf("store-assigned timestamps missing: %+v", acc)
	}

	if err := accounts.UpdateTokens("07799999999", "a", "b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown phone, got %v", err)
	}
	if err := accounts.UpdateBalance("07799999999", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown phone, got %v", err)
	}
}

func TestSetPrimaryReceiver(t *testing.T) {
	db := newTestDB(t)
	users := NewUserRepository(db)
	accounts := NewAccountRepository(db)

	mustCreateUser(t, users, 8)
	for _, phone := range []string{"07700000030", "07700000031"} {
		if _, err := accounts.Create(&models.Account{UserID: 8, PhoneNumber: phone}); err != nil {
			t.Fatalf("create %s: %v", phone, err)
		}
	}

	if err := accounts.SetPrimaryReceiver(8, "07700000030"); err != nil {
		t.Fatalf("SetPrimaryReceiver: %v", err)
	}
	if err := accounts.SetPrimaryReceiver(8, "07700000031"); err != nil {
		t.Fatalf("SetPrimaryReceiver: %v", err)
	}

	owned, err := accounts.ByUser(8)
	if err != nil {
		t.Fatalf("ByUser: %v", err)
	}
	var primaries []string
	for _, acc := range owned {
		if acc.IsPrimaryReceiver {
			primaries = append(primaries, acc.PhoneNumber)
		}
	}
	if len(primaries) != 1 || primaries[0] != "07700000031" {
		t.Fatalf("expected exactly one primary 07700000031, got %v", primaries)
	}

	if err := accounts.SetPrimaryReceiver(8, "07799999999"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown phone, got %v", err)
	}
}

func TestDeleteAccount(t *testing.T) {
	db := newTestDB(t)
	users := NewUserRepository(db)
	accounts := NewAccountRepository(db)

	mustCreateUser(t, users, 9)
	mustCreateUser(t, users, 10)
	if _, err := accounts.Create(&models.Account{UserID: 9, PhoneNumber: "07700000040"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Another user cannot unlink someone else's account
	deleted, err := accounts.Delete("07700000040", 10)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if deleted {
		t.Fatal("expected no deletion for foreign owner")
	}

	deleted, err = accounts.Delete("07700000040", 9)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !deleted {
		t.Fatal("expected deletion for owner")
	}
}

func TestGetAllWithAccounts(t *testing.T) {
	db := newTestDB(t)
	users := NewUserRepository(db)
	accounts := NewAccountRepository(db)

	mustCreateUser(t, users, 1)
	mustCreateUser(t, users, 2)
	if _, err := accounts.Create(&models.Account{UserID: 1, PhoneNumber: "07700000050"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := accounts.Create(&models.Account{UserID: 1, PhoneNumber: "07700000051"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	all, err := users.GetAllWithAccounts()
	if err != nil {
		t.Fatalf("GetAllWithAccounts: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 users, got %d", len(all))
	}
	byID := make(map[int64]models.UserWithAccounts)
	for _, u := range all {
		byID[u.TelegramID] = u
	}
	if len(byID[1].Accounts) != 2 {
		t.Fatalf("expected 2 accounts for user 1, got %d", len(byID[1].Accounts))
	}
	if len(byID[2].Accounts) != 0 {
		t.Fatalf("expected no accounts for user 2, got %d", len(byID[2].Accounts))
	}
}
