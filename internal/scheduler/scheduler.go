// Package scheduler runs the periodic carrier jobs: token refresh and
// balance polling for every linked account.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/example/asiabot/internal/asiacell"
	"github.com/example/asiabot/pkg/models"
	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"
)

// Default job intervals
const (
	DefaultTokenRefreshHours   = 12
	DefaultBalanceCheckMinutes = 30
)

// Notifier delivers messages to the owning user. The bot implements
// this; the scheduler never depends on Telegram directly.
type Notifier interface {
	Notify(userID int64, message string) error
}

// accountStore is the slice of the database the jobs need
type accountStore interface {
	All() ([]models.Account, error)
	UpdateTokens(phoneNumber, accessToken, refreshToken string) error
	UpdateBalance(phoneNumber string, balance float64) error
}

// carrier is the slice of the Asiacell client the jobs need
type carrier interface {
	RefreshToken(ctx context.Context, refreshToken string) (*asiacell.TokenResponse, error)
	Balance(ctx context.Context, accessToken, deviceID, cookie string) (float64, error)
}

// Scheduler manages the periodic account maintenance jobs
type Scheduler struct {
	scheduler           *gocron.Scheduler
	accounts            accountStore
	client              carrier
	notifier            Notifier
	tokenRefreshHours   int
	balanceCheckMinutes int
}

// New creates a scheduler. Non-positive intervals fall back to the defaults.
func New(accounts accountStore, client carrier, notifier Notifier, tokenRefreshHours, balanceCheckMinutes int) *Scheduler {
	if tokenRefreshHours <= 0 {
		tokenRefreshHours = DefaultTokenRefreshHours
	}
	if balanceCheckMinutes <= 0 {
		balanceCheckMinutes = DefaultBalanceCheckMinutes
	}
	return &Scheduler{
		scheduler:           gocron.NewScheduler(time.UTC),
		accounts:            accounts,
		client:              client,
		notifier:            notifier,
		tokenRefreshHours:   tokenRefreshHours,
		balanceCheckMinutes: balanceCheckMinutes,
	}
}

// Start begins running all scheduled jobs in the background
func (s *Scheduler) Start() {
	s.scheduler.Every(s.tokenRefreshHours).Hours().Do(s.RefreshAllTokens)
	s.scheduler.Every(s.balanceCheckMinutes).Minutes().Do(s.CheckBalances)
	s.scheduler.StartAsync()
	logrus.WithFields(logrus.Fields{
		"token_refresh_hours":   s.tokenRefreshHours,
		"balance_check_minutes": s.balanceCheckMinutes,
	}).Info("scheduler started")
}

// Stop terminates all scheduled jobs
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// RefreshAllTokens rotates the token pair of every stored account.
// A failed refresh leaves the row untouched and warns the owner that
// their session expired.
func (s *Scheduler) RefreshAllTokens() {
	logrus.Info("starting token refresh job")
	accounts, err := s.accounts.All()
	if err != nil {
		logrus.WithError(err).Error("token refresh job failed to load accounts")
		return
	}

	ctx := context.Background()
	for _, account := range accounts {
		log := logrus.WithField("phone", account.PhoneNumber)

		tokens, err := s.client.RefreshToken(ctx, account.RefreshToken)
		if err != nil || tokens.AccessToken == "" {
			if err != nil {
				log.WithError(err).Error("failed to refresh token")
			} else {
				log.WithField("message", tokens.Message).Warn("carrier refused token refresh")
			}
			s.notify(account.UserID, fmt.Sprintf("⚠️ Session expired for %s. Please login again.", account.PhoneNumber))
			continue
		}

		if err := s.accounts.UpdateTokens(account.PhoneNumber, tokens.AccessToken, tokens.RefreshToken); err != nil {
			log.WithError(err).Error("failed to store rotated tokens")
			continue
		}
		log.Info("tokens refreshed")
	}
}

// CheckBalances polls the balance of every stored account and persists
// it when it changed, telling the owner about the delta.
func (s *Scheduler) CheckBalances() {
	logrus.Info("starting balance check job")
	accounts, err := s.accounts.All()
	if err != nil {
		logrus.WithError(err).Error("balance check job failed to load accounts")
		return
	}

	ctx := context.Background()
	for _, account := range accounts {
		log := logrus.WithField("phone", account.PhoneNumber)

		balance, err := s.client.Balance(ctx, account.AccessToken, account.DeviceID, account.Cookie)
		if err != nil {
			log.WithError(err).Error("failed to check balance")
			continue
		}
		if balance == account.CurrentBalance {
			continue
		}

		diff := balance - account.CurrentBalance
		if diff > 0 {
			s.notify(account.UserID, fmt.Sprintf("💰 Balance added for %s: +%.2f IQD", account.PhoneNumber, diff))
		} else {
			s.notify(account.UserID, fmt.Sprintf("💸 Balance deducted for %s: %.2f IQD", account.PhoneNumber, diff))
		}

		if err := s.accounts.UpdateBalance(account.PhoneNumber, balance); err != nil {
			log.WithError(err).Error("failed to store balance")
			continue
		}
		log.WithField("balance", balance).Info("balance updated")
	}
}

func (s *Scheduler) notify(userID int64, message string) {
	if err := s.notifier.Notify(userID, message); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("failed to notify user")
	}
}
