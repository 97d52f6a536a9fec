// Package recharge rotates voucher submissions through a user's
// linked accounts to top up their primary receiver.
package recharge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/example/asiabot/internal/asiacell"
	"github.com/example/asiabot/pkg/models"
	"github.com/sirupsen/logrus"
)

// Errors reported by Process
var (
	// ErrNoPrimaryReceiver indicates the user has no account flagged as primary
	ErrNoPrimaryReceiver = errors.New("no primary receiver account set")
	// ErrNoSenders indicates the user has no accounts besides the primary
	ErrNoSenders = errors.New("no sender accounts available")
	// ErrVoucherInvalid indicates the voucher was rejected as invalid or used
	ErrVoucherInvalid = errors.New("voucher invalid or already used")
	// ErrAllSendersFailed indicates every sender was tried without success
	ErrAllSendersFailed = errors.New("all senders failed")
)

// accountSource is the slice of the store the manager needs
type accountSource interface {
	ByUser(userID int64) ([]models.Account, error)
}

// carrier submits vouchers to the carrier API
type carrier interface {
	RechargeOther(ctx context.Context, voucherCode, targetNumber, accessToken string) (*asiacell.RechargeResponse, error)
}

// Manager implements the smart-recharge flow
type Manager struct {
	accounts accountSource
	client   carrier
}

// NewManager creates a manager over the given account store and carrier client
func NewManager(accounts accountSource, client carrier) *Manager {
	return &Manager{accounts: accounts, client: client}
}

// Result describes the outcome of a smart recharge
type Result struct {
	TargetNumber string   // The primary receiver that was topped up
	SenderNumber string   // The sender whose submission succeeded
	Tried        []string // Every sender tried, in order
}

// Process identifies the user's primary receiver and submits the
// voucher for it through the user's other accounts, one by one. A
// blocked or rate-limited sender moves on to the next; a rejected
// voucher aborts immediately; the first success wins.
func (m *Manager) Process(ctx context.Context, userID int64, voucherCode string) (*Result, error) {
	accounts, err := m.accounts.ByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %v", err)
	}

	var target *models.Account
	var senders []models.Account
	for i := range accounts {
		if accounts[i].IsPrimaryReceiver {
			target = &accounts[i]
		} else {
			senders = append(senders, accounts[i])
		}
	}

	if target == nil {
		return nil, ErrNoPrimaryReceiver
	}
	if len(senders) == 0 {
		return nil, ErrNoSenders
	}

	log := logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"target":  target.PhoneNumber,
	})
	log.WithField("senders", len(senders)).Info("starting smart recharge")

	result := &Result{TargetNumber: target.PhoneNumber}

	for _, sender := range senders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.Tried = append(result.Tried, sender.PhoneNumber)

		resp, err := m.client.RechargeOther(ctx, voucherCode, target.PhoneNumber, sender.AccessToken)
		if err != nil {
			if isVoucherError(err) {
				return nil, fmt.Errorf("%w: %v", ErrVoucherInvalid, err)
			}
			if isSenderBlocked(err) {
				log.WithField("sender", sender.PhoneNumber).Warn("sender blocked or limited, trying next")
				continue
			}
			log.WithField("sender", sender.PhoneNumber).WithError(err).Error("sender failed, trying next")
			continue
		}

		// Business rejections can arrive inside a 200 reply
		if message := resp.Message; message != "" {
			if containsAny(message, "invalid", "used", "not found") && strings.Contains(strings.ToLower(message), "voucher") {
				return nil, fmt.Errorf("%w: %s", ErrVoucherInvalid, message)
			}
			if containsAny(message, "block", "limit", "exceed") {
				log.WithField("sender", sender.PhoneNumber).Warn("sender blocked or limited, trying next")
				continue
			}
		}

		result.SenderNumber = sender.PhoneNumber
		log.WithField("sender", sender.PhoneNumber).Info("smart recharge succeeded")
		return result, nil
	}

	return result, fmt.Errorf("%w: tried %s", ErrAllSendersFailed, strings.Join(result.Tried, ", "))
}

// isSenderBlocked classifies errors that mean this sender should be
// skipped rather than the whole recharge aborted.
func isSenderBlocked(err error) bool {
	var apiErr *asiacell.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == 429 {
		return true
	}
	return containsAny(err.Error(), "block", "limit", "exceed", "too many")
}

// isVoucherError classifies rejections of the voucher itself
func isVoucherError(err error) bool {
	text := strings.ToLower(err.Error())
	if !strings.Contains(text, "voucher") {
		return false
	}
	return containsAny(text, "invalid", "used", "not found")
}

func containsAny(text string, needles ...string) bool {
	text = strings.ToLower(text)
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}
