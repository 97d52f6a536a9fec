// Package bot implements the Telegram surface: account linking,
// balance checks, smart recharge and the admin commands.
package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/asiabot/internal/asiacell"
	"github.com/example/asiabot/internal/config"
	"github.com/example/asiabot/internal/database"
	"github.com/example/asiabot/internal/recharge"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// Conversation states
const (
	stateAwaitingPhone   = "awaiting_phone"
	stateAwaitingOTP     = "awaiting_otp"
	stateAwaitingVoucher = "awaiting_voucher"
)

// userState tracks a user's ongoing conversation with the bot
type userState struct {
	State       string
	PhoneNumber string
	DeviceID    string
	Cookie      string
	PID         string
	StartedAt   time.Time
}

// Bot is the Telegram bot application
type Bot struct {
	api      *tgbotapi.BotAPI
	cfg      *config.Config
	users    *database.UserRepository
	plans    *database.PlanRepository
	accounts *database.AccountRepository
	client   *asiacell.Client
	recharge *recharge.Manager

	mu     sync.Mutex
	states map[int64]*userState
}

// New creates the bot and authorizes against the Telegram API
func New(cfg *config.Config, db *sqlx.DB, client *asiacell.Client) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("unable to create bot: %v", err)
	}
	logrus.WithField("username", api.Self.UserName).Info("authorized on Telegram")

	accounts := database.NewAccountRepository(db)
	return &Bot{
		api:      api,
		cfg:      cfg,
		users:    database.NewUserRepository(db),
		plans:    database.NewPlanRepository(db),
		accounts: accounts,
		client:   client,
		recharge: recharge.NewManager(accounts, client),
		states:   make(map[int64]*userState),
	}, nil
}

// Start consumes updates until the context is cancelled. Each update
// is handled in its own goroutine; conversation state is guarded by
// the bot's mutex.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60

	updates := b.api.GetUpdatesChan(updateConfig)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

// Notify implements scheduler.Notifier
func (b *Bot) Notify(userID int64, message string) error {
	_, err := b.api.Send(tgbotapi.NewMessage(userID, message))
	return err
}

// handleUpdate dispatches a single Telegram update
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("panic", r).Error("recovered from handler panic")
		}
	}()

	if update.CallbackQuery != nil {
		b.handleCallbackQuery(ctx, update.CallbackQuery)
		return
	}
	if update.Message == nil {
		return
	}

	message := update.Message
	userID := message.From.ID

	if err := b.users.EnsureExists(userID); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("failed to register user")
	}
	if message.From.UserName != "" || message.From.FirstName != "" {
		if err := b.users.UpdateProfile(userID, message.From.UserName, message.From.FirstName); err != nil {
			logrus.WithError(err).WithField("user_id", userID).Error("failed to update profile")
		}
	}

	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	// Non-command text feeds the user's ongoing conversation, if any
	b.mu.Lock()
	state, exists := b.states[userID]
	b.mu.Unlock()
	if !exists {
		b.reply(message.Chat.ID, "I don't understand. Use /help to see what I can do.")
		return
	}

	switch state.State {
	case stateAwaitingPhone:
		b.handlePhoneInput(ctx, message)
	case stateAwaitingOTP:
		b.handleOTPInput(ctx, message, state)
	case stateAwaitingVoucher:
		b.handleVoucherInput(ctx, message)
	default:
		b.clearState(userID)
		b.reply(message.Chat.ID, "I don't understand. Use /help to see what I can do.")
	}
}

// handleCommand routes slash commands
func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleStart(message)
	case "help":
		b.handleHelp(message)
	case "add_account":
		b.handleAddAccount(message)
	case "accounts":
		b.handleAccounts(message)
	case "recharge":
		b.handleRecharge(message)
	case "plans":
		b.handlePlans(message)
	case "subscription":
		b.handleSubscription(message)
	case "cancel":
		b.handleCancel(message)
	case "admin":
		b.requireAdmin(message, b.handleAdminDashboard)
	case "addplan":
		b.requireAdmin(message, b.handleAddPlan)
	case "delplan":
		b.requireAdmin(message, b.handleDelPlan)
	case "grant":
		b.requireAdmin(message, b.handleGrant)
	case "export":
		b.requireAdmin(message, b.handleExport)
	default:
		b.reply(message.Chat.ID, "Unknown command. Use /help to see what I can do.")
	}
}

// requireAdmin runs the handler only for the configured admin
func (b *Bot) requireAdmin(message *tgbotapi.Message, handler func(*tgbotapi.Message)) {
	if !b.cfg.IsAdmin(message.From.ID) {
		b.reply(message.Chat.ID, "⛔ Unauthorized access.")
		return
	}
	handler(message)
}

// setState replaces the user's conversation state
func (b *Bot) setState(userID int64, state *userState) {
	state.StartedAt = time.Now()
	b.mu.Lock()
	b.states[userID] = state
	b.mu.Unlock()
}

// clearState ends the user's conversation
func (b *Bot) clearState(userID int64) {
	b.mu.Lock()
	delete(b.states, userID)
	b.mu.Unlock()
}

// reply sends a plain text message
func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		logrus.WithError(err).WithField("chat_id", chatID).Error("failed to send message")
	}
}

// replyMarkdown sends a Markdown-formatted message
func (b *Bot) replyMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(msg); err != nil {
		logrus.WithError(err).WithField("chat_id", chatID).Error("failed to send message")
	}
}
