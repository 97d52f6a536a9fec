package bot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/example/asiabot/internal/asiacell"
	"github.com/example/asiabot/internal/database"
	"github.com/example/asiabot/internal/recharge"
	"github.com/example/asiabot/internal/voucher"
	"github.com/example/asiabot/pkg/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Asiacell numbers are 077 plus eight digits
var phonePattern = regexp.MustCompile(`^077\d{8}$`)

func (b *Bot) handleStart(message *tgbotapi.Message) {
	welcome := `Welcome to Asiabot! 📱

I manage your Asiacell accounts:
/add_account - Link an account by phone number
/accounts - Your linked accounts
/recharge - Smart recharge your primary account
/plans - Available subscription plans
/subscription - Your current plan
/help - Full command list`
	b.reply(message.Chat.ID, welcome)
}

func (b *Bot) handleHelp(message *tgbotapi.Message) {
	help := `Available commands:

/add_account - Link an Asiacell account (phone + SMS code)
/accounts - List linked accounts, unlink or set primary
/recharge - Submit a voucher for your primary account
/plans - Subscription plan catalog
/subscription - Your active plan and expiry
/cancel - Abort the current operation`
	b.reply(message.Chat.ID, help)
}

func (b *Bot) handleCancel(message *tgbotapi.Message) {
	b.clearState(message.From.ID)
	b.reply(message.Chat.ID, "Operation cancelled.")
}

// handleAddAccount begins the account linking conversation
func (b *Bot) handleAddAccount(message *tgbotapi.Message) {
	userID := message.From.ID

	sub, err := b.users.Subscription(userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("failed to resolve subscription")
		b.reply(message.Chat.ID, "❌ Something went wrong. Please try again.")
		return
	}
	linked, err := b.accounts.ByUser(userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("failed to load accounts")
		b.reply(message.Chat.ID, "❌ Something went wrong. Please try again.")
		return
	}
	if len(linked) >= sub.MaxAccounts {
		b.reply(message.Chat.ID, fmt.Sprintf(
			"⚠️ Your %s plan allows %d linked account(s). Upgrade your plan to link more.",
			sub.Name, sub.MaxAccounts))
		return
	}

	b.setState(userID, &userState{State: stateAwaitingPhone})
	b.reply(message.Chat.ID, "Please send your Asiacell number (077xxxxxxxx).")
}

// handlePhoneInput validates the number and requests an OTP
func (b *Bot) handlePhoneInput(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	phoneNumber := strings.TrimSpace(message.Text)

	if !phonePattern.MatchString(phoneNumber) {
		b.reply(message.Chat.ID, "Invalid format. Please send a valid number starting with 077.")
		return
	}

	b.reply(message.Chat.ID, "Connecting...")

	cookie, err := b.client.LoginCookie(ctx)
	if err != nil {
		logrus.WithError(err).Error("failed to get login cookie")
		b.clearState(userID)
		b.reply(message.Chat.ID, "Failed to reach Asiacell. Please try again later.")
		return
	}

	deviceID := asiacell.NewDeviceID()
	login, err := b.client.SendLoginCode(ctx, deviceID, cookie, phoneNumber)
	if err != nil {
		logrus.WithError(err).WithField("phone", phoneNumber).Error("failed to send login code")
		b.clearState(userID)
		b.reply(message.Chat.ID, "Failed to send the login code. Please try again later.")
		return
	}

	pid, err := asiacell.ExtractPID(login.NextURL)
	if err != nil {
		logrus.WithError(err).WithField("phone", phoneNumber).Error("unexpected login response")
		b.clearState(userID)
		b.reply(message.Chat.ID, "Unexpected reply from Asiacell. Please try again later.")
		return
	}

	b.setState(userID, &userState{
		State:       stateAwaitingOTP,
		PhoneNumber: phoneNumber,
		DeviceID:    deviceID,
		Cookie:      cookie,
		PID:         pid,
	})
	b.reply(message.Chat.ID, "Code sent. Please send the OTP you received by SMS.")
}

// handleOTPInput validates the SMS code and saves the account
func (b *Bot) handleOTPInput(ctx context.Context, message *tgbotapi.Message, state *userState) {
	userID := message.From.ID
	otpCode := strings.TrimSpace(message.Text)

	b.reply(message.Chat.ID, "Verifying OTP...")

	tokens, err := b.client.ValidateSMSCode(ctx, state.Cookie, state.DeviceID, state.PID, otpCode)
	if err != nil {
		logrus.WithError(err).WithField("phone", state.PhoneNumber).Error("OTP validation failed")
		b.clearState(userID)
		b.reply(message.Chat.ID, "An error occurred during verification. Please try /add_account again.")
		return
	}
	if tokens.AccessToken == "" {
		reason := tokens.Message
		if reason == "" {
			reason = "Invalid OTP or failed to validate."
		}
		b.clearState(userID)
		b.reply(message.Chat.ID, "Login failed: "+reason)
		return
	}

	sub, err := b.users.Subscription(userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("failed to resolve subscription")
		b.clearState(userID)
		b.reply(message.Chat.ID, "❌ Something went wrong. Please try again.")
		return
	}

	account := &models.Account{
		UserID:       userID,
		PhoneNumber:  state.PhoneNumber,
		DeviceID:     state.DeviceID,
		Cookie:       state.Cookie,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}
	err = b.accounts.UpsertWithLimit(account, sub.MaxAccounts)
	b.clearState(userID)
	if errors.Is(err, database.ErrAccountLimit) {
		b.reply(message.Chat.ID, fmt.Sprintf(
			"⚠️ Your %s plan allows %d linked account(s). Upgrade your plan to link more.",
			sub.Name, sub.MaxAccounts))
		return
	}
	if err != nil {
		logrus.WithError(err).WithField("phone", state.PhoneNumber).Error("failed to save account")
		b.reply(message.Chat.ID, "❌ Failed to save the account. Please try again.")
		return
	}

	logrus.WithFields(logrus.Fields{"user_id": userID, "phone": state.PhoneNumber}).Info("account linked")
	b.reply(message.Chat.ID, "✅ Login successful! Account "+state.PhoneNumber+" linked.")
}

// handleAccounts lists the user's accounts with per-account actions
func (b *Bot) handleAccounts(message *tgbotapi.Message) {
	userID := message.From.ID

	accounts, err := b.accounts.ByUser(userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("failed to load accounts")
		b.reply(message.Chat.ID, "❌ Something went wrong. Please try again.")
		return
	}
	if len(accounts) == 0 {
		b.reply(message.Chat.ID, "You have no linked accounts yet. Use /add_account to link one.")
		return
	}

	for _, acc := range accounts {
		var text strings.Builder
		fmt.Fprintf(&text, "📱 %s\n💰 %.2f IQD", acc.PhoneNumber, acc.CurrentBalance)
		if acc.LastBalanceUpdate.Valid {
			fmt.Fprintf(&text, " (as of %s)", acc.LastBalanceUpdate.Time.Format("2006-01-02 15:04"))
		}
		if acc.IsPrimaryReceiver {
			text.WriteString("\n⭐ Primary receiver")
		}

		msg := tgbotapi.NewMessage(message.Chat.ID, text.String())
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("🔄 Balance", "balance:"+acc.PhoneNumber),
				tgbotapi.NewInlineKeyboardButtonData("⭐ Set primary", "primary:"+acc.PhoneNumber),
				tgbotapi.NewInlineKeyboardButtonData("🗑 Unlink", "unlink:"+acc.PhoneNumber),
			),
		)
		if _, err := b.api.Send(msg); err != nil {
			logrus.WithError(err).WithField("chat_id", message.Chat.ID).Error("failed to send message")
		}
	}
}

// handleCallbackQuery handles the per-account action buttons
func (b *Bot) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	userID := callback.From.ID
	chatID := callback.Message.Chat.ID

	// Acknowledge the button press
	if _, err := b.api.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		logrus.WithError(err).Error("failed to answer callback query")
	}

	action, phone, found := strings.Cut(callback.Data, ":")
	if !found {
		return
	}

	switch action {
	case "balance":
		b.handleBalanceRefresh(ctx, chatID, userID, phone)
	case "primary":
		if err := b.accounts.SetPrimaryReceiver(userID, phone); err != nil {
			logrus.WithError(err).WithField("phone", phone).Error("failed to set primary receiver")
			b.reply(chatID, "❌ Failed to set the primary receiver.")
			return
		}
		b.reply(chatID, "⭐ "+phone+" is now your primary receiver.")
	case "unlink":
		deleted, err := b.accounts.Delete(phone, userID)
		if err != nil {
			logrus.WithError(err).WithField("phone", phone).Error("failed to unlink account")
			b.reply(chatID, "❌ Failed to unlink the account.")
			return
		}
		if !deleted {
			b.reply(chatID, "That account is not linked to you.")
			return
		}
		b.reply(chatID, "🗑 Account "+phone+" unlinked.")
	}
}

// handleBalanceRefresh polls the carrier for one account on demand
func (b *Bot) handleBalanceRefresh(ctx context.Context, chatID, userID int64, phone string) {
	account, err := b.accounts.ByPhone(phone, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			b.reply(chatID, "That account is not linked to you.")
			return
		}
		logrus.WithError(err).WithField("phone", phone).Error("failed to load account")
		b.reply(chatID, "❌ Something went wrong. Please try again.")
		return
	}

	balance, err := b.client.Balance(ctx, account.AccessToken, account.DeviceID, account.Cookie)
	if err != nil {
		logrus.WithError(err).WithField("phone", phone).Error("failed to fetch balance")
		b.reply(chatID, "❌ Failed to fetch the balance. The session may have expired.")
		return
	}

	if err := b.accounts.UpdateBalance(phone, balance); err != nil {
		logrus.WithError(err).WithField("phone", phone).Error("failed to store balance")
	}
	b.reply(chatID, fmt.Sprintf("💰 %s: %.2f IQD", phone, balance))
}

// handleRecharge begins the smart recharge conversation
func (b *Bot) handleRecharge(message *tgbotapi.Message) {
	userID := message.From.ID

	accounts, err := b.accounts.ByUser(userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("failed to load accounts")
		b.reply(message.Chat.ID, "❌ Something went wrong. Please try again.")
		return
	}
	hasPrimary := false
	for _, acc := range accounts {
		if acc.IsPrimaryReceiver {
			hasPrimary = true
			break
		}
	}
	if !hasPrimary {
		b.reply(message.Chat.ID, "⚠️ Set a primary receiver first: /accounts, then ⭐ Set primary.")
		return
	}

	b.setState(userID, &userState{State: stateAwaitingVoucher})
	b.reply(message.Chat.ID, "Send the voucher code, or paste the whole recharge SMS.")
}

// handleVoucherInput extracts the card number and runs the smart recharge
func (b *Bot) handleVoucherInput(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID

	card := voucher.ExtractCardNumber(message.Text)
	if card == "" {
		b.reply(message.Chat.ID, "No 14-15 digit card number found. Send the code or the full SMS, or /cancel.")
		return
	}
	b.clearState(userID)

	b.reply(message.Chat.ID, "Submitting the voucher...")
	result, err := b.recharge.Process(ctx, userID, card)
	switch {
	case errors.Is(err, recharge.ErrNoPrimaryReceiver):
		b.reply(message.Chat.ID, "❌ No primary receiver account set. Use /accounts to set one.")
	case errors.Is(err, recharge.ErrNoSenders):
		b.reply(message.Chat.ID, "❌ No sender accounts available. Link another account first.")
	case errors.Is(err, recharge.ErrVoucherInvalid):
		b.reply(message.Chat.ID, "❌ The voucher is invalid or already used.")
	case errors.Is(err, recharge.ErrAllSendersFailed):
		b.reply(message.Chat.ID, fmt.Sprintf(
			"❌ Failed to recharge using all available senders: %s", strings.Join(result.Tried, ", ")))
	case err != nil:
		logrus.WithError(err).WithField("user_id", userID).Error("smart recharge failed")
		b.reply(message.Chat.ID, "❌ Something went wrong. Please try again.")
	default:
		b.reply(message.Chat.ID, fmt.Sprintf(
			"✅ Success! Recharged %s using %s.", result.TargetNumber, result.SenderNumber))
	}
}

// handlePlans shows the plan catalog
func (b *Bot) handlePlans(message *tgbotapi.Message) {
	plans, err := b.plans.GetAll()
	if err != nil {
		logrus.WithError(err).Error("failed to load plans")
		b.reply(message.Chat.ID, "❌ Something went wrong. Please try again.")
		return
	}
	if len(plans) == 0 {
		b.reply(message.Chat.ID, "No plans available yet.")
		return
	}

	var text strings.Builder
	text.WriteString("📋 *Available plans*\n\n")
	for _, plan := range plans {
		fmt.Fprintf(&text, "*%s* — %.2f IQD\n", plan.Name, plan.Price)
		fmt.Fprintf(&text, "Up to %d account(s), %d days\n", plan.MaxAccounts, plan.DurationDays)
		if plan.Description != "" {
			text.WriteString(plan.Description + "\n")
		}
		text.WriteString("\n")
	}
	b.replyMarkdown(message.Chat.ID, text.String())
}

// handleSubscription shows the user's resolved plan
func (b *Bot) handleSubscription(message *tgbotapi.Message) {
	sub, err := b.users.Subscription(message.From.ID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", message.From.ID).Error("failed to resolve subscription")
		b.reply(message.Chat.ID, "❌ Something went wrong. Please try again.")
		return
	}

	var text strings.Builder
	fmt.Fprintf(&text, "Your plan: %s (up to %d linked account(s))", sub.Name, sub.MaxAccounts)
	if sub.Expiry.Valid {
		fmt.Fprintf(&text, "\nExpires: %s", sub.Expiry.Time.Format("2006-01-02 15:04"))
	}
	if sub.Expired {
		text.WriteString("\n⚠️ Your previous subscription has expired.")
	}
	b.reply(message.Chat.ID, text.String())
}
