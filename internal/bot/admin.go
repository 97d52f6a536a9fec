package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/example/asiabot/internal/database"
	"github.com/example/asiabot/internal/excel"
	"github.com/example/asiabot/pkg/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Telegram rejects messages over 4096 characters; keep headroom
const maxMessageLength = 4000

// handleAdminDashboard lists every user with their accounts
func (b *Bot) handleAdminDashboard(message *tgbotapi.Message) {
	users, err := b.users.GetAllWithAccounts()
	if err != nil {
		logrus.WithError(err).Error("failed to load users for dashboard")
		b.reply(message.Chat.ID, "❌ Failed to load the user base.")
		return
	}
	if len(users) == 0 {
		b.reply(message.Chat.ID, "📂 No users found in the database.")
		return
	}

	var text strings.Builder
	text.WriteString("🔐 *Admin Dashboard - Users & Accounts*\n\n")
	for _, user := range users {
		fmt.Fprintf(&text, "👤 *User ID:* `%d`", user.TelegramID)
		if user.Username.Valid && user.Username.String != "" {
			fmt.Fprintf(&text, " @%s", user.Username.String)
		}
		text.WriteString("\n")

		if len(user.Accounts) == 0 {
			text.WriteString("   - No accounts linked.\n")
		}
		for _, acc := range user.Accounts {
			marker := ""
			if acc.IsPrimaryReceiver {
				marker = " ⭐"
			}
			fmt.Fprintf(&text, "   - 📱 `%s` | 💰 %.2f IQD%s\n", acc.PhoneNumber, acc.CurrentBalance, marker)
		}
		text.WriteString("\n--------------------\n")
	}

	for _, part := range splitMessage(text.String(), maxMessageLength) {
		b.replyMarkdown(message.Chat.ID, part)
	}
}

// splitMessage breaks long dashboard output on line boundaries
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var parts []string
	var current strings.Builder
	for _, line := range strings.SplitAfter(text, "\n") {
		if current.Len()+len(line) > limit && current.Len() > 0 {
			parts = append(parts, current.String())
			current.Reset()
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

// handleAddPlan creates a plan from
// /addplan name|price|max_accounts|duration_days|description
func (b *Bot) handleAddPlan(message *tgbotapi.Message) {
	usage := "Usage: /addplan name|price|max_accounts|duration_days|description"

	args := strings.TrimSpace(message.CommandArguments())
	if args == "" {
		b.reply(message.Chat.ID, usage)
		return
	}
	fields := strings.SplitN(args, "|", 5)
	if len(fields) < 4 {
		b.reply(message.Chat.ID, usage)
		return
	}

	name := strings.TrimSpace(fields[0])
	price, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		b.reply(message.Chat.ID, "Invalid price. "+usage)
		return
	}
	maxAccounts, err := strconv.Atoi(strings.TrimSpace(fields[2]))
	if err != nil || maxAccounts < 1 {
		b.reply(message.Chat.ID, "Invalid max_accounts. "+usage)
		return
	}
	durationDays, err := strconv.Atoi(strings.TrimSpace(fields[3]))
	if err != nil || durationDays < 1 {
		b.reply(message.Chat.ID, "Invalid duration_days. "+usage)
		return
	}
	description := ""
	if len(fields) == 5 {
		description = strings.TrimSpace(fields[4])
	}

	planID, err := b.plans.Create(&models.Plan{
		Name:         name,
		Price:        price,
		MaxAccounts:  maxAccounts,
		Description:  description,
		DurationDays: durationDays,
	})
	if err != nil {
		logrus.WithError(err).Error("failed to create plan")
		b.reply(message.Chat.ID, "❌ Failed to create the plan.")
		return
	}
	b.reply(message.Chat.ID, fmt.Sprintf("✅ Plan %q created with ID %d.", name, planID))
}

// handleDelPlan removes a plan by ID
func (b *Bot) handleDelPlan(message *tgbotapi.Message) {
	planID, err := strconv.ParseInt(strings.TrimSpace(message.CommandArguments()), 10, 64)
	if err != nil {
		b.reply(message.Chat.ID, "Usage: /delplan plan_id")
		return
	}

	err = b.plans.Delete(planID)
	switch {
	case errors.Is(err, database.ErrNotFound):
		b.reply(message.Chat.ID, fmt.Sprintf("Plan %d does not exist.", planID))
	case errors.Is(err, database.ErrForeignKeyViolation):
		b.reply(message.Chat.ID, fmt.Sprintf("⚠️ Plan %d is still assigned to users and cannot be deleted.", planID))
	case err != nil:
		logrus.WithError(err).WithField("plan_id", planID).Error("failed to delete plan")
		b.reply(message.Chat.ID, "❌ Failed to delete the plan.")
	default:
		b.reply(message.Chat.ID, fmt.Sprintf("🗑 Plan %d deleted.", planID))
	}
}

// handleGrant assigns a plan to a user:
// /grant telegram_id plan_id
func (b *Bot) handleGrant(message *tgbotapi.Message) {
	fields := strings.Fields(message.CommandArguments())
	if len(fields) != 2 {
		b.reply(message.Chat.ID, "Usage: /grant telegram_id plan_id")
		return
	}
	telegramID, err1 := strconv.ParseInt(fields[0], 10, 64)
	planID, err2 := strconv.ParseInt(fields[1], 10, 64)
	if err1 != nil || err2 != nil {
		b.reply(message.Chat.ID, "Usage: /grant telegram_id plan_id")
		return
	}

	plan, err := b.plans.GetByID(planID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			b.reply(message.Chat.ID, fmt.Sprintf("Plan %d does not exist.", planID))
			return
		}
		logrus.WithError(err).WithField("plan_id", planID).Error("failed to load plan")
		b.reply(message.Chat.ID, "❌ Failed to load the plan.")
		return
	}

	expiry := time.Now().AddDate(0, 0, plan.DurationDays)
	err = b.users.SetPlan(telegramID, planID, expiry)
	switch {
	case errors.Is(err, database.ErrNotFound):
		b.reply(message.Chat.ID, fmt.Sprintf("User %d is not registered.", telegramID))
	case err != nil:
		logrus.WithError(err).WithField("user_id", telegramID).Error("failed to grant plan")
		b.reply(message.Chat.ID, "❌ Failed to grant the plan.")
	default:
		b.reply(message.Chat.ID, fmt.Sprintf(
			"✅ Granted %q to user %d until %s.", plan.Name, telegramID, expiry.Format("2006-01-02")))
		b.Notify(telegramID, fmt.Sprintf(
			"🎉 You were granted the %s plan, valid until %s.", plan.Name, expiry.Format("2006-01-02")))
	}
}

// handleExport sends the user base as an XLSX document
func (b *Bot) handleExport(message *tgbotapi.Message) {
	users, err := b.users.GetAllWithAccounts()
	if err != nil {
		logrus.WithError(err).Error("failed to load users for export")
		b.reply(message.Chat.ID, "❌ Failed to load the user base.")
		return
	}

	buf, err := excel.BuildUsersReport(users)
	if err != nil {
		logrus.WithError(err).Error("failed to build report")
		b.reply(message.Chat.ID, "❌ Failed to build the report.")
		return
	}

	document := tgbotapi.NewDocument(message.Chat.ID, tgbotapi.FileBytes{
		Name:  fmt.Sprintf("asiabot-users-%s.xlsx", time.Now().Format("2006-01-02")),
		Bytes: buf.Bytes(),
	})
	if _, err := b.api.Send(document); err != nil {
		logrus.WithError(err).Error("failed to send report")
		b.reply(message.Chat.ID, "❌ Failed to send the report.")
	}
}
