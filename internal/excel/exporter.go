// Package excel builds the admin XLSX report of users and their
// linked accounts.
package excel

import (
	"bytes"
	"fmt"

	"github.com/example/asiabot/pkg/models"
	"github.com/xuri/excelize/v2"
)

const (
	usersSheet    = "Users"
	accountsSheet = "Accounts"
)

var userHeaders = []string{"Telegram ID", "Username", "First Name", "Plan ID", "Plan Expiry", "Accounts", "Registered"}
var accountHeaders = []string{"Account ID", "Owner Telegram ID", "Phone Number", "Balance (IQD)", "Primary Receiver", "Last Balance Update", "Token Updated"}

// BuildUsersReport renders the user base into a two-sheet workbook:
// one row per user, one row per linked account.
func BuildUsersReport(users []models.UserWithAccounts) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", usersSheet)
	f.NewSheet(accountsSheet)

	if err := writeRow(f, usersSheet, 1, toCells(userHeaders)); err != nil {
		return nil, err
	}
	if err := writeRow(f, accountsSheet, 1, toCells(accountHeaders)); err != nil {
		return nil, err
	}

	userRow, accountRow := 2, 2
	for _, user := range users {
		planID := ""
		if user.PlanID.Valid {
			planID = fmt.Sprintf("%d", user.PlanID.Int64)
		}
		planExpiry := ""
		if user.PlanExpiry.Valid {
			planExpiry = user.PlanExpiry.Time.Format("2006-01-02 15:04")
		}

		err := writeRow(f, usersSheet, userRow, []interface{}{
			user.TelegramID,
			user.Username.String,
			user.FirstName.String,
			planID,
			planExpiry,
			len(user.Accounts),
			user.CreatedAt.Format("2006-01-02 15:04"),
		})
		if err != nil {
			return nil, err
		}
		userRow++

		for _, acc := range user.Accounts {
			lastBalance := ""
			if acc.LastBalanceUpdate.Valid {
				lastBalance = acc.LastBalanceUpdate.Time.Format("2006-01-02 15:04")
			}
			tokenUpdated := ""
			if acc.TokenUpdatedAt.Valid {
				tokenUpdated = acc.TokenUpdatedAt.Time.Format("2006-01-02 15:04")
			}

			err := writeRow(f, accountsSheet, accountRow, []interface{}{
				acc.ID,
				acc.UserID,
				acc.PhoneNumber,
				acc.CurrentBalance,
				acc.IsPrimaryReceiver,
				lastBalance,
				tokenUpdated,
			})
			if err != nil {
				return nil, err
			}
			accountRow++
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to render workbook: %v", err)
	}
	return buf, nil
}

// writeRow fills one spreadsheet row starting at column A
func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("failed to compute cell name: %v", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d of %s: %v", row, sheet, err)
	}
	return nil
}

func toCells(headers []string) []interface{} {
	cells := make([]interface{}, len(headers))
	for i, h := range headers {
		cells[i] = h
	}
	return cells
}
