package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/terraincognita07/tierly/internal/db"
	"github.com/terraincognita07/tierly/internal/services"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RunReferralsReportCommand prints the referral dashboard of one user, the same
// view the API serves, for support and operators.
func RunReferralsReportCommand(ctx context.Context, options db.Options, userID uint, out io.Writer) error {
	if userID == 0 {
		return errors.New("user id is required")
	}

	database, err := db.Open(options)
	if err != nil {
		return fmt.Errorf("database init failed: %w", err)
	}
	defer closeDatabase(database, options.Logger)

	repositories := db.NewRepositories(database)
	ledger := services.NewReferralLedger(repositories.Users, repositories.Referrals, repositories.Tx, options.Logger)

	data, err := ledger.GetReferralData(ctx, userID, time.Now().UTC())
	if errors.Is(err, services.ErrUserNotFound) {
		return fmt.Errorf("user %d not found", userID)
	}
	if err != nil {
		return fmt.Errorf("load referral data: %w", err)
	}

	return writeReferralReport(out, userID, data)
}

func writeReferralReport(out io.Writer, userID uint, data services.ReferralData) error {
	writer := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintf(writer, "User:\t%d\n", userID)
	fmt.Fprintf(writer, "Referral code:\t%s\n", data.ReferralCode)
	fmt.Fprintf(writer, "Completed referrals:\t%d\n", data.Stats.CompletedReferrals)
	fmt.Fprintf(writer, "Pending referrals:\t%d\n", data.Stats.PendingReferrals)
	fmt.Fprintf(writer, "Premium days earned:\t%d\n", data.Stats.TotalDaysEarned)
	fmt.Fprintf(writer, "Premium expiry:\t%s\n", formatReportTime(data.Stats.PremiumExpiry))
	if data.NextTier != nil {
		fmt.Fprintf(writer, "Next reward:\t%d days of %s after %d more referrals\n",
			data.NextTier.Days, data.NextTier.Tier, data.NextTier.ReferralsNeeded)
	} else {
		fmt.Fprintln(writer, "Next reward:\tall tiers reached")
	}

	if len(data.Referrals) > 0 {
		fmt.Fprintln(writer)
		fmt.Fprintln(writer, "ID\tREFERRED USER\tSTATUS\tCREATED")
		for _, entry := range data.Referrals {
			name := strings.TrimSpace(entry.ReferredUser.Name)
			if name == "" {
				name = entry.ReferredUser.Username
			}
			fmt.Fprintf(writer, "%d\t%s\t%s\t%s\n", entry.ID, name, entry.Status, entry.CreatedAt.UTC().Format(time.DateOnly))
		}
	}

	return writer.Flush()
}

func formatReportTime(value *time.Time) string {
	if value == nil {
		return "-"
	}
	return value.UTC().Format(time.RFC3339)
}

func closeDatabase(database *gorm.DB, logger *zap.Logger) {
	sqlDB, err := database.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil && logger != nil {
		logger.Warn("close database failed", zap.Error(err))
	}
}
