package cli

import (
	"context"
	"fmt"
	"time"

	"credit_ledger/internal/ledger"

	"github.com/spf13/cobra"
)

func newHistoryCmd(e *env) *cobra.Command {
	var (
		page     int
		pageSize int
		txType   string
		since    string
	)

	cmd := &cobra.Command{
		Use:   "history [userId]",
		Short: "List ledger entries",
		Long:  "List ledger entries newest first, for one user or across all users.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := ledger.TransactionFilter{Type: txType, Page: ledger.Page{Number: page, Size: pageSize}}
			if len(args) == 1 {
				filter.UserID = args[0]
			}
			if since != "" {
				d, err := time.ParseDuration(since)
				if err != nil {
					return fmt.Errorf("invalid --since: %w", err)
				}
				from := time.Now().Add(-d).UTC()
				filter.From = &from
			}
			return e.withLedger(cmd, func(ctx context.Context, l *ledger.Ledger) error {
				res, err := l.Transactions(ctx, filter)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", ledger.DefaultPageSize, "Entries per page")
	cmd.Flags().StringVar(&txType, "type", "", "Only entries of this type")
	cmd.Flags().StringVar(&since, "since", "", "Only entries newer than this duration (e.g., 1h, 24h)")

	return cmd
}

func newUsersCmd(e *env) *cobra.Command {
	var page, pageSize int

	cmd := &cobra.Command{
		Use:   "users",
		Short: "List users and balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withLedger(cmd, func(ctx context.Context, l *ledger.Ledger) error {
				res, err := l.Users(ctx, ledger.Page{Number: page, Size: pageSize})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", ledger.DefaultPageSize, "Users per page")

	return cmd
}
