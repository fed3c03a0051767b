package cli

import (
	"context"
	"fmt"
	"strconv"

	"credit_ledger/internal/domain"
	"credit_ledger/internal/ledger"

	"github.com/spf13/cobra"
)

func newBalanceCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <userId>",
		Short: "Show a user's balance",
		Long:  "Show a user's balance. Unknown users are created with the default credit, as on the API.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withLedger(cmd, func(ctx context.Context, l *ledger.Ledger) error {
				res, err := l.GetBalance(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

func newAddCmd(e *env) *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "add <userId> <amount>",
		Short: "Credit a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmountArg(args[1])
			if err != nil {
				return err
			}
			return e.withLedger(cmd, func(ctx context.Context, l *ledger.Ledger) error {
				res, err := l.Add(ctx, args[0], amount, ledger.Meta{Type: domain.TypeAdd, Description: description})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}

	cmd.Flags().StringVar(&description, "description", "Manual top-up", "Text recorded with the ledger entry")

	return cmd
}

func newDeductCmd(e *env) *cobra.Command {
	var (
		description string
		txType      string
		tokens      int64
	)

	cmd := &cobra.Command{
		Use:   "deduct <userId> <amount>",
		Short: "Remove credit from a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmountArg(args[1])
			if err != nil {
				return err
			}
			return e.withLedger(cmd, func(ctx context.Context, l *ledger.Ledger) error {
				res, err := l.Deduct(ctx, args[0], amount, ledger.Meta{Type: txType, Tokens: tokens, Description: description})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}

	cmd.Flags().StringVar(&description, "description", "Manual deduction", "Text recorded with the ledger entry")
	cmd.Flags().StringVar(&txType, "type", domain.TypeDeduct, "Ledger entry type (deduct or generation)")
	cmd.Flags().Int64Var(&tokens, "tokens", 0, "Token count recorded with the entry")

	return cmd
}

func parseAmountArg(v string) (float64, error) {
	amount, err := ledger.ParseAmount([]byte(strconv.Quote(v)))
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", v, err)
	}
	return amount, nil
}
