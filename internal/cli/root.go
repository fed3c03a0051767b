// Package cli implements ledgerctl, the operator command line for the credit ledger.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"credit_ledger/internal/app"
	"credit_ledger/internal/config"
	"credit_ledger/internal/ledger"

	"github.com/spf13/cobra"
)

var Version = "dev"

// env lets tests replace configuration loading and store access.
type env struct {
	loadConfig func() (*config.Config, error)
	openLedger func(ctx context.Context, cfg *config.Config) (*ledger.Ledger, func() error, error)
}

func defaultEnv() *env {
	return &env{
		loadConfig: config.LoadConfig,
		openLedger: func(ctx context.Context, cfg *config.Config) (*ledger.Ledger, func() error, error) {
			rt, err := app.Open(ctx, cfg)
			if err != nil {
				return nil, nil, err
			}
			return rt.Ledger(cfg), rt.Close, nil
		},
	}
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(defaultEnv())
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operator tool for the credit ledger",
		Long:          "ledgerctl reads and adjusts user credit balances directly against the configured store.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.AddCommand(
		newBalanceCmd(e),
		newAddCmd(e),
		newDeductCmd(e),
		newHistoryCmd(e),
		newUsersCmd(e),
		newTokenCmd(e),
	)

	root.Version = Version
	root.SetVersionTemplate(fmt.Sprintf("ledgerctl %s\n", Version))

	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// withLedger loads config, opens the store and runs fn against the ledger.
func (e *env) withLedger(cmd *cobra.Command, fn func(ctx context.Context, l *ledger.Ledger) error) error {
	cfg, err := e.loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	l, closeFn, err := e.openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, l)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
