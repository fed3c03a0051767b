package cli

import (
	"errors"
	"fmt"
	"time"

	"credit_ledger/internal/ledger"
	"credit_ledger/internal/utils"

	"github.com/spf13/cobra"
)

func newTokenCmd(e *env) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <userId>",
		Short: "Issue a user JWT for AUTH_MODE=jwt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := e.loadConfig()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			if err := ledger.ValidateUserID(args[0]); err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.JWTTTL
			}
			token, err := utils.GenerateJWT(args[0], cfg.JWTSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime, defaults to JWT_TTL")

	return cmd
}
