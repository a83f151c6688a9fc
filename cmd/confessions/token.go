package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/memohai/confessions/cmd/confessions/modules"
	"github.com/memohai/confessions/internal/auth"
	"github.com/memohai/confessions/internal/boot"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the admin API",
	Long: `Issue an HS256 bearer token signed with auth.jwt_secret.

Examples:
  confessions token --subject ops --ttl 24h
  curl -H "Authorization: Bearer $(confessions token)" localhost:8080/communities/1/channels`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := modules.ProvideConfig(modules.ConfigPath(cfgFile))
		if err != nil {
			return err
		}
		rc, err := boot.ProvideRuntimeConfig(cfg)
		if err != nil {
			return err
		}
		if tokenTTL <= 0 {
			return errors.New("ttl must be positive")
		}
		token, expiresAt, err := auth.GenerateToken(rc.JwtSecret, tokenSubject, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVarP(&tokenSubject, "subject", "s", "admin", "token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 12*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
