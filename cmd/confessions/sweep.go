package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/memohai/confessions/cmd/confessions/modules"
	"github.com/memohai/confessions/internal/boot"
	"github.com/memohai/confessions/internal/channels"
	"github.com/memohai/confessions/internal/discord"
	"github.com/memohai/confessions/internal/reconcile"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove configuration of deleted communities and channels once",
	Long: `Check every stored community and channel against Discord over REST and
remove the ones Discord reports as deleted. Lookups that fail are skipped.
The report is printed as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := modules.ProvideConfig(modules.ConfigPath(cfgFile))
		if err != nil {
			return err
		}
		log := modules.ProvideLogger(cfg)
		rc, err := boot.ProvideRuntimeConfig(cfg)
		if err != nil {
			return err
		}
		session, err := discord.NewSession(rc)
		if err != nil {
			return err
		}
		if session == nil {
			return errors.New("discord bot token is required for a sweep")
		}

		st, closeStore, err := modules.OpenStore(ctx, log, cfg, rc)
		if err != nil {
			return err
		}
		defer closeStore()

		registry := channels.NewRegistry(log, st)
		reconciler, err := reconcile.NewReconciler(log, registry, discord.NewPlatform(log, session), rc)
		if err != nil {
			return err
		}
		report, err := reconciler.StartupSweep(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
