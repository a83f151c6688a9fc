package main

import (
	"github.com/spf13/cobra"

	"github.com/memohai/confessions/cmd/confessions/modules"
	"github.com/memohai/confessions/db"
	"github.com/memohai/confessions/internal/boot"
	idb "github.com/memohai/confessions/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate <up|down|version|force N>",
	Short: "Apply or roll back the config store schema",
	Long: `Apply or roll back the config store schema of the configured driver.

Examples:
  confessions migrate up
  confessions migrate force 1
  STORE_DRIVER=postgres confessions migrate version`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := modules.ProvideConfig(modules.ConfigPath(cfgFile))
		if err != nil {
			return err
		}
		log := modules.ProvideLogger(cfg)
		rc, err := boot.ProvideRuntimeConfig(cfg)
		if err != nil {
			return err
		}
		url, err := idb.MigrateURL(rc.StoreDriver, cfg)
		if err != nil {
			return err
		}
		return idb.RunMigrate(log, url, db.MigrationsFS, "migrations", args[0], args[1:])
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
