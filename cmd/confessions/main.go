// Command confessions runs the confessions bot: the Discord gateway client, the
// channel configuration engine and its admin API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/memohai/confessions/internal/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "confessions",
	Short:         "Discord confessions bot and channel configuration service",
	Version:       version.GetInfo(),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: $CONFIG_PATH or config.toml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
