// Package app holds the navigate command tree.
package app

import (
	"github.com/Fairfood/Navigate-Server/bootstrap"
	"github.com/Fairfood/Navigate-Server/internal/config"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "navigate",
	Short: "Farm deforestation analysis API",
	Long: `navigate serves the farm and report API, drains the analysis queue
against the forest metrics provider, and manages the database schema.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			log.Error().Err(err).Msg("Error displaying help")
		}
	},
}

// NewRootCmd returns the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(migrateCmd)
	return rootCmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	bootstrap.ConfigureLogging(cfg)
	return cfg, nil
}
