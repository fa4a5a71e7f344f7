package main

import (
	"github.com/huangang/teamhub/internal/models"
	"github.com/huangang/teamhub/pkg/logger"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := openDB()
		if err != nil {
			return err
		}
		if err := models.AutoMigrate(db); err != nil {
			return err
		}
		logger.Info().Str("driver", cfg.Database.Driver).Msg("database migrated")
		return nil
	},
}
