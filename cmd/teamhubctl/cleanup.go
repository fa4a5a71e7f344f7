package main

import (
	"fmt"

	"github.com/huangang/teamhub/internal/services"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(cleanupCmd)
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete expired system logs and old read notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := openDB()
		if err != nil {
			return err
		}

		notifications := services.NewNotificationService(db, nil, nil, nil)
		result, err := services.NewRetentionService(db, &cfg.Retention, notifications).RunCleanup()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d system logs, %d notifications\n",
			result.SystemLogs, result.Notifications)
		return nil
	},
}
