package main

import (
	"os"

	"github.com/huangang/teamhub/internal/config"
	"github.com/huangang/teamhub/internal/models"
	"github.com/huangang/teamhub/pkg/logger"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var cfgFilePath string

var rootCmd = &cobra.Command{
	Use:   "teamhubctl",
	Short: "Administer a TeamHub installation",
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFilePath, "config", os.Getenv("CONFIG_PATH"), "config file (default is ./config.yaml)")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFilePath)
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.Server.LogLevel)
	return cfg, nil
}

// openDB loads the config and opens the database it names.
func openDB() (*config.Config, *gorm.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	db, err := models.Open(&cfg.Database, gormlogger.Warn)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}
