package main

import (
	"github.com/spf13/cobra"

	"qms-workers/internal/common/config"
	"qms-workers/internal/common/logger"
)

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// newLogger logs to stderr so stdout stays machine readable.
func newLogger(cfg *config.Config) logger.Logger {
	return logger.NewZapAdapter(logger.New(cfg.Logging.Level, "console"))
}
