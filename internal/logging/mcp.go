package logging

import (
	"log/slog"
)

// SetupMCPMode initializes logging for the MCP stdio server. The MCP
// transport owns stdout exclusively for the JSON-RPC stream, so this
// writes JSON log records to the rotating file only — stderr is never
// touched, matching the CHUNKHOUND_MCP_MODE contract.
func SetupMCPMode(level string) (func(), error) {
	if level == "" {
		level = "info"
	}
	cfg := Config{
		Level:         level,
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: false,
	}

	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(logger)
	slog.Info("mcp mode logging initialized",
		slog.String("log_file", cfg.FilePath),
		slog.String("level", cfg.Level),
		slog.Bool("stderr_disabled", true))

	return cleanup, nil
}
