// Package cmd provides the chunkhound CLI commands.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/chunkhound-go/chunkhound/internal/config"
	"github.com/chunkhound-go/chunkhound/internal/logging"
	"github.com/chunkhound-go/chunkhound/pkg/version"
)

// Shared flags, bound once on the root command's persistent flag set so
// every subcommand (run/server/mcp) sees the same --db/--include/...
// surface.
var (
	flagDB           string
	flagInclude      []string
	flagExclude      []string
	flagDebounceMs   int
	flagProvider     string
	flagModel        string
	flagAPIKey       string
	flagBaseURL      string
	flagNoEmbeddings bool
	flagHost         string
	flagPort         int
	flagVerbose      bool

	loggingCleanup func()
)

// NewRootCmd builds the chunkhound root command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "chunkhound",
		Short:   "Local-first semantic code search",
		Version: version.Version,
		Long: `chunkhound indexes a codebase into chunks and embeddings, then
serves search over them via MCP (stdio JSON-RPC) and HTTP.

Run 'chunkhound run <path>' to index a directory and serve it, or
'chunkhound server'/'chunkhound mcp' against an already-indexed database.`,
		SilenceUsage: true,
	}
	root.SetVersionTemplate("chunkhound version {{.Version}}\n")

	root.PersistentFlags().StringVar(&flagDB, "db", "", "path to the chunkhound database (overrides config)")
	root.PersistentFlags().StringArrayVar(&flagInclude, "include", nil, "glob pattern to include (repeatable)")
	root.PersistentFlags().StringArrayVar(&flagExclude, "exclude", nil, "glob pattern to exclude (repeatable)")
	root.PersistentFlags().IntVar(&flagDebounceMs, "debounce-ms", 0, "watch event consumer interval in milliseconds")
	root.PersistentFlags().StringVar(&flagProvider, "provider", "", "embedding provider name (static for the offline hash provider; empty disables embeddings)")
	root.PersistentFlags().StringVar(&flagModel, "model", "", "embedding model name")
	root.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "embedding provider API key")
	root.PersistentFlags().StringVar(&flagBaseURL, "base-url", "", "embedding provider base URL")
	root.PersistentFlags().BoolVar(&flagNoEmbeddings, "no-embeddings", false, "disable embedding generation and semantic search")
	root.PersistentFlags().StringVar(&flagHost, "host", "127.0.0.1", "HTTP listen host")
	root.PersistentFlags().IntVar(&flagPort, "port", 8080, "HTTP listen port")
	root.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "enable debug logging")

	root.PersistentPreRunE = setupLogging
	root.PersistentPostRunE = teardownLogging

	root.AddCommand(newRunCmd())
	root.AddCommand(newServerCmd())
	root.AddCommand(newMCPCmd())

	return root
}

// setupLogging wires internal/logging ahead of any subcommand's work.
// mcp's own RunE overrides this with SetupMCPMode, since the MCP
// transport's stdout-exclusivity requirement means even stderr-only file
// logging must be selected before a single byte reaches stdout.
func setupLogging(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "mcp" {
		return nil
	}
	cfg := logging.DefaultConfig()
	if flagVerbose {
		cfg = logging.DebugConfig()
	}
	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func teardownLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

func currentFlags() flagOverrides {
	return flagOverrides{
		dbPath:       flagDB,
		include:      flagInclude,
		exclude:      flagExclude,
		debounceMs:   flagDebounceMs,
		provider:     flagProvider,
		model:        flagModel,
		apiKey:       flagAPIKey,
		baseURL:      flagBaseURL,
		noEmbeddings: flagNoEmbeddings,
		host:         flagHost,
		port:         flagPort,
	}
}

// Execute runs the root command and returns the process exit code:
// 0 success, 1 user/runtime error, 130 on interrupt.
func Execute() int {
	root := NewRootCmd()
	root.SilenceErrors = true
	if err := root.Execute(); err != nil {
		if isInterrupt(err) {
			return 130
		}
		fmt.Fprintln(os.Stderr, "chunkhound:", err)
		return 1
	}
	return 0
}

func projectRoot(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	root, err := config.FindProjectRoot(dir)
	if err != nil {
		return dir
	}
	return root
}
