package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lugypresko/SDR-AGENT/internal/config"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
	logLevel   string
}

var rootCmd = &cobra.Command{
	Use:   "leadscore",
	Short: "Deterministic lead scoring with full provenance",
	Long: "leadscore turns the raw outputs of the upstream research agents into a\n" +
		"0-100 lead score, a priority tier and a traceable explanation.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		logger := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
			Level: ParseLogLevel(rootFlags.logLevel),
		}))
		slog.SetDefault(logger)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&rootFlags.configPath, "config", "c", "", "path to config file (built-in defaults when empty)")
	pf.StringVar(&rootFlags.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ParseLogLevel converts a string log level to slog.Level.
// Unrecognized strings map to slog.LevelInfo.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadConfig returns the file at path, or the built-in defaults when path
// is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	slog.Info("config loaded", "path", path, "active_profile", cfg.ActiveProfile)
	return cfg, nil
}
