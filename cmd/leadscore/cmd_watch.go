package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lugypresko/SDR-AGENT/internal/config"
	"github.com/lugypresko/SDR-AGENT/internal/schema"
)

var watchFlags struct {
	input    string
	parallel int
	format   string
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-score leads every time the config file changes",
	Long: "Watch scores the input once, then again after each successful reload of\n" +
		"the config file. A reload that fails validation keeps the previous output.",
	RunE: runWatch,
}

func init() {
	f := watchCmd.Flags()
	f.StringVarP(&watchFlags.input, "input", "i", "", "lead contexts file (required)")
	f.IntVar(&watchFlags.parallel, "parallel", 4, "leads scored concurrently")
	f.StringVar(&watchFlags.format, "format", formatJSON, "output format: json or yaml")

	_ = watchCmd.MarkFlagRequired("input")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	if rootFlags.configPath == "" {
		return errors.New("watch needs --config")
	}
	if err := checkFormat(watchFlags.format); err != nil {
		return err
	}
	cfg, err := loadConfig(rootFlags.configPath)
	if err != nil {
		return err
	}
	leads, err := readLeads(cmd.InOrStdin(), watchFlags.input)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rescore := rescorer(ctx, cmd.OutOrStdout(), leads)
	rescore(cfg)
	return config.Watch(ctx, rootFlags.configPath, rescore)
}

// rescorer returns a reload callback that scores leads under the active
// profile of each new config and writes the report to w. Failures are
// logged so the watch loop keeps running.
func rescorer(ctx context.Context, w io.Writer, leads []schema.RawContext) func(*config.Config) {
	return func(cfg *config.Config) {
		b, err := scoreLeads(ctx, cfg, "", watchFlags.parallel, nil, leads)
		if err != nil {
			slog.Error("watch: rescore failed", "err", err)
			return
		}
		if err := render(w, b, watchFlags.format, false); err != nil {
			slog.Error("watch: render failed", "err", err)
		}
	}
}
