package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lugypresko/SDR-AGENT/internal/batch"
	"github.com/lugypresko/SDR-AGENT/internal/config"
	"github.com/lugypresko/SDR-AGENT/internal/engine"
	"github.com/lugypresko/SDR-AGENT/internal/metrics"
	"github.com/lugypresko/SDR-AGENT/internal/schema"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

var scoreFlags struct {
	input      string
	profile    string
	parallel   int
	format     string
	trace      bool
	metricsOut string
}

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score a file of lead contexts",
	Long: "Score reads a JSON array (or JSON lines) of raw lead contexts and writes\n" +
		"one result per lead, in input order.",
	RunE: runScore,
}

func init() {
	f := scoreCmd.Flags()
	f.StringVarP(&scoreFlags.input, "input", "i", "-", "lead contexts file, - for stdin")
	f.StringVar(&scoreFlags.profile, "profile", "", "weight profile (default: active_profile from config)")
	f.IntVar(&scoreFlags.parallel, "parallel", 4, "leads scored concurrently")
	f.StringVar(&scoreFlags.format, "format", formatJSON, "output format: json or yaml")
	f.BoolVar(&scoreFlags.trace, "trace", false, "include the full trace for every lead")
	f.StringVar(&scoreFlags.metricsOut, "metrics-out", "", "write Prometheus text metrics to this file")
}

// leadSummary is a Result without its trace.
type leadSummary struct {
	LeadName           string  `json:"lead_name" yaml:"lead_name"`
	LeadCompany        string  `json:"lead_company" yaml:"lead_company"`
	LeadScore          float64 `json:"lead_score" yaml:"lead_score"`
	PriorityTier       string  `json:"priority_tier" yaml:"priority_tier"`
	AvgConfidence      float64 `json:"avg_confidence" yaml:"avg_confidence"`
	MinConfidence      float64 `json:"min_confidence" yaml:"min_confidence"`
	ExplanationSummary string  `json:"explanation_summary" yaml:"explanation_summary"`
	DataQualityFlag    string  `json:"data_quality_flag" yaml:"data_quality_flag"`
}

// report is the document written by score and watch.
type report struct {
	RunID   string `json:"run_id" yaml:"run_id"`
	Profile string `json:"profile" yaml:"profile"`
	Digest  string `json:"digest" yaml:"digest"`
	Results any    `json:"results" yaml:"results"`
}

func runScore(cmd *cobra.Command, _ []string) error {
	if err := checkFormat(scoreFlags.format); err != nil {
		return err
	}
	cfg, err := loadConfig(rootFlags.configPath)
	if err != nil {
		return err
	}
	leads, err := readLeads(cmd.InOrStdin(), scoreFlags.input)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector()
	b, err := scoreLeads(ctx, cfg, scoreFlags.profile, scoreFlags.parallel, collector, leads)
	if err != nil {
		return err
	}
	if err := render(cmd.OutOrStdout(), b, scoreFlags.format, scoreFlags.trace); err != nil {
		return err
	}

	if scoreFlags.metricsOut != "" {
		if err := writeMetrics(scoreFlags.metricsOut, collector); err != nil {
			return err
		}
	}
	return nil
}

func scoreLeads(ctx context.Context, cfg *config.Config, profile string, parallel int, obs batch.Observer, leads []schema.RawContext) (*batch.Batch, error) {
	var opts []engine.Option
	if profile != "" {
		opts = append(opts, engine.WithProfile(profile))
	}
	e, err := engine.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	r := batch.NewRunner(e, parallel)
	if obs != nil {
		r.WithObserver(obs)
	}
	return r.Run(ctx, leads)
}

func readLeads(stdin io.Reader, path string) ([]schema.RawContext, error) {
	if path == "" || path == "-" {
		return batch.ReadContexts(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()
	return batch.ReadContexts(f)
}

func render(w io.Writer, b *batch.Batch, format string, trace bool) error {
	digest, err := b.Digest()
	if err != nil {
		return err
	}
	rep := report{RunID: b.RunID, Profile: b.Profile, Digest: digest}
	if trace {
		rep.Results = b.Results
	} else {
		summaries := make([]leadSummary, len(b.Results))
		for i, res := range b.Results {
			summaries[i] = summarize(res)
		}
		rep.Results = summaries
	}

	switch format {
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rep); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	}
}

func summarize(res *engine.Result) leadSummary {
	return leadSummary{
		LeadName:           res.LeadName,
		LeadCompany:        res.LeadCompany,
		LeadScore:          res.LeadScore,
		PriorityTier:       res.PriorityTier,
		AvgConfidence:      res.AvgConfidence,
		MinConfidence:      res.MinConfidence,
		ExplanationSummary: res.ExplanationSummary,
		DataQualityFlag:    res.DataQualityFlag,
	}
}

func checkFormat(format string) error {
	switch format {
	case formatJSON, formatYAML:
		return nil
	}
	return fmt.Errorf("unknown format %q (want %s or %s)", format, formatJSON, formatYAML)
}

func writeMetrics(path string, c *metrics.Collector) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create metrics file: %w", err)
	}
	if err := c.WriteText(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
