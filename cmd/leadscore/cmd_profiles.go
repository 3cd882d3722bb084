package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var profilesFlags struct {
	weights bool
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List weight profiles",
	RunE:  runProfiles,
}

func init() {
	profilesCmd.Flags().BoolVarP(&profilesFlags.weights, "weights", "w", false, "print every signal weight")
}

func runProfiles(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(rootFlags.configPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, name := range cfg.ProfileNames() {
		p, _ := cfg.Profile(name)
		marker := " "
		if name == cfg.ActiveProfile {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %-14s signals=%d sum=%.2f\n", marker, name, len(p), p.Sum())
		if profilesFlags.weights {
			for _, sig := range p.Signals() {
				fmt.Fprintf(out, "    %-22s %.2f\n", sig, p[sig])
			}
		}
	}
	return nil
}
