package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"warmintro/backend/internal/contact"
	"warmintro/backend/internal/enrich"
	"warmintro/backend/internal/scoring"
)

var (
	staleDays     int
	staleMaxScore float64
	staleLimit    int
	enrichLimit   int
	ingestFile    string
	runInterval   time.Duration
)

func registerCommands(root *cobra.Command) {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run scheduled maintenance passes until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			interval := runInterval
			if interval == 0 {
				interval = manager.Config.MaintenanceInterval
			}
			if interval <= 0 {
				return fmt.Errorf("maintenance interval must be positive")
			}
			manager.Maintenance.Start(cmd.Context(), interval)
			return nil
		},
	}
	runCmd.Flags().DurationVar(&runInterval, "interval", 0, "Time between maintenance passes (0 uses MAINTENANCE_INTERVAL)")

	maintainCmd := &cobra.Command{
		Use:   "maintain",
		Short: "Run one maintenance pass over every owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := manager.Maintenance.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}

	rescoreCmd := &cobra.Command{
		Use:   "rescore [owner-id]",
		Short: "Recompute relationship strengths for one owner, or all owners when omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				summary, err := manager.Scoring.ScoreAll(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), summary)
			}
			summaries, err := manager.Scoring.ScoreOwners(cmd.Context(), nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), summaries)
		},
	}

	dedupCmd := &cobra.Command{
		Use:   "dedup <owner-id>",
		Short: "Merge stored duplicate people for an owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := manager.Dedup.FindAndMergeDuplicates(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}

	staleCmd := &cobra.Command{
		Use:   "stale <owner-id>",
		Short: "List relationships that have gone quiet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := scoring.StaleOptions{StaleDays: staleDays, Limit: staleLimit}
			if cmd.Flags().Changed("max-score") {
				opts.MaxScore = &staleMaxScore
			}
			stale, err := manager.Scoring.FindStale(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stale)
		},
	}
	staleCmd.Flags().IntVar(&staleDays, "days", 0, "Days without contact before a relationship counts as stale (0 uses the default)")
	staleCmd.Flags().Float64Var(&staleMaxScore, "max-score", 0, "Only include relationships at or below this strength")
	staleCmd.Flags().IntVar(&staleLimit, "limit", 0, "Maximum rows to return (0 uses the default)")

	enrichCmd := &cobra.Command{
		Use:   "enrich",
		Short: "Fill in missing company details from company websites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := manager.Enricher.Run(cmd.Context(), enrichLimit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	enrichCmd.Flags().IntVar(&enrichLimit, "limit", enrich.DefaultBatch, "Maximum companies to enrich")

	ingestCmd := &cobra.Command{
		Use:   "ingest <owner-id>",
		Short: "Load a JSON array of contacts for an owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contacts, err := readContacts(cmd.InOrStdin(), ingestFile)
			if err != nil {
				return err
			}
			report, err := manager.Ingest.Run(cmd.Context(), args[0], contacts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	ingestCmd.Flags().StringVarP(&ingestFile, "file", "f", "-", "Contacts file, or - for stdin")

	root.AddCommand(runCmd, maintainCmd, rescoreCmd, dedupCmd, staleCmd, enrichCmd, ingestCmd)
}

// readContacts decodes a JSON array of contacts from path, or from stdin
// when path is "-".
func readContacts(stdin io.Reader, path string) ([]contact.Contact, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var contacts []contact.Contact
	if err := json.NewDecoder(r).Decode(&contacts); err != nil {
		return nil, fmt.Errorf("decode contacts: %w", err)
	}
	return contacts, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
