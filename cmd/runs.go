package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/assessment-cli/internal/index"
	"github.com/sells-group/assessment-cli/internal/model"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect assessment run history",
	Long:  "Commands for listing runs, showing full index entries, and reading a run's audit trail.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List assessment runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		company, _ := cmd.Flags().GetString("company")
		limit, _ := cmd.Flags().GetInt("limit")
		manualOnly, _ := cmd.Flags().GetBool("manual-review")

		filter := index.Filter{
			CompanyProfileID: company,
			Limit:            limit,
		}
		if manualOnly {
			t := true
			filter.ManualReview = &t
		}

		entries, err := st.ListEntries(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, entries)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the full index entry for a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		entry, err := st.GetEntry(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entry)
	},
}

// -- runs audit --

var runsAuditCmd = &cobra.Command{
	Use:   "audit <run-id>",
	Short: "Show a run's audit trail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		events, err := st.ListAudit(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs audit")
		}
		if len(events) == 0 {
			fmt.Fprintln(os.Stderr, "No audit events found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "TIME\tPHASE\tKIND\tCONTEXT")
		for _, ev := range events {
			ctxJSON := ""
			if ev.Context != nil {
				raw, _ := json.Marshal(ev.Context)
				ctxJSON = string(raw)
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				ev.CreatedAt.Format("2006-01-02 15:04:05"),
				ev.Phase,
				ev.Kind,
				ctxJSON,
			)
		}
		return w.Flush()
	},
}

func init() {
	runsListCmd.Flags().String("company", "", "filter by company profile ID")
	runsListCmd.Flags().Bool("manual-review", false, "only runs flagged for manual review")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsAuditCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of index entries to w.
func formatRunsList(out io.Writer, entries []model.AssessmentIndexEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RUN\tCOMPANY\tPROGRESS\tREVIEW\tCREATED")
	_, _ = fmt.Fprintln(w, "---\t-------\t--------\t------\t-------")

	for _, e := range entries {
		review := ""
		if e.ManualReview {
			review = "manual"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			truncateID(e.AssessmentRunID),
			truncateID(e.CompanyProfileID),
			phaseProgress(&e),
			review,
			e.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// phaseProgress summarizes the phase lattice as e.g. "4/7 complete" or the
// first failed phase.
func phaseProgress(e *model.AssessmentIndexEntry) string {
	complete := 0
	for _, p := range model.PhaseOrder {
		switch e.PhaseStatus[p] {
		case model.PhaseStatusComplete:
			complete++
		case model.PhaseStatusFailed:
			return fmt.Sprintf("failed at %s", p)
		}
	}
	return fmt.Sprintf("%d/%d complete", complete, len(model.PhaseOrder))
}

// truncateID shortens run IDs for compact display.
func truncateID(id string) string {
	if len(id) > 16 {
		return id[:13] + "..."
	}
	return id
}
