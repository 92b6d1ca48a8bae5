package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/assessment-cli/internal/rawstore"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <run-id>",
	Short: "Verify raw submission integrity for a run",
	Long:  "Recomputes the stored submission's content hashes and compares them against the write-once manifest. A mismatch means the raw payload was altered after intake.",
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
			return eris.Wrap(err, "verify")
		}

		raw := rawstore.New(cfg.Data.Dir)
		ok, err := raw.Verify(entry.CompanyProfileID, entry.AssessmentRunID)
		if err != nil {
			return eris.Wrapf(err, "verify run %s", args[0])
		}
		if !ok {
			return eris.Errorf("run %s failed integrity verification", args[0])
		}

		fmt.Printf("OK: submission for run %s matches its manifest\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
