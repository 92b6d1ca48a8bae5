package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/assessment-cli/internal/rawstore"
)

var (
	intakeFile      string
	intakeProfileID string
	intakeName      string
	intakeDomain    string
)

var intakeCmd = &cobra.Command{
	Use:   "intake",
	Short: "Ingest an assessment submission",
	Long:  "Stores the raw submission write-once, derives identity, and registers the run with every phase pending. Prints the registration result as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var raw []byte
		var err error
		if intakeFile == "-" {
			raw, err = io.ReadAll(os.Stdin)
		} else {
			raw, err = os.ReadFile(intakeFile)
		}
		if err != nil {
			return eris.Wrapf(err, "read submission %s", intakeFile)
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Raw.Store(raw, rawstore.IdentityHints{
			CompanyProfileID: intakeProfileID,
			CompanyName:      intakeName,
			Domain:           intakeDomain,
		})
		if err != nil {
			return eris.Wrap(err, "store submission")
		}

		if _, err := env.Index.Register(ctx, result.AssessmentRunID, result.CompanyProfileID); err != nil {
			return eris.Wrap(err, "register run")
		}

		zap.L().Info("submission registered",
			zap.String("run_id", result.AssessmentRunID),
			zap.String("company_profile_id", result.CompanyProfileID),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	intakeCmd.Flags().StringVar(&intakeFile, "file", "-", "submission JSON file (- for stdin)")
	intakeCmd.Flags().StringVar(&intakeProfileID, "profile-id", "", "existing company profile ID to reuse")
	intakeCmd.Flags().StringVar(&intakeName, "name", "", "company name (used to derive identity when no profile ID is given)")
	intakeCmd.Flags().StringVar(&intakeDomain, "domain", "", "company domain (used to derive identity)")
	rootCmd.AddCommand(intakeCmd)
}
