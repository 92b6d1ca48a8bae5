package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/assessment-cli/internal/model"
)

var (
	runID    string
	runPhase string
	runFrom  string
	runTo    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run pipeline phases for an assessment",
	Long:  "Executes pipeline phases in order for a registered run. With no phase flags the full pipeline runs; --phase runs one phase, --from/--to run a contiguous range. Prerequisites are enforced from the index.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		phases, err := selectPhases(runPhase, runFrom, runTo)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Pipeline.RunRange(ctx, runID, phases); err != nil {
			return eris.Wrapf(err, "run %s", runID)
		}

		entry, err := env.Index.Get(ctx, runID)
		if err != nil {
			return err
		}

		zap.L().Info("run finished",
			zap.String("run_id", runID),
			zap.Bool("deliverable_ready", entry.DeliverableReady()),
			zap.Bool("manual_review", entry.ManualReview),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entry)
	},
}

// selectPhases resolves the phase flags into an ordered execution list.
func selectPhases(phase, from, to string) ([]model.Phase, error) {
	if phase != "" {
		if from != "" || to != "" {
			return nil, eris.New("--phase cannot be combined with --from/--to")
		}
		p := model.Phase(phase)
		if !p.Valid() {
			return nil, eris.Errorf("unknown phase %q", phase)
		}
		return []model.Phase{p}, nil
	}

	start, end := 0, len(model.PhaseOrder)-1
	if from != "" {
		i := phaseIndex(model.Phase(from))
		if i < 0 {
			return nil, eris.Errorf("unknown phase %q", from)
		}
		start = i
	}
	if to != "" {
		i := phaseIndex(model.Phase(to))
		if i < 0 {
			return nil, eris.Errorf("unknown phase %q", to)
		}
		end = i
	}
	if start > end {
		return nil, eris.Errorf("--from %s is after --to %s", from, to)
	}
	return model.PhaseOrder[start : end+1], nil
}

func phaseIndex(p model.Phase) int {
	for i, ph := range model.PhaseOrder {
		if ph == p {
			return i
		}
	}
	return -1
}

func init() {
	runCmd.Flags().StringVar(&runID, "run-id", "", "assessment run ID (required)")
	runCmd.Flags().StringVar(&runPhase, "phase", "", "run a single phase (phase0 ... phase5)")
	runCmd.Flags().StringVar(&runFrom, "from", "", "first phase of the range")
	runCmd.Flags().StringVar(&runTo, "to", "", "last phase of the range")
	_ = runCmd.MarkFlagRequired("run-id")
	rootCmd.AddCommand(runCmd)
}
