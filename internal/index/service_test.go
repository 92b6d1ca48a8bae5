package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/assessment-cli/internal/model"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "svc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return NewService(st)
}

func TestService_RegisterInitializesAllPhases(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	entry, err := svc.Register(ctx, "run_r", "cp_1234")
	require.NoError(t, err)

	for _, p := range model.PhaseOrder {
		assert.Equal(t, model.PhaseStatusPending, entry.PhaseStatus[p], string(p))
	}
	assert.False(t, entry.DeliverableReady())
}

func TestService_UpdateStatus_ValidTransitions(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "run_t", "cp_1234")
	require.NoError(t, err)

	require.NoError(t, svc.UpdateStatus(ctx, "run_t", model.Phase0, model.PhaseStatusInProgress, "", false))
	require.NoError(t, svc.UpdateStatus(ctx, "run_t", model.Phase0, model.PhaseStatusComplete, "", false))

	entry, err := svc.Get(ctx, "run_t")
	require.NoError(t, err)
	assert.Equal(t, model.PhaseStatusComplete, entry.PhaseStatus[model.Phase0])
}

func TestService_UpdateStatus_RejectsBackwards(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "run_b", "cp_1234")
	require.NoError(t, err)

	require.NoError(t, svc.UpdateStatus(ctx, "run_b", model.Phase1, model.PhaseStatusComplete, "", true))

	err = svc.UpdateStatus(ctx, "run_b", model.Phase1, model.PhaseStatusInProgress, "", false)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrInvalidTransition))

	err = svc.UpdateStatus(ctx, "run_b", model.Phase1, model.PhaseStatusPending, "", false)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrInvalidTransition))
}

func TestService_UpdateStatus_FailedAllowsRerun(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "run_f", "cp_1234")
	require.NoError(t, err)

	require.NoError(t, svc.UpdateStatus(ctx, "run_f", model.Phase2, model.PhaseStatusInProgress, "", false))
	require.NoError(t, svc.UpdateStatus(ctx, "run_f", model.Phase2, model.PhaseStatusFailed, "batch expired", false))

	entry, err := svc.Get(ctx, "run_f")
	require.NoError(t, err)
	assert.Equal(t, "batch expired", entry.PhaseErrors[model.Phase2])

	// A failed phase may be restarted without force.
	require.NoError(t, svc.UpdateStatus(ctx, "run_f", model.Phase2, model.PhaseStatusInProgress, "", false))
	require.NoError(t, svc.UpdateStatus(ctx, "run_f", model.Phase2, model.PhaseStatusComplete, "", false))

	entry, err = svc.Get(ctx, "run_f")
	require.NoError(t, err)
	assert.Empty(t, entry.PhaseErrors[model.Phase2])
}

func TestService_UpdateStatus_ForceOverrides(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "run_force", "cp_1234")
	require.NoError(t, err)

	require.NoError(t, svc.UpdateStatus(ctx, "run_force", model.Phase3, model.PhaseStatusComplete, "", true))
	require.NoError(t, svc.UpdateStatus(ctx, "run_force", model.Phase3, model.PhaseStatusPending, "", true))

	entry, err := svc.Get(ctx, "run_force")
	require.NoError(t, err)
	assert.Equal(t, model.PhaseStatusPending, entry.PhaseStatus[model.Phase3])
}

func TestService_UpdateStatus_UnknownPhase(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "run_u", "cp_1234")
	require.NoError(t, err)

	err = svc.UpdateStatus(ctx, "run_u", model.Phase("phase9"), model.PhaseStatusInProgress, "", false)
	require.Error(t, err)
}

func TestService_UpdateStatus_AppendsAudit(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "run_audit", "cp_1234")
	require.NoError(t, err)

	require.NoError(t, svc.UpdateStatus(ctx, "run_audit", model.Phase0, model.PhaseStatusInProgress, "", false))

	events, err := svc.Store().ListAudit(ctx, "run_audit")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "phase_status_change", events[0].Kind)
	assert.Equal(t, "pending", events[0].Context["from"])
	assert.Equal(t, "in_progress", events[0].Context["to"])
}

func TestService_CheckPrerequisite(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "run_p", "cp_1234")
	require.NoError(t, err)

	// Phase0 has no predecessor.
	require.NoError(t, svc.CheckPrerequisite(ctx, "run_p", model.Phase0))

	err = svc.CheckPrerequisite(ctx, "run_p", model.Phase1)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrPrerequisiteNotMet))

	require.NoError(t, svc.UpdateStatus(ctx, "run_p", model.Phase0, model.PhaseStatusComplete, "", true))
	require.NoError(t, svc.CheckPrerequisite(ctx, "run_p", model.Phase1))

	// Phase1_5 requires phase1, not phase0.
	err = svc.CheckPrerequisite(ctx, "run_p", model.Phase15)
	require.Error(t, err)
}

func TestService_SetArtifactAndDeliverableReady(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "run_d", "cp_1234")
	require.NoError(t, err)

	require.NoError(t, svc.SetArtifact(ctx, "run_d", "idm", "cp_1234/run_d/phase5_idm-v2.json", "idm-v2"))

	for _, p := range model.PhaseOrder {
		require.NoError(t, svc.UpdateStatus(ctx, "run_d", p, model.PhaseStatusComplete, "", true))
	}

	entry, err := svc.Get(ctx, "run_d")
	require.NoError(t, err)
	assert.True(t, entry.DeliverableReady())
	assert.Equal(t, "idm-v2", entry.Versions["idm"])
}

func TestService_FlagManualReview(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "run_m", "cp_1234")
	require.NoError(t, err)

	require.NoError(t, svc.FlagManualReview(ctx, "run_m", model.Phase15, "fallback rate 0.42 exceeds 0.30"))

	entry, err := svc.Get(ctx, "run_m")
	require.NoError(t, err)
	assert.True(t, entry.ManualReview)

	events, err := svc.Store().ListAudit(ctx, "run_m")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "manual_review_flagged", events[0].Kind)
}
