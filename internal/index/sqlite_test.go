package index

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/assessment-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testEntry(runID string) *model.AssessmentIndexEntry {
	now := time.Now().UTC()
	entry := &model.AssessmentIndexEntry{
		AssessmentRunID:  runID,
		CompanyProfileID: "cp_0011223344556677",
		ArtifactKeys:     map[string]string{},
		PhaseStatus:      map[model.Phase]model.PhaseStatus{},
		Versions:         map[string]string{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for _, p := range model.PhaseOrder {
		entry.PhaseStatus[p] = model.PhaseStatusPending
	}
	return entry
}

func TestSQLite_CreateAndGetEntry(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	entry := testEntry("run_1")
	require.NoError(t, st.CreateEntry(ctx, entry))

	got, err := st.GetEntry(ctx, "run_1")
	require.NoError(t, err)
	assert.Equal(t, "cp_0011223344556677", got.CompanyProfileID)
	assert.Equal(t, model.PhaseStatusPending, got.PhaseStatus[model.Phase0])
	assert.Len(t, got.PhaseStatus, len(model.PhaseOrder))
}

func TestSQLite_CreateEntry_Duplicate(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateEntry(ctx, testEntry("run_dup")))
	err := st.CreateEntry(ctx, testEntry("run_dup"))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrDuplicateRun))
}

func TestSQLite_GetEntry_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetEntry(context.Background(), "run_missing")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrRunNotFound))
}

func TestSQLite_PutEntry_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	entry := testEntry("run_2")
	require.NoError(t, st.CreateEntry(ctx, entry))

	entry.PhaseStatus[model.Phase0] = model.PhaseStatusComplete
	entry.ArtifactKeys["normalized_company_profile"] = "cp_x/run_2/phase0_v3.json"
	entry.Versions["normalized_company_profile"] = "v3"
	entry.UpdatedAt = time.Now().UTC()
	require.NoError(t, st.PutEntry(ctx, entry))

	got, err := st.GetEntry(ctx, "run_2")
	require.NoError(t, err)
	assert.Equal(t, model.PhaseStatusComplete, got.PhaseStatus[model.Phase0])
	assert.Equal(t, "cp_x/run_2/phase0_v3.json", got.ArtifactKeys["normalized_company_profile"])
}

func TestSQLite_ListEntries_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := testEntry("run_a")
	a.CompanyProfileID = "cp_aaaa"
	require.NoError(t, st.CreateEntry(ctx, a))

	b := testEntry("run_b")
	b.CompanyProfileID = "cp_bbbb"
	b.ManualReview = true
	require.NoError(t, st.CreateEntry(ctx, b))

	byCompany, err := st.ListEntries(ctx, Filter{CompanyProfileID: "cp_aaaa"})
	require.NoError(t, err)
	require.Len(t, byCompany, 1)
	assert.Equal(t, "run_a", byCompany[0].AssessmentRunID)

	review := true
	flagged, err := st.ListEntries(ctx, Filter{ManualReview: &review})
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, "run_b", flagged[0].AssessmentRunID)
}

func TestSQLite_BatchJobs(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateEntry(ctx, testEntry("run_bj")))

	rec := &model.BatchJobRecord{
		AssessmentRunID: "run_bj",
		Phase:           model.Phase1,
		ProviderBatchID: "msgbatch_123",
		RequestCount:    5,
		Status:          model.BatchJobSubmitted,
	}
	require.NoError(t, st.CreateBatchJob(ctx, rec))
	require.NotEmpty(t, rec.JobID)

	require.NoError(t, st.UpdateBatchJob(ctx, rec.JobID, model.BatchJobEnded, 3))

	jobs, err := st.ListBatchJobs(ctx, "run_bj")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, model.BatchJobEnded, jobs[0].Status)
	assert.Equal(t, 3, jobs[0].PollAttempts)
	assert.Equal(t, "msgbatch_123", jobs[0].ProviderBatchID)
}

func TestSQLite_UpdateBatchJob_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.UpdateBatchJob(context.Background(), "missing", model.BatchJobEnded, 1)
	require.Error(t, err)
}

func TestSQLite_AuditTrail(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	require.NoError(t, st.AppendAudit(ctx, &model.AuditEvent{
		AssessmentRunID: "run_au",
		Phase:           model.Phase15,
		Kind:            "fallback_substituted",
		Context:         map[string]any{"category": "marketing"},
		CreatedAt:       base,
	}))
	require.NoError(t, st.AppendAudit(ctx, &model.AuditEvent{
		AssessmentRunID: "run_au",
		Phase:           model.Phase15,
		Kind:            "phase_status_change",
		CreatedAt:       base.Add(time.Second),
	}))

	events, err := st.ListAudit(ctx, "run_au")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "fallback_substituted", events[0].Kind)
	assert.Equal(t, "marketing", events[0].Context["category"])
	assert.Nil(t, events[1].Context)
}
