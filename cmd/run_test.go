package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/assessment-cli/internal/model"
)

func TestSelectPhasesDefaultsToFullPipeline(t *testing.T) {
	phases, err := selectPhases("", "", "")
	require.NoError(t, err)
	assert.Equal(t, model.PhaseOrder, phases)
}

func TestSelectPhasesSingle(t *testing.T) {
	phases, err := selectPhases(string(model.Phase15), "", "")
	require.NoError(t, err)
	assert.Equal(t, []model.Phase{model.Phase15}, phases)
}

func TestSelectPhasesRange(t *testing.T) {
	phases, err := selectPhases("", string(model.Phase1), string(model.Phase3))
	require.NoError(t, err)
	assert.Equal(t, []model.Phase{model.Phase1, model.Phase15, model.Phase2, model.Phase3}, phases)
}

func TestSelectPhasesOpenEndedRange(t *testing.T) {
	phases, err := selectPhases("", string(model.Phase4), "")
	require.NoError(t, err)
	assert.Equal(t, []model.Phase{model.Phase4, model.Phase5}, phases)
}

func TestSelectPhasesErrors(t *testing.T) {
	tests := []struct {
		name  string
		phase string
		from  string
		to    string
	}{
		{"phase with range", string(model.Phase1), string(model.Phase2), ""},
		{"unknown phase", "phase9", "", ""},
		{"unknown from", "", "phase9", ""},
		{"unknown to", "", "", "phase9"},
		{"inverted range", "", string(model.Phase3), string(model.Phase1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := selectPhases(tt.phase, tt.from, tt.to)
			assert.Error(t, err)
		})
	}
}
