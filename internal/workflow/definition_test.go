package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataanalyst1029/rfg-standardized-forms-sub001/internal/models"
)

func purchaseDefinition() Definition {
	return Definition{
		FormType:   "purchase_request",
		CodePrefix: "PR",
		Stages: []StageSpec{
			{Name: "Endorse", Role: "endorser", Evidence: EvidenceSpec{ActorName: true, Signature: true}},
			{Name: "Approve", Role: "approver", Evidence: EvidenceSpec{ActorName: true, Signature: true}},
		},
	}
}

func transferDefinition() Definition {
	return Definition{
		FormType:   "interbranch_transfer",
		CodePrefix: "IBT",
		Stages: []StageSpec{
			{Name: "Endorse", Role: "endorser", Evidence: EvidenceSpec{ActorName: true, Signature: true}},
			{Name: "Approve", Role: "approver", Evidence: EvidenceSpec{ActorName: true, Signature: true}},
			{Name: "Dispatch", Role: "dispatcher", Evidence: EvidenceSpec{ActorName: true, Signature: true, ExtraFields: []string{"carrier"}}},
			{Name: "Receive", Role: "receiver", Evidence: EvidenceSpec{ActorName: true, Signature: true}},
		},
	}
}

func TestNewRegistry_Validation(t *testing.T) {
	tests := []struct {
		name    string
		defs    []Definition
		wantErr bool
	}{
		{
			name: "valid definitions",
			defs: []Definition{purchaseDefinition(), transferDefinition()},
		},
		{
			name:    "no definitions",
			defs:    nil,
			wantErr: true,
		},
		{
			name:    "no stages",
			defs:    []Definition{{FormType: "empty", CodePrefix: "EM"}},
			wantErr: true,
		},
		{
			name: "missing role",
			defs: []Definition{{
				FormType:   "broken",
				CodePrefix: "BR",
				Stages:     []StageSpec{{Name: "Endorse"}},
			}},
			wantErr: true,
		},
		{
			name: "duplicate stage name",
			defs: []Definition{{
				FormType:   "broken",
				CodePrefix: "BR",
				Stages: []StageSpec{
					{Name: "Endorse", Role: "endorser"},
					{Name: "Endorse", Role: "approver"},
				},
			}},
			wantErr: true,
		},
		{
			name: "stage name collides with terminal marker",
			defs: []Definition{{
				FormType:   "broken",
				CodePrefix: "BR",
				Stages:     []StageSpec{{Name: "COMPLETED", Role: "approver"}},
			}},
			wantErr: true,
		},
		{
			name:    "duplicate form type",
			defs:    []Definition{purchaseDefinition(), purchaseDefinition()},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.defs)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrConfiguration)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestRegistry_FirstStage(t *testing.T) {
	registry, err := NewRegistry([]Definition{purchaseDefinition()})
	require.NoError(t, err)

	stage, err := registry.FirstStage("purchase_request")
	require.NoError(t, err)
	assert.Equal(t, "Endorse", stage.Name)
	assert.Equal(t, "endorser", stage.Role)

	_, err = registry.FirstStage("unknown_form")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestRegistry_StageFor(t *testing.T) {
	registry, err := NewRegistry([]Definition{transferDefinition()})
	require.NoError(t, err)

	stage, err := registry.StageFor("interbranch_transfer", "Dispatch")
	require.NoError(t, err)
	assert.Equal(t, "dispatcher", stage.Role)
	assert.Equal(t, []string{"carrier"}, stage.Evidence.ExtraFields)

	_, err = registry.StageFor("interbranch_transfer", "Audit")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestRegistry_NextStatus(t *testing.T) {
	registry, err := NewRegistry([]Definition{purchaseDefinition()})
	require.NoError(t, err)

	next, err := registry.NextStatus("purchase_request", "Endorse")
	require.NoError(t, err)
	assert.Equal(t, models.Status("Approve"), next)

	next, err = registry.NextStatus("purchase_request", "Approve")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, next)

	_, err = registry.NextStatus("purchase_request", "Dispatch")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestRegistry_RoleStages(t *testing.T) {
	registry, err := NewRegistry([]Definition{purchaseDefinition(), transferDefinition()})
	require.NoError(t, err)

	stages := registry.RoleStages("endorser")
	assert.Equal(t, []string{"Endorse"}, stages["purchase_request"])
	assert.Equal(t, []string{"Endorse"}, stages["interbranch_transfer"])

	stages = registry.RoleStages("dispatcher")
	assert.Len(t, stages, 1)
	assert.Equal(t, []string{"Dispatch"}, stages["interbranch_transfer"])

	assert.Empty(t, registry.RoleStages("nobody"))
}

func TestRegistry_StageOrder(t *testing.T) {
	registry, err := NewRegistry([]Definition{transferDefinition()})
	require.NoError(t, err)

	for i, name := range []string{"Endorse", "Approve", "Dispatch", "Receive"} {
		order, err := registry.StageOrder("interbranch_transfer", name)
		require.NoError(t, err)
		assert.Equal(t, i, order)
	}
}
