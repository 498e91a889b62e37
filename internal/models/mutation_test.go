package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestMutation_Validate(t *testing.T) {
	id := NewID()

	tests := []struct {
		name    string
		typ     ProposalType
		m       *Mutation
		wantErr bool
	}{
		{"process optimization without change", ProposalTypeProcessOptimization, nil, false},
		{"process optimization with change", ProposalTypeProcessOptimization, &Mutation{Policy: &PolicyChange{Title: "x"}}, true},
		{"role create", ProposalTypeRoleModification, &Mutation{Role: &RoleChange{Op: OpCreate, Name: "Scribe", Accountabilities: []string{"Notes"}}}, false},
		{"role create without accountabilities", ProposalTypeRoleModification, &Mutation{Role: &RoleChange{Op: OpCreate, Name: "Scribe"}}, true},
		{"role delete without id", ProposalTypeRoleModification, &Mutation{Role: &RoleChange{Op: OpDelete}}, true},
		{"role with unnamed domain", ProposalTypeRoleModification, &Mutation{Role: &RoleChange{Op: OpUpdate, RoleID: &id, Domains: []Domain{{}}}}, true},
		{"role type with circle change", ProposalTypeRoleModification, &Mutation{Circle: &CircleChange{Op: OpCreate, Name: "x"}}, true},
		{"circle move", ProposalTypeCircleStructureChange, &Mutation{Circle: &CircleChange{Op: OpMove, CircleID: &id, ParentID: &id}}, false},
		{"circle move without parent", ProposalTypeCircleStructureChange, &Mutation{Circle: &CircleChange{Op: OpMove, CircleID: &id}}, true},
		{"circle split", ProposalTypeCircleStructureChange, &Mutation{Circle: &CircleChange{Op: OpSplit, CircleID: &id, Name: "Ops"}}, false},
		{"circle unknown op", ProposalTypeCircleStructureChange, &Mutation{Circle: &CircleChange{Op: "merge"}}, true},
		{"policy", ProposalTypePolicyAdjustment, &Mutation{Policy: &PolicyChange{Title: "Spending"}}, false},
		{"policy without title", ProposalTypePolicyAdjustment, &Mutation{Policy: &PolicyChange{}}, true},
		{"unknown type", ProposalType("VOTE"), nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.m.Validate(tt.typ)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidMutation)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestMutation_Clone(t *testing.T) {
	var nilMutation *Mutation
	require.Nil(t, nilMutation.Clone())

	parent := NewID()
	m := &Mutation{Circle: &CircleChange{Op: OpSplit, ParentID: &parent, RoleIDs: []uuid.UUID{NewID()}}}
	clone := m.Clone()
	*clone.Circle.ParentID = NewID()
	clone.Circle.RoleIDs[0] = NewID()

	require.Equal(t, parent, *m.Circle.ParentID)
	require.NotEqual(t, clone.Circle.RoleIDs[0], m.Circle.RoleIDs[0])
}
