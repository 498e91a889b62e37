package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProposalStatus_Transitions(t *testing.T) {
	t.Run("forward path", func(t *testing.T) {
		s := StatusDraft
		var path []ProposalStatus
		for {
			next, ok := s.Next()
			if !ok {
				break
			}
			require.True(t, s.CanTransitionTo(next), "%s -> %s", s, next)
			path = append(path, next)
			s = next
		}
		require.Equal(t, stageOrder[1:], path)
		require.Equal(t, StatusApplied, s)
	})

	t.Run("withdraw from every pre-approval status", func(t *testing.T) {
		for _, s := range stageOrder {
			require.Equal(t, s.IsPreApproval(), s.CanTransitionTo(StatusWithdrawn), s)
		}
	})

	t.Run("objection stage branches", func(t *testing.T) {
		require.True(t, StatusObjectionStage.CanTransitionTo(StatusAmendStage))
		require.True(t, StatusObjectionStage.CanTransitionTo(StatusRejected))
		require.False(t, StatusIntegrationStage.CanTransitionTo(StatusRejected))
		require.False(t, StatusSubmitted.CanTransitionTo(StatusApproved), "no skipping stages")
	})

	t.Run("terminal statuses", func(t *testing.T) {
		for _, s := range []ProposalStatus{StatusApplied, StatusWithdrawn, StatusRejected} {
			require.True(t, s.IsFinal())
			require.True(t, s.IsDecided())
			require.False(t, s.IsPreApproval())
			for target := range validTransitions {
				require.False(t, s.CanTransitionTo(target), "%s -> %s", s, target)
			}
		}
		require.True(t, StatusApproved.IsDecided())
		require.False(t, StatusApproved.IsFinal())
	})

	t.Run("unknown status", func(t *testing.T) {
		require.False(t, ProposalStatus("VOTING").IsValid())
		require.False(t, ProposalStatus("VOTING").CanTransitionTo(StatusApproved))
		_, ok := ProposalStatus("VOTING").Next()
		require.False(t, ok)
	})
}
