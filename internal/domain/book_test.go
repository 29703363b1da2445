package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	tt, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("bad time %q: %v", s, err)
	}
	return tt.UTC()
}

func draftBook(t *testing.T) *Book {
	t.Helper()
	now := mustTime(t, "2026-03-01T10:00:00Z")
	b, err := NewDraft("owner-1", "The Go Workbook", "R. Pike", "exercises", d("25.00"), now)
	require.NoError(t, err)
	return b
}

func TestNewDraft_Validation(t *testing.T) {
	now := mustTime(t, "2026-03-01T10:00:00Z")

	t.Run("valid_draft", func(t *testing.T) {
		b, err := NewDraft("owner-1", "Title", "Author", "", d("10"), now)
		assert.NoError(t, err)
		assert.Equal(t, StateDraft, b.State)
		assert.NotEmpty(t, b.ID)
	})

	t.Run("fail_on_empty_owner", func(t *testing.T) {
		_, err := NewDraft("", "Title", "Author", "", d("10"), now)
		assert.Error(t, err)
		assert.Equal(t, CodeValidation, err.(*AppError).Code)
	})

	t.Run("fail_on_negative_price", func(t *testing.T) {
		_, err := NewDraft("owner-1", "Title", "Author", "", d("-1"), now)
		assert.Error(t, err)
	})
}

func TestApply_HappyPath(t *testing.T) {
	now := mustTime(t, "2026-03-01T10:00:00Z")
	b := draftBook(t)

	res, err := b.Apply(ActionAwait, RoleOwner, "", now)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, StateAwaitingApproval, b.State)

	res, err = b.Apply(ActionApprove, RoleModerator, "", now)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Empty(t, res.Emits)
	assert.Equal(t, StateApproved, b.State)

	res, err = b.Apply(ActionHide, RoleOwner, "", now)
	require.NoError(t, err)
	assert.Equal(t, StateHidden, b.State)

	// hidden books can be resubmitted
	_, err = b.Apply(ActionAwait, RoleOwner, "", now)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingApproval, b.State)
}

func TestApply_AwaitIsRetrySafe(t *testing.T) {
	now := mustTime(t, "2026-03-01T10:00:00Z")
	b := draftBook(t)

	res, err := b.Apply(ActionAwait, RoleOwner, "", now)
	require.NoError(t, err)
	assert.True(t, res.Changed)

	res, err = b.Apply(ActionAwait, RoleOwner, "", now)
	require.NoError(t, err)
	assert.False(t, res.Changed, "second await must be a no-op, not an error")
	assert.Equal(t, StateAwaitingApproval, b.State)
}

func TestApply_IllegalTransitions(t *testing.T) {
	now := mustTime(t, "2026-03-01T10:00:00Z")

	t.Run("approve_from_approved", func(t *testing.T) {
		b := draftBook(t)
		b.State = StateApproved
		_, err := b.Apply(ActionApprove, RoleModerator, "", now)
		assert.Error(t, err)
		assert.Equal(t, CodeInvalidState, err.(*AppError).Code)
	})

	t.Run("approve_after_hide", func(t *testing.T) {
		b := draftBook(t)
		b.State = StateRejected
		_, err := b.Apply(ActionHide, RoleOwner, "", now)
		require.NoError(t, err)
		assert.Equal(t, StateHidden, b.State)

		_, err = b.Apply(ActionApprove, RoleModerator, "", now)
		assert.Error(t, err)
		assert.Equal(t, CodeInvalidState, err.(*AppError).Code)
	})

	t.Run("reactivate_active_book", func(t *testing.T) {
		b := draftBook(t)
		b.State = StateApproved
		_, err := b.Apply(ActionReactivate, RoleAdmin, "", now)
		assert.Error(t, err)
		assert.Equal(t, CodeInvalidState, err.(*AppError).Code)
	})
}

func TestApply_RoleGates(t *testing.T) {
	now := mustTime(t, "2026-03-01T10:00:00Z")

	t.Run("owner_cannot_approve", func(t *testing.T) {
		b := draftBook(t)
		b.State = StateAwaitingApproval
		_, err := b.Apply(ActionApprove, RoleOwner, "", now)
		assert.Error(t, err)
		assert.Equal(t, CodeForbidden, err.(*AppError).Code)
	})

	t.Run("moderator_cannot_deactivate", func(t *testing.T) {
		b := draftBook(t)
		b.State = StateApproved
		_, err := b.Apply(ActionDeactivate, RoleModerator, "", now)
		assert.Error(t, err)
		assert.Equal(t, CodeForbidden, err.(*AppError).Code)
	})

	t.Run("admin_satisfies_moderator_rows", func(t *testing.T) {
		b := draftBook(t)
		b.State = StateAwaitingApproval
		_, err := b.Apply(ActionApprove, RoleAdmin, "", now)
		assert.NoError(t, err)
	})

	t.Run("moderator_cannot_hide_for_owner", func(t *testing.T) {
		b := draftBook(t)
		b.State = StateApproved
		_, err := b.Apply(ActionHide, RoleModerator, "", now)
		assert.Error(t, err)
		assert.Equal(t, CodeForbidden, err.(*AppError).Code)
	})
}

func TestApply_RejectNeedsReason(t *testing.T) {
	now := mustTime(t, "2026-03-01T10:00:00Z")
	b := draftBook(t)
	b.State = StateAwaitingApproval

	_, err := b.Apply(ActionReject, RoleModerator, "  ", now)
	assert.Error(t, err)
	assert.Equal(t, CodeValidation, err.(*AppError).Code)

	res, err := b.Apply(ActionReject, RoleModerator, "plagiarism", now)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, StateRejected, b.State)
	require.NotNil(t, b.RejectionReason)
	assert.Equal(t, "plagiarism", *b.RejectionReason)
}

func TestApply_DeactivateReactivate(t *testing.T) {
	now := mustTime(t, "2026-03-01T10:00:00Z")

	t.Run("deactivate_emits_and_records_reason", func(t *testing.T) {
		b := draftBook(t)
		b.State = StateApproved
		res, err := b.Apply(ActionDeactivate, RoleAdmin, "copyright claim", now)
		require.NoError(t, err)
		assert.True(t, res.Changed)
		assert.Equal(t, EventBookDeactivated, res.Emits)
		assert.Equal(t, StateDeactivated, b.State)
		assert.Equal(t, StateApproved, b.PriorState)
		require.NotNil(t, b.DeletionReason)
		assert.Equal(t, "copyright claim", *b.DeletionReason)
	})

	t.Run("deactivate_reason_optional", func(t *testing.T) {
		b := draftBook(t)
		b.State = StateHidden
		res, err := b.Apply(ActionDeactivate, RoleAdmin, "", now)
		require.NoError(t, err)
		assert.Equal(t, EventBookDeactivated, res.Emits)
		assert.Nil(t, b.DeletionReason)
	})

	t.Run("reactivate_restores_prior_state", func(t *testing.T) {
		b := draftBook(t)
		b.State = StateApproved
		_, err := b.Apply(ActionDeactivate, RoleAdmin, "spam", now)
		require.NoError(t, err)

		res, err := b.Apply(ActionReactivate, RoleAdmin, "", now)
		require.NoError(t, err)
		assert.Equal(t, EventBookReactivated, res.Emits)
		assert.Equal(t, StateApproved, b.State)
		assert.Nil(t, b.DeletionReason)
		assert.Empty(t, b.PriorState)
	})
}

// AllowedActions must agree with Apply for every state/role pair: an action is
// listed iff Apply with that role from that state does not fail legality or
// role checks.
func TestAllowedActions_MatchesTable(t *testing.T) {
	now := mustTime(t, "2026-03-01T10:00:00Z")

	want := map[BookState]map[Role][]Action{
		StateDraft: {
			RoleOwner:     {ActionAwait},
			RoleModerator: {},
			RoleAdmin:     {ActionDeactivate},
		},
		StateAwaitingApproval: {
			RoleOwner:     {ActionAwait},
			RoleModerator: {ActionApprove, ActionReject},
			RoleAdmin:     {ActionApprove, ActionReject, ActionDeactivate},
		},
		StateApproved: {
			RoleOwner:     {ActionHide},
			RoleModerator: {},
			RoleAdmin:     {ActionDeactivate},
		},
		StateRejected: {
			RoleOwner:     {ActionHide},
			RoleModerator: {},
			RoleAdmin:     {ActionDeactivate},
		},
		StateHidden: {
			RoleOwner:     {ActionAwait},
			RoleModerator: {},
			RoleAdmin:     {ActionDeactivate},
		},
		StateDeactivated: {
			RoleOwner:     {},
			RoleModerator: {},
			RoleAdmin:     {ActionReactivate},
		},
	}

	for state, byRole := range want {
		for role, expected := range byRole {
			b := draftBook(t)
			b.State = state
			if state == StateDeactivated {
				b.PriorState = StateApproved
			}
			got := b.AllowedActions(role)
			assert.ElementsMatch(t, expected, got, "state=%s role=%s", state, role)

			// cross-check against Apply
			for _, a := range got {
				reason := ""
				if a == ActionReject {
					reason = "r"
				}
				bb := *b
				_, err := (&bb).Apply(a, role, reason, now)
				assert.NoError(t, err, "listed action %s must be applicable (state=%s role=%s)", a, state, role)
			}
		}
	}
}

func TestSetDiscount(t *testing.T) {
	now := mustTime(t, "2026-03-01T10:00:00Z")
	start := now.Add(time.Hour)
	end := now.Add(48 * time.Hour)

	t.Run("valid_discount", func(t *testing.T) {
		b := draftBook(t)
		b.State = StateApproved
		err := b.SetDiscount(20, start, end, now)
		require.NoError(t, err)
		require.NotNil(t, b.DiscountPercentage)
		assert.Equal(t, 20, *b.DiscountPercentage)
	})

	t.Run("deactivated_book_rejected", func(t *testing.T) {
		b := draftBook(t)
		b.State = StateDeactivated
		err := b.SetDiscount(20, start, end, now)
		assert.Error(t, err)
		assert.Equal(t, CodeInvalidState, err.(*AppError).Code)
	})

	t.Run("inverted_window_rejected", func(t *testing.T) {
		b := draftBook(t)
		err := b.SetDiscount(20, end, start, now)
		assert.Error(t, err)
		assert.Equal(t, CodeInvalidDiscount, err.(*AppError).Code)
	})

	t.Run("twenty_percent_off_hundred", func(t *testing.T) {
		b := draftBook(t)
		b.Price = d("100")
		require.NoError(t, b.SetDiscount(20, now, now.Add(24*time.Hour), now))

		got, err := b.EffectivePrice(now.Add(1 * time.Hour))
		require.NoError(t, err)
		assert.True(t, got.Equal(d("80")), "got %s", got)

		got, err = b.EffectivePrice(now.Add(48 * time.Hour))
		require.NoError(t, err)
		assert.True(t, got.Equal(d("100")), "got %s", got)
	})
}
