package models

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwnershipValidate(t *testing.T) {
	stateID := uuid.New()

	valid := []Ownership{
		EventWinnerOwnership(uuid.New(), uuid.New(), 1, 2, &stateID),
		EventWinnerOwnership(uuid.New(), uuid.New(), 3, 1, nil),
		ContingentOwnership(uuid.New()),
		StateOwnership(uuid.New()),
		ContestantOwnership(uuid.New()),
		PregeneratedOwnership(),
	}
	for _, o := range valid {
		assert.NoError(t, o.Validate(), string(o.Kind))
	}

	invalid := []Ownership{
		{Kind: OwnershipEventWinner},
		{Kind: OwnershipEventWinner, EventID: &stateID, ContestID: &stateID, Rank: 0, MemberNumber: 1},
		{Kind: OwnershipEventWinner, EventID: &stateID, ContestID: &stateID, Rank: 1, MemberNumber: 0},
		{Kind: OwnershipContingent},
		{Kind: OwnershipState},
		{Kind: OwnershipContestant},
		{Kind: "TROPHY"},
		{},
	}
	for _, o := range invalid {
		assert.Error(t, o.Validate(), string(o.Kind))
	}
}

func TestOwnershipScanRoundtrip(t *testing.T) {
	stateID := uuid.New()
	original := EventWinnerOwnership(uuid.New(), uuid.New(), 2, 5, &stateID)

	value, err := original.Value()
	require.NoError(t, err)

	var restored Ownership
	require.NoError(t, restored.Scan(value))
	assert.Equal(t, original, restored)

	// Postgres drivers hand jsonb back as either bytes or string.
	raw, err := json.Marshal(original)
	require.NoError(t, err)
	var fromString Ownership
	require.NoError(t, fromString.Scan(string(raw)))
	assert.Equal(t, original, fromString)
}

func TestOwnershipBoundFields(t *testing.T) {
	contestID := uuid.New()
	o := EventWinnerOwnership(uuid.New(), contestID, 2, 7, nil)

	fields := o.BoundFields()
	assert.Equal(t, "2", fields["rank"])
	assert.Equal(t, "7", fields["member_number"])
	assert.Equal(t, contestID.String(), fields["contest_id"])
	_, hasState := fields["state_id"]
	assert.False(t, hasState)
}
