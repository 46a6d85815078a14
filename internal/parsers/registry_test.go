package parsers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/lotwatch/internal/models"
)

func TestLookupCollapsesVariants(t *testing.T) {
	entry, err := Lookup(models.BackendCDKGlobal)
	require.NoError(t, err)
	assert.NotNil(t, entry.Parse)
	assert.Equal(t, FollowupCDK, entry.Followup)
	assert.False(t, entry.RawHTML)

	entry, err = Lookup(models.BackendDealerVenom)
	require.NoError(t, err)
	assert.NotNil(t, entry.Parse)
	assert.Equal(t, FollowupTypesense, entry.Followup)
}

func TestLookupRawMarkupBackends(t *testing.T) {
	for _, backend := range []models.Backend{models.BackendDealerOn, models.BackendSmartPath} {
		entry, err := Lookup(backend)
		require.NoError(t, err)
		assert.Nil(t, entry.Parse)
		assert.True(t, entry.RawHTML)
		assert.Equal(t, FollowupNone, entry.Followup)
	}

	// Team Velocity parses in one pass but still needs markup: its rows live
	// in ld+json scripts that rendered markdown drops.
	entry, err := Lookup(models.BackendTeamVelocity)
	require.NoError(t, err)
	assert.NotNil(t, entry.Parse)
	assert.True(t, entry.RawHTML)
}

func TestLookupUnknownBackend(t *testing.T) {
	_, err := Lookup(models.Backend("SHIFT_DIGITAL"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownBackend))
	assert.Contains(t, err.Error(), "SHIFT_DIGITAL")
}

func TestLookupFollowups(t *testing.T) {
	entry, err := Lookup(models.BackendDealerInspire)
	require.NoError(t, err)
	assert.Equal(t, FollowupAlgolia, entry.Followup)

	entry, err = Lookup(models.BackendDealerCom)
	require.NoError(t, err)
	assert.Equal(t, FollowupNone, entry.Followup)
}
