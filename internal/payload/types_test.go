package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDIsUnique(t *testing.T) {
	a := NewID()
	b := NewID()
	assert.NotEqual(t, a, b)
	assert.False(t, a.IsZero())
}

func TestParseIDRoundTrip(t *testing.T) {
	id := NewID()
	parsed, err := ParseID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParseIDRejectsGarbage(t *testing.T) {
	_, err := ParseID("not-a-uuid")
	assert.Error(t, err)
}

func TestTierOrderingReflectsSpeed(t *testing.T) {
	assert.True(t, TierGpu.Faster(TierRam))
	assert.True(t, TierRam.Faster(TierDisk))
	assert.True(t, TierDisk.Faster(TierObject))
	assert.False(t, TierObject.Faster(TierGpu))
}

func TestParseTierRoundTrip(t *testing.T) {
	for _, tier := range []Tier{TierGpu, TierRam, TierDisk, TierObject} {
		parsed, err := ParseTier(tier.String())
		require.NoError(t, err)
		assert.Equal(t, tier, parsed)
	}
	_, err := ParseTier("quantum")
	assert.Error(t, err)
}

func TestStateTerminal(t *testing.T) {
	assert.True(t, StateDeleted.IsTerminal())
	assert.True(t, StateExpired.IsTerminal())
	assert.False(t, StateActive.IsTerminal())
}

func TestCanTransitionForwardOnly(t *testing.T) {
	assert.True(t, CanTransition(StateAllocated, StateActive))
	assert.True(t, CanTransition(StateActive, StateActive))
	assert.False(t, CanTransition(StateActive, StateAllocated))
}

func TestCanTransitionDeleteAlwaysAllowed(t *testing.T) {
	assert.True(t, CanTransition(StateAllocated, StateDeleted))
	assert.True(t, CanTransition(StateActive, StateDeleted))
	assert.True(t, CanTransition(StateSpilling, StateDeleted))
}

func TestCanTransitionTerminalIsSticky(t *testing.T) {
	assert.False(t, CanTransition(StateDeleted, StateActive))
	assert.False(t, CanTransition(StateExpired, StateDeleted))
}

func TestCanTransitionNeverToUnspecified(t *testing.T) {
	assert.False(t, CanTransition(StateActive, StateUnspecified))
}

func TestLocationTierDerivation(t *testing.T) {
	loc := Location{Disk: &DiskLocation{Path: "/tmp/x", LengthBytes: 42}}
	assert.Equal(t, TierDisk, loc.Tier())
	assert.Equal(t, uint64(42), loc.Length())

	assert.Equal(t, TierUnspecified, Location{}.Tier())
}
