package gamification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLevel(t *testing.T) {
	tests := []struct {
		points    int
		wantLevel int
	}{
		{-10, 1},
		{0, 1},
		{99, 1},
		{100, 2},
		{299, 2},
		{300, 3},
		{599, 3},
		{600, 4},
		{1000, 5},
		{1499, 5},
		{1500, 6},
		{2500, 7},
		{3999, 7},
		{4000, 8},
		{10000, 8},
	}

	for _, tt := range tests {
		got := ResolveLevel(tt.points)
		assert.Equal(t, tt.wantLevel, got.Level, "points=%d", tt.points)
	}

	assert.Equal(t, "Aprendiz", ResolveLevel(100).Name)
}

func TestNextLevel(t *testing.T) {
	next, ok := NextLevel(60)
	require.True(t, ok)
	assert.Equal(t, 2, next.Level)
	assert.Equal(t, 40, PointsToNextLevel(60))

	_, ok = NextLevel(4000)
	assert.False(t, ok)
	assert.Equal(t, 0, PointsToNextLevel(5000))
}

func TestLevelTableIsValid(t *testing.T) {
	levels := Levels()
	require.Len(t, levels, MaxLevel)
	assert.NoError(t, validateLevelTable(levels))

	// Mutating the copy leaves the table alone.
	levels[1].MinPoints = 1
	assert.Equal(t, 100, Levels()[1].MinPoints)

	broken := Levels()
	broken[3].MinPoints = broken[2].MinPoints
	assert.Error(t, validateLevelTable(broken))

	dupName := Levels()
	dupName[4].Name = dupName[0].Name
	assert.Error(t, validateLevelTable(dupName))
}

func TestTierFor(t *testing.T) {
	tier, ok := TierFor(8)
	require.True(t, ok)
	assert.Equal(t, 4000, tier.MinPoints)

	_, ok = TierFor(0)
	assert.False(t, ok)
	_, ok = TierFor(9)
	assert.False(t, ok)
}
