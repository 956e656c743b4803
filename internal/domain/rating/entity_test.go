package rating

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/drivehub/drivehub-api/internal/domain/shared"
)

func TestSummaryRollingAverage(t *testing.T) {
	now := time.Now()
	s := &Summary{UserID: "u1"}

	s.Add(5, now)
	assert.Equal(t, 1, s.Count)
	assert.InDelta(t, 5.0, s.Average, 1e-9)

	s.Add(4, now)
	assert.InDelta(t, 4.5, s.Average, 1e-9)

	s.Add(3, now)
	assert.Equal(t, 3, s.Count)
	assert.InDelta(t, 4.0, s.Average, 1e-9)
}

func TestNewRatingValidation(t *testing.T) {
	now := time.Now()

	for _, score := range []int{0, 6, -1} {
		_, err := NewRating("r1", "l1", "a", "b", score, "", now)
		assert.True(t, errors.Is(err, shared.ErrValueOutOfRange), "score=%d", score)
	}

	_, err := NewRating("r1", "l1", "a", "a", 4, "", now)
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))

	r, err := NewRating("r1", "l1", "a", "b", 5, "great", now)
	assert.NoError(t, err)
	assert.True(t, r.IsPerfect())
}
