package gamification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMedalCatalog(t *testing.T) {
	medals := Medals()
	require.Len(t, medals, 10)
	assert.Equal(t, 10, TotalMedals())

	families := map[MedalFamily]int{}
	for _, m := range medals {
		families[m.Family]++
		assert.NotEmpty(t, m.Name, m.ID)
		assert.NotEmpty(t, m.Description, m.ID)
		assert.NotEmpty(t, m.Icon, m.ID)
	}
	assert.Equal(t, map[MedalFamily]int{
		FamilyLessons:   4,
		FamilyRatings:   2,
		FamilyReferrals: 2,
		FamilyTime:      2,
	}, families)

	_, ok := LookupMedal("NOPE")
	assert.False(t, ok)
}

func TestTimeMedalForHour(t *testing.T) {
	tests := []struct {
		hour  int
		want  MedalID
		found bool
	}{
		{0, MedalEarlyBird, true},
		{6, MedalEarlyBird, true},
		{7, "", false},
		{12, "", false},
		{21, "", false},
		{22, MedalNightOwl, true},
		{23, MedalNightOwl, true},
	}
	for _, tt := range tests {
		got, ok := TimeMedalForHour(tt.hour)
		assert.Equal(t, tt.found, ok, "hour=%d", tt.hour)
		assert.Equal(t, tt.want, got, "hour=%d", tt.hour)
	}
}

func TestMilestonePolicyExact(t *testing.T) {
	lessons := LessonMilestones()
	for count := 0; count <= 25; count++ {
		due := PolicyExact.Due(count, lessons)
		switch count {
		case 1:
			assert.Equal(t, []MedalID{MedalFirstLesson}, due)
		case 5:
			assert.Equal(t, []MedalID{MedalFiveLessons}, due)
		case 10:
			assert.Equal(t, []MedalID{MedalTenLessons}, due)
		case 20:
			assert.Equal(t, []MedalID{MedalTwentyLessons}, due)
		default:
			assert.Empty(t, due, "count=%d", count)
		}
	}
}

func TestMilestonePolicyAtLeast(t *testing.T) {
	due := PolicyAtLeast.Due(6, LessonMilestones())
	assert.Equal(t, []MedalID{MedalFirstLesson, MedalFiveLessons}, due)

	assert.Empty(t, PolicyAtLeast.Due(0, RatingMilestones()))
}

func TestParseMilestonePolicy(t *testing.T) {
	p, err := ParseMilestonePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyExact, p)

	p, err = ParseMilestonePolicy(" AT_LEAST ")
	require.NoError(t, err)
	assert.Equal(t, PolicyAtLeast, p)

	_, err = ParseMilestonePolicy("sometimes")
	assert.Error(t, err)
}

func TestStudentMedalsAreAppendOnly(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s, err := NewStudent(NewStudentParams{ID: "s1", UserID: "u1", ReferralCode: "ABCDEFGH", Now: now})
	require.NoError(t, err)

	assert.True(t, s.GrantMedal(MedalFirstLesson, now))
	assert.False(t, s.GrantMedal(MedalFirstLesson, now))
	assert.True(t, s.GrantMedal(MedalNightOwl, now))
	assert.Equal(t, []MedalID{MedalFirstLesson, MedalNightOwl}, s.Medals)
}

func TestStudentLevelRatchet(t *testing.T) {
	now := time.Now()
	s, err := NewStudent(NewStudentParams{ID: "s1", UserID: "u1", ReferralCode: "ABCDEFGH", Now: now})
	require.NoError(t, err)
	assert.Equal(t, MinLevel, s.Level)

	assert.True(t, s.RaiseLevel(3, now))
	assert.False(t, s.RaiseLevel(2, now))
	assert.Equal(t, 3, s.Level)
}

func TestBuildInfo(t *testing.T) {
	s := &Student{UserID: "u1", Points: 120, Level: 2, Medals: []MedalID{MedalFirstLesson, MedalFiveLessons}}
	info := BuildInfo(s)

	assert.Equal(t, 120, info.Points)
	assert.Equal(t, 2, info.Level.Level)
	require.NotNil(t, info.NextLevel)
	assert.Equal(t, 3, info.NextLevel.Level)
	assert.Equal(t, 180, info.PointsToNextLevel)
	assert.Len(t, info.Medals, 2)
	assert.Equal(t, 10, info.TotalMedals)

	top := BuildInfo(&Student{UserID: "u2", Points: 4200, Level: 8})
	assert.Nil(t, top.NextLevel)
	assert.Equal(t, 0, top.PointsToNextLevel)
	assert.Empty(t, top.Medals)
}

func TestLessonCompletionAward(t *testing.T) {
	assert.Equal(t, 60, LessonCompletionAward(1))
	assert.Equal(t, 10, LessonCompletionAward(2))
}
