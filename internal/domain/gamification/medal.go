package gamification

import (
	"fmt"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// MEDALS
// ══════════════════════════════════════════════════════════════════════════════

// MedalID identifies a catalog medal.
type MedalID string

const (
	MedalFirstLesson        MedalID = "FIRST_LESSON"
	MedalFiveLessons        MedalID = "FIVE_LESSONS"
	MedalTenLessons         MedalID = "TEN_LESSONS"
	MedalTwentyLessons      MedalID = "TWENTY_LESSONS"
	MedalPerfectRating      MedalID = "PERFECT_RATING"
	MedalFivePerfectRatings MedalID = "FIVE_PERFECT_RATINGS"
	MedalFirstReferral      MedalID = "FIRST_REFERRAL"
	MedalFiveReferrals      MedalID = "FIVE_REFERRALS"
	MedalEarlyBird          MedalID = "EARLY_BIRD"
	MedalNightOwl           MedalID = "NIGHT_OWL"
)

// MedalFamily groups medals by the condition that unlocks them.
type MedalFamily string

const (
	FamilyLessons   MedalFamily = "lessons"
	FamilyRatings   MedalFamily = "ratings"
	FamilyReferrals MedalFamily = "referrals"
	FamilyTime      MedalFamily = "time"
)

// Medal is an immutable catalog entry.
type Medal struct {
	ID          MedalID     `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Icon        string      `json:"icon"`
	Family      MedalFamily `json:"family"`
}

// Milestone binds a count threshold to the medal it unlocks.
type Milestone struct {
	Count int
	Medal MedalID
}

var medalCatalog = [...]Medal{
	{MedalFirstLesson, "Primeira Aula", "Concluiu a primeira aula", "🚗", FamilyLessons},
	{MedalFiveLessons, "Pegando o Jeito", "Concluiu 5 aulas", "🛣️", FamilyLessons},
	{MedalTenLessons, "Dez na Estrada", "Concluiu 10 aulas", "🏁", FamilyLessons},
	{MedalTwentyLessons, "Quilometragem Alta", "Concluiu 20 aulas", "🏆", FamilyLessons},
	{MedalPerfectRating, "Nota Máxima", "Recebeu uma avaliação 5 estrelas", "⭐", FamilyRatings},
	{MedalFivePerfectRatings, "Cinco Estrelas", "Recebeu 5 avaliações 5 estrelas", "🌟", FamilyRatings},
	{MedalFirstReferral, "Carona Amiga", "Indicou o primeiro amigo", "🤝", FamilyReferrals},
	{MedalFiveReferrals, "Embaixador", "Indicou 5 amigos", "📣", FamilyReferrals},
	{MedalEarlyBird, "Madrugador", "Fez uma aula antes das 7h", "🌅", FamilyTime},
	{MedalNightOwl, "Coruja", "Fez uma aula depois das 22h", "🦉", FamilyTime},
}

var (
	lessonMilestones = [...]Milestone{
		{1, MedalFirstLesson},
		{5, MedalFiveLessons},
		{10, MedalTenLessons},
		{20, MedalTwentyLessons},
	}
	ratingMilestones = [...]Milestone{
		{1, MedalPerfectRating},
		{5, MedalFivePerfectRatings},
	}
	referralMilestones = [...]Milestone{
		{1, MedalFirstReferral},
		{5, MedalFiveReferrals},
	}
)

// Hour boundaries in the configured local time zone.
const (
	EarlyBirdBeforeHour = 7
	NightOwlFromHour    = 22
)

var medalIndex map[MedalID]Medal

func init() {
	medalIndex = make(map[MedalID]Medal, len(medalCatalog))
	for _, m := range medalCatalog {
		if _, dup := medalIndex[m.ID]; dup {
			panic(fmt.Sprintf("duplicate medal %s", m.ID))
		}
		medalIndex[m.ID] = m
	}
	for _, set := range [][]Milestone{lessonMilestones[:], ratingMilestones[:], referralMilestones[:]} {
		for _, ms := range set {
			if _, ok := medalIndex[ms.Medal]; !ok {
				panic(fmt.Sprintf("milestone references unknown medal %s", ms.Medal))
			}
		}
	}
}

// Medals returns a copy of the catalog in display order.
func Medals() []Medal {
	out := make([]Medal, len(medalCatalog))
	copy(out, medalCatalog[:])
	return out
}

// TotalMedals is the catalog size.
func TotalMedals() int {
	return len(medalCatalog)
}

// LookupMedal returns the catalog entry for id.
func LookupMedal(id MedalID) (Medal, bool) {
	m, ok := medalIndex[id]
	return m, ok
}

// LessonMilestones returns the completed-lesson thresholds.
func LessonMilestones() []Milestone { return append([]Milestone(nil), lessonMilestones[:]...) }

// RatingMilestones returns the perfect-rating thresholds.
func RatingMilestones() []Milestone { return append([]Milestone(nil), ratingMilestones[:]...) }

// ReferralMilestones returns the successful-referral thresholds.
func ReferralMilestones() []Milestone { return append([]Milestone(nil), referralMilestones[:]...) }

// TimeMedalForHour maps a local wall-clock hour to a time-of-day medal.
func TimeMedalForHour(hour int) (MedalID, bool) {
	switch {
	case hour < EarlyBirdBeforeHour:
		return MedalEarlyBird, true
	case hour >= NightOwlFromHour:
		return MedalNightOwl, true
	default:
		return "", false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MILESTONE POLICY
// ══════════════════════════════════════════════════════════════════════════════

// MilestonePolicy decides when a count-based medal is due.
type MilestonePolicy string

const (
	// PolicyExact awards only when the count equals the threshold.
	PolicyExact MilestonePolicy = "exact"
	// PolicyAtLeast awards every threshold the count has reached and the student lacks.
	PolicyAtLeast MilestonePolicy = "at_least"
)

// ParseMilestonePolicy accepts "exact" and "at_least" (case-insensitive).
func ParseMilestonePolicy(s string) (MilestonePolicy, error) {
	switch MilestonePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyExact, "":
		return PolicyExact, nil
	case PolicyAtLeast:
		return PolicyAtLeast, nil
	default:
		return "", fmt.Errorf("unknown milestone policy %q", s)
	}
}

// Due returns the medals a count unlocks under the policy.
// The caller still filters out medals the student already holds.
func (p MilestonePolicy) Due(count int, milestones []Milestone) []MedalID {
	var due []MedalID
	for _, ms := range milestones {
		if count == ms.Count || (p == PolicyAtLeast && count > ms.Count) {
			due = append(due, ms.Medal)
		}
	}
	return due
}
