package progress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivehub/drivehub-api/internal/domain/gamification"
	"github.com/drivehub/drivehub-api/internal/domain/lesson"
	"github.com/drivehub/drivehub-api/internal/domain/rating"
	"github.com/drivehub/drivehub-api/internal/domain/referral"
	"github.com/drivehub/drivehub-api/internal/domain/shared"
	"github.com/drivehub/drivehub-api/internal/infrastructure/persistence/memory"
)

// ══════════════════════════════════════════════════════════════════════════════
// TEST FIXTURES
// ══════════════════════════════════════════════════════════════════════════════

var brt = time.FixedZone("BRT", -3*60*60)

// afternoon is a lesson time that earns no time-of-day medal.
var afternoon = time.Date(2025, 3, 10, 14, 0, 0, 0, brt)

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

type fixture struct {
	engine    *Engine
	store     *memory.Store
	publisher *recordingPublisher
	seq       int
}

func newFixture(t *testing.T, policy gamification.MilestonePolicy) *fixture {
	t.Helper()

	f := &fixture{
		store:     memory.NewStore(),
		publisher: &recordingPublisher{},
	}
	clock := time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)
	f.engine = NewEngine(
		f.store,
		f.publisher,
		Config{Location: brt, MilestonePolicy: policy},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithClock(func() time.Time { return clock }),
		WithIDGenerator(func() string {
			f.seq++
			return fmt.Sprintf("id-%d", f.seq)
		}),
	)
	return f
}

func (f *fixture) seedStudent(t *testing.T, userID, referredBy string) {
	t.Helper()
	err := f.store.WithinTx(context.Background(), func(ctx context.Context, uow gamification.UnitOfWork) error {
		st, err := gamification.NewStudent(gamification.NewStudentParams{
			ID:           "student-" + userID,
			UserID:       userID,
			ReferralCode: referral.GenerateCode(),
			Now:          time.Now(),
		})
		if err != nil {
			return err
		}
		st.ReferredBy = referredBy
		return uow.Students().Create(ctx, st)
	})
	require.NoError(t, err)
}

// seedCompletedLesson stores a finished lesson so it is counted.
func (f *fixture) seedCompletedLesson(t *testing.T, userID string) string {
	t.Helper()
	f.seq++
	id := fmt.Sprintf("lesson-%d", f.seq)
	err := f.store.WithinTx(context.Background(), func(ctx context.Context, uow gamification.UnitOfWork) error {
		l, err := lesson.NewLesson(id, userID, "instructor-1", afternoon, afternoon)
		if err != nil {
			return err
		}
		if err := l.Complete(afternoon, afternoon); err != nil {
			return err
		}
		return uow.Lessons().Create(ctx, l)
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) completeLesson(t *testing.T, userID string, at time.Time) LessonReward {
	t.Helper()
	id := f.seedCompletedLesson(t, userID)
	reward, err := f.engine.ProcessLessonCompletion(context.Background(), userID, id, at)
	require.NoError(t, err)
	return reward
}

func (f *fixture) student(t *testing.T, userID string) *gamification.Student {
	t.Helper()
	var st *gamification.Student
	err := f.store.ReadOnly(context.Background(), func(ctx context.Context, uow gamification.UnitOfWork) error {
		var err error
		st, err = uow.Students().GetByUserID(ctx, userID)
		return err
	})
	require.NoError(t, err)
	return st
}

func (f *fixture) activity(t *testing.T, userID string) []gamification.ActivityLogEntry {
	t.Helper()
	var entries []gamification.ActivityLogEntry
	err := f.store.ReadOnly(context.Background(), func(ctx context.Context, uow gamification.UnitOfWork) error {
		var err error
		entries, err = uow.Activity().ListByUser(ctx, userID, 0)
		return err
	})
	require.NoError(t, err)
	return entries
}

func countActions(entries []gamification.ActivityLogEntry, action gamification.Action) int {
	n := 0
	for _, e := range entries {
		if e.Action == action {
			n++
		}
	}
	return n
}

// callLog records repository calls across a unit of work.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) index(call string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, c := range l.calls {
		if c == call {
			return i
		}
	}
	return -1
}

type recordingStore struct {
	*memory.Store
	log *callLog
}

func (s recordingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, uow gamification.UnitOfWork) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, uow gamification.UnitOfWork) error {
		return fn(ctx, recordingUnitOfWork{UnitOfWork: uow, log: s.log})
	})
}

type recordingUnitOfWork struct {
	gamification.UnitOfWork
	log *callLog
}

func (u recordingUnitOfWork) Students() gamification.Repository {
	return recordingStudents{Repository: u.UnitOfWork.Students(), log: u.log}
}

func (u recordingUnitOfWork) Lessons() lesson.Repository {
	return recordingLessons{Repository: u.UnitOfWork.Lessons(), log: u.log}
}

type recordingStudents struct {
	gamification.Repository
	log *callLog
}

func (r recordingStudents) GetByUserIDForUpdate(ctx context.Context, userID string) (*gamification.Student, error) {
	r.log.add("lock student " + userID)
	return r.Repository.GetByUserIDForUpdate(ctx, userID)
}

type recordingLessons struct {
	lesson.Repository
	log *callLog
}

func (r recordingLessons) CountCompletedByStudent(ctx context.Context, studentUserID string) (int, error) {
	r.log.add("count lessons " + studentUserID)
	return r.Repository.CountCompletedByStudent(ctx, studentUserID)
}

// ══════════════════════════════════════════════════════════════════════════════
// POINTS LEDGER
// ══════════════════════════════════════════════════════════════════════════════

func TestAddPoints(t *testing.T) {
	f := newFixture(t, gamification.PolicyExact)
	f.seedStudent(t, "u1", "")

	total, err := f.engine.AddPoints(context.Background(), "u1", 30, gamification.ReasonManualAdjustment)
	require.NoError(t, err)
	assert.Equal(t, 30, total)

	entries := f.activity(t, "u1")
	require.Len(t, entries, 1)
	assert.Equal(t, gamification.ActionPointsAdded, entries[0].Action)
	assert.Equal(t, 30, entries[0].Metadata["amount"])
	assert.Equal(t, gamification.ReasonManualAdjustment, entries[0].Metadata["reason"])
	assert.Equal(t, 30, entries[0].Metadata["newTotal"])
}

func TestAddPointsUnknownStudent(t *testing.T) {
	f := newFixture(t, gamification.PolicyExact)

	_, err := f.engine.AddPoints(context.Background(), "ghost", 10, gamification.ReasonManualAdjustment)
	assert.ErrorIs(t, err, shared.ErrStudentNotFound)
	assert.True(t, shared.IsNotFound(err))
	assert.Empty(t, f.publisher.types())
}

func TestAddPointsIdempotencyKey(t *testing.T) {
	f := newFixture(t, gamification.PolicyExact)
	f.seedStudent(t, "u1", "")
	ctx := context.Background()

	first, err := f.engine.AddPoints(ctx, "u1", 40, gamification.ReasonManualAdjustment, WithIdempotencyKey("adj-1"))
	require.NoError(t, err)
	replay, err := f.engine.AddPoints(ctx, "u1", 40, gamification.ReasonManualAdjustment, WithIdempotencyKey("adj-1"))
	require.NoError(t, err)

	assert.Equal(t, 40, first)
	assert.Equal(t, 40, replay)
	assert.Equal(t, 1, countActions(f.activity(t, "u1"), gamification.ActionPointsAdded))

	// Without a key the same call is applied again.
	again, err := f.engine.AddPoints(ctx, "u1", 40, gamification.ReasonManualAdjustment)
	require.NoError(t, err)
	assert.Equal(t, 80, again)
}

func TestIdempotencyKeyIsScopedPerUser(t *testing.T) {
	f := newFixture(t, gamification.PolicyExact)
	f.seedStudent(t, "u1", "")
	f.seedStudent(t, "u2", "")
	ctx := context.Background()

	_, err := f.engine.AddPoints(ctx, "u1", 10, gamification.ReasonManualAdjustment, WithIdempotencyKey("k"))
	require.NoError(t, err)
	total, err := f.engine.AddPoints(ctx, "u2", 10, gamification.ReasonManualAdjustment, WithIdempotencyKey("k"))
	require.NoError(t, err)
	assert.Equal(t, 10, total)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL RESOLVER
// ══════════════════════════════════════════════════════════════════════════════

func TestAddPointsRaisesLevel(t *testing.T) {
	f := newFixture(t, gamification.PolicyExact)
	f.seedStudent(t, "u1", "")

	_, err := f.engine.AddPoints(context.Background(), "u1", 650, gamification.ReasonManualAdjustment)
	require.NoError(t, err)

	st := f.student(t, "u1")
	assert.Equal(t, 4, st.Level)

	entries := f.activity(t, "u1")
	require.Len(t, entries, 2)
	// newest first
	assert.Equal(t, gamification.ActionLevelUp, entries[0].Action)
	assert.Equal(t, 4, entries[0].Metadata["newLevel"])
	assert.Equal(t, "Condutor", entries[0].Metadata["levelName"])

	assert.Equal(t, []shared.EventType{shared.EventPointsAwarded, shared.EventLevelUp}, f.publisher.types())
}

func TestLevelNeverDecreases(t *testing.T) {
	f := newFixture(t, gamification.PolicyExact)
	f.seedStudent(t, "u1", "")
	ctx := context.Background()

	_, err := f.engine.AddPoints(ctx, "u1", 120, gamification.ReasonManualAdjustment)
	require.NoError(t, err)
	total, err := f.engine.AddPoints(ctx, "u1", -100, gamification.ReasonManualAdjustment)
	require.NoError(t, err)
	assert.Equal(t, 20, total)

	raised, err := f.engine.CheckLevelUp(ctx, "u1", total)
	require.NoError(t, err)
	assert.False(t, raised)
	assert.Equal(t, 2, f.student(t, "u1").Level)

	// The progress view follows the balance, not the stored level.
	info, err := f.engine.GetGamificationInfo(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, info.Level.Level)
	assert.Equal(t, 80, info.PointsToNextLevel)
}

func TestCheckLevelUp(t *testing.T) {
	f := newFixture(t, gamification.PolicyExact)
	f.seedStudent(t, "u1", "")
	ctx := context.Background()

	raised, err := f.engine.CheckLevelUp(ctx, "u1", 99)
	require.NoError(t, err)
	assert.False(t, raised)

	raised, err = f.engine.CheckLevelUp(ctx, "u1", 4000)
	require.NoError(t, err)
	assert.True(t, raised)
	assert.Equal(t, gamification.MaxLevel, f.student(t, "u1").Level)
}

// ══════════════════════════════════════════════════════════════════════════════
// MEDAL EVALUATOR
// ══════════════════════════════════════════════════════════════════════════════

func TestAwardMedalIsIdempotent(t *testing.T) {
	f := newFixture(t, gamification.PolicyExact)
	f.seedStudent(t, "u1", "")
	ctx := context.Background()

	awarded, err := f.engine.AwardMedal(ctx, "u1", gamification.MedalNightOwl)
	require.NoError(t, err)
	assert.True(t, awarded)

	awarded, err = f.engine.AwardMedal(ctx, "u1", gamification.MedalNightOwl)
	require.NoError(t, err)
	assert.False(t, awarded)

	assert.Equal(t, []gamification.MedalID{gamification.MedalNightOwl}, f.student(t, "u1").Medals)
	assert.Equal(t, 1, countActions(f.activity(t, "u1"), gamification.ActionMedalAwarded))
}

func TestAwardUnknownMedal(t *testing.T) {
	f := newFixture(t, gamification.PolicyExact)
	f.seedStudent(t, "u1", "")

	_, err := f.engine.AwardMedal(context.Background(), "u1", "GOLDEN_WHEEL")
	assert.ErrorIs(t, err, shared.ErrUnknownMedal)
	assert.True(t, shared.IsValidation(err))
}

func TestCheckTimeMedals(t *testing.T) {
	tests := []struct {
		name  string
		at    time.Time
		medal gamification.MedalID
	}{
		{"before seven", time.Date(2025, 3, 10, 6, 59, 0, 0, brt), gamification.MedalEarlyBird},
		{"at seven", time.Date(2025, 3, 10, 7, 0, 0, 0, brt), ""},
		{"late evening", time.Date(2025, 3, 10, 21, 59, 0, 0, brt), ""},
		{"at ten pm", time.Date(2025, 3, 10, 22, 0, 0, 0, brt), gamification.MedalNightOwl},
		// 01:30 UTC is 22:30 in São Paulo.
		{"utc input is converted", time.Date(2025, 3, 11, 1, 30, 0, 0, time.UTC), gamification.MedalNightOwl},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, gamification.PolicyExact)
			f.seedStudent(t, "u1", "")

			got, err := f.engine.CheckTimeMedals(context.Background(), "u1", tt.at)
			require.NoError(t, err)
			if tt.medal == "" {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, []gamification.MedalID{tt.medal}, got)
		})
	}
}

func TestExactPolicySkipsMissedMilestone(t *testing.T) {
	f := newFixture(t, gamification.PolicyExact)
	f.seedStudent(t, "u1", "")
	for i := 0; i < 6; i++ {
		f.seedCompletedLesson(t, "u1")
	}

	got, err := f.engine.CheckLessonMedals(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAtLeastPolicyAwardsMissedMilestones(t *testing.T) {
	f := newFixture(t, gamification.PolicyAtLeast)
	f.seedStudent(t, "u1", "")
	for i := 0; i < 6; i++ {
		f.seedCompletedLesson(t, "u1")
	}
	ctx := context.Background()

	got, err := f.engine.CheckLessonMedals(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []gamification.MedalID{gamification.MedalFirstLesson, gamification.MedalFiveLessons}, got)

	got, err = f.engine.CheckLessonMedals(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

// ══════════════════════════════════════════════════════════════════════════════
// ORCHESTRATOR
// ══════════════════════════════════════════════════════════════════════════════

func TestLessonCompletionJourney(t *testing.T) {
	f := newFixture(t, gamification.PolicyExact)
	f.seedStudent(t, "u1", "")

	first := f.completeLesson(t, "u1", afternoon)
	assert.Equal(t, 1, first.LessonNumber)
	assert.Equal(t, 60, first.PointsAwarded)
	assert.Equal(t, 60, first.NewTotal)
	assert.Equal(t, []gamification.MedalID{gamification.MedalFirstLesson}, first.Medals)
	assert.Equal(t, 1, f.student(t, "u1").Level)

	var last LessonReward
	for i := 0; i < 4; i++ {
		last = f.completeLesson(t, "u1", afternoon)
		if i < 3 {
			assert.Empty(t, last.Medals, "lesson %d", i+2)
		}
	}
	assert.Equal(t, 10, last.PointsAwarded)
	assert.Equal(t, 100, last.NewTotal)
	assert.Equal(t, []gamification.MedalID{gamification.MedalFiveLessons}, last.Medals)

	st := f.student(t, "u1")
	assert.Equal(t, 2, st.Level)
	assert.Equal(t, []gamification.MedalID{gamification.MedalFirstLesson, gamification.MedalFiveLessons}, st.Medals)

	info, err := f.engine.GetGamificationInfo(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 100, info.Points)
	assert.Equal(t, "Aprendiz", info.Level.Name)
	require.NotNil(t, info.NextLevel)
	assert.Equal(t, "Motorista", info.NextLevel.Name)
	assert.Equal(t, 200, info.PointsToNextLevel)
	assert.Len(t, info.Medals, 2)
	assert.Equal(t, 10, info.TotalMedals)
}

func TestLessonCompletionAtNightAwardsTimeMedal(t *testing.T) {
	f := newFixture(t, gamification.PolicyExact)
	f.seedStudent(t, "u1", "")

	reward := f.completeLesson(t, "u1", time.Date(2025, 3, 10, 23, 15, 0, 0, brt))
	assert.Equal(t, []gamification.MedalID{gamification.MedalFirstLesson, gamification.MedalNightOwl}, reward.Medals)
}

func TestLessonCompletionReplay(t *testing.T) {
	f := newFixture(t, gamification.PolicyExact)
	f.seedStudent(t, "u1", "")
	id := f.seedCompletedLesson(t, "u1")
	ctx := context.Background()
	key := WithIdempotencyKey("lesson-completed:" + id)

	first, err := f.engine.ProcessLessonCompletion(ctx, "u1", id, afternoon, key)
	require.NoError(t, err)
	replay, err := f.engine.ProcessLessonCompletion(ctx, "u1", id, afternoon, key)
	require.NoError(t, err)

	assert.False(t, first.Duplicate)
	assert.True(t, replay.Duplicate)
	assert.Equal(t, 60, replay.NewTotal)
	assert.Zero(t, replay.PointsAwarded)
	assert.Equal(t, 60, f.student(t, "u1").Points)
}

func TestLessonCompletionLocksStudentBeforeCounting(t *testing.T) {
	f := newFixture(t, gamification.PolicyExact)
	f.seedStudent(t, "u1", "")
	id := f.seedCompletedLesson(t, "u1")

	log := &callLog{}
	engine := NewEngine(
		recordingStore{Store: f.store, log: log},
		f.publisher,
		Config{Location: brt, MilestonePolicy: gamification.PolicyExact},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	_, err := engine.ProcessLessonCompletion(context.Background(), "u1", id, afternoon)
	require.NoError(t, err)

	lock, count := log.index("lock student u1"), log.index("count lessons u1")
	require.NotEqual(t, -1, lock)
	require.NotEqual(t, -1, count)
	assert.Less(t, lock, count, "completed lessons must be counted under the student lock")
}

func TestFirstLessonRewardsReferrer(t *testing.T) {
	f := newFixture(t, gamification.PolicyExact)
	f.seedStudent(t, "referrer", "")
	f.seedStudent(t, "u1", "referrer")

	f.completeLesson(t, "u1", afternoon)
	assert.Equal(t, gamification.PointsReferralFirstLesson, f.student(t, "referrer").Points)

	f.completeLesson(t, "u1", afternoon)
	assert.Equal(t, gamification.PointsReferralFirstLesson, f.student(t, "referrer").Points)
}

func TestFirstLessonWithMissingReferrer(t *testing.T) {
	f := newFixture(t, gamification.PolicyExact)
	f.seedStudent(t, "u1", "gone")

	reward := f.completeLesson(t, "u1", afternoon)
	assert.Equal(t, 60, reward.NewTotal)
}

func TestProcessRatingGiven(t *testing.T) {
	f := newFixture(t, gamification.PolicyExact)
	f.seedStudent(t, "u1", "")

	require.NoError(t, f.engine.ProcessRatingGiven(context.Background(), "u1"))
	assert.Equal(t, gamification.PointsRatingGiven, f.student(t, "u1").Points)
}

func TestProcessRatingReceived(t *testing.T) {
	f := newFixture(t, gamification.PolicyExact)
	f.seedStudent(t, "u1", "")
	ctx := context.Background()

	require.NoError(t, f.engine.ProcessRatingReceived(ctx, "u1", 4))
	assert.Zero(t, f.student(t, "u1").Points)
	assert.Empty(t, f.activity(t, "u1"))

	err := f.store.WithinTx(ctx, func(ctx context.Context, uow gamification.UnitOfWork) error {
		r, err := rating.NewRating("r1", "lesson-1", "instructor-1", "u1", 5, "", time.Now())
		if err != nil {
			return err
		}
		return uow.Ratings().Create(ctx, r)
	})
	require.NoError(t, err)

	require.NoError(t, f.engine.ProcessRatingReceived(ctx, "u1", 5))
	st := f.student(t, "u1")
	assert.Equal(t, gamification.PointsPerfectRatingReceived, st.Points)
	assert.Equal(t, []gamification.MedalID{gamification.MedalPerfectRating}, st.Medals)
}

func TestRatingAndReferralMilestones(t *testing.T) {
	tests := []struct {
		name   string
		award  func(t *testing.T, f *fixture, n int)
		user   string
		points []int
		medals [][]gamification.MedalID
	}{
		{
			name: "five perfect ratings",
			user: "u1",
			award: func(t *testing.T, f *fixture, n int) {
				ctx := context.Background()
				err := f.store.WithinTx(ctx, func(ctx context.Context, uow gamification.UnitOfWork) error {
					r, err := rating.NewRating(fmt.Sprintf("r%d", n), fmt.Sprintf("lesson-%d", n), "instructor-1", "u1", 5, "", time.Now())
					if err != nil {
						return err
					}
					return uow.Ratings().Create(ctx, r)
				})
				require.NoError(t, err)
				require.NoError(t, f.engine.ProcessRatingReceived(ctx, "u1", 5))
			},
			points: []int{20, 40, 60, 80, 100},
			medals: [][]gamification.MedalID{
				{gamification.MedalPerfectRating},
				{gamification.MedalPerfectRating},
				{gamification.MedalPerfectRating},
				{gamification.MedalPerfectRating},
				{gamification.MedalPerfectRating, gamification.MedalFivePerfectRatings},
			},
		},
		{
			name: "five referrals",
			user: "referrer",
			award: func(t *testing.T, f *fixture, n int) {
				ctx := context.Background()
				referred := fmt.Sprintf("friend-%d", n)
				f.seedStudent(t, referred, "referrer")
				err := f.store.WithinTx(ctx, func(ctx context.Context, uow gamification.UnitOfWork) error {
					ref, err := referral.NewReferral(fmt.Sprintf("ref-%d", n), "referrer", referred, "ABCD1234", time.Now())
					if err != nil {
						return err
					}
					return uow.Referrals().Create(ctx, ref)
				})
				require.NoError(t, err)
				require.NoError(t, f.engine.ProcessReferralRedeemed(ctx, "referrer", referred))
			},
			points: []int{100, 200, 300, 400, 500},
			medals: [][]gamification.MedalID{
				{gamification.MedalFirstReferral},
				{gamification.MedalFirstReferral},
				{gamification.MedalFirstReferral},
				{gamification.MedalFirstReferral},
				{gamification.MedalFirstReferral, gamification.MedalFiveReferrals},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, gamification.PolicyExact)
			f.seedStudent(t, tt.user, "")

			for i := range tt.points {
				tt.award(t, f, i+1)
				st := f.student(t, tt.user)
				assert.Equal(t, tt.points[i], st.Points, "award %d", i+1)
				assert.Equal(t, tt.medals[i], st.Medals, "award %d", i+1)
			}
		})
	}
}

func TestProcessReferralRedeemed(t *testing.T) {
	f := newFixture(t, gamification.PolicyExact)
	f.seedStudent(t, "referrer", "")
	f.seedStudent(t, "u1", "")
	ctx := context.Background()

	err := f.store.WithinTx(ctx, func(ctx context.Context, uow gamification.UnitOfWork) error {
		ref, err := referral.NewReferral("ref-1", "referrer", "u1", "ABCD1234", time.Now())
		if err != nil {
			return err
		}
		return uow.Referrals().Create(ctx, ref)
	})
	require.NoError(t, err)

	require.NoError(t, f.engine.ProcessReferralRedeemed(ctx, "referrer", "u1"))
	st := f.student(t, "referrer")
	assert.Equal(t, 100, st.Points)
	assert.Equal(t, 2, st.Level)
	assert.Equal(t, []gamification.MedalID{gamification.MedalFirstReferral}, st.Medals)
}

func TestGetGamificationInfoUnknownStudent(t *testing.T) {
	f := newFixture(t, gamification.PolicyExact)

	info, err := f.engine.GetGamificationInfo(context.Background(), "ghost")
	assert.Nil(t, info)
	assert.ErrorIs(t, err, shared.ErrStudentNotFound)
}

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

func TestRunRollsBackOnError(t *testing.T) {
	f := newFixture(t, gamification.PolicyExact)
	f.seedStudent(t, "u1", "")
	boom := errors.New("boom")

	err := f.engine.Run(context.Background(), func(ctx context.Context, s *Session) error {
		if _, err := s.AddPoints(ctx, "u1", 500, gamification.ReasonManualAdjustment); err != nil {
			return err
		}
		if _, err := s.AwardMedal(ctx, "u1", gamification.MedalEarlyBird); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	st := f.student(t, "u1")
	assert.Zero(t, st.Points)
	assert.Equal(t, 1, st.Level)
	assert.Empty(t, st.Medals)
	assert.Empty(t, f.activity(t, "u1"))
	assert.Empty(t, f.publisher.types())
}

func TestRunRetriesConflicts(t *testing.T) {
	f := newFixture(t, gamification.PolicyExact)
	f.seedStudent(t, "u1", "")

	attempts := 0
	err := f.engine.Run(context.Background(), func(ctx context.Context, s *Session) error {
		attempts++
		if _, err := s.AddPoints(ctx, "u1", 10, gamification.ReasonManualAdjustment); err != nil {
			return err
		}
		if attempts == 1 {
			return shared.ErrConcurrentModification
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 2, attempts)
	assert.Equal(t, 10, f.student(t, "u1").Points)
	// Only the committed attempt publishes.
	assert.Equal(t, []shared.EventType{shared.EventPointsAwarded}, f.publisher.types())
}

func TestConcurrentAwardsAreSerialized(t *testing.T) {
	f := newFixture(t, gamification.PolicyExact)
	f.seedStudent(t, "u1", "")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.AddPoints(context.Background(), "u1", 5, gamification.ReasonRatingGiven)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, f.student(t, "u1").Points)
	assert.Equal(t, 20, countActions(f.activity(t, "u1"), gamification.ActionPointsAdded))
}
