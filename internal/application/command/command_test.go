package command

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivehub/drivehub-api/internal/application/progress"
	"github.com/drivehub/drivehub-api/internal/domain/gamification"
	"github.com/drivehub/drivehub-api/internal/domain/lesson"
	"github.com/drivehub/drivehub-api/internal/domain/rating"
	"github.com/drivehub/drivehub-api/internal/domain/shared"
	"github.com/drivehub/drivehub-api/internal/infrastructure/persistence/memory"
)

var lessonAt = time.Date(2025, 3, 10, 17, 0, 0, 0, time.UTC) // 14:00 in São Paulo

type testEnv struct {
	store    *memory.Store
	profiles *CreateStudentProfileHandler
	redeem   *RedeemReferralHandler
	schedule *ScheduleLessonHandler
	status   *LessonStatusHandler
	ratings  *SubmitRatingHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	engine := progress.NewEngine(store, nil, progress.Config{Location: time.FixedZone("BRT", -3*60*60)}, logger)

	return &testEnv{
		store:    store,
		profiles: NewCreateStudentProfileHandler(engine, logger),
		redeem:   NewRedeemReferralHandler(engine, logger),
		schedule: NewScheduleLessonHandler(engine, logger),
		status:   NewLessonStatusHandler(engine, logger),
		ratings:  NewSubmitRatingHandler(engine, logger),
	}
}

func (e *testEnv) createStudent(t *testing.T, userID string) *gamification.Student {
	t.Helper()
	res, err := e.profiles.Handle(context.Background(), CreateStudentProfileCommand{UserID: userID})
	require.NoError(t, err)
	return res.Student
}

func (e *testEnv) student(t *testing.T, userID string) *gamification.Student {
	t.Helper()
	var st *gamification.Student
	require.NoError(t, e.store.ReadOnly(context.Background(), func(ctx context.Context, uow gamification.UnitOfWork) error {
		var err error
		st, err = uow.Students().GetByUserID(ctx, userID)
		return err
	}))
	return st
}

func (e *testEnv) completedLesson(t *testing.T, studentID, instructorID string) *lesson.Lesson {
	t.Helper()
	ctx := context.Background()
	l, err := e.schedule.Handle(ctx, ScheduleLessonCommand{
		StudentUserID:    studentID,
		InstructorUserID: instructorID,
		ScheduledAt:      lessonAt,
	})
	require.NoError(t, err)
	res, err := e.status.Complete(ctx, CompleteLessonCommand{LessonID: l.ID})
	require.NoError(t, err)
	return res.Lesson
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT PROFILES & REFERRALS
// ══════════════════════════════════════════════════════════════════════════════

func TestCreateStudentProfile(t *testing.T) {
	env := newTestEnv(t)

	st := env.createStudent(t, "u1")
	assert.Equal(t, "u1", st.UserID)
	assert.Zero(t, st.Points)
	assert.Equal(t, 1, st.Level)
	assert.Empty(t, st.Medals)
	assert.Len(t, st.ReferralCode, 8)

	_, err := env.profiles.Handle(context.Background(), CreateStudentProfileCommand{UserID: "u1"})
	assert.ErrorIs(t, err, shared.ErrStudentAlreadyExists)

	_, err = env.profiles.Handle(context.Background(), CreateStudentProfileCommand{UserID: "  "})
	assert.ErrorIs(t, err, shared.ErrInvalidUserID)
}

func TestCreateStudentProfileRetriesCodeCollision(t *testing.T) {
	env := newTestEnv(t)
	codes := []string{"AAAA1111", "AAAA1111", "BBBB2222"}
	env.profiles.generateCode = func() string {
		c := codes[0]
		codes = codes[1:]
		return c
	}

	first := env.createStudent(t, "u1")
	second := env.createStudent(t, "u2")
	assert.Equal(t, "AAAA1111", first.ReferralCode)
	assert.Equal(t, "BBBB2222", second.ReferralCode)
}

func TestCreateStudentProfileWithReferral(t *testing.T) {
	env := newTestEnv(t)
	referrer := env.createStudent(t, "referrer")

	res, err := env.profiles.Handle(context.Background(), CreateStudentProfileCommand{
		UserID:       "u1",
		ReferralCode: " " + referrer.ReferralCode,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Referral)
	assert.Equal(t, "referrer", res.Student.ReferredBy)

	r := env.student(t, "referrer")
	assert.Equal(t, gamification.PointsReferralSignup, r.Points)
	assert.Equal(t, []gamification.MedalID{gamification.MedalFirstReferral}, r.Medals)
}

func TestCreateStudentProfileUnknownCodeRollsBack(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.profiles.Handle(context.Background(), CreateStudentProfileCommand{UserID: "u1", ReferralCode: "NOPE0000"})
	assert.ErrorIs(t, err, shared.ErrReferralCodeNotFound)

	err = env.store.ReadOnly(context.Background(), func(ctx context.Context, uow gamification.UnitOfWork) error {
		_, err := uow.Students().GetByUserID(ctx, "u1")
		return err
	})
	assert.ErrorIs(t, err, shared.ErrStudentNotFound)
}

func TestRedeemReferral(t *testing.T) {
	env := newTestEnv(t)
	referrer := env.createStudent(t, "referrer")
	env.createStudent(t, "u1")
	ctx := context.Background()

	_, err := env.redeem.Handle(ctx, RedeemReferralCommand{UserID: "referrer", Code: referrer.ReferralCode})
	assert.ErrorIs(t, err, shared.ErrSelfReferral)

	ref, err := env.redeem.Handle(ctx, RedeemReferralCommand{UserID: "u1", Code: referrer.ReferralCode})
	require.NoError(t, err)
	assert.Equal(t, "referrer", ref.ReferrerUserID)

	_, err = env.redeem.Handle(ctx, RedeemReferralCommand{UserID: "u1", Code: referrer.ReferralCode})
	assert.ErrorIs(t, err, shared.ErrAlreadyReferred)

	assert.Equal(t, 100, env.student(t, "referrer").Points)
}

// ══════════════════════════════════════════════════════════════════════════════
// LESSONS
// ══════════════════════════════════════════════════════════════════════════════

func TestScheduleLessonRequiresProfile(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.schedule.Handle(context.Background(), ScheduleLessonCommand{
		StudentUserID:    "ghost",
		InstructorUserID: "i1",
		ScheduledAt:      lessonAt,
	})
	assert.ErrorIs(t, err, shared.ErrStudentNotFound)
}

func TestScheduleLessonValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.schedule.Handle(context.Background(), ScheduleLessonCommand{
		StudentUserID:    "u1",
		InstructorUserID: "u1",
		ScheduledAt:      lessonAt,
	})
	assert.ErrorIs(t, err, shared.ErrSameParticipant)

	_, err = env.schedule.Handle(context.Background(), ScheduleLessonCommand{StudentUserID: "u1", InstructorUserID: "i1"})
	assert.True(t, shared.IsValidation(err))
}

func TestCompleteLessonRewardsStudent(t *testing.T) {
	env := newTestEnv(t)
	env.createStudent(t, "u1")
	ctx := context.Background()

	l, err := env.schedule.Handle(ctx, ScheduleLessonCommand{StudentUserID: "u1", InstructorUserID: "i1", ScheduledAt: lessonAt})
	require.NoError(t, err)
	_, err = env.status.Confirm(ctx, l.ID)
	require.NoError(t, err)

	res, err := env.status.Complete(ctx, CompleteLessonCommand{LessonID: l.ID})
	require.NoError(t, err)
	assert.Equal(t, lesson.StatusCompleted, res.Lesson.Status)
	assert.NotNil(t, res.Lesson.CompletedAt)
	assert.Equal(t, 60, res.Reward.PointsAwarded)
	assert.Equal(t, []gamification.MedalID{gamification.MedalFirstLesson}, res.Reward.Medals)

	_, err = env.status.Complete(ctx, CompleteLessonCommand{LessonID: l.ID})
	assert.ErrorIs(t, err, shared.ErrInvalidLessonTransition)
	assert.True(t, shared.IsConflict(err))
	assert.Equal(t, 60, env.student(t, "u1").Points)
}

func TestCancelLesson(t *testing.T) {
	env := newTestEnv(t)
	env.createStudent(t, "u1")
	ctx := context.Background()

	l, err := env.schedule.Handle(ctx, ScheduleLessonCommand{StudentUserID: "u1", InstructorUserID: "i1", ScheduledAt: lessonAt})
	require.NoError(t, err)

	cancelled, err := env.status.Cancel(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, lesson.StatusCancelled, cancelled.Status)

	_, err = env.status.Complete(ctx, CompleteLessonCommand{LessonID: l.ID})
	assert.True(t, shared.IsConflict(err))

	_, err = env.status.Cancel(ctx, "missing")
	assert.ErrorIs(t, err, shared.ErrLessonNotFound)
}

// ══════════════════════════════════════════════════════════════════════════════
// RATINGS
// ══════════════════════════════════════════════════════════════════════════════

func TestSubmitRating(t *testing.T) {
	env := newTestEnv(t)
	env.createStudent(t, "u1")
	ctx := context.Background()
	l := env.completedLesson(t, "u1", "i1")

	res, err := env.ratings.Handle(ctx, SubmitRatingCommand{
		LessonID: l.ID, RaterUserID: "i1", RateeUserID: "u1", Score: 5,
	})
	require.NoError(t, err)
	assert.InDelta(t, 5.0, res.Summary.Average, 1e-9)

	st := env.student(t, "u1")
	assert.Equal(t, 60+gamification.PointsPerfectRatingReceived, st.Points)
	assert.Contains(t, st.Medals, gamification.MedalPerfectRating)

	res, err = env.ratings.Handle(ctx, SubmitRatingCommand{
		LessonID: l.ID, RaterUserID: "u1", RateeUserID: "i1", Score: 3, Comment: "ok",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary.Count)
	assert.Equal(t, 60+20+gamification.PointsRatingGiven, env.student(t, "u1").Points)

	_, err = env.ratings.Handle(ctx, SubmitRatingCommand{
		LessonID: l.ID, RaterUserID: "u1", RateeUserID: "i1", Score: 4,
	})
	assert.ErrorIs(t, err, shared.ErrDuplicateRating)
}

func TestSubmitRatingRollingAverage(t *testing.T) {
	env := newTestEnv(t)
	env.createStudent(t, "u1")
	env.createStudent(t, "u2")
	ctx := context.Background()

	for _, tc := range []struct {
		student string
		score   int
	}{{"u1", 5}, {"u2", 3}} {
		l := env.completedLesson(t, tc.student, "i1")
		_, err := env.ratings.Handle(ctx, SubmitRatingCommand{
			LessonID: l.ID, RaterUserID: tc.student, RateeUserID: "i1", Score: tc.score,
		})
		require.NoError(t, err)
	}

	var summary *rating.Summary
	require.NoError(t, env.store.ReadOnly(ctx, func(ctx context.Context, uow gamification.UnitOfWork) error {
		var err error
		summary, err = uow.Ratings().GetSummary(ctx, "i1")
		return err
	}))
	assert.Equal(t, 2, summary.Count)
	assert.InDelta(t, 4.0, summary.Average, 1e-9)
}

// summaryReads records how a unit of work loads rating summaries.
type summaryReads struct {
	*memory.Store
	locked, plain int
}

func (s *summaryReads) WithinTx(ctx context.Context, fn func(ctx context.Context, uow gamification.UnitOfWork) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, uow gamification.UnitOfWork) error {
		return fn(ctx, summaryReadsUnitOfWork{UnitOfWork: uow, reads: s})
	})
}

type summaryReadsUnitOfWork struct {
	gamification.UnitOfWork
	reads *summaryReads
}

func (u summaryReadsUnitOfWork) Ratings() rating.Repository {
	return summaryReadsRepo{Repository: u.UnitOfWork.Ratings(), reads: u.reads}
}

type summaryReadsRepo struct {
	rating.Repository
	reads *summaryReads
}

func (r summaryReadsRepo) GetSummary(ctx context.Context, userID string) (*rating.Summary, error) {
	r.reads.plain++
	return r.Repository.GetSummary(ctx, userID)
}

func (r summaryReadsRepo) GetSummaryForUpdate(ctx context.Context, userID string) (*rating.Summary, error) {
	r.reads.locked++
	return r.Repository.GetSummaryForUpdate(ctx, userID)
}

func TestSubmitRatingLocksSummary(t *testing.T) {
	env := newTestEnv(t)
	env.createStudent(t, "u1")
	l := env.completedLesson(t, "u1", "i1")

	reads := &summaryReads{Store: env.store}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := progress.NewEngine(reads, nil, progress.Config{}, logger)

	res, err := NewSubmitRatingHandler(engine, logger).Handle(context.Background(), SubmitRatingCommand{
		LessonID: l.ID, RaterUserID: "u1", RateeUserID: "i1", Score: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary.Count)
	assert.Equal(t, 1, reads.locked)
	assert.Zero(t, reads.plain, "the rolling average must be read under a row lock")
}

func TestSubmitRatingRejections(t *testing.T) {
	env := newTestEnv(t)
	env.createStudent(t, "u1")
	ctx := context.Background()

	pending, err := env.schedule.Handle(ctx, ScheduleLessonCommand{StudentUserID: "u1", InstructorUserID: "i1", ScheduledAt: lessonAt})
	require.NoError(t, err)
	done := env.completedLesson(t, "u1", "i1")

	tests := []struct {
		name string
		cmd  SubmitRatingCommand
		want error
	}{
		{"score too high", SubmitRatingCommand{LessonID: done.ID, RaterUserID: "u1", RateeUserID: "i1", Score: 6}, shared.ErrInvalidRating},
		{"score too low", SubmitRatingCommand{LessonID: done.ID, RaterUserID: "u1", RateeUserID: "i1", Score: 0}, shared.ErrInvalidRating},
		{"self", SubmitRatingCommand{LessonID: done.ID, RaterUserID: "u1", RateeUserID: "u1", Score: 5}, shared.ErrSelfRating},
		{"not completed", SubmitRatingCommand{LessonID: pending.ID, RaterUserID: "u1", RateeUserID: "i1", Score: 5}, shared.ErrLessonNotCompleted},
		{"outsider", SubmitRatingCommand{LessonID: done.ID, RaterUserID: "x9", RateeUserID: "i1", Score: 5}, shared.ErrNotLessonMember},
		{"unknown lesson", SubmitRatingCommand{LessonID: "nope", RaterUserID: "u1", RateeUserID: "i1", Score: 5}, shared.ErrLessonNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.ratings.Handle(ctx, tt.cmd)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
