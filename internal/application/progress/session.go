package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/drivehub/drivehub-api/internal/domain/gamification"
	"github.com/drivehub/drivehub-api/internal/domain/shared"
)

// Session applies gamification rules inside one open unit of work.
// Other application services obtain it through Engine.Run to combine their
// own writes with progress updates in the same transaction.
type Session struct {
	engine *Engine
	uow    gamification.UnitOfWork
	events []shared.Event
}

// UnitOfWork exposes the transaction's repositories.
func (s *Session) UnitOfWork() gamification.UnitOfWork {
	return s.uow
}

// Emit queues an event for publication after commit.
func (s *Session) Emit(event shared.Event) {
	s.events = append(s.events, event)
}

// Now returns the engine clock.
func (s *Session) Now() time.Time {
	return s.engine.now()
}

// NewID returns a fresh identifier from the engine generator.
func (s *Session) NewID() string {
	return s.engine.newID()
}

func (s *Session) audit(ctx context.Context, entry gamification.ActivityLogEntry) error {
	if err := s.uow.Activity().Append(ctx, entry); err != nil {
		return fmt.Errorf("append activity %s: %w", entry.Action, err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// POINTS LEDGER
// ══════════════════════════════════════════════════════════════════════════════

// AddPoints credits amount and returns the new total. Any integer amount is accepted.
func (s *Session) AddPoints(ctx context.Context, userID string, amount int, reason string, opts ...AwardOption) (int, error) {
	total, _, err := s.addPoints(ctx, userID, amount, reason, collectAwardOptions(opts))
	return total, err
}

// addPoints reports applied=false when the idempotency key was already used.
func (s *Session) addPoints(ctx context.Context, userID string, amount int, reason string, o awardOptions) (int, bool, error) {
	st, err := s.uow.Students().GetByUserIDForUpdate(ctx, userID)
	if err != nil {
		return 0, false, err
	}

	now := s.Now()
	if o.idempotencyKey != "" {
		fresh, err := s.uow.ProcessedEvents().MarkProcessed(ctx, idempotencyDigest(userID, o.idempotencyKey), now)
		if err != nil {
			return 0, false, fmt.Errorf("mark award processed: %w", err)
		}
		if !fresh {
			s.engine.logger.Debug("skipping duplicate award",
				"user_id", userID,
				"reason", reason,
				"idempotency_key", o.idempotencyKey,
			)
			return st.Points, false, nil
		}
	}

	total := st.AddPoints(amount, now)
	if err := s.uow.Students().Update(ctx, st); err != nil {
		return 0, false, fmt.Errorf("update points: %w", err)
	}
	if err := s.audit(ctx, gamification.NewPointsAddedEntry(s.NewID(), userID, amount, reason, total, now)); err != nil {
		return 0, false, err
	}
	s.Emit(shared.NewPointsAwardedEvent(userID, amount, total, reason))

	if _, err := s.raiseLevel(ctx, st, total); err != nil {
		return 0, false, err
	}
	return total, true, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL RESOLVER
// ══════════════════════════════════════════════════════════════════════════════

// CheckLevelUp raises the stored level to the tier of currentPoints. It never lowers it.
func (s *Session) CheckLevelUp(ctx context.Context, userID string, currentPoints int) (bool, error) {
	st, err := s.uow.Students().GetByUserIDForUpdate(ctx, userID)
	if err != nil {
		return false, err
	}
	return s.raiseLevel(ctx, st, currentPoints)
}

func (s *Session) raiseLevel(ctx context.Context, st *gamification.Student, points int) (bool, error) {
	tier := gamification.ResolveLevel(points)
	oldLevel := st.Level
	now := s.Now()
	if !st.RaiseLevel(tier.Level, now) {
		return false, nil
	}

	if err := s.uow.Students().Update(ctx, st); err != nil {
		return false, fmt.Errorf("update level: %w", err)
	}
	if err := s.audit(ctx, gamification.NewLevelUpEntry(s.NewID(), st.UserID, tier, now)); err != nil {
		return false, err
	}
	s.Emit(shared.NewLevelUpEvent(st.UserID, oldLevel, tier.Level, tier.Name))

	s.engine.logger.Info("level up",
		"user_id", st.UserID,
		"old_level", oldLevel,
		"new_level", tier.Level,
		"level_name", tier.Name,
	)
	return true, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MEDAL EVALUATOR
// ══════════════════════════════════════════════════════════════════════════════

// AwardMedal grants medalID once. A medal already held yields false and no writes.
func (s *Session) AwardMedal(ctx context.Context, userID string, medalID gamification.MedalID) (bool, error) {
	medal, ok := gamification.LookupMedal(medalID)
	if !ok {
		return false, fmt.Errorf("%w: %q", shared.ErrUnknownMedal, medalID)
	}

	st, err := s.uow.Students().GetByUserIDForUpdate(ctx, userID)
	if err != nil {
		return false, err
	}

	now := s.Now()
	if !st.GrantMedal(medal.ID, now) {
		return false, nil
	}
	if err := s.uow.Students().Update(ctx, st); err != nil {
		return false, fmt.Errorf("update medals: %w", err)
	}
	if err := s.audit(ctx, gamification.NewMedalAwardedEntry(s.NewID(), userID, medal, now)); err != nil {
		return false, err
	}
	s.Emit(shared.NewMedalAwardedEvent(userID, string(medal.ID), medal.Name))

	s.engine.logger.Info("medal awarded",
		"user_id", userID,
		"medal_id", medal.ID,
	)
	return true, nil
}

// CheckLessonMedals awards lesson-count medals for the student's completed lessons.
func (s *Session) CheckLessonMedals(ctx context.Context, userID string) ([]gamification.MedalID, error) {
	count, err := s.uow.Lessons().CountCompletedByStudent(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count completed lessons: %w", err)
	}
	return s.awardDue(ctx, userID, count, gamification.LessonMilestones())
}

// CheckRatingMedals awards medals for perfect ratings received.
func (s *Session) CheckRatingMedals(ctx context.Context, userID string) ([]gamification.MedalID, error) {
	count, err := s.uow.Ratings().CountPerfectReceived(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count perfect ratings: %w", err)
	}
	return s.awardDue(ctx, userID, count, gamification.RatingMilestones())
}

// CheckReferralMedals awards medals for redeemed referrals.
func (s *Session) CheckReferralMedals(ctx context.Context, userID string) ([]gamification.MedalID, error) {
	count, err := s.uow.Referrals().CountByReferrer(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count referrals: %w", err)
	}
	return s.awardDue(ctx, userID, count, gamification.ReferralMilestones())
}

// CheckTimeMedals evaluates the lesson's wall-clock hour in the configured zone.
func (s *Session) CheckTimeMedals(ctx context.Context, userID string, lessonTime time.Time) ([]gamification.MedalID, error) {
	hour := lessonTime.In(s.engine.config.Location).Hour()
	medalID, ok := gamification.TimeMedalForHour(hour)
	if !ok {
		return []gamification.MedalID{}, nil
	}
	awarded, err := s.AwardMedal(ctx, userID, medalID)
	if err != nil {
		return nil, err
	}
	if !awarded {
		return []gamification.MedalID{}, nil
	}
	return []gamification.MedalID{medalID}, nil
}

func (s *Session) awardDue(ctx context.Context, userID string, count int, milestones []gamification.Milestone) ([]gamification.MedalID, error) {
	awarded := make([]gamification.MedalID, 0)
	for _, id := range s.engine.config.MilestonePolicy.Due(count, milestones) {
		ok, err := s.AwardMedal(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		if ok {
			awarded = append(awarded, id)
		}
	}
	return awarded, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ORCHESTRATOR
// ══════════════════════════════════════════════════════════════════════════════

// LessonReward summarizes what a completed lesson earned.
type LessonReward struct {
	LessonNumber  int                    `json:"lessonNumber"`
	PointsAwarded int                    `json:"pointsAwarded"`
	NewTotal      int                    `json:"newTotal"`
	Medals        []gamification.MedalID `json:"medals"`
	// Duplicate is set when the idempotency key was already processed.
	Duplicate bool `json:"duplicate"`
}

// ProcessLessonCompletion awards the base points plus the first-lesson bonus,
// then the lesson-count and time-of-day medals. The lesson must already be
// counted as completed.
func (s *Session) ProcessLessonCompletion(ctx context.Context, userID, lessonID string, lessonTime time.Time, opts ...AwardOption) (LessonReward, error) {
	o := collectAwardOptions(opts)

	// Lock the student before counting: completions of two different lessons
	// then queue here and the second one counts the first.
	if _, err := s.uow.Students().GetByUserIDForUpdate(ctx, userID); err != nil {
		return LessonReward{}, err
	}
	count, err := s.uow.Lessons().CountCompletedByStudent(ctx, userID)
	if err != nil {
		return LessonReward{}, fmt.Errorf("count completed lessons: %w", err)
	}

	award := gamification.LessonCompletionAward(count)
	total, applied, err := s.addPoints(ctx, userID, award, gamification.ReasonLessonCompleted, o)
	if err != nil {
		return LessonReward{}, err
	}
	reward := LessonReward{
		LessonNumber: count,
		NewTotal:     total,
		Medals:       []gamification.MedalID{},
	}
	if !applied {
		reward.Duplicate = true
		return reward, nil
	}
	reward.PointsAwarded = award

	lessonMedals, err := s.awardDue(ctx, userID, count, gamification.LessonMilestones())
	if err != nil {
		return LessonReward{}, err
	}
	timeMedals, err := s.CheckTimeMedals(ctx, userID, lessonTime)
	if err != nil {
		return LessonReward{}, err
	}
	reward.Medals = append(append(reward.Medals, lessonMedals...), timeMedals...)

	if count == 1 {
		if err := s.rewardReferrerFirstLesson(ctx, userID, o); err != nil {
			return LessonReward{}, err
		}
	}

	s.engine.logger.Info("lesson completion processed",
		"user_id", userID,
		"lesson_id", lessonID,
		"lesson_number", count,
		"points", award,
		"new_total", total,
	)
	return reward, nil
}

func (s *Session) rewardReferrerFirstLesson(ctx context.Context, userID string, o awardOptions) error {
	st, err := s.uow.Students().GetByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if st.ReferredBy == "" {
		return nil
	}

	_, _, err = s.addPoints(ctx, st.ReferredBy, gamification.PointsReferralFirstLesson,
		gamification.ReasonReferralFirstLesson, collectAwardOptions(o.derive("referrer")))
	if errors.Is(err, shared.ErrStudentNotFound) {
		s.engine.logger.Warn("referrer has no student profile, skipping first lesson bonus",
			"user_id", userID,
			"referrer_id", st.ReferredBy,
		)
		return nil
	}
	return err
}

// ProcessRatingGiven credits the rater.
func (s *Session) ProcessRatingGiven(ctx context.Context, userID string, opts ...AwardOption) error {
	_, _, err := s.addPoints(ctx, userID, gamification.PointsRatingGiven, gamification.ReasonRatingGiven, collectAwardOptions(opts))
	return err
}

// ProcessRatingReceived credits a perfect score and checks rating medals.
// Any other score is a no-op.
func (s *Session) ProcessRatingReceived(ctx context.Context, userID string, score int, opts ...AwardOption) error {
	if score != gamification.PerfectScore {
		return nil
	}

	_, applied, err := s.addPoints(ctx, userID, gamification.PointsPerfectRatingReceived,
		gamification.ReasonPerfectRatingReceived, collectAwardOptions(opts))
	if err != nil || !applied {
		return err
	}
	_, err = s.CheckRatingMedals(ctx, userID)
	return err
}

// ProcessReferralRedeemed credits the referrer and checks referral medals.
func (s *Session) ProcessReferralRedeemed(ctx context.Context, referrerUserID, referredUserID string, opts ...AwardOption) error {
	_, applied, err := s.addPoints(ctx, referrerUserID, gamification.PointsReferralSignup,
		gamification.ReasonReferralSignup, collectAwardOptions(opts))
	if err != nil || !applied {
		return err
	}

	if _, err := s.CheckReferralMedals(ctx, referrerUserID); err != nil {
		return err
	}

	s.engine.logger.Info("referral rewarded",
		"referrer_id", referrerUserID,
		"referred_id", referredUserID,
	)
	return nil
}
