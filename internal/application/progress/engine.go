// Package progress runs the gamification rules: the points ledger, the level
// resolver, the medal evaluator and the orchestrating event handlers.
//
// Every public Engine method runs as one unit of work. Point writes, audit
// entries, level changes and medal grants commit or roll back together, and
// the resulting domain events are published only after commit.
package progress

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/drivehub/drivehub-api/internal/domain/gamification"
	"github.com/drivehub/drivehub-api/internal/domain/shared"
	"github.com/drivehub/drivehub-api/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds engine settings.
type Config struct {
	// Location is the time zone used for time-of-day medals.
	Location *time.Location

	// MilestonePolicy selects exact or at-least count triggers.
	MilestonePolicy gamification.MilestonePolicy
}

// DefaultConfig uses São Paulo local time and exact triggers.
func DefaultConfig() Config {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		loc = time.UTC
	}
	return Config{
		Location:        loc,
		MilestonePolicy: gamification.PolicyExact,
	}
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator replaces uuid.NewString for audit entry ids.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// WithRetrier replaces the conflict retry policy.
func WithRetrier(r *retry.Retrier) Option {
	return func(e *Engine) { e.retrier = r }
}

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// Engine composes ledger, resolver and evaluator over an injected store.
type Engine struct {
	store     gamification.UnitOfWorkFactory
	publisher shared.EventPublisher
	config    Config
	logger    *slog.Logger
	retrier   *retry.Retrier
	now       func() time.Time
	newID     func() string
}

// NewEngine creates an engine. publisher may be nil.
func NewEngine(
	store gamification.UnitOfWorkFactory,
	publisher shared.EventPublisher,
	config Config,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.MilestonePolicy == "" {
		config.MilestonePolicy = gamification.PolicyExact
	}

	e := &Engine{
		store:     store,
		publisher: publisher,
		config:    config,
		logger:    logger.With("component", "progress_engine"),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	e.retrier = retry.TransactionRetrier(shared.IsRetryable, func(attempt int, err error, delay time.Duration) {
		e.logger.Warn("retrying unit of work after conflict",
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
	})
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes fn in one transaction and publishes the collected events after commit.
// Conflicting transactions are retried from scratch.
func (e *Engine) Run(ctx context.Context, fn func(ctx context.Context, s *Session) error) error {
	var events []shared.Event

	err := e.retrier.Do(ctx, func(ctx context.Context) error {
		events = nil
		return e.store.WithinTx(ctx, func(ctx context.Context, uow gamification.UnitOfWork) error {
			s := &Session{engine: e, uow: uow}
			if err := fn(ctx, s); err != nil {
				return err
			}
			events = s.events
			return nil
		})
	})
	if err != nil {
		return err
	}

	e.publish(events)
	return nil
}

func (e *Engine) publish(events []shared.Event) {
	if e.publisher == nil {
		return
	}
	for _, ev := range events {
		if err := e.publisher.Publish(ev); err != nil {
			e.logger.Error("failed to publish event",
				"event_type", ev.EventType(),
				"aggregate_id", ev.AggregateID(),
				"error", err,
			)
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Points Ledger
// ─────────────────────────────────────────────────────────────────────────────

// AddPoints credits amount to the student and returns the new total.
func (e *Engine) AddPoints(ctx context.Context, userID string, amount int, reason string, opts ...AwardOption) (int, error) {
	var total int
	err := e.Run(ctx, func(ctx context.Context, s *Session) error {
		var err error
		total, err = s.AddPoints(ctx, userID, amount, reason, opts...)
		return err
	})
	return total, err
}

// ─────────────────────────────────────────────────────────────────────────────
// Level Resolver
// ─────────────────────────────────────────────────────────────────────────────

// CheckLevelUp raises the stored level if currentPoints resolves higher.
func (e *Engine) CheckLevelUp(ctx context.Context, userID string, currentPoints int) (bool, error) {
	var raised bool
	err := e.Run(ctx, func(ctx context.Context, s *Session) error {
		var err error
		raised, err = s.CheckLevelUp(ctx, userID, currentPoints)
		return err
	})
	return raised, err
}

// ─────────────────────────────────────────────────────────────────────────────
// Medal Evaluator
// ─────────────────────────────────────────────────────────────────────────────

// AwardMedal grants a medal once. It returns false when already held.
func (e *Engine) AwardMedal(ctx context.Context, userID string, medalID gamification.MedalID) (bool, error) {
	var awarded bool
	err := e.Run(ctx, func(ctx context.Context, s *Session) error {
		var err error
		awarded, err = s.AwardMedal(ctx, userID, medalID)
		return err
	})
	return awarded, err
}

// CheckLessonMedals evaluates completed-lesson milestones.
func (e *Engine) CheckLessonMedals(ctx context.Context, userID string) ([]gamification.MedalID, error) {
	return e.runMedalCheck(ctx, func(ctx context.Context, s *Session) ([]gamification.MedalID, error) {
		return s.CheckLessonMedals(ctx, userID)
	})
}

// CheckRatingMedals evaluates perfect-rating milestones.
func (e *Engine) CheckRatingMedals(ctx context.Context, userID string) ([]gamification.MedalID, error) {
	return e.runMedalCheck(ctx, func(ctx context.Context, s *Session) ([]gamification.MedalID, error) {
		return s.CheckRatingMedals(ctx, userID)
	})
}

// CheckReferralMedals evaluates successful-referral milestones.
func (e *Engine) CheckReferralMedals(ctx context.Context, userID string) ([]gamification.MedalID, error) {
	return e.runMedalCheck(ctx, func(ctx context.Context, s *Session) ([]gamification.MedalID, error) {
		return s.CheckReferralMedals(ctx, userID)
	})
}

// CheckTimeMedals evaluates the early bird and night owl medals for a lesson time.
func (e *Engine) CheckTimeMedals(ctx context.Context, userID string, lessonTime time.Time) ([]gamification.MedalID, error) {
	return e.runMedalCheck(ctx, func(ctx context.Context, s *Session) ([]gamification.MedalID, error) {
		return s.CheckTimeMedals(ctx, userID, lessonTime)
	})
}

func (e *Engine) runMedalCheck(ctx context.Context, fn func(ctx context.Context, s *Session) ([]gamification.MedalID, error)) ([]gamification.MedalID, error) {
	var awarded []gamification.MedalID
	err := e.Run(ctx, func(ctx context.Context, s *Session) error {
		var err error
		awarded, err = fn(ctx, s)
		return err
	})
	return awarded, err
}

// ─────────────────────────────────────────────────────────────────────────────
// Orchestrator
// ─────────────────────────────────────────────────────────────────────────────

// ProcessLessonCompletion rewards a finished lesson.
func (e *Engine) ProcessLessonCompletion(ctx context.Context, userID, lessonID string, lessonTime time.Time, opts ...AwardOption) (LessonReward, error) {
	var reward LessonReward
	err := e.Run(ctx, func(ctx context.Context, s *Session) error {
		var err error
		reward, err = s.ProcessLessonCompletion(ctx, userID, lessonID, lessonTime, opts...)
		return err
	})
	return reward, err
}

// ProcessRatingGiven rewards the rater.
func (e *Engine) ProcessRatingGiven(ctx context.Context, userID string, opts ...AwardOption) error {
	return e.Run(ctx, func(ctx context.Context, s *Session) error {
		return s.ProcessRatingGiven(ctx, userID, opts...)
	})
}

// ProcessRatingReceived rewards a top score received.
func (e *Engine) ProcessRatingReceived(ctx context.Context, userID string, score int, opts ...AwardOption) error {
	return e.Run(ctx, func(ctx context.Context, s *Session) error {
		return s.ProcessRatingReceived(ctx, userID, score, opts...)
	})
}

// ProcessReferralRedeemed rewards the referrer of a redeemed code.
func (e *Engine) ProcessReferralRedeemed(ctx context.Context, referrerUserID, referredUserID string, opts ...AwardOption) error {
	return e.Run(ctx, func(ctx context.Context, s *Session) error {
		return s.ProcessReferralRedeemed(ctx, referrerUserID, referredUserID, opts...)
	})
}

// GetGamificationInfo returns the progress projection.
// ErrStudentNotFound is returned when the user has no profile.
func (e *Engine) GetGamificationInfo(ctx context.Context, userID string) (*gamification.Info, error) {
	var info gamification.Info
	err := e.store.ReadOnly(ctx, func(ctx context.Context, uow gamification.UnitOfWork) error {
		st, err := uow.Students().GetByUserID(ctx, userID)
		if err != nil {
			return err
		}
		info = gamification.BuildInfo(st)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}
