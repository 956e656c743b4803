package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Events are published after the transaction that
// produced them commits.
const (
	// Student events
	EventStudentProfileCreated EventType = "student.profile_created"

	// Progress events
	EventPointsAwarded EventType = "progress.points_awarded"
	EventLevelUp       EventType = "progress.level_up"
	EventMedalAwarded  EventType = "progress.medal_awarded"

	// Lesson events
	EventLessonScheduled EventType = "lesson.scheduled"
	EventLessonCompleted EventType = "lesson.completed"
	EventLessonCancelled EventType = "lesson.cancelled"

	// Rating events
	EventRatingSubmitted EventType = "rating.submitted"

	// Referral events
	EventReferralRedeemed EventType = "referral.redeemed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string
}

// BaseEvent carries the fields every event shares. Embed it.
type BaseEvent struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Aggregate string    `json:"aggregate_id"`
}

func (e BaseEvent) EventType() EventType  { return e.Type }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseEvent) AggregateID() string   { return e.Aggregate }

// NewBaseEvent stamps an event of eventType about aggregateID with the current time.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{Type: eventType, Timestamp: time.Now().UTC(), Aggregate: aggregateID}
}

// ═══════════════════════════════════════════════════════════════════════════
// Student Events
// ═══════════════════════════════════════════════════════════════════════════

// StudentProfileCreatedEvent is emitted when a student profile is created.
type StudentProfileCreatedEvent struct {
	BaseEvent
	UserID       string `json:"user_id"`
	ReferralCode string `json:"referral_code"`
}

// NewStudentProfileCreatedEvent creates a new StudentProfileCreatedEvent.
func NewStudentProfileCreatedEvent(userID, referralCode string) StudentProfileCreatedEvent {
	return StudentProfileCreatedEvent{
		BaseEvent:    NewBaseEvent(EventStudentProfileCreated, userID),
		UserID:       userID,
		ReferralCode: referralCode,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// PointsAwardedEvent is emitted when a student's point balance changes.
type PointsAwardedEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	Amount   int    `json:"amount"`
	NewTotal int    `json:"new_total"`
	Reason   string `json:"reason"`
}

// NewPointsAwardedEvent creates a new PointsAwardedEvent.
func NewPointsAwardedEvent(userID string, amount, newTotal int, reason string) PointsAwardedEvent {
	return PointsAwardedEvent{
		BaseEvent: NewBaseEvent(EventPointsAwarded, userID),
		UserID:    userID,
		Amount:    amount,
		NewTotal:  newTotal,
		Reason:    reason,
	}
}

// LevelUpEvent is emitted when a student reaches a higher level.
type LevelUpEvent struct {
	BaseEvent
	UserID    string `json:"user_id"`
	OldLevel  int    `json:"old_level"`
	NewLevel  int    `json:"new_level"`
	LevelName string `json:"level_name"`
}

// NewLevelUpEvent creates a new LevelUpEvent.
func NewLevelUpEvent(userID string, oldLevel, newLevel int, levelName string) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent: NewBaseEvent(EventLevelUp, userID),
		UserID:    userID,
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
		LevelName: levelName,
	}
}

// MedalAwardedEvent is emitted when a medal is granted for the first time.
type MedalAwardedEvent struct {
	BaseEvent
	UserID    string `json:"user_id"`
	MedalID   string `json:"medal_id"`
	MedalName string `json:"medal_name"`
}

// NewMedalAwardedEvent creates a new MedalAwardedEvent.
func NewMedalAwardedEvent(userID, medalID, medalName string) MedalAwardedEvent {
	return MedalAwardedEvent{
		BaseEvent: NewBaseEvent(EventMedalAwarded, userID),
		UserID:    userID,
		MedalID:   medalID,
		MedalName: medalName,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Lesson Events
// ═══════════════════════════════════════════════════════════════════════════

// LessonEvent is emitted on lesson lifecycle changes.
type LessonEvent struct {
	BaseEvent
	LessonID         string    `json:"lesson_id"`
	StudentUserID    string    `json:"student_user_id"`
	InstructorUserID string    `json:"instructor_user_id"`
	At               time.Time `json:"at"`
}

// NewLessonEvent creates a lesson lifecycle event of the given type.
func NewLessonEvent(eventType EventType, lessonID, studentUserID, instructorUserID string, at time.Time) LessonEvent {
	return LessonEvent{
		BaseEvent:        NewBaseEvent(eventType, lessonID),
		LessonID:         lessonID,
		StudentUserID:    studentUserID,
		InstructorUserID: instructorUserID,
		At:               at,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Rating & Referral Events
// ═══════════════════════════════════════════════════════════════════════════

// RatingSubmittedEvent is emitted when a lesson participant rates the other.
type RatingSubmittedEvent struct {
	BaseEvent
	LessonID    string  `json:"lesson_id"`
	RaterUserID string  `json:"rater_user_id"`
	RateeUserID string  `json:"ratee_user_id"`
	Score       int     `json:"score"`
	NewAverage  float64 `json:"new_average"`
}

// NewRatingSubmittedEvent creates a new RatingSubmittedEvent.
func NewRatingSubmittedEvent(lessonID, raterUserID, rateeUserID string, score int, newAverage float64) RatingSubmittedEvent {
	return RatingSubmittedEvent{
		BaseEvent:   NewBaseEvent(EventRatingSubmitted, rateeUserID),
		LessonID:    lessonID,
		RaterUserID: raterUserID,
		RateeUserID: rateeUserID,
		Score:       score,
		NewAverage:  newAverage,
	}
}

// ReferralRedeemedEvent is emitted when a referral code is redeemed.
type ReferralRedeemedEvent struct {
	BaseEvent
	ReferrerUserID string `json:"referrer_user_id"`
	ReferredUserID string `json:"referred_user_id"`
	Code           string `json:"code"`
}

// NewReferralRedeemedEvent creates a new ReferralRedeemedEvent.
func NewReferralRedeemedEvent(referrerUserID, referredUserID, code string) ReferralRedeemedEvent {
	return ReferralRedeemedEvent{
		BaseEvent:      NewBaseEvent(EventReferralRedeemed, referrerUserID),
		ReferrerUserID: referrerUserID,
		ReferredUserID: referredUserID,
		Code:           code,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Bus contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
