// Package memory implements the persistence interfaces in process memory.
// It backs local development without PostgreSQL and the application tests.
//
// A transaction works on a copy of the whole state which replaces the live
// state only when the callback succeeds, so a failed callback leaves nothing behind.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/drivehub/drivehub-api/internal/domain/gamification"
	"github.com/drivehub/drivehub-api/internal/domain/lesson"
	"github.com/drivehub/drivehub-api/internal/domain/rating"
	"github.com/drivehub/drivehub-api/internal/domain/referral"
	"github.com/drivehub/drivehub-api/internal/domain/shared"
)

// Store is a thread-safe in-memory database.
type Store struct {
	mu    sync.RWMutex
	state *state
}

type state struct {
	students  map[string]*gamification.Student // by user id
	activity  []gamification.ActivityLogEntry
	processed map[string]time.Time
	lessons   map[string]*lesson.Lesson
	ratings   []*rating.Rating
	summaries map[string]*rating.Summary
	referrals map[string]*referral.Referral // by referred user id
}

var _ gamification.UnitOfWorkFactory = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		state: &state{
			students:  make(map[string]*gamification.Student),
			processed: make(map[string]time.Time),
			lessons:   make(map[string]*lesson.Lesson),
			summaries: make(map[string]*rating.Summary),
			referrals: make(map[string]*referral.Referral),
		},
	}
}

// WithinTx runs fn serialized against every other transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, uow gamification.UnitOfWork) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, &unitOfWork{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// ReadOnly runs fn on a private copy; writes are discarded.
func (s *Store) ReadOnly(ctx context.Context, fn func(ctx context.Context, uow gamification.UnitOfWork) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	work := s.state.clone()
	s.mu.RUnlock()

	return fn(ctx, &unitOfWork{st: work})
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (st *state) clone() *state {
	c := &state{
		students:  make(map[string]*gamification.Student, len(st.students)),
		activity:  append([]gamification.ActivityLogEntry(nil), st.activity...),
		processed: make(map[string]time.Time, len(st.processed)),
		lessons:   make(map[string]*lesson.Lesson, len(st.lessons)),
		ratings:   append([]*rating.Rating(nil), st.ratings...),
		summaries: make(map[string]*rating.Summary, len(st.summaries)),
		referrals: make(map[string]*referral.Referral, len(st.referrals)),
	}
	for k, v := range st.students {
		c.students[k] = v.Clone()
	}
	for k, v := range st.processed {
		c.processed[k] = v
	}
	for k, v := range st.lessons {
		c.lessons[k] = cloneLesson(v)
	}
	for k, v := range st.summaries {
		sum := *v
		c.summaries[k] = &sum
	}
	for k, v := range st.referrals {
		c.referrals[k] = v
	}
	return c
}

func cloneLesson(l *lesson.Lesson) *lesson.Lesson {
	c := *l
	if l.CompletedAt != nil {
		at := *l.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

type unitOfWork struct {
	st *state
}

func (u *unitOfWork) Students() gamification.Repository             { return studentRepo{u.st} }
func (u *unitOfWork) Activity() gamification.ActivityLog            { return activityLog{u.st} }
func (u *unitOfWork) ProcessedEvents() gamification.ProcessedEvents { return processedEvents{u.st} }
func (u *unitOfWork) Lessons() lesson.Repository                    { return lessonRepo{u.st} }
func (u *unitOfWork) Ratings() rating.Repository                    { return ratingRepo{u.st} }
func (u *unitOfWork) Referrals() referral.Repository                { return referralRepo{u.st} }

// ─────────────────────────────────────────────────────────────────────────────
// Students
// ─────────────────────────────────────────────────────────────────────────────

type studentRepo struct{ st *state }

func (r studentRepo) Create(_ context.Context, s *gamification.Student) error {
	if _, exists := r.st.students[s.UserID]; exists {
		return shared.ErrStudentAlreadyExists
	}
	for _, other := range r.st.students {
		if other.ReferralCode == s.ReferralCode {
			return shared.NewDomainError("student", "Create", shared.ErrAlreadyExists, "referral code already taken")
		}
	}
	r.st.students[s.UserID] = s.Clone()
	return nil
}

func (r studentRepo) GetByUserID(_ context.Context, userID string) (*gamification.Student, error) {
	s, ok := r.st.students[userID]
	if !ok {
		return nil, shared.ErrStudentNotFound
	}
	return s.Clone(), nil
}

// GetByUserIDForUpdate needs no extra locking: the transaction already holds the store lock.
func (r studentRepo) GetByUserIDForUpdate(ctx context.Context, userID string) (*gamification.Student, error) {
	return r.GetByUserID(ctx, userID)
}

func (r studentRepo) GetByReferralCode(_ context.Context, code string) (*gamification.Student, error) {
	for _, s := range r.st.students {
		if s.ReferralCode == code {
			return s.Clone(), nil
		}
	}
	return nil, shared.ErrReferralCodeNotFound
}

func (r studentRepo) Update(_ context.Context, s *gamification.Student) error {
	if _, ok := r.st.students[s.UserID]; !ok {
		return shared.ErrStudentNotFound
	}
	r.st.students[s.UserID] = s.Clone()
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Activity log
// ─────────────────────────────────────────────────────────────────────────────

type activityLog struct{ st *state }

func (a activityLog) Append(_ context.Context, entry gamification.ActivityLogEntry) error {
	a.st.activity = append(a.st.activity, entry)
	return nil
}

func (a activityLog) ListByUser(_ context.Context, userID string, limit int) ([]gamification.ActivityLogEntry, error) {
	out := make([]gamification.ActivityLogEntry, 0)
	for i := len(a.st.activity) - 1; i >= 0; i-- {
		if a.st.activity[i].UserID != userID {
			continue
		}
		out = append(out, a.st.activity[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type processedEvents struct{ st *state }

func (p processedEvents) MarkProcessed(_ context.Context, digest string, at time.Time) (bool, error) {
	if _, seen := p.st.processed[digest]; seen {
		return false, nil
	}
	p.st.processed[digest] = at
	return true, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Lessons
// ─────────────────────────────────────────────────────────────────────────────

type lessonRepo struct{ st *state }

func (r lessonRepo) Create(_ context.Context, l *lesson.Lesson) error {
	if _, exists := r.st.lessons[l.ID]; exists {
		return shared.NewDomainError("lesson", "Create", shared.ErrAlreadyExists, "lesson already exists")
	}
	r.st.lessons[l.ID] = cloneLesson(l)
	return nil
}

func (r lessonRepo) GetByID(_ context.Context, id string) (*lesson.Lesson, error) {
	l, ok := r.st.lessons[id]
	if !ok {
		return nil, shared.ErrLessonNotFound
	}
	return cloneLesson(l), nil
}

func (r lessonRepo) GetByIDForUpdate(ctx context.Context, id string) (*lesson.Lesson, error) {
	return r.GetByID(ctx, id)
}

func (r lessonRepo) Update(_ context.Context, l *lesson.Lesson) error {
	if _, ok := r.st.lessons[l.ID]; !ok {
		return shared.ErrLessonNotFound
	}
	r.st.lessons[l.ID] = cloneLesson(l)
	return nil
}

func (r lessonRepo) CountCompletedByStudent(_ context.Context, studentUserID string) (int, error) {
	n := 0
	for _, l := range r.st.lessons {
		if l.StudentUserID == studentUserID && l.Status == lesson.StatusCompleted {
			n++
		}
	}
	return n, nil
}

func (r lessonRepo) ListByStudent(_ context.Context, studentUserID string, limit int) ([]*lesson.Lesson, error) {
	out := make([]*lesson.Lesson, 0)
	for _, l := range r.st.lessons {
		if l.StudentUserID == studentUserID {
			out = append(out, cloneLesson(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.After(out[j].ScheduledAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Ratings
// ─────────────────────────────────────────────────────────────────────────────

type ratingRepo struct{ st *state }

func (r ratingRepo) Create(ctx context.Context, rt *rating.Rating) error {
	exists, err := r.ExistsForLesson(ctx, rt.LessonID, rt.RaterUserID)
	if err != nil {
		return err
	}
	if exists {
		return shared.ErrDuplicateRating
	}
	c := *rt
	r.st.ratings = append(r.st.ratings, &c)
	return nil
}

func (r ratingRepo) ExistsForLesson(_ context.Context, lessonID, raterUserID string) (bool, error) {
	for _, rt := range r.st.ratings {
		if rt.LessonID == lessonID && rt.RaterUserID == raterUserID {
			return true, nil
		}
	}
	return false, nil
}

func (r ratingRepo) CountPerfectReceived(_ context.Context, userID string) (int, error) {
	n := 0
	for _, rt := range r.st.ratings {
		if rt.RateeUserID == userID && rt.IsPerfect() {
			n++
		}
	}
	return n, nil
}

func (r ratingRepo) GetSummary(_ context.Context, userID string) (*rating.Summary, error) {
	if s, ok := r.st.summaries[userID]; ok {
		c := *s
		return &c, nil
	}
	return &rating.Summary{UserID: userID}, nil
}

// GetSummaryForUpdate needs no lock: transactions already run one at a time.
func (r ratingRepo) GetSummaryForUpdate(ctx context.Context, userID string) (*rating.Summary, error) {
	return r.GetSummary(ctx, userID)
}

func (r ratingRepo) SaveSummary(_ context.Context, s *rating.Summary) error {
	c := *s
	r.st.summaries[s.UserID] = &c
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Referrals
// ─────────────────────────────────────────────────────────────────────────────

type referralRepo struct{ st *state }

func (r referralRepo) Create(_ context.Context, ref *referral.Referral) error {
	if _, exists := r.st.referrals[ref.ReferredUserID]; exists {
		return shared.ErrAlreadyReferred
	}
	c := *ref
	r.st.referrals[ref.ReferredUserID] = &c
	return nil
}

func (r referralRepo) CountByReferrer(_ context.Context, referrerUserID string) (int, error) {
	n := 0
	for _, ref := range r.st.referrals {
		if ref.ReferrerUserID == referrerUserID {
			n++
		}
	}
	return n, nil
}
