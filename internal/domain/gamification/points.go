package gamification

// Point awards per event.
const (
	PointsLessonCompleted       = 10
	PointsFirstLesson           = 50
	PointsRatingGiven           = 5
	PointsPerfectRatingReceived = 20
	PointsReferralSignup        = 100
	PointsReferralFirstLesson   = 50
)

// PerfectScore is the rating that earns PointsPerfectRatingReceived.
const PerfectScore = 5

// Reasons recorded in the activity log.
const (
	ReasonLessonCompleted       = "lesson_completed"
	ReasonRatingGiven           = "rating_given"
	ReasonPerfectRatingReceived = "perfect_rating_received"
	ReasonReferralSignup        = "referral_signup"
	ReasonReferralFirstLesson   = "referral_first_lesson"
	ReasonManualAdjustment      = "manual_adjustment"
)

// LessonCompletionAward returns the points for the n-th completed lesson.
func LessonCompletionAward(completedLessons int) int {
	award := PointsLessonCompleted
	if completedLessons == 1 {
		award += PointsFirstLesson
	}
	return award
}
