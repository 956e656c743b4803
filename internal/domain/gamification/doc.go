// Package gamification contains the progress domain of DriveHub students:
// points, levels and medals.
//
// Main parts:
//   - Student: progress aggregate (points, one-way level, append-only medals)
//   - LevelTier: static eight-tier table, see ResolveLevel
//   - Medal: static ten-entry catalog with count and time-of-day milestones
//   - ActivityLogEntry: audit record written next to every mutation
//
// Static tables are validated once at package init and only exposed as copies.
//
// Example:
//
//	tier := gamification.ResolveLevel(120) // level 2, "Aprendiz"
//	due := gamification.PolicyExact.Due(5, gamification.LessonMilestones())
//	// due == []MedalID{MedalFiveLessons}
package gamification
