// Package schedule holds the bell-schedule data model: periods, profiles and
// the process-wide AppConfig, plus the pure queries the engine and the
// interactive front-end run against them.
//
// Nothing in this package performs I/O or starts goroutines. Values are plain
// data; callers that share an AppConfig across goroutines hand out Clone()s.
//
// # Invariants
//
//   - A profile ID is allocated from AppConfig.NextScheduleID and never reused.
//   - AppConfig.ActiveScheduleID, if set, references an existing profile. This is
//     not self-maintaining: every structural mutation ends with
//     EnsureActiveSchedule.
//   - Periods are re-sorted by their normalized time string after each edit.
package schedule
