// Package ir defines the instrumentation event model and the entity records
// reconstructed from it.
//
// This package contains types and pure helpers only. All other internal
// packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Time is the logical seq carried by every event, never wall-clock
//   - Entity ids are the seq of the begin event that created them, so ids
//     are never reused
//   - Shapes and source keys are rendered through canonical JSON, so equal
//     literals always render to equal text
//   - All JSON tags use snake_case
package ir
