// Package slam defines the map model shared with the estimation engine
// and the boundary the publication bridge consumes it through.
//
// The engine owns and mutates keyframes and landmarks from its own
// goroutines (tracking, local mapping, loop closing). Every accessor here
// returns an atomic per-entity snapshot: readers may see stale values but
// never a half-written pose or position. Invalid entities are flagged bad
// and never physically removed.
package slam
