// Package publish decides, on every processed frame, what part of the
// map to serialise and emits it on one of two topics.
//
// Responsibilities: the publication policy (incremental update, full
// dump or nothing), reading a consistent-enough view of the map,
// re-anchoring the live camera pose on the first keyframe, and packing
// payloads into the pose-array wire format.
// Key types: Policy, Snapshot, FramePublisher, FullDump, IncrementalUpdate.
//
// Framing on the wire is deliberately asymmetric. A full dump is
// count-prefixed: [nKF] then per keyframe [pose][nPts][pts...], where a
// count record carries the count in all three position fields. An
// incremental update is flat: [camera pose][pts...].
package publish
