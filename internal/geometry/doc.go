// Package geometry owns the rigid-body maths shared by every published pose.
//
// Responsibilities: 4×4 homogeneous transforms (composition, rigid
// inverse, camera-centre recovery) and the single rotation-to-quaternion
// conversion used for both keyframe and camera poses.
// Key types: Transform, Pose.
//
// Conventions: a keyframe or frame pose is stored as Tcw (world to
// camera). A published pose is the camera in the world: orientation from
// Rwc = Rcwᵀ and position twc = -Rwc·tcw.
package geometry
