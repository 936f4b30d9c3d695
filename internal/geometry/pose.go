package geometry

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Pose is a position plus a unit orientation quaternion. Real holds w;
// Imag, Jmag and Kmag hold x, y and z.
type Pose struct {
	Position    r3.Vec
	Orientation quat.Number
}

// Encode converts a rotation and translation into a Pose.
func Encode(r mat.Matrix, t r3.Vec) Pose {
	return Pose{
		Position:    t,
		Orientation: QuaternionFromRotation(r),
	}
}

// CameraPose returns the world pose of a camera whose pose is stored as
// Tcw: orientation from Rwc = Rcwᵀ and position twc = -Rwc·tcw.
// Keyframes and the live camera both go through here, so every pose in a
// payload shares one quaternion convention.
func CameraPose(tcw Transform) Pose {
	twc := tcw.Inverse()
	return Encode(twc.Rotation(), twc.Translation())
}

// QuaternionFromRotation converts an orthonormal 3x3 matrix into a
// quaternion. It follows the Eigen Quaterniond(Matrix3d) branch order:
// the trace branch when trace > 0 (giving w > 0), otherwise the branch
// pivoting on the largest diagonal element. The sign is not normalised
// beyond what the chosen branch yields.
func QuaternionFromRotation(r mat.Matrix) quat.Number {
	m := func(i, j int) float64 { return r.At(i, j) }

	var q [3]float64 // x, y, z
	var w float64

	trace := m(0, 0) + m(1, 1) + m(2, 2)
	if trace > 0 {
		s := math.Sqrt(trace + 1)
		w = 0.5 * s
		s = 0.5 / s
		q[0] = (m(2, 1) - m(1, 2)) * s
		q[1] = (m(0, 2) - m(2, 0)) * s
		q[2] = (m(1, 0) - m(0, 1)) * s
	} else {
		i := 0
		if m(1, 1) > m(0, 0) {
			i = 1
		}
		if m(2, 2) > m(i, i) {
			i = 2
		}
		j := (i + 1) % 3
		k := (j + 1) % 3

		s := math.Sqrt(m(i, i) - m(j, j) - m(k, k) + 1)
		q[i] = 0.5 * s
		s = 0.5 / s
		w = (m(k, j) - m(j, k)) * s
		q[j] = (m(j, i) + m(i, j)) * s
		q[k] = (m(k, i) + m(i, k)) * s
	}

	return quat.Number{Real: w, Imag: q[0], Jmag: q[1], Kmag: q[2]}
}

// RotationFromQuaternion returns the rotation matrix of a unit quaternion.
func RotationFromQuaternion(q quat.Number) *mat.Dense {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - z*w), 2 * (x*z + y*w),
		2 * (x*y + z*w), 1 - 2*(x*x+z*z), 2 * (y*z - x*w),
		2 * (x*z - y*w), 2 * (y*z + x*w), 1 - 2*(x*x+y*y),
	})
}

// Transform returns the pose as a homogeneous transform (Twc for a
// camera pose).
func (p Pose) Transform() Transform {
	return NewTransform(RotationFromQuaternion(p.Orientation), p.Position)
}
