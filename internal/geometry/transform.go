package geometry

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// MatrixValidationTolerance is the tolerance for checking rotation matrix validity.
const MatrixValidationTolerance = 0.01

// Transform is a 4x4 homogeneous rigid transform in row-major order:
// m00,m01,m02,m03, m10,m11,m12,m13, m20,...
// The zero value is not a valid transform; use Identity.
type Transform [16]float64

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// NewTransform builds a transform from a 3x3 rotation and a translation.
func NewTransform(r mat.Matrix, t r3.Vec) Transform {
	var out Transform
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i*4+j] = r.At(i, j)
		}
	}
	out[3], out[7], out[11] = t.X, t.Y, t.Z
	out[15] = 1
	return out
}

// Dense returns a copy of the transform as a gonum matrix.
func (t Transform) Dense() *mat.Dense {
	data := make([]float64, 16)
	copy(data, t[:])
	return mat.NewDense(4, 4, data)
}

// Mul returns the composition t·o (o applied first).
func (t Transform) Mul(o Transform) Transform {
	var prod mat.Dense
	prod.Mul(t.Dense(), o.Dense())

	var out Transform
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			out[i*4+j] = prod.At(i, j)
		}
	}
	return out
}

// Rotation returns the upper-left 3x3 rotation block.
func (t Transform) Rotation() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		t[0], t[1], t[2],
		t[4], t[5], t[6],
		t[8], t[9], t[10],
	})
}

// Translation returns the translation column.
func (t Transform) Translation() r3.Vec {
	return r3.Vec{X: t[3], Y: t[7], Z: t[11]}
}

// Inverse returns the rigid inverse [Rᵀ | -Rᵀt]. It does not perform a
// general matrix inversion, so t must be rigid.
func (t Transform) Inverse() Transform {
	rt := mat.DenseCopyOf(t.Rotation().T())
	tr := t.Translation()

	var v mat.VecDense
	v.MulVec(rt, mat.NewVecDense(3, []float64{tr.X, tr.Y, tr.Z}))

	return NewTransform(rt, r3.Vec{X: -v.AtVec(0), Y: -v.AtVec(1), Z: -v.AtVec(2)})
}

// CameraCenter returns -Rᵀ·t, the origin of the transform's source frame
// expressed in its target frame. For a Tcw pose this is the camera
// position in the world.
func (t Transform) CameraCenter() r3.Vec {
	return t.Inverse().Translation()
}

// Apply maps a point through the transform.
func (t Transform) Apply(p r3.Vec) r3.Vec {
	return r3.Vec{
		X: t[0]*p.X + t[1]*p.Y + t[2]*p.Z + t[3],
		Y: t[4]*p.X + t[5]*p.Y + t[6]*p.Z + t[7],
		Z: t[8]*p.X + t[9]*p.Y + t[10]*p.Z + t[11],
	}
}

// IsRigid reports whether t is a proper rigid transform within tol:
// orthonormal rotation with determinant 1 and a last row of [0 0 0 1].
func (t Transform) IsRigid(tol float64) bool {
	r := t.Rotation()
	if math.Abs(mat.Det(r)-1) > tol {
		return false
	}

	var rrt mat.Dense
	rrt.Mul(r, r.T())
	if !mat.EqualApprox(&rrt, eye3(), tol) {
		return false
	}

	if t[12] != 0 || t[13] != 0 || t[14] != 0 || math.Abs(t[15]-1) > tol {
		return false
	}
	return true
}

// ApproxEqual reports whether every element of t and o differs by at most tol.
func (t Transform) ApproxEqual(o Transform, tol float64) bool {
	for i := range t {
		if math.Abs(t[i]-o[i]) > tol {
			return false
		}
	}
	return true
}

// AxisAngle returns the rotation of angle radians about axis (Rodrigues).
// A zero axis yields the identity.
func AxisAngle(axis r3.Vec, angle float64) *mat.Dense {
	n := r3.Norm(axis)
	if n == 0 {
		return eye3()
	}
	x, y, z := axis.X/n, axis.Y/n, axis.Z/n
	c, s := math.Cos(angle), math.Sin(angle)
	k := 1 - c

	return mat.NewDense(3, 3, []float64{
		c + x*x*k, x*y*k - z*s, x*z*k + y*s,
		y*x*k + z*s, c + y*y*k, y*z*k - x*s,
		z*x*k - y*s, z*y*k + x*s, c + z*z*k,
	})
}

func eye3() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})
}
