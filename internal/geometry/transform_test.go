package geometry

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

const tol = 1e-9

func randomTransform(rng *rand.Rand) Transform {
	axis := r3.Vec{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}
	angle := (rng.Float64()*2 - 1) * math.Pi
	t := r3.Vec{X: rng.Float64() * 10, Y: rng.Float64() * 10, Z: rng.Float64() * 10}
	return NewTransform(AxisAngle(axis, angle), t)
}

func TestIdentity_IsRigid(t *testing.T) {
	if !Identity().IsRigid(MatrixValidationTolerance) {
		t.Error("identity should be rigid")
	}
}

func TestIsRigid_RejectsScaledAndZero(t *testing.T) {
	scaled := Identity()
	scaled[0] = 2
	if scaled.IsRigid(MatrixValidationTolerance) {
		t.Error("scaled matrix should not be rigid")
	}

	var zero Transform
	if zero.IsRigid(MatrixValidationTolerance) {
		t.Error("zero matrix should not be rigid")
	}

	badRow := Identity()
	badRow[12] = 1
	if badRow.IsRigid(MatrixValidationTolerance) {
		t.Error("matrix with non-homogeneous last row should not be rigid")
	}
}

func TestInverse_ComposesToIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		tr := randomTransform(rng)
		if !tr.IsRigid(1e-6) {
			t.Fatalf("random transform %d not rigid", i)
		}
		if got := tr.Mul(tr.Inverse()); !got.ApproxEqual(Identity(), 1e-9) {
			t.Errorf("T·T⁻¹ = %v, want identity", got)
		}
		if got := tr.Inverse().Mul(tr); !got.ApproxEqual(Identity(), 1e-9) {
			t.Errorf("T⁻¹·T = %v, want identity", got)
		}
	}
}

func TestMul_OrderMatters(t *testing.T) {
	rot := NewTransform(AxisAngle(r3.Vec{Z: 1}, math.Pi/2), r3.Vec{})
	shift := NewTransform(eye3(), r3.Vec{X: 1})

	p := r3.Vec{}
	// Shift first, then rotate 90° about Z: (1,0,0) -> (0,1,0).
	got := rot.Mul(shift).Apply(p)
	if math.Abs(got.X) > tol || math.Abs(got.Y-1) > tol {
		t.Errorf("rot·shift applied to origin = %v, want (0,1,0)", got)
	}
	// Rotate first (origin stays), then shift: (1,0,0).
	got = shift.Mul(rot).Apply(p)
	if math.Abs(got.X-1) > tol || math.Abs(got.Y) > tol {
		t.Errorf("shift·rot applied to origin = %v, want (1,0,0)", got)
	}
}

func TestCameraCenter(t *testing.T) {
	// Camera at world (2,3,4) with no rotation: Tcw translation is -(2,3,4).
	tcw := NewTransform(eye3(), r3.Vec{X: -2, Y: -3, Z: -4})
	c := tcw.CameraCenter()
	if c != (r3.Vec{X: 2, Y: 3, Z: 4}) {
		t.Errorf("CameraCenter() = %v, want (2,3,4)", c)
	}
}

func TestRotationAndTranslation_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	tr := randomTransform(rng)
	back := NewTransform(tr.Rotation(), tr.Translation())
	if back != tr {
		t.Errorf("NewTransform(Rotation, Translation) = %v, want %v", back, tr)
	}
}

func TestAxisAngle_ZeroAxis(t *testing.T) {
	if !mat.EqualApprox(AxisAngle(r3.Vec{}, 1), eye3(), tol) {
		t.Error("zero axis should give identity")
	}
}
