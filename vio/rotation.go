package vio

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Quaternion is a Hamilton quaternion describing the inter-frame rotation
// propagated from the inertial side, as carried on the wire.
type Quaternion struct {
	W float64 `json:"w"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Norm returns the quaternion's Euclidean norm.
func (q Quaternion) Norm() float64 {
	return math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
}

// IsZero reports whether all components are zero. A zero quaternion carries
// no rotation information and is rejected at the decode stage.
func (q Quaternion) IsZero() bool {
	return q.W == 0 && q.X == 0 && q.Y == 0 && q.Z == 0
}

// Matrix converts the quaternion to a 3x3 rotation matrix. The quaternion is
// unit-normalized first so that scale drift on the wire cannot leak into the
// epipolar constraint. A zero quaternion yields the identity.
func (q Quaternion) Matrix() *mat.Dense {
	n := q.Norm()
	if n == 0 {
		return Identity3()
	}
	w, x, y, z := q.W/n, q.X/n, q.Y/n, q.Z/n

	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	})
}

// Identity3 returns a 3x3 identity matrix.
func Identity3() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})
}

// IsRotation reports whether R is a proper rotation matrix: 3x3, orthonormal
// within tol, and determinant +1 (no reflection).
func IsRotation(R *mat.Dense, tol float64) bool {
	r, c := R.Dims()
	if r != 3 || c != 3 {
		return false
	}

	var rtr mat.Dense
	rtr.Mul(R.T(), R)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if math.Abs(rtr.At(i, j)-want) > tol {
				return false
			}
		}
	}

	return math.Abs(mat.Det(R)-1) <= tol
}
