package vio

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// sampsonDenomEps guards the Sampson denominator. Below this the epipolar
// lines are degenerate for the pair and the error is reported as maximally bad.
const sampsonDenomEps = 1e-12

// AlgebraicError computes the squared epipolar residual (p2^T @ E @ p1)^2 for
// a correspondence under the essential matrix E. Points are on the normalized
// image plane with implicit homogeneous coordinate 1.
func AlgebraicError(p1, p2 Point, E *mat.Dense) float64 {
	return algebraicError3(homogeneous(p1), homogeneous(p2), E)
}

// SampsonError computes the first-order geometric approximation of the
// epipolar error:
//
//	(p2^T @ E @ p1)^2 / ((E@p1)_0^2 + (E@p1)_1^2 + (E^T@p2)_0^2 + (E^T@p2)_1^2)
//
// When both epipolar line normals vanish the denominator is zero; the pair is
// then reported as maximally bad rather than dividing by zero.
func SampsonError(p1, p2 Point, E *mat.Dense) float64 {
	return sampsonError3(homogeneous(p1), homogeneous(p2), E)
}

// homogeneous lifts a normalized image point to its 3-vector form.
func homogeneous(p Point) *mat.VecDense {
	return mat.NewVecDense(3, []float64{p.X, p.Y, 1})
}

// algebraicError3 is the 3-vector form used internally, where v1 may be a
// rotated ray whose third component is no longer 1.
func algebraicError3(v1, v2 *mat.VecDense, E *mat.Dense) float64 {
	var ev1 mat.VecDense
	ev1.MulVec(E, v1)
	res := mat.Dot(v2, &ev1)
	return res * res
}

// sampsonError3 is the 3-vector form of the Sampson error.
func sampsonError3(v1, v2 *mat.VecDense, E *mat.Dense) float64 {
	var ev1, etv2 mat.VecDense
	ev1.MulVec(E, v1)
	etv2.MulVec(E.T(), v2)

	res := mat.Dot(v2, &ev1)
	num := res * res

	denom := ev1.AtVec(0)*ev1.AtVec(0) + ev1.AtVec(1)*ev1.AtVec(1) +
		etv2.AtVec(0)*etv2.AtVec(0) + etv2.AtVec(1)*etv2.AtVec(1)
	if denom < sampsonDenomEps {
		return math.MaxFloat64
	}

	return num / denom
}
