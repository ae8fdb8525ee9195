package vio

import (
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"
)

// MinRansacIterations is the floor on the trial budget. With two-point
// sampling and realistic inlier fractions, fewer trials give no confidence
// that at least one all-inlier sample was drawn.
const MinRansacIterations = 16

// ErrTooFewCandidates is returned by FindInliers when fewer than two tracks
// are flagged as valid, which is not enough to hypothesize a translation.
var ErrTooFewCandidates = errors.New("fewer than two inlier candidates")

// RansacConfig holds configuration for the two-point RANSAC estimator.
type RansacConfig struct {
	Iterations      int        // Number of hypothesis trials (floor: MinRansacIterations)
	UseSampson      bool       // Score with Sampson error instead of algebraic error
	InlierThreshold float64    // Error below this counts as an inlier
	RNG             *rand.Rand // Random number generator for deterministic behavior
}

// DefaultRansacConfig returns sensible defaults for normalized image
// coordinates. The threshold is in squared normalized units.
func DefaultRansacConfig() RansacConfig {
	return RansacConfig{
		Iterations:      MinRansacIterations,
		UseSampson:      true,
		InlierThreshold: 1e-4,
		RNG:             rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// RansacModel stores per-trial state for one FindInliers pass. Slices are
// sized to Iterations; entries past the last completed trial are stale.
type RansacModel struct {
	Hypotheses []*mat.Dense // Essential matrix hypothesis per trial
	NInliers   []int        // Inlier vote per trial
	TwoPoints  [][2]int     // Sampled track indices per trial
	Iterations int
}

// NewRansacModel allocates model storage for the given trial budget,
// raising it to MinRansacIterations when below.
func NewRansacModel(iterations int) *RansacModel {
	if iterations < MinRansacIterations {
		iterations = MinRansacIterations
	}
	m := &RansacModel{
		Hypotheses: make([]*mat.Dense, iterations),
		NInliers:   make([]int, iterations),
		TwoPoints:  make([][2]int, iterations),
		Iterations: iterations,
	}
	for i := range m.Hypotheses {
		m.Hypotheses[i] = mat.NewDense(3, 3, nil)
	}
	return m
}

// Ransac rejects outlier correspondences between two camera frames given the
// inter-frame rotation. With the rotation known, the epipolar geometry has
// only the translation direction left to estimate, so two correspondences
// suffice per hypothesis: each pair (p1, p2) constrains the translation t
// through p2^T @ skew(t) @ (R@p1) = 0.
//
// A Ransac is reusable across frame pairs but not safe for concurrent use;
// run one instance per camera.
type Ransac struct {
	useSampson bool
	threshold  float64
	rng        *rand.Rand

	model      *RansacModel
	candidates []int
	rot        *mat.Dense // rotation of the current pass; identity until FindInliers sets it
}

// NewRansac creates an estimator from the given configuration. The metric
// choice and threshold are fixed for the instance's lifetime.
func NewRansac(cfg RansacConfig) *Ransac {
	if cfg.Iterations < MinRansacIterations {
		log.Printf("ransac: raising iteration count %d to minimum %d", cfg.Iterations, MinRansacIterations)
		cfg.Iterations = MinRansacIterations
	}
	if cfg.InlierThreshold <= 0 {
		cfg.InlierThreshold = DefaultRansacConfig().InlierThreshold
	}
	rng := cfg.RNG
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Ransac{
		useSampson: cfg.UseSampson,
		threshold:  cfg.InlierThreshold,
		rng:        rng,
		model:      NewRansacModel(cfg.Iterations),
		rot:        Identity3(),
	}
}

// Model exposes the per-trial state, mainly for tests and diagnostics.
func (r *Ransac) Model() *RansacModel {
	return r.model
}

// UseSampson reports which error metric the estimator scores with.
func (r *Ransac) UseSampson() bool {
	return r.useSampson
}

// scoreAt evaluates the configured metric for one correspondence, rotating
// the frame-1 ray into frame 2 first. The hypothesis stores only the
// translation part, so the rotation must be applied to the point.
func (r *Ransac) scoreAt(p1, p2 Point, E *mat.Dense) float64 {
	var rv1 mat.VecDense
	rv1.MulVec(r.rot, homogeneous(p1))
	v2 := homogeneous(p2)
	if r.useSampson {
		return sampsonError3(&rv1, v2, E)
	}
	return algebraicError3(&rv1, v2, E)
}

// SetPointSet draws two distinct candidates uniformly at random and stores
// their track indices for the trial. nCandidates must be at least 2;
// FindInliers guarantees this before sampling.
func (r *Ransac) SetPointSet(nCandidates, trial int) {
	a := r.rng.Intn(nCandidates)
	b := r.rng.Intn(nCandidates)
	for b == a {
		b = r.rng.Intn(nCandidates)
	}
	r.model.TwoPoints[trial] = [2]int{r.candidates[a], r.candidates[b]}
}

// SetRansacModel builds the essential matrix hypothesis for the trial from
// its two sampled correspondences. The two constraint rows (R@p1 x p2) are
// stacked into a 2x3 system whose null space is the translation direction,
// extracted by SVD and fixed to unit length. The hypothesis stored is
// skew(t); near-collinear samples still produce one, the vote simply stays
// low.
func (r *Ransac) SetRansacModel(pts1, pts2 []Point, R *mat.Dense, trial int) {
	i, j := r.model.TwoPoints[trial][0], r.model.TwoPoints[trial][1]

	row1 := epipolarRow(pts1[i], pts2[i], R)
	row2 := epipolarRow(pts1[j], pts2[j], R)

	A := mat.NewDense(2, 3, append(row1[:], row2[:]...))
	t := nullVector(A)

	skewSymmetric(t, r.model.Hypotheses[trial])
}

// CountInliers scores every current candidate against the trial's hypothesis
// and records the vote. It uses the rotation established by the enclosing
// FindInliers pass.
func (r *Ransac) CountInliers(pts1, pts2 []Point, trial int) {
	E := r.model.Hypotheses[trial]
	n := 0
	for _, idx := range r.candidates {
		if r.scoreAt(pts1[idx], pts2[idx], E) < r.threshold {
			n++
		}
	}
	r.model.NInliers[trial] = n
}

// FindInliers runs the full rejection pass for one frame pair. flags is the
// tracker's status vector; entries are only ever cleared, never set, so a
// track rejected upstream stays rejected. It returns the number of tracks
// still flagged after refinement.
//
// When fewer than two tracks are flagged there is nothing to estimate from:
// flags are left untouched, 0 and ErrTooFewCandidates are returned, and the
// caller decides whether to drop the frame.
func (r *Ransac) FindInliers(pts1, pts2 []Point, R *mat.Dense, flags []uint8) (int, error) {
	if len(pts1) != len(pts2) || len(pts1) != len(flags) {
		return 0, fmt.Errorf("mismatched lengths: %d points1, %d points2, %d flags",
			len(pts1), len(pts2), len(flags))
	}
	if R == nil {
		R = Identity3()
	}
	r.rot = R

	r.candidates = r.candidates[:0]
	for i, f := range flags {
		if f != 0 {
			r.candidates = append(r.candidates, i)
		}
	}
	if len(r.candidates) < 2 {
		return 0, fmt.Errorf("%w: %d of %d tracks", ErrTooFewCandidates, len(r.candidates), len(flags))
	}

	for trial := 0; trial < r.model.Iterations; trial++ {
		r.SetPointSet(len(r.candidates), trial)
		r.SetRansacModel(pts1, pts2, R, trial)
		r.CountInliers(pts1, pts2, trial)
	}

	// Earliest trial wins ties.
	best := 0
	for trial := 1; trial < r.model.Iterations; trial++ {
		if r.model.NInliers[trial] > r.model.NInliers[best] {
			best = trial
		}
	}

	// Final pass: re-score everything against the winner so the flag vector
	// is consistent with exactly one hypothesis.
	E := r.model.Hypotheses[best]
	kept := 0
	for _, idx := range r.candidates {
		if r.scoreAt(pts1[idx], pts2[idx], E) < r.threshold {
			kept++
		} else {
			flags[idx] = 0
		}
	}

	return kept, nil
}

// Refine is a convenience wrapper that runs FindInliers over a decoded
// TrackSet and packages the result. The TrackSet's flags are updated in place.
func (r *Ransac) Refine(ts *TrackSet) (*Verdict, error) {
	candidates := ts.Candidates()
	inliers, err := r.FindInliers(ts.Points1, ts.Points2, ts.Rotation.Matrix(), ts.Flags)
	if err != nil {
		return nil, err
	}
	return &Verdict{
		Camera:     ts.Camera,
		Seq:        ts.Seq,
		Timestamp:  ts.Timestamp,
		Candidates: candidates,
		Inliers:    inliers,
		Flags:      ts.Flags,
	}, nil
}

// epipolarRow builds one constraint row (R@p1 x p2) for the translation
// direction from a single correspondence.
func epipolarRow(p1, p2 Point, R *mat.Dense) [3]float64 {
	var rv1 mat.VecDense
	rv1.MulVec(R, homogeneous(p1))

	a := [3]float64{rv1.AtVec(0), rv1.AtVec(1), rv1.AtVec(2)}
	b := [3]float64{p2.X, p2.Y, 1}

	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

// nullVector returns the unit right singular vector of A's smallest singular
// value, the null space direction of a rank-2 2x3 constraint matrix.
func nullVector(A *mat.Dense) [3]float64 {
	var svd mat.SVD
	if ok := svd.Factorize(A, mat.SVDFullV); !ok {
		// Factorization only fails on non-finite input; an arbitrary
		// direction keeps the trial harmless.
		return [3]float64{0, 0, 1}
	}

	var v mat.Dense
	svd.VTo(&v)

	// Right singular vectors are ordered by decreasing singular value; the
	// last column spans the null space of the 2x3 system.
	t := [3]float64{v.At(0, 2), v.At(1, 2), v.At(2, 2)}
	n := math.Sqrt(t[0]*t[0] + t[1]*t[1] + t[2]*t[2])
	if n == 0 {
		return [3]float64{0, 0, 1}
	}
	t[0] /= n
	t[1] /= n
	t[2] /= n
	return t
}

// skewSymmetric writes the cross-product matrix of t into dst, the essential
// matrix of a pure translation.
func skewSymmetric(t [3]float64, dst *mat.Dense) {
	dst.Set(0, 0, 0)
	dst.Set(0, 1, -t[2])
	dst.Set(0, 2, t[1])
	dst.Set(1, 0, t[2])
	dst.Set(1, 1, 0)
	dst.Set(1, 2, -t[0])
	dst.Set(2, 0, -t[1])
	dst.Set(2, 1, t[0])
	dst.Set(2, 2, 0)
}
