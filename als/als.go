// Package als factorizes implicit-feedback confidence matrices with
// Alternating Least Squares (Hu, Koren and Volinsky, 2008).
//
// Every stored value v of the user×item matrix is a confidence c = |v| with
// preference p = 1 for v > 0 and p = 0 otherwise. Each half step solves, per
// row u, the normal equations
//
//	(YᵀY + λI + Σ_i (c_ui - 1) y_i y_iᵀ) x_u = Σ_{i: p_ui = 1} c_ui y_i
//
// with a Cholesky factorization.
package als

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/hupe1980/recgo/factor"
	"github.com/hupe1980/recgo/sparse"
)

// ErrSingular is returned when a normal-equation system is not positive definite.
var ErrSingular = errors.New("als: system is not positive definite")

// Options configures the solver.
type Options struct {
	// Factors is the embedding width.
	Factors int

	// Regularization is the L2 penalty λ.
	Regularization float64

	// Iterations is the number of alternating sweeps.
	Iterations int

	// Workers bounds the goroutines solving rows in parallel.
	Workers int

	// Seed drives the random initialization.
	Seed int64

	// Progress, when set, is called after every sweep.
	Progress func(iteration, total int, elapsed time.Duration)
}

// DefaultOptions are used when no option function overrides them.
var DefaultOptions = Options{
	Factors:        64,
	Regularization: 0.01,
	Iterations:     15,
	Workers:        runtime.GOMAXPROCS(0),
	Seed:           1,
}

// Solver runs ALS. It is safe for concurrent use.
type Solver struct {
	opts Options
}

// New creates a solver.
func New(optFns ...func(o *Options)) (*Solver, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	switch {
	case opts.Factors <= 0:
		return nil, fmt.Errorf("als: factors must be positive, got %d", opts.Factors)
	case opts.Regularization < 0:
		return nil, fmt.Errorf("als: regularization must not be negative, got %g", opts.Regularization)
	case opts.Iterations <= 0:
		return nil, fmt.Errorf("als: iterations must be positive, got %d", opts.Iterations)
	}

	if opts.Workers < 1 {
		opts.Workers = 1
	}

	return &Solver{opts: opts}, nil
}

// Factors returns the embedding width produced by the solver.
func (s *Solver) Factors() int { return s.opts.Factors }

// Factorize returns user and item factors for a user×item confidence matrix.
func (s *Solver) Factorize(ctx context.Context, userItems *sparse.Matrix) ([][]float32, [][]float32, error) {
	users, items := userItems.Dims()
	if users == 0 || items == 0 {
		return nil, nil, fmt.Errorf("als: cannot factorize an empty %dx%d matrix", users, items)
	}

	f := s.opts.Factors

	rng := rand.New(rand.NewSource(s.opts.Seed)) // nolint gosec

	x := randomDense(rng, users, f)
	y := randomDense(rng, items, f)

	itemUsers := userItems.Transpose()

	for it := 0; it < s.opts.Iterations; it++ {
		start := time.Now()

		if err := s.solveRows(ctx, userItems, y, x); err != nil {
			return nil, nil, err
		}

		if err := s.solveRows(ctx, itemUsers, x, y); err != nil {
			return nil, nil, err
		}

		if s.opts.Progress != nil {
			s.opts.Progress(it+1, s.opts.Iterations, time.Since(start))
		}
	}

	return toRows(x), toRows(y), nil
}

// RecalculateUser solves a single user row against fixed item factors, using
// the confidences in liked. Indices in liked are item positions.
func (s *Solver) RecalculateUser(ctx context.Context, items factor.Rows, liked sparse.Vector) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n, f := items.Len(), items.Dim()
	if n == 0 {
		return make([]float32, f), nil
	}

	for _, i := range liked.Indices {
		if i < 0 || i >= n {
			return nil, fmt.Errorf("als: liked item %d out of range [0, %d)", i, n)
		}
	}

	y := mat.NewDense(n, f, nil)
	for i := 0; i < n; i++ {
		row := items.Row(i)
		for j, v := range row {
			y.Set(i, j, float64(v))
		}
	}

	yty := gram(y)

	out := mat.NewVecDense(f, nil)
	if err := s.solveRow(yty, y, liked, mat.NewSymDense(f, nil), mat.NewVecDense(f, nil), out); err != nil {
		return nil, err
	}

	res := make([]float32, f)
	for j := range res {
		res[j] = float32(out.AtVec(j))
	}

	return res, nil
}

// solveRows recomputes every row of dst from the fixed factors in fixed.
func (s *Solver) solveRows(ctx context.Context, conf *sparse.Matrix, fixed, dst *mat.Dense) error {
	rows, _ := conf.Dims()
	f := s.opts.Factors
	yty := gram(fixed)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)

	chunk := max(1, (rows+s.opts.Workers*4-1)/(s.opts.Workers*4))

	for lo := 0; lo < rows; lo += chunk {
		hi := min(rows, lo+chunk)

		g.Go(func() error {
			a := mat.NewSymDense(f, nil)
			b := mat.NewVecDense(f, nil)
			x := mat.NewVecDense(f, nil)

			for u := lo; u < hi; u++ {
				if err := ctx.Err(); err != nil {
					return err
				}

				if err := s.solveRow(yty, fixed, conf.Row(u), a, b, x); err != nil {
					return fmt.Errorf("row %d: %w", u, err)
				}

				dst.SetRow(u, x.RawVector().Data)
			}

			return nil
		})
	}

	return g.Wait()
}

// solveRow writes the solution for one row into x; a and b are scratch space.
func (s *Solver) solveRow(yty *mat.SymDense, fixed *mat.Dense, row sparse.Vector, a *mat.SymDense, b, x *mat.VecDense) error {
	f := s.opts.Factors

	a.CopySym(yty)
	for d := 0; d < f; d++ {
		a.SetSym(d, d, a.At(d, d)+s.opts.Regularization)
	}

	b.Zero()

	for k, i := range row.Indices {
		v := float64(row.Values[k])
		c := math.Abs(v)
		yi := fixed.RowView(i)

		a.SymRankOne(a, c-1, yi)

		if v > 0 {
			b.AddScaledVec(b, c, yi)
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return ErrSingular
	}

	return chol.SolveVecTo(x, b)
}

// gram returns MᵀM.
func gram(m *mat.Dense) *mat.SymDense {
	_, f := m.Dims()
	out := mat.NewSymDense(f, nil)
	out.SymOuterK(1, m.T())

	return out
}

func randomDense(rng *rand.Rand, rows, cols int) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = rng.Float64() * 0.01
	}

	return mat.NewDense(rows, cols, data)
}

func toRows(m *mat.Dense) [][]float32 {
	r, c := m.Dims()
	out := make([][]float32, r)

	for i := range out {
		out[i] = make([]float32, c)
		for j := range out[i] {
			out[i][j] = float32(m.At(i, j))
		}
	}

	return out
}
