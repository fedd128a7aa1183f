// Package solver implements the pressure projection and variational
// viscosity solves over the MAC grid, both driven by a shared
// preconditioned conjugate gradient core.
package solver

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Result reports the outcome of an iterative solve. Non-convergence is
// reported here, never raised; the frame stats carry it to the caller.
type Result struct {
	Success        bool
	PartialSuccess bool
	Iterations     int
	Error          float64
}

// pcgOperator applies the system matrix: out = A·x.
type pcgOperator func(x, out []float64)

// pcgPreconditioner applies an approximate inverse: out ≈ A⁻¹·r.
type pcgPreconditioner func(r, out []float64)

// solvePCG runs preconditioned conjugate gradient on A·x = b, writing the
// solution into x (which also supplies the initial guess). Convergence is
// measured as the residual infinity norm relative to b's.
func solvePCG(
	applyA pcgOperator, precond pcgPreconditioner,
	b, x []float64, maxIterations int, tolerance, acceptableTolerance float64,
) Result {
	n := len(b)
	if n == 0 {
		return Result{Success: true}
	}

	bNorm := floats.Norm(b, math.Inf(1))
	if bNorm == 0 {
		for i := range x {
			x[i] = 0
		}
		return Result{Success: true}
	}

	residual := make([]float64, n)
	aux := make([]float64, n)
	search := make([]float64, n)
	tmp := make([]float64, n)

	applyA(x, tmp)
	copy(residual, b)
	floats.AddScaled(residual, -1, tmp)

	precond(residual, aux)
	copy(search, aux)

	sigma := floats.Dot(aux, residual)
	err := floats.Norm(residual, math.Inf(1)) / bNorm
	if err < tolerance {
		return Result{Success: true, Error: err}
	}

	for iter := 1; iter <= maxIterations; iter++ {
		applyA(search, tmp)
		denom := floats.Dot(search, tmp)
		if denom == 0 || sigma == 0 {
			return Result{
				Success:        err < tolerance,
				PartialSuccess: err < acceptableTolerance,
				Iterations:     iter,
				Error:          err,
			}
		}
		alpha := sigma / denom

		floats.AddScaled(x, alpha, search)
		floats.AddScaled(residual, -alpha, tmp)

		err = floats.Norm(residual, math.Inf(1)) / bNorm
		if err < tolerance {
			return Result{Success: true, Iterations: iter, Error: err}
		}

		precond(residual, aux)
		sigmaNew := floats.Dot(aux, residual)
		beta := sigmaNew / sigma
		sigma = sigmaNew

		// search = aux + beta*search
		for i := range search {
			search[i] = aux[i] + beta*search[i]
		}
	}

	return Result{
		PartialSuccess: err < acceptableTolerance,
		Iterations:     maxIterations,
		Error:          err,
	}
}
