// Package sim implements the simulator façade and the per-frame
// substepped pipeline that coordinates the grid, particle, solver,
// scene, whitewater, and output subsystems.
package sim

import "errors"

// Error kinds surfaced by the simulator. Setter validation failures wrap
// ErrDomain; they mutate no state. Solver non-convergence is reported in
// FrameStats, never as an error.
var (
	ErrDomain         = errors.New("sim: domain error")
	ErrOutOfRange     = errors.New("sim: index out of range")
	ErrDuplicate      = errors.New("sim: object already registered")
	ErrNotInitialized = errors.New("sim: simulator not initialized")
)
