// Package budget maps task-complexity estimates to iteration budgets.
package budget

import "math"

// Default clamp bounds for iteration allocation.
const (
	MinIterations = 8
	MaxIterations = 50
)

// Budget pairs a complexity estimate with the iterations allocated for it.
type Budget struct {
	Complexity float64 // Normalized [0,1] estimate of task difficulty
	Allocated  int     // Iteration ceiling for the task execution
}

// Allocator converts complexity estimates into iteration budgets.
// The mapping is monotonically non-decreasing and clamped to [min, max].
type Allocator struct {
	min int
	max int
}

// NewAllocator returns an allocator with the default clamp bounds.
func NewAllocator() Allocator {
	return Allocator{min: MinIterations, max: MaxIterations}
}

// NewAllocatorWithBounds returns an allocator with custom clamp bounds.
// Invalid bounds (min < 1 or max < min) fall back to the defaults.
func NewAllocatorWithBounds(min, max int) Allocator {
	if min < 1 || max < min {
		return NewAllocator()
	}
	return Allocator{min: min, max: max}
}

// Calculate maps a complexity estimate to an iteration count.
// Complexity outside [0,1] is clamped; NaN is treated as zero.
func (a Allocator) Calculate(complexity float64) int {
	if math.IsNaN(complexity) || complexity < 0 {
		complexity = 0
	}
	if complexity > 1 {
		complexity = 1
	}

	allocated := a.min + int(math.Round(complexity*float64(a.max-a.min)))
	if allocated < a.min {
		allocated = a.min
	}
	if allocated > a.max {
		allocated = a.max
	}
	return allocated
}

// Allocate returns the full Budget record for a complexity estimate.
func (a Allocator) Allocate(complexity float64) Budget {
	return Budget{
		Complexity: complexity,
		Allocated:  a.Calculate(complexity),
	}
}
