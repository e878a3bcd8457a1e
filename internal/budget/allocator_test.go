package budget

import (
	"math"
	"testing"
)

func TestCalculateBounds(t *testing.T) {
	a := NewAllocator()

	tests := []struct {
		name       string
		complexity float64
		want       int
	}{
		{name: "zero complexity", complexity: 0.0, want: MinIterations},
		{name: "full complexity", complexity: 1.0, want: MaxIterations},
		{name: "below range clamps to min", complexity: -0.5, want: MinIterations},
		{name: "above range clamps to max", complexity: 1.5, want: MaxIterations},
		{name: "NaN treated as zero", complexity: math.NaN(), want: MinIterations},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.Calculate(tt.complexity); got != tt.want {
				t.Errorf("Calculate(%v) = %d, want %d", tt.complexity, got, tt.want)
			}
		})
	}
}

func TestCalculateAlwaysInRange(t *testing.T) {
	a := NewAllocator()
	for c := 0.0; c <= 1.0; c += 0.01 {
		got := a.Calculate(c)
		if got < MinIterations || got > MaxIterations {
			t.Fatalf("Calculate(%v) = %d, outside [%d,%d]", c, got, MinIterations, MaxIterations)
		}
	}
}

func TestCalculateMonotonic(t *testing.T) {
	a := NewAllocator()
	prev := a.Calculate(0)
	for c := 0.0; c <= 1.0; c += 0.005 {
		got := a.Calculate(c)
		if got < prev {
			t.Fatalf("Calculate(%v) = %d decreased from %d", c, got, prev)
		}
		prev = got
	}
}

func TestAllocate(t *testing.T) {
	a := NewAllocator()
	b := a.Allocate(0.5)
	if b.Complexity != 0.5 {
		t.Errorf("Allocate(0.5).Complexity = %v, want 0.5", b.Complexity)
	}
	if b.Allocated != a.Calculate(0.5) {
		t.Errorf("Allocate(0.5).Allocated = %d, want %d", b.Allocated, a.Calculate(0.5))
	}
}

func TestCustomBounds(t *testing.T) {
	a := NewAllocatorWithBounds(5, 20)
	if got := a.Calculate(0); got != 5 {
		t.Errorf("Calculate(0) = %d, want 5", got)
	}
	if got := a.Calculate(1); got != 20 {
		t.Errorf("Calculate(1) = %d, want 20", got)
	}

	// Invalid bounds fall back to defaults
	bad := NewAllocatorWithBounds(10, 2)
	if got := bad.Calculate(1); got != MaxIterations {
		t.Errorf("Calculate(1) with invalid bounds = %d, want %d", got, MaxIterations)
	}
}
