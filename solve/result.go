package solve

import "fmt"

// Result is the immutable outcome of one solve call: the normalized status,
// the objective value and the solution vector aligned to variable indices.
// Objective and solution are NaN-filled when the solver provided none.
type Result struct {
	Status    Status
	Objective float64
	X         []float64
}

func (r *Result) String() string {
	if r.Status != StatusOptimal {
		return fmt.Sprintf("status=%s", r.Status)
	}
	return fmt.Sprintf("status=%s objective=%g", r.Status, r.Objective)
}
