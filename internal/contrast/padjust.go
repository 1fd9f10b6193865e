package contrast

import "sort"

// AdjustBH returns Benjamini-Hochberg adjusted p-values in the input
// order. Adjusted values are monotone in the raw values and never below
// them.
func AdjustBH(ps []float64) []float64 {
	n := len(ps)
	if n == 0 {
		return nil
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return ps[order[a]] < ps[order[b]] })

	adj := make([]float64, n)
	cummin := 1.0
	for k := n - 1; k >= 0; k-- {
		i := order[k]
		v := ps[i] * float64(n) / float64(k+1)
		if v < cummin {
			cummin = v
		}
		adj[i] = cummin
	}
	return adj
}
