// Package glm fits per-gene negative binomial generalized linear models
// with dispersion shrinkage across genes.
package glm

import (
	"fmt"

	"github.com/refstab/destat/internal/exprmat"
)

// DesignMatrix is the model matrix shared by every gene: one intercept
// column, one indicator column per non-reference factor level, and
// interaction columns formed as products of the main-effect indicators.
type DesignMatrix struct {
	Columns []string
	// X is n samples by p columns, row-major.
	X [][]float64
}

// NCols returns the number of model coefficients.
func (d *DesignMatrix) NCols() int { return len(d.Columns) }

// ColumnIndex returns the index of a named coefficient, or -1.
func (d *DesignMatrix) ColumnIndex(name string) int {
	for i, c := range d.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// BuildDesign constructs the design matrix from the declared factors.
// Factor levels other than the reference each contribute an indicator
// column named factor_level_vs_reference. When withInteractions is set,
// every pair of main-effect columns from distinct factors contributes a
// product column. The matrix is validated for full column rank.
func BuildDesign(sd *exprmat.SampleDesign, withInteractions bool) (*DesignMatrix, error) {
	samples := sd.Samples()
	n := len(samples)

	type mainCol struct {
		factor string
		name   string
		vals   []float64
	}
	var mains []mainCol

	for _, f := range sd.Factors() {
		for _, level := range f.Levels {
			if level == f.Reference {
				continue
			}
			vals := make([]float64, n)
			for i := 0; i < n; i++ {
				if sd.Level(f.Name, i) == level {
					vals[i] = 1
				}
			}
			mains = append(mains, mainCol{
				factor: f.Name,
				name:   fmt.Sprintf("%s_%s_vs_%s", f.Name, level, f.Reference),
				vals:   vals,
			})
		}
	}

	columns := []string{"Intercept"}
	x := make([][]float64, n)
	for i := range x {
		x[i] = []float64{1}
	}

	for _, mc := range mains {
		columns = append(columns, mc.name)
		for i := range x {
			x[i] = append(x[i], mc.vals[i])
		}
	}

	if withInteractions {
		for a := 0; a < len(mains); a++ {
			for b := a + 1; b < len(mains); b++ {
				if mains[a].factor == mains[b].factor {
					continue
				}
				columns = append(columns, mains[a].name+"."+mains[b].name)
				for i := range x {
					x[i] = append(x[i], mains[a].vals[i]*mains[b].vals[i])
				}
			}
		}
	}

	d := &DesignMatrix{Columns: columns, X: x}
	if err := d.validateRank(); err != nil {
		return nil, err
	}
	return d, nil
}

// validateRank rejects matrices whose columns are linearly dependent:
// X'X must admit a Cholesky factorization.
func (d *DesignMatrix) validateRank() error {
	p := d.NCols()
	if len(d.X) < p {
		return fmt.Errorf("design has %d samples for %d coefficients", len(d.X), p)
	}
	xtx := make([][]float64, p)
	for a := 0; a < p; a++ {
		xtx[a] = make([]float64, p)
		for b := 0; b < p; b++ {
			s := 0.0
			for i := range d.X {
				s += d.X[i][a] * d.X[i][b]
			}
			xtx[a][b] = s
		}
	}
	if _, ok := cholesky(xtx); !ok {
		return fmt.Errorf("design matrix is rank deficient; check factor level assignments")
	}
	return nil
}
