package exprmat

import (
	"fmt"
)

// Factor is a categorical experimental variable with an explicit
// reference level. The reference level absorbs into the intercept of the
// design matrix; remaining levels get indicator columns.
type Factor struct {
	Name      string
	Levels    []string
	Reference string
}

// SampleDesign assigns factor levels to samples. Row order must match the
// count matrix column order exactly; AlignWith enforces this before any
// fitting takes place.
type SampleDesign struct {
	samples []string
	factors []Factor
	levels  map[string][]string // factor name -> per-sample level
}

// NewSampleDesign constructs a sample design. assignments maps each factor
// name to a per-sample level slice aligned with samples.
func NewSampleDesign(samples []string, factors []Factor, assignments map[string][]string) (*SampleDesign, error) {
	levels := make(map[string][]string, len(factors))

	for _, f := range factors {
		assign, ok := assignments[f.Name]
		if !ok {
			return nil, fmt.Errorf("factor %q: no level assignments", f.Name)
		}
		if len(assign) != len(samples) {
			return nil, fmt.Errorf("factor %q: %d assignments for %d samples", f.Name, len(assign), len(samples))
		}

		known := make(map[string]bool, len(f.Levels))
		for _, l := range f.Levels {
			known[l] = true
		}
		if !known[f.Reference] {
			return nil, fmt.Errorf("factor %q: reference level %q is not a declared level", f.Name, f.Reference)
		}
		for i, l := range assign {
			if !known[l] {
				return nil, fmt.Errorf("factor %q sample %q: unknown level %q", f.Name, samples[i], l)
			}
		}

		levels[f.Name] = assign
	}

	return &SampleDesign{
		samples: samples,
		factors: factors,
		levels:  levels,
	}, nil
}

// Samples returns the sample identifiers in design row order.
func (d *SampleDesign) Samples() []string { return d.samples }

// Factors returns the declared factors in order.
func (d *SampleDesign) Factors() []Factor { return d.factors }

// Level returns the level of factor f for the sample at row i.
func (d *SampleDesign) Level(f string, i int) string { return d.levels[f][i] }

// WithReference returns a copy of the design with the reference level of
// one factor replaced. Used for contrast sign-flip checks.
func (d *SampleDesign) WithReference(factor, reference string) (*SampleDesign, error) {
	factors := make([]Factor, len(d.factors))
	copy(factors, d.factors)

	found := false
	for i := range factors {
		if factors[i].Name == factor {
			factors[i].Reference = reference
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("unknown factor %q", factor)
	}

	return NewSampleDesign(d.samples, factors, d.levels)
}

// AlignWith verifies that design rows match the count matrix columns in
// identity and order. Any mismatch is fatal: size factors and fits would
// silently attach to the wrong samples otherwise.
func (d *SampleDesign) AlignWith(m *CountMatrix) error {
	if len(d.samples) != m.NSamples() {
		return &DataAlignmentError{
			Index:        -1,
			MatrixSample: fmt.Sprintf("%d columns", m.NSamples()),
			DesignSample: fmt.Sprintf("%d rows", len(d.samples)),
		}
	}
	for i, s := range m.Samples() {
		if d.samples[i] != s {
			return &DataAlignmentError{Index: i, MatrixSample: s, DesignSample: d.samples[i]}
		}
	}
	return nil
}
