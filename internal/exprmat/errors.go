package exprmat

import "fmt"

// DataAlignmentError reports a sample order mismatch between the count
// matrix columns and the sample design rows. It aborts the pipeline
// before any fitting.
type DataAlignmentError struct {
	Index        int // -1 when the lengths differ
	MatrixSample string
	DesignSample string
}

func (e *DataAlignmentError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("sample design does not align with count matrix: matrix has %s, design has %s",
			e.MatrixSample, e.DesignSample)
	}
	return fmt.Sprintf("sample design does not align with count matrix at column %d: matrix %q vs design %q",
		e.Index, e.MatrixSample, e.DesignSample)
}
