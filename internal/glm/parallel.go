package glm

import (
	"runtime"
	"sync"
)

// geneJob identifies one gene's row in the fan-out.
type geneJob struct {
	Gene int
}

// geneOutcome pairs a gene index with its fit so results can be placed
// into their slot regardless of completion order.
type geneOutcome struct {
	Gene int
	Fit  *GLMFit
}

// parallelFit runs fn for every gene index on a pool of workers and
// assembles the results into a slice addressed by gene index. Workers
// share only immutable inputs; each output slot is written exactly once,
// so the result order is independent of completion order.
// If workers is 0, runtime.NumCPU() is used.
func parallelFit(nGenes, workers int, fn func(gene int) *GLMFit) []*GLMFit {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	jobs := make(chan geneJob, 2*workers)
	outcomes := make(chan geneOutcome, 2*workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			for job := range jobs {
				outcomes <- geneOutcome{Gene: job.Gene, Fit: fn(job.Gene)}
			}
		}()
	}

	go func() {
		for i := range nGenes {
			jobs <- geneJob{Gene: i}
		}
		close(jobs)
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	fits := make([]*GLMFit, nGenes)
	for o := range outcomes {
		fits[o.Gene] = o.Fit
	}
	return fits
}
