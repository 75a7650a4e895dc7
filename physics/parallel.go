package physics

import (
	"io"
	"log"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the fork-join width used when a config leaves it at zero
func DefaultWorkers() int {
	return runtime.GOMAXPROCS(0)
}

// batchCount is the number of batches of size batch covering n items
func batchCount(n, batch int) int {
	if n <= 0 {
		return 0
	}
	return (n + batch - 1) / batch
}

// forEachBatch splits [0,n) into batches and runs fn on each, at most workers at a time
// fn receives the batch number and its half-open range; batches must touch disjoint data
// Returns after every batch has finished
func forEachBatch(n, batch, workers int, fn func(b, lo, hi int)) {
	batches := batchCount(n, batch)
	if batches == 0 {
		return
	}
	if workers <= 1 || batches == 1 {
		for b := 0; b < batches; b++ {
			lo := b * batch
			fn(b, lo, min(lo+batch, n))
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for b := 0; b < batches; b++ {
		lo := b * batch
		hi := min(lo+batch, n)
		g.Go(func() error {
			fn(b, lo, hi)
			return nil
		})
	}
	_ = g.Wait()
}

func orDiscard(l *log.Logger) *log.Logger {
	if l == nil {
		return log.New(io.Discard, "", 0)
	}
	return l
}
