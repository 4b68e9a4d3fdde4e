package game

import (
	"runtime"
	"sync"
)

// DefaultParallelThreshold is the body count below which passes run on the
// calling goroutine.
const DefaultParallelThreshold = 64

// RangeFunc processes indices [start, end). worker identifies the unit's
// private scratch slot: 0..NumWorkers()-1 for pool goroutines, NumWorkers()
// for the calling goroutine.
type RangeFunc func(worker, start, end int)

// WorkerPool is a fixed set of persistent goroutines executing fork-join
// passes over an index range.
type WorkerPool struct {
	numWorkers int
	threshold  int
	jobChan    chan rangeJob
	wg         sync.WaitGroup
	running    bool
	mu         sync.Mutex
}

// rangeJob represents one contiguous chunk of a pass
type rangeJob struct {
	fn         RangeFunc
	start, end int
	resultChan chan<- struct{}
}

// NewWorkerPool creates a pool with the specified number of workers.
// If numWorkers is 0, it defaults to NumCPU. threshold <= 0 uses
// DefaultParallelThreshold.
func NewWorkerPool(numWorkers, threshold int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	// Cap at reasonable maximum
	if numWorkers > 16 {
		numWorkers = 16
	}
	if threshold <= 0 {
		threshold = DefaultParallelThreshold
	}

	return &WorkerPool{
		numWorkers: numWorkers,
		threshold:  threshold,
		jobChan:    make(chan rangeJob, numWorkers*2),
	}
}

// Start launches the worker goroutines
func (p *WorkerPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	p.running = true
	p.wg.Add(p.numWorkers)
	for i := 0; i < p.numWorkers; i++ {
		go p.worker(i)
	}
}

// Stop stops the pool and waits for the workers to exit.
// ParallelFor keeps working afterwards, sequentially.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.jobChan)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	for job := range p.jobChan {
		job.fn(id, job.start, job.end)
		job.resultChan <- struct{}{}
	}
}

// ParallelFor runs fn over [0, n) split into contiguous chunks, one per
// worker, and returns when every chunk has finished. Small ranges, or a
// stopped pool, run on the caller as a single chunk.
//
// Calls to ParallelFor must not overlap: the worker ids passed to fn are
// only unique within one call.
func (p *WorkerPool) ParallelFor(n int, fn RangeFunc) {
	if n <= 0 {
		return
	}

	p.mu.Lock()
	if !p.running || n < p.threshold || p.numWorkers == 1 {
		p.mu.Unlock()
		fn(p.numWorkers, 0, n)
		return
	}
	// Held until the pass joins so Stop cannot close jobChan under us.
	defer p.mu.Unlock()

	chunkSize := (n + p.numWorkers - 1) / p.numWorkers
	resultChan := make(chan struct{}, p.numWorkers)
	numJobs := 0

	for start := 0; start < n; start += chunkSize {
		end := start + chunkSize
		if end > n {
			end = n
		}
		p.jobChan <- rangeJob{fn: fn, start: start, end: end, resultChan: resultChan}
		numJobs++
	}

	// Wait for all jobs to complete
	for i := 0; i < numJobs; i++ {
		<-resultChan
	}
}

// NumWorkers returns the number of pool goroutines
func (p *WorkerPool) NumWorkers() int {
	return p.numWorkers
}

// Threshold returns the sequential fallback threshold
func (p *WorkerPool) Threshold() int {
	return p.threshold
}

// IsRunning returns whether the pool is currently running
func (p *WorkerPool) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
