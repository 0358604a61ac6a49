// Package parallel runs host-side compute work on a fixed set of
// goroutines.
package parallel

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool executes threadgroups of a host dispatch on a fixed set of
// goroutines.
//
// Each worker owns a queue and steals from the other queues when its own
// is empty, which balances dispatches whose groups take uneven time.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers int

	// workQueues holds per-worker queues of chunks.
	workQueues []chan func()

	done chan struct{}
	wg   sync.WaitGroup

	running atomic.Bool
}

// NewWorkerPool creates a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	queueSize := workers * 4
	if queueSize < 8 {
		queueSize = 8
	}

	p := &WorkerPool{
		workers:    workers,
		workQueues: make([]chan func(), workers),
		done:       make(chan struct{}),
	}
	for i := range workers {
		p.workQueues[i] = make(chan func(), queueSize)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	myQueue := p.workQueues[id]
	for {
		select {
		case <-p.done:
			p.drainQueue(myQueue)
			return
		case work := <-myQueue:
			work()
		default:
			if stolen := p.steal(id); stolen != nil {
				stolen()
				continue
			}
			select {
			case <-p.done:
				p.drainQueue(myQueue)
				return
			case work := <-myQueue:
				work()
			}
		}
	}
}

func (p *WorkerPool) drainQueue(queue chan func()) {
	for {
		select {
		case work := <-queue:
			work()
		default:
			return
		}
	}
}

// steal takes one chunk from another worker's queue, or returns nil.
func (p *WorkerPool) steal(myID int) func() {
	for i := range p.workers {
		if i == myID {
			continue
		}
		select {
		case work := <-p.workQueues[i]:
			return work
		default:
		}
	}
	return nil
}

// Job tracks one submitted dispatch.
type Job struct {
	wg      sync.WaitGroup
	errOnce sync.Once
	err     error
}

// Wait blocks until every group of the job has run. It returns the first
// panic raised by a group, converted to an error.
func (j *Job) Wait() error {
	j.wg.Wait()
	return j.err
}

func (j *Job) fail(group uint32, r any) {
	j.errOnce.Do(func() {
		j.err = fmt.Errorf("parallel: group %d panicked: %v", group, r)
	})
}

// Dispatch runs fn once for every group in [0, groups) and returns
// without waiting. Groups are split into contiguous chunks, a few per
// worker. A panicking group is recovered and reported by Job.Wait; the
// remaining groups still run.
//
// Dispatch on a closed pool runs the groups on the calling goroutine.
func (p *WorkerPool) Dispatch(groups uint32, fn func(group uint32)) *Job {
	job := &Job{}
	if groups == 0 {
		return job
	}

	run := func(r groupRange) {
		defer job.wg.Done()
		for g := r.lo; g < r.hi; g++ {
			runGroup(job, uint32(g), fn)
		}
	}

	for i, r := range splitGroups(groups, p.workers) {
		job.wg.Add(1)
		if !p.running.Load() {
			run(r)
			continue
		}
		select {
		case p.workQueues[i%p.workers] <- func() { run(r) }:
		case <-p.done:
			run(r)
		}
	}
	return job
}

// groupRange is the half-open group interval [lo, hi).
type groupRange struct{ lo, hi uint64 }

// splitGroups divides [0, groups) into at most workers*4 contiguous ranges
// of near-equal size. Bounds are 64-bit so the last range may end at
// 1<<32.
func splitGroups(groups uint32, workers int) []groupRange {
	total := uint64(groups)
	if total == 0 {
		return nil
	}
	chunks := min(uint64(max(workers, 1))*4, total)
	per := total / chunks
	if total%chunks != 0 {
		per++
	}
	ranges := make([]groupRange, 0, chunks)
	for lo := uint64(0); lo < total; lo += per {
		ranges = append(ranges, groupRange{lo: lo, hi: min(lo+per, total)})
	}
	return ranges
}

func runGroup(job *Job, g uint32, fn func(uint32)) {
	defer func() {
		if r := recover(); r != nil {
			job.fail(g, r)
		}
	}()
	fn(g)
}

// Close stops the workers after queued work has run.
// Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning reports whether the pool accepts work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}
