package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

type queue[T any] []T

func (q *queue[T]) Len() int { return len(*q) }

func (q *queue[T]) Pop() T {
	old := *q
	x := old[0]
	*q = old[1:]
	return x
}

func (q *queue[T]) Push(t T) {
	*q = append(*q, t)
}

type workRequest struct {
	name string
	fn   Work[any]
	c    chan Result[any]
	ctx  context.Context
}

type worker struct {
	done chan any
	wg   *sync.WaitGroup
}

func (w worker) Work(r workRequest) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			zap.S().Named("scheduler").Errorw("job panicked", "job", r.name, "panic", rec)
			r.c <- Result[any]{Err: fmt.Errorf("job %s panicked: %v", r.name, rec)}
		}
		w.done <- struct{}{}
		w.wg.Done()
	}()

	zap.S().Named("scheduler").Debugw("job started", "job", r.name)
	v, err := r.fn(r.ctx)
	zap.S().Named("scheduler").Debugw("job finished", "job", r.name, "duration", time.Since(start), "error", err)
	r.c <- Result[any]{Data: v, Err: err}
}

func newWorker(done chan any, wg *sync.WaitGroup) worker {
	return worker{done: done, wg: wg}
}

// Scheduler runs named jobs on a fixed pool of workers. The harness uses it to
// keep producers writing while the control client drives the agent.
type Scheduler struct {
	workers    *queue[worker]
	workQueue  *queue[workRequest]
	close      chan any
	done       chan any
	stopped    chan struct{}
	work       chan workRequest
	mainCtx    context.Context
	mainCancel context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
}

func NewScheduler(nbWorkers int) *Scheduler {
	if nbWorkers < 1 {
		nbWorkers = 1
	}
	done := make(chan any, nbWorkers)
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		workers:    &queue[worker]{},
		workQueue:  &queue[workRequest]{},
		close:      make(chan any),
		done:       done,
		stopped:    make(chan struct{}),
		work:       make(chan workRequest),
		mainCtx:    ctx,
		mainCancel: cancel,
	}
	for range nbWorkers {
		s.workers.Push(newWorker(done, &s.wg))
	}
	go s.run()
	return s
}

// AddWork queues fn under name and returns its future immediately.
func (s *Scheduler) AddWork(name string, w Work[any]) *Future[Result[any]] {
	c := make(chan Result[any], 1)
	ctx, cancel := context.WithCancel(s.mainCtx)

	select {
	case <-s.mainCtx.Done():
		// closing: the job never runs
		c <- Result[any]{Err: context.Canceled}
	case s.work <- workRequest{name: name, fn: w, c: c, ctx: ctx}:
	}

	return NewFuture(name, c, cancel)
}

// Close cancels every job and waits for in-flight ones to return.
func (s *Scheduler) Close() {
	s.once.Do(func() {
		s.mainCancel()
		s.close <- struct{}{}
		<-s.stopped
	})
}

func (s *Scheduler) run() {
	defer close(s.stopped)
	for {
		select {
		case w := <-s.work:
			s.workQueue.Push(w)
			s.dispatch()
		case <-s.done:
			s.workers.Push(newWorker(s.done, &s.wg))
			s.dispatch()
		case <-s.close:
			s.drain()
			s.wg.Wait()
			return
		}
	}
}

// dispatch pairs idle workers with queued jobs until one side runs out.
func (s *Scheduler) dispatch() {
	for s.workers.Len() > 0 && s.workQueue.Len() > 0 {
		r := s.workQueue.Pop()
		worker := s.workers.Pop()
		s.wg.Add(1)
		go worker.Work(r)
	}
}

// drain fails jobs that never got a worker so their futures still resolve.
func (s *Scheduler) drain() {
	for s.workQueue.Len() > 0 {
		r := s.workQueue.Pop()
		r.c <- Result[any]{Err: context.Canceled}
	}
}
