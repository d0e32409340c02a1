// Package scheduler runs harness jobs on a fixed pool of workers and hands back
// futures for their results.
//
// A scenario needs at least two things in flight: the producer, whose open of
// the FIFO blocks until the log driver attaches a reader, and the control
// client, which is what makes the driver attach. The producer is therefore
// submitted as a job and the scenario waits on its future after stopping the
// session.
//
//	┌────────────┐  AddWork(name, fn)  ┌────────────┐  dispatch()  ┌──────────┐
//	│  harness   │ ──────────────────► │ work queue │ ───────────► │ worker N │
//	└────────────┘                     └────────────┘              └────┬─────┘
//	      ▲                                                             │
//	      │                 Future.Wait(ctx) / Future.C()               │
//	      └─────────────────────────────────────────────────────────────┘
//
// Each job gets a context derived from the scheduler's main context:
//
//   - future.Stop() cancels one job
//   - scheduler.Close() cancels every job, fails queued jobs with
//     context.Canceled and waits for running ones to return
//
// A panicking job is reported as an error on its future and the worker goes
// back to the pool.
//
// # Usage
//
//	sched := scheduler.NewScheduler(2)
//	defer sched.Close()
//
//	future := sched.AddWork("producer", func(ctx context.Context) (any, error) {
//	    return p.EmitAll(records)
//	})
//
//	result, err := future.Wait(ctx)
package scheduler
