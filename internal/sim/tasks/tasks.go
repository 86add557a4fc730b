// Package tasks runs resumable jobs on the world loop within a per-tick time
// budget. Each job body runs on its own goroutine, but the queue hands
// control back and forth so only one side executes at a time.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrCancelled         = errors.New("job cancelled")
	ErrTargetInvalidated = errors.New("job target no longer exists")
)

type State int

const (
	Pending State = iota
	Running
	Suspended
	Completed
	Cancelled
	Faulted
)

func (s State) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Running:
		return "RUNNING"
	case Suspended:
		return "SUSPENDED"
	case Completed:
		return "COMPLETED"
	case Cancelled:
		return "CANCELLED"
	case Faulted:
		return "FAULTED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) Terminal() bool { return s >= Completed }

// Work is a job body. It must return the error Checkpoint or Suspend gives it.
type Work func(y *Yield) error

type resumeMsg struct {
	deadline time.Time
	abort    error
}

type signal struct {
	done bool
	err  error
}

type Job struct {
	ID   string
	Name string

	work  Work
	guard func() error

	ctx    context.Context
	cancel context.CancelFunc

	state       State
	err         error
	started     bool
	suspensions int
	enqueuedAt  time.Time
	finishedAt  time.Time

	in   chan resumeMsg
	out  chan signal
	done chan struct{}

	onDone []func(*Job)
}

func NewJob(ctx context.Context, name string, work Work) *Job {
	if ctx == nil {
		ctx = context.Background()
	}
	jctx, cancel := context.WithCancel(ctx)
	return &Job{
		ID:     uuid.NewString(),
		Name:   name,
		work:   work,
		ctx:    jctx,
		cancel: cancel,
		in:     make(chan resumeMsg),
		out:    make(chan signal),
		done:   make(chan struct{}),
	}
}

// WithGuard sets a check run before every resume. A non-nil error aborts the
// job with that error instead of resuming it.
func (j *Job) WithGuard(g func() error) *Job {
	j.guard = g
	return j
}

// OnDone registers a callback run on the queue's goroutine when the job ends.
func (j *Job) OnDone(fn func(*Job)) *Job {
	j.onDone = append(j.onDone, fn)
	return j
}

func (j *Job) State() State { return j.state }
func (j *Job) Err() error { return j.err }
func (j *Job) Done() <-chan struct{} { return j.done }
func (j *Job) Suspensions() int { return j.suspensions }
func (j *Job) Context() context.Context { return j.ctx }
func (j *Job) Elapsed() time.Duration { return j.finishedAt.Sub(j.enqueuedAt) }
func (j *Job) String() string { return j.Name + "#" + j.ID }

func (j *Job) run(y *Yield) {
	msg := <-j.in
	err := msg.abort
	if err == nil {
		y.deadline = msg.deadline
		err = j.safeRun(y)
	}
	j.out <- signal{done: true, err: err}
}

func (j *Job) safeRun(y *Yield) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v\n%s", j.Name, r, debug.Stack())
		}
	}()
	return j.work(y)
}

// Yield is the job-side handle for cooperative suspension.
type Yield struct {
	job      *Job
	now      func() time.Time
	every    int
	calls    int
	deadline time.Time
}

func (y *Yield) Context() context.Context { return y.job.ctx }

// Checkpoint checks the clock every few calls and suspends once the tick
// budget is spent. It returns ErrCancelled after Cancel.
func (y *Yield) Checkpoint() error {
	y.calls++
	if y.calls < y.every {
		return nil
	}
	y.calls = 0
	if y.job.ctx.Err() != nil {
		return ErrCancelled
	}
	if !y.now().Before(y.deadline) {
		return y.Suspend()
	}
	return nil
}

// Suspend returns control to the queue until the next tick.
func (y *Yield) Suspend() error {
	y.job.out <- signal{}
	msg := <-y.job.in
	if msg.abort != nil {
		return msg.abort
	}
	y.deadline = msg.deadline
	y.calls = 0
	return nil
}

type Options struct {
	// CheckEvery is how many Checkpoint calls pass between clock reads.
	CheckEvery int
	Now        func() time.Time
	Logger     *zap.Logger
}

// Stats describes one Process call.
type Stats struct {
	Resumed   int
	Finished  int
	Suspended bool
	Elapsed   time.Duration
}

// Queue is a strict FIFO. The head job runs until it finishes or suspends;
// a suspended head keeps its place and resumes on the next Process call.
type Queue struct {
	jobs       []*Job
	byID       map[string]*Job
	checkEvery int
	now        func() time.Time
	log        *zap.Logger
}

func NewQueue(opts Options) *Queue {
	if opts.CheckEvery <= 0 {
		opts.CheckEvery = 64
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Queue{
		byID:       map[string]*Job{},
		checkEvery: opts.CheckEvery,
		now:        opts.Now,
		log:        opts.Logger,
	}
}

func (q *Queue) Enqueue(j *Job) {
	j.state = Pending
	j.enqueuedAt = q.now()
	q.jobs = append(q.jobs, j)
	q.byID[j.ID] = j
	q.log.Debug("job enqueued", zap.String("job", j.Name), zap.String("id", j.ID), zap.Int("queued", len(q.jobs)))
}

func (q *Queue) Len() int { return len(q.jobs) }

func (q *Queue) Get(id string) (*Job, bool) {
	j, ok := q.byID[id]
	return j, ok
}

// Pending lists queued jobs in run order.
func (q *Queue) Pending() []*Job {
	return append([]*Job(nil), q.jobs...)
}

// Cancel stops a job. A job that never started ends at once; a suspended
// job observes ErrCancelled when next resumed.
func (q *Queue) Cancel(id string) bool {
	j, ok := q.byID[id]
	if !ok {
		return false
	}
	j.cancel()
	if !j.started {
		q.finish(j, ErrCancelled)
	}
	return true
}

// Process runs queued work until the budget is spent or the head suspends.
func (q *Queue) Process(budget time.Duration) Stats {
	start := q.now()
	deadline := start.Add(budget)
	var st Stats
	for len(q.jobs) > 0 && q.now().Before(deadline) {
		j := q.jobs[0]
		st.Resumed++
		if q.resume(j, deadline) {
			st.Finished++
			continue
		}
		st.Suspended = true
		break
	}
	st.Elapsed = q.now().Sub(start)
	return st
}

func (q *Queue) resume(j *Job, deadline time.Time) bool {
	var abort error
	if j.ctx.Err() != nil {
		abort = ErrCancelled
	} else if j.guard != nil {
		if err := j.guard(); err != nil {
			abort = err
		}
	}

	if !j.started {
		if abort != nil {
			q.finish(j, abort)
			return true
		}
		j.started = true
		go j.run(&Yield{job: j, now: q.now, every: q.checkEvery})
	}

	j.state = Running
	j.in <- resumeMsg{deadline: deadline, abort: abort}
	sig := <-j.out
	if sig.done {
		q.finish(j, sig.err)
		return true
	}
	j.state = Suspended
	j.suspensions++
	return false
}

func (q *Queue) finish(j *Job, err error) {
	j.err = err
	switch {
	case err == nil:
		j.state = Completed
	case errors.Is(err, ErrCancelled), errors.Is(err, ErrTargetInvalidated):
		j.state = Cancelled
	default:
		j.state = Faulted
	}
	j.finishedAt = q.now()
	j.cancel()

	for i, qj := range q.jobs {
		if qj == j {
			q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
			break
		}
	}
	delete(q.byID, j.ID)
	close(j.done)

	fields := []zap.Field{
		zap.String("job", j.Name),
		zap.String("id", j.ID),
		zap.Stringer("state", j.state),
		zap.Int("suspensions", j.suspensions),
	}
	if j.state == Faulted {
		q.log.Warn("job faulted", append(fields, zap.Error(err))...)
	} else {
		q.log.Debug("job finished", fields...)
	}
	for _, fn := range j.onDone {
		fn(j)
	}
}

// Close aborts every queued job, letting suspended job goroutines exit.
func (q *Queue) Close() {
	for len(q.jobs) > 0 {
		j := q.jobs[0]
		j.cancel()
		if !j.started {
			q.finish(j, ErrCancelled)
			continue
		}
		j.in <- resumeMsg{abort: ErrCancelled}
		sig := <-j.out
		for !sig.done {
			j.in <- resumeMsg{abort: ErrCancelled}
			sig = <-j.out
		}
		q.finish(j, sig.err)
	}
}
