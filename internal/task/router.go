package task

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Router admits tasks for applications and hands them to workers.
//
// Every application is served by one lane goroutine that exclusively owns the
// app's pending slot and last record. All operations are requests to that
// goroutine, so admission and enqueueing happen as a single step and tasks
// only cross the boundary as copies.
type Router struct {
	lanes     map[string]*lane
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type enqueueReq struct {
	task  *Task
	reply chan bool
}

type lane struct {
	app      string
	admitc   chan chan bool
	enqueuec chan enqueueReq
	takec    chan chan *Task
	cancelc  chan chan *Task
	queuedc  chan chan *Task
	finishc  chan Task
	lastc    chan chan Task
}

// NewRouter starts one lane per app. Each lane's last record is seeded with a
// successful "nothing" task so the first real task is always admitted.
func NewRouter(apps []string) *Router {
	r := &Router{
		lanes: make(map[string]*lane, len(apps)),
		done:  make(chan struct{}),
	}
	for _, app := range apps {
		if _, ok := r.lanes[app]; ok {
			continue
		}
		l := &lane{
			app:      app,
			admitc:   make(chan chan bool),
			enqueuec: make(chan enqueueReq),
			takec:    make(chan chan *Task),
			cancelc:  make(chan chan *Task),
			queuedc:  make(chan chan *Task),
			finishc:  make(chan Task),
			lastc:    make(chan chan Task),
		}
		r.lanes[app] = l
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			l.run(r.done)
		}()
	}
	return r
}

// Apps returns the routed application names, sorted.
func (r *Router) Apps() []string {
	apps := make([]string, 0, len(r.lanes))
	for app := range r.lanes {
		apps = append(apps, app)
	}
	sort.Strings(apps)
	return apps
}

// Admit reports whether t would be accepted right now. It does not change
// any state; use Enqueue to admit and queue in one step.
func (r *Router) Admit(t *Task) bool {
	l, ok := r.lanes[t.AppName]
	if !ok {
		return false
	}
	reply := make(chan bool, 1)
	select {
	case l.admitc <- reply:
	case <-r.done:
		return false
	}
	return <-reply
}

// Enqueue admits t and places a copy of it in the app's pending slot. It
// returns false when the app already has an outstanding task.
func (r *Router) Enqueue(t *Task) bool {
	return r.Submit(t) == nil
}

// Submit is Enqueue with the reason for a refusal.
func (r *Router) Submit(t *Task) error {
	l, ok := r.lanes[t.AppName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownApp, t.AppName)
	}
	queued := *t
	queued.Pending()
	req := enqueueReq{task: &queued, reply: make(chan bool, 1)}
	select {
	case l.enqueuec <- req:
	case <-r.done:
		return ErrRouterClosed
	}
	if !<-req.reply {
		return ErrTaskRejected
	}
	return nil
}

// TakeNext blocks until a task is queued for app, records it as the app's
// last (pending) task and returns it. The returned task is owned by the caller.
// Once ctx is done TakeNext never returns a task: one handed over in the
// meantime goes back to the app's slot.
func (r *Router) TakeNext(ctx context.Context, app string) (*Task, error) {
	l, ok := r.lanes[app]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownApp, app)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	reply := make(chan *Task, 1)
	select {
	case l.takec <- reply:
	case <-r.done:
		return nil, ErrRouterClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case t := <-reply:
		if err := ctx.Err(); err != nil {
			reply <- t
			l.giveBack(reply, r.done)
			return nil, err
		}
		return t, nil
	case <-r.done:
		return nil, ErrRouterClosed
	case <-ctx.Done():
		l.giveBack(reply, r.done)
		return nil, ctx.Err()
	}
}

// giveBack withdraws a take request. A task already handed over through
// reply is put back in the slot.
func (l *lane) giveBack(reply chan *Task, done <-chan struct{}) {
	select {
	case l.cancelc <- reply:
	case <-done:
	}
}

// Queued returns copies of the tasks admitted but not yet taken, ordered by app.
func (r *Router) Queued() []Task {
	var out []Task
	for _, app := range r.Apps() {
		reply := make(chan *Task, 1)
		select {
		case r.lanes[app].queuedc <- reply:
		case <-r.done:
			return out
		}
		if t := <-reply; t != nil {
			out = append(out, *t)
		}
	}
	return out
}

// RecordFinished stores a finished task as the app's last record. Reporting a
// task that is still pending is a caller bug and panics.
func (r *Router) RecordFinished(t *Task) error {
	if t.Status == StatusPending {
		panic(fmt.Sprintf("task router: RecordFinished called with unfinished task %s", t))
	}
	l, ok := r.lanes[t.AppName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownApp, t.AppName)
	}
	select {
	case l.finishc <- *t:
		return nil
	case <-r.done:
		return ErrRouterClosed
	}
}

// Last returns a copy of the most recently taken or finished task for app.
func (r *Router) Last(app string) (Task, error) {
	l, ok := r.lanes[app]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrUnknownApp, app)
	}
	reply := make(chan Task, 1)
	select {
	case l.lastc <- reply:
	case <-r.done:
		return Task{}, ErrRouterClosed
	}
	return <-reply, nil
}

// Close stops every lane. Blocked TakeNext calls return ErrRouterClosed.
func (r *Router) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
	})
	r.wg.Wait()
}

func (l *lane) run(done <-chan struct{}) {
	var (
		last    = placeholder(l.app)
		before  Task
		queued  *Task
		waiters []chan *Task
	)
	for {
		if queued != nil && len(waiters) > 0 {
			w := waiters[0]
			waiters = waiters[1:]
			before, last = last, *queued
			w <- queued
			queued = nil
			log.Debug().Str("app", l.app).Str("task_id", last.ID).Str("command", string(last.Command)).Msg("task taken")
		}

		select {
		case <-done:
			return
		case reply := <-l.admitc:
			reply <- queued == nil && last.Status != StatusPending
		case req := <-l.enqueuec:
			ok := queued == nil && last.Status != StatusPending
			if ok {
				queued = req.task
			}
			req.reply <- ok
		case w := <-l.takec:
			waiters = append(waiters, w)
		case w := <-l.cancelc:
			if i := indexOf(waiters, w); i >= 0 {
				waiters = append(waiters[:i], waiters[i+1:]...)
				continue
			}
			// the task was handed over before the taker gave up: put it back
			select {
			case t := <-w:
				queued, last = t, before
			default:
			}
		case reply := <-l.queuedc:
			if queued == nil {
				reply <- nil
				continue
			}
			t := *queued
			reply <- &t
		case t := <-l.finishc:
			last = t
		case reply := <-l.lastc:
			reply <- last
		}
	}
}

func placeholder(app string) Task {
	now := time.Now()
	return Task{
		AppName: app,
		Command: CommandNothing,
		Status:  StatusSuccess,
		Start:   now,
		Finish:  &now,
	}
}

func indexOf(waiters []chan *Task, w chan *Task) int {
	for i, c := range waiters {
		if c == w {
			return i
		}
	}
	return -1
}
