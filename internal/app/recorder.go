package app

import (
	"log"
	"sync"

	"github.com/ayusman/shuttlescope/internal/progress"
	"github.com/ayusman/shuttlescope/internal/store"
)

// recorder persists the progress of one session from its own goroutine, so
// the frame loop never waits on the database. Only the newest pending event
// is kept; intermediate ones are superseded.
type recorder struct {
	sessions *store.SessionRepository

	mu      sync.Mutex
	pending *progress.Event
	latest  progress.Event
	stopped bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

func newRecorder(sessions *store.SessionRepository) *recorder {
	r := &recorder{
		sessions: sessions,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go r.loop()
	return r
}

// Publish queues e for writing. It never blocks.
func (r *recorder) Publish(e progress.Event) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.pending = &e
	r.latest = e
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *recorder) loop() {
	defer close(r.done)
	for {
		select {
		case <-r.wake:
			r.mu.Lock()
			e := r.pending
			r.pending = nil
			r.mu.Unlock()
			if e != nil {
				r.apply(*e)
			}
		case <-r.stop:
			return
		}
	}
}

// Finish stops the writer and stores the terminal event synchronously, after
// any write in flight. Queued events are dropped. Percent never goes below
// what was recorded before.
func (r *recorder) Finish(e progress.Event) {
	if !r.halt() {
		return
	}
	r.mu.Lock()
	if e.Percent < r.latest.Percent {
		e.Percent = r.latest.Percent
	}
	r.mu.Unlock()
	if e.Status == progress.StatusCompleted {
		e.Percent = 100
	}
	r.apply(e)
}

// Stop ends the writer without a final write. It is a no-op after Finish.
func (r *recorder) Stop() {
	r.halt()
}

// halt stops the loop and waits for it. It reports whether this call
// stopped it.
func (r *recorder) halt() bool {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return false
	}
	r.stopped = true
	r.pending = nil
	r.mu.Unlock()

	close(r.stop)
	<-r.done
	return true
}

func (r *recorder) apply(e progress.Event) {
	if err := r.sessions.Apply(e); err != nil {
		log.Printf("Session %s: failed to record progress: %v", e.SessionID, err)
	}
}
