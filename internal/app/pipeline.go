package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/shuttlescope/internal/analysis"
	"github.com/ayusman/shuttlescope/internal/calibration"
	"github.com/ayusman/shuttlescope/internal/capture"
	"github.com/ayusman/shuttlescope/internal/detector"
	"github.com/ayusman/shuttlescope/internal/match"
	"github.com/ayusman/shuttlescope/internal/metrics"
	"github.com/ayusman/shuttlescope/internal/monitoring"
	"github.com/ayusman/shuttlescope/internal/progress"
	"github.com/ayusman/shuttlescope/internal/segment"
	"github.com/ayusman/shuttlescope/internal/tracker"
)

// Pipeline defaults.
const (
	// DefaultWorkers is the number of parallel extraction workers.
	DefaultWorkers = 4
	// DefaultMaxCorruptRun is the number of consecutive undecodable frames
	// after which the source is considered broken.
	DefaultMaxCorruptRun = 30
	// DefaultProgressEvery is the number of frames between progress events.
	DefaultProgressEvery = 30
	// queueDepth is the per-worker channel capacity.
	queueDepth = 2
)

// Progress stages.
const (
	StageOpening    = "opening video"
	StageTracking   = "tracking shuttlecock"
	StageFinalizing = "finalizing rallies"
	StageCompleted  = "completed"
	StageFailed     = "failed"
	StageCanceled   = "canceled"
)

// Progress percentages at stage boundaries.
const (
	percentOpening    = 2
	percentTracking   = 5
	percentFinalizing = 90
)

// ErrTooManyCorruptFrames fails a session whose source stops decoding.
var ErrTooManyCorruptFrames = errors.New("too many consecutive corrupt frames")

// Options tunes a pipeline run. Zero values select the defaults.
type Options struct {
	Workers       int
	MaxCorruptRun int
	ProgressEvery int
	// KeepTrajectories retains the trajectory of every finalized rally.
	KeepTrajectories bool
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.MaxCorruptRun <= 0 {
		o.MaxCorruptRun = DefaultMaxCorruptRun
	}
	if o.ProgressEvery <= 0 {
		o.ProgressEvery = DefaultProgressEvery
	}
	return o
}

// Trajectory is the tracked path of one finalized rally.
type Trajectory struct {
	RallyNumber int
	Points      []match.TrajectoryPoint
	Hits        []match.HitPoint
}

// Analysis is the output of a successful run.
type Analysis struct {
	Result       match.Result
	Metadata     capture.Metadata
	Trajectories []Trajectory
}

// Pipeline reconstructs the rallies of one video. A Pipeline serves a single
// session; its detector carries per-stream background state.
type Pipeline struct {
	cfg     calibration.Config
	det     detector.Detector
	sink    progress.Sink
	metrics *metrics.Metrics
	opts    Options
}

// NewPipeline creates a pipeline. A nil sink discards progress and nil
// metrics are replaced with a private set.
func NewPipeline(cfg calibration.Config, det detector.Detector, sink progress.Sink, m *metrics.Metrics, opts Options) *Pipeline {
	if sink == nil {
		sink = progress.Discard
	}
	if m == nil {
		m = metrics.New()
	}
	return &Pipeline{cfg: cfg, det: det, sink: sink, metrics: m, opts: opts.withDefaults()}
}

// job is a decoded frame on its way to an extraction worker.
type job struct {
	index   int
	frame   *capture.Frame
	fg      gocv.Mat
	corrupt bool
}

func (j *job) release() {
	if j.corrupt {
		return
	}
	j.fg.Close()
	j.frame.Close()
}

// extracted is the detection result of one frame.
type extracted struct {
	index   int
	dets    []match.Detection
	corrupt bool
}

// runState is owned by the consumer goroutine.
type runState struct {
	sessionID    string
	meta         capture.Metadata
	tracker      *tracker.Tracker
	machine      *segment.Machine
	builder      *analysis.Builder
	rallies      []match.Rally
	trajectories []Trajectory
	// corrupt holds corrupt frame indices not yet covered by a closed segment.
	corrupt      []int
	frames       int
	interpolated int
	discarded    int
	mistakes     int
}

// Run processes src to completion. It publishes non-terminal progress
// events; the caller reports the outcome with Finish. Run returns ctx.Err()
// when canceled.
func (p *Pipeline) Run(ctx context.Context, sessionID string, src capture.Source) (*Analysis, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}

	p.metrics.SessionsStarted.Add(1)
	p.metrics.ActiveSessions.Add(1)
	defer p.metrics.ActiveSessions.Add(-1)

	p.publish(sessionID, percentOpening, StageOpening, nil)
	if err := src.Open(); err != nil {
		return nil, fmt.Errorf("open video: %w", err)
	}
	defer src.Close()

	meta := src.Metadata()
	fps := meta.FPS
	if fps <= 0 {
		fps = capture.DefaultFPS
	}
	st := &runState{
		sessionID: sessionID,
		meta:      meta,
		tracker:   tracker.New(p.cfg.Tracker),
		machine:   segment.NewMachine(p.cfg.Segmentation),
		builder:   analysis.NewBuilder(p.cfg, fps),
		rallies:   []match.Rally{},
	}
	p.publish(sessionID, percentTracking, StageTracking, st)

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan job, p.opts.Workers*queueDepth)
	results := make(chan extracted, p.opts.Workers*queueDepth)

	g.Go(func() error {
		defer close(jobs)
		return p.read(gctx, src, jobs)
	})

	var workers sync.WaitGroup
	for i := 0; i < p.opts.Workers; i++ {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			return p.extract(gctx, jobs, results)
		})
	}
	go func() {
		workers.Wait()
		close(results)
	}()

	g.Go(func() error {
		return p.consume(gctx, results, st)
	})

	err := g.Wait()
	// Frames still queued when a stage stopped early.
	for j := range jobs {
		j.release()
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	p.publish(sessionID, percentFinalizing, StageFinalizing, st)
	if seg := st.machine.Flush(); seg != nil {
		p.finalize(st, seg)
	}

	monitoring.Logf("session %s: %d frames, %d rallies, %d discarded", sessionID, st.frames, len(st.rallies), st.discarded)
	return &Analysis{
		Result: match.Result{
			Rallies: st.rallies,
			Summary: match.Summarize(st.rallies, match.Counters{
				Discarded:    st.discarded,
				Frames:       st.frames,
				Interpolated: st.interpolated,
				FPS:          fps,
			}),
		},
		Metadata:     meta,
		Trajectories: st.trajectories,
	}, nil
}

// read decodes frames in stream order and feeds the background model, which
// must see every frame in sequence.
func (p *Pipeline) read(ctx context.Context, src capture.Source, jobs chan<- job) error {
	corruptRun := 0
	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		j := job{index: index}
		frame, err := src.ReadFrame()
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, capture.ErrCorruptFrame):
			j.corrupt = true
		case err != nil:
			return fmt.Errorf("read frame %d: %w", index, err)
		default:
			p.metrics.FramesRead.Add(1)
			fg, ferr := p.det.Foreground(&frame.Mat)
			if ferr != nil {
				monitoring.Logf("frame %d: background model: %v", index, ferr)
				fg.Close()
				frame.Close()
				j.corrupt = true
			} else {
				j.frame, j.fg = frame, fg
			}
		}

		if j.corrupt {
			corruptRun++
			if corruptRun > p.opts.MaxCorruptRun {
				return fmt.Errorf("frame %d: %w", index, ErrTooManyCorruptFrames)
			}
		} else {
			corruptRun = 0
		}

		select {
		case jobs <- j:
		case <-ctx.Done():
			j.release()
			return ctx.Err()
		}
	}
}

// extract runs detection on frames in any order.
func (p *Pipeline) extract(ctx context.Context, jobs <-chan job, out chan<- extracted) error {
	for j := range jobs {
		if err := ctx.Err(); err != nil {
			j.release()
			return err
		}

		r := extracted{index: j.index, corrupt: j.corrupt}
		if !j.corrupt {
			start := time.Now()
			dets, err := p.det.Extract(j.index, &j.frame.Mat, &j.fg)
			p.metrics.UpdateExtractLatency(time.Since(start))
			j.release()
			if err != nil {
				return fmt.Errorf("extract frame %d: %w", j.index, err)
			}
			r.dets = dets
		}

		select {
		case out <- r:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// consume restores frame order and drives the tracker and state machine.
func (p *Pipeline) consume(ctx context.Context, results <-chan extracted, st *runState) error {
	pending := make(map[int]extracted)
	next := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r, ok := <-results:
			if !ok {
				return nil
			}
			pending[r.index] = r
			for {
				cur, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				if err := p.step(st, cur); err != nil {
					return err
				}
				next++
				if next%p.opts.ProgressEvery == 0 {
					p.publish(st.sessionID, trackingPercent(next, st.meta.FrameCount), StageTracking, st)
				}
			}
		}
	}
}

func (p *Pipeline) step(st *runState, r extracted) error {
	if r.corrupt {
		st.corrupt = append(st.corrupt, r.index)
		p.metrics.CorruptFrames.Add(1)
	}
	p.metrics.Detections.Add(uint64(len(r.dets)))

	pt, err := st.tracker.Update(r.index, r.dets)
	if err != nil {
		return err
	}
	st.frames++
	p.metrics.FramesProcessed.Add(1)
	if pt.Interpolated {
		st.interpolated++
		p.metrics.InterpolatedFrames.Add(1)
	}

	if out := st.machine.Push(pt); out.Closed != nil {
		p.finalize(st, out.Closed)
	}
	return nil
}

// finalize turns a closed segment into a rally or discards it.
func (p *Pipeline) finalize(st *runState, seg *segment.Segment) {
	corrupt := st.takeCorrupt(seg.StartFrame, seg.EndFrame)

	if segment.Discard(p.cfg.Segmentation, seg) {
		st.discarded++
		p.metrics.RalliesDiscarded.Add(1)
		monitoring.Logf("session %s: discarded segment %d-%d (%d frames)", st.sessionID, seg.StartFrame, seg.EndFrame, seg.Frames())
		return
	}

	number := len(st.rallies) + 1
	rally, ok := st.builder.Build(number, seg)
	if !ok {
		st.discarded++
		p.metrics.RalliesDiscarded.Add(1)
		monitoring.Logf("session %s: discarded segment %d-%d with %d hits", st.sessionID, seg.StartFrame, seg.EndFrame, len(seg.Hits))
		return
	}
	if corrupt {
		rally.DataQuality = append(rally.DataQuality, match.FlagCorruptFrames)
	}

	st.rallies = append(st.rallies, rally)
	p.metrics.RalliesFound.Add(1)
	if rally.Mistake != nil {
		st.mistakes++
		p.metrics.MistakesDetected.Add(1)
	}
	if p.opts.KeepTrajectories {
		st.trajectories = append(st.trajectories, Trajectory{
			RallyNumber: number,
			Points:      append([]match.TrajectoryPoint(nil), seg.Points...),
			Hits:        append([]match.HitPoint(nil), seg.Hits...),
		})
	}
}

// takeCorrupt reports whether a corrupt frame falls in [start, end] and
// forgets every corrupt frame up to end.
func (st *runState) takeCorrupt(start, end int) bool {
	found := false
	keep := st.corrupt[:0]
	for _, idx := range st.corrupt {
		switch {
		case idx > end:
			keep = append(keep, idx)
		case idx >= start:
			found = true
		}
	}
	st.corrupt = keep
	return found
}

func trackingPercent(frames, total int) int {
	if total <= 0 {
		return percentTracking
	}
	pct := percentTracking + (percentFinalizing-percentTracking)*frames/total
	return min(pct, percentFinalizing)
}

func (p *Pipeline) publish(sessionID string, percent int, stage string, st *runState) {
	e := progress.Event{
		SessionID: sessionID,
		Status:    progress.StatusProcessing,
		Percent:   percent,
		Stage:     stage,
		Timestamp: time.Now(),
	}
	if st != nil {
		e.RalliesFound = len(st.rallies)
		e.MistakesDetected = st.mistakes
	}
	p.sink.Publish(e)
}

// Finish publishes the terminal event for a run outcome and returns it.
// A context cancellation reports canceled; any other error reports failed.
func (p *Pipeline) Finish(sessionID string, a *Analysis, err error) progress.Event {
	e := progress.Event{SessionID: sessionID, Timestamp: time.Now()}
	switch {
	case err == nil:
		e.Status = progress.StatusCompleted
		e.Stage = StageCompleted
		e.Percent = 100
		if a != nil {
			e.RalliesFound = len(a.Result.Rallies)
			e.MistakesDetected = a.Result.Summary.TotalMistakes
		}
		p.metrics.SessionsCompleted.Add(1)
	case errors.Is(err, context.Canceled):
		e.Status = progress.StatusCanceled
		e.Stage = StageCanceled
		p.metrics.SessionsCanceled.Add(1)
	default:
		e.Status = progress.StatusFailed
		e.Stage = StageFailed
		e.Error = err.Error()
		p.metrics.SessionsFailed.Add(1)
	}
	p.sink.Publish(e)
	return e
}
