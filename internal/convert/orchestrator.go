package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"oh-opus/internal/config"
	"oh-opus/internal/domain"
	"oh-opus/internal/encoder"
	"oh-opus/internal/jobs"
	"oh-opus/internal/tags"
)

// ErrAlreadyRunning is returned by Start while another run is active.
var ErrAlreadyRunning = jobs.ErrRunAlreadyActive

// TagCopier copies metadata from a source onto an encoded file.
type TagCopier interface {
	Copy(source, dest string) error
}

// Gainer writes ReplayGain information into an encoded file.
type Gainer interface {
	Apply(ctx context.Context, path string, mode domain.ReplayGainMode) error
}

// Deps builds the per-run collaborators from the captured settings.
type Deps struct {
	Encoder   func(settings domain.Settings) (encoder.Encoder, error)
	Tagger    func(settings domain.Settings) TagCopier
	Gainer    func(settings domain.Settings) Gainer
	ReadGenre GenreReader
}

// DefaultDeps wires the external encoders, tag copier and gain tools.
func DefaultDeps(logger *zap.Logger) Deps {
	return Deps{
		Encoder: func(s domain.Settings) (encoder.Encoder, error) {
			return encoder.New(s.Engine, encoder.Options{Binaries: s.Binaries, Logger: logger})
		},
		Tagger: func(s domain.Settings) TagCopier {
			return tags.NewCopier(s.CoverMaxSize, logger)
		},
		Gainer: func(s domain.Settings) Gainer {
			return encoder.NewGainer(s.Binaries, logger)
		},
		ReadGenre: tags.ReadGenre,
	}
}

// Orchestrator runs batch conversions one at a time.
type Orchestrator struct {
	deps    Deps
	manager *jobs.Manager
	logger  *zap.Logger
	newID   func() string

	mu      sync.Mutex
	current *Run
}

// New constructs an orchestrator. A nil manager gets a private one.
func New(deps Deps, manager *jobs.Manager, logger *zap.Logger) *Orchestrator {
	if manager == nil {
		manager = jobs.NewManager()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		deps:    deps,
		manager: manager,
		logger:  logger,
		newID:   uuid.NewString,
	}
}

// Manager exposes the run state machine.
func (o *Orchestrator) Manager() *jobs.Manager {
	return o.manager
}

// Current returns the active or most recent run, or nil.
func (o *Orchestrator) Current() *Run {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Start validates settings, begins a run in the background and returns its
// handle. Events must be drained from Run.Events until it is closed.
func (o *Orchestrator) Start(ctx context.Context, settings domain.Settings) (*Run, error) {
	settings = config.Normalize(settings)
	if err := config.Validate(settings); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	id := o.newID()
	if err := o.manager.Start(id); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &Run{
		id:       id,
		settings: settings,
		stream:   jobs.NewStream(id),
		gate:     newGate(),
		ctx:      runCtx,
		cancel:   cancel,
		started:  time.Now(),
		done:     make(chan struct{}),
		bitrate:  NewBitratePolicy(o.deps.ReadGenre),
		logger:   o.logger.With(zap.String("run_id", id)),
	}

	o.mu.Lock()
	o.current = r
	o.mu.Unlock()

	go o.run(r)
	return r, nil
}

// Pause halts dispatch of new jobs; in-flight encodes continue.
func (o *Orchestrator) Pause() error {
	r, err := o.active()
	if err != nil {
		return err
	}
	if err := o.manager.SetPaused(true); err != nil {
		return err
	}
	if r.gate.Pause() {
		r.log(jobs.LevelWarning, "", "Paused: running files will finish, no new files will start")
	}
	return nil
}

// Resume reopens dispatch after Pause.
func (o *Orchestrator) Resume() error {
	r, err := o.active()
	if err != nil {
		return err
	}
	if err := o.manager.SetPaused(false); err != nil {
		return err
	}
	if r.gate.Resume() {
		r.log(jobs.LevelInfo, "", "Resumed")
	}
	return nil
}

// Cancel stops dispatch and terminates in-flight encoder processes.
func (o *Orchestrator) Cancel() error {
	r, err := o.active()
	if err != nil {
		return err
	}
	if err := o.manager.RequestCancel(); err != nil {
		return err
	}
	if r.cancelRequested.CompareAndSwap(false, true) {
		r.log(jobs.LevelWarning, "", "Cancelling: stopping running encoders")
		r.cancel()
		if enc := r.encoder(); enc != nil {
			enc.Cancel()
		}
	}
	return nil
}

func (o *Orchestrator) active() (*Run, error) {
	o.mu.Lock()
	r := o.current
	o.mu.Unlock()
	if r == nil || !o.manager.IsRunning() {
		return nil, jobs.ErrNoActiveRun
	}
	return r, nil
}

// run performs discovery, dispatch and completion for one run.
func (o *Orchestrator) run(r *Run) {
	defer close(r.done)
	defer r.stream.Close()
	defer r.cancel()

	s := r.settings
	r.log(jobs.LevelInfo, "", fmt.Sprintf("Scanning %s", s.SourceFolder))

	found, err := Discover(s.SourceFolder, s.DestFolder)
	if err != nil {
		r.fatal(o.manager, err)
		return
	}
	r.setJobs(found)

	if len(found) == 0 {
		r.log(jobs.LevelWarning, "", fmt.Sprintf("No MP3 files found in %s", s.SourceFolder))
		r.finish(o.manager, domain.RunStatusCompleted)
		return
	}
	if r.ctx.Err() != nil {
		r.finish(o.manager, domain.RunStatusCancelled)
		return
	}

	enc, err := o.deps.Encoder(s)
	if err != nil {
		r.fatal(o.manager, err)
		return
	}
	if !enc.Available(r.ctx) {
		if r.ctx.Err() != nil {
			r.finish(o.manager, domain.RunStatusCancelled)
			return
		}
		r.fatal(o.manager, fmt.Errorf("%s encoder is not available; run diagnostics to locate it", enc.Name()))
		return
	}
	r.setEncoder(enc)
	if o.deps.Tagger != nil {
		r.tagger = o.deps.Tagger(s)
	}
	if o.deps.Gainer != nil && s.ReplayGainMode != domain.ReplayGainOff {
		r.gainer = o.deps.Gainer(s)
	}

	workers := min(s.MaxThreads, len(found))
	r.log(jobs.LevelInfo, "", fmt.Sprintf("Found %d files, converting with %s on %d workers", len(found), enc.Name(), workers))

	o.dispatch(r, found, workers)

	if r.ctx.Err() != nil {
		r.finish(o.manager, domain.RunStatusCancelled)
		return
	}
	r.finish(o.manager, domain.RunStatusCompleted)
}

// dispatch hands jobs to at most workers concurrent encodes in discovery order.
func (o *Orchestrator) dispatch(r *Run, found []*Job, workers int) {
	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup
	defer wg.Wait()

	for _, job := range found {
		if r.ctx.Err() != nil {
			return
		}
		if err := r.gate.Wait(r.ctx); err != nil {
			return
		}

		if ShouldSkip(job, r.settings.SkipExisting) {
			job.setStatus(domain.JobStatusSkipped)
			r.skipped.Add(1)
			r.log(jobs.LevelInfo, job.Rel, fmt.Sprintf("Skipped (exists): %s", job.Rel))
			r.progress(job.Rel, 0)
			continue
		}

		if !r.acquire(sem) {
			return
		}

		wg.Add(1)
		go func(job *Job) {
			defer wg.Done()
			defer sem.Release(1)
			r.process(job)
		}(job)
		r.progress("", 0)
	}
}

// Run is one batch conversion and its live state.
type Run struct {
	id       string
	settings domain.Settings
	stream   *jobs.Stream
	gate     *gate
	ctx      context.Context
	cancel   context.CancelFunc
	started  time.Time
	done     chan struct{}
	bitrate  *BitratePolicy
	tagger   TagCopier
	gainer   Gainer
	logger   *zap.Logger

	mu    sync.RWMutex
	jobs  []*Job
	enc   encoder.Encoder
	total atomic.Int64

	converted   atomic.Int64
	skipped     atomic.Int64
	errored     atomic.Int64
	inputBytes  atomic.Int64
	outputBytes atomic.Int64
	elapsed     atomic.Int64

	// inflight is the summed progress of processing jobs in parts per million.
	inflight        atomic.Int64
	processing      atomic.Int64
	peakProcessing  atomic.Int64
	cancelRequested atomic.Bool
}

// Counters is a consistent-enough view of the run tallies.
type Counters struct {
	Total       int           `json:"total"`
	Converted   int64         `json:"converted"`
	Skipped     int64         `json:"skipped"`
	Errors      int64         `json:"errors"`
	InputBytes  int64         `json:"inputBytes"`
	OutputBytes int64         `json:"outputBytes"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Snapshot is a point-in-time view of a run for UIs.
type Snapshot struct {
	ID              string          `json:"id"`
	Settings        domain.Settings `json:"settings"`
	Paused          bool            `json:"paused"`
	CancelRequested bool            `json:"cancelRequested"`
	Overall         float64         `json:"overall"`
	Counters        Counters        `json:"counters"`
	Jobs            []JobSnapshot   `json:"jobs"`
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.id }

// Events returns the run's event stream; it closes after the terminal event.
func (r *Run) Events() <-chan jobs.Event { return r.stream.Events() }

// Done is closed when the run has fully stopped.
func (r *Run) Done() <-chan struct{} { return r.done }

// Jobs returns the discovered jobs, empty until discovery finishes.
func (r *Run) Jobs() []*Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.jobs
}

// Counters returns the current tallies.
func (r *Run) Counters() Counters {
	return Counters{
		Total:       int(r.total.Load()),
		Converted:   r.converted.Load(),
		Skipped:     r.skipped.Load(),
		Errors:      r.errored.Load(),
		InputBytes:  r.inputBytes.Load(),
		OutputBytes: r.outputBytes.Load(),
		Elapsed:     r.sinceStart(),
	}
}

// sinceStart is the run duration, frozen once the run finishes.
func (r *Run) sinceStart() time.Duration {
	if d := r.elapsed.Load(); d > 0 {
		return time.Duration(d)
	}
	return time.Since(r.started)
}

// PeakConcurrency returns the highest number of simultaneously processing jobs.
func (r *Run) PeakConcurrency() int {
	return int(r.peakProcessing.Load())
}

// Snapshot copies the run state.
func (r *Run) Snapshot() Snapshot {
	found := r.Jobs()
	views := make([]JobSnapshot, 0, len(found))
	for _, job := range found {
		views = append(views, job.Snapshot())
	}
	return Snapshot{
		ID:              r.id,
		Settings:        r.settings,
		Paused:          r.gate.Paused(),
		CancelRequested: r.cancelRequested.Load(),
		Overall:         r.overall(),
		Counters:        r.Counters(),
		Jobs:            views,
	}
}

func (r *Run) setJobs(found []*Job) {
	r.mu.Lock()
	r.jobs = found
	r.mu.Unlock()
	r.total.Store(int64(len(found)))
}

func (r *Run) setEncoder(enc encoder.Encoder) {
	r.mu.Lock()
	r.enc = enc
	cancelled := r.cancelRequested.Load()
	r.mu.Unlock()
	if cancelled {
		enc.Cancel()
	}
}

func (r *Run) encoder() encoder.Encoder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enc
}

// acquire takes a worker slot, giving it back while the run is paused so
// a pause that lands during backpressure still holds the next job.
func (r *Run) acquire(sem *semaphore.Weighted) bool {
	for {
		if err := r.gate.Wait(r.ctx); err != nil {
			return false
		}
		if err := sem.Acquire(r.ctx, 1); err != nil {
			return false
		}
		if r.ctx.Err() != nil {
			sem.Release(1)
			return false
		}
		if !r.gate.Paused() {
			return true
		}
		sem.Release(1)
	}
}

// process encodes one job. It is the only writer of job state while it runs.
func (r *Run) process(job *Job) {
	s := r.settings
	job.setStatus(domain.JobStatusProcessing)
	active := r.processing.Add(1)
	for {
		peak := r.peakProcessing.Load()
		if active <= peak || r.peakProcessing.CompareAndSwap(peak, active) {
			break
		}
	}
	defer r.processing.Add(-1)

	r.log(jobs.LevelInfo, job.Rel, fmt.Sprintf("Converting: %s", job.Rel))

	if err := os.MkdirAll(filepath.Dir(job.Dest), 0o755); err != nil {
		r.failJob(job, fmt.Errorf("create output folder: %w", err))
		return
	}

	bitrate := r.bitrate.Effective(job.Source, s)
	job.bitrate.Store(int64(bitrate))
	if bitrate != s.Bitrate {
		r.log(jobs.LevelInfo, job.Rel, fmt.Sprintf("Genre boost: %s at %d kbps", job.Rel, bitrate))
	}

	sampler := newProgressSampler(100)
	var contributed int64
	onProgress := func(value float64) {
		job.setProgress(value)
		ppm := int64(value * 1e6)
		r.inflight.Add(ppm - contributed)
		contributed = ppm
		if sampler.ShouldEmit(value) {
			r.progress(job.Rel, value)
		}
	}

	err := r.encoder().Encode(r.ctx, encoder.Request{
		Source:      job.Source,
		Dest:        job.Dest,
		Bitrate:     bitrate,
		VBR:         s.VBR,
		Application: s.ApplicationMode,
		Complexity:  s.Complexity,
		FrameSize:   s.FrameSize,
	}, onProgress)
	r.inflight.Add(-contributed)

	if err != nil && r.ctx.Err() != nil {
		job.setStatus(domain.JobStatusCancelled)
		removePartial(job.Dest)
		r.log(jobs.LevelWarning, job.Rel, fmt.Sprintf("Cancelled: %s", job.Rel))
		return
	}
	if err != nil {
		r.failJob(job, err)
		return
	}

	if r.tagger != nil {
		if err := r.tagger.Copy(job.Source, job.Dest); err != nil {
			r.log(jobs.LevelWarning, job.Rel, fmt.Sprintf("Tags not copied for %s: %v", job.Rel, err))
		}
	}
	if r.gainer != nil {
		if err := r.gainer.Apply(r.ctx, job.Dest, s.ReplayGainMode); err != nil {
			r.log(jobs.LevelWarning, job.Rel, fmt.Sprintf("ReplayGain failed for %s: %v", job.Rel, err))
		}
	}

	if info, err := os.Stat(job.Source); err == nil {
		r.inputBytes.Add(info.Size())
	}
	if info, err := os.Stat(job.Dest); err == nil {
		r.outputBytes.Add(info.Size())
	}

	job.setProgress(1)
	job.setStatus(domain.JobStatusCompleted)
	r.converted.Add(1)
	r.log(jobs.LevelSuccess, job.Rel, fmt.Sprintf("Completed: %s", job.Rel))
	r.progress(job.Rel, 1)
}

func (r *Run) failJob(job *Job, err error) {
	job.fail(err.Error())
	removePartial(job.Dest)
	r.errored.Add(1)

	fields := []zap.Field{zap.String("file", job.Rel), zap.Error(err)}
	var encErr *encoder.EncodeError
	if errors.As(err, &encErr) && encErr.CommandLog.Stderr != "" {
		fields = append(fields, zap.String("stderr", encErr.CommandLog.Stderr))
	}
	r.logger.Debug("job failed", fields...)
	r.log(jobs.LevelError, job.Rel, fmt.Sprintf("Failed: %s: %v", job.Rel, err))
}

func (r *Run) overall() float64 {
	done := r.converted.Load() + r.skipped.Load() + r.errored.Load()
	return overallFraction(done, r.inflight.Load(), int(r.total.Load()))
}

func (r *Run) progress(file string, current float64) {
	r.stream.Emit(jobs.Event{
		Type:    jobs.EventTypeProgress,
		Overall: r.overall(),
		Current: current,
		File:    file,
	})
}

// log emits a log event and mirrors it into the structured logger.
func (r *Run) log(level jobs.Level, file, message string) {
	r.stream.Emit(jobs.Event{Type: jobs.EventTypeLog, Level: level, Message: message, File: file})

	fields := []zap.Field{zap.String("event_level", string(level))}
	if file != "" {
		fields = append(fields, zap.String("file", file))
	}
	switch level {
	case jobs.LevelError:
		r.logger.Error(message, fields...)
	case jobs.LevelWarning:
		r.logger.Warn(message, fields...)
	default:
		r.logger.Info(message, fields...)
	}
}

// fatal ends the run with an error event.
func (r *Run) fatal(manager *jobs.Manager, err error) {
	r.elapsed.Store(int64(time.Since(r.started)))
	r.logger.Error("run failed", zap.Error(err))
	_ = manager.Finish(domain.RunStatusFailed)
	r.stream.Emit(jobs.Event{Type: jobs.EventTypeError, Level: jobs.LevelError, Message: err.Error()})
}

// finish records the final status and emits the terminal event with tallies.
func (r *Run) finish(manager *jobs.Manager, status domain.RunStatus) {
	r.elapsed.Store(int64(time.Since(r.started)))
	c := r.Counters()
	r.logger.Info("run finished",
		zap.String("status", string(status)),
		zap.Int("total", c.Total),
		zap.Int64("converted", c.Converted),
		zap.Int64("skipped", c.Skipped),
		zap.Int64("errors", c.Errors),
		zap.Duration("elapsed", c.Elapsed),
	)
	_ = manager.Finish(status)

	eventType := jobs.EventTypeComplete
	message := fmt.Sprintf("Done: %d converted, %d skipped, %d errors", c.Converted, c.Skipped, c.Errors)
	if status == domain.RunStatusCancelled {
		eventType = jobs.EventTypeCancelled
		message = fmt.Sprintf("Cancelled: %d converted, %d skipped, %d errors", c.Converted, c.Skipped, c.Errors)
	}
	r.stream.Emit(jobs.Event{
		Type:        eventType,
		Message:     message,
		Overall:     r.overall(),
		Converted:   c.Converted,
		Skipped:     c.Skipped,
		Errors:      c.Errors,
		InputBytes:  c.InputBytes,
		OutputBytes: c.OutputBytes,
		Elapsed:     c.Elapsed,
	})
}

// removePartial deletes an incomplete output so skip-existing never trusts it.
func removePartial(path string) {
	_ = os.Remove(path)
}
