package encoder

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// stderrTailLines bounds how much encoder chatter is kept for error reports.
const stderrTailLines = 20

// commandSpec describes one external process invocation.
type commandSpec struct {
	Name          string
	Args          []string
	CaptureStdout bool
	OnStdoutLine  func(line string)
	OnStderrLine  func(line string)
}

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, spec commandSpec) (commandResult, error)
	// Pipe runs producer with its stdout connected to consumer's stdin.
	Pipe(ctx context.Context, producer, consumer commandSpec) (commandResult, commandResult, error, error)
}

// execRunner executes commands via os/exec with terminate-then-kill cancellation.
type execRunner struct {
	grace   time.Duration
	tracker *tracker
}

func newExecRunner(grace time.Duration) *execRunner {
	return &execRunner{grace: graceOrDefault(grace), tracker: newTracker()}
}

// Run executes one command, streaming output lines to the configured callbacks.
func (r *execRunner) Run(ctx context.Context, spec commandSpec) (commandResult, error) {
	ctx, done := r.tracker.track(ctx)
	defer done()

	cmd, outputs := r.command(ctx, spec)
	err := cmd.Run()
	outputs.flush()
	return outputs.result(err), err
}

// Pipe runs producer | consumer and returns both results.
func (r *execRunner) Pipe(ctx context.Context, producer, consumer commandSpec) (commandResult, commandResult, error, error) {
	ctx, done := r.tracker.track(ctx)
	defer done()

	pr, pw, err := os.Pipe()
	if err != nil {
		return commandResult{ExitCode: -1}, commandResult{ExitCode: -1}, err, err
	}

	producer.CaptureStdout = false
	producer.OnStdoutLine = nil
	prodCmd, prodOut := r.command(ctx, producer)
	prodCmd.Stdout = pw
	consCmd, consOut := r.command(ctx, consumer)
	consCmd.Stdin = pr

	if err := consCmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return commandResult{}, consOut.result(err), nil, err
	}
	prodErr := prodCmd.Start()
	_ = pr.Close()
	_ = pw.Close()
	if prodErr == nil {
		prodErr = prodCmd.Wait()
	}
	consErr := consCmd.Wait()

	prodOut.flush()
	consOut.flush()
	return prodOut.result(prodErr), consOut.result(consErr), prodErr, consErr
}

// command builds an exec.Cmd that receives SIGTERM on cancellation and is
// killed if it outlives the grace period.
func (r *execRunner) command(ctx context.Context, spec commandSpec) (*exec.Cmd, *outputs) {
	cmd := exec.CommandContext(ctx, spec.Name, spec.Args...)
	cmd.Cancel = func() error {
		return terminate(cmd.Process)
	}
	cmd.WaitDelay = r.grace

	out := &outputs{
		stderr: &lineWriter{tail: newTail(stderrTailLines), onLine: spec.OnStderrLine},
	}
	if spec.CaptureStdout || spec.OnStdoutLine != nil {
		out.stdout = &lineWriter{onLine: spec.OnStdoutLine}
		if spec.CaptureStdout {
			out.stdout.capture = &bytes.Buffer{}
		}
		cmd.Stdout = out.stdout
	}
	cmd.Stderr = out.stderr
	return cmd, out
}

// cancelAll terminates every tracked process.
func (r *execRunner) cancelAll() {
	r.tracker.cancelAll()
}

type outputs struct {
	stdout *lineWriter
	stderr *lineWriter
}

func (o *outputs) flush() {
	if o.stdout != nil {
		o.stdout.Flush()
	}
	o.stderr.Flush()
}

func (o *outputs) result(err error) commandResult {
	res := commandResult{Stderr: o.stderr.tail.String()}
	if o.stdout != nil && o.stdout.capture != nil {
		res.Stdout = o.stdout.capture.String()
	}
	if err != nil {
		res.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
	}
	return res
}

// tracker holds cancel functions for in-flight processes.
type tracker struct {
	mu     sync.Mutex
	nextID int
	active map[int]context.CancelFunc
}

func newTracker() *tracker {
	return &tracker{active: make(map[int]context.CancelFunc)}
}

func (t *tracker) track(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.active[id] = cancel
	t.mu.Unlock()

	return ctx, func() {
		t.mu.Lock()
		delete(t.active, id)
		t.mu.Unlock()
		cancel()
	}
}

func (t *tracker) cancelAll() {
	t.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(t.active))
	for _, cancel := range t.active {
		cancels = append(cancels, cancel)
	}
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

func (t *tracker) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// lineWriter splits process output on newlines and carriage returns.
type lineWriter struct {
	mu      sync.Mutex
	partial []byte
	onLine  func(string)
	tail    *tail
	capture *bytes.Buffer
}

// Write implements io.Writer.
func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.capture != nil {
		w.capture.Write(p)
	}
	for _, b := range p {
		if b == '\n' || b == '\r' {
			w.emit()
			continue
		}
		w.partial = append(w.partial, b)
	}
	return len(p), nil
}

// Flush emits any trailing partial line.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.emit()
}

func (w *lineWriter) emit() {
	line := strings.TrimSpace(string(w.partial))
	w.partial = w.partial[:0]
	if line == "" {
		return
	}
	if w.tail != nil {
		w.tail.add(line)
	}
	if w.onLine != nil {
		w.onLine(line)
	}
}

// tail keeps the last n lines.
type tail struct {
	lines []string
	max   int
}

func newTail(max int) *tail {
	return &tail{max: max}
}

func (t *tail) add(line string) {
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

// String joins the retained lines.
func (t *tail) String() string {
	if t == nil {
		return ""
	}
	return strings.Join(t.lines, "\n")
}
