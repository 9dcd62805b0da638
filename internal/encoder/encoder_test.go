package encoder

import (
	"context"
	"errors"
	"strings"
	"testing"

	"oh-opus/internal/domain"
)

// fakeRunner simulates command execution with injected behavior.
type fakeRunner struct {
	run  func(ctx context.Context, spec commandSpec) (commandResult, error)
	pipe func(ctx context.Context, producer, consumer commandSpec) (commandResult, commandResult, error, error)
}

// Run delegates to injected behavior.
func (f *fakeRunner) Run(ctx context.Context, spec commandSpec) (commandResult, error) {
	if f.run == nil {
		return commandResult{}, nil
	}
	return f.run(ctx, spec)
}

// Pipe delegates to injected behavior.
func (f *fakeRunner) Pipe(ctx context.Context, producer, consumer commandSpec) (commandResult, commandResult, error, error) {
	if f.pipe == nil {
		return commandResult{}, commandResult{}, nil, nil
	}
	return f.pipe(ctx, producer, consumer)
}

func sampleRequest() Request {
	return Request{
		Source:      "/music/a.mp3",
		Dest:        "/out/a.opus",
		Bitrate:     160,
		VBR:         true,
		Application: domain.ApplicationAudio,
		Complexity:  10,
		FrameSize:   20,
	}
}

// TestBuildFFmpegArgs checks codec options and progress output wiring.
func TestBuildFFmpegArgs(t *testing.T) {
	req := sampleRequest()
	req.VBR = false
	req.FrameSize = 2.5
	args := buildFFmpegArgs(req)

	checks := map[string]string{
		"-i":                 "/music/a.mp3",
		"-c:a":               "libopus",
		"-b:a":               "160k",
		"-vbr":               "off",
		"-application":       "audio",
		"-frame_duration":    "2.5",
		"-compression_level": "10",
		"-progress":          "pipe:1",
		"-y":                 "/out/a.opus",
	}
	for flag, want := range checks {
		if got := argValue(args, flag); got != want {
			t.Fatalf("%s = %q, want %q (args=%v)", flag, got, want, args)
		}
	}
	if args[len(args)-1] != "/out/a.opus" {
		t.Fatalf("last arg = %q, want output path", args[len(args)-1])
	}
}

// TestBuildOpusencArgs checks VBR, application and stdin input mapping.
func TestBuildOpusencArgs(t *testing.T) {
	req := sampleRequest()
	args := buildOpusencArgs(req, "-")
	if !hasArg(args, "--vbr") || hasArg(args, "--hard-cbr") {
		t.Fatalf("expected --vbr only, args=%v", args)
	}
	if !hasArg(args, "--music") {
		t.Fatalf("expected --music for audio mode, args=%v", args)
	}
	if got := argValue(args, "--framesize"); got != "20" {
		t.Fatalf("--framesize = %q, want 20", got)
	}
	if args[len(args)-2] != "-" || args[len(args)-1] != "/out/a.opus" {
		t.Fatalf("unexpected input/output tail: %v", args)
	}

	req.VBR = false
	req.Application = domain.ApplicationVoIP
	args = buildOpusencArgs(req, "-")
	if !hasArg(args, "--hard-cbr") || !hasArg(args, "--speech") {
		t.Fatalf("expected --hard-cbr and --speech, args=%v", args)
	}

	req.Application = domain.ApplicationLowDelay
	args = buildOpusencArgs(req, "-")
	if hasArg(args, "--speech") || hasArg(args, "--music") {
		t.Fatalf("lowdelay should not pass a content hint, args=%v", args)
	}
}

// TestParseFFmpegProgress checks time and end markers.
func TestParseFFmpegProgress(t *testing.T) {
	if v, ok := parseFFmpegProgress("out_time_us=5000000", 10); !ok || v != 0.5 {
		t.Fatalf("progress = %v,%v, want 0.5,true", v, ok)
	}
	if v, ok := parseFFmpegProgress("out_time_us=20000000", 10); !ok || v != 1 {
		t.Fatalf("progress = %v,%v, want clamped 1", v, ok)
	}
	if v, ok := parseFFmpegProgress("progress=end", 0); !ok || v != 1 {
		t.Fatalf("end progress = %v,%v, want 1,true", v, ok)
	}
	if _, ok := parseFFmpegProgress("out_time_us=5000000", 0); ok {
		t.Fatal("unknown duration should not yield progress")
	}
	if _, ok := parseFFmpegProgress("bitrate=128.0kbits/s", 10); ok {
		t.Fatal("unrelated key should not yield progress")
	}
	if _, ok := parseFFmpegProgress("out_time_us=N/A", 10); ok {
		t.Fatal("N/A time should not yield progress")
	}
}

// TestParseOpusencProgress checks the status-line timestamp.
func TestParseOpusencProgress(t *testing.T) {
	v, ok := parseOpusencProgress("[|] 00:01:00.00 32.6x realtime, 129.3kbit/s", 120)
	if !ok || v != 0.5 {
		t.Fatalf("progress = %v,%v, want 0.5,true", v, ok)
	}
	if _, ok := parseOpusencProgress("Encoding complete", 120); ok {
		t.Fatal("summary line should not yield progress")
	}
	if _, ok := parseOpusencProgress("[|] 00:01:00.00", 0); ok {
		t.Fatal("unknown duration should not yield progress")
	}
}

// TestFFmpegEncodeReportsProgress checks the stdout parser is wired to the callback.
func TestFFmpegEncodeReportsProgress(t *testing.T) {
	runner := &fakeRunner{
		run: func(ctx context.Context, spec commandSpec) (commandResult, error) {
			if hasArg(spec.Args, "-show_format") {
				return commandResult{Stdout: `{"format":{"duration":"10.0"}}`}, nil
			}
			spec.OnStdoutLine("out_time_us=2500000")
			spec.OnStdoutLine("progress=continue")
			spec.OnStdoutLine("out_time_us=7500000")
			return commandResult{}, nil
		},
	}
	enc := &FFmpeg{binary: "ffmpeg", runner: runner, probe: &prober{runner: runner}, logger: loggerOrNop(nil)}

	var got []float64
	if err := enc.Encode(context.Background(), sampleRequest(), func(v float64) { got = append(got, v) }); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want := []float64{0.25, 0.75, 1}
	if len(got) != len(want) {
		t.Fatalf("progress = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("progress = %v, want %v", got, want)
		}
	}
}

// TestFFmpegEncodeFailureReturnsEncodeError checks command context on failure.
func TestFFmpegEncodeFailureReturnsEncodeError(t *testing.T) {
	runErr := errors.New("exit status 1")
	runner := &fakeRunner{
		run: func(ctx context.Context, spec commandSpec) (commandResult, error) {
			return commandResult{Stderr: "Invalid data found", ExitCode: 1}, runErr
		},
	}
	enc := &FFmpeg{binary: "ffmpeg-custom", runner: runner, probe: &prober{runner: runner}, logger: loggerOrNop(nil)}

	err := enc.Encode(context.Background(), sampleRequest(), nil)
	var encErr *EncodeError
	if !errors.As(err, &encErr) {
		t.Fatalf("error = %v, want *EncodeError", err)
	}
	if encErr.CommandLog.Command != "ffmpeg-custom" || encErr.CommandLog.ExitCode != 1 {
		t.Fatalf("unexpected command log: %+v", encErr.CommandLog)
	}
	if !errors.Is(err, runErr) {
		t.Fatal("expected wrapped runner error")
	}
	if !strings.Contains(err.Error(), "exit=1") {
		t.Fatalf("error text = %q", err.Error())
	}
}

// TestOpusencEncodePipesDecoder checks decoder/encoder pairing and failure precedence.
func TestOpusencEncodePipesDecoder(t *testing.T) {
	var producerName, consumerName string
	decodeErr := errors.New("decode exit 1")
	runner := &fakeRunner{
		pipe: func(ctx context.Context, producer, consumer commandSpec) (commandResult, commandResult, error, error) {
			producerName = producer.Name
			consumerName = consumer.Name
			consumer.OnStderrLine("[/] 00:00:05.00 10x realtime")
			return commandResult{ExitCode: 1, Stderr: "bad mp3"}, commandResult{}, decodeErr, nil
		},
		run: func(ctx context.Context, spec commandSpec) (commandResult, error) {
			return commandResult{Stdout: `{"format":{"duration":"10"}}`}, nil
		},
	}
	enc := &Opusenc{binary: "opusenc", decoder: "ffmpeg", runner: runner, probe: &prober{runner: runner}, logger: loggerOrNop(nil)}

	var last float64
	err := enc.Encode(context.Background(), sampleRequest(), func(v float64) { last = v })
	if producerName != "ffmpeg" || consumerName != "opusenc" {
		t.Fatalf("pipe = %s | %s, want ffmpeg | opusenc", producerName, consumerName)
	}
	if last != 0.5 {
		t.Fatalf("progress = %v, want 0.5", last)
	}
	var encErr *EncodeError
	if !errors.As(err, &encErr) || encErr.Message != "source decode failed" {
		t.Fatalf("error = %v, want decode failure", err)
	}
}

// TestAvailableChecks verifies capability probing output matching.
func TestAvailableChecks(t *testing.T) {
	ff := &FFmpeg{binary: "ffmpeg", runner: &fakeRunner{
		run: func(ctx context.Context, spec commandSpec) (commandResult, error) {
			return commandResult{Stdout: " A....D libopus   libopus Opus"}, nil
		},
	}}
	if !ff.Available(context.Background()) {
		t.Fatal("expected ffmpeg with libopus to be available")
	}

	op := &Opusenc{binary: "opusenc", runner: &fakeRunner{
		run: func(ctx context.Context, spec commandSpec) (commandResult, error) {
			return commandResult{}, errors.New("not found")
		},
	}}
	if op.Available(context.Background()) {
		t.Fatal("expected missing opusenc to be unavailable")
	}
}

// TestNewRejectsUnknownEngine checks engine selection.
func TestNewRejectsUnknownEngine(t *testing.T) {
	if _, err := New("lame", Options{}); err == nil {
		t.Fatal("expected unknown engine error")
	}
	enc, err := New(domain.EngineOpusenc, Options{})
	if err != nil || enc.Name() != domain.EngineOpusenc {
		t.Fatalf("New(opusenc) = %v, %v", enc, err)
	}
}

// TestGainerCommand checks tool preference and mode flags.
func TestGainerCommand(t *testing.T) {
	g := &Gainer{opusgain: "opusgain", loudgain: "loudgain"}
	name, args := g.command("/out/a.opus", domain.ReplayGainAlbum)
	if name != "opusgain" || args[0] != "--album" {
		t.Fatalf("command = %s %v", name, args)
	}

	g = &Gainer{loudgain: "loudgain"}
	name, args = g.command("/out/a.opus", domain.ReplayGainAlbum)
	if name != "loudgain" || !hasArg(args, "-a") || argValue(args, "-s") != "e" {
		t.Fatalf("command = %s %v", name, args)
	}

	g = &Gainer{}
	if err := g.Apply(context.Background(), "/out/a.opus", domain.ReplayGainTrack); !errors.Is(err, ErrNoGainTool) {
		t.Fatalf("Apply() error = %v, want %v", err, ErrNoGainTool)
	}
	if err := g.Apply(context.Background(), "/out/a.opus", domain.ReplayGainOff); err != nil {
		t.Fatalf("off mode should be a no-op, got %v", err)
	}
}

// TestLineWriterSplitsCarriageReturns verifies status-line splitting and tail capture.
func TestLineWriterSplitsCarriageReturns(t *testing.T) {
	var lines []string
	w := &lineWriter{tail: newTail(2), onLine: func(s string) { lines = append(lines, s) }}
	_, _ = w.Write([]byte("one\r two\n\nthr"))
	_, _ = w.Write([]byte("ee"))
	w.Flush()

	if strings.Join(lines, ",") != "one,two,three" {
		t.Fatalf("lines = %v", lines)
	}
	if w.tail.String() != "two\nthree" {
		t.Fatalf("tail = %q", w.tail.String())
	}
}

// argValue returns the argument value immediately after flag.
func argValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

// hasArg reports whether args contains the exact token.
func hasArg(args []string, value string) bool {
	for _, arg := range args {
		if arg == value {
			return true
		}
	}
	return false
}
