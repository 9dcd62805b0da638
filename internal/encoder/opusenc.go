package encoder

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"oh-opus/internal/domain"
)

// Opusenc encodes through opus-tools. MP3 sources are decoded to WAV by
// ffmpeg and piped into opusenc, which cannot read MP3 itself.
type Opusenc struct {
	binary  string
	decoder string
	probe   *prober
	runner  commandRunner
	cancel  func()
	logger  *zap.Logger
}

// NewOpusenc constructs the production opusenc encoder.
func NewOpusenc(opts Options) *Opusenc {
	runner := newExecRunner(opts.Grace)
	return &Opusenc{
		binary:  binaryOr(opts.Binaries.Opusenc, "opusenc"),
		decoder: binaryOr(opts.Binaries.FFmpeg, "ffmpeg"),
		probe:   &prober{binary: opts.Binaries.FFprobe, runner: runner},
		runner:  runner,
		cancel:  runner.cancelAll,
		logger:  loggerOrNop(opts.Logger),
	}
}

// Name identifies the engine.
func (e *Opusenc) Name() domain.Engine {
	return domain.EngineOpusenc
}

// Encode decodes the source with ffmpeg and streams it through opusenc.
func (e *Opusenc) Encode(ctx context.Context, req Request, onProgress func(float64)) error {
	duration := 0.0
	if onProgress != nil {
		duration = e.Duration(ctx, req.Source)
	}

	decodeArgs := buildDecodeArgs(req.Source)
	encodeArgs := buildOpusencArgs(req, "-")
	e.logger.Debug("running opusenc",
		zap.String("source", req.Source),
		zap.Strings("decode_args", decodeArgs),
		zap.Strings("encode_args", encodeArgs),
	)

	decRes, encRes, decErr, encErr := e.runner.Pipe(ctx,
		commandSpec{Name: e.decoder, Args: decodeArgs},
		commandSpec{
			Name: e.binary,
			Args: encodeArgs,
			OnStderrLine: func(line string) {
				if value, ok := parseOpusencProgress(line, duration); ok {
					emitProgress(onProgress, value)
				}
			},
		},
	)
	if encErr != nil {
		return &EncodeError{
			Engine:  domain.EngineOpusenc,
			Source:  req.Source,
			Message: "opusenc encode failed",
			CommandLog: CommandLog{
				Command:  e.binary,
				Args:     encodeArgs,
				ExitCode: encRes.ExitCode,
				Stderr:   encRes.Stderr,
			},
			Err: encErr,
		}
	}
	if decErr != nil {
		return &EncodeError{
			Engine:  domain.EngineOpusenc,
			Source:  req.Source,
			Message: "source decode failed",
			CommandLog: CommandLog{
				Command:  e.decoder,
				Args:     decodeArgs,
				ExitCode: decRes.ExitCode,
				Stderr:   decRes.Stderr,
			},
			Err: decErr,
		}
	}

	emitProgress(onProgress, 1)
	return nil
}

// Duration probes the source length with ffprobe.
func (e *Opusenc) Duration(ctx context.Context, path string) float64 {
	return e.probe.Duration(ctx, path)
}

// Available reports whether opusenc runs and identifies itself.
func (e *Opusenc) Available(ctx context.Context) bool {
	res, err := e.runner.Run(ctx, commandSpec{
		Name:          e.binary,
		Args:          []string{"--version"},
		CaptureStdout: true,
	})
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(res.Stdout+res.Stderr), "opusenc")
}

// Cancel terminates in-flight decode and encode processes.
func (e *Opusenc) Cancel() {
	if e.cancel != nil {
		e.cancel()
	}
}

// buildDecodeArgs decodes any ffmpeg-readable source to WAV on stdout.
func buildDecodeArgs(source string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-f", "wav",
		"-",
	}
}

// buildOpusencArgs builds opusenc args reading input from the given path or "-".
func buildOpusencArgs(req Request, input string) []string {
	args := []string{"--bitrate", strconv.Itoa(req.Bitrate)}
	if req.VBR {
		args = append(args, "--vbr")
	} else {
		args = append(args, "--hard-cbr")
	}
	args = append(args, "--comp", strconv.Itoa(req.Complexity))
	if req.FrameSize > 0 {
		args = append(args, "--framesize", formatFrameSize(req.FrameSize))
	}
	switch req.Application {
	case domain.ApplicationVoIP:
		args = append(args, "--speech")
	case domain.ApplicationAudio:
		args = append(args, "--music")
	}
	return append(args, input, req.Dest)
}
