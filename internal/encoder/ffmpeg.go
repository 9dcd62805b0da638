package encoder

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"oh-opus/internal/domain"
)

// FFmpeg encodes through ffmpeg's libopus codec.
type FFmpeg struct {
	binary string
	probe  *prober
	runner commandRunner
	cancel func()
	logger *zap.Logger
}

// NewFFmpeg constructs the production ffmpeg encoder.
func NewFFmpeg(opts Options) *FFmpeg {
	runner := newExecRunner(opts.Grace)
	return &FFmpeg{
		binary: binaryOr(opts.Binaries.FFmpeg, "ffmpeg"),
		probe:  &prober{binary: opts.Binaries.FFprobe, runner: runner},
		runner: runner,
		cancel: runner.cancelAll,
		logger: loggerOrNop(opts.Logger),
	}
}

// Name identifies the engine.
func (e *FFmpeg) Name() domain.Engine {
	return domain.EngineFFmpeg
}

// Encode runs one ffmpeg libopus encode, reporting progress from -progress output.
func (e *FFmpeg) Encode(ctx context.Context, req Request, onProgress func(float64)) error {
	duration := 0.0
	if onProgress != nil {
		duration = e.Duration(ctx, req.Source)
	}

	args := buildFFmpegArgs(req)
	e.logger.Debug("running ffmpeg", zap.String("source", req.Source), zap.Strings("args", args))

	res, err := e.runner.Run(ctx, commandSpec{
		Name: e.binary,
		Args: args,
		OnStdoutLine: func(line string) {
			if value, ok := parseFFmpegProgress(line, duration); ok {
				emitProgress(onProgress, value)
			}
		},
	})
	if err != nil {
		return &EncodeError{
			Engine:  domain.EngineFFmpeg,
			Source:  req.Source,
			Message: "ffmpeg encode failed",
			CommandLog: CommandLog{
				Command:  e.binary,
				Args:     args,
				ExitCode: res.ExitCode,
				Stderr:   res.Stderr,
			},
			Err: err,
		}
	}

	emitProgress(onProgress, 1)
	return nil
}

// Duration probes the source length with ffprobe.
func (e *FFmpeg) Duration(ctx context.Context, path string) float64 {
	return e.probe.Duration(ctx, path)
}

// Available reports whether ffmpeg runs and ships the libopus encoder.
func (e *FFmpeg) Available(ctx context.Context) bool {
	res, err := e.runner.Run(ctx, commandSpec{
		Name:          e.binary,
		Args:          []string{"-hide_banner", "-encoders"},
		CaptureStdout: true,
	})
	if err != nil {
		return false
	}
	return strings.Contains(res.Stdout, "libopus")
}

// Cancel terminates in-flight ffmpeg processes.
func (e *FFmpeg) Cancel() {
	if e.cancel != nil {
		e.cancel()
	}
}

// buildFFmpegArgs builds libopus encode args with machine-readable progress on stdout.
func buildFFmpegArgs(req Request) []string {
	vbr := "off"
	if req.VBR {
		vbr = "on"
	}

	args := []string{
		"-hide_banner",
		"-nostdin",
		"-i", req.Source,
		"-vn",
		"-c:a", "libopus",
		"-b:a", fmt.Sprintf("%dk", req.Bitrate),
		"-vbr", vbr,
	}
	if req.Application != "" {
		args = append(args, "-application", string(req.Application))
	}
	if req.FrameSize > 0 {
		args = append(args, "-frame_duration", formatFrameSize(req.FrameSize))
	}
	args = append(args,
		"-compression_level", strconv.Itoa(req.Complexity),
		"-progress", "pipe:1",
		"-y", req.Dest,
	)
	return args
}
