package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"oh-opus/internal/convert"
	"oh-opus/internal/domain"
	"oh-opus/internal/jobs"
)

type convertFlags struct {
	engine       string
	bitrate      int
	vbr          bool
	threads      int
	skipExisting bool
	genreBoost   bool
	replayGain   string
	complexity   int
	frameSize    float64
	application  string
	coverMaxSize int
}

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var flags convertFlags

	cmd := &cobra.Command{
		Use:   "convert [SOURCE] [DEST]",
		Short: "Convert every MP3 under SOURCE into a mirrored Opus tree under DEST",
		Long: "Convert every MP3 under SOURCE into a mirrored Opus tree under DEST.\n" +
			"Folders and options default to the saved settings. Ctrl-C cancels the run\n" +
			"and removes partial files; a second Ctrl-C exits immediately.",
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := ctx.loadSettings()
			if err != nil {
				return err
			}
			if len(args) > 0 {
				settings.SourceFolder = args[0]
			}
			if len(args) > 1 {
				settings.DestFolder = args[1]
			}
			applyConvertFlags(cmd.Flags(), flags, &settings)

			logger, err := ctx.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			settings.Binaries = ctx.discover(cmd.Context(), logger, settings.Binaries)
			orchestrator := convert.New(ctx.deps(logger), nil, logger)
			return runConversion(cmd, orchestrator, settings)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.engine, "engine", "", "Encoder engine (ffmpeg or opusenc)")
	f.IntVarP(&flags.bitrate, "bitrate", "b", 0, "Target bitrate in kbps")
	f.BoolVar(&flags.vbr, "vbr", true, "Use variable bitrate")
	f.IntVarP(&flags.threads, "threads", "j", 0, "Maximum concurrent encodes")
	f.BoolVar(&flags.skipExisting, "skip-existing", true, "Skip files whose output already exists")
	f.BoolVar(&flags.genreBoost, "genre-boost", true, "Raise bitrate for classical, electronic, metal and jazz")
	f.StringVar(&flags.replayGain, "replaygain", "", "ReplayGain mode (off, track, album)")
	f.IntVar(&flags.complexity, "complexity", 10, "Encoder complexity 0-10")
	f.Float64Var(&flags.frameSize, "frame-size", 20, "Frame size in ms (2.5, 5, 10, 20, 40, 60)")
	f.StringVar(&flags.application, "application", "", "Application mode (audio, voip, lowdelay)")
	f.IntVar(&flags.coverMaxSize, "cover-max-size", 0, "Downscale cover art larger than this many pixels (0 keeps original)")
	return cmd
}

// applyConvertFlags overlays only the flags the user set on the saved settings.
func applyConvertFlags(fs *pflag.FlagSet, flags convertFlags, s *domain.Settings) {
	if fs.Changed("engine") {
		s.Engine = domain.Engine(flags.engine)
	}
	if fs.Changed("bitrate") {
		s.Bitrate = flags.bitrate
	}
	if fs.Changed("vbr") {
		s.VBR = flags.vbr
	}
	if fs.Changed("threads") {
		s.MaxThreads = flags.threads
	}
	if fs.Changed("skip-existing") {
		s.SkipExisting = flags.skipExisting
	}
	if fs.Changed("genre-boost") {
		s.GenreBitrateBoost = flags.genreBoost
	}
	if fs.Changed("replaygain") {
		s.ReplayGainMode = domain.ReplayGainMode(flags.replayGain)
	}
	if fs.Changed("complexity") {
		s.Complexity = flags.complexity
	}
	if fs.Changed("frame-size") {
		s.FrameSize = flags.frameSize
	}
	if fs.Changed("application") {
		s.ApplicationMode = domain.ApplicationMode(flags.application)
	}
	if fs.Changed("cover-max-size") {
		s.CoverMaxSize = flags.coverMaxSize
	}
}

// runConversion starts a run, renders its events and maps the outcome to an error.
func runConversion(cmd *cobra.Command, orchestrator *convert.Orchestrator, settings domain.Settings) error {
	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run, err := orchestrator.Start(context.Background(), settings)
	if err != nil {
		return err
	}

	go func() {
		select {
		case <-sigCtx.Done():
			// Restore default handling so a second signal exits at once.
			stop()
			_ = orchestrator.Cancel()
		case <-run.Done():
		}
	}()

	out := cmd.OutOrStdout()
	renderer := newRenderer(out)
	var last jobs.Event
	for event := range run.Events() {
		renderer.Handle(event)
		if event.Terminal() {
			last = event
		}
	}
	renderer.Close()
	<-run.Done()

	fmt.Fprintln(out, renderSummary(run.Counters()))

	switch last.Type {
	case jobs.EventTypeError:
		return fmt.Errorf("conversion failed: %s", last.Message)
	case jobs.EventTypeCancelled:
		return fmt.Errorf("conversion cancelled: %w", context.Canceled)
	}
	if last.Errors > 0 {
		return fmt.Errorf("%d file(s) failed to convert", last.Errors)
	}
	return nil
}
