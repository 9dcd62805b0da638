package config

import (
	"errors"
	"fmt"
	"strings"

	"oh-opus/internal/domain"
)

const (
	minBitrate = 6
	maxBitrate = 510
)

var validFrameSizes = []float64{2.5, 5, 10, 20, 40, 60}

// Validate reports every setting that cannot be used for a conversion run.
func Validate(s domain.Settings) error {
	var errs []error

	if strings.TrimSpace(s.SourceFolder) == "" {
		errs = append(errs, errors.New("source_folder must be set"))
	}
	if strings.TrimSpace(s.DestFolder) == "" {
		errs = append(errs, errors.New("dest_folder must be set"))
	}

	switch s.Engine {
	case domain.EngineFFmpeg, domain.EngineOpusenc:
	default:
		errs = append(errs, fmt.Errorf("engine must be ffmpeg or opusenc, got %q", s.Engine))
	}

	if s.Bitrate < minBitrate || s.Bitrate > maxBitrate {
		errs = append(errs, fmt.Errorf("bitrate must be between %d and %d kbps, got %d", minBitrate, maxBitrate, s.Bitrate))
	}

	switch s.ApplicationMode {
	case domain.ApplicationAudio, domain.ApplicationVoIP, domain.ApplicationLowDelay:
	default:
		errs = append(errs, fmt.Errorf("application_mode must be audio, voip or lowdelay, got %q", s.ApplicationMode))
	}

	if !validFrameSize(s.FrameSize) {
		errs = append(errs, fmt.Errorf("frame_size must be one of 2.5, 5, 10, 20, 40, 60, got %g", s.FrameSize))
	}
	if s.Complexity < 0 || s.Complexity > 10 {
		errs = append(errs, fmt.Errorf("complexity must be between 0 and 10, got %d", s.Complexity))
	}
	if s.MaxThreads < 1 {
		errs = append(errs, fmt.Errorf("max_threads must be at least 1, got %d", s.MaxThreads))
	}

	switch s.ReplayGainMode {
	case domain.ReplayGainOff, domain.ReplayGainTrack, domain.ReplayGainAlbum:
	default:
		errs = append(errs, fmt.Errorf("replaygain_mode must be off, track or album, got %q", s.ReplayGainMode))
	}

	if s.CoverMaxSize < 0 {
		errs = append(errs, fmt.Errorf("cover_max_size must not be negative, got %d", s.CoverMaxSize))
	}

	return errors.Join(errs...)
}

func validFrameSize(v float64) bool {
	for _, fs := range validFrameSizes {
		if v == fs {
			return true
		}
	}
	return false
}
