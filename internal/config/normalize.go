package config

import (
	"strings"

	"oh-opus/internal/domain"
)

// Normalize trims user input, lower-cases enum values and fills zero values
// with defaults. It never rejects input; see Validate for that.
func Normalize(s domain.Settings) domain.Settings {
	defaults := DefaultSettings()

	if expanded, err := ExpandPath(s.SourceFolder); err == nil {
		s.SourceFolder = expanded
	}
	if expanded, err := ExpandPath(s.DestFolder); err == nil {
		s.DestFolder = expanded
	}

	s.Engine = domain.Engine(strings.ToLower(strings.TrimSpace(string(s.Engine))))
	if s.Engine == "" {
		s.Engine = defaults.Engine
	}
	s.ApplicationMode = domain.ApplicationMode(strings.ToLower(strings.TrimSpace(string(s.ApplicationMode))))
	if s.ApplicationMode == "" {
		s.ApplicationMode = defaults.ApplicationMode
	}
	s.ReplayGainMode = domain.ReplayGainMode(strings.ToLower(strings.TrimSpace(string(s.ReplayGainMode))))
	if s.ReplayGainMode == "" {
		s.ReplayGainMode = defaults.ReplayGainMode
	}

	if s.Bitrate == 0 {
		s.Bitrate = defaults.Bitrate
	}
	if s.FrameSize == 0 {
		s.FrameSize = defaults.FrameSize
	}
	if s.MaxThreads <= 0 {
		s.MaxThreads = defaults.MaxThreads
	}

	s.Binaries.FFmpeg = strings.TrimSpace(s.Binaries.FFmpeg)
	s.Binaries.FFprobe = strings.TrimSpace(s.Binaries.FFprobe)
	s.Binaries.Opusenc = strings.TrimSpace(s.Binaries.Opusenc)
	s.Binaries.Opusgain = strings.TrimSpace(s.Binaries.Opusgain)
	s.Binaries.Loudgain = strings.TrimSpace(s.Binaries.Loudgain)
	return s
}

// WithDiscovered fills unset binary paths from discovered ones. Configured
// paths always win.
func WithDiscovered(configured, found domain.BinaryPaths) domain.BinaryPaths {
	pick := func(a, b string) string {
		if strings.TrimSpace(a) != "" {
			return a
		}
		return b
	}
	return domain.BinaryPaths{
		FFmpeg:   pick(configured.FFmpeg, found.FFmpeg),
		FFprobe:  pick(configured.FFprobe, found.FFprobe),
		Opusenc:  pick(configured.Opusenc, found.Opusenc),
		Opusgain: pick(configured.Opusgain, found.Opusgain),
		Loudgain: pick(configured.Loudgain, found.Loudgain),
	}
}
