package config

import (
	"runtime"

	"oh-opus/internal/domain"
)

const (
	defaultBitrate      = 160
	defaultFrameSize    = 20.0
	defaultComplexity   = 10
	maxDefaultThreads   = 8
	defaultThreadsShare = 0.75
)

// DefaultSettings returns baseline configuration for first launch.
func DefaultSettings() domain.Settings {
	return domain.Settings{
		Engine:            domain.EngineFFmpeg,
		Bitrate:           defaultBitrate,
		VBR:               true,
		ApplicationMode:   domain.ApplicationAudio,
		FrameSize:         defaultFrameSize,
		Complexity:        defaultComplexity,
		SkipExisting:      true,
		GenreBitrateBoost: true,
		MaxThreads:        DefaultThreads(),
		ReplayGainMode:    domain.ReplayGainOff,
	}
}

// DefaultThreads uses about three quarters of the available cores, between 1 and 8.
func DefaultThreads() int {
	return threadsForCPUs(runtime.NumCPU())
}

func threadsForCPUs(cpus int) int {
	n := int(float64(cpus) * defaultThreadsShare)
	if n < 1 {
		return 1
	}
	if n > maxDefaultThreads {
		return maxDefaultThreads
	}
	return n
}
