// Package buffer provides adaptive buffer management for media playback.
//
// The engine decides how much media data the player should hold ahead of
// the playback position and continuously re-tunes that decision from
// buffer telemetry, stall events and network quality. It does not decide
// what quality to stream; that is the bitrate selector's job, which only
// reads this engine's statistics.
package buffer

import (
	"fmt"
	"strings"
)

// Default values derived from the seed when the host does not supply
// the full tuning surface. Target bytes and back-buffer retention match
// the player's stock tuning.
const (
	DefaultTargetBufferBytes = 30 * 1024 * 1024
	DefaultTickInterval      = 2000 // ms, monitor sampling period
)

// BufferConfiguration is the active set of buffering parameters. It is an
// immutable value: every adjustment path derives a new value and swaps it
// in wholesale, so readers never observe a partial update.
type BufferConfiguration struct {
	MinBufferMs int // minimum buffered duration to maintain
	MaxBufferMs int // ceiling on buffered duration

	// PlaybackBufferMs is the buffered duration required to start
	// playback; PlaybackRebufferMs is the (higher) duration required to
	// resume after a stall.
	PlaybackBufferMs   float64
	PlaybackRebufferMs float64

	TargetBufferBytes int64 // estimated memory footprint at MaxBufferMs

	// PrioritizeTimeOverSize is the tie-break the pipeline applies when
	// the time- and byte-based limits disagree.
	PrioritizeTimeOverSize bool

	BackBufferMs      int // retained buffer behind the playback position
	RebufferTimeoutMs int // max wait while re-buffering before a fatal stall
}

// normalize re-establishes the cross-field invariants after a derivation
// or scaling step. Scaling PlaybackBufferMs without touching
// PlaybackRebufferMs can otherwise invert the ordering.
func (c BufferConfiguration) normalize() BufferConfiguration {
	if c.MinBufferMs < 0 {
		c.MinBufferMs = 0
	}
	if c.MaxBufferMs < c.MinBufferMs {
		c.MaxBufferMs = c.MinBufferMs
	}
	if c.PlaybackBufferMs < 0 {
		c.PlaybackBufferMs = 0
	}
	if c.PlaybackRebufferMs < c.PlaybackBufferMs {
		c.PlaybackRebufferMs = c.PlaybackBufferMs
	}
	if c.TargetBufferBytes < 0 {
		c.TargetBufferBytes = 0
	}
	if c.BackBufferMs < 0 {
		c.BackBufferMs = 0
	}
	if c.RebufferTimeoutMs < 0 {
		c.RebufferTimeoutMs = 0
	}
	return c
}

func (c BufferConfiguration) String() string {
	return fmt.Sprintf("min=%dms max=%dms playback=%.0fms rebuffer=%.0fms target=%dB back=%dms timeout=%dms",
		c.MinBufferMs, c.MaxBufferMs, c.PlaybackBufferMs, c.PlaybackRebufferMs,
		c.TargetBufferBytes, c.BackBufferMs, c.RebufferTimeoutMs)
}

// SeedConfig is the read-only tuning seed the host supplies once at
// Start. The remaining BufferConfiguration fields are derived from it.
type SeedConfig struct {
	MinBufferMs         int
	MaxBufferMs         int
	BufferForPlaybackMs float64
	RebufferTimeoutMs   int
}

// Validate rejects a malformed seed before the engine starts. Errors are
// accumulated so the host sees every problem at once.
func (s SeedConfig) Validate() error {
	v := &validator{}

	if s.MinBufferMs < 0 {
		v.addError("minBufferMs must be non-negative, got %d", s.MinBufferMs)
	}
	if s.MaxBufferMs < 0 {
		v.addError("maxBufferMs must be non-negative, got %d", s.MaxBufferMs)
	}
	if s.MinBufferMs > s.MaxBufferMs {
		v.addError("minBufferMs (%d) exceeds maxBufferMs (%d)", s.MinBufferMs, s.MaxBufferMs)
	}
	if s.BufferForPlaybackMs < 0 {
		v.addError("bufferForPlaybackMs must be non-negative, got %.0f", s.BufferForPlaybackMs)
	}
	if s.BufferForPlaybackMs > float64(s.MaxBufferMs) {
		v.addError("bufferForPlaybackMs (%.0f) exceeds maxBufferMs (%d)", s.BufferForPlaybackMs, s.MaxBufferMs)
	}
	if s.RebufferTimeoutMs <= 0 {
		v.addError("rebufferTimeoutMs must be positive, got %d", s.RebufferTimeoutMs)
	}

	if v.hasErrors() {
		return fmt.Errorf("%w:\n%s", ErrInvalidConfig, strings.Join(v.errors, "\n"))
	}
	return nil
}

// baseConfiguration expands the seed into a full configuration. The
// post-rebuffer threshold doubles the start threshold and the back
// buffer retains up to the minimum buffer behind the position.
func (s SeedConfig) baseConfiguration() BufferConfiguration {
	return BufferConfiguration{
		MinBufferMs:            s.MinBufferMs,
		MaxBufferMs:            s.MaxBufferMs,
		PlaybackBufferMs:       s.BufferForPlaybackMs,
		PlaybackRebufferMs:     s.BufferForPlaybackMs * 2,
		TargetBufferBytes:      DefaultTargetBufferBytes,
		PrioritizeTimeOverSize: true,
		BackBufferMs:           s.MinBufferMs,
		RebufferTimeoutMs:      s.RebufferTimeoutMs,
	}.normalize()
}

type validator struct{ errors []string }

func (v *validator) addError(format string, args ...interface{}) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}
func (v *validator) hasErrors() bool { return len(v.errors) > 0 }
