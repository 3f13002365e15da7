package buffer

import "context"

// Telemetry is one reading from the platform buffer accessor.
type Telemetry struct {
	BufferLevelMs float64
	TargetLevelMs float64 // optional; <= 0 falls back to the active MinBufferMs
	Stalled       bool
	RebufferCount int // cumulative since playback start
}

// TelemetrySource reads the current buffer state from the playback
// pipeline. The monitor loop issues exactly one Sample per tick; a
// failed read is retried briefly and then reported, never fatal.
type TelemetrySource interface {
	Sample(ctx context.Context) (Telemetry, error)
}

// TelemetryFunc adapts a function to the TelemetrySource interface.
type TelemetryFunc func(ctx context.Context) (Telemetry, error)

func (f TelemetryFunc) Sample(ctx context.Context) (Telemetry, error) { return f(ctx) }

// NetworkInfo is the coarse connection grade from the host's network
// monitor, supplied per call.
type NetworkInfo struct {
	ConnectionQuality ConnectionQuality
}
