package buffer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

var (
	ErrNotInitialized = errors.New("buffer manager not initialized")
	ErrAlreadyRunning = errors.New("buffer manager already running")
	ErrInvalidConfig  = errors.New("invalid buffer configuration")
)

// adjustmentHistorySize bounds the record of accepted changes.
const adjustmentHistorySize = 20

// sampleRetries is how many times a failed telemetry read is retried
// within one tick before the tick is abandoned.
const sampleRetries = 2

// BufferStatistics is the synchronous statistics snapshot consumed by
// the bitrate selector and by diagnostics.
type BufferStatistics struct {
	Config                BufferConfiguration
	Strategy              Strategy
	AverageBufferLevel    float64
	Stability             float64
	UnderrunEvents        int
	OverrunEvents         int
	StallEvents           int
	AverageRebufferTimeMs float64
	HealthScore           float64
	Trend                 LevelTrend

	TotalAdjustments    int
	AcceptedAdjustments int
	RejectedAdjustments int
}

// Manager owns the adaptive buffer control loop. It is the sole writer
// of the active configuration and the snapshot history; the host's
// entry points (OptimizeBuffer, AdjustBuffer, queries) may be called
// concurrently with the loop and with each other.
type Manager struct {
	logger *zap.Logger
	source TelemetrySource

	interval time.Duration
	now      func() time.Time

	// cfg is copy-on-write: mutation paths build a new value and swap
	// the pointer, so readers never see a partial update.
	cfg atomic.Pointer[BufferConfiguration]

	history *snapshotHistory
	events  dispatcher

	// mu serializes the mutation paths and the bookkeeping below.
	mu       sync.Mutex
	base     BufferConfiguration // Normal baseline derived from the seed
	strategy Strategy
	records  []AdjustmentRecord

	totalAdjustments    int
	acceptedAdjustments int
	rejectedAdjustments int

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewManager creates a manager reading buffer state from source. A nil
// logger disables logging.
func NewManager(source TelemetrySource, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		logger:   logger.Named("buffer"),
		source:   source,
		interval: DefaultTickInterval * time.Millisecond,
		now:      time.Now,
		history:  newSnapshotHistory(historyCapacity),
	}
}

// SetTickInterval overrides the monitor sampling period. Must be called
// before Start.
func (m *Manager) SetTickInterval(d time.Duration) {
	if d > 0 {
		m.interval = d
	}
}

// Subscribe registers a synchronous event handler. Handlers receive
// events in publication order and must not block.
func (m *Manager) Subscribe(h EventHandler) {
	m.events.subscribe(h)
}

// Start validates the seed, installs the Normal baseline and enters the
// Running state. Restarting after Stop re-enters Running from a fresh
// baseline and an empty history.
func (m *Manager) Start(ctx context.Context, seed SeedConfig) error {
	if err := seed.Validate(); err != nil {
		return err
	}
	if m.source == nil {
		return fmt.Errorf("%w: no telemetry source", ErrInvalidConfig)
	}
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	base := seed.baseConfiguration()

	m.mu.Lock()
	m.base = base
	m.strategy = StrategyNormal
	m.records = nil
	m.totalAdjustments = 0
	m.acceptedAdjustments = 0
	m.rejectedAdjustments = 0
	m.mu.Unlock()

	m.cfg.Store(&base)
	m.history.Clear()

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	m.logger.Info("buffer manager started",
		zap.String("config", base.String()),
		zap.Duration("interval", m.interval))

	m.events.publish(Event{Type: EventInitialized, Config: &base})

	go m.monitorLoop(loopCtx)
	return nil
}

// Stop cancels the monitor loop and waits for any in-flight tick to
// finish. After Stop returns no further ticks run and the manager is
// back in the stopped state. Idempotent.
func (m *Manager) Stop() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	m.cancel()
	<-m.done
	m.logger.Info("buffer manager stopped")
}

func (m *Manager) monitorLoop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick runs one monitoring cycle: sample, record, analyze, publish. Any
// failure is reported as an Error event and the next tick proceeds
// normally with the configuration maintained.
func (m *Manager) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("monitor tick panic: %v", r)
			m.logger.Error("tick recovered", zap.Error(err))
			m.events.publish(Event{Type: EventError, Err: err})
		}
	}()

	tel, err := m.sample(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.logger.Warn("telemetry read failed", zap.Error(err))
		m.events.publish(Event{Type: EventError, Err: err})
		return
	}

	cfg := m.Config()
	target := tel.TargetLevelMs
	if target <= 0 {
		target = float64(cfg.MinBufferMs)
	}

	m.history.Append(Snapshot{
		Timestamp:     m.now(),
		BufferLevelMs: tel.BufferLevelMs,
		TargetLevelMs: target,
		Stalled:       tel.Stalled,
		RebufferCount: tel.RebufferCount,
		Config:        cfg,
	})

	analysis := analyze(m.history.Recent(analysisWindow))
	score := healthScore(m.history.Recent(healthWindow))

	m.events.publish(Event{
		Type:        EventHealthUpdate,
		HealthScore: score,
		Analysis:    &analysis,
	})

	if analysis.RequiresAdjustment {
		label := classifyAutoAdjustment(analysis)
		m.logger.Info("buffer adjustment recommended",
			zap.String("label", string(label)),
			zap.Float64("underrunRate", analysis.UnderrunRate),
			zap.Float64("overrunRate", analysis.OverrunRate),
			zap.Float64("stallRate", analysis.StallRate))
		m.events.publish(Event{
			Type:     EventAutoAdjustment,
			Label:    label,
			Analysis: &analysis,
		})
	}
}

// sample reads telemetry with a short retry: transient read failures
// inside one tick should not surface as errors.
func (m *Manager) sample(ctx context.Context) (Telemetry, error) {
	var tel Telemetry
	op := func() error {
		var err error
		tel, err = m.source.Sample(ctx)
		return err
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(50*time.Millisecond), sampleRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return Telemetry{}, fmt.Errorf("sampling buffer telemetry: %w", err)
	}
	return tel, nil
}

// Config returns the active configuration. Safe to call at any time;
// before Start it returns the zero value.
func (m *Manager) Config() BufferConfiguration {
	if p := m.cfg.Load(); p != nil {
		return *p
	}
	return BufferConfiguration{}
}

// OptimizeBuffer switches to the named strategy, scaled for the current
// network quality. The change is published only when it clears the
// significance gate; either way the active strategy label updates.
func (m *Manager) OptimizeBuffer(strategy Strategy, net NetworkInfo) (Adjustment, error) {
	if !m.running.Load() {
		return Adjustment{}, ErrNotInitialized
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	proposed := scaleForNetwork(baselineFor(strategy, m.base), net.ConnectionQuality)
	current := m.Config()
	m.strategy = strategy

	reason := fmt.Sprintf("strategy %s (%s network)", strategy, net.ConnectionQuality)
	m.totalAdjustments++
	if !significantChange(current, proposed) {
		m.rejectedAdjustments++
		m.logger.Debug("strategy switch below significance threshold",
			zap.String("strategy", strategy.String()))
		return Adjustment{
			Config:       current,
			ShouldUpdate: false,
			Reason:       reason,
			Description:  "configuration maintained: proposed change not significant",
		}, nil
	}

	m.swapLocked(current, proposed, reason)
	return Adjustment{
		Config:       proposed,
		ShouldUpdate: true,
		Reason:       reason,
		Description:  fmt.Sprintf("applied %s baseline scaled %.1fx for %s network", strategy, net.ConnectionQuality.networkMultiplier(), net.ConnectionQuality),
	}, nil
}

// AdjustBuffer reacts to a degradation reason reported by the host's
// performance telemetry. The reactive causes always publish; the
// fine-tuning default publishes only significant changes.
func (m *Manager) AdjustBuffer(reason string, metrics NetworkMetrics) (Adjustment, error) {
	if !m.running.Load() {
		return Adjustment{}, ErrNotInitialized
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.Config()
	adj := recommend(reason, current, metrics, m.history.Recent(optimizeWindow))

	m.totalAdjustments++
	if !adj.ShouldUpdate {
		m.rejectedAdjustments++
		m.logger.Debug("adjustment skipped",
			zap.String("reason", adj.Reason),
			zap.String("description", adj.Description))
		return adj, nil
	}

	m.swapLocked(current, adj.Config, adj.Reason)
	return adj, nil
}

// swapLocked installs the new configuration, appends the change record
// and publishes ConfigurationChanged. Caller holds m.mu.
func (m *Manager) swapLocked(previous, next BufferConfiguration, reason string) {
	next = next.normalize()
	m.cfg.Store(&next)

	m.records = append(m.records, AdjustmentRecord{
		Timestamp: m.now(),
		Previous:  previous,
		New:       next,
		Reason:    reason,
	})
	if len(m.records) > adjustmentHistorySize {
		m.records = m.records[1:]
	}
	m.acceptedAdjustments++

	m.logger.Info("buffer configuration changed",
		zap.String("reason", reason),
		zap.String("previous", previous.String()),
		zap.String("new", next.String()))

	m.events.publish(Event{
		Type:     EventConfigurationChanged,
		Previous: &previous,
		Config:   &next,
		Reason:   reason,
	})
}

// HealthScore returns the current [0,1] health grade. An empty history
// is healthy by definition.
func (m *Manager) HealthScore() (float64, error) {
	if !m.running.Load() {
		return 0, ErrNotInitialized
	}
	return healthScore(m.history.Recent(healthWindow)), nil
}

// Statistics returns the buffer statistics consumed by the bitrate
// selector. Counts cover the full retained history.
func (m *Manager) Statistics() (BufferStatistics, error) {
	if !m.running.Load() {
		return BufferStatistics{}, ErrNotInitialized
	}

	all := m.history.All()
	a := analyze(all)

	m.mu.Lock()
	strategy := m.strategy
	total, accepted, rejected := m.totalAdjustments, m.acceptedAdjustments, m.rejectedAdjustments
	m.mu.Unlock()

	return BufferStatistics{
		Config:                m.Config(),
		Strategy:              strategy,
		AverageBufferLevel:    a.AverageBufferLevel,
		Stability:             a.BufferStability,
		UnderrunEvents:        a.underrunCount,
		OverrunEvents:         a.overrunCount,
		StallEvents:           a.stallCount,
		AverageRebufferTimeMs: averageRebufferTime(all, m.interval),
		HealthScore:           healthScore(m.history.Recent(healthWindow)),
		Trend:                 levelTrend(m.history.Recent(analysisWindow)),
		TotalAdjustments:      total,
		AcceptedAdjustments:   accepted,
		RejectedAdjustments:   rejected,
	}, nil
}

// AdjustmentHistory returns the retained change records, oldest first.
func (m *Manager) AdjustmentHistory() []AdjustmentRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AdjustmentRecord, len(m.records))
	copy(out, m.records)
	return out
}

// averageRebufferTime estimates the mean duration of stall episodes
// from runs of consecutive stalled snapshots. A single-snapshot run
// counts one tick interval.
func averageRebufferTime(snapshots []Snapshot, interval time.Duration) float64 {
	var totalMs float64
	runs := 0
	runStart := -1

	flush := func(end int) {
		if runStart < 0 {
			return
		}
		span := snapshots[end].Timestamp.Sub(snapshots[runStart].Timestamp)
		if span <= 0 {
			span = interval
		}
		totalMs += float64(span.Milliseconds())
		runs++
		runStart = -1
	}

	for i, s := range snapshots {
		if s.Stalled {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		flush(i - 1)
	}
	flush(len(snapshots) - 1)

	if runs == 0 {
		return 0
	}
	return totalMs / float64(runs)
}
