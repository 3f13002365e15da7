package buffer

import (
	"testing"
)

func testBase() BufferConfiguration {
	return SeedConfig{
		MinBufferMs:         5000,
		MaxBufferMs:         30000,
		BufferForPlaybackMs: 2500,
		RebufferTimeoutMs:   10000,
	}.baseConfiguration()
}

func TestBaselineInvariants(t *testing.T) {
	strategies := []Strategy{StrategyMinimal, StrategyNormal, StrategyBalanced, StrategyAggressive}
	qualities := []ConnectionQuality{QualityPoor, QualityFair, QualityGood, QualityExcellent}

	base := testBase()
	for _, s := range strategies {
		for _, q := range qualities {
			t.Run(s.String()+"/"+q.String(), func(t *testing.T) {
				cfg := scaleForNetwork(baselineFor(s, base), q)
				if cfg.MinBufferMs > cfg.MaxBufferMs {
					t.Errorf("min %d exceeds max %d", cfg.MinBufferMs, cfg.MaxBufferMs)
				}
				if cfg.PlaybackBufferMs > cfg.PlaybackRebufferMs {
					t.Errorf("playback threshold %.0f exceeds post-rebuffer threshold %.0f",
						cfg.PlaybackBufferMs, cfg.PlaybackRebufferMs)
				}
				if cfg.MinBufferMs < 0 || cfg.TargetBufferBytes < 0 {
					t.Errorf("negative field in %v", cfg)
				}
			})
		}
	}
}

func TestBaselineMinimal(t *testing.T) {
	base := testBase()
	cfg := baselineFor(StrategyMinimal, base)

	if cfg.MinBufferMs != 2500 || cfg.MaxBufferMs != 15000 {
		t.Errorf("expected halved buffers, got min=%d max=%d", cfg.MinBufferMs, cfg.MaxBufferMs)
	}
	if cfg.PlaybackBufferMs != 1250 {
		t.Errorf("expected halved playback threshold, got %.0f", cfg.PlaybackBufferMs)
	}
	if cfg.BackBufferMs != 0 {
		t.Errorf("expected back buffer disabled, got %d", cfg.BackBufferMs)
	}
	if cfg.RebufferTimeoutMs != 5000 {
		t.Errorf("expected halved rebuffer timeout, got %d", cfg.RebufferTimeoutMs)
	}
}

func TestBaselineNormalIsIdentity(t *testing.T) {
	base := testBase()
	if got := baselineFor(StrategyNormal, base); got != base {
		t.Errorf("normal baseline should be the base unchanged\n got:  %v\n want: %v", got, base)
	}
}

func TestBaselineBalanced(t *testing.T) {
	base := testBase()
	cfg := baselineFor(StrategyBalanced, base)

	if cfg.MaxBufferMs != 36000 {
		t.Errorf("expected max +20%%, got %d", cfg.MaxBufferMs)
	}
	if cfg.TargetBufferBytes != int64(float64(base.TargetBufferBytes)*1.2) {
		t.Errorf("expected target bytes +20%%, got %d", cfg.TargetBufferBytes)
	}
	if cfg.PlaybackRebufferMs != base.PlaybackRebufferMs*1.3 {
		t.Errorf("expected post-rebuffer threshold +30%%, got %.0f", cfg.PlaybackRebufferMs)
	}
	if cfg.BackBufferMs != base.MinBufferMs {
		t.Errorf("expected back buffer = min buffer, got %d", cfg.BackBufferMs)
	}
}

func TestBaselineAggressive(t *testing.T) {
	base := testBase()
	cfg := baselineFor(StrategyAggressive, base)

	if cfg.MinBufferMs != 10000 || cfg.MaxBufferMs != 60000 {
		t.Errorf("expected doubled buffers, got min=%d max=%d", cfg.MinBufferMs, cfg.MaxBufferMs)
	}
	if cfg.TargetBufferBytes != base.TargetBufferBytes*2 {
		t.Errorf("expected doubled target bytes, got %d", cfg.TargetBufferBytes)
	}
	if cfg.PrioritizeTimeOverSize {
		t.Error("aggressive strategy should make the byte budget authoritative")
	}
	if cfg.RebufferTimeoutMs != 20000 {
		t.Errorf("expected doubled rebuffer timeout, got %d", cfg.RebufferTimeoutMs)
	}
}

func TestScaleForNetwork(t *testing.T) {
	base := testBase()
	cases := []struct {
		quality    ConnectionQuality
		multiplier float64
	}{
		{QualityPoor, 1.5},
		{QualityFair, 1.2},
		{QualityGood, 1.0},
		{QualityExcellent, 0.8},
	}

	for _, tc := range cases {
		t.Run(tc.quality.String(), func(t *testing.T) {
			cfg := scaleForNetwork(base, tc.quality)
			wantMin := int(float64(base.MinBufferMs) * tc.multiplier)
			if cfg.MinBufferMs != wantMin {
				t.Errorf("min: got %d, want %d", cfg.MinBufferMs, wantMin)
			}
			wantMax := int(float64(base.MaxBufferMs) * tc.multiplier)
			if cfg.MaxBufferMs != wantMax {
				t.Errorf("max: got %d, want %d", cfg.MaxBufferMs, wantMax)
			}
			// Scaling must not touch the timeout or back buffer.
			if cfg.RebufferTimeoutMs != base.RebufferTimeoutMs {
				t.Errorf("rebuffer timeout changed: %d", cfg.RebufferTimeoutMs)
			}
		})
	}
}

func TestParseStrategy(t *testing.T) {
	for _, s := range []Strategy{StrategyMinimal, StrategyNormal, StrategyBalanced, StrategyAggressive} {
		got, err := ParseStrategy(s.String())
		if err != nil || got != s {
			t.Errorf("round trip failed for %s: got %v, err %v", s, got, err)
		}
	}
	if _, err := ParseStrategy("turbo"); err == nil {
		t.Error("expected error for unknown strategy")
	}
}
