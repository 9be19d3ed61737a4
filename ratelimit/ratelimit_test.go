package ratelimit

import (
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantRate  float64
		wantBurst int
	}{
		{name: "default values", cfg: Config{}, wantRate: 100, wantBurst: 10},
		{name: "custom values", cfg: Config{Rate: 50, Burst: 5}, wantRate: 50, wantBurst: 5},
		{name: "zero rate uses default", cfg: Config{Rate: 0, Burst: 5}, wantRate: 100, wantBurst: 5},
		{name: "zero burst uses default", cfg: Config{Rate: 50, Burst: 0}, wantRate: 50, wantBurst: 10},
	}

	for _, test := range tests {
		l := New(test.cfg)
		if l.rate != test.wantRate {
			t.Errorf("[%s]: rate = %f, want %f", test.name, l.rate, test.wantRate)
		}
		if l.burst != test.wantBurst {
			t.Errorf("[%s]: burst = %d, want %d", test.name, l.burst, test.wantBurst)
		}
	}
}

func TestAllowWithinBurst(t *testing.T) {
	l := New(Config{Rate: 1, Burst: 3})
	for i := 0; i < 3; i++ {
		if !l.Allow("dest") {
			t.Fatalf("request %d: Allow = false, want true within burst", i)
		}
	}
	if l.Allow("dest") {
		t.Fatalf("request past burst: Allow = true, want false")
	}
}

func TestAllowIndependentKeys(t *testing.T) {
	l := New(Config{Rate: 1, Burst: 1})
	if !l.Allow("a") {
		t.Fatalf("Allow(a) = false, want true")
	}
	if !l.Allow("b") {
		t.Fatalf("Allow(b) = false, want true on a separate key")
	}
	if l.Allow("a") {
		t.Fatalf("second Allow(a) = true, want false")
	}
}

func TestAllowRefillsOverTime(t *testing.T) {
	l := New(Config{Rate: 1000, Burst: 1})
	if !l.Allow("dest") {
		t.Fatalf("Allow = false, want true")
	}
	time.Sleep(5 * time.Millisecond)
	if !l.Allow("dest") {
		t.Fatalf("Allow after refill window = false, want true")
	}
}

func TestAllowNilLimiterAlwaysAllows(t *testing.T) {
	var l *Limiter
	if !l.Allow("dest") {
		t.Fatalf("nil Limiter Allow = false, want true")
	}
}

func TestCleanupRemovesStaleBuckets(t *testing.T) {
	l := New(Config{Rate: 1, Burst: 1})
	l.Allow("stale")
	time.Sleep(5 * time.Millisecond)
	l.Allow("fresh")

	l.Cleanup(2 * time.Millisecond)

	if got := l.Stats(); got != 1 {
		t.Fatalf("Stats after Cleanup = %d, want 1", got)
	}
}

func TestStatsNilLimiter(t *testing.T) {
	var l *Limiter
	if got := l.Stats(); got != 0 {
		t.Fatalf("nil Limiter Stats = %d, want 0", got)
	}
}
