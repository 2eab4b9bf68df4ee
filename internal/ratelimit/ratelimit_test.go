package ratelimit

import (
	"errors"
	"testing"
	"time"
)

func TestAllow_WithinBurst(t *testing.T) {
	l := New(1, 3, nil)
	for i := 0; i < 3; i++ {
		if err := l.Allow("google"); err != nil {
			t.Fatalf("Allow() call %d error = %v, want nil", i, err)
		}
	}
}

func TestAllow_ExceedsBurst(t *testing.T) {
	l := New(1, 1, nil)
	if err := l.Allow("google"); err != nil {
		t.Fatalf("first Allow() error = %v, want nil", err)
	}
	err := l.Allow("google")
	var exceeded *ExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("second Allow() error = %v, want *ExceededError", err)
	}
	if exceeded.EngineID != "google" {
		t.Errorf("EngineID = %q, want google", exceeded.EngineID)
	}
}

func TestAllow_RefillsOverTime(t *testing.T) {
	l := New(100, 1, nil)
	if err := l.Allow("google"); err != nil {
		t.Fatalf("first Allow() error = %v, want nil", err)
	}
	time.Sleep(20 * time.Millisecond)
	if err := l.Allow("google"); err != nil {
		t.Errorf("Allow() after refill window error = %v, want nil", err)
	}
}

func TestAllow_PerEngineIsolation(t *testing.T) {
	l := New(1, 1, map[string]Limits{"google": {Rate: 1, Burst: 1}})
	if err := l.Allow("google"); err != nil {
		t.Fatalf("Allow(google) error = %v", err)
	}
	if err := l.Allow("deepl"); err != nil {
		t.Errorf("Allow(deepl) should use its own bucket, error = %v", err)
	}
}

func TestReconfigure(t *testing.T) {
	l := New(1, 1, nil)
	if err := l.Allow("google"); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	l.Reconfigure(1, 1, nil)
	if err := l.Allow("google"); err != nil {
		t.Errorf("Allow() after reconfigure error = %v, want nil (bucket rebuilt)", err)
	}
}
