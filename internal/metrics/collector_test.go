package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestNewCollector_Defaults(t *testing.T) {
	c := NewCollector()

	stats := c.Stats()
	if stats.TotalTasks != 0 {
		t.Errorf("TotalTasks: got %d, want 0", stats.TotalTasks)
	}
	if stats.ActiveTasks != 0 {
		t.Errorf("ActiveTasks: got %d, want 0", stats.ActiveTasks)
	}
}

func TestCollector_Record(t *testing.T) {
	c := NewCollector()

	c.Record(TaskOutcome{RegionsRecognized: 5, CharsTranslated: 200, CacheHit: false})

	stats := c.Stats()
	if stats.TotalTasks != 1 {
		t.Errorf("TotalTasks: got %d, want 1", stats.TotalTasks)
	}
	if stats.RegionsRecognized != 5 {
		t.Errorf("RegionsRecognized: got %d, want 5", stats.RegionsRecognized)
	}
	if stats.CharsTranslated != 200 {
		t.Errorf("CharsTranslated: got %d, want 200", stats.CharsTranslated)
	}
	if stats.CacheMisses != 1 {
		t.Errorf("CacheMisses: got %d, want 1", stats.CacheMisses)
	}
}

func TestCollector_CacheHit(t *testing.T) {
	c := NewCollector()

	c.Record(TaskOutcome{CacheHit: true})

	stats := c.Stats()
	if stats.CacheHits != 1 {
		t.Errorf("CacheHits: got %d, want 1", stats.CacheHits)
	}
	if stats.CacheHitRate != 100 {
		t.Errorf("CacheHitRate: got %f, want 100", stats.CacheHitRate)
	}
}

func TestCollector_ActiveTasks(t *testing.T) {
	c := NewCollector()

	c.IncrementActive()
	c.IncrementActive()

	stats := c.Stats()
	if stats.ActiveTasks != 2 {
		t.Errorf("ActiveTasks after 2 increments: got %d, want 2", stats.ActiveTasks)
	}

	c.DecrementActive()

	stats = c.Stats()
	if stats.ActiveTasks != 1 {
		t.Errorf("ActiveTasks after decrement: got %d, want 1", stats.ActiveTasks)
	}
}

func TestCollector_Uptime(t *testing.T) {
	c := NewCollector()
	stats := c.Stats()
	if stats.Uptime == "" {
		t.Error("Uptime is empty")
	}
}

func TestCollector_ConcurrentRecords(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Record(TaskOutcome{RegionsRecognized: 1, CharsTranslated: 2})
		}()
	}
	wg.Wait()

	stats := c.Stats()
	if stats.TotalTasks != 100 {
		t.Errorf("TotalTasks after 100 concurrent: got %d, want 100", stats.TotalTasks)
	}
}

func TestCollector_RecordError(t *testing.T) {
	c := NewCollector()

	c.RecordError("parse", "google", 400)
	c.RecordError("parse", "google", 400)
	c.RecordError("upstream", "deepl", 502)

	snap := c.Errors().snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 error label combos, got %d", len(snap))
	}

	for _, entry := range snap {
		if entry.labels["type"] == "parse" && entry.labels["engine"] == "google" {
			if entry.value != 2 {
				t.Errorf("parse/google errors: got %d, want 2", entry.value)
			}
		}
	}
}

func TestCollector_ObserveLatency(t *testing.T) {
	c := NewCollector()

	c.ObserveLatency("google", "translate", false, 1.5)
	c.ObserveLatency("google", "translate", false, 2.5)

	snap := c.Latency().snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 latency series, got %d", len(snap))
	}

	h := snap[0]
	if h.count != 2 {
		t.Errorf("count: got %d, want 2", h.count)
	}
	if h.sum != 4.0 {
		t.Errorf("sum: got %f, want 4.0", h.sum)
	}
}

func TestCollector_RecordEngineCall(t *testing.T) {
	c := NewCollector()

	c.RecordEngineCall("google", "success")
	c.RecordEngineCall("google", "success")
	c.RecordEngineCall("google", "error")

	snap := c.EngineCalls().snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 engine call combos, got %d", len(snap))
	}
}

func TestCollector_SetCircuitState(t *testing.T) {
	c := NewCollector()

	c.SetCircuitState("google", 0) // closed
	c.SetCircuitState("google", 1) // open

	snap := c.CircuitState().snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 circuit state entry, got %d", len(snap))
	}
	if snap[0].value != 1 {
		t.Errorf("circuit state: got %f, want 1", snap[0].value)
	}
}

func TestCollector_ObserveStageTime(t *testing.T) {
	c := NewCollector()

	c.ObserveStageTime("ocr", "request", 0.001)
	c.ObserveStageTime("ocr", "response", 0.002)

	snap := c.StageTime().snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 stage time series, got %d", len(snap))
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{2*time.Hour + 30*time.Minute, "2h 30m"},
		{25*time.Hour + 15*time.Minute, "1d 1h 15m"},
	}

	for _, tt := range tests {
		got := formatDuration(tt.d)
		if got != tt.want {
			t.Errorf("formatDuration(%v): got %q, want %q", tt.d, got, tt.want)
		}
	}
}
