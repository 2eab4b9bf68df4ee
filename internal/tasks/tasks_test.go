package tasks

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mangatl/mangatl/internal/priority"
	"github.com/mangatl/mangatl/internal/store"
	"github.com/mangatl/mangatl/internal/value"
)

func sampleTask(mangaRef string, page int) Task {
	return Task{MangaRef: mangaRef, PageIndex: page, Language: "zh", EngineID: "google", MaxRetries: 3}
}

func TestEnqueue_DedupRejectsWithoutForce(t *testing.T) {
	s := New(3, 100, 3, nil)

	id1, ok := s.Enqueue(sampleTask("/m/one.zip", 1), false)
	if !ok || id1 == "" {
		t.Fatal("expected first enqueue to succeed")
	}
	if _, ok := s.Enqueue(sampleTask("/m/one.zip", 1), false); ok {
		t.Fatal("expected duplicate enqueue to be rejected")
	}
	if _, ok := s.Enqueue(sampleTask("/m/one.zip", 1), true); !ok {
		t.Fatal("expected forced duplicate enqueue to succeed")
	}
}

func TestEnqueue_QueueFull(t *testing.T) {
	s := New(3, 1, 3, nil)
	if _, ok := s.Enqueue(sampleTask("/m/one.zip", 1), false); !ok {
		t.Fatal("expected first enqueue to succeed")
	}
	if _, ok := s.Enqueue(sampleTask("/m/one.zip", 2), false); ok {
		t.Fatal("expected second enqueue to be rejected: queue full")
	}
}

func TestNext_RespectsMaxConcurrent(t *testing.T) {
	s := New(1, 100, 3, nil)
	s.Enqueue(sampleTask("/m/one.zip", 1), false)
	s.Enqueue(sampleTask("/m/one.zip", 2), false)

	first := s.Next()
	if first == nil {
		t.Fatal("expected a task")
	}
	if second := s.Next(); second != nil {
		t.Fatal("expected nil: processing slot already full")
	}
	s.Complete(first.ID, true, "")
	if second := s.Next(); second == nil {
		t.Fatal("expected a task after slot freed")
	}
}

func TestComplete_RetriesThenFails(t *testing.T) {
	s := New(3, 100, 1, nil)
	task := sampleTask("/m/one.zip", 1)
	task.MaxRetries = 1
	id, _ := s.Enqueue(task, false)
	t0 := s.Next()
	if t0.ID != id {
		t.Fatal("unexpected task dequeued")
	}

	s.Complete(id, false, "boom")
	_, _, _, failed := s.Snapshot()
	if len(failed) != 0 {
		t.Fatal("expected retry, not terminal failure, on first error")
	}

	retried := s.Next()
	if retried == nil || retried.ID != id {
		t.Fatal("expected the retried task to be requeued")
	}
	if retried.RetryCount != 1 {
		t.Errorf("RetryCount: got %d, want 1", retried.RetryCount)
	}

	s.Complete(id, false, "boom again")
	_, _, _, failed = s.Snapshot()
	if len(failed) != 1 {
		t.Fatal("expected task to land in failed history after exhausting retries")
	}
}

func TestCancel_Pending(t *testing.T) {
	s := New(3, 100, 3, nil)
	id, _ := s.Enqueue(sampleTask("/m/one.zip", 1), false)
	if !s.Cancel(id) {
		t.Fatal("expected cancel of pending task to succeed")
	}
	if task := s.Next(); task != nil {
		t.Fatal("expected no task: cancelled task should not be dequeued")
	}
}

func TestCancel_Processing(t *testing.T) {
	s := New(3, 100, 3, nil)
	id, _ := s.Enqueue(sampleTask("/m/one.zip", 1), false)
	s.Next()
	if !s.Cancel(id) {
		t.Fatal("expected cancel of processing task to succeed")
	}
	if !s.IsCancelled(id) {
		t.Fatal("expected processing task to be flagged cancelled")
	}
	s.FinishCancelled(id)
	_, processing, _, failed := s.Snapshot()
	if len(processing) != 0 {
		t.Fatal("expected processing set to be empty after FinishCancelled")
	}
	if len(failed) != 1 {
		t.Fatal("expected cancelled task to land in history")
	}
}

func TestReorder_PrioritizesCurrentPage(t *testing.T) {
	s := New(3, 100, 3, nil)
	s.Enqueue(sampleTask("/m/one.zip", 9), false)
	s.Enqueue(sampleTask("/m/one.zip", 5), false)
	s.Reorder("/m/one.zip", 5, priority.LTR)

	next := s.Next()
	if next.PageIndex != 5 {
		t.Errorf("expected page 5 to be prioritized, got page %d", next.PageIndex)
	}
}

func TestSweepTimedOut(t *testing.T) {
	s := New(3, 100, 3, nil)
	id, _ := s.Enqueue(sampleTask("/m/one.zip", 1), false)
	task := s.Next()
	task.StartTime = time.Now().UTC().Add(-time.Hour)
	s.processing[id].StartTime = task.StartTime

	n := s.sweepTimedOut(time.Minute)
	if n != 1 {
		t.Fatalf("expected 1 swept task, got %d", n)
	}
	// The task has retries left, so the sweep re-enqueues it as pending.
	pending, _, _, _ := s.Snapshot()
	if pending[0].LastError != "timeout" {
		t.Errorf("expected timeout error, got %q", pending[0].LastError)
	}
}

func TestFlushAndLoad_RoundTripsMetadata(t *testing.T) {
	durable, err := store.Open(filepath.Join(t.TempDir(), "mangatl.db"))
	if err != nil {
		t.Fatalf("open durable store: %v", err)
	}
	defer durable.Close()

	s := New(3, 100, 3, nil)
	task := sampleTask("/m/one.zip", 1)
	task.Metadata = map[string]value.Value{
		"retry_reason": value.String("timeout"),
		"attempt":      value.Int(2),
	}
	if _, ok := s.Enqueue(task, false); !ok {
		t.Fatal("expected enqueue to succeed")
	}
	s.FlushOnce(durable)

	restored := New(3, 100, 3, nil)
	if err := restored.LoadFromStore(durable); err != nil {
		t.Fatalf("load from store: %v", err)
	}

	pending, _, _, _ := restored.Snapshot()
	if len(pending) != 1 {
		t.Fatalf("expected 1 restored task, got %d", len(pending))
	}
	reason, ok := pending[0].Metadata["retry_reason"].AsString()
	if !ok || reason != "timeout" {
		t.Errorf("retry_reason = %q, ok=%v", reason, ok)
	}
	attempt, ok := pending[0].Metadata["attempt"].AsInt()
	if !ok || attempt != 2 {
		t.Errorf("attempt = %d, ok=%v", attempt, ok)
	}
}
