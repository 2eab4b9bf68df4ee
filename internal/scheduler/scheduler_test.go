package scheduler

import (
	"context"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/mangatl/mangatl/internal/coordinator"
	"github.com/mangatl/mangatl/internal/events"
	"github.com/mangatl/mangatl/internal/imagecache"
	"github.com/mangatl/mangatl/internal/memcache"
	"github.com/mangatl/mangatl/internal/metrics"
	"github.com/mangatl/mangatl/internal/ocr"
	"github.com/mangatl/mangatl/internal/tasks"
	"github.com/mangatl/mangatl/internal/testutil"
)

type fakeLoader struct {
	data []byte
}

func (f *fakeLoader) Load(mangaRef string, pageIndex int) ([]byte, error) {
	return f.data, nil
}

type fakeOCR struct {
	regions []ocr.TextRegion
}

func (f *fakeOCR) Recognize(_ context.Context, _ []byte, _ string, _ ocr.Options) ([]ocr.TextRegion, error) {
	return f.regions, nil
}

type fakeTranslate struct{}

func (f *fakeTranslate) TranslateBatch(_ context.Context, texts []string, _ string) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = "EN:" + t
	}
	return out
}

func newTestScheduler(t *testing.T) (*Scheduler, *tasks.Store) {
	t.Helper()
	st := testutil.NewTestStore(t)
	mem := memcache.New(64)
	img, err := imagecache.Open(t.TempDir())
	if err != nil {
		t.Fatalf("imagecache.Open: %v", err)
	}
	coord := coordinator.New(mem, img, st)

	taskStore := tasks.New(3, 100, 3, events.New())

	page := testutil.SamplePageImage(200, 200, color.RGBA{R: 200, G: 200, B: 200, A: 255})
	regions := []ocr.TextRegion{
		{BBox: [4]float64{10, 10, 90, 40}, Text: "こんにちは", Confidence: 0.95, Direction: "horizontal"},
	}

	sched := New(Config{
		Store:       taskStore,
		Loader:      &fakeLoader{data: page},
		OCR:         &fakeOCR{regions: regions},
		Translate:   &fakeTranslate{},
		Coordinator: coord,
		Metrics:     metrics.NewCollector(),
		WorkerCount: 2,
	})
	return sched, taskStore
}

func TestScheduler_ProcessesTaskToCompletion(t *testing.T) {
	sched, taskStore := newTestScheduler(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()

	taskID, ok := taskStore.Enqueue(tasks.Task{
		MangaRef:    "/m/one.zip",
		PageIndex:   0,
		Language:    "en",
		EngineID:    "google",
		Priority:    0,
		RequestTime: time.Now().UTC(),
		MaxRetries:  3,
	}, false)
	if !ok {
		t.Fatal("expected task to be admitted")
	}

	deadline := time.After(5 * time.Second)
	for {
		_, _, completed, failed := taskStore.Snapshot()
		done := false
		for _, c := range completed {
			if c.ID == taskID {
				done = true
			}
		}
		for _, f := range failed {
			if f.ID == taskID {
				t.Fatalf("task failed unexpectedly: %s", f.LastError)
			}
		}
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for task completion")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	wg.Wait()
}
