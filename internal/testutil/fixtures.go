package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"time"

	"github.com/mangatl/mangatl/internal/store"
)

// SamplePageImage returns PNG-encoded bytes for a solid wxh page, useful as
// deterministic input to fingerprinting and caching tests.
func SamplePageImage(w, h int, c color.RGBA) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// SampleTask returns a TaskRecord for (mangaRef="/m/one.zip", page 3, zh,
// google), useful as a baseline across store/tasks/scheduler tests.
func SampleTask(taskID string) store.TaskRecord {
	return store.TaskRecord{
		TaskID:      taskID,
		MangaRef:    "/m/one.zip",
		PageIndex:   3,
		Language:    "zh",
		EngineID:    "google",
		Priority:    0,
		Status:      store.TaskPending,
		RequestTime: time.Now().UTC(),
		MaxRetries:  3,
	}
}

// SampleTextGroupsJSON returns a minimal JSON blob shaped like a serialized
// list of translated text groups, for structured-result cache tests.
func SampleTextGroupsJSON() []byte {
	return []byte(`[{"bbox":[10,10,100,40],"source_text":"こんにちは","translated_text":"Hello","confidence":0.97}]`)
}

// SampleOCRRegionsJSON returns a minimal JSON blob shaped like a serialized
// list of recognized text regions, for OCR-cache tests.
func SampleOCRRegionsJSON() []byte {
	return []byte(`[{"bbox":[10,10,100,40],"text":"こんにちは","confidence":0.95}]`)
}
