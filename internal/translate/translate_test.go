package translate

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mangatl/mangatl/internal/testutil"
)

type fakeEngine struct {
	id        string
	refuse    bool
	translate func(texts []string) []string
}

func (f *fakeEngine) ID() string { return f.id }

func (f *fakeEngine) TranslateBatch(_ context.Context, texts []string, _ string) ([]string, error) {
	if f.refuse {
		return nil, ErrSensitiveContent
	}
	if f.translate != nil {
		return f.translate(texts), nil
	}
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = "TR:" + t
	}
	return out, nil
}

func TestTranslateBatch_LengthPreserving(t *testing.T) {
	st := testutil.NewTestStore(t)
	p := New(&fakeEngine{id: "google"}, nil, st)
	p.batchSize = 2

	out := p.TranslateBatch(context.Background(), []string{"a", "b", "c"}, "en")
	if len(out) != 3 {
		t.Fatalf("expected 3 results, got %d", len(out))
	}
	for i, s := range out {
		if s != "TR:"+[]string{"a", "b", "c"}[i] {
			t.Errorf("unexpected result %d: %q", i, s)
		}
	}
}

func TestTranslateBatch_CachesAndReuses(t *testing.T) {
	st := testutil.NewTestStore(t)
	calls := 0
	engine := &fakeEngine{id: "google", translate: func(texts []string) []string {
		calls++
		out := make([]string, len(texts))
		for i, t := range texts {
			out[i] = "TR:" + t
		}
		return out
	}}
	p := New(engine, nil, st)

	p.TranslateBatch(context.Background(), []string{"hello"}, "en")
	p.TranslateBatch(context.Background(), []string{"hello"}, "en")

	if calls != 1 {
		t.Errorf("expected engine called once (second call served from cache), got %d calls", calls)
	}
}

func TestTranslateBatch_FallbackOnSensitiveContent(t *testing.T) {
	st := testutil.NewTestStore(t)
	primary := &fakeEngine{id: "google", refuse: true}
	fallback := &fakeEngine{id: "deepl"}
	p := New(primary, fallback, st)

	out := p.TranslateBatch(context.Background(), []string{"hello"}, "en")
	if out[0] != "TR:hello" {
		t.Errorf("expected fallback engine result, got %q", out[0])
	}
}

func TestTranslateBatch_FailureMarker(t *testing.T) {
	st := testutil.NewTestStore(t)
	engine := &fakeEngine{id: "google", translate: func(texts []string) []string {
		// Return one result too many to trigger a count mismatch -> per-string
		// fallback, which itself also mismatches -> failure marker.
		return make([]string, len(texts)+1)
	}}
	p := New(engine, nil, st)

	out := p.TranslateBatch(context.Background(), []string{"a", "b"}, "en")
	for i, s := range out {
		if !strings.HasPrefix(s, "[Translation Failed:") {
			t.Errorf("result %d: expected failure marker, got %q", i, s)
		}
	}
}

func TestHarmonizationMap_LongestMatchFirst(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "harmonization_map.json")
	testutil.WriteFile(t, dir, "harmonization_map.json", `{"New York": "NYC", "New York City": "Big Apple"}`)

	h, err := LoadHarmonizationMap(path)
	if err != nil {
		t.Fatalf("LoadHarmonizationMap: %v", err)
	}
	defer h.Close()

	out := h.Apply("I love New York City")
	if out != "I love Big Apple" {
		t.Errorf("expected longest match to win, got %q", out)
	}
}

func TestParseNumberedResponse(t *testing.T) {
	raw := "1. hello\n2. world\n"
	out, err := ParseNumberedResponse(raw, 2)
	if err != nil {
		t.Fatalf("ParseNumberedResponse: %v", err)
	}
	if out[0] != "hello" || out[1] != "world" {
		t.Errorf("unexpected parse: %v", out)
	}
}

func TestParseNumberedResponse_CountMismatch(t *testing.T) {
	raw := "1. hello\n"
	if _, err := ParseNumberedResponse(raw, 2); err == nil {
		t.Fatal("expected error on count mismatch")
	}
}
