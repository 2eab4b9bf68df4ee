package engines

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mangatl/mangatl/internal/ocr"
	"github.com/mangatl/mangatl/internal/translate"
)

func TestOCREngine_Recognize(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req ocrRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(ocrResponse{
			Regions: []ocr.TextRegion{{Text: "hello", BBox: [4]float64{0, 0, 10, 10}}},
		})
	}))
	defer srv.Close()

	e := NewOCREngine("test-engine", srv.URL, "secret", 5*time.Second)
	regions, err := e.Recognize(context.Background(), []byte("fake-image"), ocr.Options{Language: "ja"})
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if len(regions) != 1 || regions[0].Text != "hello" {
		t.Fatalf("unexpected regions: %+v", regions)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("expected Authorization header, got %q", gotAuth)
	}
}

func TestOCREngine_Recognize_EngineError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ocrResponse{Error: "model unavailable"})
	}))
	defer srv.Close()

	e := NewOCREngine("test-engine", srv.URL, "", time.Second)
	if _, err := e.Recognize(context.Background(), []byte("x"), ocr.Options{}); err == nil {
		t.Fatal("expected error from engine-reported failure")
	}
}

func TestOCREngine_Recognize_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	e := NewOCREngine("test-engine", srv.URL, "", time.Second)
	if _, err := e.Recognize(context.Background(), []byte("x"), ocr.Options{}); err == nil {
		t.Fatal("expected error from non-2xx response")
	}
}

func TestTranslateEngine_TranslateBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req translateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		out := make([]string, len(req.Texts))
		for i, s := range req.Texts {
			out[i] = "translated:" + s
		}
		json.NewEncoder(w).Encode(translateResponse{Translations: out})
	}))
	defer srv.Close()

	e := NewTranslateEngine("zhipu-glm4", srv.URL, "key", 5*time.Second)
	if e.ID() != "zhipu-glm4" {
		t.Fatalf("ID() = %q", e.ID())
	}

	out, err := e.TranslateBatch(context.Background(), []string{"a", "b"}, "en")
	if err != nil {
		t.Fatalf("TranslateBatch: %v", err)
	}
	want := []string{"translated:a", "translated:b"}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("out[%d] = %q, want %q", i, out[i], want[i])
		}
	}
}

func TestTranslateEngine_TranslateBatch_SensitiveContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(translateResponse{Sensitive: true})
	}))
	defer srv.Close()

	e := NewTranslateEngine("baidu", srv.URL, "", time.Second)
	_, err := e.TranslateBatch(context.Background(), []string{"x"}, "en")
	if err != translate.ErrSensitiveContent {
		t.Fatalf("expected ErrSensitiveContent, got %v", err)
	}
}
