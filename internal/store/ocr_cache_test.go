package store

import (
	"errors"
	"testing"
)

func TestPutAndGetOCRResult(t *testing.T) {
	st := newTestStore(t)
	rec := OCRCacheRecord{
		Fingerprint: "fp-1",
		OptionsHash: "opt-1",
		Regions:     []byte(`[{"text":"hi"}]`),
	}
	if err := st.PutOCRResult(rec); err != nil {
		t.Fatalf("PutOCRResult() error = %v", err)
	}

	got, err := st.GetOCRResult("fp-1", "opt-1")
	if err != nil {
		t.Fatalf("GetOCRResult() error = %v", err)
	}
	if string(got.Regions) != string(rec.Regions) {
		t.Errorf("Regions = %s, want %s", got.Regions, rec.Regions)
	}
}

func TestGetOCRResult_Miss(t *testing.T) {
	st := newTestStore(t)
	_, err := st.GetOCRResult("missing", "opt-1")
	if !errors.Is(err, ErrOCRCacheMiss) {
		t.Errorf("error = %v, want ErrOCRCacheMiss", err)
	}
}

func TestPutOCRResult_ReplacesSamePair(t *testing.T) {
	st := newTestStore(t)
	if err := st.PutOCRResult(OCRCacheRecord{Fingerprint: "fp-1", OptionsHash: "opt-1", Regions: []byte("a")}); err != nil {
		t.Fatalf("PutOCRResult() error = %v", err)
	}
	if err := st.PutOCRResult(OCRCacheRecord{Fingerprint: "fp-1", OptionsHash: "opt-1", Regions: []byte("b")}); err != nil {
		t.Fatalf("PutOCRResult() update error = %v", err)
	}
	got, err := st.GetOCRResult("fp-1", "opt-1")
	if err != nil {
		t.Fatalf("GetOCRResult() error = %v", err)
	}
	if string(got.Regions) != "b" {
		t.Errorf("Regions = %s, want b", got.Regions)
	}
}

func TestDeleteOCRResultsForFingerprint(t *testing.T) {
	st := newTestStore(t)
	if err := st.PutOCRResult(OCRCacheRecord{Fingerprint: "fp-1", OptionsHash: "opt-1", Regions: []byte("a")}); err != nil {
		t.Fatalf("PutOCRResult() error = %v", err)
	}
	if err := st.DeleteOCRResultsForFingerprint("fp-1"); err != nil {
		t.Fatalf("DeleteOCRResultsForFingerprint() error = %v", err)
	}
	if _, err := st.GetOCRResult("fp-1", "opt-1"); !errors.Is(err, ErrOCRCacheMiss) {
		t.Errorf("error = %v, want ErrOCRCacheMiss", err)
	}
}
