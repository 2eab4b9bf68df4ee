package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrOCRCacheMiss is returned when no cached OCR result matches.
var ErrOCRCacheMiss = errors.New("store: ocr cache miss")

// OCRCacheRecord is a durable row in ocr_cache: recognized text regions for
// a given (image fingerprint, OCR options hash) pair. Recognition is
// deterministic for identical inputs, so this cache never needs
// invalidation beyond the fingerprint itself changing.
type OCRCacheRecord struct {
	Fingerprint string
	OptionsHash string
	Regions     []byte
	CreatedAt   time.Time
}

// PutOCRResult stores recognized regions, replacing any prior entry for the
// same (fingerprint, options) pair.
func (s *Store) PutOCRResult(r OCRCacheRecord) error {
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.writer.Exec(
		`INSERT INTO ocr_cache (fingerprint, options_hash, regions, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(fingerprint, options_hash) DO UPDATE SET regions = excluded.regions`,
		r.Fingerprint, r.OptionsHash, r.Regions, createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("store: put ocr result: %w", err)
	}
	return nil
}

// GetOCRResult fetches cached regions for a (fingerprint, options) pair.
func (s *Store) GetOCRResult(fingerprint, optionsHash string) (OCRCacheRecord, error) {
	var r OCRCacheRecord
	var createdAt string
	err := s.reader.QueryRow(
		`SELECT fingerprint, options_hash, regions, created_at
		 FROM ocr_cache WHERE fingerprint = ? AND options_hash = ?`,
		fingerprint, optionsHash,
	).Scan(&r.Fingerprint, &r.OptionsHash, &r.Regions, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return OCRCacheRecord{}, ErrOCRCacheMiss
	}
	if err != nil {
		return OCRCacheRecord{}, fmt.Errorf("store: get ocr result: %w", err)
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return r, nil
}

// DeleteOCRResultsForFingerprint removes every cached OCR result for an
// image fingerprint, used when the source image is known to have changed.
func (s *Store) DeleteOCRResultsForFingerprint(fingerprint string) error {
	_, err := s.writer.Exec(`DELETE FROM ocr_cache WHERE fingerprint = ?`, fingerprint)
	if err != nil {
		return fmt.Errorf("store: delete ocr results: %w", err)
	}
	return nil
}
