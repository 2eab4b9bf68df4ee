package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrTranslationCacheMiss is returned when no cached translation matches.
var ErrTranslationCacheMiss = errors.New("store: translation cache miss")

// PutTranslatedString caches a single successfully translated string,
// keyed by (sha256 of source text, target language, engine). Failed
// translations are never cached.
func (s *Store) PutTranslatedString(sourceHash, targetLang, engineID, translatedText string) error {
	_, err := s.writer.Exec(
		`INSERT INTO translation_cache (source_hash, target_lang, engine_id, translated_text, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(source_hash, target_lang, engine_id) DO UPDATE SET translated_text = excluded.translated_text`,
		sourceHash, targetLang, engineID, translatedText, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("store: put translated string: %w", err)
	}
	return nil
}

// GetTranslatedString fetches a cached translation, if any.
func (s *Store) GetTranslatedString(sourceHash, targetLang, engineID string) (string, error) {
	var text string
	err := s.reader.QueryRow(
		`SELECT translated_text FROM translation_cache WHERE source_hash = ? AND target_lang = ? AND engine_id = ?`,
		sourceHash, targetLang, engineID,
	).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrTranslationCacheMiss
	}
	if err != nil {
		return "", fmt.Errorf("store: get translated string: %w", err)
	}
	return text, nil
}
