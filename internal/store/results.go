package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ResultRecord is a durable row in structured_results: the Translation
// Artifact for one (translation key, content fingerprint) pair. TextGroups
// holds the serialized list of translated text groups; RenderedBytes is the
// optional pre-rendered WebP page, nil if rendering is produced lazily.
type ResultRecord struct {
	TranslationKey string
	MangaRef       string
	PageIndex      int
	Language       string
	EngineID       string
	Fingerprint    string
	TextGroups     []byte
	RenderedBytes  []byte
	CreatedAt      time.Time
	LastAccessed   time.Time
	AccessCount    int
}

// ErrResultNotFound is returned when no structured result row matches.
var ErrResultNotFound = errors.New("store: structured result not found")

// PutResult inserts or replaces the structured result for a translation key.
// A fresh fingerprint does not replace a stale row for the same key, since
// fingerprint is part of the primary key and a new row is inserted: callers that detect a
// fingerprint mismatch should call DeleteResultsForKey first to drop the
// stale row rather than accumulate orphaned fingerprints.
func (s *Store) PutResult(r ResultRecord) error {
	now := time.Now().UTC().Format(time.RFC3339)
	createdAt := now
	if !r.CreatedAt.IsZero() {
		createdAt = r.CreatedAt.UTC().Format(time.RFC3339)
	}
	_, err := s.writer.Exec(
		`INSERT INTO structured_results
		 (translation_key, manga_ref, page_index, language, engine_id, fingerprint,
		  text_groups, rendered_bytes, created_at, last_accessed, access_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		 ON CONFLICT(translation_key, fingerprint) DO UPDATE SET
		   text_groups = excluded.text_groups,
		   rendered_bytes = excluded.rendered_bytes,
		   last_accessed = excluded.last_accessed`,
		r.TranslationKey, r.MangaRef, r.PageIndex, r.Language, r.EngineID, r.Fingerprint,
		r.TextGroups, r.RenderedBytes, createdAt, now,
	)
	if err != nil {
		return fmt.Errorf("store: put result: %w", err)
	}
	return nil
}

// GetResult fetches the structured result for a translation key only if its
// stored fingerprint matches currentFingerprint; otherwise it returns
// ErrResultNotFound without itself deleting anything — it doesn't know
// whether "no row" means no row exists at all or a stale one does under a
// different fingerprint. internal/coordinator's safeResultGet calls
// DeleteResultsForKey on any ErrResultNotFound to evict that stale row.
func (s *Store) GetResult(translationKey, currentFingerprint string) (ResultRecord, error) {
	row := s.reader.QueryRow(
		`SELECT translation_key, manga_ref, page_index, language, engine_id, fingerprint,
		        text_groups, rendered_bytes, created_at, last_accessed, access_count
		 FROM structured_results WHERE translation_key = ? AND fingerprint = ?`,
		translationKey, currentFingerprint,
	)
	r, err := scanResult(row)
	if err != nil {
		return ResultRecord{}, err
	}

	if _, err := s.writer.Exec(
		`UPDATE structured_results SET last_accessed = ?, access_count = access_count + 1
		 WHERE translation_key = ? AND fingerprint = ?`,
		time.Now().UTC().Format(time.RFC3339), translationKey, currentFingerprint,
	); err != nil {
		return ResultRecord{}, fmt.Errorf("store: touch result: %w", err)
	}
	r.AccessCount++
	return r, nil
}

// DeleteResultsForKey removes every stored fingerprint variant for a
// translation key, used when the source image is confirmed stale.
func (s *Store) DeleteResultsForKey(translationKey string) error {
	_, err := s.writer.Exec(`DELETE FROM structured_results WHERE translation_key = ?`, translationKey)
	if err != nil {
		return fmt.Errorf("store: delete results for key: %w", err)
	}
	return nil
}

// DeleteResultsByMangaRef removes every structured result row for mangaRef,
// across every page, language, and engine, returning the count removed. Used
// by the cache coordinator's invalidate(manga_ref) to scrub C4 when the
// underlying source changes.
func (s *Store) DeleteResultsByMangaRef(mangaRef string) (int64, error) {
	result, err := s.writer.Exec(`DELETE FROM structured_results WHERE manga_ref = ?`, mangaRef)
	if err != nil {
		return 0, fmt.Errorf("store: delete results for manga ref: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: delete results for manga ref rows affected: %w", err)
	}
	return n, nil
}

// ListResults returns every structured result row, for administrative
// listings. RenderedBytes is omitted from each row to keep the listing cheap;
// callers needing pixels should use GetResult for a specific key.
func (s *Store) ListResults() ([]ResultRecord, error) {
	rows, err := s.reader.Query(
		`SELECT translation_key, manga_ref, page_index, language, engine_id, fingerprint,
		        text_groups, created_at, last_accessed, access_count
		 FROM structured_results`,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list results: %w", err)
	}
	defer rows.Close()

	var out []ResultRecord
	for rows.Next() {
		var r ResultRecord
		var createdAt, lastAccessed string
		if err := rows.Scan(
			&r.TranslationKey, &r.MangaRef, &r.PageIndex, &r.Language, &r.EngineID, &r.Fingerprint,
			&r.TextGroups, &createdAt, &lastAccessed, &r.AccessCount,
		); err != nil {
			return nil, fmt.Errorf("store: scan listed result: %w", err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		r.LastAccessed, _ = time.Parse(time.RFC3339, lastAccessed)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list results rows: %w", err)
	}
	return out, nil
}

// PruneResultsOlderThan deletes structured results last accessed before cutoff.
func (s *Store) PruneResultsOlderThan(cutoff time.Time) (int64, error) {
	result, err := s.writer.Exec(
		`DELETE FROM structured_results WHERE last_accessed < ?`,
		cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("store: prune results: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: prune results rows affected: %w", err)
	}
	return n, nil
}

func scanResult(row rowScanner) (ResultRecord, error) {
	var r ResultRecord
	var createdAt, lastAccessed string
	err := row.Scan(
		&r.TranslationKey, &r.MangaRef, &r.PageIndex, &r.Language, &r.EngineID, &r.Fingerprint,
		&r.TextGroups, &r.RenderedBytes, &createdAt, &lastAccessed, &r.AccessCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ResultRecord{}, ErrResultNotFound
	}
	if err != nil {
		return ResultRecord{}, fmt.Errorf("store: scan result: %w", err)
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	r.LastAccessed, _ = time.Parse(time.RFC3339, lastAccessed)
	return r, nil
}
