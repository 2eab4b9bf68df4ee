// Package scheduler runs the fixed worker pool (C8) that drains the task
// store and drives each task through the per-page pipeline: OCR -> text
// grouping -> translation -> inpainting & render -> cache store.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mangatl/mangatl/internal/cachekey"
	"github.com/mangatl/mangatl/internal/coordinator"
	"github.com/mangatl/mangatl/internal/fingerprint"
	"github.com/mangatl/mangatl/internal/metrics"
	"github.com/mangatl/mangatl/internal/ocr"
	"github.com/mangatl/mangatl/internal/ratelimit"
	"github.com/mangatl/mangatl/internal/render"
	"github.com/mangatl/mangatl/internal/source"
	"github.com/mangatl/mangatl/internal/store"
	"github.com/mangatl/mangatl/internal/tasks"
	"github.com/mangatl/mangatl/internal/textgroup"
	"github.com/mangatl/mangatl/internal/translate"
)

// OCRProvider and TranslateEngine are the narrow views of internal/ocr and
// internal/translate this package depends on, kept local so tests can stub
// them without constructing the real providers.
type OCRProvider interface {
	Recognize(ctx context.Context, imageBytes []byte, fingerprint string, opts ocr.Options) ([]ocr.TextRegion, error)
}

type TranslateProvider interface {
	TranslateBatch(ctx context.Context, texts []string, targetLang string) []string
}

// Scheduler owns the fixed worker pool:
// `max_concurrent_tasks` workers, each looping on a blocking dequeue and
// running the pipeline stages strictly sequentially within itself.
type Scheduler struct {
	store   *tasks.Store
	loader  source.Loader
	ocr     OCRProvider
	tr      TranslateProvider
	harmon  *translate.HarmonizationMap
	coord   *coordinator.Coordinator
	limiter *ratelimit.Limiter
	metrics *metrics.Collector

	workerCount int
}

// Config bundles the collaborators a Scheduler needs; Harmonization may be
// nil to skip post-translation substitution.
type Config struct {
	Store         *tasks.Store
	Loader        source.Loader
	OCR           OCRProvider
	Translate     TranslateProvider
	Harmonization *translate.HarmonizationMap
	Coordinator   *coordinator.Coordinator
	Limiter       *ratelimit.Limiter
	Metrics       *metrics.Collector
	WorkerCount   int
}

// New constructs a Scheduler from cfg. WorkerCount falls back to 3 if unset.
func New(cfg Config) *Scheduler {
	workerCount := cfg.WorkerCount
	if workerCount < 1 {
		workerCount = 3
	}
	return &Scheduler{
		store:       cfg.Store,
		loader:      cfg.Loader,
		ocr:         cfg.OCR,
		tr:          cfg.Translate,
		harmon:      cfg.Harmonization,
		coord:       cfg.Coordinator,
		limiter:     cfg.Limiter,
		metrics:     cfg.Metrics,
		workerCount: workerCount,
	}
}

// Run spawns the worker pool and blocks until ctx is cancelled, at which
// point every worker finishes its current NextBlocking wait and returns.
func (s *Scheduler) Run(ctx context.Context) error {
	stop := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stop)
	}()

	g, _ := errgroup.WithContext(ctx)
	for i := 0; i < s.workerCount; i++ {
		workerID := i
		g.Go(func() error {
			s.workerLoop(ctx, workerID, stop)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) workerLoop(ctx context.Context, workerID int, stop <-chan struct{}) {
	log.Debug().Int("worker", workerID).Msg("scheduler: worker starting")
	for {
		t := s.store.NextBlocking(stop)
		if t == nil {
			log.Debug().Int("worker", workerID).Msg("scheduler: worker stopping")
			return
		}
		s.runTask(ctx, *t)
	}
}

func (s *Scheduler) runTask(ctx context.Context, t tasks.Task) {
	if s.metrics != nil {
		s.metrics.IncrementActive()
		defer s.metrics.DecrementActive()
	}

	outcome, success, failErr := s.pipeline(ctx, t)
	if s.metrics != nil && success {
		s.metrics.Record(outcome)
	}

	errMsg := ""
	if failErr != nil {
		errMsg = failErr.Error()
		log.Warn().Str("task_id", t.ID).Str("manga_ref", t.MangaRef).Int("page", t.PageIndex).Err(failErr).Msg("scheduler: task failed")
	}
	s.store.Complete(t.ID, success, errMsg)
}

// pipeline runs one task's OCR -> textgroup -> translate -> render ->
// cache-store sequence, re-checking cancellation at each stage boundary.
func (s *Scheduler) pipeline(ctx context.Context, t tasks.Task) (metrics.TaskOutcome, bool, error) {
	var outcome metrics.TaskOutcome

	if s.cancelled(t.ID) {
		return outcome, false, nil
	}

	imageBytes, err := s.loader.Load(t.MangaRef, t.PageIndex)
	if err != nil {
		return outcome, false, fmt.Errorf("load page: %w", err)
	}

	imgFingerprint, err := cachekey.ContentFingerprint(imageBytes)
	if err != nil {
		return outcome, false, fmt.Errorf("fingerprint: %w", err)
	}

	key := cachekey.Translation{
		MangaRef:  t.MangaRef,
		PageIndex: t.PageIndex,
		Language:  t.Language,
		EngineID:  t.EngineID,
	}.Normalize()

	if !t.ForceRetranslate {
		if hit := s.coord.Lookup(key, imgFingerprint.String()); hit.Found {
			outcome.CacheHit = true
			return outcome, true, nil
		}
	}

	if s.cancelled(t.ID) {
		return outcome, false, nil
	}

	if s.limiter != nil {
		if err := s.limiter.Allow(t.EngineID); err != nil {
			return outcome, false, fmt.Errorf("rate limited: %w", err)
		}
	}

	regions, err := s.ocr.Recognize(ctx, imageBytes, imgFingerprint.String(), ocr.Options{Language: t.Language})
	if err != nil {
		return outcome, false, fmt.Errorf("ocr: %w", err)
	}
	outcome.RegionsRecognized = len(regions)

	if s.cancelled(t.ID) {
		return outcome, false, nil
	}

	groups := textgroup.Build(regions)

	if s.cancelled(t.ID) {
		return outcome, false, nil
	}

	sourceTexts := make([]string, len(groups))
	for i, g := range groups {
		sourceTexts[i] = g.SourceText
	}
	translated := s.tr.TranslateBatch(ctx, sourceTexts, t.Language)

	translations := make(render.GroupText, len(groups))
	unsupportedGlyphs := 0
	for i, g := range groups {
		text := g.SourceText
		if i < len(translated) {
			text = translated[i]
		}
		if s.harmon != nil {
			text = s.harmon.Apply(text)
		}
		translations[g.SourceText] = text
		outcome.CharsTranslated += len([]rune(text))
		unsupportedGlyphs += render.UnsupportedGlyphs(text)
	}
	if unsupportedGlyphs > 0 {
		log.Warn().Str("task_id", t.ID).Str("language", t.Language).Int("unsupported_glyphs", unsupportedGlyphs).
			Msg("render: translated text contains glyphs outside the ASCII bitmap face; those runes will render blank")
	}

	if s.cancelled(t.ID) {
		return outcome, false, nil
	}

	_, src, err := fingerprint.Canonicalize(imageBytes)
	if err != nil {
		return outcome, false, fmt.Errorf("decode source image: %w", err)
	}

	rendered, err := render.Page(src, groups, translations)
	if err != nil {
		return outcome, false, fmt.Errorf("render: %w", err)
	}

	encoded, err := render.Encode(rendered)
	if err != nil {
		return outcome, false, fmt.Errorf("encode rendered page: %w", err)
	}

	textGroupsJSON, _ := marshalGroups(groups)
	s.coord.Store(key, encoded, imgFingerprint.String(), &store.ResultRecord{
		TextGroups:    textGroupsJSON,
		RenderedBytes: encoded,
		CreatedAt:     time.Now().UTC(),
		LastAccessed:  time.Now().UTC(),
	})

	return outcome, true, nil
}

func marshalGroups(groups []textgroup.Group) ([]byte, error) {
	return json.Marshal(groups)
}

func (s *Scheduler) cancelled(taskID string) bool {
	if s.store.IsCancelled(taskID) {
		s.store.FinishCancelled(taskID)
		return true
	}
	return false
}
