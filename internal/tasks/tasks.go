// Package tasks owns the in-memory task model (C6): a priority-ordered
// pending queue, a processing set capped at max_concurrent, ring buffers
// for recently completed/failed tasks, and a dedup set of in-flight work
// keys. All public operations are atomic with respect to each other,
// guarded by a single mutex, matching the single-writer-behind-a-lock
// pattern used throughout internal/store.
package tasks

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mangatl/mangatl/internal/cachekey"
	"github.com/mangatl/mangatl/internal/events"
	"github.com/mangatl/mangatl/internal/priority"
	"github.com/mangatl/mangatl/internal/store"
	"github.com/mangatl/mangatl/internal/value"
)

// Status mirrors store.TaskStatus so callers outside internal/store don't
// need to import it directly.
type Status = store.TaskStatus

const (
	Pending    = store.TaskPending
	Processing = store.TaskProcessing
	Completed  = store.TaskCompleted
	Failed     = store.TaskFailed
	Cancelled  = store.TaskCancelled
)

// historyLimit bounds the completed/failed ring maps to roughly the last
// 24h of activity for status queries; entries are also
// pruned explicitly by age, this is a hard backstop against unbounded growth.
const historyLimit = 4096

// Task is the in-memory unit of work. RequestTime is preserved across
// retries (aging is never reset) so a task that keeps failing doesn't
// perpetually jump the queue.
type Task struct {
	ID               string
	MangaRef         string
	PageIndex        int
	Language         string
	EngineID         string
	Priority         int
	Status           Status
	RequestTime      time.Time
	StartTime        time.Time
	EndTime          time.Time
	RetryCount       int
	MaxRetries       int
	LastError        string
	ForceRetranslate bool
	Cancelled        bool
	Metadata         map[string]value.Value
}

func (t Task) key() string {
	return cachekey.Translation{
		MangaRef:  t.MangaRef,
		PageIndex: t.PageIndex,
		Language:  t.Language,
		EngineID:  t.EngineID,
	}.String()
}

// Store is the concurrency-safe in-memory task queue plus its durable
// mirror. The durable store is written by a background flusher, not
// synchronously on every mutation, matching a "persistence interval"
// design rather than a write-through cache.
type Store struct {
	mu sync.Mutex

	maxConcurrent int
	maxQueueSize  int
	maxRetries    int

	pending      []*Task
	processing   map[string]*Task
	completed    map[string]*Task
	failed       map[string]*Task
	keysInFlight map[string]struct{}

	bus *events.Bus

	currentMangaRef  string
	currentPageIndex int
	direction        priority.Direction

	cond *sync.Cond
}

// New creates an empty Store. bus may be nil, in which case events are
// dropped (useful in tests that don't care about notifications).
func New(maxConcurrent, maxQueueSize, maxRetries int, bus *events.Bus) *Store {
	if bus == nil {
		bus = events.New()
	}
	s := &Store{
		maxConcurrent: maxConcurrent,
		maxQueueSize:  maxQueueSize,
		maxRetries:    maxRetries,
		processing:    make(map[string]*Task),
		completed:     make(map[string]*Task),
		failed:        make(map[string]*Task),
		keysInFlight:  make(map[string]struct{}),
		bus:           bus,
		direction:     priority.LTR,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Enqueue admits a new task. It returns ("", false) if the queue is full,
// or if a task with the same work key is already pending/processing and
// force is false. Otherwise the task is appended and the pending slice is
// re-sorted, and a TaskAdded event fires.
func (s *Store) Enqueue(t Task, force bool) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := t.key()
	if _, inFlight := s.keysInFlight[key]; inFlight && !force {
		return "", false
	}
	if len(s.pending) >= s.maxQueueSize {
		return "", false
	}

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.RequestTime.IsZero() {
		t.RequestTime = time.Now().UTC()
	}
	if t.MaxRetries == 0 {
		t.MaxRetries = s.maxRetries
	}
	t.Status = Pending
	t.ForceRetranslate = force

	task := t
	s.pending = append(s.pending, &task)
	s.keysInFlight[key] = struct{}{}
	s.sortPendingLocked()
	s.cond.Broadcast()

	s.publish(events.TaskAdded, task.ID, task)
	return task.ID, true
}

// Next returns the highest-priority pending task if the processing set has
// a free slot, moving it into processing and emitting TaskStarted. Returns
// nil if no task is available right now — callers that want to block until
// one is should use NextBlocking.
func (s *Store) Next() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextLocked()
}

func (s *Store) nextLocked() *Task {
	if len(s.processing) >= s.maxConcurrent || len(s.pending) == 0 {
		return nil
	}
	t := s.pending[0]
	s.pending = s.pending[1:]
	t.Status = Processing
	t.StartTime = time.Now().UTC()
	s.processing[t.ID] = t

	s.publish(events.TaskStarted, t.ID, *t)
	return t
}

// NextBlocking waits on the internal condition variable until a task is
// admitted into processing or stop is closed, matching the
// "awaits an internal condition variable when pending is empty" suspension
// point.
func (s *Store) NextBlocking(stop <-chan struct{}) *Task {
	done := make(chan struct{})
	go func() {
		select {
		case <-stop:
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		case <-done:
		}
	}()
	defer close(done)

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if t := s.nextLocked(); t != nil {
			return t
		}
		select {
		case <-stop:
			return nil
		default:
		}
		s.cond.Wait()
		select {
		case <-stop:
			return nil
		default:
		}
	}
}

// Complete transitions a Processing task to Completed or Failed. On
// failure with retries remaining, the task is re-enqueued as Pending with
// an incremented retry count, preserving its original RequestTime so the
// priority ordering's aging is not reset.
func (s *Store) Complete(taskID string, success bool, taskErr string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.processing[taskID]
	if !ok {
		return
	}
	delete(s.processing, taskID)
	t.EndTime = time.Now().UTC()

	if success {
		t.Status = Completed
		delete(s.keysInFlight, t.key())
		s.addHistory(s.completed, t)
		s.publish(events.TaskCompleted, t.ID, *t)
		s.cond.Broadcast()
		return
	}

	t.LastError = taskErr
	if t.RetryCount < t.MaxRetries {
		t.RetryCount++
		t.Status = Pending
		s.pending = append(s.pending, t)
		s.sortPendingLocked()
		s.publish(events.TaskRetried, t.ID, *t)
	} else {
		t.Status = Failed
		delete(s.keysInFlight, t.key())
		s.addHistory(s.failed, t)
		s.publish(events.TaskFailed, t.ID, *t)
	}
	s.cond.Broadcast()
}

// Cancel removes a pending task outright, or flags a processing task as
// Cancelled so its worker observes the flag at the next pipeline stage
// boundary. Returns false if no such task exists.
func (s *Store) Cancel(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, t := range s.pending {
		if t.ID == taskID {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			t.Status = Cancelled
			delete(s.keysInFlight, t.key())
			s.addHistory(s.failed, t)
			s.publish(events.TaskCancelled, t.ID, *t)
			return true
		}
	}
	if t, ok := s.processing[taskID]; ok {
		t.Cancelled = true
		return true
	}
	return false
}

// IsCancelled reports whether a processing task has been flagged for
// cooperative cancellation. Workers call this between pipeline stages.
func (s *Store) IsCancelled(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.processing[taskID]
	return ok && t.Cancelled
}

// FinishCancelled moves a processing task that observed its own Cancelled
// flag into the failed history ring as Cancelled, freeing its slot.
func (s *Store) FinishCancelled(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.processing[taskID]
	if !ok {
		return
	}
	delete(s.processing, taskID)
	delete(s.keysInFlight, t.key())
	t.Status = Cancelled
	t.EndTime = time.Now().UTC()
	s.addHistory(s.failed, t)
	s.cond.Broadcast()
}

// Reorder re-evaluates priority of every pending task against a new
// reading position and re-sorts. Called on set_current_manga.
func (s *Store) Reorder(currentMangaRef string, currentPageIndex int, direction priority.Direction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentMangaRef = currentMangaRef
	s.currentPageIndex = currentPageIndex
	s.direction = direction
	s.sortPendingLocked()
}

// Clear purges tasks matching statusFilter from the queue; a nil filter
// clears pending tasks only (the common "cancel everything queued" case).
func (s *Store) Clear(statusFilter *Status) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	if statusFilter == nil || *statusFilter == Pending {
		n += len(s.pending)
		for _, t := range s.pending {
			delete(s.keysInFlight, t.key())
		}
		s.pending = nil
	}
	if statusFilter != nil && *statusFilter == Completed {
		n += len(s.completed)
		s.completed = make(map[string]*Task)
	}
	if statusFilter != nil && *statusFilter == Failed {
		n += len(s.failed)
		s.failed = make(map[string]*Task)
	}
	s.publish(events.QueueCleared, "", nil)
	return n
}

// Snapshot returns copies of every task across all sets, for persistence
// flushing and status queries.
func (s *Store) Snapshot() (pending, processing, completed, failed []Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.pending {
		pending = append(pending, *t)
	}
	for _, t := range s.processing {
		processing = append(processing, *t)
	}
	for _, t := range s.completed {
		completed = append(completed, *t)
	}
	for _, t := range s.failed {
		failed = append(failed, *t)
	}
	return
}

// Counts returns the current queue/processing lengths, used by
// get_service_status.
func (s *Store) Counts() (queueLength, processingCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending), len(s.processing)
}

// RestorePending re-admits a task recovered from durable storage at
// startup without re-running admission checks (dedup, queue size) — used
// only by the startup loader, which trusts the durable store's contents.
func (s *Store) RestorePending(t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.Status = Pending
	s.pending = append(s.pending, &t)
	s.keysInFlight[t.key()] = struct{}{}
	s.sortPendingLocked()
}

// LoadFromStore re-admits every pending/processing row from durable into s,
// demoting stale processing rows first. A row still marked processing means the previous run crashed
// mid-task, so it is demoted before being restored rather than resumed in
// place.
func (s *Store) LoadFromStore(durable *store.Store) error {
	if _, err := durable.DemoteStaleProcessing(); err != nil {
		return err
	}
	records, err := durable.ListActiveTasks()
	if err != nil {
		return err
	}
	for _, r := range records {
		s.RestorePending(Task{
			ID:               r.TaskID,
			MangaRef:         r.MangaRef,
			PageIndex:        r.PageIndex,
			Language:         r.Language,
			EngineID:         r.EngineID,
			Priority:         r.Priority,
			RequestTime:      r.RequestTime,
			RetryCount:       r.RetryCount,
			MaxRetries:       r.MaxRetries,
			LastError:        r.LastError,
			ForceRetranslate: r.ForceRetranslate,
			Metadata:         decodeMetadata(r.Metadata),
		})
	}
	log.Info().Int("restored", len(records)).Msg("tasks: restored pending queue from durable store")
	return nil
}

// RunFlusher periodically mirrors the in-memory queue's full state to the
// durable store, per a "persistence interval" design (a background
// flush, not a write-through on every mutation).
func (s *Store) RunFlusher(ctx context.Context, durable *store.Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.flushOnce(durable)
		}
	}
}

// FlushOnce mirrors the current in-memory snapshot to durable immediately,
// bypassing the ticker. Used for a final flush on shutdown.
func (s *Store) FlushOnce(durable *store.Store) {
	s.flushOnce(durable)
}

func (s *Store) flushOnce(durable *store.Store) {
	pending, processing, completed, failed := s.Snapshot()
	all := make([]Task, 0, len(pending)+len(processing)+len(completed)+len(failed))
	all = append(all, pending...)
	all = append(all, processing...)
	all = append(all, completed...)
	all = append(all, failed...)

	for _, t := range all {
		rec := store.TaskRecord{
			TaskID:           t.ID,
			MangaRef:         t.MangaRef,
			PageIndex:        t.PageIndex,
			Language:         t.Language,
			EngineID:         t.EngineID,
			Priority:         t.Priority,
			Status:           t.Status,
			RequestTime:      t.RequestTime,
			StartTime:        t.StartTime,
			EndTime:          t.EndTime,
			RetryCount:       t.RetryCount,
			MaxRetries:       t.MaxRetries,
			LastError:        t.LastError,
			ForceRetranslate: t.ForceRetranslate,
			Metadata:         encodeMetadata(t.Metadata),
		}
		if err := durable.UpsertTask(rec); err != nil {
			log.Warn().Err(err).Str("task_id", t.ID).Msg("tasks: flush to durable store failed")
		}
	}
}

// encodeMetadata serialises a task's metadata map to its durable wire form.
// A nil or empty map persists as nil rather than an empty JSON object, so
// rows without metadata don't carry a spurious "{}" column.
func encodeMetadata(m map[string]value.Value) []byte {
	if len(m) == 0 {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		log.Warn().Err(err).Msg("tasks: encoding metadata failed, dropping")
		return nil
	}
	return data
}

// decodeMetadata parses a durable row's metadata column back into a tagged
// Value map. A missing or malformed column yields nil rather than an error,
// since metadata is advisory and must never block task restoration.
func decodeMetadata(data []byte) map[string]value.Value {
	if len(data) == 0 {
		return nil
	}
	var m map[string]value.Value
	if err := json.Unmarshal(data, &m); err != nil {
		log.Warn().Err(err).Msg("tasks: decoding metadata failed, dropping")
		return nil
	}
	return m
}

// RunTimeoutSweep periodically fails processing tasks that have exceeded
// timeout, freeing their worker slots for retry.
func (s *Store) RunTimeoutSweep(ctx context.Context, interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sweepTimedOut(timeout); n > 0 {
				log.Warn().Int("count", n).Msg("tasks: swept timed-out tasks")
			}
		}
	}
}

// RunHistorySweep periodically purges completed/failed entries older than
// maxAge from the in-memory history rings.
func (s *Store) RunHistorySweep(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepHistory(maxAge)
		}
	}
}

// sweepTimedOut scans processing for tasks whose running age exceeds
// timeout, failing them as retryable "timeout" errors. Returns the number
// swept.
func (s *Store) sweepTimedOut(timeout time.Duration) int {
	s.mu.Lock()
	stale := make([]string, 0)
	now := time.Now().UTC()
	for id, t := range s.processing {
		if now.Sub(t.StartTime) > timeout {
			stale = append(stale, id)
		}
	}
	s.mu.Unlock()

	for _, id := range stale {
		s.Complete(id, false, "timeout")
	}
	return len(stale)
}

// addHistory inserts into a ring map, evicting the oldest entry once the
// cap is reached. A real ring buffer keyed by insertion order would need an
// auxiliary slice; a plain map with an age-based sweep (sweepHistory) is
// simpler and matches the "completed/failed older than 24h" cleanup task
// simpler than duplicating that logic here.
func (s *Store) addHistory(ring map[string]*Task, t *Task) {
	if len(ring) >= historyLimit {
		var oldestID string
		var oldestTime time.Time
		for id, e := range ring {
			if oldestTime.IsZero() || e.EndTime.Before(oldestTime) {
				oldestID, oldestTime = id, e.EndTime
			}
		}
		delete(ring, oldestID)
	}
	ring[t.ID] = t
}

// sweepHistory purges completed/failed entries older than maxAge.
func (s *Store) sweepHistory(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().UTC().Add(-maxAge)
	n := 0
	for id, t := range s.completed {
		if t.EndTime.Before(cutoff) {
			delete(s.completed, id)
			n++
		}
	}
	for id, t := range s.failed {
		if t.EndTime.Before(cutoff) {
			delete(s.failed, id)
			n++
		}
	}
	return n
}

func (s *Store) sortPendingLocked() {
	cur, page, dir := s.currentMangaRef, s.currentPageIndex, s.direction
	sort.SliceStable(s.pending, func(i, j int) bool {
		a, b := s.pending[i], s.pending[j]
		ca := priority.ClassOf(a.MangaRef, a.PageIndex, cur, page)
		cb := priority.ClassOf(b.MangaRef, b.PageIndex, cur, page)
		if ca != cb {
			return ca < cb
		}
		wa := priority.Weight(a.MangaRef, a.PageIndex, cur, page, dir)
		wb := priority.Weight(b.MangaRef, b.PageIndex, cur, page, dir)
		if wa != wb {
			return wa > wb
		}
		return a.RequestTime.Before(b.RequestTime)
	})
}

func (s *Store) publish(typ events.Type, taskID string, payload any) {
	s.bus.Publish(events.Event{Type: typ, TaskID: taskID, Payload: payload})
}
