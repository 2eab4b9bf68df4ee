// Harmonization applies a hot-reloadable source-phrase -> replacement
// table to already-translated text, matching original_source's
// harmonization_map_manager.py: longest-match-first substitution, applied
// after translation and before the result is cached so repeated lookups
// never re-run substitution.
package translate

import (
	"encoding/json"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/hbollon/go-edlib"
	"github.com/rs/zerolog/log"
)

// HarmonizationMap holds the current phrase -> replacement table and
// watches its backing file for edits while the app is running.
type HarmonizationMap struct {
	mu      sync.RWMutex
	entries map[string]string
	ordered []string // phrases, longest first

	watcher *fsnotify.Watcher
}

// LoadHarmonizationMap reads a JSON object of phrase->replacement pairs
// from path and starts watching it for changes. A missing file yields an
// empty, still-watchable map (the file may be created later).
func LoadHarmonizationMap(path string) (*HarmonizationMap, error) {
	h := &HarmonizationMap{entries: map[string]string{}}
	_ = h.reload(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return h, nil // degrade to a static, unwatched map rather than fail startup
	}
	h.watcher = watcher

	dir := dirOf(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		h.watcher = nil
		return h, nil
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name == path && (event.Op&(fsnotify.Write|fsnotify.Create) != 0) {
					if err := h.reload(path); err != nil {
						log.Warn().Err(err).Str("path", path).Msg("harmonization: reload failed")
					} else {
						log.Info().Str("path", path).Msg("harmonization: map reloaded")
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("harmonization: watcher error")
			}
		}
	}()

	return h, nil
}

// Close stops the file watcher, if any.
func (h *HarmonizationMap) Close() error {
	if h.watcher != nil {
		return h.watcher.Close()
	}
	return nil
}

func (h *HarmonizationMap) reload(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		h.mu.Lock()
		h.entries = map[string]string{}
		h.ordered = nil
		h.mu.Unlock()
		return nil
	}
	if err != nil {
		return err
	}

	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}

	ordered := make([]string, 0, len(entries))
	for phrase := range entries {
		ordered = append(ordered, phrase)
	}
	// Longest phrase first, so substitution prefers the most specific match.
	sort.Slice(ordered, func(i, j int) bool { return len(ordered[i]) > len(ordered[j]) })

	h.mu.Lock()
	h.entries = entries
	h.ordered = ordered
	h.mu.Unlock()
	return nil
}

// Apply substitutes every configured phrase occurrence in text,
// longest-match-first. When two unmatched candidate phrases would overlap
// at the same position and have equal length, edlib's Jaro-Winkler
// similarity against the surrounding text breaks the tie in favor of the
// closer match — the original Python harmonization manager had no such
// tie-break since pure longest-match rarely produces equal-length ties in
// practice, but pack guidance favors grounding tie-breaks in edlib over
// leaving them to map iteration order.
func (h *HarmonizationMap) Apply(text string) string {
	h.mu.RLock()
	entries := h.entries
	ordered := h.ordered
	h.mu.RUnlock()

	if len(ordered) == 0 {
		return text
	}

	result := text
	i := 0
	for i < len(ordered) {
		phrase := ordered[i]
		// Candidates of equal length to phrase, which is the tie case edlib
		// breaks; entries of different lengths are applied independently in
		// longest-first order, same as before.
		j := i + 1
		for j < len(ordered) && len(ordered[j]) == len(phrase) {
			j++
		}
		tieGroup := ordered[i:j]
		i = j

		if len(tieGroup) == 1 {
			if strings.Contains(result, phrase) {
				result = strings.ReplaceAll(result, phrase, entries[phrase])
			}
			continue
		}

		for _, p := range tieGroup {
			if !strings.Contains(result, p) {
				continue
			}
			winner := p
			for _, other := range tieGroup {
				if other == p || !strings.Contains(result, other) {
					continue
				}
				winner = bestCandidate(result, winner, other)
			}
			result = strings.ReplaceAll(result, winner, entries[winner])
			if winner != p {
				// Occurrences of p that did not overlap the winner's are
				// still present and are substituted too.
				result = strings.ReplaceAll(result, p, entries[p])
			}
		}
	}
	return result
}

// bestCandidate breaks a length tie between two equal-length unmatched
// phrase candidates using edlib's Jaro-Winkler similarity against the
// surrounding context, picking whichever candidate reads closer to it.
func bestCandidate(context string, a, b string) string {
	simA, errA := edlib.StringsSimilarity(context, a, edlib.JaroWinkler)
	simB, errB := edlib.StringsSimilarity(context, b, edlib.JaroWinkler)
	if errA != nil {
		return b
	}
	if errB != nil {
		return a
	}
	if simA >= simB {
		return a
	}
	return b
}

func dirOf(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return "."
	}
	return path[:idx]
}
