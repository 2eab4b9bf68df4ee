// Package priority derives a task's priority class and continuous
// reading weight from the viewer's current position. All functions here
// are pure: same inputs, same outputs, no I/O, no shared state.
package priority

import "sort"

// Class is the coarse scheduling bucket a task falls into.
type Class int

const (
	P0Current Class = iota
	P1Adjacent
	P2SameWork
	P3Other
)

func (c Class) String() string {
	switch c {
	case P0Current:
		return "P0_CURRENT"
	case P1Adjacent:
		return "P1_ADJACENT"
	case P2SameWork:
		return "P2_SAME_WORK"
	case P3Other:
		return "P3_OTHER"
	default:
		return "unknown"
	}
}

// Direction is the viewer's page-turn direction, used to break distance
// ties and weight pages in the direction the reader is about to move.
type Direction string

const (
	LTR Direction = "ltr"
	RTL Direction = "rtl"
)

const (
	maxPreloadDistance = 5
	baseWeight         = 100.0
	decay              = 0.8
	preloadThreshold   = 10.0
)

func distance(pageIndex, currentPageIndex int) int {
	return Distance(pageIndex, currentPageIndex)
}

// Distance is the absolute page distance between a candidate page and the
// viewer's current page.
func Distance(pageIndex, currentPageIndex int) int {
	d := pageIndex - currentPageIndex
	if d < 0 {
		d = -d
	}
	return d
}

// FavorsDirection reports whether pageIndex lies on the side of
// currentPageIndex that the given reading direction is about to traverse
// next. The task store's pending order does not call it: that order is
// ClassOf, then Weight, then request time.
func FavorsDirection(pageIndex, currentPageIndex int, direction Direction) bool {
	switch direction {
	case LTR:
		return pageIndex > currentPageIndex
	case RTL:
		return pageIndex < currentPageIndex
	default:
		return false
	}
}

// ClassOf derives the priority class of a candidate (mangaRef, pageIndex)
// relative to the viewer's current position.
func ClassOf(mangaRef string, pageIndex int, currentMangaRef string, currentPageIndex int) Class {
	if mangaRef != currentMangaRef {
		return P3Other
	}

	d := distance(pageIndex, currentPageIndex)
	switch {
	case d == 0:
		return P0Current
	case d <= 2:
		return P1Adjacent
	default:
		return P2SameWork
	}
}

// Weight derives the continuous reading weight used to order tasks within
// a class and to rank preload candidates. Higher is more important.
func Weight(mangaRef string, pageIndex int, currentMangaRef string, currentPageIndex int, direction Direction) float64 {
	if mangaRef != currentMangaRef {
		return 0.1
	}

	d := distance(pageIndex, currentPageIndex)
	if d == 0 {
		return 1000.0
	}
	if d > maxPreloadDistance {
		return 0.5
	}

	distanceWeight := baseWeight * pow(decay, d)

	multiplier := 1.0
	switch direction {
	case LTR:
		if pageIndex > currentPageIndex {
			multiplier = 1.2
		} else {
			multiplier = 0.8
		}
	case RTL:
		if pageIndex < currentPageIndex {
			multiplier = 1.2
		} else {
			multiplier = 0.8
		}
	}

	return distanceWeight * multiplier
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// ShouldPreload reports whether a page is a reasonable preload candidate:
// same work, not the current page, within the preload horizon, and above
// the reading-weight threshold.
func ShouldPreload(mangaRef string, pageIndex int, currentMangaRef string, currentPageIndex int, direction Direction) bool {
	if mangaRef != currentMangaRef {
		return false
	}
	if pageIndex == currentPageIndex {
		return false
	}
	if distance(pageIndex, currentPageIndex) > maxPreloadDistance {
		return false
	}
	return Weight(mangaRef, pageIndex, currentMangaRef, currentPageIndex, direction) >= preloadThreshold
}

// Candidate is one ranked preload page.
type Candidate struct {
	PageIndex int
	Class     Class
	Weight    float64
}

// PreloadPages returns the top-count pages (by weight, descending) within
// maxPreloadDistance of currentPageIndex, excluding the current page and
// any index outside [0, totalPages).
func PreloadPages(currentMangaRef string, currentPageIndex, totalPages int, direction Direction, count int) []Candidate {
	var candidates []Candidate

	for offset := 1; offset <= maxPreloadDistance; offset++ {
		for _, p := range []int{currentPageIndex - offset, currentPageIndex + offset} {
			if p < 0 || p >= totalPages {
				continue
			}
			candidates = append(candidates, Candidate{
				PageIndex: p,
				Class:     ClassOf(currentMangaRef, p, currentMangaRef, currentPageIndex),
				Weight:    Weight(currentMangaRef, p, currentMangaRef, currentPageIndex, direction),
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Weight > candidates[j].Weight
	})

	if count < len(candidates) {
		candidates = candidates[:count]
	}
	return candidates
}
