// Package textgroup implements the pure text-group builder (C10): it
// filters low-confidence/noise OCR regions, buckets by direction, merges
// overlapping bounding boxes via union-find, and orders the resulting
// groups and their member text in reading order.
package textgroup

import (
	"sort"

	"github.com/mangatl/mangatl/internal/ocr"
)

const minConfidence = 0.8

// Quad is an axis-aligned bounding box, x0,y0,x1,y1.
type Quad [4]float64

// Group is one merged cluster of OCR regions forming a single speech
// bubble's worth of source text.
type Group struct {
	BBox        Quad
	SourceText  string
	Direction   string
	MergedCount int
}

// Build transforms raw OCR regions into reading-ordered text groups.
func Build(regions []ocr.TextRegion) []Group {
	filtered := filter(regions)
	buckets := bucketByDirection(filtered)

	var groups []Group
	for _, dir := range []string{"vertical", "horizontal"} {
		members := buckets[dir]
		if len(members) == 0 {
			continue
		}
		components := unionFindMerge(members)
		for _, comp := range components {
			groups = append(groups, buildGroup(comp, dir))
		}
	}

	sortGroups(groups)
	return groups
}

func filter(regions []ocr.TextRegion) []ocr.TextRegion {
	var out []ocr.TextRegion
	for _, r := range regions {
		if r.Confidence < minConfidence {
			continue
		}
		if ocr.IsNumericOrPunctuation(r.Text) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func bucketByDirection(regions []ocr.TextRegion) map[string][]ocr.TextRegion {
	buckets := map[string][]ocr.TextRegion{}
	for _, r := range regions {
		dir := r.Direction
		if dir != "vertical" && dir != "horizontal" {
			dir = "horizontal"
		}
		buckets[dir] = append(buckets[dir], r)
	}
	return buckets
}

// unionFindMerge groups regions within one direction bucket whose
// axis-aligned bounding boxes intersect, via a standard disjoint-set
// union over pairwise overlap tests.
func unionFindMerge(regions []ocr.TextRegion) [][]ocr.TextRegion {
	n := len(regions)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if bboxesIntersect(regions[i].BBox, regions[j].BBox) {
				union(i, j)
			}
		}
	}

	groupsByRoot := map[int][]ocr.TextRegion{}
	for i, r := range regions {
		root := find(i)
		groupsByRoot[root] = append(groupsByRoot[root], r)
	}

	var components [][]ocr.TextRegion
	for _, comp := range groupsByRoot {
		components = append(components, comp)
	}
	return components
}

func bboxesIntersect(a, b [4]float64) bool {
	return a[0] <= b[2] && b[0] <= a[2] && a[1] <= b[3] && b[1] <= a[3]
}

func buildGroup(members []ocr.TextRegion, direction string) Group {
	sortReadingOrder(members, direction)

	var sb []byte
	for _, m := range members {
		sb = append(sb, []byte(m.Text)...)
	}

	bbox := aggregateBBox(members)

	return Group{
		BBox:        bbox,
		SourceText:  string(sb),
		Direction:   direction,
		MergedCount: len(members),
	}
}

// sortReadingOrder orders the members of one group for concatenation: for
// vertical bubbles, column right->left then top->bottom; for horizontal,
// top->bottom then left->right.
func sortReadingOrder(members []ocr.TextRegion, direction string) {
	sort.SliceStable(members, func(i, j int) bool {
		a, b := members[i].BBox, members[j].BBox
		if direction == "vertical" {
			if a[0] != b[0] {
				return a[0] > b[0] // right to left (larger x first)
			}
			return a[1] < b[1] // then top to bottom
		}
		if a[1] != b[1] {
			return a[1] < b[1] // top to bottom
		}
		return a[0] < b[0] // then left to right
	})
}

func aggregateBBox(members []ocr.TextRegion) Quad {
	if len(members) == 0 {
		return Quad{}
	}
	q := Quad(members[0].BBox)
	for _, m := range members[1:] {
		if m.BBox[0] < q[0] {
			q[0] = m.BBox[0]
		}
		if m.BBox[1] < q[1] {
			q[1] = m.BBox[1]
		}
		if m.BBox[2] > q[2] {
			q[2] = m.BBox[2]
		}
		if m.BBox[3] > q[3] {
			q[3] = m.BBox[3]
		}
	}
	return q
}

// sortGroups orders the page's groups in overall reading order: top to
// bottom for horizontal groups, right to left for vertical ones, with a
// stable tie-break on the top-left coordinate for determinism.
func sortGroups(groups []Group) {
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.Direction == "vertical" && b.Direction == "vertical" {
			if a.BBox[0] != b.BBox[0] {
				return a.BBox[0] > b.BBox[0]
			}
			return a.BBox[1] < b.BBox[1]
		}
		if a.BBox[1] != b.BBox[1] {
			return a.BBox[1] < b.BBox[1]
		}
		return a.BBox[0] < b.BBox[0]
	})
}
