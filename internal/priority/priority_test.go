package priority

import "testing"

func TestClassOf(t *testing.T) {
	cases := []struct {
		name      string
		mangaRef  string
		pageIndex int
		curRef    string
		curPage   int
		want      Class
	}{
		{"different work", "B", 5, "A", 5, P3Other},
		{"same page", "A", 5, "A", 5, P0Current},
		{"distance 2", "A", 7, "A", 5, P1Adjacent},
		{"distance 3", "A", 8, "A", 5, P2SameWork},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassOf(tc.mangaRef, tc.pageIndex, tc.curRef, tc.curPage)
			if got != tc.want {
				t.Errorf("ClassOf() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestWeight_OtherWork(t *testing.T) {
	if w := Weight("B", 5, "A", 5, LTR); w != 0.1 {
		t.Errorf("Weight() = %v, want 0.1", w)
	}
}

func TestWeight_CurrentPage(t *testing.T) {
	if w := Weight("A", 5, "A", 5, LTR); w != 1000.0 {
		t.Errorf("Weight() = %v, want 1000.0", w)
	}
}

func TestWeight_BeyondPreloadHorizon(t *testing.T) {
	if w := Weight("A", 11, "A", 5, LTR); w != 0.5 {
		t.Errorf("Weight() = %v, want 0.5", w)
	}
}

func TestWeight_DirectionMultiplier(t *testing.T) {
	forward := Weight("A", 6, "A", 5, LTR)
	backward := Weight("A", 4, "A", 5, LTR)
	if forward <= backward {
		t.Errorf("expected forward weight (%v) > backward weight (%v) for LTR", forward, backward)
	}

	forwardRTL := Weight("A", 6, "A", 5, RTL)
	backwardRTL := Weight("A", 4, "A", 5, RTL)
	if backwardRTL <= forwardRTL {
		t.Errorf("expected backward weight (%v) > forward weight (%v) for RTL", backwardRTL, forwardRTL)
	}
}

func TestShouldPreload(t *testing.T) {
	if ShouldPreload("A", 5, "A", 5, LTR) {
		t.Error("current page should not be a preload candidate")
	}
	if ShouldPreload("B", 6, "A", 5, LTR) {
		t.Error("different work should not preload")
	}
	if !ShouldPreload("A", 6, "A", 5, LTR) {
		t.Error("adjacent page should preload")
	}
	if ShouldPreload("A", 11, "A", 5, LTR) {
		t.Error("page beyond preload horizon should not preload")
	}
}

func TestFavorsDirection(t *testing.T) {
	if !FavorsDirection(11, 10, LTR) {
		t.Error("LTR should favor pages ahead of current")
	}
	if FavorsDirection(9, 10, LTR) {
		t.Error("LTR should not favor pages behind current")
	}
	if !FavorsDirection(9, 10, RTL) {
		t.Error("RTL should favor pages behind current")
	}
	if FavorsDirection(11, 10, RTL) {
		t.Error("RTL should not favor pages ahead of current")
	}
}

func TestPreloadPages_ExcludesOutOfRange(t *testing.T) {
	cands := PreloadPages("A", 0, 3, LTR, 10)
	for _, c := range cands {
		if c.PageIndex < 0 || c.PageIndex >= 3 {
			t.Errorf("got out-of-range page %d", c.PageIndex)
		}
		if c.PageIndex == 0 {
			t.Error("current page should not appear in preload candidates")
		}
	}
}

func TestPreloadPages_RespectsCount(t *testing.T) {
	cands := PreloadPages("A", 50, 1000, LTR, 3)
	if len(cands) != 3 {
		t.Errorf("len(cands) = %d, want 3", len(cands))
	}
}
