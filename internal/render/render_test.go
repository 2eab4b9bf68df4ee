package render

import (
	"image"
	"image/color"
	"testing"

	"github.com/mangatl/mangatl/internal/textgroup"
)

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestPage_InpaintsAndDraws(t *testing.T) {
	src := solidImage(200, 200, color.RGBA{R: 10, G: 10, B: 10, A: 255})
	groups := []textgroup.Group{
		{BBox: textgroup.Quad{10, 10, 90, 90}, SourceText: "hello", Direction: "horizontal", MergedCount: 1},
	}
	translations := GroupText{"hello": "hi"}

	out, err := Page(src, groups, translations)
	if err != nil {
		t.Fatalf("Page: %v", err)
	}

	// A pixel well inside the bbox, away from any glyph ink, should now be
	// white (inpainted) rather than the original dark fill.
	r, g, b, _ := out.At(80, 15).RGBA()
	if r>>8 < 200 || g>>8 < 200 || b>>8 < 200 {
		t.Errorf("expected inpainted region to be near-white, got (%d,%d,%d)", r>>8, g>>8, b>>8)
	}

	// Outside the bbox, the original fill must be untouched.
	r, g, b, _ = out.At(150, 150).RGBA()
	if r>>8 != 10 || g>>8 != 10 || b>>8 != 10 {
		t.Errorf("expected untouched region outside bbox, got (%d,%d,%d)", r>>8, g>>8, b>>8)
	}
}

func TestPage_MissingTranslationFallsBackToSource(t *testing.T) {
	src := solidImage(100, 100, color.White)
	groups := []textgroup.Group{
		{BBox: textgroup.Quad{0, 0, 50, 50}, SourceText: "untranslated", Direction: "horizontal", MergedCount: 1},
	}

	out, err := Page(src, groups, GroupText{})
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if out == nil {
		t.Fatal("expected non-nil output image")
	}
}

func TestUnsupportedGlyphs_FlagsNonASCII(t *testing.T) {
	if n := UnsupportedGlyphs("hello"); n != 0 {
		t.Errorf("expected 0 unsupported glyphs for ASCII text, got %d", n)
	}
	if n := UnsupportedGlyphs("你好"); n != 2 {
		t.Errorf("expected 2 unsupported glyphs for CJK text, got %d", n)
	}
	if n := UnsupportedGlyphs("hi 世界"); n != 2 {
		t.Errorf("expected 2 unsupported glyphs for mixed text, got %d", n)
	}
}

func TestPage_CJKTextRendersNoInk(t *testing.T) {
	// Documents the known ASCII-only glyph coverage limitation described in
	// the package doc: CJK translated text draws no visible glyph pixels at
	// all, rather than silently producing wrong-but-present output. Callers
	// must use UnsupportedGlyphs to detect and log this case.
	src := solidImage(100, 100, color.White)
	groups := []textgroup.Group{
		{BBox: textgroup.Quad{0, 0, 80, 80}, SourceText: "hello", Direction: "vertical", MergedCount: 1},
	}
	translations := GroupText{"hello": "你好世界"}

	out, err := Page(src, groups, translations)
	if err != nil {
		t.Fatalf("Page: %v", err)
	}

	for y := 0; y < 80; y++ {
		for x := 0; x < 80; x++ {
			r, g, b, _ := out.At(x, y).RGBA()
			if r>>8 < 200 || g>>8 < 200 || b>>8 < 200 {
				t.Fatalf("expected no glyph ink for unsupported CJK runes, found dark pixel at (%d,%d)", x, y)
			}
		}
	}
}

func TestEncode_ProducesWebPBytes(t *testing.T) {
	src := solidImage(32, 32, color.RGBA{R: 255, A: 255})
	data, err := Encode(src)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty webp bytes")
	}
	// WebP RIFF container magic.
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WEBP" {
		t.Errorf("expected RIFF/WEBP header, got %q", data[:12])
	}
}

func TestFitFontSize_ClampsToBounds(t *testing.T) {
	if s := fitFontSize(1000, 1000, 1, 1, 1.3); s > maxFontSizePx {
		t.Errorf("expected clamp to max, got %d", s)
	}
	if s := fitFontSize(1000, 1, 1000, 1, 1.3); s < minFontSizePx {
		t.Errorf("expected clamp to min, got %d", s)
	}
}
