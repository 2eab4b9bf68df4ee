// Package render implements the inpainting and text rendering stage (C12):
// erase source text with a solid fill, then lay out and draw translated
// text per TextGroup in a right-to-left, top-to-bottom column walk.
//
// Glyph drawing uses golang.org/x/image/font/basicfont's fixed 7x13 bitmap
// face, which only covers printable ASCII (0x20-0x7E). CJK and other
// non-ASCII scripts have no glyph coverage and draw as blank space; see
// UnsupportedGlyphs, which callers use to detect and log this rather than
// let it pass silently.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/chai2010/webp"

	"github.com/mangatl/mangatl/internal/textgroup"
)

const (
	minFontSizePx = 8
	maxFontSizePx = 1000

	cjkLineSpacing   = 1.1
	otherLineSpacing = 1.3
	cjkCharSpacing   = 0.05 // fraction of font size
	strokeWidthPx    = 2

	// WebPQuality is the lossy quality used when re-encoding the final page.
	WebPQuality = 80
)

// GroupText maps a TextGroup's source text (the key used when building
// groups) to its translated replacement. A missing entry falls back to the
// group's own source text, matching the partial-success policy.
type GroupText map[string]string

// Page renders translated text over img for every group in groups, using
// translations to map each group's source text to its replacement. It never
// mutates img; the returned image is a fresh canvas.
func Page(img image.Image, groups []textgroup.Group, translations GroupText) (image.Image, error) {
	bounds := img.Bounds()
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, img, bounds.Min, draw.Src)

	for _, g := range groups {
		inpaint(canvas, g.BBox)
	}
	for _, g := range groups {
		text := translations[g.SourceText]
		if text == "" {
			text = g.SourceText
		}
		if text == "" {
			continue
		}
		drawGroup(canvas, g, text)
	}

	return canvas, nil
}

// Encode re-encodes img as lossy WebP at WebPQuality, matching the
// persistent image cache's expected container format.
func Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Lossless: false, Quality: WebPQuality}); err != nil {
		return nil, fmt.Errorf("render: encode webp: %w", err)
	}
	return buf.Bytes(), nil
}

// inpaint paints bbox solid white. No texture-aware fill by design: a
// deliberate simplification favoring speed and determinism.
func inpaint(canvas *image.RGBA, bbox textgroup.Quad) {
	r := quadToRect(bbox, canvas.Bounds())
	draw.Draw(canvas, r, image.NewUniform(color.White), image.Point{}, draw.Src)
}

func quadToRect(q textgroup.Quad, clamp image.Rectangle) image.Rectangle {
	x0, y0 := int(q[0]), int(q[1])
	x1, y1 := int(q[2]), int(q[3])
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	r := image.Rect(x0, y0, x1, y1)
	return r.Intersect(clamp)
}

// drawGroup lays out text into columnCount columns (columnCount equals the
// group's merged source-region count) and walks them right to left,
// character by character top to bottom.
func drawGroup(canvas *image.RGBA, g textgroup.Group, text string) {
	r := quadToRect(g.BBox, canvas.Bounds())
	if r.Dx() <= 0 || r.Dy() <= 0 {
		return
	}

	columnCount := g.MergedCount
	if columnCount < 1 {
		columnCount = 1
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return
	}

	cjk := isCJK(text)
	lineSpacing := otherLineSpacing
	charSpacing := 0.0
	if cjk {
		lineSpacing = cjkLineSpacing
	}

	fontSize := fitFontSize(r.Dx()/columnCount, r.Dy(), len(runes), columnCount, lineSpacing)
	if cjk {
		charSpacing = float64(fontSize) * cjkCharSpacing
	}

	face := basicfont.Face7x13

	columnWidth := r.Dx() / columnCount
	runesPerColumn := (len(runes) + columnCount - 1) / columnCount

	idx := 0
	for col := 0; col < columnCount && idx < len(runes); col++ {
		// Right-to-left: column 0 is the rightmost column.
		colX := r.Max.X - (col+1)*columnWidth + columnWidth/2
		y := r.Min.Y + fontSize

		for line := 0; line < runesPerColumn && idx < len(runes); line++ {
			ch := runes[idx]
			idx++
			if y > r.Max.Y {
				break
			}
			drawGlyph(canvas, face, ch, colX, y)
			y += int(float64(fontSize)*lineSpacing + charSpacing)
		}
	}
}

// drawGlyph draws a single rune at (x, y) from the base 7x13 bitmap face,
// with a 2px white stroke for contrast against arbitrary backgrounds.
func drawGlyph(canvas *image.RGBA, face font.Face, ch rune, x, y int) {
	dot := fixed.P(x, y)

	for dx := -strokeWidthPx; dx <= strokeWidthPx; dx++ {
		for dy := -strokeWidthPx; dy <= strokeWidthPx; dy++ {
			if dx == 0 && dy == 0 {
				continue
			}
			drawer := &font.Drawer{
				Dst:  canvas,
				Src:  image.NewUniform(color.White),
				Face: face,
				Dot:  fixed.P(x+dx, y+dy),
			}
			drawer.DrawString(string(ch))
		}
	}

	drawer := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.Black),
		Face: face,
		Dot:  dot,
	}
	drawer.DrawString(string(ch))
}

// fitFontSize picks a font size clamped to [minFontSizePx, maxFontSizePx]
// that keeps the estimated text block within the available column area.
func fitFontSize(colWidth, colHeight, runeCount, columnCount int, lineSpacing float64) int {
	if columnCount < 1 {
		columnCount = 1
	}
	runesPerColumn := (runeCount + columnCount - 1) / columnCount
	if runesPerColumn < 1 {
		runesPerColumn = 1
	}

	bySize := colHeight / int(float64(runesPerColumn)*lineSpacing)
	if bySize < minFontSizePx {
		bySize = minFontSizePx
	}
	if bySize > maxFontSizePx {
		bySize = maxFontSizePx
	}
	if colWidth > 0 && bySize > colWidth {
		bySize = colWidth
	}
	if bySize < minFontSizePx {
		bySize = minFontSizePx
	}
	return bySize
}

// asciiLow and asciiHigh bound the glyph range basicfont.Face7x13 actually
// covers; anything outside it draws as blank space.
const (
	asciiLow  = 0x20
	asciiHigh = 0x7E
)

// UnsupportedGlyphs returns the number of runes in text that the active
// rendering face has no glyph for. A positive count means some of text will
// render as blank space; callers (the scheduler) log this instead of
// letting translated CJK text disappear unnoticed.
func UnsupportedGlyphs(text string) int {
	n := 0
	for _, r := range text {
		if r < asciiLow || r > asciiHigh {
			n++
		}
	}
	return n
}

func isCJK(s string) bool {
	for _, r := range s {
		if (r >= 0x4E00 && r <= 0x9FFF) || // CJK unified ideographs
			(r >= 0x3040 && r <= 0x30FF) || // hiragana/katakana
			(r >= 0xAC00 && r <= 0xD7A3) { // hangul syllables
			return true
		}
	}
	return false
}
