package fingerprint

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/chai2010/webp"
)

func solidImage(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding png: %v", err)
	}
	return buf.Bytes()
}

// encodeWebP encodes losslessly, so the decoded pixels equal the source's.
func encodeWebP(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Lossless: true}); err != nil {
		t.Fatalf("encoding webp: %v", err)
	}
	return buf.Bytes()
}

func TestCompute_SameFingerprintAcrossContainers(t *testing.T) {
	img := solidImage(8, 8, color.NRGBA{R: 10, G: 20, B: 30, A: 255})

	pngBytes := encodePNG(t, img)
	webpBytes := encodeWebP(t, img)

	fpPNG, err := Compute(pngBytes)
	if err != nil {
		t.Fatalf("Compute(png): %v", err)
	}
	fpWebP, err := Compute(webpBytes)
	if err != nil {
		t.Fatalf("Compute(webp): %v", err)
	}

	if fpPNG != fpWebP {
		t.Errorf("expected matching fingerprints for identical pixels in different containers, got %q vs %q", fpPNG, fpWebP)
	}
}

func TestCompute_DifferentPixelsDifferentFingerprint(t *testing.T) {
	a := solidImage(8, 8, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	b := solidImage(8, 8, color.NRGBA{R: 11, G: 20, B: 30, A: 255})

	fpA, err := Compute(encodePNG(t, a))
	if err != nil {
		t.Fatalf("Compute(a): %v", err)
	}
	fpB, err := Compute(encodePNG(t, b))
	if err != nil {
		t.Fatalf("Compute(b): %v", err)
	}

	if fpA == fpB {
		t.Error("expected different fingerprints for different pixel content")
	}
}

func TestCompute_InvalidBytes(t *testing.T) {
	if _, err := Compute([]byte("not an image")); err == nil {
		t.Fatal("expected error decoding invalid image bytes")
	}
}

func TestCompute_Deterministic(t *testing.T) {
	img := solidImage(16, 16, color.NRGBA{R: 100, G: 150, B: 200, A: 255})
	raw := encodePNG(t, img)

	fp1, err := Compute(raw)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	fp2, err := Compute(raw)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if fp1 != fp2 {
		t.Errorf("expected deterministic fingerprint, got %q then %q", fp1, fp2)
	}
}
