// Package fingerprint computes the canonical, format-independent identity
// of a page image: decode whatever container format arrived (PNG, JPEG,
// WebP, BMP, GIF), normalize the color model, and re-encode losslessly
// before hashing. This makes content_fingerprint collide on pixel content
// rather than container bytes, matching the cache-key model's Content key.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	// Side-effect imports register format decoders with image.Decode.
	_ "image/gif"
	_ "image/jpeg"

	"github.com/chai2010/webp"
	_ "golang.org/x/image/bmp"
)

// Compute decodes raw image bytes in any supported container format,
// normalizes the color model to NRGBA, re-encodes losslessly as PNG, and
// returns the SHA-256 digest of that canonical encoding as the image's
// fingerprint. Two inputs with identical decoded pixels produce the same
// fingerprint regardless of their original container format.
func Compute(raw []byte) (cachekeyFingerprint string, err error) {
	canon, _, err := Canonicalize(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return fmt.Sprintf("%x", sum), nil
}

// Canonicalize decodes raw image bytes and re-encodes them as lossless PNG
// over a normalized NRGBA color model, returning the canonical bytes and
// the decoded image for callers (e.g. the renderer) that need pixels too.
func Canonicalize(raw []byte) ([]byte, image.Image, error) {
	img, _, err := decodeAny(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("fingerprint: decoding image: %w", err)
	}

	normalized := normalize(img)

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, normalized); err != nil {
		return nil, nil, fmt.Errorf("fingerprint: re-encoding canonical PNG: %w", err)
	}

	return buf.Bytes(), normalized, nil
}

// decodeAny tries the image.Decode registry first (PNG/JPEG/GIF/BMP via
// the blank imports above), then falls back to WebP, since WebP decoding
// is not part of the stdlib registry.
func decodeAny(raw []byte) (image.Image, string, error) {
	if img, format, err := image.Decode(bytes.NewReader(raw)); err == nil {
		return img, format, nil
	}
	img, err := webp.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "", err
	}
	return img, "webp", nil
}

// normalize converts any color model to NRGBA so that e.g. a paletted GIF
// and an equivalent true-color PNG of the same pixels encode identically.
func normalize(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok {
		return nrgba
	}
	b := img.Bounds()
	out := image.NewNRGBA(b)
	draw.Draw(out, b, img, b.Min, draw.Src)
	return out
}
