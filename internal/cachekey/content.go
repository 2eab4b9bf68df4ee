package cachekey

import "github.com/mangatl/mangatl/internal/fingerprint"

// ImageFingerprint is a hex digest of the canonical, format-independent
// encoding of an image's decoded pixels. Two images that decode to the
// same pixels share a fingerprint regardless of source container format;
// any pixel change yields a different one.
type ImageFingerprint string

// String returns the fingerprint's hex representation.
func (f ImageFingerprint) String() string {
	return string(f)
}

// Empty reports whether the fingerprint is unset.
func (f ImageFingerprint) Empty() bool {
	return f == ""
}

// ContentFingerprint computes the ImageFingerprint of raw image bytes from
// the lossless canonical re-encoding of its decoded pixels, not from the
// raw container bytes, so identical pixel content in different formats
// collides as intended.
func ContentFingerprint(imageBytes []byte) (ImageFingerprint, error) {
	hex, err := fingerprint.Compute(imageBytes)
	if err != nil {
		return "", err
	}
	return ImageFingerprint(hex), nil
}
