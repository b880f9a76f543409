package fingerprint

import (
	"image"
	"image/color"
	"testing"
)

func solidImage(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func splitImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < w/2 {
				img.Set(x, y, color.White)
			} else {
				img.Set(x, y, color.Black)
			}
		}
	}
	return img
}

func TestCompute_Deterministic(t *testing.T) {
	img := splitImage(640, 480)
	if Compute(img) != Compute(img) {
		t.Error("same frame produced different signatures")
	}
}

func TestCompute_ResolutionIndependent(t *testing.T) {
	a := Compute(splitImage(1920, 1080))
	b := Compute(splitImage(192, 108))
	if sim := Similarity(a, b); sim < 0.9 {
		t.Errorf("same content at different resolutions: similarity = %v, want >= 0.9", sim)
	}
}

func TestSimilarity_Identical(t *testing.T) {
	h := Compute(splitImage(100, 100))
	if got := Similarity(h, h); got != 1.0 {
		t.Errorf("Similarity(h, h) = %v, want 1.0", got)
	}
	if got := Distance(h, h); got != 0 {
		t.Errorf("Distance(h, h) = %d, want 0", got)
	}
}

func TestSimilarity_AllBitsDiffer(t *testing.T) {
	var a Hash = 0
	b := ^Hash(0)
	if got := Similarity(a, b); got != 0.0 {
		t.Errorf("Similarity = %v, want 0.0", got)
	}
	if got := Distance(a, b); got != Bits {
		t.Errorf("Distance = %d, want %d", got, Bits)
	}
}

func TestCompute_DistinguishesContent(t *testing.T) {
	split := Compute(splitImage(800, 600))
	flat := Compute(solidImage(800, 600, color.Gray{Y: 128}))
	if sim := Similarity(split, flat); sim > 0.85 {
		t.Errorf("distinct content too similar: %v", sim)
	}
}
