// Package fingerprint computes compact perceptual signatures of screen
// captures for cheap change detection between consecutive frames.
package fingerprint

import (
	"image"
	"math/bits"

	"golang.org/x/image/draw"
)

const (
	gridSize = 8
	// Bits is the signature length.
	Bits = gridSize * gridSize
)

// Hash is a 64-bit average hash: the frame is resampled to an 8x8 grayscale
// grid and each bit records whether its cell is brighter than the mean.
type Hash uint64

// Compute derives the signature from a decoded frame. Deterministic, no side
// effects; any resolution or aspect ratio is accepted.
func Compute(img image.Image) Hash {
	small := image.NewGray(image.Rect(0, 0, gridSize, gridSize))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)

	var sum uint64
	for _, p := range small.Pix {
		sum += uint64(p)
	}
	mean := uint8(sum / uint64(len(small.Pix)))

	var h Hash
	for i, p := range small.Pix {
		if p > mean {
			h |= 1 << uint(i)
		}
	}
	return h
}

// Distance is the Hamming distance between two signatures.
func Distance(a, b Hash) int {
	return bits.OnesCount64(uint64(a ^ b))
}

// Similarity maps the Hamming distance into [0,1]; 1 means identical
// signatures, 0 means every bit differs.
func Similarity(a, b Hash) float64 {
	return 1 - float64(Distance(a, b))/Bits
}
