package nn

import (
	"github.com/chewxy/math32"
)

// Helpers for decoding raw NN output tensors into detections.
// The layouts vary per architecture, but the arithmetic is shared, and
// keeping it here means the backends stay thin wrappers around their
// inference libraries.

// BestClass returns the index and value of the highest score.
// Returns (-1, 0) for an empty slice.
func BestClass(scores []float32) (int, float32) {
	best := -1
	bestScore := float32(0)
	for i, s := range scores {
		if s > bestScore {
			best = i
			bestScore = s
		}
	}
	return best, bestScore
}

// RectFromXYWH converts a center/size box, as emitted by YOLO heads in model
// input coordinates, into a pixel Rect on the source image. scale is the
// ratio of source image size to model input size.
func RectFromXYWH(cx, cy, w, h, scale float32) Rect {
	x1 := math32.Round((cx - w/2) * scale)
	y1 := math32.Round((cy - h/2) * scale)
	x2 := math32.Round((cx + w/2) * scale)
	y2 := math32.Round((cy + h/2) * scale)
	return Rect{
		X:      int(x1),
		Y:      int(y1),
		Width:  int(x2 - x1),
		Height: int(y2 - y1),
	}
}

// BoxFromYXYX converts a (ymin,xmin,ymax,xmax) tuple, as emitted by SSD
// post-processing layers in normalized coordinates, into a Box. SSD boxes
// can poke outside the image, so the result is clamped.
func BoxFromYXYX(ymin, xmin, ymax, xmax float32) Box {
	b := Box{
		X1: xmin,
		Y1: ymin,
		X2: xmax,
		Y2: ymax,
	}
	return b.Clamp()
}
