package nn

import (
	"image"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRectIOU(t *testing.T) {
	a := Rect{X: 0, Y: 0, Width: 10, Height: 10}
	require.Equal(t, float32(1), a.IOU(a))

	b := Rect{X: 5, Y: 0, Width: 10, Height: 10}
	// intersection 50, union 150
	require.InDelta(t, 1.0/3.0, a.IOU(b), 1e-6)

	c := Rect{X: 100, Y: 100, Width: 10, Height: 10}
	require.Equal(t, float32(0), a.IOU(c))
}

func TestRectToImageRect(t *testing.T) {
	r := Rect{X: 3, Y: 4, Width: 10, Height: 20}
	require.Equal(t, image.Rect(3, 4, 13, 24), r.ToImageRect())
}

func TestBoxToRect(t *testing.T) {
	// Exact conversion on a well known size
	b := Box{X1: 0.5, Y1: 0.25, X2: 0.75, Y2: 0.5}
	require.Equal(t, Rect{X: 320, Y: 120, Width: 160, Height: 120}, b.ToRect(640, 480))

	// Coordinates outside [0,1] clamp to the image bounds
	b = Box{X1: -0.2, Y1: -0.1, X2: 1.5, Y2: 1.1}
	require.Equal(t, Rect{X: 0, Y: 0, Width: 640, Height: 480}, b.ToRect(640, 480))

	// Edges round to the nearest pixel
	b = Box{X1: 0.1, Y1: 0.1, X2: 0.9, Y2: 0.9}
	require.Equal(t, Rect{X: 10, Y: 10, Width: 79, Height: 79}, b.ToRect(99, 99))

	// An inverted box collapses to zero size instead of going negative
	b = Box{X1: 0.8, Y1: 0.8, X2: 0.2, Y2: 0.2}
	r := b.ToRect(100, 100)
	require.Equal(t, 0, r.Width)
	require.Equal(t, 0, r.Height)
}

func TestBoxFromRect(t *testing.T) {
	r := Rect{X: 320, Y: 120, Width: 160, Height: 120}
	b := BoxFromRect(r, 640, 480)
	require.Equal(t, Box{X1: 0.5, Y1: 0.25, X2: 0.75, Y2: 0.5}, b)
	require.Equal(t, r, b.ToRect(640, 480))

	// A rect that pokes outside the image comes back clamped
	r = Rect{X: -10, Y: 0, Width: 700, Height: 480}
	b = BoxFromRect(r, 640, 480)
	require.Equal(t, float32(0), b.X1)
	require.Equal(t, float32(1), b.X2)
}
