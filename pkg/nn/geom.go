package nn

import (
	"image"

	"github.com/chewxy/math32"
)

// Rect is a rectangle in pixel coordinates, with the origin at the top left
// of the image
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Rect) Area() int {
	return r.Width * r.Height
}

func (r Rect) X2() int {
	return r.X + r.Width
}

func (r Rect) Y2() int {
	return r.Y + r.Height
}

func (r Rect) Intersection(b Rect) Rect {
	x1 := max(r.X, b.X)
	y1 := max(r.Y, b.Y)
	x2 := min(r.X+r.Width, b.X+b.Width)
	y2 := min(r.Y+r.Height, b.Y+b.Height)
	return Rect{
		X:      x1,
		Y:      y1,
		Width:  max(0, x2-x1),
		Height: max(0, y2-y1),
	}
}

// Intersection over Union
func (r Rect) IOU(b Rect) float32 {
	intersection := r.Intersection(b)
	return float32(intersection.Area()) / float32(r.Area()+b.Area()-intersection.Area())
}

// ToImageRect returns the rectangle as an image.Rectangle, which is what
// gocv wants for drawing and for extracting sub-regions
func (r Rect) ToImageRect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Box is a detection rectangle in normalized image coordinates.
// X1,Y1 is the top-left corner and X2,Y2 the bottom-right, all in [0,1],
// so a box is independent of the resolution it was detected at.
type Box struct {
	X1 float32 `json:"x1"`
	Y1 float32 `json:"y1"`
	X2 float32 `json:"x2"`
	Y2 float32 `json:"y2"`
}

func (b Box) Width() float32 {
	return b.X2 - b.X1
}

func (b Box) Height() float32 {
	return b.Y2 - b.Y1
}

// Clamp returns the box clipped to [0,1]
func (b Box) Clamp() Box {
	return Box{
		X1: clamp01(b.X1),
		Y1: clamp01(b.Y1),
		X2: clamp01(b.X2),
		Y2: clamp01(b.Y2),
	}
}

// ToRect converts the box to pixel coordinates on an image of the given size.
// Each edge is rounded to the nearest pixel and clamped to the image bounds,
// so the result is always a valid (possibly empty) rectangle on the image.
func (b Box) ToRect(imageWidth, imageHeight int) Rect {
	c := b.Clamp()
	x1 := int(math32.Round(c.X1 * float32(imageWidth)))
	y1 := int(math32.Round(c.Y1 * float32(imageHeight)))
	x2 := int(math32.Round(c.X2 * float32(imageWidth)))
	y2 := int(math32.Round(c.Y2 * float32(imageHeight)))
	return Rect{
		X:      x1,
		Y:      y1,
		Width:  max(0, x2-x1),
		Height: max(0, y2-y1),
	}
}

// BoxFromRect is the inverse of ToRect
func BoxFromRect(r Rect, imageWidth, imageHeight int) Box {
	b := Box{
		X1: float32(r.X) / float32(imageWidth),
		Y1: float32(r.Y) / float32(imageHeight),
		X2: float32(r.X+r.Width) / float32(imageWidth),
		Y2: float32(r.Y+r.Height) / float32(imageHeight),
	}
	return b.Clamp()
}

func clamp01(v float32) float32 {
	return max(0, min(1, v))
}
