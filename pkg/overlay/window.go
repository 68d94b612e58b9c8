package overlay

import (
	"gocv.io/x/gocv"
)

// Title of the display window
const WindowTitle = "video"

// Window shows frames in an OpenCV window.
// WaitKey is the OpenCV event pump, so it must run on every frame or the
// window never repaints. Pressed keys are ignored.
type Window struct {
	win *gocv.Window
}

func NewWindow() *Window {
	return &Window{
		win: gocv.NewWindow(WindowTitle),
	}
}

func (w *Window) Show(frame gocv.Mat) {
	w.win.IMShow(frame)
	w.win.WaitKey(1)
}

func (w *Window) Close() error {
	return w.win.Close()
}

// NopDisplay stands in for Window when running headless
type NopDisplay struct{}

func (NopDisplay) Show(frame gocv.Mat) {}

func (NopDisplay) Close() error {
	return nil
}
