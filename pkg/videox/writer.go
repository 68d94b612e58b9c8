package videox

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Writer writes frames to a video file. The output is MJPG, which is bulky,
// but plays everywhere and doesn't need extra codecs installed.
type Writer struct {
	writer *gocv.VideoWriter
	path   string
}

// NewWriter creates a video file that accepts frames of the given size.
// fps must be positive (webcams that report 0 can't be mirrored to a file
// without picking a rate for them).
func NewWriter(path string, fps float64, width, height int) (*Writer, error) {
	if fps <= 0 {
		return nil, fmt.Errorf("Invalid frame rate %.1f for output video '%v'", fps, path)
	}
	writer, err := gocv.VideoWriterFile(path, "MJPG", fps, width, height, true)
	if err != nil {
		return nil, fmt.Errorf("Failed to open output video '%v': %w", path, err)
	}
	if !writer.IsOpened() {
		writer.Close()
		return nil, fmt.Errorf("Failed to open output video '%v'", path)
	}
	return &Writer{
		writer: writer,
		path:   path,
	}, nil
}

func (w *Writer) Write(frame gocv.Mat) error {
	return w.writer.Write(frame)
}

func (w *Writer) Path() string {
	return w.path
}

func (w *Writer) Close() error {
	if w.writer == nil {
		return nil
	}
	err := w.writer.Close()
	w.writer = nil
	return err
}
