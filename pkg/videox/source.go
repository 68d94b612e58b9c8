package videox

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

var ErrSourceOpen = errors.New("Unable to open video source") // returned when OpenCV cannot open the input file, URL, or device

// Source is a stream of video frames with known dimensions and frame rate.
type Source interface {
	// Read the next frame into mat, returning false at the end of the stream.
	// The mat is reused between calls, so copy it if you need to keep it.
	Read(mat *gocv.Mat) bool

	Width() int
	Height() int

	// Frame rate of the source. Some devices report 0 here.
	FPS() float64

	// Close releases the underlying capture. Safe to call more than once.
	Close() error
}

// CaptureSource reads frames via OpenCV's VideoCapture, so the input can be
// a video file, a stream URL, or a webcam device number such as "0".
type CaptureSource struct {
	capture *gocv.VideoCapture
	input   string
	width   int
	height  int
	fps     float64
}

// OpenSource opens a video input
func OpenSource(input string) (*CaptureSource, error) {
	capture, err := gocv.OpenVideoCapture(input)
	if err != nil {
		return nil, fmt.Errorf("%w '%v': %v", ErrSourceOpen, input, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w '%v'", ErrSourceOpen, input)
	}
	return &CaptureSource{
		capture: capture,
		input:   input,
		width:   int(capture.Get(gocv.VideoCaptureFrameWidth)),
		height:  int(capture.Get(gocv.VideoCaptureFrameHeight)),
		fps:     capture.Get(gocv.VideoCaptureFPS),
	}, nil
}

func (s *CaptureSource) Read(mat *gocv.Mat) bool {
	if s.capture == nil {
		return false
	}
	if !s.capture.Read(mat) {
		return false
	}
	return !mat.Empty()
}

func (s *CaptureSource) Width() int {
	return s.width
}

func (s *CaptureSource) Height() int {
	return s.height
}

func (s *CaptureSource) FPS() float64 {
	return s.fps
}

func (s *CaptureSource) Close() error {
	if s.capture == nil {
		return nil
	}
	err := s.capture.Close()
	s.capture = nil
	return err
}
