package sink

import (
	"fmt"

	"github.com/cyclopcam/spotter/pkg/nn"
	"gocv.io/x/gocv"
)

// Package sink delivers detection results to the outside world.
// The pipeline hands every scored frame to a Sink, before any annotations
// are drawn on the frame, so sinks see clean pixels.

// Region is one detected object, located on the frame it was found in.
// Frame is shared with the pipeline and only valid for the duration of the
// HandleRegions call. Don't Close it, and copy it if you need to keep it.
type Region struct {
	Frame  *gocv.Mat
	Rect   nn.Rect            // where the object sits on the frame, in pixels
	Object nn.ObjectDetection // the detection this region was cut from
}

// Batch is everything a sink receives for one scored frame.
// Sinks get exactly one batch per scored frame, even when nothing was
// detected, so they can observe the pipeline's heartbeat.
type Batch struct {
	FrameIndex   int64 // 1-based index of the frame in the stream
	SourceWidth  int
	SourceHeight int
	Regions      []Region
}

// Sink consumes detection batches.
// Errors from a sink are logged by the pipeline, but never stop the stream.
type Sink interface {
	HandleRegions(batch *Batch) error
	Close() error
}

// MultiSink fans each batch out to several sinks. Every sink sees every
// batch, and the first error comes back after all of them have run.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{
		sinks: sinks,
	}
}

func (s *MultiSink) HandleRegions(batch *Batch) error {
	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.HandleRegions(batch); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *MultiSink) Close() error {
	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// className resolves a class index against a model's class list
func className(classes []string, class int) string {
	if class >= 0 && class < len(classes) {
		return classes[class]
	}
	return fmt.Sprintf("class %v", class)
}
