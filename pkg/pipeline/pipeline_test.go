package pipeline

import (
	"errors"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/spotter/pkg/config"
	"github.com/cyclopcam/spotter/pkg/nn"
	"github.com/cyclopcam/spotter/pkg/sink"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// fakeSource serves a fixed number of solid color frames
type fakeSource struct {
	width  int
	height int
	fps    float64
	frames int
	served int
	closes int
}

func (s *fakeSource) Read(mat *gocv.Mat) bool {
	if s.served >= s.frames {
		return false
	}
	s.served++
	filled := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(10, 20, 30, 0), s.height, s.width, gocv.MatTypeCV8UC3)
	defer filled.Close()
	filled.CopyTo(mat)
	return true
}

func (s *fakeSource) Width() int   { return s.width }
func (s *fakeSource) Height() int  { return s.height }
func (s *fakeSource) FPS() float64 { return s.fps }
func (s *fakeSource) Close() error {
	s.closes++
	return nil
}

// dummyDetector returns the same detections for every frame
type dummyDetector struct {
	detections []nn.ObjectDetection
	calls      int
	failOn     map[int]bool // 1-based call numbers that fail
	closed     bool
}

func (d *dummyDetector) Close() {
	d.closed = true
}

func (d *dummyDetector) DetectObjects(img gocv.Mat, params *nn.DetectionParams) ([]nn.ObjectDetection, error) {
	d.calls++
	if d.failOn[d.calls] {
		return nil, errors.New("synthetic detector failure")
	}
	return d.detections, nil
}

func (d *dummyDetector) Config() *nn.ModelConfig {
	return &nn.ModelConfig{Architecture: "dummy", Width: 640, Height: 640, Classes: nn.COCOClasses}
}

// gatedDetector scripts detections per call, and applies the probability
// threshold itself the way the real backends do
type gatedDetector struct {
	perCall map[int][]nn.ObjectDetection // 1-based call number
	calls   int
}

func (d *gatedDetector) Close() {}

func (d *gatedDetector) DetectObjects(img gocv.Mat, params *nn.DetectionParams) ([]nn.ObjectDetection, error) {
	d.calls++
	kept := []nn.ObjectDetection{}
	for _, det := range d.perCall[d.calls] {
		if det.Confidence >= params.ProbabilityThreshold {
			kept = append(kept, det)
		}
	}
	return kept, nil
}

func (d *gatedDetector) Config() *nn.ModelConfig {
	return &nn.ModelConfig{Architecture: "dummy", Width: 640, Height: 640, Classes: nn.COCOClasses}
}

type recordingSink struct {
	batches     []sink.Batch
	closes      int
	sawRedEdges bool // whether any frame was already annotated when the sink saw it
}

func (s *recordingSink) HandleRegions(batch *sink.Batch) error {
	for _, region := range batch.Regions {
		px := region.Frame.GetVecbAt(region.Rect.Y, region.Rect.X)
		if px[0] == 0 && px[1] == 0 && px[2] == 255 {
			s.sawRedEdges = true
		}
	}
	s.batches = append(s.batches, *batch)
	return nil
}

func (s *recordingSink) Close() error {
	s.closes++
	return nil
}

type fakeDisplay struct {
	redEdges []bool // for each shown frame, whether the box corner pixel was red
	closes   int
}

func (d *fakeDisplay) Show(frame gocv.Mat) {
	px := frame.GetVecbAt(12, 16)
	d.redEdges = append(d.redEdges, px[0] == 0 && px[1] == 0 && px[2] == 255)
}

func (d *fakeDisplay) Close() error {
	d.closes++
	return nil
}

type fakeWriter struct {
	frames int
	closes int
	err    error
}

func (w *fakeWriter) Write(frame gocv.Mat) error {
	w.frames++
	return w.err
}

func (w *fakeWriter) Close() error {
	w.closes++
	return nil
}

func personAt(x1, y1, x2, y2 float32) []nn.ObjectDetection {
	return []nn.ObjectDetection{
		{Class: nn.COCOPerson, Confidence: 0.9, Box: nn.Box{X1: x1, Y1: y1, X2: x2, Y2: y2}},
	}
}

// Ten frames at 30 fps with a 10 fps detection target: frames 3, 6 and 9 get
// scored, every frame gets displayed and written.
func TestPipelineEndToEnd(t *testing.T) {
	logger := logs.NewTestingLog(t)
	source := &fakeSource{width: 64, height: 48, fps: 30, frames: 10}
	detector := &dummyDetector{detections: personAt(0.25, 0.25, 0.5, 0.5)}
	snk := &recordingSink{}
	display := &fakeDisplay{}
	writer := &fakeWriter{}

	p, err := New(logger, source, detector, snk, &Options{TargetFPS: 10, Display: display, Writer: writer})
	require.NoError(t, err)
	require.Equal(t, StateInit, p.State())

	require.NoError(t, p.Run())
	require.Equal(t, StateDrained, p.State())

	require.Equal(t, 3, detector.calls)
	require.Len(t, snk.batches, 3)
	require.Equal(t, int64(3), snk.batches[0].FrameIndex)
	require.Equal(t, int64(6), snk.batches[1].FrameIndex)
	require.Equal(t, int64(9), snk.batches[2].FrameIndex)

	// The batch carries the source dimensions, and the region rect is the
	// box converted at the frame's own size
	require.Equal(t, 64, snk.batches[0].SourceWidth)
	require.Equal(t, 48, snk.batches[0].SourceHeight)
	require.Len(t, snk.batches[0].Regions, 1)
	require.Equal(t, nn.Rect{X: 16, Y: 12, Width: 16, Height: 12}, snk.batches[0].Regions[0].Rect)

	// Sinks run before the frame is annotated
	require.False(t, snk.sawRedEdges)

	// Every frame was displayed and written, and only the scored ones
	// carry annotations
	require.Equal(t, []bool{false, false, true, false, false, true, false, false, true, false}, display.redEdges)
	require.Equal(t, 10, writer.frames)

	// Drain released everything except the detector, which the caller owns
	require.Equal(t, 1, source.closes)
	require.Equal(t, 1, snk.closes)
	require.Equal(t, 1, display.closes)
	require.Equal(t, 1, writer.closes)
	require.False(t, detector.closed)
}

// A scored frame with no detections still reaches the sink
func TestPipelineEmptyBatches(t *testing.T) {
	logger := logs.NewTestingLog(t)
	source := &fakeSource{width: 64, height: 48, fps: 30, frames: 10}
	detector := &dummyDetector{}
	snk := &recordingSink{}

	p, err := New(logger, source, detector, snk, &Options{TargetFPS: 10})
	require.NoError(t, err)
	require.NoError(t, p.Run())

	require.Len(t, snk.batches, 3)
	for _, batch := range snk.batches {
		require.Empty(t, batch.Regions)
	}
}

// A detection under the probability threshold never reaches the sink, but the
// frame it was filtered from still produces an empty batch
func TestPipelineConfidenceGate(t *testing.T) {
	logger := logs.NewTestingLog(t)
	source := &fakeSource{width: 64, height: 48, fps: 30, frames: 10}
	detector := &gatedDetector{
		perCall: map[int][]nn.ObjectDetection{
			1: {{Class: nn.COCOPerson, Confidence: 0, Box: nn.Box{X1: 0.1, Y1: 0.1, X2: 0.3, Y2: 0.3}}},
			2: {{Class: nn.COCOPerson, Confidence: 0.9, Box: nn.Box{X1: 0.25, Y1: 0.25, X2: 0.5, Y2: 0.5}}},
		},
	}
	snk := &recordingSink{}

	p, err := New(logger, source, detector, snk, &Options{TargetFPS: 10})
	require.NoError(t, err)
	require.NoError(t, p.Run())

	require.Equal(t, 3, detector.calls)
	require.Len(t, snk.batches, 3)
	require.Empty(t, snk.batches[0].Regions)
	require.Len(t, snk.batches[1].Regions, 1)
	require.Equal(t, int64(6), snk.batches[1].FrameIndex)
	require.Equal(t, nn.Rect{X: 16, Y: 12, Width: 16, Height: 12}, snk.batches[1].Regions[0].Rect)
	require.Empty(t, snk.batches[2].Regions)
}

// A mid-stream detector failure skips that frame's sink delivery and the
// stream carries on
func TestPipelineDetectorError(t *testing.T) {
	logger := logs.NewTestingLog(t)
	source := &fakeSource{width: 64, height: 48, fps: 30, frames: 10}
	detector := &dummyDetector{
		detections: personAt(0.25, 0.25, 0.5, 0.5),
		failOn:     map[int]bool{2: true},
	}
	snk := &recordingSink{}
	display := &fakeDisplay{}

	p, err := New(logger, source, detector, snk, &Options{TargetFPS: 10, Display: display})
	require.NoError(t, err)
	require.NoError(t, p.Run())

	require.Equal(t, 3, detector.calls)
	require.Len(t, snk.batches, 2)
	require.Equal(t, int64(3), snk.batches[0].FrameIndex)
	require.Equal(t, int64(9), snk.batches[1].FrameIndex)
	require.Len(t, display.redEdges, 10)
}

func TestPipelineRejectsBadRates(t *testing.T) {
	logger := logs.NewTestingLog(t)
	detector := &dummyDetector{}
	snk := &recordingSink{}

	// A source that reports no frame rate is a configuration problem,
	// caught before any frame is read
	source := &fakeSource{width: 64, height: 48, fps: 0, frames: 10}
	_, err := New(logger, source, detector, snk, &Options{TargetFPS: 10})
	require.Error(t, err)
	require.True(t, errors.Is(err, config.ErrConfiguration))

	source = &fakeSource{width: 64, height: 48, fps: 30, frames: 10}
	_, err = New(logger, source, detector, snk, &Options{TargetFPS: 0})
	require.Error(t, err)
	require.True(t, errors.Is(err, config.ErrConfiguration))

	require.Equal(t, 0, source.served)
}

func TestPipelineRunsOnce(t *testing.T) {
	logger := logs.NewTestingLog(t)
	source := &fakeSource{width: 64, height: 48, fps: 30, frames: 3}
	p, err := New(logger, source, &dummyDetector{}, &recordingSink{}, &Options{TargetFPS: 10})
	require.NoError(t, err)
	require.NoError(t, p.Run())
	require.Error(t, p.Run())
}
