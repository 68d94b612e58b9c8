package pipeline

import (
	"fmt"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/spotter/pkg/nn"
	"github.com/cyclopcam/spotter/pkg/overlay"
	"github.com/cyclopcam/spotter/pkg/perfstats"
	"github.com/cyclopcam/spotter/pkg/sink"
	"github.com/cyclopcam/spotter/pkg/videox"
	"gocv.io/x/gocv"
)

// Package pipeline wires a video source, a detector, and the output surfaces
// into one synchronous loop. Everything runs on the caller's goroutine, and
// sinks receive batches in frame order.

// How often to log progress while streaming, and also the minimum quiet
// period between repeated mid-stream error reports
const statsLogInterval = 15 * time.Second

type State int

const (
	StateInit      State = iota // Constructed, not yet running
	StateStreaming              // Inside Run, consuming frames
	StateDrained                // Source exhausted, resources released
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateStreaming:
		return "STREAMING"
	case StateDrained:
		return "DRAINED"
	}
	return "UNKNOWN"
}

// Display shows annotated frames to a human
type Display interface {
	Show(frame gocv.Mat)
	Close() error
}

// FrameWriter persists annotated frames
type FrameWriter interface {
	Write(frame gocv.Mat) error
	Close() error
}

// Options are the optional parts of a pipeline
type Options struct {
	TargetFPS float64             // Detection rate in frames per second. Must be positive.
	Params    *nn.DetectionParams // Detection parameters. nil uses the defaults.
	Display   Display             // Where annotated frames go. nil runs headless.
	Writer    FrameWriter         // Annotated video file. nil writes nothing.
}

type runStats struct {
	framesSeen      int64
	framesScored    int64
	detectTime      perfstats.TimeAccumulator
	objectsPerFrame perfstats.Accumulator
	movingDetectNS  int64
}

type Pipeline struct {
	log       logs.Log
	source    videox.Source
	detector  nn.ObjectDetector
	snk       sink.Sink
	params    *nn.DetectionParams
	sampler   *Sampler
	display   Display
	writer    FrameWriter
	state     State
	stats     runStats
	srcWidth  int
	srcHeight int
}

// New validates the wiring and prepares a pipeline for Run. The sampler is
// built here, so an unusable frame rate pairing fails before any frame is
// read.
func New(logger logs.Log, source videox.Source, detector nn.ObjectDetector, snk sink.Sink, options *Options) (*Pipeline, error) {
	if options == nil {
		options = &Options{}
	}
	sampler, err := NewSampler(source.FPS(), options.TargetFPS)
	if err != nil {
		return nil, err
	}
	params := options.Params
	if params == nil {
		params = nn.NewDetectionParams()
	}
	display := options.Display
	if display == nil {
		display = overlay.NopDisplay{}
	}
	return &Pipeline{
		log:       logger,
		source:    source,
		detector:  detector,
		snk:       snk,
		params:    params,
		sampler:   sampler,
		display:   display,
		writer:    options.Writer,
		state:     StateInit,
		srcWidth:  source.Width(),
		srcHeight: source.Height(),
	}, nil
}

func (p *Pipeline) State() State {
	return p.state
}

// Run consumes the source until it is exhausted, then releases the source,
// sink, display and writer. The detector is not closed here, it belongs to
// the caller.
// Mid-stream detector, sink and writer failures are logged and the stream
// carries on. Run returns an error only if the pipeline was already run.
func (p *Pipeline) Run() error {
	if p.state != StateInit {
		return fmt.Errorf("Pipeline has already run (state %v)", p.state)
	}
	p.state = StateStreaming
	p.log.Infof("Streaming %vx%v @ %.4g fps, scoring every %v frames", p.srcWidth, p.srcHeight, p.source.FPS(), p.sampler.Stride())

	frame := gocv.NewMat()
	defer frame.Close()

	lastDetectErrAt := time.Time{}
	lastWriteErrAt := time.Time{}
	lastStatsAt := time.Now()
	for p.source.Read(&frame) {
		if p.srcWidth == 0 {
			// Some devices only report their dimensions once frames flow
			p.srcWidth = frame.Cols()
			p.srcHeight = frame.Rows()
		}
		p.stats.framesSeen++
		if p.sampler.Next() {
			p.scoreFrame(&frame, &lastDetectErrAt)
		}
		p.display.Show(frame)
		if p.writer != nil {
			if err := p.writer.Write(frame); err != nil {
				if time.Now().Sub(lastWriteErrAt) > statsLogInterval {
					p.log.Errorf("Error writing output video: %v", err)
					lastWriteErrAt = time.Now()
				}
			}
		}
		if time.Now().Sub(lastStatsAt) > statsLogInterval {
			p.log.Infof("%v frames seen, %v scored, detect %.1f ms (moving avg)",
				p.stats.framesSeen, p.stats.framesScored, float64(p.stats.movingDetectNS)/1e6)
			lastStatsAt = time.Now()
		}
	}
	p.drain()
	return nil
}

// Score one frame: detect, deliver the batch to the sink, then annotate the
// frame. The sink runs before drawing, so it sees clean pixels.
func (p *Pipeline) scoreFrame(frame *gocv.Mat, lastErrAt *time.Time) {
	start := time.Now()
	detections, err := p.detector.DetectObjects(*frame, p.params)
	p.stats.detectTime.AddSince(start)
	perfstats.UpdateMovingAverage(&p.stats.movingDetectNS, time.Now().Sub(start).Nanoseconds())
	if err != nil {
		if time.Now().Sub(*lastErrAt) > statsLogInterval {
			p.log.Errorf("Error detecting objects: %v", err)
			*lastErrAt = time.Now()
		}
		return
	}
	p.stats.framesScored++
	p.stats.objectsPerFrame.AddSample(float64(len(detections)))

	batch := p.buildBatch(frame, detections)
	if err := p.snk.HandleRegions(batch); err != nil {
		p.log.Warnf("Sink error on frame %v: %v", batch.FrameIndex, err)
	}
	overlay.Draw(frame, detections)
}

// Gather the sink batch for one scored frame. Pixel regions convert at the
// frame's own dimensions, the batch reports the source dimensions.
func (p *Pipeline) buildBatch(frame *gocv.Mat, detections []nn.ObjectDetection) *sink.Batch {
	batch := &sink.Batch{
		FrameIndex:   p.sampler.FrameIndex(),
		SourceWidth:  p.srcWidth,
		SourceHeight: p.srcHeight,
		Regions:      make([]sink.Region, 0, len(detections)),
	}
	for _, det := range detections {
		batch.Regions = append(batch.Regions, sink.Region{
			Frame:  frame,
			Rect:   det.Box.ToRect(frame.Cols(), frame.Rows()),
			Object: det,
		})
	}
	return batch
}

func (p *Pipeline) drain() {
	p.state = StateDrained
	if err := p.source.Close(); err != nil {
		p.log.Warnf("Error closing video source: %v", err)
	}
	if err := p.snk.Close(); err != nil {
		p.log.Warnf("Error closing sink: %v", err)
	}
	if err := p.display.Close(); err != nil {
		p.log.Warnf("Error closing display: %v", err)
	}
	if p.writer != nil {
		if err := p.writer.Close(); err != nil {
			p.log.Warnf("Error closing output video: %v", err)
		}
	}
	p.log.Infof("Stream drained: %v frames seen, %v scored, detect avg %.1f ms, %.2f objects per scored frame",
		p.stats.framesSeen, p.stats.framesScored, p.stats.detectTime.AverageMS(), p.stats.objectsPerFrame.Average())
}
