package sink

import (
	"fmt"
	"strings"

	"github.com/cyclopcam/logs"
)

// LogSink writes one line per scored frame to the log. Frames with no
// detections go to the debug level, so a quiet stream doesn't flood the log.
type LogSink struct {
	log     logs.Log
	classes []string
}

func NewLogSink(logger logs.Log, classes []string) *LogSink {
	return &LogSink{
		log:     logger,
		classes: classes,
	}
}

func (s *LogSink) HandleRegions(batch *Batch) error {
	if len(batch.Regions) == 0 {
		s.log.Debugf("Frame %v: no targets", batch.FrameIndex)
		return nil
	}
	parts := make([]string, 0, len(batch.Regions))
	for _, region := range batch.Regions {
		parts = append(parts, fmt.Sprintf("%v %.2f (%v,%v %vx%v)",
			className(s.classes, region.Object.Class), region.Object.Confidence,
			region.Rect.X, region.Rect.Y, region.Rect.Width, region.Rect.Height))
	}
	s.log.Infof("Frame %v: %v", batch.FrameIndex, strings.Join(parts, ", "))
	return nil
}

func (s *LogSink) Close() error {
	return nil
}
