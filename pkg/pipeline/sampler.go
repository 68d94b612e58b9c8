package pipeline

import (
	"fmt"
	"math"

	"github.com/cyclopcam/spotter/pkg/config"
)

// Sampler decides which frames get scored by the detector.
// With a source running at srcFPS and a detection target of targetFPS, every
// stride'th frame is scored, where stride = floor(srcFPS / targetFPS).
// A target at or above the source rate clamps to scoring every frame.
type Sampler struct {
	stride int64
	count  int64
}

func NewSampler(srcFPS, targetFPS float64) (*Sampler, error) {
	if srcFPS <= 0 {
		return nil, fmt.Errorf("%w: source frame rate %v is unusable", config.ErrConfiguration, srcFPS)
	}
	if targetFPS <= 0 {
		return nil, fmt.Errorf("%w: target frame rate %v is unusable", config.ErrConfiguration, targetFPS)
	}
	stride := int64(math.Floor(srcFPS / targetFPS))
	if stride < 1 {
		stride = 1
	}
	return &Sampler{
		stride: stride,
	}, nil
}

// Next consumes one frame from the stream, and reports whether that frame
// must be scored. The first scored frame is frame number stride, so a stream
// shorter than one stride never gets scored.
func (s *Sampler) Next() bool {
	s.count++
	return s.count%s.stride == 0
}

// FrameIndex is the 1-based index of the most recently consumed frame
func (s *Sampler) FrameIndex() int64 {
	return s.count
}

func (s *Sampler) Stride() int64 {
	return s.stride
}
