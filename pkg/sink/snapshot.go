package sink

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/spotter/pkg/kibi"
	"gocv.io/x/gocv"
)

// SnapshotSink saves a JPEG of every detected region, until either
// maxSnapshots have been written, or maxBytes of disk has been used
// (maxBytes 0 = no byte cap). Handy for checking what the detector is
// actually triggering on, without sitting in front of the display window.
type SnapshotSink struct {
	log          logs.Log
	dir          string
	maxSnapshots int
	maxBytes     int64
	written      int
	bytes        int64
}

func NewSnapshotSink(logger logs.Log, dir string, maxSnapshots int, maxBytes int64) (*SnapshotSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("Failed to create snapshot directory '%v': %w", dir, err)
	}
	return &SnapshotSink{
		log:          logger,
		dir:          dir,
		maxSnapshots: maxSnapshots,
		maxBytes:     maxBytes,
	}, nil
}

func (s *SnapshotSink) HandleRegions(batch *Batch) error {
	for i, region := range batch.Regions {
		if s.written >= s.maxSnapshots {
			return nil
		}
		if s.maxBytes > 0 && s.bytes >= s.maxBytes {
			return nil
		}
		if region.Rect.Area() == 0 {
			continue
		}
		jpg, err := regionToJPEG(region)
		if err != nil {
			return err
		}
		fn := filepath.Join(s.dir, fmt.Sprintf("frame-%06d-region-%02d.jpg", batch.FrameIndex, i))
		if err := os.WriteFile(fn, jpg, 0644); err != nil {
			return err
		}
		s.written++
		s.bytes += int64(len(jpg))
		s.log.Debugf("Saved snapshot %v", fn)
	}
	return nil
}

func (s *SnapshotSink) Close() error {
	s.log.Infof("Saved %v region snapshots (%v) to %v", s.written, kibi.Bytes(s.bytes), s.dir)
	return nil
}

// Cut the region out of its BGR frame and compress it
func regionToJPEG(region Region) ([]byte, error) {
	crop := region.Frame.Region(region.Rect.ToImageRect())
	defer crop.Close()
	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(crop, &rgb, gocv.ColorBGRToRGB)
	img := cimg.WrapImage(region.Rect.Width, region.Rect.Height, cimg.PixelFormatRGB, rgb.ToBytes())
	return cimg.Compress(img, cimg.MakeCompressParams(cimg.Sampling420, 90, 0))
}
