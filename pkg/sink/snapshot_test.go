package sink

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/spotter/pkg/nn"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func snapshotBatch(frame *gocv.Mat) *Batch {
	return &Batch{
		FrameIndex:   1,
		SourceWidth:  640,
		SourceHeight: 480,
		Regions: []Region{
			{Frame: frame, Rect: nn.Rect{X: 10, Y: 10, Width: 100, Height: 100}, Object: nn.ObjectDetection{Class: nn.COCOPerson, Confidence: 0.9}},
			{Frame: frame, Rect: nn.Rect{X: 0, Y: 0, Width: 0, Height: 0}, Object: nn.ObjectDetection{Class: nn.COCOPerson, Confidence: 0.5}},
			{Frame: frame, Rect: nn.Rect{X: 200, Y: 200, Width: 50, Height: 50}, Object: nn.ObjectDetection{Class: nn.COCOCar, Confidence: 0.7}},
		},
	}
}

func TestSnapshotSink(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSnapshotSink(logs.NewTestingLog(t), dir, 2, 0)
	require.NoError(t, err)

	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 80, 120, 0), 480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()
	batch := snapshotBatch(&frame)
	require.NoError(t, s.HandleRegions(batch))

	// The zero area region is skipped, the other two are written
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	data, err := os.ReadFile(filepath.Join(dir, "frame-000001-region-00.jpg"))
	require.NoError(t, err)
	require.Greater(t, len(data), 2)
	// JPEG magic
	require.Equal(t, byte(0xFF), data[0])
	require.Equal(t, byte(0xD8), data[1])

	// The snapshot count is spent, further batches write nothing
	require.NoError(t, s.HandleRegions(batch))
	entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.NoError(t, s.Close())
}

func TestSnapshotSinkByteBudget(t *testing.T) {
	dir := t.TempDir()
	// Any JPEG blows a 1 byte budget, so exactly one file lands
	s, err := NewSnapshotSink(logs.NewTestingLog(t), dir, 100, 1)
	require.NoError(t, err)

	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 80, 120, 0), 480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()
	require.NoError(t, s.HandleRegions(snapshotBatch(&frame)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NoError(t, s.Close())
}
