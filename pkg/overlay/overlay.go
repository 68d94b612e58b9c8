// Package overlay draws detection results onto video frames.
package overlay

import (
	"fmt"
	"image"
	"image/color"

	"github.com/cyclopcam/spotter/pkg/nn"
	"gocv.io/x/gocv"
)

var (
	boxColor   = color.RGBA{R: 255, G: 0, B: 0} // red
	labelColor = color.RGBA{G: 255}             // green
)

var labelOrigin = image.Pt(30, 30)

// CountLabel is the banner text drawn in the top-left corner of every frame
func CountLabel(count int) string {
	return fmt.Sprintf("Total Targets: %v", count)
}

// Draw annotates the frame in place: a 1 pixel rectangle around every
// detection, and the detection count in the corner. The count is drawn even
// when there are no detections. Boxes convert to pixels at the frame's own
// resolution.
func Draw(frame *gocv.Mat, detections []nn.ObjectDetection) {
	for _, det := range detections {
		r := det.Box.ToRect(frame.Cols(), frame.Rows())
		gocv.Rectangle(frame, r.ToImageRect(), boxColor, 1)
	}
	gocv.PutText(frame, CountLabel(len(detections)), labelOrigin, gocv.FontHersheySimplex, 1.0, labelColor, 2)
}
