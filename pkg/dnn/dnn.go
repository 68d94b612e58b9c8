package dnn

import (
	"fmt"
	"image"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/spotter/pkg/nn"
	"gocv.io/x/gocv"
)

// Package dnn runs object detection models through OpenCV's DNN module.
// It understands the YOLOv8-family ONNX output layout: a single tensor of
// shape 1 x (4+nclasses) x nboxes, with boxes as cx,cy,w,h in input space.

type Target int

const (
	TargetAuto Target = iota // Prefer CUDA, fall back to CPU
	TargetCPU
	TargetCUDA
)

func ParseTarget(s string) (Target, error) {
	switch s {
	case "", "auto":
		return TargetAuto, nil
	case "cpu":
		return TargetCPU, nil
	case "cuda":
		return TargetCUDA, nil
	}
	return TargetAuto, fmt.Errorf("Unknown NN target '%v' (expected auto, cpu, or cuda)", s)
}

// Detector is an nn.ObjectDetector backed by OpenCV DNN
type Detector struct {
	log    logs.Log
	net    gocv.Net
	config nn.ModelConfig
}

// NewDetector loads an ONNX model file.
// The execution target is resolved here, once. It never changes during the
// detector's lifetime, and it has no effect on what the model detects,
// only on how fast it runs.
func NewDetector(logger logs.Log, config *nn.ModelConfig, filename string, target Target) (*Detector, error) {
	net := gocv.ReadNet(filename, "")
	if net.Empty() {
		return nil, fmt.Errorf("Failed to read DNN model from '%v'", filename)
	}
	d := &Detector{
		log:    logger,
		net:    net,
		config: *config,
	}
	if d.config.Width <= 0 || d.config.Height <= 0 {
		logger.Warnf("Model config for '%v' has no input size, assuming 640x640", filename)
		d.config.Width = 640
		d.config.Height = 640
	}
	if err := d.resolveTarget(target); err != nil {
		net.Close()
		return nil, err
	}
	return d, nil
}

func (d *Detector) resolveTarget(target Target) error {
	switch target {
	case TargetCPU:
		d.net.SetPreferableBackend(gocv.NetBackendDefault)
		d.net.SetPreferableTarget(gocv.NetTargetCPU)
		d.log.Infof("NN target: CPU")
	case TargetCUDA, TargetAuto:
		errBackend := d.net.SetPreferableBackend(gocv.NetBackendCUDA)
		errTarget := d.net.SetPreferableTarget(gocv.NetTargetCUDA)
		if errBackend != nil || errTarget != nil {
			if errBackend == nil {
				errBackend = errTarget
			}
			if target == TargetCUDA {
				return fmt.Errorf("CUDA NN target requested, but unavailable: %v", errBackend)
			}
			d.log.Infof("CUDA unavailable (%v), NN target: CPU", errBackend)
			d.net.SetPreferableBackend(gocv.NetBackendDefault)
			d.net.SetPreferableTarget(gocv.NetTargetCPU)
		} else {
			d.log.Infof("NN target: CUDA (OpenCV falls back to CPU if it was built without CUDA)")
		}
	}
	return nil
}

func (d *Detector) Close() {
	d.net.Close()
}

func (d *Detector) Config() *nn.ModelConfig {
	return &d.config
}

func (d *Detector) DetectObjects(img gocv.Mat, params *nn.DetectionParams) ([]nn.ObjectDetection, error) {
	blob, scale := d.prepareInput(img)
	defer blob.Close()
	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()
	return d.decode(&output, scale, img.Cols(), img.Rows(), params)
}

// Pad the image out to a square before resizing to the model input, so that
// the aspect ratio survives. Returns the blob and the factor that scales
// model input coordinates back to source image pixels.
func (d *Detector) prepareInput(img gocv.Mat) (gocv.Mat, float32) {
	maxDim := max(img.Cols(), img.Rows())
	square := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), maxDim, maxDim, gocv.MatTypeCV8UC3)
	defer square.Close()
	roi := square.Region(image.Rect(0, 0, img.Cols(), img.Rows()))
	img.CopyTo(&roi)
	roi.Close()
	blob := gocv.BlobFromImage(square, 1.0/255.0, image.Pt(d.config.Width, d.config.Height), gocv.NewScalar(0, 0, 0, 0), true, false)
	return blob, float32(maxDim) / float32(d.config.Width)
}

func (d *Detector) decode(output *gocv.Mat, scale float32, imgWidth, imgHeight int, params *nn.DetectionParams) ([]nn.ObjectDetection, error) {
	threshold := params.ProbabilityThreshold
	if threshold <= 0 {
		threshold = nn.DefaultProbabilityThreshold
	}
	iou := params.NmsIouThreshold
	if iou <= 0 {
		iou = nn.DefaultNmsIouThreshold
	}

	// Transpose 1 x nattr x nbox to 1 x nbox x nattr, so that after reshaping,
	// each row is one candidate box.
	gocv.TransposeND(*output, []int{0, 2, 1}, output)
	rows := output.Reshape(1, output.Size()[1])
	defer rows.Close()

	nclasses := rows.Cols() - 4
	if nclasses != len(d.config.Classes) {
		return nil, fmt.Errorf("Model emits %v classes, but its config lists %v", nclasses, len(d.config.Classes))
	}

	boxes := []image.Rectangle{}
	scores := []float32{}
	rects := []nn.Rect{}
	classes := []int{}
	scoreBuf := make([]float32, nclasses)
	for i := 0; i < rows.Rows(); i++ {
		for c := 0; c < nclasses; c++ {
			scoreBuf[c] = rows.GetFloatAt(i, 4+c)
		}
		class, confidence := nn.BestClass(scoreBuf)
		if confidence < threshold || !params.WantClass(class) {
			continue
		}
		r := nn.RectFromXYWH(rows.GetFloatAt(i, 0), rows.GetFloatAt(i, 1), rows.GetFloatAt(i, 2), rows.GetFloatAt(i, 3), scale)
		boxes = append(boxes, r.ToImageRect())
		scores = append(scores, confidence)
		rects = append(rects, r)
		classes = append(classes, class)
	}

	result := []nn.ObjectDetection{}
	if len(boxes) == 0 {
		return result, nil
	}
	for _, idx := range gocv.NMSBoxes(boxes, scores, threshold, iou) {
		result = append(result, nn.ObjectDetection{
			Class:      classes[idx],
			Confidence: scores[idx],
			Box:        nn.BoxFromRect(rects[idx], imgWidth, imgHeight),
		})
	}
	return result, nil
}
