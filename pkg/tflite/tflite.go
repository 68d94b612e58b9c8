package tflite

import (
	"fmt"
	"image"
	"runtime"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/spotter/pkg/nn"
	tfl "github.com/mattn/go-tflite"
	"gocv.io/x/gocv"
)

// Package tflite runs object detection models through TensorFlow Lite.
// It expects SSD-style models that end in a TFLite detection postprocess
// layer, which emits boxes, classes, scores and a count. NMS happens inside
// the graph for these models.

// Detector is an nn.ObjectDetector backed by TensorFlow Lite
type Detector struct {
	log         logs.Log
	model       *tfl.Model
	options     *tfl.InterpreterOptions
	interp      *tfl.Interpreter
	config      nn.ModelConfig
	inputWidth  int
	inputHeight int
	quantized   bool
	floatBuf    []float32 // scratch for float input models, reused between frames
}

func NewDetector(logger logs.Log, config *nn.ModelConfig, filename string, threading nn.ThreadingMode) (*Detector, error) {
	model := tfl.NewModelFromFile(filename)
	if model == nil {
		return nil, fmt.Errorf("Failed to load TFLite model from '%v'", filename)
	}
	options := tfl.NewInterpreterOptions()
	if threading == nn.ThreadingModeSingle {
		options.SetNumThread(1)
	} else {
		options.SetNumThread(runtime.NumCPU())
	}
	interp := tfl.NewInterpreter(model, options)
	if interp == nil {
		options.Delete()
		model.Delete()
		return nil, fmt.Errorf("Failed to create TFLite interpreter for '%v'", filename)
	}
	if status := interp.AllocateTensors(); status != tfl.OK {
		interp.Delete()
		options.Delete()
		model.Delete()
		return nil, fmt.Errorf("Failed to allocate tensors for '%v'", filename)
	}

	input := interp.GetInputTensor(0)
	if input.NumDims() != 4 {
		interp.Delete()
		options.Delete()
		model.Delete()
		return nil, fmt.Errorf("Unexpected input tensor shape in '%v' (want NHWC)", filename)
	}
	d := &Detector{
		log:         logger,
		model:       model,
		options:     options,
		interp:      interp,
		config:      *config,
		inputHeight: input.Dim(1),
		inputWidth:  input.Dim(2),
		quantized:   input.Type() == tfl.UInt8,
	}
	// The tensor dims are authoritative, whatever the sidecar config says
	d.config.Width = d.inputWidth
	d.config.Height = d.inputHeight
	logger.Infof("TFLite model %vx%v, quantized: %v", d.inputWidth, d.inputHeight, d.quantized)
	return d, nil
}

func (d *Detector) Close() {
	d.interp.Delete()
	d.options.Delete()
	d.model.Delete()
}

func (d *Detector) Config() *nn.ModelConfig {
	return &d.config
}

func (d *Detector) DetectObjects(img gocv.Mat, params *nn.DetectionParams) ([]nn.ObjectDetection, error) {
	if err := d.fillInput(img); err != nil {
		return nil, err
	}
	if status := d.interp.Invoke(); status != tfl.OK {
		return nil, fmt.Errorf("TFLite inference failed with status %v", status)
	}
	locations := d.interp.GetOutputTensor(0).Float32s()
	classes := d.interp.GetOutputTensor(1).Float32s()
	scores := d.interp.GetOutputTensor(2).Float32s()
	count := int(d.interp.GetOutputTensor(3).Float32s()[0])
	return decodeOutputs(locations, classes, scores, count, params), nil
}

// Resize to the model input size, convert BGR to RGB, and copy into the
// input tensor. Quantized models take the bytes straight, float models take
// pixels mapped to [-1,1].
func (d *Detector) fillInput(img gocv.Mat) error {
	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, image.Pt(d.inputWidth, d.inputHeight), 0, 0, gocv.InterpolationLinear)
	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(resized, &rgb, gocv.ColorBGRToRGB)
	pixels := rgb.ToBytes()

	input := d.interp.GetInputTensor(0)
	if d.quantized {
		if copied := copy(input.UInt8s(), pixels); copied != len(pixels) {
			return fmt.Errorf("Input tensor too small (%v of %v bytes)", copied, len(pixels))
		}
		return nil
	}
	if len(d.floatBuf) != len(pixels) {
		d.floatBuf = make([]float32, len(pixels))
	}
	for i, p := range pixels {
		d.floatBuf[i] = (float32(p) - 127.5) / 127.5
	}
	if copied := copy(input.Float32s(), d.floatBuf); copied != len(d.floatBuf) {
		return fmt.Errorf("Input tensor too small (%v of %v floats)", copied, len(d.floatBuf))
	}
	return nil
}

// Map the postprocess layer's output tensors onto detections. Boxes arrive
// as normalized ymin,xmin,ymax,xmax tuples. The NmsIouThreshold parameter is
// not applied here, because the graph's postprocess op bakes its own NMS in.
func decodeOutputs(locations, classes, scores []float32, count int, params *nn.DetectionParams) []nn.ObjectDetection {
	threshold := params.ProbabilityThreshold
	if threshold <= 0 {
		threshold = nn.DefaultProbabilityThreshold
	}
	dets := []nn.ObjectDetection{}
	n := min(count, len(scores), len(classes), len(locations)/4)
	for i := 0; i < n; i++ {
		if scores[i] < threshold {
			continue
		}
		class := int(classes[i])
		if !params.WantClass(class) {
			continue
		}
		dets = append(dets, nn.ObjectDetection{
			Class:      class,
			Confidence: scores[i],
			Box:        nn.BoxFromYXYX(locations[i*4], locations[i*4+1], locations[i*4+2], locations[i*4+3]),
		})
	}
	return dets
}
