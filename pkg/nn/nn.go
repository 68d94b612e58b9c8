package nn

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gocv.io/x/gocv"
)

// Package nn is a Neural Network interface layer
// To load a model, use the nnload package.

const DefaultProbabilityThreshold = 0.3
const DefaultNmsIouThreshold = 0.45

// NN object detection parameters
type DetectionParams struct {
	ProbabilityThreshold float32      // Value between 0 and 1. Lower values will find more objects. Zero value will use the default.
	NmsIouThreshold      float32      // Value between 0 and 1. Lower values will merge more objects together into one. Zero value will use the default.
	Classes              map[int]bool // Only report these classes. A nil or empty set reports every class the model knows.
}

// Create a default DetectionParams object
func NewDetectionParams() *DetectionParams {
	return &DetectionParams{
		ProbabilityThreshold: DefaultProbabilityThreshold,
		NmsIouThreshold:      DefaultNmsIouThreshold,
		Classes:              nil,
	}
}

// WantClass is true if the given class index passes the class filter
func (p *DetectionParams) WantClass(class int) bool {
	return len(p.Classes) == 0 || p.Classes[class]
}

// ObjectDetection is an object that a neural network has found in an image
type ObjectDetection struct {
	Class      int     `json:"class"`
	Confidence float32 `json:"confidence"`
	Box        Box     `json:"box"`
}

type ThreadingMode int

const (
	ThreadingModeSingle   ThreadingMode = iota // Force the NN library to run inference on a single thread
	ThreadingModeParallel                      // Allow the NN library to run multiple threads while executing a model
)

// ObjectDetector is given an image, and returns zero or more detected objects
type ObjectDetector interface {
	// Close closes the detector (you MUST call this when finished, because it's a C++ object underneath)
	Close()

	// DetectObjects returns a list of objects detected in the image.
	// img is a packed 8-bit BGR image, the way video sources produce them.
	// You can create a default DetectionParams with NewDetectionParams()
	DetectObjects(img gocv.Mat, params *DetectionParams) ([]ObjectDetection, error)

	// Model Config.
	// Callers assume that ModelConfig will remain constant, so don't change it
	// once the detector has been created.
	Config() *ModelConfig
}

// ModelConfig is saved in a JSON file along with the weights of the NN model
type ModelConfig struct {
	Architecture string   `json:"architecture"` // eg "yolov8"
	Width        int      `json:"width"`        // eg 640
	Height       int      `json:"height"`       // eg 640
	Classes      []string `json:"classes"`      // eg ["person", "bicycle", "car", ...]
}

// Load model config from a JSON file
func LoadModelConfig(filename string) (*ModelConfig, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	config := &ModelConfig{}
	err = json.Unmarshal(b, config)
	if err != nil {
		return nil, err
	}
	return config, nil
}

// Load a text file with class names on each line
func LoadClassFile(filename string) ([]string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	classes := []string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			classes = append(classes, line)
		}
	}
	return classes, nil
}

// ClassIndexSet resolves class names against a model's class list, and returns
// a set of class indices suitable for DetectionParams.Classes.
func ClassIndexSet(names []string, modelClasses []string) (map[int]bool, error) {
	set := map[int]bool{}
	for _, name := range names {
		idx := -1
		for i, cls := range modelClasses {
			if cls == name {
				idx = i
				break
			}
		}
		if idx == -1 {
			return nil, fmt.Errorf("class '%v' is not recognized by this model", name)
		}
		set[idx] = true
	}
	return set, nil
}
