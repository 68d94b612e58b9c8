package nnload

// Package nnload wraps up our 'nn' interface layer, and has concrete references to our
// neural network implementations (OpenCV DNN, TFLite), so that you can just call one
// function to load a model, and not need to know about the implementation details.

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/spotter/pkg/dnn"
	"github.com/cyclopcam/spotter/pkg/kibi"
	"github.com/cyclopcam/spotter/pkg/nn"
	"github.com/cyclopcam/spotter/pkg/tflite"
)

var ErrModelLoad = errors.New("Failed to load NN model")

// ModelStub returns the model filename without its extension, which is where
// we look for the model's sidecar files ("stub.json", "stub.txt")
func ModelStub(modelFile string) string {
	return strings.TrimSuffix(modelFile, filepath.Ext(modelFile))
}

// LoadModel loads a neural network from disk. The file extension picks the
// implementation: ".onnx" runs on OpenCV DNN, ".tflite" on TensorFlow Lite.
func LoadModel(logger logs.Log, modelFile string, target dnn.Target, threadingMode nn.ThreadingMode) (nn.ObjectDetector, error) {
	if _, err := os.Stat(modelFile); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	config, err := loadConfig(logger, modelFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}

	var detector nn.ObjectDetector
	switch strings.ToLower(filepath.Ext(modelFile)) {
	case ".onnx":
		detector, err = dnn.NewDetector(logger, config, modelFile, target)
	case ".tflite":
		detector, err = tflite.NewDetector(logger, config, modelFile, threadingMode)
	default:
		err = fmt.Errorf("Unrecognized NN model type '%v'", modelFile)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	logger.Infof("Loaded NN model '%v', %v classes, input %vx%v",
		modelFile, len(detector.Config().Classes), detector.Config().Width, detector.Config().Height)
	return detector, nil
}

// Load the config that travels with a model file.
// "<stub>.json" is the full config. If that's missing, classes can still come
// from "<stub>.txt" with one name per line, and a model with no class list at
// all is assumed to be a stock COCO detector.
func loadConfig(logger logs.Log, modelFile string) (*nn.ModelConfig, error) {
	stub := ModelStub(modelFile)
	config, err := nn.LoadModelConfig(stub + ".json")
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		config = &nn.ModelConfig{}
	}
	if len(config.Classes) == 0 {
		if classes, err := nn.LoadClassFile(stub + ".txt"); err == nil && len(classes) != 0 {
			config.Classes = classes
		}
	}
	if len(config.Classes) == 0 {
		logger.Infof("No class list found for '%v' - assuming COCO", modelFile)
		config.Classes = nn.COCOClasses
	}
	return config, nil
}

// If the model file is not yet downloaded, then download it now.
// Returns immediately if the file already exists. The model's ".json" config
// is fetched too, on a best effort basis.
func DownloadModel(logger logs.Log, srcUrl, modelFile string) error {
	if _, err := os.Stat(modelFile); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	logger.Infof("Downloading %v to %v", srcUrl, modelFile)
	size, err := downloadFile(srcUrl, modelFile)
	if err != nil {
		return fmt.Errorf("Download of '%v' failed: %w", srcUrl, err)
	}
	logger.Infof("Downloaded %v (%v)", modelFile, kibi.Bytes(size))

	configFile := ModelStub(modelFile) + ".json"
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		configUrl := strings.TrimSuffix(srcUrl, path.Ext(srcUrl)) + ".json"
		if _, err := downloadFile(configUrl, configFile); err != nil {
			logger.Infof("No model config at %v (%v)", configUrl, err)
		}
	}
	return nil
}

func downloadFile(srcUrl, targetFile string) (int64, error) {
	tempFile := targetFile + ".tmp"
	if err := os.MkdirAll(filepath.Dir(targetFile), 0755); err != nil {
		return 0, err
	}
	resp, err := http.DefaultClient.Get(srcUrl)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return 0, fmt.Errorf("HTTP error %v", resp.Status)
	}
	file, err := os.Create(tempFile)
	if err != nil {
		return 0, err
	}
	defer file.Close()
	size, err := io.Copy(file, resp.Body)
	if err != nil {
		return 0, err
	}
	file.Close()
	return size, os.Rename(tempFile, targetFile)
}
