package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cyclopcam/spotter/pkg/kibi"
	"github.com/cyclopcam/spotter/pkg/nn"
	"github.com/joho/godotenv"
)

// Package config assembles the runtime configuration from defaults, then an
// optional JSON file, then environment variables (with a ".env" file folded
// in), and finally command line flags, each layer overriding the last.

var ErrConfiguration = errors.New("Invalid configuration")

type Config struct {
	VideoInput          string   `json:"videoInput"`          // Video file, stream URL, or webcam device number such as "0"
	Model               string   `json:"model"`               // Path to the NN model file (.onnx or .tflite)
	ModelURL            string   `json:"modelURL"`            // Where to download the model from, if the file is missing
	TargetFPS           float64  `json:"targetFPS"`           // Frames per second to run detection at
	ConfidenceThreshold float32  `json:"confidenceThreshold"` // Minimum NN confidence for a detection to count
	IOUThreshold        float32  `json:"iouThreshold"`        // NMS intersection-over-union threshold
	Classes             []string `json:"classes"`             // Object classes to report
	Target              string   `json:"target"`              // NN execution target: auto, cpu, cuda
	Display             bool     `json:"display"`             // Show the annotated video in a window
	OutFile             string   `json:"outFile"`             // Write the annotated video to this file (empty = off)
	WebhookURL          string   `json:"webhookURL"`          // POST detections to this URL (empty = off)
	SnapshotDir         string   `json:"snapshotDir"`         // Save JPEGs of detected regions here (empty = off)
	MaxSnapshots        int      `json:"maxSnapshots"`        // Stop saving region JPEGs after this many
	SnapshotBudget      string   `json:"snapshotBudget"`      // Stop saving region JPEGs after this much disk, eg "50MB" (empty = no byte cap)
}

func Default() *Config {
	return &Config{
		TargetFPS:           10,
		ConfidenceThreshold: nn.DefaultProbabilityThreshold,
		IOUThreshold:        nn.DefaultNmsIouThreshold,
		Classes:             []string{"person"},
		Target:              "auto",
		Display:             true,
		MaxSnapshots:        100,
	}
}

// Load builds the config from everything except command line flags.
// filename is an optional JSON config file, "" skips it.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename != "" {
		b, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		if err := json.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("%w: failed to parse '%v': %v", ErrConfiguration, filename, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	// A .env file in the working directory is optional
	godotenv.Load()

	if v := os.Getenv("VIDEO_INPUT"); v != "" {
		c.VideoInput = v
	}
	if v := os.Getenv("MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("MODEL_URL"); v != "" {
		c.ModelURL = v
	}
	if v := os.Getenv("OUT_FILE"); v != "" {
		c.OutFile = v
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		c.WebhookURL = v
	}
	if v := os.Getenv("SNAPSHOT_DIR"); v != "" {
		c.SnapshotDir = v
	}
	if v := os.Getenv("SNAPSHOT_BUDGET"); v != "" {
		c.SnapshotBudget = v
	}
	if v := os.Getenv("NN_TARGET"); v != "" {
		c.Target = v
	}
	if v := os.Getenv("CLASSES"); v != "" {
		c.Classes = ParseClassList(v)
	}

	// CAM_FMS is a typo that shipped, so it stays accepted
	fps := getenv("CAM_FPS", "CAM_FMS")
	if fps != "" {
		f, err := strconv.ParseFloat(fps, 64)
		if err != nil {
			return fmt.Errorf("%w: bad CAM_FPS value '%v'", ErrConfiguration, fps)
		}
		c.TargetFPS = f
	}
	if v := os.Getenv("IOU_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return fmt.Errorf("%w: bad IOU_THRESHOLD value '%v'", ErrConfiguration, v)
		}
		c.IOUThreshold = float32(f)
	}
	if v := os.Getenv("CONFIDENCE_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return fmt.Errorf("%w: bad CONFIDENCE_THRESHOLD value '%v'", ErrConfiguration, v)
		}
		c.ConfidenceThreshold = float32(f)
	}
	if v := os.Getenv("MAX_SNAPSHOTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: bad MAX_SNAPSHOTS value '%v'", ErrConfiguration, v)
		}
		c.MaxSnapshots = n
	}
	// HEADLESS rather than DISPLAY, because $DISPLAY already means something
	if v := os.Getenv("HEADLESS"); v != "" {
		headless, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: bad HEADLESS value '%v'", ErrConfiguration, v)
		}
		c.Display = !headless
	}
	return nil
}

// Validate must pass before anything gets opened or loaded
func (c *Config) Validate() error {
	if c.VideoInput == "" {
		return fmt.Errorf("%w: no video input", ErrConfiguration)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: no NN model", ErrConfiguration)
	}
	if c.TargetFPS <= 0 {
		return fmt.Errorf("%w: target FPS must be positive, have %v", ErrConfiguration, c.TargetFPS)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: confidence threshold %v is outside [0,1]", ErrConfiguration, c.ConfidenceThreshold)
	}
	if c.IOUThreshold < 0 || c.IOUThreshold > 1 {
		return fmt.Errorf("%w: IoU threshold %v is outside [0,1]", ErrConfiguration, c.IOUThreshold)
	}
	switch c.Target {
	case "", "auto", "cpu", "cuda":
	default:
		return fmt.Errorf("%w: unknown NN target '%v'", ErrConfiguration, c.Target)
	}
	if c.MaxSnapshots < 0 {
		return fmt.Errorf("%w: max snapshots must not be negative", ErrConfiguration)
	}
	if _, err := c.SnapshotBudgetBytes(); err != nil {
		return err
	}
	return nil
}

// SnapshotBudgetBytes returns the snapshot byte budget, 0 meaning no cap
func (c *Config) SnapshotBudgetBytes() (int64, error) {
	if c.SnapshotBudget == "" {
		return 0, nil
	}
	b, err := kibi.Parse(c.SnapshotBudget)
	if err != nil {
		return 0, fmt.Errorf("%w: bad snapshot budget '%v': %v", ErrConfiguration, c.SnapshotBudget, err)
	}
	return b, nil
}

func getenv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// ParseClassList splits a comma separated class list, dropping blanks
func ParseClassList(v string) []string {
	classes := []string{}
	for _, c := range strings.Split(v, ",") {
		c = strings.TrimSpace(c)
		if c != "" {
			classes = append(classes, c)
		}
	}
	return classes
}
