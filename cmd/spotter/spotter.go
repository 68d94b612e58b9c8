package main

import (
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/coreos/go-systemd/daemon"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/spotter/pkg/config"
	"github.com/cyclopcam/spotter/pkg/dnn"
	"github.com/cyclopcam/spotter/pkg/nn"
	"github.com/cyclopcam/spotter/pkg/nnload"
	"github.com/cyclopcam/spotter/pkg/overlay"
	"github.com/cyclopcam/spotter/pkg/pipeline"
	"github.com/cyclopcam/spotter/pkg/sink"
	"github.com/cyclopcam/spotter/pkg/videox"
)

func main() {
	parser := argparse.NewParser("spotter", "Watch a video stream and report the objects in it")
	configFile := parser.String("c", "config", &argparse.Options{Help: "JSON configuration file", Default: ""})
	input := parser.String("i", "input", &argparse.Options{Help: "Video file, stream URL, or webcam device number", Default: ""})
	modelFile := parser.String("n", "model", &argparse.Options{Help: "Path to NN model file (.onnx or .tflite)", Default: ""})
	modelURL := parser.String("", "model-url", &argparse.Options{Help: "Download the model from this URL if the file is missing", Default: ""})
	fps := parser.Float("", "fps", &argparse.Options{Help: "Detection rate in frames per second", Default: 0.0})
	confidence := parser.Float("", "confidence", &argparse.Options{Help: "Minimum confidence for a detection to count", Default: 0.0})
	iou := parser.Float("", "iou", &argparse.Options{Help: "NMS intersection-over-union threshold", Default: 0.0})
	classes := parser.String("", "classes", &argparse.Options{Help: "Comma-separated list of classes to report", Default: ""})
	target := parser.String("", "target", &argparse.Options{Help: "NN execution target (auto, cpu, cuda)", Default: ""})
	outFile := parser.String("o", "out", &argparse.Options{Help: "Write the annotated video to this file", Default: ""})
	webhook := parser.String("", "webhook", &argparse.Options{Help: "POST detections to this URL", Default: ""})
	snapshotDir := parser.String("", "snapshots", &argparse.Options{Help: "Save JPEGs of detected regions to this directory", Default: ""})
	snapshotBudget := parser.String("", "snapshot-budget", &argparse.Options{Help: "Stop saving snapshots after this much disk, eg 50MB", Default: ""})
	noDisplay := parser.Flag("q", "no-display", &argparse.Options{Help: "Don't open a display window", Default: false})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	// Flags sit at the top of the precedence order
	if *input != "" {
		cfg.VideoInput = *input
	}
	if *modelFile != "" {
		cfg.Model = *modelFile
	}
	if *modelURL != "" {
		cfg.ModelURL = *modelURL
	}
	if *fps != 0 {
		cfg.TargetFPS = *fps
	}
	if *confidence != 0 {
		cfg.ConfidenceThreshold = float32(*confidence)
	}
	if *iou != 0 {
		cfg.IOUThreshold = float32(*iou)
	}
	if *classes != "" {
		cfg.Classes = config.ParseClassList(*classes)
	}
	if *target != "" {
		cfg.Target = *target
	}
	if *outFile != "" {
		cfg.OutFile = *outFile
	}
	if *webhook != "" {
		cfg.WebhookURL = *webhook
	}
	if *snapshotDir != "" {
		cfg.SnapshotDir = *snapshotDir
	}
	if *snapshotBudget != "" {
		cfg.SnapshotBudget = *snapshotBudget
	}
	if *noDisplay {
		cfg.Display = false
	}
	if err := cfg.Validate(); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}

	nnTarget, err := dnn.ParseTarget(cfg.Target)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}

	if cfg.ModelURL != "" {
		if err := nnload.DownloadModel(logger, cfg.ModelURL, cfg.Model); err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
	}
	detector, err := nnload.LoadModel(logger, cfg.Model, nnTarget, nn.ThreadingModeParallel)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	defer detector.Close()

	params := nn.NewDetectionParams()
	params.ProbabilityThreshold = cfg.ConfidenceThreshold
	params.NmsIouThreshold = cfg.IOUThreshold
	params.Classes, err = nn.ClassIndexSet(cfg.Classes, detector.Config().Classes)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}

	source, err := videox.OpenSource(cfg.VideoInput)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}

	sinks := []sink.Sink{sink.NewLogSink(logger, detector.Config().Classes)}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, sink.NewWebhookSink(logger, cfg.WebhookURL, detector.Config().Classes))
	}
	if cfg.SnapshotDir != "" {
		budget, err := cfg.SnapshotBudgetBytes()
		if err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
		snapshots, err := sink.NewSnapshotSink(logger, cfg.SnapshotDir, cfg.MaxSnapshots, budget)
		if err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
		sinks = append(sinks, snapshots)
	}

	options := &pipeline.Options{
		TargetFPS: cfg.TargetFPS,
		Params:    params,
	}
	if cfg.Display {
		options.Display = overlay.NewWindow()
	}
	if cfg.OutFile != "" {
		writer, err := videox.NewWriter(cfg.OutFile, source.FPS(), source.Width(), source.Height())
		if err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
		options.Writer = writer
	}

	p, err := pipeline.New(logger, source, detector, sink.NewMultiSink(sinks...), options)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}

	// Tell systemd that we're alive
	daemon.SdNotify(false, daemon.SdNotifyReady)

	if err := p.Run(); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	logger.Infof("Done")
}
