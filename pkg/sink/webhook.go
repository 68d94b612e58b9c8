package sink

import (
	"fmt"
	"net/http"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/spotter/pkg/nn"
	"github.com/cyclopcam/spotter/pkg/requests"
)

// WebhookSink POSTs detections to an HTTP endpoint as JSON.
// Batches with no detections are acknowledged without making a request, so
// a quiet stream costs nothing on the wire.
type WebhookSink struct {
	log     logs.Log
	url     string
	classes []string
	client  *http.Client
}

// The body of a webhook POST
type WebhookPayload struct {
	FrameIndex   int64           `json:"frameIndex"`
	SourceWidth  int             `json:"sourceWidth"`
	SourceHeight int             `json:"sourceHeight"`
	Objects      []WebhookObject `json:"objects"`
}

type WebhookObject struct {
	Class      string  `json:"class"`
	Confidence float32 `json:"confidence"`
	Rect       nn.Rect `json:"rect"`
}

func NewWebhookSink(logger logs.Log, url string, classes []string) *WebhookSink {
	return &WebhookSink{
		log:     logger,
		url:     url,
		classes: classes,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *WebhookSink) HandleRegions(batch *Batch) error {
	if len(batch.Regions) == 0 {
		return nil
	}
	payload := WebhookPayload{
		FrameIndex:   batch.FrameIndex,
		SourceWidth:  batch.SourceWidth,
		SourceHeight: batch.SourceHeight,
		Objects:      make([]WebhookObject, 0, len(batch.Regions)),
	}
	for _, region := range batch.Regions {
		payload.Objects = append(payload.Objects, WebhookObject{
			Class:      className(s.classes, region.Object.Class),
			Confidence: region.Object.Confidence,
			Rect:       region.Rect,
		})
	}
	if err := requests.PostJSON(s.client, s.url, &payload); err != nil {
		return fmt.Errorf("Webhook POST to %v failed: %w", s.url, err)
	}
	return nil
}

func (s *WebhookSink) Close() error {
	return nil
}
