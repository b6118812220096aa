package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"google.golang.org/genai"
)

// ---------------------------------------------------------------------------
// Veo video generation service
// Animates a scene's still image into a short clip. The generated image is
// passed as the first frame and the scene's animation prompt describes the
// motion. The async operation is polled at a fixed interval until done,
// cancelled, or timed out; this blocks the calling goroutine, which fits
// the worker model where each video job runs on its own goroutine.
// ---------------------------------------------------------------------------

const (
	defaultVeoModel    = "veo-3.1-fast-generate-preview"
	veoPollInterval    = 5 * time.Second
	defaultVeoPollMax  = 10 * time.Minute
	veoAspectRatio     = "9:16"
	veoResolution      = "720p"
	veoPersonGenConfig = "allow_adult"
)

// VeoService handles image-to-video generation.
type VeoService struct {
	keys        KeySource
	model       string
	maxPollTime time.Duration
}

// NewVeoService creates the adapter. An empty model or zero maxPollTime
// falls back to defaults.
func NewVeoService(keys KeySource, model string, maxPollTime time.Duration) *VeoService {
	if model == "" {
		model = defaultVeoModel
	}
	if maxPollTime <= 0 {
		maxPollTime = defaultVeoPollMax
	}
	return &VeoService{keys: keys, model: model, maxPollTime: maxPollTime}
}

// VideoRequest carries everything one video generation needs.
type VideoRequest struct {
	ImageData []byte
	ImageMIME string
	Script    string
	Prompt    string
	WithMusic bool
}

// ComposeVideoPrompt merges the scene's dialogue and animation direction
// into the final Veo instruction. Vertical framing and the no-overlay rule
// are stated here rather than left to the model's defaults.
func ComposeVideoPrompt(script, animationPrompt string, withMusic bool) string {
	var b strings.Builder
	b.WriteString("Animate this image into an authentic, handheld UGC-style video. ")
	b.WriteString("Fill the entire 9:16 vertical frame. Natural lighting, realistic motion, no text, logos, or watermarks.\n\n")
	if script != "" {
		fmt.Fprintf(&b, "The person in the scene speaks this line naturally to camera: %q\n\n", script)
	}
	if animationPrompt != "" {
		fmt.Fprintf(&b, "Motion direction: %s\n\n", animationPrompt)
	}
	if withMusic {
		b.WriteString("Add subtle, upbeat background music that fits a social media ad.")
	} else {
		b.WriteString("No background music.")
	}
	return b.String()
}

// GenerateVideo submits the job, polls until completion, and downloads the
// result. Returns the raw video bytes (MP4).
func (s *VeoService) GenerateVideo(ctx context.Context, req VideoRequest) ([]byte, error) {
	client, err := newClient(ctx, s.keys)
	if err != nil {
		return nil, err
	}

	prompt := ComposeVideoPrompt(req.Script, req.Prompt, req.WithMusic)
	firstFrame := &genai.Image{
		ImageBytes: req.ImageData,
		MIMEType:   req.ImageMIME,
	}
	config := &genai.GenerateVideosConfig{
		AspectRatio:      veoAspectRatio,
		Resolution:       veoResolution,
		PersonGeneration: veoPersonGenConfig,
		NumberOfVideos:   1,
	}

	log.Printf("[Veo] Starting video generation (model=%s, promptLen=%d, imageSize=%d bytes)", s.model, len(prompt), len(req.ImageData))

	operation, err := client.Models.GenerateVideos(ctx, s.model, prompt, firstFrame, config)
	if err != nil {
		return nil, Classify("failed to start video generation", err)
	}

	log.Printf("[Veo] Operation started: %s", operation.Name)

	deadline := time.Now().Add(s.maxPollTime)
	pollCount := 0
	for !operation.Done {
		if time.Now().After(deadline) {
			return nil, NewError(KindTransport, fmt.Sprintf("video generation timed out after %v (polled %d times)", s.maxPollTime, pollCount), nil)
		}

		select {
		case <-ctx.Done():
			return nil, NewError(KindTransport, "video generation cancelled", ctx.Err())
		case <-time.After(veoPollInterval):
		}

		pollCount++
		operation, err = client.Operations.GetVideosOperation(ctx, operation, nil)
		if err != nil {
			return nil, Classify(fmt.Sprintf("failed to poll operation (attempt %d)", pollCount), err)
		}

		log.Printf("[Veo] Poll %d: done=%v", pollCount, operation.Done)
	}

	if len(operation.Error) > 0 {
		errJSON, _ := json.Marshal(operation.Error)
		return nil, Classify("video generation operation failed", fmt.Errorf("%s", errJSON))
	}
	if operation.Response == nil {
		return nil, NewError(KindTransport, fmt.Sprintf("no response in completed operation after %d polls (operation: %s)", pollCount, operation.Name), nil)
	}
	if operation.Response.RAIMediaFilteredCount > 0 {
		reasons := "unknown"
		if len(operation.Response.RAIMediaFilteredReasons) > 0 {
			reasons = strings.Join(operation.Response.RAIMediaFilteredReasons, ", ")
		}
		return nil, NewError(KindContentFiltered, fmt.Sprintf("video blocked by safety filters: %d filtered, reasons: %s", operation.Response.RAIMediaFilteredCount, reasons), nil)
	}
	if len(operation.Response.GeneratedVideos) == 0 {
		return nil, NewError(KindContentFiltered, "no videos in completed operation", nil)
	}

	video := operation.Response.GeneratedVideos[0]
	if video.Video == nil {
		return nil, NewError(KindTransport, "generated video object is nil", nil)
	}

	log.Printf("[Veo] Video ready, downloading...")

	// The download is a separate privileged call; its failures carry the
	// same credential signatures as generation and must invalidate the
	// session the same way.
	downloadURI := genai.NewDownloadURIFromVideo(video.Video)
	videoBytes, err := client.Files.Download(ctx, downloadURI, nil)
	if err != nil {
		kind := classify(err)
		if kind == KindTransport {
			kind = KindDownload
		}
		return nil, NewError(kind, "failed to download generated video", err)
	}
	if len(videoBytes) == 0 {
		return nil, NewError(KindDownload, "downloaded video is empty", nil)
	}

	log.Printf("[Veo] Video generated (%d bytes, %d polls)", len(videoBytes), pollCount)
	return videoBytes, nil
}
