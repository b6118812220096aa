package services

import (
	"context"
	"encoding/json"
	"log"

	"google.golang.org/genai"

	"github.com/bobarin/ugcstudio/internal/models"
)

// ---------------------------------------------------------------------------
// Gemini service
// Text planning, image generation, and speech synthesis via the Google
// Gen AI SDK. The client is rebuilt per call from the session's current
// key, so a credential swap takes effect immediately without restarting
// anything.
// ---------------------------------------------------------------------------

const (
	defaultPlanModel  = "gemini-2.5-pro"
	defaultImageModel = "gemini-2.5-flash-image"
	defaultTTSModel   = "gemini-2.5-flash-preview-tts"

	defaultVoiceName = "Kore"
)

// KeySource provides the API key at call time. The session's credential
// state implements this.
type KeySource interface {
	APIKey() string
}

// GeminiService wraps the text, image, and speech endpoints of the AI
// service.
type GeminiService struct {
	keys       KeySource
	planModel  string
	imageModel string
	ttsModel   string
	voiceName  string
}

// NewGeminiService creates the adapter. Empty model names fall back to the
// defaults above.
func NewGeminiService(keys KeySource, planModel, imageModel, ttsModel string) *GeminiService {
	if planModel == "" {
		planModel = defaultPlanModel
	}
	if imageModel == "" {
		imageModel = defaultImageModel
	}
	if ttsModel == "" {
		ttsModel = defaultTTSModel
	}
	return &GeminiService{
		keys:       keys,
		planModel:  planModel,
		imageModel: imageModel,
		ttsModel:   ttsModel,
		voiceName:  defaultVoiceName,
	}
}

// newClient builds a genai client from the session's current key. Shared by
// the Gemini and Veo adapters.
func newClient(ctx context.Context, keys KeySource) (*genai.Client, error) {
	key := keys.APIKey()
	if key == "" {
		return nil, NewError(KindCredentialMissing, "no API key configured", nil)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, Classify("failed to create genai client", err)
	}
	return client, nil
}

// planSchema constrains the planning response to a scenes array of the six
// scene fields. The model fills what the prompt asks for; field-level
// requirements are enforced by the planner, which knows which tool is
// running.
var planSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"scenes": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"title":        {Type: genai.TypeString},
					"description":  {Type: genai.TypeString},
					"script":       {Type: genai.TypeString},
					"image_prompt": {Type: genai.TypeString},
					"video_prompt": {Type: genai.TypeString},
					"overlay_text": {Type: genai.TypeString},
				},
				Required: []string{"script", "image_prompt"},
			},
		},
	},
	Required: []string{"scenes"},
}

type planEnvelope struct {
	Scenes []models.ScenePlan `json:"scenes"`
}

// GeneratePlan runs the planning prompt in JSON mode and returns the raw
// scene plans in response order. Count and per-field validation belong to
// the caller.
func (s *GeminiService) GeneratePlan(ctx context.Context, prompt string) ([]models.ScenePlan, error) {
	client, err := newClient(ctx, s.keys)
	if err != nil {
		return nil, err
	}

	log.Printf("[Gemini] Requesting plan (model=%s, promptLen=%d)", s.planModel, len(prompt))

	contents := []*genai.Content{
		{Role: genai.RoleUser, Parts: []*genai.Part{{Text: prompt}}},
	}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   planSchema,
	}

	resp, err := client.Models.GenerateContent(ctx, s.planModel, contents, config)
	if err != nil {
		return nil, Classify("plan generation failed", err)
	}

	raw := resp.Text()
	if raw == "" {
		return nil, NewError(KindContentFiltered, "plan response contained no text", nil)
	}

	var env planEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, NewError(KindTransport, "plan response is not valid JSON", err)
	}
	if len(env.Scenes) == 0 {
		return nil, NewError(KindTransport, "plan response contained no scenes", nil)
	}

	log.Printf("[Gemini] Plan received (%d scenes)", len(env.Scenes))
	return env.Scenes, nil
}

// GenerateImage renders one scene image from its prompt plus the batch's
// reference images. Each call is independent, safe for parallel fan-out.
// Returns the image bytes and their MIME type.
func (s *GeminiService) GenerateImage(ctx context.Context, prompt string, refs []models.ReferenceImage) ([]byte, string, error) {
	client, err := newClient(ctx, s.keys)
	if err != nil {
		return nil, "", err
	}

	parts := make([]*genai.Part, 0, len(refs)+1)
	for _, ref := range refs {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: ref.MIMEType, Data: ref.Data},
		})
	}
	parts = append(parts, &genai.Part{Text: prompt})

	contents := []*genai.Content{{Role: genai.RoleUser, Parts: parts}}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	}

	log.Printf("[Gemini] Generating image (model=%s, refs=%d, promptLen=%d)", s.imageModel, len(refs), len(prompt))

	resp, err := client.Models.GenerateContent(ctx, s.imageModel, contents, config)
	if err != nil {
		return nil, "", Classify("image generation failed", err)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, part.InlineData.MIMEType, nil
			}
		}
	}
	return nil, "", NewError(KindContentFiltered, "image response contained no image data", nil)
}

// GenerateSpeech synthesizes voice-over audio for the given text with the
// configured prebuilt voice. Returns raw audio bytes and their MIME type.
func (s *GeminiService) GenerateSpeech(ctx context.Context, text string) ([]byte, string, error) {
	client, err := newClient(ctx, s.keys)
	if err != nil {
		return nil, "", err
	}

	contents := []*genai.Content{
		{Role: genai.RoleUser, Parts: []*genai.Part{{Text: text}}},
	}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: s.voiceName},
			},
		},
	}

	log.Printf("[Gemini] Generating speech (model=%s, voice=%s, textLen=%d)", s.ttsModel, s.voiceName, len(text))

	resp, err := client.Models.GenerateContent(ctx, s.ttsModel, contents, config)
	if err != nil {
		return nil, "", Classify("speech generation failed", err)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mime := part.InlineData.MIMEType
				if mime == "" {
					mime = "audio/wav"
				}
				return part.InlineData.Data, mime, nil
			}
		}
	}
	return nil, "", NewError(KindContentFiltered, "speech response contained no audio data", nil)
}
