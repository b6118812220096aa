package services

import (
	"context"
	"encoding/json"
	"log"

	openai "github.com/sashabaranov/go-openai"

	"github.com/bobarin/ugcstudio/internal/models"
)

// ---------------------------------------------------------------------------
// OpenAI plan provider
// Alternative planning backend using JSON mode, selected via configuration.
// Image, video, and speech work always run on the Google services; only the
// text planning step is swappable.
// ---------------------------------------------------------------------------

const openaiPlanSystemPrompt = `You are an expert short-form video content planner.
The user gives you a planning brief. Respond with JSON only, matching this shape:
{"scenes": [{"title": "...", "description": "...", "script": "...", "image_prompt": "...", "video_prompt": "...", "overlay_text": "..."}]}
Produce exactly the number of scenes the brief asks for, in order.
Scripts are spoken aloud: short, conversational sentences.
Image prompts are complete scene descriptions for a 9:16 vertical frame, with no text or logos in the image.`

// OpenAIService generates scene plans via the OpenAI chat API.
type OpenAIService struct {
	client *openai.Client
	model  string
}

// NewOpenAIService creates the provider. An empty model defaults to
// gpt-5-mini.
func NewOpenAIService(apiKey, model string) *OpenAIService {
	if model == "" {
		model = "gpt-5-mini"
	}
	return &OpenAIService{client: openai.NewClient(apiKey), model: model}
}

// GeneratePlan runs the planning prompt in JSON mode and returns the raw
// scene plans in response order.
func (s *OpenAIService) GeneratePlan(ctx context.Context, prompt string) ([]models.ScenePlan, error) {
	log.Printf("[OpenAI] Requesting plan (model=%s, promptLen=%d)", s.model, len(prompt))

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: openaiPlanSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 1.0,
	})
	if err != nil {
		return nil, Classify("openai plan request failed", err)
	}
	if len(resp.Choices) == 0 {
		return nil, NewError(KindTransport, "no response from openai", nil)
	}

	raw := resp.Choices[0].Message.Content
	var env planEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		const maxLogLen = 2000
		if len(raw) > maxLogLen {
			log.Printf("[OpenAI] raw response (truncated): %s...", raw[:maxLogLen])
		} else {
			log.Printf("[OpenAI] raw response: %s", raw)
		}
		return nil, NewError(KindTransport, "failed to parse plan", err)
	}
	if len(env.Scenes) == 0 {
		return nil, NewError(KindTransport, "plan has no scenes", nil)
	}

	log.Printf("[OpenAI] Plan received (%d scenes)", len(env.Scenes))
	return env.Scenes, nil
}
