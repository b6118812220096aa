package planner

import (
	"context"
	"fmt"
	"log"

	"github.com/bobarin/ugcstudio/internal/models"
	"github.com/bobarin/ugcstudio/internal/services"
)

// ---------------------------------------------------------------------------
// Planner
// Turns a generation request into validated scene plans. The tool-specific
// parts (which inputs are required, how the prompt is phrased, which plan
// fields must be filled) live in a Strategy per tool; the provider call and
// the all-or-nothing validation are shared.
// ---------------------------------------------------------------------------

// PlanProvider generates raw scene plans from a rendered prompt. Implemented
// by the Gemini and OpenAI services.
type PlanProvider interface {
	GeneratePlan(ctx context.Context, prompt string) ([]models.ScenePlan, error)
}

// Request carries the planning inputs for one generation run.
type Request struct {
	Tool            models.Tool
	SceneCount      int
	StructureID     string
	ProductName     string
	Brief           string
	Comments        string
	ReferenceScript string
	HasProductImage bool
	HasModelImage   bool
}

// Strategy is the per-tool variation point: input validation, prompt
// phrasing, and plan field requirements.
type Strategy interface {
	Tool() models.Tool
	Defaults() models.SceneDefaults
	// BuildPrompt validates the request's tool-specific inputs and renders
	// the planning prompt. Input problems come back as validation errors.
	BuildPrompt(req Request) (string, error)
	// ValidatePlan checks the per-scene field requirements.
	ValidatePlan(plans []models.ScenePlan) error
}

// Planner runs the plan step for any registered tool.
type Planner struct {
	provider   PlanProvider
	strategies map[models.Tool]Strategy
}

// New creates a planner over the given provider and strategies.
func New(provider PlanProvider, strategies ...Strategy) *Planner {
	p := &Planner{provider: provider, strategies: make(map[models.Tool]Strategy)}
	for _, s := range strategies {
		p.strategies[s.Tool()] = s
	}
	return p
}

// Strategy returns the strategy registered for a tool.
func (p *Planner) Strategy(tool models.Tool) (Strategy, error) {
	s, ok := p.strategies[tool]
	if !ok {
		return nil, services.Validation("no planner registered for tool %q", tool)
	}
	return s, nil
}

// BuildPrompt validates the request and renders its planning prompt without
// calling the provider. Used by the API layer to fail bad input before the
// job is queued.
func (p *Planner) BuildPrompt(req Request) (string, error) {
	s, err := p.Strategy(req.Tool)
	if err != nil {
		return "", err
	}
	return s.BuildPrompt(req)
}

// Plan renders the prompt, calls the provider, and validates the result.
// A plan either covers every scene or fails whole: the scene count must
// match exactly and every scene must satisfy the strategy's field
// requirements. No partial plan is ever returned.
func (p *Planner) Plan(ctx context.Context, req Request) ([]models.ScenePlan, error) {
	s, err := p.Strategy(req.Tool)
	if err != nil {
		return nil, err
	}
	prompt, err := s.BuildPrompt(req)
	if err != nil {
		return nil, err
	}

	plans, err := p.provider.GeneratePlan(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if len(plans) != req.SceneCount {
		return nil, services.NewError(services.KindTransport,
			fmt.Sprintf("plan returned %d scenes, requested %d", len(plans), req.SceneCount), nil)
	}
	if err := s.ValidatePlan(plans); err != nil {
		return nil, err
	}

	log.Printf("[Planner] Plan accepted (tool=%s, scenes=%d)", req.Tool, len(plans))
	return plans, nil
}

// sharedOutputContract is appended to every planning prompt. The JSON shape
// is enforced again by the provider's response schema; repeating it in the
// prompt keeps both providers honest.
func sharedOutputContract(sceneCount int, fields string) string {
	return fmt.Sprintf(`

Respond with JSON only: {"scenes": [...]} containing EXACTLY %d scene objects, in playback order.
Each scene object has these fields: %s.
"script" is spoken aloud as a voice-over: one or two short conversational sentences.
"image_prompt" is a complete scene description for a 9:16 vertical photo in an authentic UGC style, with no text, logos, or watermarks in the image.
All text must be written in English.`, sceneCount, fields)
}
