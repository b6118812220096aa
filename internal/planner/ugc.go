package planner

import (
	"fmt"
	"strings"

	"github.com/bobarin/ugcstudio/internal/catalog"
	"github.com/bobarin/ugcstudio/internal/models"
	"github.com/bobarin/ugcstudio/internal/services"
)

// UGCStrategy plans product marketing videos from a structure in the
// narrative catalog. The structure decides the prompt phrasing and which
// reference images the run must include.
type UGCStrategy struct {
	catalog *catalog.Catalog
}

// NewUGCStrategy creates the strategy over a loaded catalog.
func NewUGCStrategy(c *catalog.Catalog) *UGCStrategy {
	return &UGCStrategy{catalog: c}
}

func (s *UGCStrategy) Tool() models.Tool { return models.ToolUGC }

func (s *UGCStrategy) Defaults() models.SceneDefaults {
	return models.SceneDefaults{
		TitlePrefix:        "Scene",
		Description:        "Waiting for generation.",
		DefaultVideoPrompt: "The person talks naturally to camera with subtle handheld movement.",
	}
}

// structure resolves the request's structure, falling back to the catalog
// default when none is given.
func (s *UGCStrategy) structure(id string) (*catalog.Structure, error) {
	if id == "" {
		return s.catalog.Default(), nil
	}
	st, ok := s.catalog.Get(id)
	if !ok {
		return nil, services.Validation("unknown structure %q", id)
	}
	return st, nil
}

func (s *UGCStrategy) BuildPrompt(req Request) (string, error) {
	st, err := s.structure(req.StructureID)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(req.ProductName) == "" {
		return "", services.Validation("product name is required")
	}
	if st.Requires(catalog.RefProduct) && !req.HasProductImage {
		return "", services.Validation("structure %q requires a product image", st.ID)
	}
	if st.Requires(catalog.RefModel) && !req.HasModelImage {
		return "", services.Validation("structure %q requires a model image", st.ID)
	}

	prompt, err := st.PlanningPrompt(catalog.PromptInput{
		ProductName: req.ProductName,
		Brief:       req.Brief,
		SceneCount:  req.SceneCount,
	})
	if err != nil {
		return "", services.NewError(services.KindValidation, "failed to render planning prompt", err)
	}

	const fields = `"title", "description", "script", "image_prompt", "video_prompt", "overlay_text"`
	return prompt + sharedOutputContract(req.SceneCount, fields) + `
"image_prompt" must feature the product and the person from the attached reference images, kept visually consistent across every scene.
"video_prompt" describes the motion for animating the image into a short clip.
"overlay_text" is a short on-screen caption; it may be empty.`, nil
}

// ValidatePlan requires the full field set: a UGC plan drives titles, cards,
// and both generation prompts, so a scene with any core field missing is a
// hard failure for the whole plan.
func (s *UGCStrategy) ValidatePlan(plans []models.ScenePlan) error {
	for i, p := range plans {
		var missing []string
		if strings.TrimSpace(p.Title) == "" {
			missing = append(missing, "title")
		}
		if strings.TrimSpace(p.Description) == "" {
			missing = append(missing, "description")
		}
		if strings.TrimSpace(p.Script) == "" {
			missing = append(missing, "script")
		}
		if strings.TrimSpace(p.ImagePrompt) == "" {
			missing = append(missing, "image_prompt")
		}
		if len(missing) > 0 {
			return services.NewError(services.KindTransport,
				fmt.Sprintf("plan scene %d missing required fields: %v", i+1, missing), nil)
		}
	}
	return nil
}
