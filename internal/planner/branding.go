package planner

import (
	"fmt"
	"strings"

	"github.com/bobarin/ugcstudio/internal/models"
	"github.com/bobarin/ugcstudio/internal/services"
)

// BrandingStrategy plans personal branding videos. Instead of a product and
// a narrative structure, it works from the creator's topic notes and a
// reference script whose tone the plan should imitate. Only the script and
// image prompt are load-bearing downstream, so plan validation is
// deliberately looser than the UGC strategy's.
type BrandingStrategy struct{}

// NewBrandingStrategy creates the strategy.
func NewBrandingStrategy() *BrandingStrategy {
	return &BrandingStrategy{}
}

func (s *BrandingStrategy) Tool() models.Tool { return models.ToolPersonalBranding }

func (s *BrandingStrategy) Defaults() models.SceneDefaults {
	return models.SceneDefaults{
		TitlePrefix:        "Part",
		Description:        "Waiting for generation.",
		DefaultVideoPrompt: "The person speaks directly to camera, static framing with natural gestures.",
	}
}

func (s *BrandingStrategy) BuildPrompt(req Request) (string, error) {
	if strings.TrimSpace(req.Comments) == "" {
		return "", services.Validation("topic notes are required")
	}
	if strings.TrimSpace(req.ReferenceScript) == "" {
		return "", services.Validation("a reference script is required")
	}
	if !req.HasModelImage {
		return "", services.Validation("a model image is required")
	}

	var b strings.Builder
	fmt.Fprintf(&b, `You are a personal branding coach for content creators. Create a content plan for a %d-part talking-head video where the creator builds authority and connection with their audience.

Topic notes from the creator: %s
`, req.SceneCount, req.Comments)
	fmt.Fprintf(&b, "\nMatch the voice, rhythm, and energy of this reference script:\n%s\n", req.ReferenceScript)
	b.WriteString("\nGoal: an authentic to-camera video that feels personal, not produced.")

	const fields = `"title", "description", "script", "image_prompt", "video_prompt", "overlay_text"`
	return b.String() + sharedOutputContract(req.SceneCount, fields) + `
"image_prompt" must feature the person from the attached reference image, kept visually consistent across every scene, in a believable everyday setting.
"overlay_text" is a short on-screen hook for the part.`, nil
}

// ValidatePlan requires only the fields the pipeline cannot work without.
func (s *BrandingStrategy) ValidatePlan(plans []models.ScenePlan) error {
	for i, p := range plans {
		var missing []string
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
