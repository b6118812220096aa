package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadBuiltinCatalog(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("failed to load built-in catalog: %v", err)
	}
	if len(c.List()) != 8 {
		t.Fatalf("expected 8 structures, got %d", len(c.List()))
	}
	if c.Default().ID != "problem-solution" {
		t.Errorf("default structure = %s, want problem-solution", c.Default().ID)
	}
}

func TestRequiredParts(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	ps, ok := c.Get("problem-solution")
	if !ok {
		t.Fatal("problem-solution missing")
	}
	if !ps.Requires(RefProduct) || !ps.Requires(RefModel) {
		t.Error("problem-solution should require product and model")
	}

	th, ok := c.Get("talking-head-awareness")
	if !ok {
		t.Fatal("talking-head-awareness missing")
	}
	if th.Requires(RefProduct) {
		t.Error("talking-head-awareness should not require a product image")
	}
	if !th.Requires(RefModel) {
		t.Error("talking-head-awareness should require a model image")
	}
}

func TestPlanningPromptRendering(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	st, _ := c.Get("problem-solution")

	prompt, err := st.PlanningPrompt(PromptInput{
		ProductName: "GlowUp Serum",
		Brief:       "focus on morning routines",
		SceneCount:  6,
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"GlowUp Serum", "6-scene", "focus on morning routines"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestPlanningPromptOmitsEmptyBrief(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	st, _ := c.Get("unboxing")
	prompt, err := st.PlanningPrompt(PromptInput{ProductName: "Box", SceneCount: 4})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(prompt, "Additional instructions") {
		t.Error("empty brief should not render the instructions line")
	}
}

func TestMergeFileReplacesAndAppends(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	overlay := `structures:
  - id: problem-solution
    name: Custom Problem/Solution
    description: overridden
    required_parts: [model]
    prompt_template: "Plan {{.SceneCount}} scenes for {{.ProductName}}."
  - id: testimonial
    name: Testimonial
    description: customer quote style
    required_parts: [product]
    prompt_template: "Testimonial plan for {{.ProductName}} in {{.SceneCount}} scenes."
`
	path := filepath.Join(t.TempDir(), "structures.yaml")
	if err := os.WriteFile(path, []byte(overlay), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := c.MergeFile(path); err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	if len(c.List()) != 9 {
		t.Errorf("expected 9 structures after merge, got %d", len(c.List()))
	}
	ps, _ := c.Get("problem-solution")
	if ps.Name != "Custom Problem/Solution" {
		t.Errorf("override not applied, name = %q", ps.Name)
	}
	if ps.Requires(RefProduct) {
		t.Error("override should have dropped the product requirement")
	}
	if _, ok := c.Get("testimonial"); !ok {
		t.Error("appended structure missing")
	}

	// The default stays the first declared structure even after override.
	if c.Default().ID != "problem-solution" {
		t.Errorf("default changed to %s", c.Default().ID)
	}
}

func TestMergeRejectsBadEntries(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	bad := `structures:
  - id: broken
    name: Broken
    required_parts: [sidekick]
    prompt_template: "x"
`
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := c.MergeFile(path); err == nil {
		t.Error("expected error for unknown reference role")
	}
}
