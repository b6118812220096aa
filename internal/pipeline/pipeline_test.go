package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bobarin/ugcstudio/internal/catalog"
	"github.com/bobarin/ugcstudio/internal/models"
	"github.com/bobarin/ugcstudio/internal/planner"
	"github.com/bobarin/ugcstudio/internal/services"
	"github.com/bobarin/ugcstudio/internal/session"
	"github.com/bobarin/ugcstudio/internal/storage"
	"github.com/bobarin/ugcstudio/internal/store"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubProvider struct {
	plans []models.ScenePlan
	err   error
}

func (s *stubProvider) GeneratePlan(ctx context.Context, prompt string) ([]models.ScenePlan, error) {
	return s.plans, s.err
}

type stubImages struct {
	mu      sync.Mutex
	prompts []string
	// failFor marks prompts that should fail
	failFor map[string]error
	// block, when set, is received from before every call returns
	block chan struct{}
}

func (s *stubImages) GenerateImage(ctx context.Context, prompt string, refs []models.ReferenceImage) ([]byte, string, error) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	err := s.failFor[prompt]
	s.mu.Unlock()
	if err != nil {
		return nil, "", err
	}
	return []byte("img:" + prompt), "image/png", nil
}

func (s *stubImages) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

type stubVideos struct {
	err  error
	last services.VideoRequest
}

func (s *stubVideos) GenerateVideo(ctx context.Context, req services.VideoRequest) ([]byte, error) {
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return []byte("vid:" + req.Prompt), nil
}

type stubSpeech struct {
	err  error
	text string
}

func (s *stubSpeech) GenerateSpeech(ctx context.Context, text string) ([]byte, string, error) {
	s.text = text
	if s.err != nil {
		return nil, "", s.err
	}
	return []byte("audio"), "audio/wav", nil
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type fixture struct {
	store    *store.Store
	assets   *storage.Store
	creds    *session.Credentials
	provider *stubProvider
	images   *stubImages
	videos   *stubVideos
	speech   *stubSpeech
	pipe     *Pipeline
}

func plansFor(n int) []models.ScenePlan {
	plans := make([]models.ScenePlan, n)
	for i := range plans {
		plans[i] = models.ScenePlan{
			Title:       fmt.Sprintf("Beat %d", i+1),
			Description: "A beat",
			Script:      fmt.Sprintf("Line %d.", i+1),
			ImagePrompt: fmt.Sprintf("prompt-%d", i+1),
			VideoPrompt: fmt.Sprintf("motion-%d", i+1),
		}
	}
	return plans
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cat, err := catalog.Load()
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		creds:    session.New("test-key"),
		assets:   storage.New("http://localhost:8080"),
		provider: &stubProvider{plans: plansFor(4)},
		images:   &stubImages{failFor: map[string]error{}},
		videos:   &stubVideos{},
		speech:   &stubSpeech{},
	}
	pl := planner.New(f.provider, planner.NewUGCStrategy(cat), planner.NewBrandingStrategy())
	ugc, _ := pl.Strategy(models.ToolUGC)
	branding, _ := pl.Strategy(models.ToolPersonalBranding)
	f.store = store.New(ugc.Defaults(), branding.Defaults())
	f.pipe = New(f.store, f.assets, f.creds, pl, f.images, f.videos, f.speech, 4)
	return f
}

func payload() *models.ImagePayload {
	return &models.ImagePayload{
		Data:     base64.StdEncoding.EncodeToString([]byte("ref-bytes")),
		MIMEType: "image/jpeg",
	}
}

func startReq() models.StartBatchRequest {
	return models.StartBatchRequest{
		SceneCount:      4,
		ProductName:     "GlowUp Serum",
		ProductImage:    payload(),
		ModelImage:      payload(),
		BackgroundMusic: true,
	}
}

// runHappyBatch prepares and runs a full UGC batch with all images
// succeeding.
func runHappyBatch(t *testing.T, f *fixture) models.Batch {
	t.Helper()
	b, err := f.pipe.PrepareBatch(models.ToolUGC, startReq())
	if err != nil {
		t.Fatal(err)
	}
	f.pipe.RunBatch(context.Background(), models.ToolUGC, b.Epoch)
	return f.store.Get(models.ToolUGC)
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestPrepareBatchValidationLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	before := f.store.Epoch(models.ToolUGC)

	req := startReq()
	req.ProductName = ""
	_, err := f.pipe.PrepareBatch(models.ToolUGC, req)
	if services.KindOf(err) != services.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if f.store.Epoch(models.ToolUGC) != before {
		t.Error("failed prepare must not reset the batch")
	}
	if f.assets.Len() != 0 {
		t.Error("failed prepare must not leak assets")
	}
}

func TestPrepareBatchRequiresKey(t *testing.T) {
	f := newFixture(t)
	f.creds.Clear()
	_, err := f.pipe.PrepareBatch(models.ToolUGC, startReq())
	if services.KindOf(err) != services.KindCredentialMissing {
		t.Fatalf("expected credential_missing, got %v", err)
	}
}

func TestRunBatchHappyPath(t *testing.T) {
	f := newFixture(t)
	got := runHappyBatch(t, f)

	if got.Error != nil {
		t.Fatalf("unexpected batch error: %s", *got.Error)
	}
	for _, sc := range got.Scenes {
		if sc.Status != models.SceneStatusImageReady {
			t.Errorf("scene %d status = %s, want image_ready", sc.ID, sc.Status)
		}
		if sc.ImageAssetID == nil || sc.ImageURL == nil {
			t.Errorf("scene %d missing image artifact", sc.ID)
			continue
		}
		// Results map by position: scene i carries the image generated
		// from its own prompt.
		a, ok := f.assets.Get(*sc.ImageAssetID)
		if !ok {
			t.Errorf("scene %d asset missing from store", sc.ID)
			continue
		}
		want := "img:" + sc.ImagePrompt
		if string(a.Data) != want {
			t.Errorf("scene %d carries %q, want %q", sc.ID, a.Data, want)
		}
	}
	// 2 reference images + 4 scene images
	if f.assets.Len() != 6 {
		t.Errorf("assets.Len = %d, want 6", f.assets.Len())
	}
}

func TestRunBatchPlanFailureFailsEveryScene(t *testing.T) {
	f := newFixture(t)
	f.provider.err = errors.New("model unavailable")

	b, err := f.pipe.PrepareBatch(models.ToolUGC, startReq())
	if err != nil {
		t.Fatal(err)
	}
	f.pipe.RunBatch(context.Background(), models.ToolUGC, b.Epoch)

	got := f.store.Get(models.ToolUGC)
	if got.Error == nil || !strings.Contains(*got.Error, "planning failed") {
		t.Error("batch error not recorded")
	}
	for _, sc := range got.Scenes {
		if sc.Status != models.SceneStatusError {
			t.Errorf("scene %d status = %s, want error", sc.ID, sc.Status)
		}
	}
	if len(f.images.calls()) != 0 {
		t.Error("no image should be generated after a plan failure")
	}
}

func TestRunBatchPlanCredentialFailureInvalidatesSession(t *testing.T) {
	f := newFixture(t)
	f.provider.err = errors.New("API key not valid. Please pass a valid API key.")

	b, err := f.pipe.PrepareBatch(models.ToolUGC, startReq())
	if err != nil {
		t.Fatal(err)
	}
	f.pipe.RunBatch(context.Background(), models.ToolUGC, b.Epoch)

	if f.creds.Selected() {
		t.Error("credential failure should invalidate the session")
	}
}

func TestFanOutPartialFailureIsolated(t *testing.T) {
	f := newFixture(t)
	f.images.failFor["prompt-2"] = errors.New("blocked by safety filters")

	got := runHappyBatch(t, f)

	for _, sc := range got.Scenes {
		if sc.ID == 2 {
			if sc.Status != models.SceneStatusError {
				t.Errorf("scene 2 status = %s, want error", sc.Status)
			}
			if sc.ErrorMessage == nil || !strings.Contains(*sc.ErrorMessage, "safety") {
				t.Error("scene 2 missing its own error message")
			}
			continue
		}
		if sc.Status != models.SceneStatusImageReady {
			t.Errorf("scene %d status = %s, sibling results must survive", sc.ID, sc.Status)
		}
	}
	if got.Error == nil || !strings.Contains(*got.Error, "1 of 4") {
		t.Errorf("expected fan-out summary, got %v", got.Error)
	}
	if f.creds.Selected() != true {
		t.Error("non-credential failure must not invalidate the session")
	}
}

func TestFanOutQuotaFailureInvalidatesSession(t *testing.T) {
	f := newFixture(t)
	f.images.failFor["prompt-3"] = errors.New("googleapi: got HTTP response code 429")

	runHappyBatch(t, f)

	if f.creds.Selected() {
		t.Error("quota failure in fan-out should invalidate the session")
	}
}

func TestResetDuringFanOutDiscardsResults(t *testing.T) {
	f := newFixture(t)
	f.images.block = make(chan struct{})

	b, err := f.pipe.PrepareBatch(models.ToolUGC, startReq())
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		f.pipe.RunBatch(context.Background(), models.ToolUGC, b.Epoch)
		close(done)
	}()

	// Wait until the fan-out marked the scenes, then reset underneath it.
	deadline := time.After(2 * time.Second)
	for {
		got := f.store.Get(models.ToolUGC)
		if got.Epoch == b.Epoch && len(got.Scenes) > 0 && got.Scenes[0].Status == models.SceneStatusGeneratingImage {
			break
		}
		select {
		case <-deadline:
			t.Fatal("fan-out never started")
		case <-time.After(5 * time.Millisecond):
		}
	}
	fresh, err := f.pipe.ResetBatch(models.ToolUGC, 4)
	if err != nil {
		t.Fatal(err)
	}

	// Release the in-flight image calls and let the stale fan-out finish.
	close(f.images.block)
	<-done

	got := f.store.Get(models.ToolUGC)
	if got.Epoch != fresh.Epoch {
		t.Fatal("unexpected epoch after reset")
	}
	for _, sc := range got.Scenes {
		if sc.Status != models.SceneStatusPending || sc.ImageAssetID != nil {
			t.Errorf("stale result leaked into scene %d: %s", sc.ID, sc.Status)
		}
	}
	// Reset released the reference images, and every stale image result
	// must have been released on arrival.
	if f.assets.Len() != 0 {
		t.Errorf("stale artifacts leaked, assets.Len = %d", f.assets.Len())
	}
}

func TestRegenerateImageUsesStoredPromptAndSparesSiblings(t *testing.T) {
	f := newFixture(t)
	before := runHappyBatch(t, f)

	epoch, err := f.pipe.PrepareImageRegen(models.ToolUGC, 2)
	if err != nil {
		t.Fatal(err)
	}
	f.pipe.RunImageRegen(context.Background(), models.ToolUGC, epoch, 2)

	after := f.store.Get(models.ToolUGC)
	for i, sc := range after.Scenes {
		if sc.ID == 2 {
			if sc.Status != models.SceneStatusImageReady {
				t.Errorf("scene 2 status = %s", sc.Status)
			}
			if *sc.ImageAssetID == *before.Scenes[i].ImageAssetID {
				t.Error("scene 2 image was not replaced")
			}
			continue
		}
		if *sc.ImageAssetID != *before.Scenes[i].ImageAssetID {
			t.Errorf("scene %d image changed during sibling regen", sc.ID)
		}
	}

	calls := f.images.calls()
	if calls[len(calls)-1] != "prompt-2" {
		t.Errorf("regen used prompt %q, want stored prompt-2 verbatim", calls[len(calls)-1])
	}
	// Old artifact swapped atomically: total asset count unchanged.
	if f.assets.Len() != 6 {
		t.Errorf("assets.Len = %d, want 6 after swap", f.assets.Len())
	}
}

func TestPrepareImageRegenRequiresPrompt(t *testing.T) {
	f := newFixture(t)
	// Fresh batch: scenes have no plan yet, so no image prompt.
	if _, err := f.pipe.PrepareImageRegen(models.ToolUGC, 1); services.KindOf(err) != services.KindValidation {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestPrepareVideoRequiresSelectedCredential(t *testing.T) {
	f := newFixture(t)
	runHappyBatch(t, f)
	f.creds.Invalidate()

	_, err := f.pipe.PrepareVideo(models.ToolUGC, 1)
	if services.KindOf(err) != services.KindCredentialMissing {
		t.Errorf("expected credential_missing, got %v", err)
	}
}

func TestPrepareVideoRequiresImage(t *testing.T) {
	f := newFixture(t)
	if _, err := f.pipe.PrepareVideo(models.ToolUGC, 1); services.KindOf(err) != services.KindValidation {
		t.Errorf("expected validation error for missing image, got %v", err)
	}
}

func TestRunVideoCompletesScene(t *testing.T) {
	f := newFixture(t)
	runHappyBatch(t, f)

	epoch, err := f.pipe.PrepareVideo(models.ToolUGC, 3)
	if err != nil {
		t.Fatal(err)
	}
	f.pipe.RunVideo(context.Background(), models.ToolUGC, epoch, 3)

	sc, _ := f.store.Scene(models.ToolUGC, 3)
	if sc.Status != models.SceneStatusCompleted {
		t.Fatalf("status = %s, want completed", sc.Status)
	}
	if sc.VideoAssetID == nil || sc.VideoURL == nil {
		t.Fatal("video artifact missing")
	}
	if sc.ImageAssetID == nil {
		t.Error("image must remain attached alongside the video")
	}
	if f.videos.last.Prompt != "motion-3" || f.videos.last.Script != "Line 3." {
		t.Errorf("video request carried %q/%q", f.videos.last.Prompt, f.videos.last.Script)
	}
	if !f.videos.last.WithMusic {
		t.Error("background music setting not forwarded")
	}
}

func TestRunVideoCredentialFailure(t *testing.T) {
	cases := []string{
		"googleapi: Error 404: Requested entity was not found.",
		"rpc error: RESOURCE_EXHAUSTED",
	}
	for _, msg := range cases {
		f := newFixture(t)
		runHappyBatch(t, f)
		f.videos.err = errors.New(msg)

		epoch, err := f.pipe.PrepareVideo(models.ToolUGC, 1)
		if err != nil {
			t.Fatal(err)
		}
		f.pipe.RunVideo(context.Background(), models.ToolUGC, epoch, 1)

		sc, _ := f.store.Scene(models.ToolUGC, 1)
		if sc.Status != models.SceneStatusError {
			t.Errorf("%q: status = %s, want error", msg, sc.Status)
		}
		if f.creds.Selected() {
			t.Errorf("%q: session should be invalidated", msg)
		}
		if sc.ImageAssetID == nil {
			t.Errorf("%q: failed video must not drop the image", msg)
		}
	}
}

func TestRunVideoTransportFailureKeepsSession(t *testing.T) {
	f := newFixture(t)
	runHappyBatch(t, f)
	f.videos.err = errors.New("connection reset by peer")

	epoch, err := f.pipe.PrepareVideo(models.ToolUGC, 1)
	if err != nil {
		t.Fatal(err)
	}
	f.pipe.RunVideo(context.Background(), models.ToolUGC, epoch, 1)

	if !f.creds.Selected() {
		t.Error("transport failure must not invalidate the session")
	}
}

func TestVoiceOver(t *testing.T) {
	f := newFixture(t)
	runHappyBatch(t, f)

	epoch, err := f.pipe.PrepareVoiceOver(models.ToolUGC)
	if err != nil {
		t.Fatal(err)
	}
	f.pipe.RunVoiceOver(context.Background(), models.ToolUGC, epoch)

	got := f.store.Get(models.ToolUGC)
	if got.VoiceOverAssetID == nil || got.VoiceOverURL == nil {
		t.Fatal("voice-over artifact missing")
	}
	for i := 1; i <= 4; i++ {
		if !strings.Contains(f.speech.text, fmt.Sprintf("Line %d.", i)) {
			t.Errorf("voice-over text missing script %d", i)
		}
	}
}

func TestPrepareVoiceOverRequiresScripts(t *testing.T) {
	f := newFixture(t)
	if _, err := f.pipe.PrepareVoiceOver(models.ToolUGC); services.KindOf(err) != services.KindValidation {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestResetReleasesAllArtifacts(t *testing.T) {
	f := newFixture(t)
	runHappyBatch(t, f)
	if f.assets.Len() == 0 {
		t.Fatal("expected artifacts before reset")
	}

	if _, err := f.pipe.ResetBatch(models.ToolUGC, 4); err != nil {
		t.Fatal(err)
	}
	if f.assets.Len() != 0 {
		t.Errorf("assets.Len = %d after reset, want 0", f.assets.Len())
	}
}

func TestStaleRunBatchIsNoOp(t *testing.T) {
	f := newFixture(t)
	b, err := f.pipe.PrepareBatch(models.ToolUGC, startReq())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.pipe.ResetBatch(models.ToolUGC, 4); err != nil {
		t.Fatal(err)
	}

	f.pipe.RunBatch(context.Background(), models.ToolUGC, b.Epoch)

	got := f.store.Get(models.ToolUGC)
	for _, sc := range got.Scenes {
		if sc.Status != models.SceneStatusPending {
			t.Errorf("stale run touched scene %d: %s", sc.ID, sc.Status)
		}
	}
	if len(f.images.calls()) != 0 {
		t.Error("stale run must not call the image service")
	}
}
