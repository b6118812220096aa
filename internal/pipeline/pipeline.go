package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bobarin/ugcstudio/internal/models"
	"github.com/bobarin/ugcstudio/internal/planner"
	"github.com/bobarin/ugcstudio/internal/services"
	"github.com/bobarin/ugcstudio/internal/session"
	"github.com/bobarin/ugcstudio/internal/storage"
	"github.com/bobarin/ugcstudio/internal/store"
)

// ---------------------------------------------------------------------------
// Generation pipeline
// Every operation is split in two: Prepare runs synchronously in the request
// path (input validation, credential checks, status transitions, no network),
// and Run does the network work on a worker goroutine under the epoch
// captured at Prepare time. A reset between the two bumps the epoch and the
// Run result is discarded without touching the new batch.
// ---------------------------------------------------------------------------

// ImageGenerator renders one scene image.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string, refs []models.ReferenceImage) ([]byte, string, error)
}

// VideoGenerator animates a scene image into a clip.
type VideoGenerator interface {
	GenerateVideo(ctx context.Context, req services.VideoRequest) ([]byte, error)
}

// Pipeline wires the store, the artifact storage, the credential session,
// and the AI service adapters together.
type Pipeline struct {
	store       *store.Store
	assets      *storage.Store
	creds       *session.Credentials
	planner     *planner.Planner
	images      ImageGenerator
	videos      VideoGenerator
	speech      services.SpeechService
	maxParallel int
}

// New creates the pipeline. maxParallel bounds the image fan-out; values
// below 1 mean unbounded.
func New(st *store.Store, assets *storage.Store, creds *session.Credentials, pl *planner.Planner, images ImageGenerator, videos VideoGenerator, speech services.SpeechService, maxParallel int) *Pipeline {
	return &Pipeline{
		store:       st,
		assets:      assets,
		creds:       creds,
		planner:     pl,
		images:      images,
		videos:      videos,
		speech:      speech,
		maxParallel: maxParallel,
	}
}

func (p *Pipeline) requireKey() error {
	if p.creds.APIKey() == "" {
		return services.NewError(services.KindCredentialMissing, "no API key configured", nil)
	}
	return nil
}

// requireSelected guards operations that consume paid quota aggressively.
// The selected flag is re-checked on every call, not cached from startup.
func (p *Pipeline) requireSelected() error {
	if !p.creds.Selected() {
		return services.NewError(services.KindCredentialMissing, "no credential selected", nil)
	}
	return nil
}

// noteCredentialFailure drops the session's selected flag when a service
// error carries a credential signature, forcing reselection before the next
// privileged call.
func (p *Pipeline) noteCredentialFailure(err error) {
	if services.IsCredential(services.KindOf(err)) {
		log.Printf("[Pipeline] Credential failure detected, invalidating session: %v", err)
		p.creds.Invalidate()
	}
}

func decodeImage(payload *models.ImagePayload) (*models.ReferenceImage, error) {
	if payload == nil {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		return nil, services.NewError(services.KindValidation, "reference image is not valid base64", err)
	}
	if len(data) == 0 {
		return nil, services.Validation("reference image is empty")
	}
	return &models.ReferenceImage{Data: data, MIMEType: payload.MIMEType}, nil
}

// referenceImages loads the batch's stored reference images. The same bytes
// are shared read-only by every image call in the batch.
func (p *Pipeline) referenceImages(b models.Batch) []models.ReferenceImage {
	var refs []models.ReferenceImage
	for _, id := range []*uuid.UUID{b.ProductImageAssetID, b.ModelImageAssetID} {
		if id == nil {
			continue
		}
		if a, ok := p.assets.Get(*id); ok {
			refs = append(refs, models.ReferenceImage{Data: a.Data, MIMEType: a.ContentType})
		}
	}
	return refs
}

// PrepareBatch validates a generation request, stores its reference images,
// and resets the tool's batch to fresh PENDING scenes under a new epoch.
// All artifacts of the replaced batch are released. Returns the new batch;
// the caller queues RunBatch with its epoch.
func (p *Pipeline) PrepareBatch(tool models.Tool, req models.StartBatchRequest) (models.Batch, error) {
	if err := p.requireKey(); err != nil {
		return models.Batch{}, err
	}
	strategy, err := p.planner.Strategy(tool)
	if err != nil {
		return models.Batch{}, err
	}

	productImg, err := decodeImage(req.ProductImage)
	if err != nil {
		return models.Batch{}, err
	}
	modelImg, err := decodeImage(req.ModelImage)
	if err != nil {
		return models.Batch{}, err
	}

	// Validate the planning inputs before any state changes; a bad request
	// must leave the current batch untouched.
	if _, err := p.planner.BuildPrompt(planner.Request{
		Tool:            tool,
		SceneCount:      req.SceneCount,
		StructureID:     req.StructureID,
		ProductName:     req.ProductName,
		Brief:           req.Brief,
		Comments:        req.Comments,
		ReferenceScript: req.ReferenceScript,
		HasProductImage: productImg != nil,
		HasModelImage:   modelImg != nil,
	}); err != nil {
		return models.Batch{}, err
	}

	settings := &store.BatchSettings{
		StructureID:     req.StructureID,
		ProductName:     req.ProductName,
		Brief:           req.Brief,
		Comments:        req.Comments,
		ReferenceScript: req.ReferenceScript,
		VoiceOver:       req.VoiceOver,
		BackgroundMusic: req.BackgroundMusic,
	}
	if productImg != nil {
		a := p.assets.Put(storage.KindImage, productImg.MIMEType, productImg.Data)
		settings.ProductImageAssetID = &a.ID
	}
	if modelImg != nil {
		a := p.assets.Put(storage.KindImage, modelImg.MIMEType, modelImg.Data)
		settings.ModelImageAssetID = &a.ID
	}

	cur, prev := p.store.Reset(tool, req.SceneCount, strategy.Defaults(), settings)
	p.assets.Release(store.CollectAssetIDs(prev)...)

	log.Printf("[Pipeline] Batch prepared (tool=%s, epoch=%d, scenes=%d)", tool, cur.Epoch, cur.SceneCount)
	return cur, nil
}

// RunBatch executes the plan step and the image fan-out for a prepared
// batch. Plan failures fail every scene with the same message; fan-out
// failures are isolated per scene, siblings keep their results.
func (p *Pipeline) RunBatch(ctx context.Context, tool models.Tool, epoch int64) {
	b := p.store.Get(tool)
	if b.Epoch != epoch {
		log.Printf("[Pipeline] RunBatch discarded, stale epoch (tool=%s, epoch=%d)", tool, epoch)
		return
	}

	plans, err := p.planner.Plan(ctx, planner.Request{
		Tool:            tool,
		SceneCount:      b.SceneCount,
		StructureID:     b.StructureID,
		ProductName:     b.ProductName,
		Brief:           b.Brief,
		Comments:        b.Comments,
		ReferenceScript: b.ReferenceScript,
		HasProductImage: b.ProductImageAssetID != nil,
		HasModelImage:   b.ModelImageAssetID != nil,
	})
	if err != nil {
		p.noteCredentialFailure(err)
		if ferr := p.store.FailAll(tool, epoch, fmt.Sprintf("planning failed: %v", err)); ferr != nil {
			log.Printf("[Pipeline] Plan failure not recorded: %v", ferr)
		}
		return
	}

	if err := p.store.ApplyPlan(tool, epoch, plans); err != nil {
		log.Printf("[Pipeline] Plan discarded: %v", err)
		return
	}

	p.fanOutImages(ctx, tool, epoch)

	if b.VoiceOver {
		if err := p.runVoiceOver(ctx, tool, epoch); err != nil {
			log.Printf("[Pipeline] Voice-over failed (tool=%s): %v", tool, err)
		}
	}
}

// fanOutImages generates every scene's image in parallel. Results map to
// scenes by position; one scene's failure never discards a sibling's
// success.
func (p *Pipeline) fanOutImages(ctx context.Context, tool models.Tool, epoch int64) {
	b := p.store.Get(tool)
	if b.Epoch != epoch {
		return
	}
	for _, sc := range b.Scenes {
		if err := p.store.MarkGeneratingImage(tool, epoch, sc.ID); err != nil {
			log.Printf("[Pipeline] Fan-out aborted: %v", err)
			return
		}
	}

	refs := p.referenceImages(b)
	failures := make([]error, len(b.Scenes))

	var g errgroup.Group
	if p.maxParallel > 0 {
		g.SetLimit(p.maxParallel)
	}
	for i, sc := range b.Scenes {
		i, sc := i, sc
		g.Go(func() error {
			failures[i] = p.generateSceneImage(ctx, tool, epoch, sc.ID, sc.ImagePrompt, refs)
			return nil
		})
	}
	_ = g.Wait() // closures report per-scene, never a group error

	var failed int
	var credErr error
	for _, err := range failures {
		if err != nil {
			failed++
			if credErr == nil && services.IsCredential(services.KindOf(err)) {
				credErr = err
			}
		}
	}
	if credErr != nil {
		p.noteCredentialFailure(credErr)
	}
	if failed > 0 {
		msg := fmt.Sprintf("%d of %d scenes failed image generation", failed, len(b.Scenes))
		if err := p.store.SetBatchError(tool, epoch, msg); err != nil {
			log.Printf("[Pipeline] Fan-out summary not recorded: %v", err)
		}
	}
	log.Printf("[Pipeline] Image fan-out done (tool=%s, epoch=%d, ok=%d, failed=%d)", tool, epoch, len(b.Scenes)-failed, failed)
}

// generateSceneImage runs one image call and applies the result under the
// captured epoch. A stale result releases its artifact and reports nothing.
func (p *Pipeline) generateSceneImage(ctx context.Context, tool models.Tool, epoch int64, sceneID int, prompt string, refs []models.ReferenceImage) error {
	data, mime, err := p.images.GenerateImage(ctx, prompt, refs)
	if err != nil {
		if serr := p.store.SetSceneError(tool, epoch, sceneID, err.Error()); serr != nil {
			if errors.Is(serr, store.ErrStaleEpoch) {
				return nil
			}
			log.Printf("[Pipeline] Scene error not recorded (scene=%d): %v", sceneID, serr)
		}
		return err
	}

	asset := p.assets.Put(storage.KindImage, mime, data)
	old, err := p.store.SetImage(tool, epoch, sceneID, asset.ID, p.assets.URL(asset.ID))
	if err != nil {
		p.assets.Release(&asset.ID)
		if errors.Is(err, store.ErrStaleEpoch) {
			return nil
		}
		return err
	}
	p.assets.Release(old)
	return nil
}

// PrepareImageRegen transitions one scene into GENERATING_IMAGE for
// regeneration with its stored prompt. The scene keeps its current image
// until the new one arrives.
func (p *Pipeline) PrepareImageRegen(tool models.Tool, sceneID int) (int64, error) {
	if err := p.requireKey(); err != nil {
		return 0, err
	}
	sc, err := p.store.Scene(tool, sceneID)
	if err != nil {
		return 0, services.NewError(services.KindValidation, err.Error(), err)
	}
	if strings.TrimSpace(sc.ImagePrompt) == "" {
		return 0, services.Validation("scene %d has no image prompt; generate a plan first", sceneID)
	}
	epoch := p.store.Epoch(tool)
	if err := p.store.MarkGeneratingImage(tool, epoch, sceneID); err != nil {
		return 0, services.NewError(services.KindValidation, err.Error(), err)
	}
	return epoch, nil
}

// RunImageRegen regenerates one scene image using the stored prompt
// verbatim and the batch's reference images.
func (p *Pipeline) RunImageRegen(ctx context.Context, tool models.Tool, epoch int64, sceneID int) {
	b := p.store.Get(tool)
	if b.Epoch != epoch {
		log.Printf("[Pipeline] RunImageRegen discarded, stale epoch (tool=%s, scene=%d)", tool, sceneID)
		return
	}
	sc, err := p.store.Scene(tool, sceneID)
	if err != nil {
		return
	}
	if err := p.generateSceneImage(ctx, tool, epoch, sceneID, sc.ImagePrompt, p.referenceImages(b)); err != nil {
		p.noteCredentialFailure(err)
	}
}

// PrepareVideo transitions one scene into GENERATING_VIDEO. Requires an
// attached image and a selected credential, both checked before any queue
// or network activity.
func (p *Pipeline) PrepareVideo(tool models.Tool, sceneID int) (int64, error) {
	if err := p.requireSelected(); err != nil {
		return 0, err
	}
	sc, err := p.store.Scene(tool, sceneID)
	if err != nil {
		return 0, services.NewError(services.KindValidation, err.Error(), err)
	}
	if !sc.HasImage() {
		return 0, services.Validation("scene %d has no image to animate", sceneID)
	}
	epoch := p.store.Epoch(tool)
	if err := p.store.MarkGeneratingVideo(tool, epoch, sceneID); err != nil {
		return 0, services.NewError(services.KindValidation, err.Error(), err)
	}
	return epoch, nil
}

// RunVideo animates the scene's image. Credential-signature failures
// invalidate the session in addition to failing the scene.
func (p *Pipeline) RunVideo(ctx context.Context, tool models.Tool, epoch int64, sceneID int) {
	b := p.store.Get(tool)
	if b.Epoch != epoch {
		log.Printf("[Pipeline] RunVideo discarded, stale epoch (tool=%s, scene=%d)", tool, sceneID)
		return
	}
	sc, err := p.store.Scene(tool, sceneID)
	if err != nil || sc.ImageAssetID == nil {
		return
	}
	img, ok := p.assets.Get(*sc.ImageAssetID)
	if !ok {
		_ = p.store.SetSceneError(tool, epoch, sceneID, "scene image artifact is gone")
		return
	}

	data, err := p.videos.GenerateVideo(ctx, services.VideoRequest{
		ImageData: img.Data,
		ImageMIME: img.ContentType,
		Script:    sc.Script,
		Prompt:    sc.VideoPrompt,
		WithMusic: b.BackgroundMusic,
	})
	if err != nil {
		p.noteCredentialFailure(err)
		if serr := p.store.SetSceneError(tool, epoch, sceneID, err.Error()); serr != nil && !errors.Is(serr, store.ErrStaleEpoch) {
			log.Printf("[Pipeline] Video error not recorded (scene=%d): %v", sceneID, serr)
		}
		return
	}

	asset := p.assets.Put(storage.KindVideo, "video/mp4", data)
	old, err := p.store.SetVideo(tool, epoch, sceneID, asset.ID, p.assets.URL(asset.ID))
	if err != nil {
		p.assets.Release(&asset.ID)
		if !errors.Is(err, store.ErrStaleEpoch) {
			log.Printf("[Pipeline] Video result not applied (scene=%d): %v", sceneID, err)
		}
		return
	}
	p.assets.Release(old)
}

// PrepareVoiceOver validates that the batch has scripts to narrate.
func (p *Pipeline) PrepareVoiceOver(tool models.Tool) (int64, error) {
	if err := p.requireKey(); err != nil {
		return 0, err
	}
	b := p.store.Get(tool)
	if voiceOverText(b) == "" {
		return 0, services.Validation("batch has no scripts to narrate")
	}
	return b.Epoch, nil
}

// RunVoiceOver synthesizes the batch voice-over from the concatenated
// scene scripts.
func (p *Pipeline) RunVoiceOver(ctx context.Context, tool models.Tool, epoch int64) {
	if err := p.runVoiceOver(ctx, tool, epoch); err != nil {
		p.noteCredentialFailure(err)
		log.Printf("[Pipeline] Voice-over failed (tool=%s): %v", tool, err)
	}
}

func (p *Pipeline) runVoiceOver(ctx context.Context, tool models.Tool, epoch int64) error {
	b := p.store.Get(tool)
	if b.Epoch != epoch {
		return nil
	}
	text := voiceOverText(b)
	if text == "" {
		return services.Validation("batch has no scripts to narrate")
	}

	data, mime, err := p.speech.GenerateSpeech(ctx, text)
	if err != nil {
		return err
	}

	asset := p.assets.Put(storage.KindAudio, mime, data)
	old, err := p.store.SetVoiceOver(tool, epoch, asset.ID, p.assets.URL(asset.ID))
	if err != nil {
		p.assets.Release(&asset.ID)
		if errors.Is(err, store.ErrStaleEpoch) {
			return nil
		}
		return err
	}
	p.assets.Release(old)
	return nil
}

// voiceOverText concatenates the scene scripts in order.
func voiceOverText(b models.Batch) string {
	var parts []string
	for _, sc := range b.Scenes {
		if s := strings.TrimSpace(sc.Script); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

// ResetBatch replaces the tool's batch with fresh placeholder scenes and
// releases every artifact the old batch owned.
func (p *Pipeline) ResetBatch(tool models.Tool, sceneCount int) (models.Batch, error) {
	strategy, err := p.planner.Strategy(tool)
	if err != nil {
		return models.Batch{}, err
	}
	cur, prev := p.store.Reset(tool, sceneCount, strategy.Defaults(), nil)
	p.assets.Release(store.CollectAssetIDs(prev)...)
	return cur, nil
}
