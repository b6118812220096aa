package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bobarin/ugcstudio/internal/models"
	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Scene State Store
// One in-memory batch per tool, guarded by a single mutex. Every reset bumps
// a monotonically increasing epoch; asynchronous completions carry the epoch
// captured when their operation started, and mutations against a replaced
// batch fail with ErrStaleEpoch so late results cannot corrupt the new
// batch. All state is session-scoped, nothing is persisted.
// ---------------------------------------------------------------------------

var (
	// ErrStaleEpoch means the batch was reset after the operation started;
	// callers discard the result silently.
	ErrStaleEpoch = errors.New("stale batch epoch")

	ErrSceneNotFound     = errors.New("scene not found")
	ErrInvalidTransition = errors.New("invalid scene status transition")

	// ErrNoImage guards the invariant that a video may only be attached
	// while an image is also attached.
	ErrNoImage = errors.New("scene has no image")
)

// BatchSettings captures the inputs of a generation run on the new batch.
type BatchSettings struct {
	StructureID         string
	ProductName         string
	Brief               string
	Comments            string
	ReferenceScript     string
	VoiceOver           bool
	BackgroundMusic     bool
	ProductImageAssetID *uuid.UUID
	ModelImageAssetID   *uuid.UUID
}

// Store holds the per-tool batches.
type Store struct {
	mu      sync.Mutex
	epoch   int64
	batches map[models.Tool]*models.Batch
}

// New creates a store with an empty initial batch per tool.
func New(ugcDefaults, brandingDefaults models.SceneDefaults) *Store {
	s := &Store{batches: make(map[models.Tool]*models.Batch)}
	s.Reset(models.ToolUGC, models.MinSceneCount, ugcDefaults, nil)
	s.Reset(models.ToolPersonalBranding, models.MinSceneCount, brandingDefaults, nil)
	return s
}

// Reset replaces the tool's batch with sceneCount fresh PENDING scenes under
// a new epoch, and returns the new batch plus the batch it replaced so the
// caller can release the old artifacts. Resetting is idempotent in shape:
// the result depends only on sceneCount and defaults, never on prior state.
func (s *Store) Reset(tool models.Tool, sceneCount int, def models.SceneDefaults, settings *BatchSettings) (cur, prev models.Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epoch++
	b := &models.Batch{
		Tool:       tool,
		Epoch:      s.epoch,
		SceneCount: sceneCount,
		CreatedAt:  time.Now(),
		Scenes:     make([]models.Scene, sceneCount),
	}
	for i := range b.Scenes {
		b.Scenes[i] = models.Scene{
			ID:          i + 1,
			Title:       fmt.Sprintf("%s %d", def.TitlePrefix, i+1),
			Description: def.Description,
			VideoPrompt: def.DefaultVideoPrompt,
			Status:      models.SceneStatusPending,
		}
	}
	if settings != nil {
		b.StructureID = settings.StructureID
		b.ProductName = settings.ProductName
		b.Brief = settings.Brief
		b.Comments = settings.Comments
		b.ReferenceScript = settings.ReferenceScript
		b.VoiceOver = settings.VoiceOver
		b.BackgroundMusic = settings.BackgroundMusic
		b.ProductImageAssetID = settings.ProductImageAssetID
		b.ModelImageAssetID = settings.ModelImageAssetID
	}

	if old := s.batches[tool]; old != nil {
		prev = snapshot(old)
	}
	s.batches[tool] = b
	return snapshot(b), prev
}

// Get returns a snapshot of the tool's current batch.
func (s *Store) Get(tool models.Tool) models.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot(s.batches[tool])
}

// Epoch returns the tool's current batch epoch.
func (s *Store) Epoch(tool models.Tool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches[tool].Epoch
}

// Scene returns a snapshot of one scene from the current batch.
func (s *Store) Scene(tool models.Tool, id int) (models.Scene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, err := sceneByID(s.batches[tool], id)
	if err != nil {
		return models.Scene{}, err
	}
	return *sc, nil
}

// ApplyPlan populates all scenes from the plan by position. The plan length
// must match the batch's scene count; no partial plan is ever applied.
func (s *Store) ApplyPlan(tool models.Tool, epoch int64, plans []models.ScenePlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.batchAt(tool, epoch)
	if err != nil {
		return err
	}
	if len(plans) != len(b.Scenes) {
		return fmt.Errorf("plan has %d scenes, batch has %d", len(plans), len(b.Scenes))
	}
	for i := range b.Scenes {
		sc := &b.Scenes[i]
		p := plans[i]
		sc.Title = p.Title
		sc.Description = p.Description
		sc.Script = p.Script
		sc.ImagePrompt = p.ImagePrompt
		sc.OverlayText = p.OverlayText
		if p.VideoPrompt != "" {
			sc.VideoPrompt = p.VideoPrompt
		}
	}
	return nil
}

// MarkGeneratingImage transitions a scene into GENERATING_IMAGE and clears
// its previous error, for both the batch fan-out and single-scene
// regeneration.
func (s *Store) MarkGeneratingImage(tool models.Tool, epoch int64, id int) error {
	return s.transition(tool, epoch, id, models.SceneStatusGeneratingImage, nil)
}

// SetImage attaches an image artifact and moves the scene to IMAGE_READY.
// A replaced image's asset ID is returned so the caller can release it:
// regeneration swaps the artifact atomically, it never leaves a gap.
func (s *Store) SetImage(tool models.Tool, epoch int64, id int, assetID uuid.UUID, url string) (released *uuid.UUID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.batchAt(tool, epoch)
	if err != nil {
		return nil, err
	}
	sc, err := sceneByID(b, id)
	if err != nil {
		return nil, err
	}
	if !models.ValidTransition(sc.Status, models.SceneStatusImageReady) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sc.Status, models.SceneStatusImageReady)
	}
	released = sc.ImageAssetID
	sc.ImageAssetID = &assetID
	sc.ImageURL = &url
	sc.Status = models.SceneStatusImageReady
	sc.ErrorMessage = nil
	return released, nil
}

// MarkGeneratingVideo transitions a scene into GENERATING_VIDEO. Rejected
// before any network call when the scene has no image.
func (s *Store) MarkGeneratingVideo(tool models.Tool, epoch int64, id int) error {
	requireImage := func(sc *models.Scene) error {
		if !sc.HasImage() {
			return ErrNoImage
		}
		return nil
	}
	return s.transition(tool, epoch, id, models.SceneStatusGeneratingVideo, requireImage)
}

// SetVideo attaches a video artifact and moves the scene to COMPLETED.
func (s *Store) SetVideo(tool models.Tool, epoch int64, id int, assetID uuid.UUID, url string) (released *uuid.UUID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.batchAt(tool, epoch)
	if err != nil {
		return nil, err
	}
	sc, err := sceneByID(b, id)
	if err != nil {
		return nil, err
	}
	if !sc.HasImage() {
		return nil, ErrNoImage
	}
	if !models.ValidTransition(sc.Status, models.SceneStatusCompleted) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sc.Status, models.SceneStatusCompleted)
	}
	released = sc.VideoAssetID
	sc.VideoAssetID = &assetID
	sc.VideoURL = &url
	sc.Status = models.SceneStatusCompleted
	sc.ErrorMessage = nil
	return released, nil
}

// SetSceneError moves one scene to ERROR with a message. Sibling scenes are
// never touched.
func (s *Store) SetSceneError(tool models.Tool, epoch int64, id int, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.batchAt(tool, epoch)
	if err != nil {
		return err
	}
	sc, err := sceneByID(b, id)
	if err != nil {
		return err
	}
	sc.Status = models.SceneStatusError
	sc.ErrorMessage = &msg
	return nil
}

// SetBatchError records a batch-level error without touching scene state
// (used for fan-out summaries where per-scene errors are already set).
func (s *Store) SetBatchError(tool models.Tool, epoch int64, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.batchAt(tool, epoch)
	if err != nil {
		return err
	}
	b.Error = &msg
	return nil
}

// FailAll moves every scene to ERROR with the same message and records it
// at batch level. Used for plan failures, where no partial data is applied.
func (s *Store) FailAll(tool models.Tool, epoch int64, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.batchAt(tool, epoch)
	if err != nil {
		return err
	}
	b.Error = &msg
	for i := range b.Scenes {
		b.Scenes[i].Status = models.SceneStatusError
		m := msg
		b.Scenes[i].ErrorMessage = &m
	}
	return nil
}

// UpdateScript edits a scene's script in place. Edits never change status
// or artifacts and apply to the current batch regardless of epoch.
func (s *Store) UpdateScript(tool models.Tool, id int, script string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, err := sceneByID(s.batches[tool], id)
	if err != nil {
		return err
	}
	sc.Script = script
	return nil
}

// UpdateVideoPrompt edits a scene's animation prompt in place.
func (s *Store) UpdateVideoPrompt(tool models.Tool, id int, prompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, err := sceneByID(s.batches[tool], id)
	if err != nil {
		return err
	}
	sc.VideoPrompt = prompt
	return nil
}

// SetVoiceOver attaches the batch-wide voice-over audio artifact.
func (s *Store) SetVoiceOver(tool models.Tool, epoch int64, assetID uuid.UUID, url string) (released *uuid.UUID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.batchAt(tool, epoch)
	if err != nil {
		return nil, err
	}
	released = b.VoiceOverAssetID
	b.VoiceOverAssetID = &assetID
	b.VoiceOverURL = &url
	return released, nil
}

func (s *Store) transition(tool models.Tool, epoch int64, id int, to models.SceneStatus, check func(*models.Scene) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.batchAt(tool, epoch)
	if err != nil {
		return err
	}
	sc, err := sceneByID(b, id)
	if err != nil {
		return err
	}
	if check != nil {
		if err := check(sc); err != nil {
			return err
		}
	}
	if !models.ValidTransition(sc.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sc.Status, to)
	}
	sc.Status = to
	sc.ErrorMessage = nil
	return nil
}

func (s *Store) batchAt(tool models.Tool, epoch int64) (*models.Batch, error) {
	b := s.batches[tool]
	if b == nil || b.Epoch != epoch {
		return nil, ErrStaleEpoch
	}
	return b, nil
}

func sceneByID(b *models.Batch, id int) (*models.Scene, error) {
	if b == nil || id < 1 || id > len(b.Scenes) {
		return nil, fmt.Errorf("%w: id %d", ErrSceneNotFound, id)
	}
	return &b.Scenes[id-1], nil
}

// snapshot copies a batch for callers outside the lock. Scene structs are
// copied by value; pointer fields are replaced, never mutated in place, so
// sharing them is safe.
func snapshot(b *models.Batch) models.Batch {
	out := *b
	out.Scenes = make([]models.Scene, len(b.Scenes))
	copy(out.Scenes, b.Scenes)
	return out
}

// CollectAssetIDs gathers every artifact reference a batch owns, for
// releasing after the batch is replaced.
func CollectAssetIDs(b models.Batch) []*uuid.UUID {
	ids := []*uuid.UUID{b.ProductImageAssetID, b.ModelImageAssetID, b.VoiceOverAssetID}
	for i := range b.Scenes {
		ids = append(ids, b.Scenes[i].ImageAssetID, b.Scenes[i].VideoAssetID)
	}
	return ids
}
