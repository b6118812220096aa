package models

import (
	"time"

	"github.com/google/uuid"
)

// Tool identifies one of the two studio tools. Each tool owns an
// independent batch; work on one never disturbs the other.
type Tool string

const (
	ToolUGC              Tool = "ugc"
	ToolPersonalBranding Tool = "personal-branding"
)

// ParseTool validates a tool identifier from a URL segment.
func ParseTool(s string) (Tool, bool) {
	switch Tool(s) {
	case ToolUGC, ToolPersonalBranding:
		return Tool(s), true
	}
	return "", false
}

// SceneStatus is the per-scene lifecycle state.
type SceneStatus string

const (
	SceneStatusPending         SceneStatus = "pending"
	SceneStatusGeneratingImage SceneStatus = "generating_image"
	SceneStatusImageReady      SceneStatus = "image_ready"
	SceneStatusGeneratingVideo SceneStatus = "generating_video"
	SceneStatusCompleted       SceneStatus = "completed"
	SceneStatusError           SceneStatus = "error"
)

// validTransitions encodes the scene state machine. GENERATING_IMAGE is
// reachable from any settled state (batch fan-out starts from PENDING,
// single-scene regeneration from IMAGE_READY/COMPLETED/ERROR). Video
// generation is retryable from IMAGE_READY, COMPLETED, or ERROR as long as
// an image exists; the image check lives in the store, which owns the
// artifacts.
var validTransitions = map[SceneStatus][]SceneStatus{
	SceneStatusPending:         {SceneStatusGeneratingImage, SceneStatusError},
	SceneStatusGeneratingImage: {SceneStatusImageReady, SceneStatusError},
	SceneStatusImageReady:      {SceneStatusGeneratingImage, SceneStatusGeneratingVideo, SceneStatusError},
	SceneStatusGeneratingVideo: {SceneStatusCompleted, SceneStatusError},
	SceneStatusCompleted:       {SceneStatusGeneratingImage, SceneStatusGeneratingVideo},
	SceneStatusError:           {SceneStatusGeneratingImage, SceneStatusGeneratingVideo},
}

// ValidTransition reports whether the state machine allows from → to.
func ValidTransition(from, to SceneStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// InFlight reports whether the scene has a network operation outstanding.
func (s SceneStatus) InFlight() bool {
	return s == SceneStatusGeneratingImage || s == SceneStatusGeneratingVideo
}

// Scene is one unit of the output video. IDs are 1-based and contiguous
// within a batch; a new batch always starts from fresh scenes.
type Scene struct {
	ID           int         `json:"id"`
	Title        string      `json:"title"`
	Description  string      `json:"description"`
	Script       string      `json:"script"`
	ImagePrompt  string      `json:"image_prompt"`
	VideoPrompt  string      `json:"video_prompt"`
	OverlayText  string      `json:"overlay_text,omitempty"`
	ImageAssetID *uuid.UUID  `json:"image_asset_id,omitempty"`
	ImageURL     *string     `json:"image_url,omitempty"`
	VideoAssetID *uuid.UUID  `json:"video_asset_id,omitempty"`
	VideoURL     *string     `json:"video_url,omitempty"`
	Status       SceneStatus `json:"status"`
	ErrorMessage *string     `json:"error_message,omitempty"`
}

// HasImage reports whether an image artifact is attached.
func (s *Scene) HasImage() bool {
	return s.ImageAssetID != nil
}

// SceneDefaults seeds freshly reset scenes. The two tools differ only in
// the placeholder copy and the default animation prompt.
type SceneDefaults struct {
	TitlePrefix        string
	Description        string
	DefaultVideoPrompt string
}

// Batch is the full ordered set of scenes plus the settings used to create
// them, for one generation run of one tool.
type Batch struct {
	Tool       Tool      `json:"tool"`
	Epoch      int64     `json:"epoch"`
	SceneCount int       `json:"scene_count"`
	CreatedAt  time.Time `json:"created_at"`

	// Generation settings captured at start time.
	StructureID     string `json:"structure_id,omitempty"`
	ProductName     string `json:"product_name,omitempty"`
	Brief           string `json:"brief,omitempty"`
	Comments        string `json:"comments,omitempty"`
	ReferenceScript string `json:"reference_script,omitempty"`
	VoiceOver       bool   `json:"voice_over"`
	BackgroundMusic bool   `json:"background_music"`

	// Reference images stored once per batch, reused read-only by every
	// image request in the batch (including regeneration).
	ProductImageAssetID *uuid.UUID `json:"product_image_asset_id,omitempty"`
	ModelImageAssetID   *uuid.UUID `json:"model_image_asset_id,omitempty"`

	// Voice-over audio for the whole batch, when generated.
	VoiceOverAssetID *uuid.UUID `json:"voice_over_asset_id,omitempty"`
	VoiceOverURL     *string    `json:"voice_over_url,omitempty"`

	// Batch-level error (plan failure or fan-out summary). Scene-scoped
	// errors live on the scenes themselves.
	Error *string `json:"error,omitempty"`

	Scenes []Scene `json:"scenes"`
}

// ScenePlan is one entry of the planner's response: the six fields that
// populate a scene by position.
type ScenePlan struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Script      string `json:"script"`
	ImagePrompt string `json:"image_prompt"`
	VideoPrompt string `json:"video_prompt"`
	OverlayText string `json:"overlay_text"`
}

// ReferenceImage carries the raw bytes of an uploaded reference image.
// Encoded once per batch and shared byte-for-byte across the fan-out.
type ReferenceImage struct {
	Data     []byte
	MIMEType string
}

// Scene count bounds for a batch.
const (
	MinSceneCount = 4
	MaxSceneCount = 12
)

// DTOs for API requests/responses.

// ImagePayload is a base64-encoded reference image in a request body.
type ImagePayload struct {
	Data     string `json:"data" validate:"required,base64"`
	MIMEType string `json:"mime_type" validate:"required"`
}

// StartBatchRequest starts a generation run. Tool-specific required fields
// (product name vs. comments + reference script) are checked by the
// planning strategy; only the shared shape is validated by tags.
type StartBatchRequest struct {
	SceneCount      int           `json:"scene_count" validate:"required,min=4,max=12"`
	StructureID     string        `json:"structure_id,omitempty"`
	ProductName     string        `json:"product_name,omitempty"`
	Brief           string        `json:"brief,omitempty"`
	Comments        string        `json:"comments,omitempty"`
	ReferenceScript string        `json:"reference_script,omitempty"`
	VoiceOver       bool          `json:"voice_over"`
	BackgroundMusic bool          `json:"background_music"`
	ProductImage    *ImagePayload `json:"product_image,omitempty" validate:"omitempty"`
	ModelImage      *ImagePayload `json:"model_image,omitempty" validate:"omitempty"`
}

// ResetBatchRequest resets a tool's batch to fresh PENDING scenes.
type ResetBatchRequest struct {
	SceneCount int `json:"scene_count" validate:"required,min=4,max=12"`
}

// UpdateScriptRequest edits a scene's voice-over script in place.
type UpdateScriptRequest struct {
	Script string `json:"script"`
}

// UpdateVideoPromptRequest edits a scene's animation prompt in place.
type UpdateVideoPromptRequest struct {
	VideoPrompt string `json:"video_prompt"`
}

// SetCredentialRequest selects the AI service credential for the session.
type SetCredentialRequest struct {
	APIKey string `json:"api_key" validate:"required"`
}

// CredentialStatus reports the process-wide credential-selected flag.
type CredentialStatus struct {
	Selected bool `json:"selected"`
}

// BatchResponse is the API snapshot of a batch.
type BatchResponse struct {
	Batch
	ReadyScenes int `json:"ready_scenes"`
}

// NewBatchResponse builds the snapshot, counting scenes with an image.
func NewBatchResponse(b Batch) BatchResponse {
	ready := 0
	for i := range b.Scenes {
		if b.Scenes[i].ImageAssetID != nil {
			ready++
		}
	}
	return BatchResponse{Batch: b, ReadyScenes: ready}
}
