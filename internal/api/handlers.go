package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/bobarin/ugcstudio/internal/catalog"
	"github.com/bobarin/ugcstudio/internal/models"
	"github.com/bobarin/ugcstudio/internal/pipeline"
	"github.com/bobarin/ugcstudio/internal/queue"
	"github.com/bobarin/ugcstudio/internal/services"
	"github.com/bobarin/ugcstudio/internal/session"
	"github.com/bobarin/ugcstudio/internal/storage"
	"github.com/bobarin/ugcstudio/internal/store"
)

var validate = validator.New()

type Handler struct {
	store    *store.Store
	assets   *storage.Store
	creds    *session.Credentials
	catalog  *catalog.Catalog
	pipeline *pipeline.Pipeline
	queue    *queue.Queue
}

func NewHandler(st *store.Store, assets *storage.Store, creds *session.Credentials, cat *catalog.Catalog, p *pipeline.Pipeline, q *queue.Queue) *Handler {
	return &Handler{
		store:    st,
		assets:   assets,
		creds:    creds,
		catalog:  cat,
		pipeline: p,
		queue:    q,
	}
}

// parseTool pulls and validates the {tool} URL segment. Responds with 404
// itself when the tool is unknown and reports ok=false.
func parseTool(w http.ResponseWriter, r *http.Request) (models.Tool, bool) {
	tool, ok := models.ParseTool(chi.URLParam(r, "tool"))
	if !ok {
		respondError(w, http.StatusNotFound, "Unknown tool")
		return "", false
	}
	return tool, true
}

// parseSceneID pulls the {sceneID} URL segment.
func parseSceneID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "sceneID"))
	if err != nil || id < 1 {
		respondError(w, http.StatusBadRequest, "Invalid scene ID")
		return 0, false
	}
	return id, true
}

// decodeAndValidate decodes a JSON body into dst and runs struct tag
// validation. Responds with 400 itself on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// respondServiceError maps the pipeline's error kinds to HTTP statuses.
func respondServiceError(w http.ResponseWriter, err error) {
	switch services.KindOf(err) {
	case services.KindValidation:
		respondError(w, http.StatusBadRequest, err.Error())
	case services.KindCredentialMissing, services.KindNotFound:
		respondError(w, http.StatusUnauthorized, err.Error())
	case services.KindQuota:
		respondError(w, http.StatusTooManyRequests, err.Error())
	case services.KindContentFiltered:
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		respondError(w, http.StatusBadGateway, err.Error())
	}
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListStructures handles GET /v1/structures
func (h *Handler) ListStructures(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"structures": h.catalog.List(),
	})
}

// GetCredentialStatus handles GET /v1/credentials
func (h *Handler) GetCredentialStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, models.CredentialStatus{Selected: h.creds.Selected()})
}

// SetCredential handles POST /v1/credentials
func (h *Handler) SetCredential(w http.ResponseWriter, r *http.Request) {
	var req models.SetCredentialRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	h.creds.Select(req.APIKey)
	respondJSON(w, http.StatusOK, models.CredentialStatus{Selected: true})
}

// ClearCredential handles DELETE /v1/credentials
func (h *Handler) ClearCredential(w http.ResponseWriter, r *http.Request) {
	h.creds.Clear()
	respondJSON(w, http.StatusOK, models.CredentialStatus{Selected: false})
}

// GetBatch handles GET /v1/tools/{tool}/batch
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	tool, ok := parseTool(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, models.NewBatchResponse(h.store.Get(tool)))
}

// StartBatch handles POST /v1/tools/{tool}/batch
// Validates inputs, resets the batch under a new epoch, and queues the plan
// plus image fan-out. Responds 202 with the fresh batch snapshot.
func (h *Handler) StartBatch(w http.ResponseWriter, r *http.Request) {
	tool, ok := parseTool(w, r)
	if !ok {
		return
	}
	var req models.StartBatchRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	batch, err := h.pipeline.PrepareBatch(tool, req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if err := h.queue.EnqueueGenerateBatch(r.Context(), tool, batch.Epoch); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}
	respondJSON(w, http.StatusAccepted, models.NewBatchResponse(batch))
}

// ResetBatch handles POST /v1/tools/{tool}/batch/reset
func (h *Handler) ResetBatch(w http.ResponseWriter, r *http.Request) {
	tool, ok := parseTool(w, r)
	if !ok {
		return
	}
	var req models.ResetBatchRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	batch, err := h.pipeline.ResetBatch(tool, req.SceneCount)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, models.NewBatchResponse(batch))
}

// GenerateVoiceOver handles POST /v1/tools/{tool}/batch/voice-over
func (h *Handler) GenerateVoiceOver(w http.ResponseWriter, r *http.Request) {
	tool, ok := parseTool(w, r)
	if !ok {
		return
	}
	epoch, err := h.pipeline.PrepareVoiceOver(tool)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if err := h.queue.EnqueueGenerateVoice(r.Context(), tool, epoch); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}
	respondJSON(w, http.StatusAccepted, models.NewBatchResponse(h.store.Get(tool)))
}

// RegenerateImage handles POST /v1/tools/{tool}/scenes/{sceneID}/image
// Regenerates one scene image with its stored prompt; siblings are never
// touched.
func (h *Handler) RegenerateImage(w http.ResponseWriter, r *http.Request) {
	tool, ok := parseTool(w, r)
	if !ok {
		return
	}
	sceneID, ok := parseSceneID(w, r)
	if !ok {
		return
	}

	epoch, err := h.pipeline.PrepareImageRegen(tool, sceneID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if err := h.queue.EnqueueRegenerateImage(r.Context(), tool, epoch, sceneID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}
	respondJSON(w, http.StatusAccepted, models.NewBatchResponse(h.store.Get(tool)))
}

// GenerateVideo handles POST /v1/tools/{tool}/scenes/{sceneID}/video
func (h *Handler) GenerateVideo(w http.ResponseWriter, r *http.Request) {
	tool, ok := parseTool(w, r)
	if !ok {
		return
	}
	sceneID, ok := parseSceneID(w, r)
	if !ok {
		return
	}

	epoch, err := h.pipeline.PrepareVideo(tool, sceneID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if err := h.queue.EnqueueGenerateVideo(r.Context(), tool, epoch, sceneID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}
	respondJSON(w, http.StatusAccepted, models.NewBatchResponse(h.store.Get(tool)))
}

// UpdateScript handles PUT /v1/tools/{tool}/scenes/{sceneID}/script
// Edits apply in place at any time; status and artifacts are untouched.
func (h *Handler) UpdateScript(w http.ResponseWriter, r *http.Request) {
	tool, ok := parseTool(w, r)
	if !ok {
		return
	}
	sceneID, ok := parseSceneID(w, r)
	if !ok {
		return
	}
	var req models.UpdateScriptRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.store.UpdateScript(tool, sceneID, req.Script); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, models.NewBatchResponse(h.store.Get(tool)))
}

// UpdateVideoPrompt handles PUT /v1/tools/{tool}/scenes/{sceneID}/video-prompt
func (h *Handler) UpdateVideoPrompt(w http.ResponseWriter, r *http.Request) {
	tool, ok := parseTool(w, r)
	if !ok {
		return
	}
	sceneID, ok := parseSceneID(w, r)
	if !ok {
		return
	}
	var req models.UpdateVideoPromptRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.store.UpdateVideoPrompt(tool, sceneID, req.VideoPrompt); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, models.NewBatchResponse(h.store.Get(tool)))
}

// GetAsset handles GET /assets/{id}, serving stored artifact bytes.
func (h *Handler) GetAsset(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid asset ID")
		return
	}
	asset, ok := h.assets.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "Asset not found")
		return
	}

	w.Header().Set("Content-Type", asset.ContentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(asset.Data)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
