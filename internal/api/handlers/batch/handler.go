package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/okarpov/imgpress/internal/api/respond"
	"github.com/okarpov/imgpress/internal/model"
	batchsvc "github.com/okarpov/imgpress/internal/service/batch"
)

// service defines the interface for batch conversion operations.
type service interface {
	Ingest(ctx context.Context, uploads []batchsvc.Upload) ([]model.Item, error)
	Items() []model.Item
	Preset() model.Preset
	SetPreset(p model.Preset)
	Remove(ctx context.Context, id uuid.UUID) bool
	ClearAll(ctx context.Context)
	Submit(ctx context.Context)
	Download(ctx context.Context, id uuid.UUID) (model.Item, io.ReadCloser, error)
}

// Handler provides HTTP handlers for the batch conversion endpoints.
// It depends on a service interface to perform the business logic.
type Handler struct {
	service service
}

// NewHandler creates a new Handler with the given service.
func NewHandler(s service) *Handler {
	return &Handler{service: s}
}

// QueueResponse is the observable queue state returned to the UI.
type QueueResponse struct {
	Items  []model.Item `json:"items"`
	Preset model.Preset `json:"preset"`
	Count  int          `json:"count"`
}

// PresetRequest carries the preset chosen by the client.
type PresetRequest struct {
	Preset string `json:"preset"`
}

// Upload handles a multipart file selection. Non-image files are
// silently dropped; accepted files are appended to the queue as
// pending items.
func (h *Handler) Upload(c *ginext.Context) {
	// Parse the multipart form with a 32MB max memory limit.
	if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("parse multipart form failed: %v", err))
		return
	}

	files := c.Request.MultipartForm.File["images"]
	if len(files) == 0 {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("images field is required"))
		return
	}

	uploads := make([]batchsvc.Upload, 0, len(files))
	closers := make([]io.Closer, 0, len(files))
	defer func() {
		for _, cl := range closers {
			_ = cl.Close()
		}
	}()

	for _, header := range files {
		file, err := header.Open()
		if err != nil {
			zlog.Logger.Err(err).Str("filename", header.Filename).Msg("failed to open uploaded file")
			respond.Fail(c, http.StatusBadRequest, fmt.Errorf("failed to read uploaded file"))
			return
		}
		closers = append(closers, file)

		uploads = append(uploads, batchsvc.Upload{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        file,
		})
	}

	added, err := h.service.Ingest(c.Request.Context(), uploads)
	if err != nil {
		zlog.Logger.Err(err).Msg("failed to ingest files")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to ingest files: %v", err))
		return
	}

	respond.Created(c, added)
}

// List returns the current queue, the active preset, and the item count.
func (h *Handler) List(c *ginext.Context) {
	items := h.service.Items()

	respond.OK(c, QueueResponse{
		Items:  items,
		Preset: h.service.Preset(),
		Count:  len(items),
	})
}

// SetPreset replaces the active output preset.
func (h *Handler) SetPreset(c *ginext.Context) {
	var req PresetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return
	}

	preset, err := model.ParsePreset(req.Preset)
	if err != nil {
		respond.Fail(c, http.StatusBadRequest, err)
		return
	}

	h.service.SetPreset(preset)

	respond.OK(c, map[string]interface{}{"preset": preset})
}

// Remove deletes a single item by id. Removal is idempotent: an unknown
// id still answers 204.
func (h *Handler) Remove(c *ginext.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid id: %v", err))
		return
	}

	h.service.Remove(c.Request.Context(), id)

	c.Status(http.StatusNoContent)
}

// ClearAll empties the queue.
func (h *Handler) ClearAll(c *ginext.Context) {
	h.service.ClearAll(c.Request.Context())

	c.Status(http.StatusNoContent)
}

// Submit runs the conversion driver over the full current queue and
// returns the resulting queue state.
func (h *Handler) Submit(c *ginext.Context) {
	h.service.Submit(c.Request.Context())

	items := h.service.Items()
	respond.OK(c, QueueResponse{
		Items:  items,
		Preset: h.service.Preset(),
		Count:  len(items),
	})
}

// Download serves the encoded result of a done item as a file
// attachment named after the original file.
func (h *Handler) Download(c *ginext.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid id: %v", err))
		return
	}

	item, reader, err := h.service.Download(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, batchsvc.ErrItemNotFound):
			respond.Fail(c, http.StatusNotFound, err)
		case errors.Is(err, batchsvc.ErrResultNotReady):
			respond.Fail(c, http.StatusConflict, err)
		default:
			zlog.Logger.Err(err).Msg("failed to serve result")
			respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to serve result"))
		}
		return
	}
	defer reader.Close()

	respond.AVIF(c, http.StatusOK, item.ResultSize, model.ResultFilename(item.Filename), reader)
}
