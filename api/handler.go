package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lithammer/shortuuid/v4"

	"clipnorm/config"
	"clipnorm/media"
	"clipnorm/pipeline"
	"clipnorm/task"
)

type Handler struct {
	taskManager *task.Manager
	pl          *pipeline.Pipeline
	cfg         *config.Config
}

func NewHandler(tm *task.Manager, pl *pipeline.Pipeline, cfg *config.Config) *Handler {
	return &Handler{
		taskManager: tm,
		pl:          pl,
		cfg:         cfg,
	}
}

// statusForError maps the pipeline error taxonomy onto HTTP codes.
func statusForError(err error) int {
	switch media.KindOf(err) {
	case media.ErrInvalidKind, media.ErrDurationExceeded:
		return http.StatusBadRequest
	case media.ErrDecode:
		return http.StatusUnprocessableEntity
	case media.ErrCaptureUnsupported:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// assetFromUpload reads a multipart file into an in-memory asset,
// enforcing the configured size cap.
func (h *Handler) assetFromUpload(fh *multipart.FileHeader) (media.Asset, error) {
	if fh.Size > h.cfg.MaxInputSize {
		return media.Asset{}, fmt.Errorf("input file size %d exceeds limit of %d bytes", fh.Size, h.cfg.MaxInputSize)
	}
	f, err := fh.Open()
	if err != nil {
		return media.Asset{}, err
	}
	defer f.Close()

	limited := &io.LimitedReader{R: f, N: h.cfg.MaxInputSize + 1}
	data, err := io.ReadAll(limited)
	if err != nil {
		return media.Asset{}, err
	}
	if int64(len(data)) > h.cfg.MaxInputSize {
		return media.Asset{}, fmt.Errorf("input file size exceeds limit of %d bytes", h.cfg.MaxInputSize)
	}

	return media.Asset{
		Name: filepath.Base(fh.Filename),
		MIME: fh.Header.Get("Content-Type"),
		Data: data,
	}, nil
}

// previewLimit resolves the requested limit in whole seconds. Audio
// previews default to the preview limit, generic video to the shorter
// trim limit; the two policy values are deliberately separate.
func (h *Handler) previewLimit(c *gin.Context, kind media.Kind) (time.Duration, error) {
	raw := strings.TrimSpace(c.PostForm("limit"))
	if raw == "" {
		if kind == media.KindVideo {
			return h.cfg.TrimLimit, nil
		}
		return h.cfg.PreviewLimit, nil
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer of seconds")
	}
	return time.Duration(secs) * time.Second, nil
}

// handleCreatePreview stages an uploaded file and queues it for preview
// normalization.
func (h *Handler) handleCreatePreview(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'file' is required"})
		return
	}
	if fh.Size > h.cfg.MaxInputSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("input file size %d exceeds limit of %d bytes", fh.Size, h.cfg.MaxInputSize)})
		return
	}

	name := filepath.Base(fh.Filename)
	mimeType := fh.Header.Get("Content-Type")
	// The submission boundary is stricter than the pipeline's classifier.
	if err := media.AcceptUpload(media.Asset{Name: name, MIME: mimeType}); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	limit, err := h.previewLimit(c, media.Classify(media.Asset{Name: name, MIME: mimeType}))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// strict=true rejects over-limit inputs up front instead of trimming.
	if strings.EqualFold(c.PostForm("strict"), "true") {
		asset, err := h.assetFromUpload(fh)
		if err != nil {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
			return
		}
		if err := h.pl.ValidateDuration(c.Request.Context(), asset, limit); err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error(), "kind": string(media.KindOf(err))})
			return
		}
	}

	stagedPath := filepath.Join(h.cfg.TempDir, fmt.Sprintf("upload_%s%s", shortuuid.New(), filepath.Ext(name)))
	if err := c.SaveUploadedFile(fh, stagedPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to stage upload", "details": err.Error()})
		return
	}

	t, err := h.taskManager.Submit(stagedPath, name, mimeType, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create task", "details": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"taskId": t.ID})
}

// handleListPreviews lists all tasks.
func (h *Handler) handleListPreviews(c *gin.Context) {
	c.JSON(http.StatusOK, h.taskManager.List())
}

// buildDownloadURL constructs the full URL for a completed task's file.
func (h *Handler) buildDownloadURL(c *gin.Context, t *task.Task) {
	if t.Status != task.StatusCompleted || t.OutputPath == "" {
		return
	}

	baseURL := h.cfg.BaseURL
	if baseURL == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s", scheme, c.Request.Host)
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	filename := filepath.Base(t.OutputPath)
	t.DownloadURL = fmt.Sprintf("%s/api/v1/files/%s", baseURL, filename)
}

// handleGetPreviewStatus retrieves the status of a single task.
func (h *Handler) handleGetPreviewStatus(c *gin.Context) {
	taskID := c.Param("taskId")
	t, found := h.taskManager.Get(taskID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	h.buildDownloadURL(c, t)
	c.JSON(http.StatusOK, t)
}

// handleCancelPreview cancels a task.
func (h *Handler) handleCancelPreview(c *gin.Context) {
	taskID := c.Param("taskId")
	if err := h.taskManager.Cancel(taskID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "task cancellation requested"})
}

// handleGetFile serves a completed output file.
func (h *Handler) handleGetFile(c *gin.Context) {
	filename := c.Param("filename")
	filePath, err := h.taskManager.GetFilePath(filename)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.File(filePath)
}

// handleProbe reads the true playable duration of an uploaded file
// without converting it. Synchronous: a probe loads metadata only.
func (h *Handler) handleProbe(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'file' is required"})
		return
	}
	asset, err := h.assetFromUpload(fh)
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		return
	}

	d, err := h.pl.Probe(c.Request.Context(), asset)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error(), "kind": string(media.KindOf(err))})
		return
	}
	c.JSON(http.StatusOK, gin.H{"durationSeconds": int(d / time.Second)})
}

// handleClassify reports the asset's kind and the runtime's playback
// judgment. Pure string checks, nothing is decoded.
func (h *Handler) handleClassify(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'file' is required"})
		return
	}

	asset := media.Asset{
		Name: filepath.Base(fh.Filename),
		MIME: fh.Header.Get("Content-Type"),
	}
	capability := h.pl.Capability(asset)
	c.JSON(http.StatusOK, gin.H{
		"kind":       string(media.Classify(asset)),
		"capability": string(capability),
		"playable":   capability.Playable(),
	})
}
