package handler

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dubforge/internal/fileops"
	"github.com/dubforge/internal/pipeline"
	"github.com/dubforge/internal/queue"
	"github.com/dubforge/internal/version"
	"github.com/dubforge/pkg/logger"
)

// Handler exposes the HTTP boundary: job submission, status read-back and
// artifact download.
type Handler struct {
	queue     *queue.Queue
	uploadDir string
}

// New creates a new Handler.
func New(q *queue.Queue, uploadDir string) *Handler {
	return &Handler{queue: q, uploadDir: uploadDir}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/version", h.Version)
	r.GET("/queue/stats", h.QueueStats)

	r.POST("/upload", h.Upload)
	r.GET("/job/:id", h.GetJob)
	r.GET("/download/:name", h.Download)
}

// Health returns service health status.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Version returns service version.
func (h *Handler) Version(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": version.Version})
}

// QueueStats returns job counts by state.
func (h *Handler) QueueStats(c *gin.Context) {
	stats, err := h.queue.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Upload accepts a multipart media file plus optional per-job flags, stores
// the file and enqueues a dubbing job.
func (h *Handler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	storedPath, err := fileops.SaveUploaded(fh, h.uploadDir)
	if err != nil {
		logger.Warnf("⚠️ Upload save failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	req := pipeline.Request{
		SourcePath:   storedPath,
		OriginalName: fh.Filename,
	}
	if v, ok := c.GetPostForm("mergeMode"); ok {
		mode := strings.ToLower(v)
		req.MergeMode = &mode
	}
	if v, ok := c.GetPostForm("burnSubtitles"); ok {
		b := truthy(v)
		req.BurnSubtitles = &b
	}
	if v, ok := c.GetPostForm("enhance"); ok {
		b := truthy(v)
		req.Enhance = &b
	}

	id, err := h.queue.Enqueue(c.Request.Context(), queue.JobProcessVideo, req)
	if err != nil {
		logger.Warnf("⚠️ Enqueue failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	logger.Infof("📤 Upload accepted: %s → job %s", fh.Filename, id)
	c.JSON(http.StatusOK, gin.H{"jobId": id, "status": "queued"})
}

// GetJob returns the job record by id.
func (h *Handler) GetJob(c *gin.Context) {
	job, err := h.queue.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":       job.ID,
		"name":     job.Name,
		"data":     job.Data,
		"state":    job.State,
		"progress": job.Progress,
		"result":   job.Result,
	})
}

// Download serves an artifact by basename. The name is stripped of any path
// components so clients cannot traverse out of the upload directory.
func (h *Handler) Download(c *gin.Context) {
	name := filepath.Base(c.Param("name"))
	if name == "." || name == string(filepath.Separator) {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}

	path := filepath.Join(h.uploadDir, name)
	if !fileops.Exists(path) {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	c.File(path)
}

// truthy reports whether a form value means true: the string "true" in any
// case.
func truthy(v string) bool {
	return strings.EqualFold(v, "true")
}
