package server

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	simpleverse "github.com/nguyennamkkb/Simpleverse-home"
	"github.com/nguyennamkkb/Simpleverse-home/batch"
	"github.com/nguyennamkkb/Simpleverse-home/core"
	apperrors "github.com/nguyennamkkb/Simpleverse-home/errors"
	"github.com/nguyennamkkb/Simpleverse-home/hooks"
	"github.com/nguyennamkkb/Simpleverse-home/settings"
)

const sessionKey = "session"

// ── Responses ─────────────────────────────────────────────────────────────────

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type ItemsResponse struct {
	Items []batch.Item  `json:"items"`
	Stats batch.Stats   `json:"stats"`
	Tool  string        `json:"tool"`
	Kind  settings.Kind `json:"kind"`
}

type MetricsResponse struct {
	hooks.MetricsSnapshot
	Processed int64 `json:"processed"`
	Errors    int64 `json:"errors"`
}

type ToolInfo struct {
	Name string        `json:"name"`
	Kind settings.Kind `json:"kind"`
}

type ToolsResponse struct {
	Tools   []ToolInfo    `json:"tools"`
	Formats []core.Format `json:"formats"`
}

// ── Requests ──────────────────────────────────────────────────────────────────

type MoveRequest struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

type DragRequest struct {
	Handle settings.Handle `json:"handle" binding:"required"`
	DX     float64         `json:"dx"`
	DY     float64         `json:"dy"`
}

// ── Middleware ────────────────────────────────────────────────────────────────

func (s *Server) withSession(c *gin.Context) {
	tool, ok := simpleverse.ParseTool(c.Param("tool"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, ErrorResponse{Error: "unknown tool", Message: c.Param("tool")})
		return
	}
	c.Set(sessionKey, s.wb.Session(tool))
	c.Next()
}

func session(c *gin.Context) *batch.Coordinator {
	return c.MustGet(sessionKey).(*batch.Coordinator)
}

// fail maps err onto a status code.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperrors.ErrItemNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperrors.ErrInputTooLarge):
		status = http.StatusRequestEntityTooLarge
	case apperrors.IsCategory(err, apperrors.CategoryInput):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, ErrorResponse{Error: http.StatusText(status), Message: err.Error()})
}

// ── Global ────────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleMetrics(c *gin.Context) {
	processed, failed := s.wb.Stats()
	c.JSON(http.StatusOK, MetricsResponse{
		MetricsSnapshot: s.wb.Metrics(),
		Processed:       processed,
		Errors:          failed,
	})
}

func (s *Server) handleTools(c *gin.Context) {
	resp := ToolsResponse{Formats: s.wb.Formats()}
	for _, t := range simpleverse.Tools() {
		resp.Tools = append(resp.Tools, ToolInfo{Name: string(t), Kind: t.Kind()})
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handlePreview(c *gin.Context) {
	pv, ok := s.wb.Previews().Get(c.Param("handle"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "preview not found"})
		return
	}
	c.Header("Cache-Control", "private, max-age=300")
	c.Data(http.StatusOK, pv.Format.MediaType(), pv.Data)
}

// ── Items ─────────────────────────────────────────────────────────────────────

func (s *Server) itemsResponse(c *gin.Context) ItemsResponse {
	sess := session(c)
	return ItemsResponse{
		Items: sess.Items(),
		Stats: sess.Stats(),
		Tool:  c.Param("tool"),
		Kind:  sess.Kind(),
	}
}

func (s *Server) handleListItems(c *gin.Context) {
	c.JSON(http.StatusOK, s.itemsResponse(c))
}

func (s *Server) handleAddItems(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "failed to parse multipart form", Message: err.Error()})
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "no files", Message: `expected one or more "files" parts`})
		return
	}

	sources := make([]core.Source, 0, len(headers))
	files := make([]multipart.File, 0, len(headers))
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()
	for _, fh := range headers {
		ct := fh.Header.Get("Content-Type")
		if !acceptedContentType(ct) {
			c.JSON(http.StatusUnsupportedMediaType, ErrorResponse{
				Error:   "unsupported media type",
				Message: fmt.Sprintf("%s: %s", fh.Filename, ct),
			})
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "failed to open upload", Message: err.Error()})
			return
		}
		files = append(files, f)
		sources = append(sources, core.Source{Reader: f, Name: fh.Filename, ContentType: ct, Size: fh.Size})
	}

	if _, err := session(c).Add(c.Request.Context(), sources...); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, s.itemsResponse(c))
}

// acceptedContentType lets images and untyped parts through; untyped parts
// are sniffed on add.
func acceptedContentType(ct string) bool {
	if ct == "" || ct == "application/octet-stream" {
		return true
	}
	return core.FormatFromContentType(ct) != core.FormatUnknown
}

func (s *Server) handleClear(c *gin.Context) {
	session(c).Clear()
	c.Status(http.StatusNoContent)
}

func (s *Server) handleGetItem(c *gin.Context) {
	it, ok := session(c).Item(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "item not found", Message: c.Param("id")})
		return
	}
	c.JSON(http.StatusOK, it)
}

func (s *Server) handleRemoveItem(c *gin.Context) {
	session(c).Remove(c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (s *Server) respondItem(c *gin.Context) {
	it, ok := session(c).Item(c.Param("id"))
	if !ok {
		// removed concurrently
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, it)
}

// ── Settings ──────────────────────────────────────────────────────────────────

func (s *Server) handleUpdateSettings(c *gin.Context) {
	var patch settings.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid settings", Message: err.Error()})
		return
	}
	if err := session(c).Update(c.Param("id"), patch); err != nil {
		fail(c, err)
		return
	}
	s.respondItem(c)
}

func (s *Server) handleDefaults(c *gin.Context) {
	c.JSON(http.StatusOK, session(c).Defaults())
}

func (s *Server) handleApplyToAll(c *gin.Context) {
	var patch settings.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid settings", Message: err.Error()})
		return
	}
	if err := session(c).ApplyToAll(patch); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.itemsResponse(c))
}

func (s *Server) handleMoveCrop(c *gin.Context) {
	var req MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid move", Message: err.Error()})
		return
	}
	if err := session(c).MoveCrop(c.Param("id"), req.DX, req.DY); err != nil {
		fail(c, err)
		return
	}
	s.respondItem(c)
}

func (s *Server) handleDragCrop(c *gin.Context) {
	var req DragRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid drag", Message: err.Error()})
		return
	}
	if err := session(c).DragCrop(c.Param("id"), req.Handle, req.DX, req.DY); err != nil {
		fail(c, err)
		return
	}
	s.respondItem(c)
}

// ── Processing ────────────────────────────────────────────────────────────────

func (s *Server) handleProcessOne(c *gin.Context) {
	if err := session(c).ProcessOne(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	s.respondItem(c)
}

func (s *Server) handleProcessAll(c *gin.Context) {
	if err := session(c).ProcessAll(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.itemsResponse(c))
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, session(c).Stats())
}

// ── Downloads ─────────────────────────────────────────────────────────────────

func attachment(c *gin.Context, art batch.Artifact) {
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, strings.ReplaceAll(art.Name, `"`, "")))
	c.Data(http.StatusOK, art.MediaType, art.Data)
}

// handleDownload streams one artifact.  An item without output answers 204.
func (s *Server) handleDownload(c *gin.Context) {
	art, ok, err := session(c).Artifact(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	attachment(c, art)
}

func (s *Server) handleArchive(c *gin.Context) {
	art, n, err := session(c).Archive(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	if n == 0 {
		c.Status(http.StatusNoContent)
		return
	}
	attachment(c, art)
}

// handleSave delivers one artifact to the configured delivery target.
func (s *Server) handleSave(c *gin.Context) {
	if err := session(c).Download(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSaveArchive(c *gin.Context) {
	if err := session(c).DownloadAll(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
