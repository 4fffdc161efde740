package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"Terminal/internal/collector"
	"Terminal/internal/model"
	"Terminal/internal/terminal"

	"github.com/gin-gonic/gin"
)

// Service is what the HTTP API needs from terminal.Service.
type Service interface {
	Preview(date string, level model.Level, rows []model.PerformanceRow) (*model.Batch, error)
	Suggest(ctx context.Context, date string, level model.Level) (*model.Batch, error)
	Apply(ctx context.Context, date string, level model.Level, ids []string) (*model.ApplyReport, error)
	Learn(ctx context.Context, date string, level model.Level) (*model.LearnReport, error)
	Latest(ctx context.Context, date string, level model.Level) (*model.Batch, error)
}

// Router exposes the decision operations.
type Router struct {
	svc Service
}

func NewRouter(svc Service) *Router {
	return &Router{svc: svc}
}

// Register mounts the routes under group.
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.POST("/preview", r.handlePreview)
	group.POST("/suggest", r.handleSuggest)
	group.POST("/apply", r.handleApply)
	group.POST("/learn", r.handleLearn)
	group.GET("/decisions", r.handleDecisions)
}

type batchRequest struct {
	Date  string   `json:"date"`
	Level string   `json:"level"`
	IDs   []string `json:"ids,omitempty"`
}

type previewRequest struct {
	Date  string          `json:"date"`
	Level string          `json:"level"`
	Rows  json.RawMessage `json:"rows"`
}

func (r *Router) handlePreview(c *gin.Context) {
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}
	if len(req.Rows) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rows is required"})
		return
	}
	raws, err := collector.DecodeRows(req.Rows)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	level := model.Level(strings.ToLower(strings.TrimSpace(req.Level)))
	rows, err := collector.CoerceRows(raws, level)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	batch, err := r.svc.Preview(req.Date, level, rows)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

func (r *Router) bindBatch(c *gin.Context) (batchRequest, bool) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return req, false
	}
	req.Level = strings.ToLower(strings.TrimSpace(req.Level))
	return req, true
}

func (r *Router) handleSuggest(c *gin.Context) {
	req, ok := r.bindBatch(c)
	if !ok {
		return
	}
	batch, err := r.svc.Suggest(c.Request.Context(), req.Date, model.Level(req.Level))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, batch)
}

func (r *Router) handleApply(c *gin.Context) {
	req, ok := r.bindBatch(c)
	if !ok {
		return
	}
	rep, err := r.svc.Apply(c.Request.Context(), req.Date, model.Level(req.Level), req.IDs)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (r *Router) handleLearn(c *gin.Context) {
	req, ok := r.bindBatch(c)
	if !ok {
		return
	}
	rep, err := r.svc.Learn(c.Request.Context(), req.Date, model.Level(req.Level))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (r *Router) handleDecisions(c *gin.Context) {
	date := strings.TrimSpace(c.Query("date"))
	level := strings.ToLower(c.DefaultQuery("level", string(model.LevelAdset)))
	batch, err := r.svc.Latest(c.Request.Context(), date, model.Level(level))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, terminal.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, terminal.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, terminal.ErrNotReady):
		status = http.StatusServiceUnavailable
		c.Header("Retry-After", "3600")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
