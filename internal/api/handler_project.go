package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"clientportal/internal/model"
	"clientportal/internal/repository"
	"clientportal/internal/service/progression"
	"clientportal/pkg/metrics"
	"clientportal/pkg/rbac"
)

type ProjectHandler struct {
	projectRepo *repository.ProjectRepository
	clientRepo  *repository.ClientRepository
	engine      *progression.Engine
}

func NewProjectHandler(
	projectRepo *repository.ProjectRepository,
	clientRepo *repository.ClientRepository,
	engine *progression.Engine,
) *ProjectHandler {
	return &ProjectHandler{
		projectRepo: projectRepo,
		clientRepo:  clientRepo,
		engine:      engine,
	}
}

// List handles GET /projects — clients see their own projects only.
func (h *ProjectHandler) List(c *gin.Context) {
	client, ok := h.resolveClient(c)
	if !ok {
		return
	}

	projects, err := h.projectRepo.ListByClient(c.Request.Context(), client.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list projects"})
		return
	}

	out := make([]gin.H, 0, len(projects))
	for _, p := range projects {
		out = append(out, projectJSON(p))
	}
	c.JSON(http.StatusOK, gin.H{"projects": out})
}

// Get handles GET /projects/:id
func (h *ProjectHandler) Get(c *gin.Context) {
	project, ok := h.loadAuthorizedProject(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, projectJSON(project))
}

// UpdateProgression handles PATCH /projects/:id/progression (admin only).
// The response carries one consolidated status so the UI shows a single
// message for the whole milestone cascade.
func (h *ProjectHandler) UpdateProgression(c *gin.Context) {
	projectID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}

	var req struct {
		NewPercentage     int    `json:"new_percentage"`
		CurrentPercentage int    `json:"current_percentage"`
		KnownTotalAmount  string `json:"known_total_amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	knownTotal := decimal.Zero
	if req.KnownTotalAmount != "" {
		knownTotal, err = decimal.NewFromString(req.KnownTotalAmount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid known_total_amount"})
			return
		}
	}

	outcome, err := h.engine.UpdateProgression(c.Request.Context(), projectID, req.NewPercentage, req.CurrentPercentage, knownTotal)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrPercentOutOfRange):
			metrics.IncrementProgressionUpdate("rejected")
			c.JSON(http.StatusBadRequest, gin.H{"error": "percentage must be between 0 and 100"})
		case errors.Is(err, model.ErrStaleProgression):
			metrics.IncrementProgressionUpdate("rejected")
			c.JSON(http.StatusConflict, gin.H{"error": "progression changed concurrently, reload and retry"})
		case errors.Is(err, model.ErrNotFound):
			metrics.IncrementProgressionUpdate("failed")
			c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		default:
			metrics.IncrementProgressionUpdate("failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update progression"})
		}
		return
	}

	status := "success"
	if len(outcome.Warnings) > 0 {
		status = "success_with_warnings"
	}
	metrics.IncrementProgressionUpdate(status)

	warnings := make([]gin.H, 0, len(outcome.Warnings))
	for _, w := range outcome.Warnings {
		warnings = append(warnings, gin.H{"kind": w.Kind, "detail": w.Detail})
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       status,
		"percentage":   outcome.Percentage,
		"total_amount": outcome.Total.String(),
		"crossed_50":   outcome.Crossed50,
		"crossed_100":  outcome.Crossed100,
		"warnings":     warnings,
	})
}

// loadAuthorizedProject fetches the project and enforces that a client can
// only see their own.
func (h *ProjectHandler) loadAuthorizedProject(c *gin.Context) (*model.Project, bool) {
	projectID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return nil, false
	}

	project, err := h.projectRepo.GetByID(c.Request.Context(), projectID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load project"})
		return nil, false
	}

	if c.GetString("role") == rbac.RoleClient {
		client, ok := h.resolveClient(c)
		if !ok {
			return nil, false
		}
		if client.ID != project.ClientID {
			c.JSON(http.StatusForbidden, gin.H{"error": "not your project"})
			return nil, false
		}
	}

	return project, true
}

func (h *ProjectHandler) resolveClient(c *gin.Context) (*model.Client, bool) {
	userID := c.GetInt64("user_id")
	client, err := h.clientRepo.GetByUserID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			c.JSON(http.StatusForbidden, gin.H{"error": "no client profile"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load client"})
		return nil, false
	}
	return client, true
}

func projectJSON(p *model.Project) gin.H {
	return gin.H{
		"id":                     p.ID,
		"name":                   p.Name,
		"status":                 p.Status,
		"progression_percentage": p.ProgressionPercentage,
		"total_project_amount":   p.TotalProjectAmount.String(),
		"created_at":             p.CreatedAt,
		"updated_at":             p.UpdatedAt,
	}
}
