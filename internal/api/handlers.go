package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	orerrors "github.com/openroger/openroger/internal/errors"
	"github.com/openroger/openroger/internal/orchestrator"
	"github.com/openroger/openroger/internal/phase"
	"github.com/openroger/openroger/internal/preview"
	"github.com/openroger/openroger/internal/store"
	"github.com/openroger/openroger/internal/workspace"
)

// ProblemDetail follows RFC 7807 for error responses.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// problemResponse returns an RFC 7807 Problem Detail error response.
func problemResponse(c *fiber.Ctx, status int, errType, title, detail string) error {
	return c.Status(status).JSON(ProblemDetail{
		Type:     errType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Path(),
	})
}

// Handlers implements the project API endpoints.
type Handlers struct {
	store    *store.Store
	orch     *orchestrator.Orchestrator
	ws       *workspace.Store
	previews *preview.Manager
	logger   zerolog.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(st *store.Store, orch *orchestrator.Orchestrator, ws *workspace.Store, previews *preview.Manager, logger zerolog.Logger) *Handlers {
	return &Handlers{
		store:    st,
		orch:     orch,
		ws:       ws,
		previews: previews,
		logger:   logger.With().Str("component", "handlers").Logger(),
	}
}

// ownedProject loads the project and enforces ownership, writing the error
// response itself when the project is unavailable.
func (h *Handlers) ownedProject(c *fiber.Ctx, id string) (*store.Project, bool) {
	p, err := h.store.GetProjectForUser(id, currentUser(c))
	if err != nil {
		_ = problemResponse(c, fiber.StatusInternalServerError,
			"store_error", "Internal Server Error", "Failed to load project")
		return nil, false
	}
	if p == nil {
		_ = problemResponse(c, fiber.StatusNotFound,
			"project_not_found", "Not Found", "Project not found")
		return nil, false
	}
	return p, true
}

// CreateProjectRequest is the body of POST /api/projects.
type CreateProjectRequest struct {
	Prompt string `json:"prompt"`
	Name   string `json:"name"`
}

// CreateProject handles POST /api/projects.
func (h *Handlers) CreateProject(c *fiber.Ctx) error {
	var req CreateProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request", "Invalid request body: "+err.Error())
	}
	if req.Prompt == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_prompt", "Bad Request", "prompt is required")
	}

	p, err := h.orch.CreateProject(c.Context(), store.CreateProjectInput{
		Name:   req.Name,
		Prompt: req.Prompt,
		UserID: currentUser(c),
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("project creation failed")
		return problemResponse(c, fiber.StatusInternalServerError,
			"create_failed", "Internal Server Error", "Failed to create project")
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

// ListProjects handles GET /api/projects.
func (h *Handlers) ListProjects(c *fiber.Ctx) error {
	projects, err := h.store.ListProjects(currentUser(c))
	if err != nil {
		return problemResponse(c, fiber.StatusInternalServerError,
			"store_error", "Internal Server Error", "Failed to list projects")
	}
	if projects == nil {
		projects = []*store.Project{}
	}
	return c.JSON(projects)
}

// GetProject handles GET /api/projects/:id. The folder structure is
// re-snapshotted from disk so the response reflects the live workspace.
func (h *Handlers) GetProject(c *fiber.Ctx) error {
	p, ok := h.ownedProject(c, c.Params("id"))
	if !ok {
		return nil
	}
	p.FolderStructure = h.ws.Snapshot(p.ID)
	return c.JSON(p)
}

// GetStructure handles GET /api/projects/:id/structure.
func (h *Handlers) GetStructure(c *fiber.Ctx) error {
	p, ok := h.ownedProject(c, c.Params("id"))
	if !ok {
		return nil
	}
	return c.JSON(h.ws.Snapshot(p.ID))
}

// GetFile handles GET /api/projects/:id/file?path=...
func (h *Handlers) GetFile(c *fiber.Ctx) error {
	p, ok := h.ownedProject(c, c.Params("id"))
	if !ok {
		return nil
	}
	path := c.Query("path")
	if path == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_path", "Bad Request", "path query required")
	}
	content, found := h.ws.ReadFile(p.ID, path)
	if !found {
		return problemResponse(c, fiber.StatusNotFound,
			"file_not_found", "Not Found", "File not found")
	}
	return c.JSON(fiber.Map{"path": path, "content": content})
}

// GetPreviewURL handles GET /api/projects/:id/preview-url.
func (h *Handlers) GetPreviewURL(c *fiber.Ctx) error {
	p, ok := h.ownedProject(c, c.Params("id"))
	if !ok {
		return nil
	}
	if url, running := h.previews.URL(p.ID); running {
		return c.JSON(fiber.Map{"url": url})
	}
	return c.JSON(fiber.Map{"url": nil})
}

// StartPreview handles POST /api/projects/:id/preview-start.
func (h *Handlers) StartPreview(c *fiber.Ctx) error {
	p, ok := h.ownedProject(c, c.Params("id"))
	if !ok {
		return nil
	}
	url, err := h.previews.Start(p.ID)
	if err != nil {
		if errors.Is(err, orerrors.ErrFrontendNotReady) {
			return problemResponse(c, fiber.StatusConflict,
				"frontend_not_ready", "Conflict", err.Error())
		}
		h.logger.Error().Err(err).Str("project_id", p.ID).Msg("preview start failed")
		return problemResponse(c, fiber.StatusInternalServerError,
			"preview_failed", "Internal Server Error", "Failed to start preview")
	}
	return c.JSON(fiber.Map{"url": url})
}

// StopPreview handles POST /api/projects/:id/preview-stop.
func (h *Handlers) StopPreview(c *fiber.Ctx) error {
	p, ok := h.ownedProject(c, c.Params("id"))
	if !ok {
		return nil
	}
	h.previews.Stop(p.ID)
	return c.JSON(fiber.Map{"stopped": true})
}

// ApproveRequest is the body of POST /api/projects/:id/approve.
type ApproveRequest struct {
	Action  phase.Action `json:"action"`
	Comment string       `json:"comment"`
}

// Approve handles POST /api/projects/:id/approve.
func (h *Handlers) Approve(c *fiber.Ctx) error {
	var req ApproveRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request", "Invalid request body: "+err.Error())
	}

	p, err := h.orch.Decide(c.Context(), c.Params("id"), currentUser(c), req.Action, req.Comment)
	if err != nil {
		switch {
		case errors.Is(err, orerrors.ErrInvalidInput):
			return problemResponse(c, fiber.StatusBadRequest,
				"invalid_action", "Bad Request", "Invalid action")
		case errors.Is(err, orerrors.ErrNotFound):
			return problemResponse(c, fiber.StatusNotFound,
				"project_not_found", "Not Found", "Project not found")
		}
		h.logger.Error().Err(err).Str("project_id", c.Params("id")).Msg("approval failed")
		return problemResponse(c, fiber.StatusInternalServerError,
			"approval_failed", "Internal Server Error", "Failed to apply decision")
	}
	return c.JSON(p)
}

// ListAgents handles GET /api/agents/project/:projectId.
func (h *Handlers) ListAgents(c *fiber.Ctx) error {
	p, ok := h.ownedProject(c, c.Params("projectId"))
	if !ok {
		return nil
	}
	agents, err := h.store.ListAgents(p.ID)
	if err != nil {
		return problemResponse(c, fiber.StatusInternalServerError,
			"store_error", "Internal Server Error", "Failed to list agents")
	}
	if agents == nil {
		agents = []*store.Agent{}
	}
	return c.JSON(agents)
}

// AddAgentRequest is the body of POST /api/agents/project/:projectId.
type AddAgentRequest struct {
	Name           string   `json:"name"`
	Role           string   `json:"role"`
	AllowedFolders []string `json:"allowed_folders"`
}

// AddAgent handles POST /api/agents/project/:projectId.
func (h *Handlers) AddAgent(c *fiber.Ctx) error {
	p, ok := h.ownedProject(c, c.Params("projectId"))
	if !ok {
		return nil
	}
	var req AddAgentRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request", "Invalid request body: "+err.Error())
	}
	if req.Name == "" || req.Role == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_fields", "Bad Request", "name and role required")
	}

	agent, err := h.store.AddAgent(p.ID, req.Name, req.Role, req.AllowedFolders)
	if err != nil {
		return problemResponse(c, fiber.StatusInternalServerError,
			"store_error", "Internal Server Error", "Failed to add agent")
	}
	return c.Status(fiber.StatusCreated).JSON(agent)
}

// ListTasks handles GET /api/tasks/project/:projectId.
func (h *Handlers) ListTasks(c *fiber.Ctx) error {
	p, ok := h.ownedProject(c, c.Params("projectId"))
	if !ok {
		return nil
	}
	tasks, err := h.store.ListTasks(p.ID)
	if err != nil {
		return problemResponse(c, fiber.StatusInternalServerError,
			"store_error", "Internal Server Error", "Failed to list tasks")
	}
	if tasks == nil {
		tasks = []*store.Task{}
	}
	return c.JSON(tasks)
}

// ListApprovals handles GET /api/tasks/project/:projectId/approvals.
func (h *Handlers) ListApprovals(c *fiber.Ctx) error {
	p, ok := h.ownedProject(c, c.Params("projectId"))
	if !ok {
		return nil
	}
	approvals, err := h.store.ListApprovals(p.ID)
	if err != nil {
		return problemResponse(c, fiber.StatusInternalServerError,
			"store_error", "Internal Server Error", "Failed to list approvals")
	}
	if approvals == nil {
		approvals = []*store.Approval{}
	}
	return c.JSON(approvals)
}
