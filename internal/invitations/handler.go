package invitations

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atlas-collab/backend/internal/middleware"
	"github.com/atlas-collab/backend/internal/models"
	"github.com/atlas-collab/backend/internal/roles"
	"github.com/atlas-collab/backend/internal/workspaces"
	"github.com/atlas-collab/backend/pkg/response"
)

// UserStore loads the accepting user.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// CreateRequest is the body for POST /workspaces/:id/invitations.
type CreateRequest struct {
	Email     string     `json:"email" binding:"required,email"`
	Role      string     `json:"role"` // optional slug or alias
	ExpiresAt *time.Time `json:"expires_at"`
}

// Handler handles invitation HTTP endpoints.
type Handler struct {
	svc    *Service
	users  UserStore
	logger *zap.Logger
}

// NewHandler creates an invitations handler.
func NewHandler(svc *Service, users UserStore, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, users: users, logger: logger}
}

// Create handles POST /workspaces/:id/invitations. Any prior invitation for
// the same email in this workspace is superseded.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ws := middleware.WorkspaceFromContext(c)
	if ws == nil {
		response.NotFound(c, "workspace not found")
		return
	}

	ref := roles.DefaultRole()
	if req.Role != "" {
		ref = roles.BySlug(req.Role)
	}
	inv, err := h.svc.workspaces.Invite(c.Request.Context(), ws, req.Email, ref, req.ExpiresAt)
	if err != nil {
		h.writeError(c, err, "failed to create invitation")
		return
	}
	response.Created(c, inv)
}

// List handles GET /workspaces/:id/invitations.
func (h *Handler) List(c *gin.Context) {
	ws := middleware.WorkspaceFromContext(c)
	if ws == nil {
		response.NotFound(c, "workspace not found")
		return
	}
	list, err := h.svc.ListByWorkspace(c.Request.Context(), ws)
	if err != nil {
		response.Internal(c, "failed to list invitations")
		return
	}
	response.OK(c, list)
}

// Latest handles GET /workspaces/:id/invitations/latest?email=... and returns
// the most recent live invitation for the address in this workspace.
func (h *Handler) Latest(c *gin.Context) {
	ws := middleware.WorkspaceFromContext(c)
	if ws == nil {
		response.NotFound(c, "workspace not found")
		return
	}
	email := c.Query("email")
	if email == "" {
		response.BadRequest(c, "email query parameter is required")
		return
	}
	inv, err := h.svc.LatestForEmail(c.Request.Context(), ws, email)
	if err != nil {
		h.writeError(c, err, "failed to load invitation")
		return
	}
	response.OK(c, inv)
}

// Get handles GET /invitations/:token.
func (h *Handler) Get(c *gin.Context) {
	inv, err := h.svc.GetByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.writeError(c, err, "failed to load invitation")
		return
	}
	response.OK(c, inv)
}

// Accept handles POST /invitations/:token/accept.
func (h *Handler) Accept(c *gin.Context) {
	inv, err := h.svc.GetByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.writeError(c, err, "failed to load invitation")
		return
	}

	user := h.currentUser(c)
	if user == nil {
		response.Unauthorized(c, "missing user context")
		return
	}
	if err := h.svc.Accept(c.Request.Context(), inv, user); err != nil {
		h.writeError(c, err, "failed to accept invitation")
		return
	}
	response.OK(c, inv)
}

// Decline handles POST /invitations/:token/decline.
func (h *Handler) Decline(c *gin.Context) {
	inv, err := h.svc.GetByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.writeError(c, err, "failed to load invitation")
		return
	}
	if err := h.svc.Decline(c.Request.Context(), inv); err != nil {
		h.writeError(c, err, "failed to decline invitation")
		return
	}
	response.OK(c, inv)
}

// currentUser loads the full user record so acceptance validates against the
// stored email rather than a possibly stale claim.
func (h *Handler) currentUser(c *gin.Context) *models.User {
	claims := middleware.CurrentUser(c)
	if claims == nil {
		return nil
	}
	user, err := h.users.GetByID(c.Request.Context(), claims.ID)
	if err != nil || user == nil {
		return nil
	}
	return user
}

func (h *Handler) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, ErrExpired):
		response.Gone(c, err.Error())
	case errors.Is(err, ErrAlreadyHandled):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrEmailMismatch):
		response.Forbidden(c, err.Error())
	case errors.Is(err, workspaces.ErrInvalidUser):
		response.BadRequest(c, err.Error())
	case errors.Is(err, workspaces.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, roles.ErrRoleNotFound), errors.Is(err, roles.ErrEmptySlug):
		response.BadRequest(c, err.Error())
	default:
		h.logger.Error(fallback, zap.Error(err))
		response.Internal(c, fallback)
	}
}
