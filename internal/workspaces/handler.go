package workspaces

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atlas-collab/backend/internal/middleware"
	"github.com/atlas-collab/backend/internal/models"
	"github.com/atlas-collab/backend/internal/roles"
	"github.com/atlas-collab/backend/pkg/response"
)

// ActivityStore reads the audit trail for a workspace.
type ActivityStore interface {
	ListByWorkspace(ctx context.Context, workspaceUUID uuid.UUID, limit int) ([]models.AuditEntry, error)
}

// CreateRequest is the body for POST /workspaces.
type CreateRequest struct {
	Name string `json:"name" binding:"required"`
}

// MemberRequest is the body for POST /workspaces/:id/members.
type MemberRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
	Role   string    `json:"role"` // optional slug or alias, defaults to the configured role
}

// RoleUpdateRequest is the body for PUT /workspaces/:id/members/:userID.
type RoleUpdateRequest struct {
	Role string `json:"role" binding:"required"`
}

// TransferRequest is the body for POST /workspaces/:id/transfer-ownership.
type TransferRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

// AssignmentRequest is the body for attach/detach of workspace resources.
type AssignmentRequest struct {
	ResourceType string `json:"resource_type" binding:"required"`
	ResourceID   string `json:"resource_id" binding:"required"`
}

// MemberResponse is a member listing entry with the resolved primary role.
type MemberResponse struct {
	models.Member
	Role string `json:"role,omitempty"`
}

// Handler handles workspace HTTP endpoints.
type Handler struct {
	svc      *Service
	users    UserStore
	activity ActivityStore
	logger   *zap.Logger
}

// NewHandler creates a workspaces handler.
func NewHandler(svc *Service, users UserStore, activity ActivityStore, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, users: users, activity: activity, logger: logger}
}

// Create handles POST /workspaces. The creator becomes owner and first member.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	user := middleware.CurrentUser(c)
	if user == nil {
		response.Unauthorized(c, "missing user context")
		return
	}

	ws, err := h.svc.Create(c.Request.Context(), req.Name, user)
	if err != nil {
		h.writeError(c, err, "failed to create workspace")
		return
	}
	if _, err := h.svc.AddMember(c.Request.Context(), ws, user, roles.DefaultRole()); err != nil {
		h.writeError(c, err, "failed to add owner membership")
		return
	}
	response.Created(c, ws)
}

// Get handles GET /workspaces/:id. Ability middleware has already loaded and
// authorized the workspace.
func (h *Handler) Get(c *gin.Context) {
	ws := middleware.WorkspaceFromContext(c)
	if ws == nil {
		response.NotFound(c, "workspace not found")
		return
	}
	response.OK(c, ws)
}

// ListMine handles GET /workspaces: workspaces the user is an active member of.
func (h *Handler) ListMine(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		response.Unauthorized(c, "missing user context")
		return
	}
	list, err := h.svc.ListForUser(c.Request.Context(), user.ID)
	if err != nil {
		response.Internal(c, "failed to list workspaces")
		return
	}
	response.OK(c, list)
}

// ListOwned handles GET /workspaces/owned.
func (h *Handler) ListOwned(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		response.Unauthorized(c, "missing user context")
		return
	}
	list, err := h.svc.ListOwnedBy(c.Request.Context(), user.ID)
	if err != nil {
		response.Internal(c, "failed to list workspaces")
		return
	}
	response.OK(c, list)
}

// ListMembers handles GET /workspaces/:id/members, each entry annotated with
// the member's primary role.
func (h *Handler) ListMembers(c *gin.Context) {
	ws := middleware.WorkspaceFromContext(c)
	members, err := h.svc.ListMembers(c.Request.Context(), ws)
	if err != nil {
		response.Internal(c, "failed to list members")
		return
	}
	out := make([]MemberResponse, 0, len(members))
	for _, m := range members {
		entry := MemberResponse{Member: m}
		if role, err := h.svc.MemberRole(c.Request.Context(), ws, m.UserID); err == nil && role != nil {
			entry.Role = role.Slug
		}
		out = append(out, entry)
	}
	response.OK(c, out)
}

// AddMember handles POST /workspaces/:id/members.
func (h *Handler) AddMember(c *gin.Context) {
	var req MemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ws := middleware.WorkspaceFromContext(c)

	user, err := h.users.GetByID(c.Request.Context(), req.UserID)
	if err != nil || user == nil {
		response.NotFound(c, "user not found")
		return
	}

	ref := roles.DefaultRole()
	if req.Role != "" {
		ref = roles.BySlug(req.Role)
	}
	role, err := h.svc.AddMember(c.Request.Context(), ws, user, ref)
	if err != nil {
		h.writeError(c, err, "failed to add member")
		return
	}
	response.Created(c, gin.H{"user_id": user.ID, "role": role.Slug})
}

// UpdateMemberRole handles PUT /workspaces/:id/members/:userID.
func (h *Handler) UpdateMemberRole(c *gin.Context) {
	var req RoleUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ws := middleware.WorkspaceFromContext(c)

	user, ok := h.memberParam(c)
	if !ok {
		return
	}
	role, err := h.svc.UpdateMemberRole(c.Request.Context(), ws, user, roles.BySlug(req.Role))
	if err != nil {
		h.writeError(c, err, "failed to update member role")
		return
	}
	response.OK(c, gin.H{"user_id": user.ID, "role": role.Slug})
}

// RemoveMember handles DELETE /workspaces/:id/members/:userID.
func (h *Handler) RemoveMember(c *gin.Context) {
	ws := middleware.WorkspaceFromContext(c)
	user, ok := h.memberParam(c)
	if !ok {
		return
	}
	if err := h.svc.RemoveMember(c.Request.Context(), ws, user); err != nil {
		h.writeError(c, err, "failed to remove member")
		return
	}
	response.NoContent(c)
}

// TransferOwnership handles POST /workspaces/:id/transfer-ownership.
func (h *Handler) TransferOwnership(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ws := middleware.WorkspaceFromContext(c)

	user, err := h.users.GetByID(c.Request.Context(), req.UserID)
	if err != nil || user == nil {
		response.NotFound(c, "user not found")
		return
	}
	if err := h.svc.TransferOwnership(c.Request.Context(), ws, user); err != nil {
		h.writeError(c, err, "failed to transfer ownership")
		return
	}
	response.OK(c, ws)
}

// Attach handles POST /workspaces/:id/assignments.
func (h *Handler) Attach(c *gin.Context) {
	var req AssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ws := middleware.WorkspaceFromContext(c)
	a, err := h.svc.AssignTo(c.Request.Context(), ws, req.ResourceType, req.ResourceID)
	if err != nil {
		h.writeError(c, err, "failed to attach resource")
		return
	}
	response.Created(c, a)
}

// Detach handles DELETE /workspaces/:id/assignments.
func (h *Handler) Detach(c *gin.Context) {
	var req AssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ws := middleware.WorkspaceFromContext(c)
	if err := h.svc.DetachFrom(c.Request.Context(), ws, req.ResourceType, req.ResourceID); err != nil {
		h.writeError(c, err, "failed to detach resource")
		return
	}
	response.NoContent(c)
}

// ListAssignments handles GET /workspaces/:id/assignments.
func (h *Handler) ListAssignments(c *gin.Context) {
	ws := middleware.WorkspaceFromContext(c)
	list, err := h.svc.ListAssignments(c.Request.Context(), ws)
	if err != nil {
		response.Internal(c, "failed to list assignments")
		return
	}
	response.OK(c, list)
}

// Activity handles GET /workspaces/:id/activity: the recorded event trail.
func (h *Handler) Activity(c *gin.Context) {
	ws := middleware.WorkspaceFromContext(c)
	entries, err := h.activity.ListByWorkspace(c.Request.Context(), ws.UUID, 100)
	if err != nil {
		response.Internal(c, "failed to list activity")
		return
	}
	response.OK(c, entries)
}

func (h *Handler) memberParam(c *gin.Context) (*models.User, bool) {
	userID, err := uuid.Parse(c.Param("userID"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return nil, false
	}
	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil || user == nil {
		response.NotFound(c, "user not found")
		return nil, false
	}
	return user, true
}

func (h *Handler) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrInvalidUser):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, roles.ErrRoleNotFound), errors.Is(err, roles.ErrEmptySlug):
		response.BadRequest(c, err.Error())
	default:
		h.logger.Error(fallback, zap.Error(err))
		response.Internal(c, fallback)
	}
}
