package authz

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/atlas-collab/backend/internal/middleware"
	"github.com/atlas-collab/backend/internal/models"
	"github.com/atlas-collab/backend/pkg/response"
)

// WorkspaceLoader loads a workspace by external identifier.
type WorkspaceLoader interface {
	GetByUUID(ctx context.Context, id uuid.UUID) (*models.Workspace, error)
}

// RequireAbility returns a middleware that loads the workspace from the :id
// route param, evaluates the ability for the authenticated user and stores
// the workspace in the request context for the handler.
func RequireAbility(gate *Gate, loader WorkspaceLoader, ability string) gin.HandlerFunc {
	return func(c *gin.Context) {
		wsID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			response.BadRequest(c, "invalid workspace id")
			c.Abort()
			return
		}
		ws, err := loader.GetByUUID(c.Request.Context(), wsID)
		if err != nil || ws == nil {
			response.NotFound(c, "workspace not found")
			c.Abort()
			return
		}

		user := middleware.CurrentUser(c)
		if user == nil {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		if !gate.Allows(c.Request.Context(), user, ws, ability) {
			response.Forbidden(c, "not authorized for this workspace")
			c.Abort()
			return
		}

		c.Set(middleware.ContextWorkspace, ws)
		c.Next()
	}
}
