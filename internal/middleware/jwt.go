package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/atlas-collab/backend/internal/auth"
	"github.com/atlas-collab/backend/internal/models"
	"github.com/atlas-collab/backend/pkg/response"
)

const (
	// ContextUserID is the key for user ID in gin context.
	ContextUserID = "user_id"
	// ContextUserRole is the key for user role in gin context.
	ContextUserRole = "user_role"
	// ContextUserEmail is the key for user email in gin context.
	ContextUserEmail = "user_email"
	// ContextWorkspace is the key under which ability middleware stores the
	// loaded *models.Workspace for the handler.
	ContextWorkspace = "workspace"
)

// JWT returns a middleware that validates JWT and sets user claims in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserRole, claims.Role)
		c.Set(ContextUserEmail, claims.Email)
		c.Next()
	}
}

// CurrentUser rebuilds the authenticated user from the JWT claims stored in
// context. Returns nil when the request was not authenticated.
func CurrentUser(c *gin.Context) *models.User {
	idVal, ok := c.Get(ContextUserID)
	if !ok {
		return nil
	}
	id, ok := idVal.(uuid.UUID)
	if !ok || id == uuid.Nil {
		return nil
	}
	return &models.User{
		ID:    id,
		Email: c.GetString(ContextUserEmail),
		Role:  models.Role(c.GetString(ContextUserRole)),
	}
}

// WorkspaceFromContext returns the workspace stored by ability middleware,
// or nil when none was loaded.
func WorkspaceFromContext(c *gin.Context) *models.Workspace {
	val, ok := c.Get(ContextWorkspace)
	if !ok {
		return nil
	}
	ws, _ := val.(*models.Workspace)
	return ws
}
