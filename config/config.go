package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// ErrInvalid indicates the loaded configuration violates a structural
// requirement of the workspace layer.
var ErrInvalid = errors.New("invalid workspaces configuration")

// Config holds application configuration loaded from environment.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Workspaces WorkspacesConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/collab?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// RoleDefinition describes a role that may be auto-created by slug.
type RoleDefinition struct {
	Name        string
	Description string
}

// AbilityRule maps a workspace ability to the roles or permissions that grant
// it. A single "*" entry in Roles or Permissions acts as a wildcard. By
// default every rule requires active membership and lets the workspace owner
// through outright; the two flags opt out of those defaults, so the zero
// value of either flag is the default behavior.
type AbilityRule struct {
	Roles       []string
	Permissions []string
	// AllowNonMembers lifts the membership requirement for this ability.
	AllowNonMembers bool
	// SkipOwnerBypass withholds the automatic grant the workspace owner gets.
	SkipOwnerBypass bool
}

// WorkspacesConfig holds the workspace role catalog, ability table and
// invitation settings. Treated as immutable after Load.
type WorkspacesConfig struct {
	// RoleScope partitions the shared role catalog so slugs are unique within
	// this context rather than globally. Empty disables scoping.
	RoleScope string

	DefaultRoleSlug       string
	OwnerRoleSlug         string // empty disables implicit owner role assignment
	OwnerFallbackRoleSlug string

	// RoleAliases maps alternative references to canonical slugs. Keys match
	// case-insensitively.
	RoleAliases map[string]string

	// AutoCreateRoles lists roles materialized on first use, keyed by slug.
	AutoCreateRoles map[string]RoleDefinition

	// Abilities maps ability names to their grant rules. An ability absent
	// from this table always denies.
	Abilities map[string]AbilityRule

	// InvitationExpiresAfter is the invitation lifetime in minutes. Zero or
	// negative disables expiration.
	InvitationExpiresAfter int

	// ObjectPermissions scopes role assignments to individual workspaces via
	// a type+id pivot. When disabled, assignments are catalog-global and
	// member-role queries are limited to the managed slug set.
	ObjectPermissions bool
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// ManagedRoleSlugs returns every slug the workspace layer manages: the
// default, owner and fallback slugs plus the auto-create catalog.
func (w WorkspacesConfig) ManagedRoleSlugs() []string {
	seen := make(map[string]struct{})
	var slugs []string
	add := func(slug string) {
		if slug == "" {
			return
		}
		if _, ok := seen[slug]; ok {
			return
		}
		seen[slug] = struct{}{}
		slugs = append(slugs, slug)
	}
	add(w.DefaultRoleSlug)
	add(w.OwnerRoleSlug)
	add(w.OwnerFallbackRoleSlug)
	for slug := range w.AutoCreateRoles {
		add(slug)
	}
	return slugs
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	jwtExpire, _ := strconv.Atoi(getEnv("JWT_EXPIRE_HOURS", "24"))

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", "postgres://localhost:5432/collab?sslmode=disable"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "collab"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: jwtExpire,
		},
		Workspaces: DefaultWorkspaces(),
	}

	ws := &cfg.Workspaces
	ws.RoleScope = getEnv("WORKSPACE_ROLE_SCOPE", ws.RoleScope)
	ws.DefaultRoleSlug = getEnv("WORKSPACE_DEFAULT_ROLE", ws.DefaultRoleSlug)
	ws.OwnerRoleSlug = getEnv("WORKSPACE_OWNER_ROLE", ws.OwnerRoleSlug)
	ws.OwnerFallbackRoleSlug = getEnv("WORKSPACE_OWNER_FALLBACK_ROLE", ws.OwnerFallbackRoleSlug)
	ws.InvitationExpiresAfter = getEnvInt("WORKSPACE_INVITE_EXPIRES_MINUTES", ws.InvitationExpiresAfter)
	ws.ObjectPermissions = getEnvBool("WORKSPACE_OBJECT_PERMISSIONS", ws.ObjectPermissions)

	if err := ws.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the structural requirements of the workspace configuration:
// a default role must exist and alias targets must be non-empty.
func (w WorkspacesConfig) Validate() error {
	if strings.TrimSpace(w.DefaultRoleSlug) == "" {
		return fmt.Errorf("default role slug is required: %w", ErrInvalid)
	}
	for alias, target := range w.RoleAliases {
		if strings.TrimSpace(target) == "" {
			return fmt.Errorf("alias %q has an empty target: %w", alias, ErrInvalid)
		}
	}
	for name := range w.Abilities {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("ability with empty name: %w", ErrInvalid)
		}
	}
	return nil
}

// DefaultWorkspaces returns the built-in workspace role catalog and ability
// table. Scalar fields may be overridden from the environment by Load.
func DefaultWorkspaces() WorkspacesConfig {
	return WorkspacesConfig{
		RoleScope:             "workspace",
		DefaultRoleSlug:       "workspace-member",
		OwnerRoleSlug:         "workspace-owner",
		OwnerFallbackRoleSlug: "workspace-member",
		RoleAliases: map[string]string{
			"owner":   "workspace-owner",
			"member":  "workspace-member",
			"default": "workspace-member",
		},
		AutoCreateRoles: map[string]RoleDefinition{
			"workspace-owner": {
				Name:        "Workspace Owner",
				Description: "Full control over workspace membership and settings.",
			},
			"workspace-member": {
				Name:        "Workspace Member",
				Description: "Standard workspace member with limited privileges.",
			},
			"workspace-editor": {
				Name:        "Workspace Editor",
				Description: "Can edit workspace content and resources.",
			},
			"workspace-viewer": {
				Name:        "Workspace Viewer",
				Description: "Read-only access to workspace content.",
			},
			"workspace-contributor": {
				Name:        "Workspace Contributor",
				Description: "Can contribute content and collaborate within the workspace.",
			},
		},
		Abilities: map[string]AbilityRule{
			"view":               {Roles: []string{"*"}},
			"manage-members":     {Roles: []string{"workspace-owner"}},
			"manage-invitations": {Roles: []string{"workspace-owner"}},
			"transfer-ownership": {Roles: []string{"workspace-owner"}},
		},
		InvitationExpiresAfter: 10080, // 7 days
		ObjectPermissions:      true,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}
