// Package config is the on-disk/CLI configuration surface: a flat
// struct tagged for both JSON persistence and viper's mapstructure
// binding, with secrets excluded from the JSON side and a Validate
// step that fills defaults and normalizes input before use.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/scenehub/projectsync/internal/utils"
)

var (
	home, _            = os.UserHomeDir()
	DefaultConfigPath  = filepath.Join(home, ".projectsync", "config.json")
	DefaultWorkspaceDir = filepath.Join(home, "ProjectSync")
	DefaultServerURL   = "https://api.projectsync.dev"
	DefaultLogFilePath = filepath.Join(home, ".projectsync", "logs", "projectsync.log")
)

var (
	ErrInvalidURL       = errors.New("invalid url")
	ErrMissingProjectID = errors.New("missing project id")
	ErrTokenExpired     = errors.New("access token expired")
)

// Config is the full set of knobs a linked Project+Mirror pair needs.
type Config struct {
	Path string `json:"-" mapstructure:"config_path"`

	Email       string `json:"email" mapstructure:"email"`
	ServerURL   string `json:"server_url" mapstructure:"server_url"`
	WorkspaceDir string `json:"workspace_dir" mapstructure:"workspace_dir"`

	ProjectID string `json:"project_id" mapstructure:"project_id"`
	BranchID  string `json:"branch_id" mapstructure:"branch_id"`

	RefreshToken string `json:"refresh_token,omitempty" mapstructure:"refresh_token,omitempty"`
	AccessToken  string `json:"-" mapstructure:"access_token"` // never persisted
}

// Validate fills in defaults, resolves the workspace path, and checks
// that the fields required to link a project are present.
func (c *Config) Validate() error {
	if c.Path == "" {
		c.Path = DefaultConfigPath
	}
	if c.ServerURL == "" {
		c.ServerURL = DefaultServerURL
	}
	if c.WorkspaceDir == "" {
		c.WorkspaceDir = DefaultWorkspaceDir
	}

	var err error
	c.WorkspaceDir, err = utils.ResolvePath(c.WorkspaceDir)
	if err != nil {
		return err
	}

	c.Email = strings.ToLower(c.Email)
	if c.Email != "" {
		if err := utils.ValidateEmail(c.Email); err != nil {
			return fmt.Errorf("email: %w", err)
		}
	}
	if err := validateURL(c.ServerURL); err != nil {
		return fmt.Errorf("server url: %w", err)
	}
	if c.ProjectID == "" {
		return ErrMissingProjectID
	}
	if c.AccessToken != "" {
		if err := checkTokenExpiry(c.AccessToken); err != nil {
			return err
		}
	}
	return nil
}

// checkTokenExpiry parses the access token's claims without verifying
// its signature — the client has no way to check server signatures, it
// only wants to fail fast on an access token that has already expired
// rather than let the realtime handshake reject it later.
func checkTokenExpiry(token string) error {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return fmt.Errorf("access token: %w", err)
	}
	expired, err := claims.GetExpirationTime()
	if err == nil && expired != nil && expired.Before(time.Now()) {
		return ErrTokenExpired
	}
	return nil
}

// LogValue redacts the access/refresh tokens so a logged Config never
// leaks a usable credential.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("email", c.Email),
		slog.String("server_url", c.ServerURL),
		slog.String("workspace_dir", c.WorkspaceDir),
		slog.String("project_id", c.ProjectID),
		slog.String("branch_id", c.BranchID),
		slog.String("refresh_token", utils.MaskSecret(c.RefreshToken)),
		slog.String("access_token", utils.MaskSecret(c.AccessToken)),
	)
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}

// Save persists the JSON-visible fields to c.Path.
func (c *Config) Save() error {
	if err := utils.EnsureParent(c.Path); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.Path, data, 0o644)
}

// LoadFromFile reads and parses a config file from disk.
func LoadFromFile(path string) (*Config, error) {
	path, err := utils.ResolvePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Path = path
	return &cfg, nil
}
