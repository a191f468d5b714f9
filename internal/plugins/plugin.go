// Package plugins manages plugin records and their activation lifecycle.
//
// Plugins move between installed, active, inactive, error and uninstalled.
// Every transition is recorded in an activity log and announced through the
// hook registry so other services can react.
package plugins

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/agentstation/utc"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/lane711/sonicjs/pkg/errors"
)

// Status is the lifecycle state of a plugin.
type Status string

// Plugin statuses.
const (
	StatusInstalled   Status = "installed"
	StatusActive      Status = "active"
	StatusInactive    Status = "inactive"
	StatusError       Status = "error"
	StatusUninstalled Status = "uninstalled"
)

// Plugin is a plugin record.
type Plugin struct {
	ID            string         `json:"id" yaml:"id"`
	Name          string         `json:"name" yaml:"name"`
	DisplayName   string         `json:"displayName" yaml:"display_name"`
	Description   string         `json:"description,omitempty" yaml:"description,omitempty"`
	Version       string         `json:"version" yaml:"version"`
	Author        string         `json:"author" yaml:"author"`
	Category      string         `json:"category" yaml:"category"`
	Icon          string         `json:"icon,omitempty" yaml:"icon,omitempty"`
	Status        Status         `json:"status" yaml:"status"`
	IsCore        bool           `json:"isCore" yaml:"is_core"`
	Permissions   []string       `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	Dependencies  []string       `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Settings      map[string]any `json:"settings" yaml:"settings"`
	ErrorMessage  string         `json:"errorMessage,omitempty" yaml:"error_message,omitempty"`
	DownloadCount int            `json:"downloadCount" yaml:"download_count"`
	Rating        float64        `json:"rating" yaml:"rating"`
	InstalledAt   utc.Time       `json:"installedAt" yaml:"installed_at"`
	ActivatedAt   *utc.Time      `json:"activatedAt,omitempty" yaml:"activated_at,omitempty"`
	LastUpdated   utc.Time       `json:"lastUpdated" yaml:"last_updated"`
}

func (p Plugin) clone() Plugin {
	p.Permissions = slices.Clone(p.Permissions)
	p.Dependencies = slices.Clone(p.Dependencies)
	p.Settings = maps.Clone(p.Settings)
	if p.ActivatedAt != nil {
		at := *p.ActivatedAt
		p.ActivatedAt = &at
	}
	return p
}

// Activity is one entry of a plugin's audit trail.
type Activity struct {
	PluginID string         `json:"pluginId" yaml:"plugin_id"`
	Action   string         `json:"action" yaml:"action"`
	At       utc.Time       `json:"at" yaml:"at"`
	Details  map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
}

// Stats counts plugins by status. Uninstalled plugins are not in Total.
type Stats struct {
	Total       int `json:"total"`
	Active      int `json:"active"`
	Inactive    int `json:"inactive"`
	Installed   int `json:"installed"`
	Errors      int `json:"errors"`
	Uninstalled int `json:"uninstalled"`
}

// FieldError describes one invalid setting.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// SettingsValidator checks settings before they are stored.
type SettingsValidator interface {
	ValidateSettings(ctx context.Context, settings map[string]any) []FieldError
}

// SettingsValidatorFunc adapts a function to SettingsValidator.
type SettingsValidatorFunc func(ctx context.Context, settings map[string]any) []FieldError

// ValidateSettings implements SettingsValidator.
func (f SettingsValidatorFunc) ValidateSettings(ctx context.Context, settings map[string]any) []FieldError {
	return f(ctx, settings)
}

// SettingsError is returned when a validator rejects settings.
type SettingsError struct {
	PluginID string
	Fields   []FieldError
}

// Error implements the error interface
func (e *SettingsError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Field, f.Message)
	}
	return fmt.Sprintf("Invalid settings for plugin %s: %s", e.PluginID, strings.Join(parts, "; "))
}

// Details returns the rejected fields.
func (e *SettingsError) Details() any {
	return e.Fields
}

// Is implements errors.Is support
func (e *SettingsError) Is(target error) bool {
	return target == errors.ErrInvalidInput
}

// DisplayName derives a human readable name from a plugin id, so
// "database-tools" becomes "Database Tools".
func DisplayName(id string) string {
	words := strings.FieldsFunc(id, func(r rune) bool {
		return r == '-' || r == '_' || r == '.' || r == ' '
	})
	return cases.Title(language.English).String(strings.Join(words, " "))
}

// CorePlugins returns the plugins every installation carries. They are
// seeded active and can never be deactivated or uninstalled.
func CorePlugins() []Plugin {
	core := func(id, description, category string, permissions ...string) Plugin {
		return Plugin{
			ID:          id,
			Name:        id,
			Description: description,
			Version:     "1.0.0",
			Author:      "SonicJS Team",
			Category:    category,
			IsCore:      true,
			Permissions: permissions,
		}
	}
	return []Plugin{
		core("auth", "Core authentication and user management system", "security", "manage:users", "manage:roles", "manage:permissions"),
		core("media", "Core media upload and management system", "media", "manage:media", "upload:files"),
		core("analytics", "Cache and content analytics", "analytics", "view:analytics"),
		core("cache", "Namespaced caching with statistics and invalidation", "performance", "manage:cache", "view:stats"),
		core("database-tools", "Database maintenance utilities", "system", "manage:database"),
	}
}
