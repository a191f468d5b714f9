package hooks

// Well-known event names.
const (
	PluginInstalled       = "plugin:installed"
	PluginActivated       = "plugin:activated"
	PluginDeactivated     = "plugin:deactivated"
	PluginUninstalled     = "plugin:uninstalled"
	PluginError           = "plugin:error"
	PluginSettingsUpdated = "plugin:settings_updated"

	ContentCreated   = "content:created"
	ContentUpdated   = "content:updated"
	ContentDeleted   = "content:deleted"
	ContentPublished = "content:published"

	CollectionCreated = "collection:created"
	CollectionUpdated = "collection:updated"
	CollectionDeleted = "collection:deleted"

	MediaUploaded = "media:uploaded"
	MediaUpdated  = "media:updated"
	MediaDeleted  = "media:deleted"

	UserUpdated = "user:updated"
	UserDeleted = "user:deleted"
	AuthLogout  = "auth:logout"

	ConfigUpdated = "config:updated"
)

// PluginPayload is emitted with plugin lifecycle events.
type PluginPayload struct {
	ID       string         `json:"id"`
	Name     string         `json:"name,omitempty"`
	Error    string         `json:"error,omitempty"`
	Settings map[string]any `json:"settings,omitempty"`
}

// EntityPayload is emitted with content, collection, media and user events.
type EntityPayload struct {
	ID         string `json:"id"`
	Type       string `json:"type,omitempty"`
	Collection string `json:"collection,omitempty"`
}
