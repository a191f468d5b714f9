package plugins

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/agentstation/utc"
	"github.com/rs/zerolog"

	"github.com/lane711/sonicjs/internal/hooks"
	"github.com/lane711/sonicjs/pkg/constants"
	"github.com/lane711/sonicjs/pkg/errors"
)

// maxActivity bounds the retained audit trail across all plugins.
const maxActivity = 1000

// State is what a Store persists.
type State struct {
	Plugins  []Plugin   `json:"plugins" yaml:"plugins"`
	Activity []Activity `json:"activity" yaml:"activity"`
}

// Store persists plugin state between runs.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithStore persists every change to s.
func WithStore(s Store) Option {
	return func(m *Manager) { m.store = s }
}

// WithLogger sets the manager logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithClock overrides the time source.
func WithClock(now func() utc.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager owns plugin records and drives their lifecycle.
type Manager struct {
	mu         sync.Mutex
	plugins    map[string]*Plugin
	activity   []Activity
	validators map[string]SettingsValidator

	registry *hooks.Registry
	store    Store
	logger   *zerolog.Logger
	now      func() utc.Time
}

// pending is an event emitted once the manager lock is released.
type pending struct {
	name    string
	payload hooks.PluginPayload
}

// NewManager creates a manager that announces transitions on registry.
func NewManager(registry *hooks.Registry, opts ...Option) *Manager {
	nop := zerolog.Nop()
	m := &Manager{
		plugins:    make(map[string]*Plugin),
		validators: make(map[string]SettingsValidator),
		registry:   registry,
		logger:     &nop,
		now:        utc.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load replaces in-memory state with what the store holds.
func (m *Manager) Load(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	state, err := m.store.Load(ctx)
	if err != nil {
		return errors.WrapResource("load", "plugins", "", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.plugins = make(map[string]*Plugin, len(state.Plugins))
	for _, p := range state.Plugins {
		p := p.clone()
		if p.Settings == nil {
			p.Settings = map[string]any{}
		}
		m.plugins[p.ID] = &p
	}
	m.activity = slices.Clone(state.Activity)
	m.logger.Debug().Int("plugins", len(m.plugins)).Msg("Plugin state loaded")
	return nil
}

// EnsureCorePlugins installs and activates any missing core plugin.
// Existing core records are left alone apart from being reactivated.
func (m *Manager) EnsureCorePlugins(ctx context.Context) error {
	for _, core := range CorePlugins() {
		existing, err := m.Get(core.ID)
		switch {
		case errors.IsNotFound(err) || (err == nil && existing.Status == StatusUninstalled):
			if _, err := m.Install(ctx, core); err != nil {
				return err
			}
		case err != nil:
			return err
		}
		if _, err := m.Activate(ctx, core.ID); err != nil {
			return err
		}
	}
	return nil
}

// RegisterValidator installs a settings validator for plugin id.
func (m *Manager) RegisterValidator(id string, v SettingsValidator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validators[id] = v
}

// Install creates a plugin record in the installed state. A plugin that was
// uninstalled earlier may be installed again.
func (m *Manager) Install(ctx context.Context, p Plugin) (Plugin, error) {
	p = p.clone()
	if p.ID == "" {
		p.ID = p.Name
	}
	if p.ID == "" {
		return Plugin{}, errors.NewValidationError("id", "", "plugin id or name is required")
	}
	if strings.ContainsAny(p.ID, " /") {
		return Plugin{}, errors.NewValidationError("id", p.ID, "plugin id must not contain spaces or slashes")
	}

	m.mu.Lock()
	if existing, ok := m.plugins[p.ID]; ok && existing.Status != StatusUninstalled {
		m.mu.Unlock()
		return Plugin{}, errors.NewAlreadyExistsError("plugin", p.ID)
	}

	now := m.now()
	if p.Name == "" {
		p.Name = p.ID
	}
	if p.DisplayName == "" {
		p.DisplayName = DisplayName(p.ID)
	}
	if p.Version == "" {
		p.Version = "1.0.0"
	}
	if p.Author == "" {
		p.Author = "Unknown"
	}
	if p.Category == "" {
		p.Category = "utilities"
	}
	if p.Settings == nil {
		p.Settings = map[string]any{}
	}
	p.Status = StatusInstalled
	p.ErrorMessage = ""
	p.ActivatedAt = nil
	p.InstalledAt = now
	p.LastUpdated = now

	m.plugins[p.ID] = &p
	m.record(p.ID, "installed", map[string]any{"version": p.Version})
	err := m.persist(ctx)
	out := p.clone()
	m.mu.Unlock()

	m.logger.Info().Str("plugin_id", p.ID).Str("version", p.Version).Msg("Plugin installed")
	m.emit(ctx, pending{hooks.PluginInstalled, hooks.PluginPayload{ID: p.ID, Name: p.Name}})
	return out, err
}

// Activate moves a plugin to active. Every dependency must already be
// active; otherwise the plugin is put in the error state. Activating an
// active plugin succeeds without emitting anything.
func (m *Manager) Activate(ctx context.Context, id string) (Plugin, error) {
	m.mu.Lock()
	p, err := m.lookup(id)
	if err != nil {
		m.mu.Unlock()
		return Plugin{}, err
	}

	switch p.Status {
	case StatusActive:
		out := p.clone()
		m.mu.Unlock()
		return out, nil
	case StatusUninstalled:
		m.mu.Unlock()
		return Plugin{}, errors.NewTransitionError(id, string(p.Status), "activate")
	}

	for _, dep := range p.Dependencies {
		if d, ok := m.plugins[dep]; !ok || d.Status != StatusActive {
			derr := errors.NewDependencyNotActiveError(id, dep)
			ev := m.fail(p, derr.Error())
			perr := m.persist(ctx)
			m.mu.Unlock()

			m.logger.Warn().Str("plugin_id", id).Str("dependency", dep).Msg("Plugin activation blocked")
			m.emit(ctx, ev)
			if perr != nil {
				m.logger.Error().Err(perr).Str("plugin_id", id).Msg("Failed to persist plugin state")
			}
			return Plugin{}, derr
		}
	}

	now := m.now()
	p.Status = StatusActive
	p.ErrorMessage = ""
	p.ActivatedAt = &now
	p.LastUpdated = now
	m.record(id, "activated", nil)
	err = m.persist(ctx)
	out := p.clone()
	m.mu.Unlock()

	m.logger.Info().Str("plugin_id", id).Msg("Plugin activated")
	m.emit(ctx, pending{hooks.PluginActivated, hooks.PluginPayload{ID: id, Name: out.Name}})
	return out, err
}

// Deactivate moves an active plugin to inactive and removes every hook it
// registered. Core plugins and plugins other active plugins depend on
// cannot be deactivated. Deactivating a plugin that is not active is a no-op.
func (m *Manager) Deactivate(ctx context.Context, id string) (Plugin, error) {
	m.mu.Lock()
	p, err := m.lookup(id)
	if err != nil {
		m.mu.Unlock()
		return Plugin{}, err
	}

	events, err := m.deactivate(p)
	if err != nil {
		m.mu.Unlock()
		return Plugin{}, err
	}
	if len(events) > 0 {
		err = m.persist(ctx)
	}
	out := p.clone()
	m.mu.Unlock()

	m.emit(ctx, events...)
	return out, err
}

// deactivate must be called with mu held. It returns no events when p is
// already not active.
func (m *Manager) deactivate(p *Plugin) ([]pending, error) {
	if p.IsCore {
		return nil, errors.NewCorePluginError(p.ID, "deactivate")
	}
	switch p.Status {
	case StatusActive:
	case StatusUninstalled:
		return nil, errors.NewTransitionError(p.ID, string(p.Status), "deactivate")
	default:
		return nil, nil
	}

	if dependents := m.activeDependents(p.ID); len(dependents) > 0 {
		return nil, errors.NewDependentsActiveError(p.ID, dependents)
	}

	p.Status = StatusInactive
	p.ActivatedAt = nil
	p.LastUpdated = m.now()
	m.record(p.ID, "deactivated", nil)

	if m.registry != nil {
		if n := m.registry.RemoveOwner(p.ID); n > 0 {
			m.logger.Debug().Str("plugin_id", p.ID).Int("hooks", n).Msg("Plugin hooks removed")
		}
	}
	m.logger.Info().Str("plugin_id", p.ID).Msg("Plugin deactivated")
	return []pending{{hooks.PluginDeactivated, hooks.PluginPayload{ID: p.ID, Name: p.Name}}}, nil
}

func (m *Manager) activeDependents(id string) []string {
	var out []string
	for _, other := range m.plugins {
		if other.Status == StatusActive && slices.Contains(other.Dependencies, id) {
			out = append(out, other.ID)
		}
	}
	sort.Strings(out)
	return out
}

// Uninstall marks a plugin uninstalled, deactivating it first when active.
// The record and its activity are kept for auditing.
func (m *Manager) Uninstall(ctx context.Context, id string) error {
	m.mu.Lock()
	p, err := m.lookup(id)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if p.IsCore {
		m.mu.Unlock()
		return errors.NewCorePluginError(id, "uninstall")
	}
	if p.Status == StatusUninstalled {
		m.mu.Unlock()
		return errors.NewTransitionError(id, string(p.Status), "uninstall")
	}

	events, err := m.deactivate(p)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	p.Status = StatusUninstalled
	p.ActivatedAt = nil
	p.LastUpdated = m.now()
	m.record(id, "uninstalled", map[string]any{"name": p.Name})
	events = append(events, pending{hooks.PluginUninstalled, hooks.PluginPayload{ID: id, Name: p.Name}})
	err = m.persist(ctx)
	m.mu.Unlock()

	m.logger.Info().Str("plugin_id", id).Msg("Plugin uninstalled")
	m.emit(ctx, events...)
	return err
}

// UpdateSettings merges settings into the plugin's settings after running
// its validator, if any. The plugin status is unchanged.
func (m *Manager) UpdateSettings(ctx context.Context, id string, settings map[string]any) (Plugin, error) {
	m.mu.Lock()
	p, err := m.lookup(id)
	if err != nil {
		m.mu.Unlock()
		return Plugin{}, err
	}
	if p.Status == StatusUninstalled {
		m.mu.Unlock()
		return Plugin{}, errors.NewTransitionError(id, string(p.Status), "configure")
	}
	validator := m.validators[id]
	m.mu.Unlock()

	if validator != nil {
		if fields := validator.ValidateSettings(ctx, settings); len(fields) > 0 {
			return Plugin{}, &SettingsError{PluginID: id, Fields: fields}
		}
	}

	m.mu.Lock()
	p, err = m.lookup(id)
	if err != nil {
		m.mu.Unlock()
		return Plugin{}, err
	}
	if p.Settings == nil {
		p.Settings = map[string]any{}
	}
	maps.Copy(p.Settings, settings)
	p.LastUpdated = m.now()
	m.record(id, "settings_updated", nil)
	err = m.persist(ctx)
	out := p.clone()
	m.mu.Unlock()

	m.emit(ctx, pending{hooks.PluginSettingsUpdated, hooks.PluginPayload{ID: id, Name: out.Name, Settings: maps.Clone(out.Settings)}})
	return out, err
}

// SetError puts a plugin in the error state with msg.
func (m *Manager) SetError(ctx context.Context, id, msg string) error {
	m.mu.Lock()
	p, err := m.lookup(id)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	ev := m.fail(p, msg)
	err = m.persist(ctx)
	m.mu.Unlock()

	m.emit(ctx, ev)
	return err
}

// fail must be called with mu held.
func (m *Manager) fail(p *Plugin, msg string) pending {
	p.Status = StatusError
	p.ErrorMessage = msg
	p.ActivatedAt = nil
	p.LastUpdated = m.now()
	m.record(p.ID, "error", map[string]any{"error": msg})
	return pending{hooks.PluginError, hooks.PluginPayload{ID: p.ID, Name: p.Name, Error: msg}}
}

// Get returns a copy of a plugin record.
func (m *Manager) Get(id string) (Plugin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.lookup(id)
	if err != nil {
		return Plugin{}, err
	}
	return p.clone(), nil
}

// ListFilter narrows List.
type ListFilter struct {
	Status             Status
	Category           string
	IncludeUninstalled bool
}

// List returns plugins with core plugins first, then by display name.
func (m *Manager) List(f ListFilter) []Plugin {
	m.mu.Lock()
	out := make([]Plugin, 0, len(m.plugins))
	for _, p := range m.plugins {
		if p.Status == StatusUninstalled && !f.IncludeUninstalled && f.Status != StatusUninstalled {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		out = append(out, p.clone())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].IsCore != out[j].IsCore {
			return out[i].IsCore
		}
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Stats counts plugins by status.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s Stats
	for _, p := range m.plugins {
		switch p.Status {
		case StatusActive:
			s.Active++
		case StatusInactive:
			s.Inactive++
		case StatusInstalled:
			s.Installed++
		case StatusError:
			s.Errors++
		case StatusUninstalled:
			s.Uninstalled++
			continue
		}
		s.Total++
	}
	return s
}

// Activity returns the newest entries of a plugin's audit trail.
func (m *Manager) Activity(id string, limit int) ([]Activity, error) {
	if limit <= 0 {
		limit = constants.DefaultActivityLimit
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.lookup(id); err != nil {
		return nil, err
	}

	var out []Activity
	for i := len(m.activity) - 1; i >= 0 && len(out) < limit; i-- {
		if a := m.activity[i]; a.PluginID == id {
			a.Details = maps.Clone(a.Details)
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Manager) lookup(id string) (*Plugin, error) {
	p, ok := m.plugins[id]
	if !ok {
		return nil, errors.NewNotFoundError("plugin", id)
	}
	return p, nil
}

// record must be called with mu held.
func (m *Manager) record(id, action string, details map[string]any) {
	m.activity = append(m.activity, Activity{PluginID: id, Action: action, At: m.now(), Details: details})
	if over := len(m.activity) - maxActivity; over > 0 {
		m.activity = slices.Clone(m.activity[over:])
	}
}

// persist must be called with mu held.
func (m *Manager) persist(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	state := State{
		Plugins:  make([]Plugin, 0, len(m.plugins)),
		Activity: slices.Clone(m.activity),
	}
	for _, p := range m.plugins {
		state.Plugins = append(state.Plugins, p.clone())
	}
	sort.Slice(state.Plugins, func(i, j int) bool { return state.Plugins[i].ID < state.Plugins[j].ID })

	if err := m.store.Save(ctx, state); err != nil {
		m.logger.Error().Err(err).Msg("Failed to persist plugin state")
		return errors.WrapResource("save", "plugins", "", err)
	}
	return nil
}

func (m *Manager) emit(ctx context.Context, events ...pending) {
	if m.registry == nil {
		return
	}
	for _, ev := range events {
		m.registry.Emit(ctx, ev.name, ev.payload)
	}
}
