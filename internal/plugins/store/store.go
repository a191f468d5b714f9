// Package store provides persistence backends for the plugin manager.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/goccy/go-yaml"

	"github.com/lane711/sonicjs/internal/plugins"
	"github.com/lane711/sonicjs/pkg/constants"
	"github.com/lane711/sonicjs/pkg/errors"
)

// Memory keeps plugin state in process. Useful for tests and ephemeral runs.
type Memory struct {
	mu    sync.Mutex
	state plugins.State
	saves int
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Load implements plugins.Store.
func (m *Memory) Load(_ context.Context) (plugins.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return plugins.State{
		Plugins:  slices.Clone(m.state.Plugins),
		Activity: slices.Clone(m.state.Activity),
	}, nil
}

// Save implements plugins.Store.
func (m *Memory) Save(_ context.Context, state plugins.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = plugins.State{
		Plugins:  slices.Clone(state.Plugins),
		Activity: slices.Clone(state.Activity),
	}
	m.saves++
	return nil
}

// Saves returns how many times Save was called.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// File keeps plugin state in a YAML file, replaced atomically on save.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile returns a store backed by path. The file is created on first save.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the backing file path.
func (f *File) Path() string { return f.path }

// Load implements plugins.Store. A missing file is an empty state.
func (f *File) Load(_ context.Context) (plugins.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return plugins.State{}, nil
		}
		return plugins.State{}, errors.WrapIO("read", f.path, err)
	}

	var state plugins.State
	if err := yaml.Unmarshal(data, &state); err != nil {
		return plugins.State{}, fmt.Errorf("parsing %s: %w", f.path, err)
	}
	return state, nil
}

// Save implements plugins.Store.
func (f *File) Save(ctx context.Context, state plugins.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := yaml.MarshalWithOptions(state,
		yaml.Indent(2),
		yaml.IndentSequence(true),
	)
	if err != nil {
		return fmt.Errorf("marshaling plugin state: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, constants.DirPermissions); err != nil {
		return errors.WrapIO("create", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".plugins-*.yaml")
	if err != nil {
		return errors.WrapIO("create", f.path, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.WrapIO("write", f.path, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.WrapIO("write", f.path, err)
	}
	if err := os.Chmod(tmp.Name(), constants.FilePermissions); err != nil {
		return errors.WrapIO("chmod", f.path, err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return errors.WrapIO("rename", f.path, err)
	}
	return nil
}
