package modules

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// state is the persisted builtin bookkeeping.
type state struct {
	Disabled  []string `yaml:"disabled,omitempty"`
	Installed []string `yaml:"installed,omitempty"`
}

// loadState reads the state file. Callers hold m.mu.
func (m *Manager) loadState() error {
	if m.cfg.StateFile == "" {
		return nil
	}
	data, err := os.ReadFile(m.cfg.StateFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read module state: %w", err)
	}
	var s state
	if err := yaml.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("parse module state: %w", err)
	}
	m.state = s
	return nil
}

// saveState writes the state file atomically. Callers hold m.mu.
func (m *Manager) saveState() error {
	if m.cfg.StateFile == "" {
		return nil
	}
	data, err := yaml.Marshal(m.state)
	if err != nil {
		return fmt.Errorf("encode module state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.cfg.StateFile), 0o750); err != nil {
		return fmt.Errorf("write module state: %w", err)
	}
	tmp := m.cfg.StateFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write module state: %w", err)
	}
	if err := os.Rename(tmp, m.cfg.StateFile); err != nil {
		return fmt.Errorf("write module state: %w", err)
	}
	return nil
}

func (m *Manager) updateState(fn func(*state)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.loadState(); err != nil {
		return err
	}
	fn(&m.state)
	return m.saveState()
}
