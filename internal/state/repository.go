package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"Terminal/internal/model"
)

// Repository loads and saves the two state maps wholesale.
// Save replaces the stored map entirely.
type Repository interface {
	LoadPolicies(ctx context.Context) (model.PolicyStates, error)
	SavePolicies(ctx context.Context, states model.PolicyStates) error
	LoadCooldowns(ctx context.Context) (model.CooldownRecords, error)
	SaveCooldowns(ctx context.Context, records model.CooldownRecords) error
}

// FileRepository keeps each map in its own JSON file.
type FileRepository struct {
	PolicyFile   string
	CooldownFile string
}

// NewFileRepository creates a repository over the two files. Parent directories are created lazily.
func NewFileRepository(policyFile, cooldownFile string) *FileRepository {
	return &FileRepository{PolicyFile: policyFile, CooldownFile: cooldownFile}
}

func (r *FileRepository) LoadPolicies(_ context.Context) (model.PolicyStates, error) {
	states := model.PolicyStates{}
	if err := readJSON(r.PolicyFile, &states); err != nil {
		return nil, fmt.Errorf("load policy state: %w", err)
	}
	return states, nil
}

func (r *FileRepository) SavePolicies(_ context.Context, states model.PolicyStates) error {
	if err := writeJSON(r.PolicyFile, states); err != nil {
		return fmt.Errorf("save policy state: %w", err)
	}
	return nil
}

func (r *FileRepository) LoadCooldowns(_ context.Context) (model.CooldownRecords, error) {
	records := model.CooldownRecords{}
	if err := readJSON(r.CooldownFile, &records); err != nil {
		return nil, fmt.Errorf("load cooldowns: %w", err)
	}
	return records, nil
}

func (r *FileRepository) SaveCooldowns(_ context.Context, records model.CooldownRecords) error {
	if err := writeJSON(r.CooldownFile, records); err != nil {
		return fmt.Errorf("save cooldowns: %w", err)
	}
	return nil
}

// readJSON leaves v untouched when the file doesn't exist yet.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// writeJSON writes to a temp file in the same directory and renames it over path,
// so a failed write never leaves a truncated state file behind.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// MemoryRepository is an in-process Repository, used by tests and previews.
type MemoryRepository struct {
	mu        sync.Mutex
	policies  model.PolicyStates
	cooldowns model.CooldownRecords
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{policies: model.PolicyStates{}, cooldowns: model.CooldownRecords{}}
}

func (m *MemoryRepository) LoadPolicies(_ context.Context) (model.PolicyStates, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.policies.Clone(), nil
}

func (m *MemoryRepository) SavePolicies(_ context.Context, states model.PolicyStates) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies = states.Clone()
	return nil
}

func (m *MemoryRepository) LoadCooldowns(_ context.Context) (model.CooldownRecords, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cooldowns.Clone(), nil
}

func (m *MemoryRepository) SaveCooldowns(_ context.Context, records model.CooldownRecords) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cooldowns = records.Clone()
	return nil
}
