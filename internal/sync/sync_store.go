package sync

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/openmined/notesync/internal/utils"
	"gopkg.in/yaml.v3"
)

var ErrNoState = errors.New("no sync state")

// Store persists SyncData between runs
type Store interface {
	// Load returns ErrNoState when nothing was saved yet
	Load(ctx context.Context) (*SyncData, error)
	Save(ctx context.Context, data *SyncData) error
	Close() error
}

// YAMLStore keeps the state as a single YAML document
type YAMLStore struct {
	path string
}

func NewYAMLStore(path string) *YAMLStore {
	return &YAMLStore{path: path}
}

func (s *YAMLStore) Path() string {
	return s.path
}

func (s *YAMLStore) Load(_ context.Context) (*SyncData, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoState
	} else if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	var data SyncData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode state %s: %w", s.path, err)
	}
	if err := checkLoaded(&data); err != nil {
		return nil, err
	}
	data.Relink()
	return &data, nil
}

func (s *YAMLStore) Save(_ context.Context, data *SyncData) error {
	raw, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	if err := utils.WriteFileAtomic(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

func (s *YAMLStore) Close() error {
	return nil
}

func checkLoaded(data *SyncData) error {
	if data.Version > SyncDataVersion {
		return fmt.Errorf("state version %d is newer than supported %d", data.Version, SyncDataVersion)
	}
	if data.LocalTree == nil || data.RemoteTree == nil {
		return fmt.Errorf("state is missing a tree")
	}
	return nil
}
