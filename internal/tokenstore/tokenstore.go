// Package tokenstore persists the account's refresh token between runs.
// Token refresh is explicit throughout the client, so the store is the
// only place a credential outlives a process.
package tokenstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const SchemaVersion = 1

var ErrNotFound = errors.New("token state not found")

// State is the persisted refresh state for one account.
type State struct {
	SchemaVersion int    `json:"schema_version"`
	Email         string `json:"email"`
	RefreshToken  string `json:"refresh_token"`
}

func (s State) validate() error {
	if s.SchemaVersion != SchemaVersion {
		return fmt.Errorf("unsupported schema_version: %d", s.SchemaVersion)
	}
	if s.Email == "" {
		return fmt.Errorf("state missing email")
	}
	if s.RefreshToken == "" {
		return fmt.Errorf("state missing refresh_token")
	}
	return nil
}

// Load reads the state file at path. Returns ErrNotFound when it does not
// exist.
func Load(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, ErrNotFound
		}
		return State{}, fmt.Errorf("read token state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("decode token state: %w", err)
	}
	if err := state.validate(); err != nil {
		return State{}, err
	}
	return state, nil
}

// Save writes the state file with owner-only permissions, atomically via a
// temp file in the same directory.
func Save(path string, state State) error {
	state.SchemaVersion = SchemaVersion
	if err := state.validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token state: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp state: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}
