package runstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore persists run state as a JSON file, written atomically via a
// temporary file and rename.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed run state store at the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file location.
func (f *FileStore) Path() string {
	return f.path
}

// Save writes the full state. The rename makes the write atomic on POSIX
// filesystems, so a crash mid-save leaves the previous state intact.
func (f *FileStore) Save(ctx context.Context, state *RunState) error {
	if state == nil {
		return errors.New("run state is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("ensure state directory: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write run state: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace run state: %w", err)
	}
	return nil
}

// Load reads the persisted state. A missing file means start fresh and
// returns nil without error.
func (f *FileStore) Load(ctx context.Context) (*RunState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read run state: %w", err)
	}

	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode run state: %w", err)
	}
	if state.Items == nil {
		state.Items = make(map[string]*ItemProgress)
	}
	return &state, nil
}

// Clear removes the state file after a clean run completion.
func (f *FileStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear run state: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
