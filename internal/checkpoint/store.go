package checkpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/errdefs"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/serialization"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/tensor"
)

// Store persists checkpoints by experiment name.
//
// Error conventions:
//   - Load and Delete return ErrCheckpointNotFound for unknown names
//   - Load returns ErrCheckpointCorrupt for unreadable or mismatched files
//   - a failed Save leaves any previous checkpoint of that name untouched
type Store interface {
	Save(c *Checkpoint) error
	Load(name string) (*Checkpoint, error)
	Exists(name string) bool
	List() ([]Info, error)
	Delete(name string) error
}

// FSStore keeps checkpoints as <dir>/<name>.born files.
//
// Saves write a uniquely named temp file in the same directory and rename
// it into place, so readers never observe a partial checkpoint.
type FSStore struct {
	dir string
}

// NewFSStore creates the directory if needed.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}
	return &FSStore{dir: dir}, nil
}

// Dir returns the checkpoints directory.
func (s *FSStore) Dir() string { return s.dir }

// Path returns the file a checkpoint name maps to.
func (s *FSStore) Path(name string) string {
	return filepath.Join(s.dir, name+Extension)
}

// Save implements Store.
func (s *FSStore) Save(c *Checkpoint) error {
	if c == nil {
		return fmt.Errorf("checkpoint cannot be nil")
	}
	if err := ValidateName(c.Name); err != nil {
		return err
	}
	header, err := c.header()
	if err != nil {
		return fmt.Errorf("checkpoint %s: %w", c.Name, err)
	}

	tempPath := filepath.Join(s.dir, "."+c.Name+"."+uuid.NewString()+".tmp")
	if err := writeFile(tempPath, c.Weights, header); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("checkpoint %s: %w", c.Name, err)
	}

	finalPath := s.Path(c.Name)
	if err := os.Rename(tempPath, finalPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename checkpoint file: %w", err)
	}

	slog.Debug("Checkpoint saved", "name", c.Name, "path", finalPath)
	return nil
}

func writeFile(path string, weights map[string]*tensor.RawTensor, header serialization.Header) error {
	w, err := serialization.NewBornWriter(path)
	if err != nil {
		return err
	}
	if err := w.WriteStateDict(weights, header); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Sync(); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// Load implements Store.
func (s *FSStore) Load(name string) (*Checkpoint, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	path := s.Path(name)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", errdefs.ErrCheckpointNotFound, name)
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat checkpoint file: %w", err)
	}

	r, err := serialization.NewBornReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errdefs.ErrCheckpointCorrupt, name, err)
	}
	defer func() { _ = r.Close() }()

	weights, err := r.ReadStateDict(tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errdefs.ErrCheckpointCorrupt, name, err)
	}
	c, err := fromHeader(r.Header(), weights)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errdefs.ErrCheckpointCorrupt, name, err)
	}
	if c.Name != name {
		return nil, fmt.Errorf("%w: file %s holds checkpoint %q", errdefs.ErrCheckpointCorrupt, path, c.Name)
	}

	slog.Debug("Checkpoint loaded", "name", name, "path", path)
	return c, nil
}

// Exists implements Store.
func (s *FSStore) Exists(name string) bool {
	if ValidateName(name) != nil {
		return false
	}
	_, err := os.Stat(s.Path(name))
	return err == nil
}

// List implements Store. Unreadable files are skipped with a warning.
func (s *FSStore) List() ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoints directory: %w", err)
	}

	infos := []Info{}
	for _, entry := range entries {
		fileName := entry.Name()
		if entry.IsDir() || strings.HasPrefix(fileName, ".") || filepath.Ext(fileName) != Extension {
			continue
		}
		name := strings.TrimSuffix(fileName, Extension)
		c, err := s.Load(name)
		if err != nil {
			slog.Warn("Failed to load checkpoint for listing", "name", name, "error", err)
			continue
		}
		var size int64
		if fi, err := entry.Info(); err == nil {
			size = fi.Size()
		}
		infos = append(infos, Info{
			Name:      c.Name,
			RunID:     c.RunID,
			CreatedAt: c.CreatedAt,
			ModelType: c.ModelType,
			Report:    c.Report,
			Path:      s.Path(name),
			Size:      size,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Delete implements Store.
func (s *FSStore) Delete(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	path := s.Path(name)
	if err := os.Remove(path); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", errdefs.ErrCheckpointNotFound, name)
	} else if err != nil {
		return fmt.Errorf("failed to remove checkpoint: %w", err)
	}
	slog.Debug("Checkpoint deleted", "name", name, "path", path)
	return nil
}
