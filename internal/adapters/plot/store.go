package plot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samirrijal/orchardgap/internal/core/domain"
)

// FileStore keeps one PNG per orchard in a directory, named plot_{id}.png.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("plot dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the file a plot of the orchard is stored in.
func (s *FileStore) Path(orchardID int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("plot_%d.png", orchardID))
}

// Save replaces the plot of an orchard. Readers never see a partial file.
func (s *FileStore) Save(ctx context.Context, orchardID int64, png []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, fmt.Sprintf(".plot_%d_*.png", orchardID))
	if err != nil {
		return fmt.Errorf("create plot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(png); err != nil {
		tmp.Close()
		return fmt.Errorf("write plot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close plot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path(orchardID)); err != nil {
		return fmt.Errorf("store plot: %w", err)
	}
	return nil
}

// Load implements ports.PlotStore.
func (s *FileStore) Load(ctx context.Context, orchardID int64) ([]byte, error) {
	data, err := os.ReadFile(s.Path(orchardID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: orchard %d", domain.ErrPlotNotFound, orchardID)
	}
	if err != nil {
		return nil, fmt.Errorf("read plot: %w", err)
	}
	return data, nil
}
