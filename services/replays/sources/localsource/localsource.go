// Package localsource serves a replay archive straight from a local
// directory, indexing it on demand. Useful for archive maintainers working
// on the replay tree itself.
package localsource

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/lwgtools/replaydeck/services/replays/indexer"
	"github.com/lwgtools/replaydeck/services/replays/models"
)

// Source implements sources.Source over a directory on disk.
type Source struct {
	root   string
	logger *slog.Logger
}

// New creates a local source with the given logger.
func New(logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{logger: logger}
}

// Name returns the source identifier.
func (s *Source) Name() string {
	return "local"
}

// Init configures the archive root directory.
func (s *Source) Init(config map[string]any) error {
	dir, _ := config["dir"].(string)
	if dir == "" {
		return fmt.Errorf("local source requires a dir")
	}

	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("failed to open archive directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("archive path %s is not a directory", dir)
	}

	s.root = dir
	return nil
}

// FetchIndex builds the index by scanning the archive tree. If a previously
// generated index.json exists it is still rebuilt: the directory is the
// source of truth for a local archive.
func (s *Source) FetchIndex(ctx context.Context) (models.Index, error) {
	return indexer.New(s.root, s.logger).Build()
}

// FetchReplay reads one replay payload from disk. The catalog URL is a
// relative path and is confined to the archive root.
func (s *Source) FetchReplay(ctx context.Context, url string) ([]byte, error) {
	clean := filepath.Clean(filepath.FromSlash(url))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return nil, fmt.Errorf("replay path %q escapes the archive", url)
	}

	data, err := os.ReadFile(filepath.Join(s.root, clean))
	if err != nil {
		return nil, fmt.Errorf("failed to read replay %s: %w", url, err)
	}
	return data, nil
}
