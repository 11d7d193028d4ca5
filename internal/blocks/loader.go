package blocks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// catalogFile is the shape of a catalog override file:
//
//	blocks:
//	  hero: |
//	    <h1>{{projeto.titulo}}</h1>
type catalogFile struct {
	Blocks map[string]string `yaml:"blocks"`
}

// LoadFile resets the catalog to the built-ins and overlays the templates of a YAML file
func (c *Catalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog file: %w", err)
	}

	overrides, err := parseCatalog(data)
	if err != nil {
		return fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}

	c.replace(overrides)
	return nil
}

func parseCatalog(data []byte) (map[string]string, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file catalogFile
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	for t := range file.Blocks {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("empty block type")
		}
	}
	return file.Blocks, nil
}

// Watch reloads the catalog file whenever it is written, until ctx is done.
// The directory is watched so that editors replacing the file are noticed.
// A file that fails to load leaves the previous catalog in place.
func (c *Catalog) Watch(ctx context.Context, path string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			if err := c.LoadFile(path); err != nil {
				logger.Error("failed to reload catalog", zap.String("path", path), zap.Error(err))
				continue
			}
			logger.Info("catalog reloaded",
				zap.String("path", path),
				zap.String("fingerprint", c.Fingerprint()),
			)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("catalog watcher error", zap.Error(err))
		}
	}
}
