package vbforge

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"

	"github.com/vbforge-ai/vbforge/store"
)

// Builder writes the generated project files to a staging directory,
// archives them, and publishes the artifact in the content store
// under a fresh identifier.
type Builder struct {
	agent *StageAgent
	store *store.Store
}

func NewBuilder(agent *StageAgent, st *store.Store) *Builder {
	return &Builder{agent: agent, store: st}
}

func (b *Builder) Agent() *StageAgent { return b.agent }

// Build stages the file mapping, zips it deterministically (entries
// sorted by path), and persists the container. Returns the container
// bytes and the fresh conversion identifier.
func (b *Builder) Build(files map[string]string) ([]byte, string, error) {
	b.agent.SetState(StateRunning, "Starting file building")
	conversionID := uuid.New().String()

	staging, err := os.MkdirTemp("", "vbforge-project-*")
	if err != nil {
		b.agent.SetState(StateFailed, fmt.Sprintf("File builder error: %v", err))
		return nil, "", fmt.Errorf("creating staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	for name, content := range files {
		path := filepath.Join(staging, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			b.agent.SetState(StateFailed, fmt.Sprintf("File builder error: %v", err))
			return nil, "", fmt.Errorf("staging %s: %w", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			b.agent.SetState(StateFailed, fmt.Sprintf("File builder error: %v", err))
			return nil, "", fmt.Errorf("staging %s: %w", name, err)
		}
	}

	archive, err := zipDirectory(staging)
	if err != nil {
		b.agent.SetState(StateFailed, fmt.Sprintf("File builder error: %v", err))
		return nil, "", err
	}
	if len(archive) == 0 {
		b.agent.SetState(StateFailed, ErrEmptyArtifact.Error())
		return nil, "", ErrEmptyArtifact
	}

	if err := b.store.Put(conversionID, archive); err != nil {
		b.agent.SetState(StateFailed, fmt.Sprintf("File builder error: %v", err))
		return nil, "", err
	}

	b.agent.SetState(StateCompleted, fmt.Sprintf("Successfully built project ZIP with %d files", len(files)))
	return archive, conversionID, nil
}

// zipDirectory archives every file under root into a single deflated
// container. Entry order is sorted for a byte-stable result.
func zipDirectory(root string) ([]byte, error) {
	var paths []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking staging directory: %w", err)
	}
	if len(paths) == 0 {
		return nil, ErrEmptyArtifact
	}
	sort.Strings(paths)

	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)
	for _, path := range paths {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil, err
		}
		entry, err := writer.Create(filepath.ToSlash(rel))
		if err != nil {
			return nil, fmt.Errorf("creating archive entry %s: %w", rel, err)
		}
		src, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		_, err = io.Copy(entry, src)
		src.Close()
		if err != nil {
			return nil, fmt.Errorf("archiving %s: %w", rel, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing archive: %w", err)
	}
	return buf.Bytes(), nil
}
