package vbforge

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	git "github.com/go-git/go-git/v5"
	"github.com/klauspost/compress/zip"
)

// Input is the caller-supplied source for one run: either the raw
// bytes of an uploaded ZIP archive or a remote repository link.
// Exactly one must be set.
type Input struct {
	Archive    []byte
	GithubLink string
}

// InputUnit is one discovered candidate source file. Units are
// immutable once produced and are processed independently of each
// other.
type InputUnit struct {
	Path string
	Name string
}

// recognized VB6 source extensions, lowercase.
var sourceExtensions = map[string]bool{
	".frm": true,
	".bas": true,
	".cls": true,
	".vbp": true,
}

var (
	githubLinkRe   = regexp.MustCompile(`^https?://github\.com/[\w.-]+/[\w.-]+/?$`)
	linkSanitizeRe = regexp.MustCompile(`[^a-zA-Z0-9:/._-]`)
)

// Ingestor resolves the run input into a set of candidate source
// files inside the run's working directory.
type Ingestor struct {
	agent        *StageAgent
	maxBytes     int64
	allowedHosts []string
}

// NewIngestor creates the ingestion stage. maxSizeMB bounds uploaded
// archives; allowedHosts restricts remote references.
func NewIngestor(agent *StageAgent, maxSizeMB int, allowedHosts []string) *Ingestor {
	return &Ingestor{
		agent:        agent,
		maxBytes:     int64(maxSizeMB) * 1024 * 1024,
		allowedHosts: allowedHosts,
	}
}

func (in *Ingestor) Agent() *StageAgent { return in.agent }

// Run materializes the input into workDir and returns the discovered
// units in discovery order. All scratch state lives under workDir,
// which the pipeline removes on every exit path.
func (in *Ingestor) Run(ctx context.Context, input Input, workDir string) ([]InputUnit, error) {
	in.agent.SetState(StateRunning, "Starting ingestion process")

	switch {
	case len(input.Archive) > 0 && input.GithubLink != "":
		in.agent.SetState(StateFailed, ErrAmbiguousInput.Error())
		return nil, ErrAmbiguousInput
	case len(input.Archive) > 0:
		if err := in.extractArchive(input.Archive, workDir); err != nil {
			return nil, err
		}
	case input.GithubLink != "":
		if err := in.cloneRepository(ctx, input.GithubLink, workDir); err != nil {
			return nil, err
		}
	default:
		in.agent.SetState(StateFailed, ErrMissingInput.Error())
		return nil, ErrMissingInput
	}

	units, err := in.scan(workDir)
	if err != nil {
		in.agent.SetState(StateFailed, err.Error())
		return nil, err
	}
	if len(units) == 0 {
		in.agent.SetState(StateFailed, ErrNoInputFound.Error())
		return nil, ErrNoInputFound
	}

	in.agent.SetState(StateCompleted, fmt.Sprintf("Found %d VB6 files to process", len(units)))
	return units, nil
}

func (in *Ingestor) extractArchive(archive []byte, workDir string) error {
	if int64(len(archive)) > in.maxBytes {
		msg := fmt.Sprintf("File too large. Maximum size: %dMB", in.maxBytes/(1024*1024))
		in.agent.SetState(StateFailed, msg)
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(archive))
	}

	in.agent.SetState(StateRunning, "Extracting uploaded ZIP file")
	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		in.agent.SetState(StateFailed, ErrCorruptArchive.Error())
		return fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}

	for _, entry := range reader.File {
		if err := in.extractEntry(entry, workDir); err != nil {
			return err
		}
	}

	in.agent.SetState(StateRunning, "Successfully extracted ZIP file")
	return nil
}

func (in *Ingestor) extractEntry(entry *zip.File, workDir string) error {
	// SecureJoin resolves the entry name to a path guaranteed inside
	// workDir. If that differs from the naive join, the entry was
	// trying to escape the extraction directory.
	dest, err := securejoin.SecureJoin(workDir, entry.Name)
	if err != nil {
		in.agent.SetState(StateFailed, ErrPathTraversal.Error())
		return fmt.Errorf("%w: %q", ErrPathTraversal, entry.Name)
	}
	naive := filepath.Clean(filepath.Join(workDir, filepath.FromSlash(entry.Name)))
	if dest != naive {
		in.agent.SetState(StateFailed, ErrPathTraversal.Error())
		return fmt.Errorf("%w: %q", ErrPathTraversal, entry.Name)
	}

	if entry.FileInfo().IsDir() {
		return os.MkdirAll(dest, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	src, err := entry.Open()
	if err != nil {
		in.agent.SetState(StateFailed, ErrCorruptArchive.Error())
		return fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		in.agent.SetState(StateFailed, ErrCorruptArchive.Error())
		return fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}
	return nil
}

func (in *Ingestor) cloneRepository(ctx context.Context, link, workDir string) error {
	link = strings.TrimRight(strings.TrimSpace(link), "/")

	allowed := false
	for _, host := range in.allowedHosts {
		if strings.Contains(link, host) {
			allowed = true
			break
		}
	}
	if !allowed {
		in.agent.SetState(StateFailed, "GitHub domain not allowed")
		return fmt.Errorf("%w: %q", ErrUntrustedSource, link)
	}
	if !githubLinkRe.MatchString(link) {
		in.agent.SetState(StateFailed, ErrInvalidReference.Error())
		return fmt.Errorf("%w: %q", ErrInvalidReference, link)
	}
	link = linkSanitizeRe.ReplaceAllString(link, "")

	in.agent.SetState(StateRunning, fmt.Sprintf("Cloning GitHub repository: %s", link))
	_, err := git.PlainCloneContext(ctx, workDir, false, &git.CloneOptions{
		URL:          link,
		Depth:        1,
		SingleBranch: true,
	})
	if err != nil {
		msg := fmt.Sprintf("Failed to clone GitHub repo: %v", err)
		in.agent.SetState(StateFailed, msg)
		return fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	in.agent.SetState(StateRunning, fmt.Sprintf("Successfully cloned repository: %s", link))
	return nil
}

// scan walks workDir and collects files with a recognized extension,
// in walk order. The order carries no meaning beyond determinism.
func (in *Ingestor) scan(workDir string) ([]InputUnit, error) {
	var units []InputUnit
	err := filepath.WalkDir(workDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if sourceExtensions[strings.ToLower(filepath.Ext(d.Name()))] {
			units = append(units, InputUnit{Path: path, Name: d.Name()})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning working directory: %w", err)
	}
	return units, nil
}
