package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultExtensions are ingested when DirectoryOptions.Extensions is empty
var DefaultExtensions = []string{".txt", ".md"}

// ErrRunInProgress is returned when a directory run is already active on the service
var ErrRunInProgress = errors.New("directory ingest already in progress")

// DirectoryOptions controls IngestDirectory
type DirectoryOptions struct {
	Extensions []string // With or without the leading dot, case-insensitive
	Include    string   // Optional doublestar pattern matched against the relative path
	Recursive  bool     // Descend into subdirectories
	DryRun     bool     // Report what would be ingested without doing it
	Workers    int      // Concurrent documents (default: runtime.NumCPU())
}

// FileOutcome is the result for one file of a directory run
type FileOutcome struct {
	Path       string `json:"path"`
	Title      string `json:"title"`
	DocumentID int64  `json:"document_id,omitempty"`
	Passages   int    `json:"passages,omitempty"`
	Error      string `json:"error,omitempty"`
}

// DirectoryReport summarizes a directory run
type DirectoryReport struct {
	RunID    string        `json:"run_id"`
	Root     string        `json:"root"`
	DryRun   bool          `json:"dry_run"`
	Files    []FileOutcome `json:"files"`
	Ingested int           `json:"ingested"`
	Partial  int           `json:"partial"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"-"`
}

// IngestDirectory ingests every matching file under root, one document per
// file titled with the file name. A failing file does not stop the run; its
// error is recorded in the report. Only cancellation aborts early.
func (s *Service) IngestDirectory(ctx context.Context, root string, opts DirectoryOptions) (*DirectoryReport, error) {
	if !s.runLock.TryAcquire() {
		return nil, ErrRunInProgress
	}
	defer s.runLock.Release()

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("cannot access %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Include != "" && !doublestar.ValidatePattern(opts.Include) {
		return nil, fmt.Errorf("invalid include pattern %q", opts.Include)
	}

	startTime := time.Now()
	report := &DirectoryReport{
		RunID:  uuid.NewString(),
		Root:   root,
		DryRun: opts.DryRun,
	}
	log := s.logger.With("run_id", report.RunID, "root", root)

	files, err := discoverFiles(root, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}
	report.Files = make([]FileOutcome, len(files))
	for i, f := range files {
		report.Files[i] = FileOutcome{Path: f, Title: filepath.Base(f)}
	}

	log.Info("directory ingest started", "files", len(files), "dry_run", opts.DryRun)
	if opts.DryRun {
		report.Duration = time.Since(startTime)
		return report, nil
	}

	var ingested, partial, failed int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	// Each goroutine writes only its own slot of report.Files
	for i := range report.Files {
		outcome := &report.Files[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			res, err := s.IngestFile(gctx, outcome.Path)
			if res != nil {
				outcome.DocumentID = res.DocumentID
				outcome.Passages = res.Passages
			}
			switch {
			case err == nil:
				atomic.AddInt32(&ingested, 1)
			case errors.Is(err, ErrPartialIngest):
				atomic.AddInt32(&partial, 1)
				outcome.Error = err.Error()
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				atomic.AddInt32(&failed, 1)
				outcome.Error = err.Error()
				log.Warn("file ingest failed", "path", outcome.Path, "error", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}

	report.Ingested = int(ingested)
	report.Partial = int(partial)
	report.Failed = int(failed)
	report.Duration = time.Since(startTime)

	log.Info("directory ingest finished",
		"ingested", report.Ingested, "partial", report.Partial, "failed", report.Failed,
		"duration", report.Duration)
	return report, nil
}

// IngestFile ingests one file, titled with its base name
func (s *Service) IngestFile(ctx context.Context, path string) (*Result, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return s.Ingest(ctx, filepath.Base(path), string(content))
}

// discoverFiles finds all matching files under root
func discoverFiles(root string, opts DirectoryOptions) ([]string, error) {
	var files []string

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			if path == root {
				return nil
			}
			// Skip hidden directories
			if strings.HasPrefix(info.Name(), ".") || !opts.Recursive {
				return filepath.SkipDir
			}
			return nil
		}

		if !info.Mode().IsRegular() || strings.HasPrefix(info.Name(), ".") {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if matchesFile(rel, opts) {
			files = append(files, path)
		}
		return nil
	})

	return files, err
}

// matchesFile applies the extension filter and the include pattern to a path relative to the root
func matchesFile(rel string, opts DirectoryOptions) bool {
	if !hasExtension(rel, opts.Extensions) {
		return false
	}
	if opts.Include == "" {
		return true
	}
	return doublestar.MatchUnvalidated(opts.Include, filepath.ToSlash(rel))
}

func hasExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return false
	}
	for _, want := range extensions {
		want = strings.ToLower(strings.TrimSpace(want))
		if !strings.HasPrefix(want, ".") {
			want = "." + want
		}
		if ext == want {
			return true
		}
	}
	return false
}
