package github

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/mike-a-ellis/docqa/internal/ingest"
)

// Runner ingests one local file.
type Runner interface {
	Run(ctx context.Context, job ingest.Job) (*ingest.Result, error)
}

// SyncResult contains statistics about a sync.
type SyncResult struct {
	CommitSHA       string
	TotalFiles      int
	TotalChunks     int
	SuccessfulFiles int
	FailedFiles     []FailedFile
	Duration        time.Duration
}

// FailedFile represents a file that failed to ingest.
type FailedFile struct {
	Path   string
	Reason string
}

// Syncer ingests every supported file of a repository directory.
type Syncer struct {
	fetcher    *Fetcher
	runner     Runner
	collection string
	logger     *slog.Logger
}

// NewSyncer creates a syncer that stores documents in collection.
func NewSyncer(fetcher *Fetcher, runner Runner, collection string, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{fetcher: fetcher, runner: runner, collection: collection, logger: logger}
}

// DocumentID is the stable id of a repository file, so a re-sync replaces it.
func DocumentID(repository, filePath string) string {
	return repository + "/" + filePath
}

// SyncAll downloads and ingests every file. A failing file is recorded and
// skipped; only listing errors abort the sync.
func (s *Syncer) SyncAll(ctx context.Context) (*SyncResult, error) {
	start := time.Now()
	result := &SyncResult{}

	commitSHA, err := s.fetcher.GetLatestCommitSHA(ctx)
	if err != nil {
		s.logger.Warn("Could not resolve latest commit", "error", err)
	}
	result.CommitSHA = commitSHA

	files, err := s.fetcher.ListFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	result.TotalFiles = len(files)
	s.logger.Info("Found documents", "repository", s.fetcher.Repository(), "count", len(files), "commit", commitSHA)

	workDir, err := os.MkdirTemp("", "docqa-sync-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(workDir)

	for _, file := range files {
		chunks, err := s.syncFile(ctx, file, workDir)
		if err != nil {
			s.logger.Warn("Failed to ingest file", "path", file.Path, "error", err)
			result.FailedFiles = append(result.FailedFiles, FailedFile{Path: file.Path, Reason: err.Error()})
			continue
		}
		result.SuccessfulFiles++
		result.TotalChunks += chunks
	}

	result.Duration = time.Since(start)
	s.logger.Info("Sync complete",
		"successful", result.SuccessfulFiles,
		"failed", len(result.FailedFiles),
		"chunks", result.TotalChunks,
		"duration", result.Duration,
	)
	return result, nil
}

func (s *Syncer) syncFile(ctx context.Context, file RemoteFile, workDir string) (int, error) {
	local, err := s.fetcher.Download(ctx, file, workDir)
	if err != nil {
		return 0, fmt.Errorf("download: %w", err)
	}
	defer os.Remove(local)

	res, err := s.runner.Run(ctx, ingest.Job{
		FilePath:   local,
		FileName:   path.Base(file.Path),
		DocumentID: DocumentID(s.fetcher.Repository(), file.Path),
		Collection: s.collection,
	})
	if err != nil {
		return 0, err
	}
	return res.Stored, nil
}
