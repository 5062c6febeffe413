package github

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/go-github/v81/github"
)

// RemoteFile is a document found in the repository.
type RemoteFile struct {
	Path string // Relative to the base path
	SHA  string // Git blob SHA
	Size int
}

// Fetcher lists and downloads documents from a repository directory.
type Fetcher struct {
	client   *Client
	owner    string
	repo     string
	basePath string
	supports func(name string) bool
}

// NewFetcher creates a fetcher. supports decides which file names are
// documents; nil accepts every file.
func NewFetcher(client *Client, owner, repo, basePath string, supports func(string) bool) *Fetcher {
	if supports == nil {
		supports = func(string) bool { return true }
	}
	return &Fetcher{
		client:   client,
		owner:    owner,
		repo:     repo,
		basePath: strings.Trim(basePath, "/"),
		supports: supports,
	}
}

// Repository returns "owner/repo".
func (f *Fetcher) Repository() string {
	return f.owner + "/" + f.repo
}

// ListFiles recursively lists supported files under the base path.
func (f *Fetcher) ListFiles(ctx context.Context) ([]RemoteFile, error) {
	return f.listRecursive(ctx, f.basePath, "")
}

func (f *Fetcher) listRecursive(ctx context.Context, fullPath, relativePath string) ([]RemoteFile, error) {
	_, dirContents, _, err := f.client.Repositories.GetContents(ctx, f.owner, f.repo, fullPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get contents of %s: %w", fullPath, err)
	}

	var files []RemoteFile
	for _, item := range dirContents {
		name := item.GetName()
		if name == "" {
			continue
		}
		itemRelPath := path.Join(relativePath, name)

		switch item.GetType() {
		case "file":
			if f.supports(name) {
				files = append(files, RemoteFile{Path: itemRelPath, SHA: item.GetSHA(), Size: item.GetSize()})
			}
		case "dir":
			sub, err := f.listRecursive(ctx, path.Join(fullPath, name), itemRelPath)
			if err != nil {
				return nil, err
			}
			files = append(files, sub...)
		}
	}
	return files, nil
}

// Download writes file into dir and returns the local path.
// Files too large for the contents API are streamed instead.
func (f *Fetcher) Download(ctx context.Context, file RemoteFile, dir string) (string, error) {
	fullPath := path.Join(f.basePath, file.Path)

	var body io.Reader
	fileContent, _, _, err := f.client.Repositories.GetContents(ctx, f.owner, f.repo, fullPath, nil)
	if err != nil {
		return "", fmt.Errorf("failed to get content of %s: %w", fullPath, err)
	}
	if fileContent == nil {
		return "", fmt.Errorf("no file content returned for %s", fullPath)
	}

	if fileContent.Content != nil && *fileContent.Content != "" {
		content, err := fileContent.GetContent()
		if err != nil {
			return "", fmt.Errorf("failed to decode content of %s: %w", fullPath, err)
		}
		body = strings.NewReader(content)
	} else {
		rc, _, err := f.client.Repositories.DownloadContents(ctx, f.owner, f.repo, fullPath, nil)
		if err != nil {
			return "", fmt.Errorf("failed to download %s: %w", fullPath, err)
		}
		defer rc.Close()
		body = rc
	}

	local := filepath.Join(dir, path.Base(file.Path))
	out, err := os.Create(local)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, body); err != nil {
		out.Close()
		return "", fmt.Errorf("write %s: %w", local, err)
	}
	return local, out.Close()
}

// GetLatestCommitSHA retrieves the SHA of the most recent commit affecting the base path
func (f *Fetcher) GetLatestCommitSHA(ctx context.Context) (string, error) {
	commits, _, err := f.client.Repositories.ListCommits(ctx, f.owner, f.repo, &github.CommitsListOptions{
		Path:        f.basePath,
		ListOptions: github.ListOptions{PerPage: 1},
	})
	if err != nil {
		return "", fmt.Errorf("failed to get latest commit: %w", err)
	}
	if len(commits) == 0 || commits[0].SHA == nil {
		return "", fmt.Errorf("no commits found for path %s", f.basePath)
	}
	return commits[0].GetSHA(), nil
}
