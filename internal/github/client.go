// Package github talks to the backend endpoints that load repository trees
// and file contents from GitHub on the caller's behalf.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nikhilbhutani/historyhub/internal/config"
)

const (
	loadContentPath  = "/api/github/load-content"
	fileContentsPath = "/api/github/file-contents"

	defaultTimeout = 30 * time.Second
	maxErrorBody   = 4 << 10
)

var (
	ErrFilesRequired  = errors.New("github: files must be provided")
	ErrRepoRequired   = errors.New("github: owner and repo are required")
	ErrMissingTree    = errors.New("github: response has no treeData")
	ErrUnexpectedCode = errors.New("github: unexpected status")
)

type ContentRequest struct {
	Owner  string `json:"owner"`
	Repo   string `json:"repo"`
	Branch string `json:"branch,omitempty"`
	Token  string `json:"token,omitempty"`
}

// ContentResponse carries the repository tree as the backend returned it.
type ContentResponse struct {
	TreeData json.RawMessage `json:"treeData"`
}

type FileRef struct {
	Path string `json:"path"`
	SHA  string `json:"sha,omitempty"`
}

type FilesRequest struct {
	Files []FileRef `json:"files"`
	Token string    `json:"token,omitempty"`
}

type FileContent struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

type FilesResponse struct {
	Files []FileContent `json:"files"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg config.GitHubConfig, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// LoadContent fetches the tree for owner/repo at branch. Any failure is
// logged and returned with a nil response.
func (c *Client) LoadContent(ctx context.Context, req ContentRequest) (*ContentResponse, error) {
	if req.Owner == "" || req.Repo == "" {
		return nil, ErrRepoRequired
	}

	var resp ContentResponse
	if err := c.post(ctx, loadContentPath, req, &resp); err != nil {
		c.logger.Error("failed to load repository content",
			"owner", req.Owner, "repo", req.Repo, "branch", req.Branch, "error", err)
		return nil, err
	}
	if len(resp.TreeData) == 0 || string(resp.TreeData) == "null" {
		c.logger.Error("repository content missing tree", "owner", req.Owner, "repo", req.Repo)
		return nil, ErrMissingTree
	}
	return &resp, nil
}

// FileContents fetches the contents of every listed file in one request.
// A nil Files slice is rejected before any request is made.
func (c *Client) FileContents(ctx context.Context, req FilesRequest) (*FilesResponse, error) {
	if req.Files == nil {
		return nil, ErrFilesRequired
	}

	var resp FilesResponse
	if err := c.post(ctx, fileContentsPath, req, &resp); err != nil {
		c.logger.Error("failed to fetch file contents", "files", len(req.Files), "error", err)
		return nil, err
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, body, dest any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w %d from %s: %s", ErrUnexpectedCode, resp.StatusCode, path, bytes.TrimSpace(msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
