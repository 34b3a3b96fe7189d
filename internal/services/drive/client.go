package drive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"chronicle/internal/config"
	"chronicle/internal/fileutil"
	"chronicle/internal/services"
)

const (
	defaultBaseURL     = "https://www.googleapis.com/drive/v3"
	defaultHTTPTimeout = 60 * time.Second
	listPageSize       = 100
)

// audioExtensions are the recording formats the pipeline accepts. Anything
// else in the folder is ignored during listing.
var audioExtensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".wav":  true,
	".ogg":  true,
	".opus": true,
	".flac": true,
	".aac":  true,
	".webm": true,
}

// File identifies one recording in the remote folder.
type File struct {
	ID           string
	Name         string
	MimeType     string
	Size         int64
	ModifiedTime time.Time
}

// Source is the acquisition surface the pipeline depends on.
type Source interface {
	List(ctx context.Context) ([]File, error)
	Fetch(ctx context.Context, file File, destDir string) (string, error)
	Delete(ctx context.Context, file File) error
}

// Client wraps the Drive v3 files API for one folder.
type Client struct {
	folderID string
	token    string
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
}

// NewClient creates a folder-scoped Drive client from the configuration.
func NewClient(cfg config.Drive) (*Client, error) {
	folderID := strings.TrimSpace(cfg.FolderID)
	if folderID == "" {
		return nil, services.Wrap(services.ErrConfiguration, "acquire", "new", "drive folder_id is required", nil)
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, services.Wrap(services.ErrConfiguration, "acquire", "new", "drive access_token is required", nil)
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	timeout := defaultHTTPTimeout
	if cfg.RequestTimeout > 0 {
		timeout = time.Duration(cfg.RequestTimeout) * time.Second
	}
	limit := rate.Limit(cfg.RequestsPerSecond)
	if limit <= 0 {
		limit = rate.Inf
	}
	return &Client{
		folderID: folderID,
		token:    token,
		baseURL:  base,
		http:     &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(limit, 1),
	}, nil
}

var _ Source = (*Client)(nil)

type listResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Files         []struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		MimeType     string `json:"mimeType"`
		Size         string `json:"size"`
		ModifiedTime string `json:"modifiedTime"`
	} `json:"files"`
}

// List returns the audio recordings currently present in the folder, oldest
// first by modification time.
func (c *Client) List(ctx context.Context) ([]File, error) {
	query := fmt.Sprintf("'%s' in parents and trashed = false", c.folderID)

	var files []File
	pageToken := ""
	for {
		values := url.Values{}
		values.Set("q", query)
		values.Set("fields", "nextPageToken, files(id, name, mimeType, size, modifiedTime)")
		values.Set("pageSize", fmt.Sprint(listPageSize))
		if pageToken != "" {
			values.Set("pageToken", pageToken)
		}

		body, err := c.do(ctx, http.MethodGet, c.baseURL+"/files?"+values.Encode(), "list")
		if err != nil {
			return nil, err
		}

		var page listResponse
		decodeErr := json.Unmarshal(body, &page)
		if decodeErr != nil {
			return nil, services.Wrap(services.ErrTransient, "acquire", "list", "decode response", decodeErr)
		}

		for _, entry := range page.Files {
			if strings.HasPrefix(entry.MimeType, "application/vnd.google-apps") {
				continue
			}
			ext := strings.ToLower(filepath.Ext(entry.Name))
			if !audioExtensions[ext] {
				continue
			}
			file := File{ID: entry.ID, Name: entry.Name, MimeType: entry.MimeType}
			if entry.Size != "" {
				if size, err := strconv.ParseInt(entry.Size, 10, 64); err == nil {
					file.Size = size
				}
			}
			if entry.ModifiedTime != "" {
				if parsed, err := time.Parse(time.RFC3339, entry.ModifiedTime); err == nil {
					file.ModifiedTime = parsed
				}
			}
			files = append(files, file)
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ModifiedTime.Before(files[j].ModifiedTime)
	})
	return files, nil
}

// Fetch downloads one file into destDir and returns the local path. Partial
// downloads are written to a temp file and renamed only on success.
func (c *Client) Fetch(ctx context.Context, file File, destDir string) (string, error) {
	if err := c.wait(ctx, "fetch"); err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/files/%s?alt=media", c.baseURL, url.PathEscape(file.ID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("drive fetch: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", services.Wrap(services.ErrTransient, "acquire", "fetch", "http error", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", classifyStatus("fetch", resp.StatusCode, string(payload))
	}

	if err := fileutil.EnsureDir(destDir); err != nil {
		return "", fmt.Errorf("drive fetch: %w", err)
	}
	destPath := filepath.Join(destDir, filepath.Base(file.Name))
	tmp, err := os.CreateTemp(destDir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("drive fetch: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", services.Wrap(services.ErrTransient, "acquire", "fetch", "copy body", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("drive fetch: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("drive fetch: finalize download: %w", err)
	}
	return destPath, nil
}

// Delete removes the source file from the folder. A missing file counts as
// already deleted.
func (c *Client) Delete(ctx context.Context, file File) error {
	_, err := c.do(ctx, http.MethodDelete, c.baseURL+"/files/"+url.PathEscape(file.ID), "delete")
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil
		}
		return err
	}
	return nil
}

func (c *Client) wait(ctx context.Context, operation string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return services.Wrap(services.ErrTransient, "acquire", operation, "rate limiter", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint, operation string) ([]byte, error) {
	if err := c.wait(ctx, operation); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("drive %s: new request: %w", operation, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, services.Wrap(services.ErrTransient, "acquire", operation, "http error", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "acquire", operation, "read body", err)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, classifyStatus(operation, resp.StatusCode, string(body))
	}
	return body, nil
}

func classifyStatus(operation string, status int, body string) error {
	detail := fmt.Sprintf("http %d: %s", status, trimBody(body))
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return services.Wrap(services.ErrTerminal, "acquire", operation, detail, nil)
	case status == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "acquire", operation, detail, nil)
	case status == http.StatusTooManyRequests, status >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, "acquire", operation, detail, nil)
	default:
		return services.Wrap(services.ErrTerminal, "acquire", operation, detail, nil)
	}
}

func trimBody(body string) string {
	clean := strings.Join(strings.Fields(body), " ")
	if len(clean) > 160 {
		clean = clean[:160] + "..."
	}
	if clean == "" {
		clean = "<empty>"
	}
	return clean
}
