package release

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	DefaultAPIURL = "https://api.github.com"
	userAgent     = "troly-index-release/1.0"
	maxErrorBody  = 512
)

var ErrMissingUploadURL = errors.New("no upload_url in release response")

// APIError is a non-2xx answer from the GitHub API.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github %s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

type Release struct {
	ID        int64  `json:"id"`
	TagName   string `json:"tag_name"`
	HTMLURL   string `json:"html_url"`
	UploadURL string `json:"upload_url"`
}

type Asset struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	Size               int64  `json:"size"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

type ReleaseRequest struct {
	TagName string `json:"tag_name"`
	Name    string `json:"name"`
	Draft   bool   `json:"draft"`
	Body    string `json:"body"`
}

// GitHub is a minimal client for the two release endpoints we need.
type GitHub struct {
	APIURL     string
	Token      string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewGitHub(token string) *GitHub {
	return &GitHub{
		APIURL:     DefaultAPIURL,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 10 * time.Minute},
		Logger:     slog.Default(),
	}
}

// CreateRelease creates a release for tag on owner/repo. The name defaults to
// the tag.
func (g *GitHub) CreateRelease(ctx context.Context, repo string, req ReleaseRequest) (*Release, error) {
	if req.Name == "" {
		req.Name = req.TagName
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	endpoint := strings.TrimSuffix(g.APIURL, "/") + "/repos/" + repo + "/releases"

	var release Release
	if err := g.do(ctx, http.MethodPost, endpoint, "application/json", payload, &release); err != nil {
		return nil, fmt.Errorf("failed to create release %s: %w", req.TagName, err)
	}

	return &release, nil
}

// UploadAsset uploads the file at path to a release. uploadURL is the
// release's upload_url template, e.g. ".../assets{?name,label}".
func (g *GitHub) UploadAsset(ctx context.Context, uploadURL, path string) (*Asset, error) {
	base, _, _ := strings.Cut(uploadURL, "{")
	if base == "" {
		return nil, ErrMissingUploadURL
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	endpoint := base + "?name=" + url.QueryEscape(filepath.Base(path))

	var asset Asset
	if err := g.do(ctx, http.MethodPost, endpoint, "application/gzip", data, &asset); err != nil {
		return nil, fmt.Errorf("failed to upload asset %s: %w", filepath.Base(path), err)
	}

	return &asset, nil
}

func (g *GitHub) do(ctx context.Context, method, endpoint, contentType string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+g.Token)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = int64(len(body))

	start := time.Now()
	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	g.Logger.Debug("GitHub request",
		"method", method,
		"url", endpoint,
		"status", resp.StatusCode,
		"size", humanize.Bytes(uint64(len(body))),
		"duration", time.Since(start),
	)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text := string(respBody)
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}

		return &APIError{Method: method, URL: endpoint, StatusCode: resp.StatusCode, Body: text}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode github response: %w", err)
	}

	return nil
}
