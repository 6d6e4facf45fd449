// Package canvas is a client for the Canvas LMS REST API.
package canvas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://canvas.instructure.com/api/v1"

// ErrNoToken is returned at construction time when the access token is missing.
var ErrNoToken = errors.New("canvas access token is required")

// Course is a Canvas course enrollment.
type Course struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	CourseCode string `json:"course_code"`
}

// File is a file attached to a Canvas course. URL is a pre-signed download
// link that changes when the file is replaced.
type File struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	URL         string `json:"url"`
	ContentType string `json:"content-type"`
	Size        int64  `json:"size"`
}

// Client calls the Canvas API on behalf of a single user token.
type Client struct {
	token   string
	baseURL string

	client *http.Client
	// Downloads get a longer ceiling than metadata calls.
	downloadClient *http.Client
}

// ClientConfig holds construction options for Client.
type ClientConfig struct {
	Token   string
	BaseURL string
}

// NewClient creates a Client, failing fast when no token is configured.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Token == "" {
		return nil, ErrNoToken
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Client{
		token:          cfg.Token,
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		client:         &http.Client{Timeout: 30 * time.Second},
		downloadClient: &http.Client{Timeout: 120 * time.Second},
	}, nil
}

// ListActiveCourses fetches the user's active course enrollments.
func (c *Client) ListActiveCourses(ctx context.Context) ([]Course, error) {
	var courses []Course
	if err := c.get(ctx, "/courses?enrollment_state=active&per_page=100", &courses); err != nil {
		return nil, err
	}
	return courses, nil
}

// ListCourseFiles fetches the files of a course.
func (c *Client) ListCourseFiles(ctx context.Context, courseID string) ([]File, error) {
	var files []File
	if err := c.get(ctx, fmt.Sprintf("/courses/%s/files?per_page=100", courseID), &files); err != nil {
		return nil, err
	}
	return files, nil
}

// DownloadFile fetches the raw bytes of a course file via its pre-signed URL.
func (c *Client) DownloadFile(ctx context.Context, fileURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.downloadClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling canvas: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("canvas returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
