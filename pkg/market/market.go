// Package market is the client for the execution market API, where
// apply work can be posted as bountied tasks for external workers
// instead of being run by a local agent.
package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EnvAPIKey is the environment variable holding the market API key.
const EnvAPIKey = "FEATURECTL_MARKET_API_KEY"

// Task statuses as reported by the market.
const (
	TaskStatusOpen      = "open"
	TaskStatusClaimed   = "claimed"
	TaskStatusCompleted = "completed"
	TaskStatusCancelled = "cancelled"
)

// Task is a unit of work posted to the market.
type Task struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Status      string         `json:"status"`
	Bounty      float64        `json:"bounty,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	WorkerID    string         `json:"worker_id,omitempty"`
	Result      string         `json:"result,omitempty"`
}

// APIError is a non-2xx response from the market.
type APIError struct {
	StatusCode   int
	ResponseBody string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("market API error (status %d): %s", e.StatusCode, e.ResponseBody)
}

// Client talks to the execution market. With DryRun set, no requests
// leave the process; calls return structurally identical mock responses
// so the surrounding apply flow can be exercised end to end.
type Client struct {
	baseURL string
	apiKey  string
	dryRun  bool
	httpc   *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey overrides the key read from the environment.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithDryRun enables mock responses.
func WithDryRun(dryRun bool) Option {
	return func(c *Client) { c.dryRun = dryRun }
}

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// NewClient creates a market client for the given base URL. The API key
// defaults to the FEATURECTL_MARKET_API_KEY environment variable.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  os.Getenv(EnvAPIKey),
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DryRun reports whether the client is in dry-run mode.
func (c *Client) DryRun() bool { return c.dryRun }

// CreateTask posts a new task to the market.
func (c *Client) CreateTask(ctx context.Context, task *Task) (*Task, error) {
	if c.dryRun {
		created := *task
		created.ID = uuid.New().String()
		created.Status = TaskStatusOpen
		created.CreatedAt = time.Now().UTC()
		return &created, nil
	}

	var created Task
	if err := c.do(ctx, http.MethodPost, "/tasks", task, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// GetTask fetches a task by ID.
func (c *Client) GetTask(ctx context.Context, id string) (*Task, error) {
	if c.dryRun {
		return &Task{ID: id, Status: TaskStatusOpen, CreatedAt: time.Now().UTC()}, nil
	}

	var task Task
	if err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(id), nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListTasks fetches tasks, optionally filtered by status.
func (c *Client) ListTasks(ctx context.Context, status string) ([]*Task, error) {
	if c.dryRun {
		return []*Task{}, nil
	}

	path := "/tasks"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}

	var tasks []*Task
	if err := c.do(ctx, http.MethodGet, path, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// CancelTask cancels an open task.
func (c *Client) CancelTask(ctx context.Context, id string) error {
	if c.dryRun {
		return nil
	}
	return c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(id)+"/cancel", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("market request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, ResponseBody: strings.TrimSpace(string(data))}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
