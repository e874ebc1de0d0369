// Package assist asks an inference endpoint for a short narrative after a
// task is completed. Every call is best effort.
package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sandeepkv93/remindd/internal/model"
)

var ErrDisabled = errors.New("assist: endpoint not configured")

type Summarizer interface {
	Summarize(ctx context.Context, in CompletionInput) (string, error)
}

type CompletionInput struct {
	TaskID      string    `json:"task_id"`
	Title       string    `json:"title"`
	Category    string    `json:"category,omitempty"`
	Priority    string    `json:"priority"`
	CompletedAt time.Time `json:"completed_at"`
	Subtasks    []string  `json:"subtasks,omitempty"`
}

func InputFor(task model.Task, subtasks []model.Task) CompletionInput {
	in := CompletionInput{
		TaskID:   task.ID,
		Title:    task.Title,
		Category: task.Category,
		Priority: string(task.Priority),
	}
	if task.CompletedAt != nil {
		in.CompletedAt = *task.CompletedAt
	}
	for _, st := range subtasks {
		in.Subtasks = append(in.Subtasks, st.Title)
	}
	return in
}

type summaryResponse struct {
	Narrative string `json:"narrative"`
}

// Client posts completions to <endpoint>/summarize and expects
// {"narrative": "..."} in markdown.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Summarize(ctx context.Context, in CompletionInput) (string, error) {
	if c == nil || c.baseURL == "" {
		return "", ErrDisabled
	}
	b, err := json.Marshal(in)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/summarize", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("assist: endpoint returned %d", resp.StatusCode)
	}

	var out summaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("assist: decode response: %w", err)
	}
	return strings.TrimSpace(out.Narrative), nil
}
