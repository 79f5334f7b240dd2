package crud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"livesync/internal/auth"
	"livesync/internal/models"
)

var ErrNotFound = errors.New("resource not found")

// Client talks to the project REST API that owns files and documents.
// Every request carries a fresh bearer token from the token source.
type Client struct {
	BaseURL string
	tokens  auth.TokenSource
	client  *http.Client
}

func NewClient(baseURL string, tokens auth.TokenSource, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		client:  &http.Client{Timeout: timeout},
	}
}

// File is the REST representation of a code file
type File struct {
	ID      models.ID `json:"id"`
	Name    string    `json:"name"`
	Content string    `json:"content"`
}

// Document is the REST representation of a project document
type Document struct {
	ID            models.ID `json:"id"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	UpdatedAt     time.Time `json:"updated_at"`
	LastUpdatedBy string    `json:"last_updated_by_username"`
}

type fileUpdate struct {
	Content string `json:"content"`
}

type documentUpdate struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func filePath(id string) string { return fmt.Sprintf("/api/files/%s/", id) }

func documentPath(projectID, id string) string {
	return fmt.Sprintf("/api/projects/%s/documentation/%s/", projectID, id)
}

func (c *Client) GetFile(ctx context.Context, id string) (*File, error) {
	var f File
	if err := c.do(ctx, http.MethodGet, filePath(id), nil, &f); err != nil {
		return nil, fmt.Errorf("failed to get file %s: %w", id, err)
	}
	return &f, nil
}

// SaveFile replaces a file's content
func (c *Client) SaveFile(ctx context.Context, id, content string) (*File, error) {
	var f File
	if err := c.do(ctx, http.MethodPatch, filePath(id), fileUpdate{Content: content}, &f); err != nil {
		return nil, fmt.Errorf("failed to save file %s: %w", id, err)
	}
	return &f, nil
}

func (c *Client) GetDocument(ctx context.Context, projectID, id string) (*Document, error) {
	var d Document
	if err := c.do(ctx, http.MethodGet, documentPath(projectID, id), nil, &d); err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	return &d, nil
}

// SaveDocument writes title and content. The server answers with the
// authoritative updated_at and updater, and broadcasts doc_content_update.
func (c *Client) SaveDocument(ctx context.Context, projectID, id, title, content string) (*Document, error) {
	var d Document
	body := documentUpdate{Title: title, Content: content}
	if err := c.do(ctx, http.MethodPut, documentPath(projectID, id), body, &d); err != nil {
		return nil, fmt.Errorf("failed to save document %s: %w", id, err)
	}
	return &d, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		reqBody, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(reqBody)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokens.AccessToken(); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
