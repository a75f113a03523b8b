// Package transport pushes the finished feed document to its downstream
// destination.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"time"
)

// DefaultTimeout is the publish request timeout.
const DefaultTimeout = 30 * time.Second

// Publisher is the collaborator contract: deliver the serialized document.
type Publisher interface {
	Publish(ctx context.Context, data []byte) error
}

// HTTPPublisher PUTs the document to a fixed URL.
type HTTPPublisher struct {
	url    string
	client *http.Client
}

// NewHTTPPublisher creates a publisher targeting url.
func NewHTTPPublisher(url string) *HTTPPublisher {
	return &HTTPPublisher{
		url:    url,
		client: &http.Client{Timeout: DefaultTimeout},
	}
}

// Publish uploads the document. Any non-2xx response is a failure.
func (p *HTTPPublisher) Publish(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, p.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/xml")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("publish request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("publish failed with HTTP status %d", resp.StatusCode)
	}
	return nil
}

// FilePublisher writes the document to a local path, for deployments where
// a separate process handles the upload.
type FilePublisher struct {
	path string
}

// NewFilePublisher creates a publisher writing to path.
func NewFilePublisher(path string) *FilePublisher {
	return &FilePublisher{path: path}
}

// Publish writes the document atomically via a temp file rename.
func (p *FilePublisher) Publish(_ context.Context, data []byte) error {
	tmpPath := p.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp publish file: %w", err)
	}
	if err := os.Rename(tmpPath, p.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace publish file: %w", err)
	}
	return nil
}
