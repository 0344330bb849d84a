package export

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/a3tai/mcp-pdf-signer/internal/httputil"
)

// DownloadChannel writes the artifact into an output directory. The file
// appears under its final name only once fully written.
type DownloadChannel struct {
	Dir string
}

// Name returns the channel name
func (d *DownloadChannel) Name() string { return "download" }

// Deliver writes a into d.Dir
func (d *DownloadChannel) Deliver(_ context.Context, a Artifact) (DeliveryResult, error) {
	if d.Dir == "" {
		return DeliveryResult{}, fmt.Errorf("%w: no output directory", ErrUnsupported)
	}
	path, err := writeAtomic(d.Dir, a.FileName, a.Data)
	if err != nil {
		return DeliveryResult{}, err
	}
	return DeliveryResult{Location: path, Delivered: true}, nil
}

// ManualSaveChannel writes the artifact to a temporary location that the
// user opens and saves themselves
type ManualSaveChannel struct {
	// Dir defaults to os.TempDir()
	Dir string
}

// Name returns the channel name
func (m *ManualSaveChannel) Name() string { return "manual" }

// Deliver writes a under a fresh temporary directory
func (m *ManualSaveChannel) Deliver(_ context.Context, a Artifact) (DeliveryResult, error) {
	dir, err := os.MkdirTemp(m.Dir, "signed-*")
	if err != nil {
		return DeliveryResult{}, fmt.Errorf("failed to create temporary directory: %w", err)
	}
	path, err := writeAtomic(dir, a.FileName, a.Data)
	if err != nil {
		return DeliveryResult{}, err
	}
	return DeliveryResult{Location: path, Manual: true}, nil
}

func writeAtomic(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	final := filepath.Join(dir, filepath.Base(name))

	tmp, err := os.CreateTemp(dir, ".partial-*")
	if err != nil {
		return "", fmt.Errorf("failed to create output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write output file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close output file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("failed to set output permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", fmt.Errorf("failed to move output into place: %w", err)
	}
	return final, nil
}

// submission is the JSON body posted by SubmitChannel
type submission struct {
	RecipientID    string `json:"recipientId"`
	FileName       string `json:"fileName"`
	DocumentBase64 string `json:"documentBase64"`
}

// SubmitChannel posts the artifact to an HTTP endpoint, retrying transient
// failures with exponential backoff
type SubmitChannel struct {
	URL      string
	Client   *http.Client
	Attempts int
	Delay    time.Duration
}

// NewSubmitChannel creates a SubmitChannel with three attempts and a 500ms
// initial backoff
func NewSubmitChannel(url string, timeout time.Duration) *SubmitChannel {
	return &SubmitChannel{
		URL:      url,
		Client:   &http.Client{Timeout: timeout},
		Attempts: 3,
		Delay:    500 * time.Millisecond,
	}
}

// Name returns the channel name
func (s *SubmitChannel) Name() string { return "submit" }

// Deliver posts a to s.URL
func (s *SubmitChannel) Deliver(ctx context.Context, a Artifact) (DeliveryResult, error) {
	if s.URL == "" {
		return DeliveryResult{}, fmt.Errorf("%w: no submit url", ErrUnsupported)
	}

	body, err := json.Marshal(submission{
		RecipientID:    a.RecipientID,
		FileName:       a.FileName,
		DocumentBase64: base64.StdEncoding.EncodeToString(a.Data),
	})
	if err != nil {
		return DeliveryResult{}, fmt.Errorf("failed to encode submission: %w", err)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	err = httputil.Retry(ctx, s.Attempts, s.Delay, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &httputil.RetryableError{Err: err}
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		return httputil.CheckStatus(resp.StatusCode)
	})
	if err != nil {
		return DeliveryResult{}, fmt.Errorf("submission failed: %w", err)
	}
	return DeliveryResult{Location: s.URL, Delivered: true}, nil
}
