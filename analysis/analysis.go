// Package analysis produces the human-readable summary stored with newly
// verified content.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"credify/apperr"
	"credify/models"
)

// Analyzer summarizes a piece of content given its fingerprint result.
type Analyzer interface {
	Analyze(ctx context.Context, info models.ContentInfo, fp models.Fingerprint) (string, error)
}

// Nop is used when no analysis service is configured.
type Nop struct{}

func (Nop) Analyze(context.Context, models.ContentInfo, models.Fingerprint) (string, error) {
	return "", nil
}

// HTTPAnalyzer posts content to a summarization service.
type HTTPAnalyzer struct {
	URL     string
	Timeout time.Duration
	Client  *http.Client
}

type analyzeRequest struct {
	URL         string          `json:"url"`
	ContentType string          `json:"content_type"`
	Filename    string          `json:"filename,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

type analyzeResponse struct {
	Analysis string `json:"analysis"`
	Summary  string `json:"summary"`
}

// New picks the HTTP analyzer when url is set and Nop otherwise.
func New(url string, timeout time.Duration) Analyzer {
	if strings.TrimSpace(url) == "" {
		return Nop{}
	}
	return &HTTPAnalyzer{URL: url, Timeout: timeout, Client: &http.Client{}}
}

func (a *HTTPAnalyzer) Analyze(ctx context.Context, info models.ContentInfo, fp models.Fingerprint) (string, error) {
	const op = "analysis.Analyze"
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}

	raw, err := json.Marshal(analyzeRequest{
		URL:         info.URL,
		ContentType: info.ContentType,
		Filename:    info.Filename,
		Result:      fp.Result,
	})
	if err != nil {
		return "", apperr.Wrap(apperr.InternalError, op, err, "could not encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.URL, bytes.NewReader(raw))
	if err != nil {
		return "", apperr.Wrap(apperr.InternalError, op, err, "could not build request")
	}
	req.Header.Set("Content-Type", "application/json")

	client := a.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", apperr.Wrap(apperr.ExternalServiceError, op, err, "analysis service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", apperr.New(apperr.ExternalServiceError, op,
			fmt.Sprintf("analysis service error (%d): %s", resp.StatusCode, strings.TrimSpace(string(text))))
	}

	var out analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperr.Wrap(apperr.ExternalServiceError, op, err, "malformed analysis response")
	}
	if out.Analysis != "" {
		return out.Analysis, nil
	}
	return out.Summary, nil
}
