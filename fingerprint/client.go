// Package fingerprint talks to the upload service and the external media
// analysis service. It keeps no state between calls.
package fingerprint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"credify/apperr"
	"credify/models"

	"github.com/sirupsen/logrus"
)

// maxErrorBody bounds how much of an upstream error body is kept.
const maxErrorBody = 2048

// Options configures per-call timeouts.
type Options struct {
	DescribeTimeout    time.Duration
	FingerprintTimeout time.Duration
	ForgeryTimeout     time.Duration
	HTTPClient         *http.Client
	Logger             logrus.FieldLogger
}

// Client calls the upload service (to describe files) and the analysis
// service (to fingerprint them and detect forgery).
type Client struct {
	baseURL   string
	uploadURL string
	http      *http.Client
	opts      Options
	log       logrus.FieldLogger
}

// New returns a Client for the analysis service at baseURL, resolving
// content ids against uploadURL.
func New(baseURL, uploadURL string, opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		uploadURL: strings.TrimRight(uploadURL, "/"),
		http:      hc,
		opts:      opts,
		log:       log,
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// Describe resolves contentID to a fetchable URL and classifies it.
func (c *Client) Describe(ctx context.Context, contentID string) (models.ContentInfo, error) {
	const op = "fingerprint.Describe"
	if strings.TrimSpace(contentID) == "" {
		return models.ContentInfo{}, apperr.Validation(op, "contentId is required")
	}
	ctx, cancel := withTimeout(ctx, c.opts.DescribeTimeout)
	defer cancel()

	contentURL := c.uploadURL + "/" + url.PathEscape(contentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, contentURL, nil)
	if err != nil {
		return models.ContentInfo{}, apperr.Wrap(apperr.InternalError, op, err, "could not build request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return models.ContentInfo{}, apperr.Wrap(apperr.ExternalServiceError, op, err, "upload service unreachable")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.ContentInfo{}, apperr.New(apperr.ExternalServiceError, op,
			fmt.Sprintf("failed to fetch content type: %s", resp.Status))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	filename := FilenameFromDisposition(resp.Header.Get("Content-Disposition"))
	endpoint := "fingerprint"
	if strings.HasPrefix(strings.ToLower(contentType), "image/") {
		endpoint = "verify_image"
	}

	info := models.ContentInfo{
		ContentID:   contentID,
		URL:         contentURL,
		ContentType: contentType,
		Filename:    filename,
		MediaType:   Classify(contentType, filename),
		Endpoint:    endpoint,
	}
	c.log.WithFields(logrus.Fields{
		"contentId":   contentID,
		"contentType": contentType,
		"endpoint":    endpoint,
	}).Debug("[Fingerprint] described content")
	return info, nil
}

type hashResponse struct {
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type hashResult struct {
	ImageHash           string `json:"image_hash"`
	VideoHash           string `json:"video_hash"`
	CollectiveAudioHash string `json:"collective_audio_hash"`
}

// Fingerprint asks the analysis service for the content hash of info.
// The raw result object is returned alongside the hash.
func (c *Client) Fingerprint(ctx context.Context, info models.ContentInfo) (models.Fingerprint, error) {
	const op = "fingerprint.Fingerprint"
	if info.URL == "" || info.Endpoint == "" {
		return models.Fingerprint{}, apperr.Validation(op, "content url and endpoint are required")
	}
	ctx, cancel := withTimeout(ctx, c.opts.FingerprintTimeout)
	defer cancel()

	var body hashResponse
	if err := c.postJSON(ctx, op, c.baseURL+"/"+info.Endpoint, map[string]string{"url": info.URL}, &body); err != nil {
		return models.Fingerprint{}, err
	}
	if len(body.Result) == 0 || string(body.Result) == "null" {
		return models.Fingerprint{}, apperr.New(apperr.ExternalServiceError, op, "no result returned")
	}

	var hashes hashResult
	if err := json.Unmarshal(body.Result, &hashes); err != nil {
		return models.Fingerprint{}, apperr.Wrap(apperr.ExternalServiceError, op, err, "malformed result")
	}
	hash := hashes.ImageHash
	if hash == "" {
		hash = hashes.VideoHash
	}
	if hash == "" {
		return models.Fingerprint{}, apperr.New(apperr.ExternalServiceError, op, "no hash returned")
	}
	return models.Fingerprint{Hash: hash, Result: body.Result}, nil
}

// Hashes pulls the individual hashes back out of a stored result.
func Hashes(result json.RawMessage) (image, video, audio string) {
	var h hashResult
	if err := json.Unmarshal(result, &h); err != nil {
		return "", "", ""
	}
	return h.ImageHash, h.VideoHash, h.CollectiveAudioHash
}

func (c *Client) postJSON(ctx context.Context, op, endpoint string, payload, dst any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return apperr.Wrap(apperr.InternalError, op, err, "could not encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return apperr.Wrap(apperr.InternalError, op, err, "could not build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.ExternalServiceError, op, err, "verification service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return apperr.New(apperr.ExternalServiceError, op,
			fmt.Sprintf("verification service error (%d): %s", resp.StatusCode, strings.TrimSpace(string(text))))
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return apperr.Wrap(apperr.ExternalServiceError, op, err, "malformed response")
	}
	return nil
}
