package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"credify/apperr"
	"credify/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithoutURLIsNop(t *testing.T) {
	a := New("  ", time.Second)
	_, ok := a.(Nop)
	require.True(t, ok)

	text, err := a.Analyze(context.Background(), models.ContentInfo{}, models.Fingerprint{})
	assert.NoError(t, err)
	assert.Empty(t, text)
}

func TestHTTPAnalyzer(t *testing.T) {
	svc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req analyzeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "http://files/1", req.URL)
		assert.Equal(t, "image/png", req.ContentType)
		_, _ = w.Write([]byte(`{"analysis":"A photo of a cat."}`))
	}))
	defer svc.Close()

	text, err := New(svc.URL, time.Second).Analyze(context.Background(),
		models.ContentInfo{URL: "http://files/1", ContentType: "image/png"},
		models.Fingerprint{Hash: "h", Result: json.RawMessage(`{"image_hash":"h"}`)})
	require.NoError(t, err)
	assert.Equal(t, "A photo of a cat.", text)
}

func TestHTTPAnalyzerFailure(t *testing.T) {
	svc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer svc.Close()

	_, err := New(svc.URL, time.Second).Analyze(context.Background(), models.ContentInfo{}, models.Fingerprint{})
	assert.True(t, apperr.Is(err, apperr.ExternalServiceError))
}
