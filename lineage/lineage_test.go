package lineage

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"credify/apperr"
	"credify/models"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource map[string]*models.Lineage

func (s staticSource) ResolveLineageTree(_ context.Context, hash string) (*models.Lineage, error) {
	return s[hash], nil
}

func abc123() staticSource {
	return staticSource{"abc123": {
		VerificationResult: json.RawMessage(`{"image_hash":"abc123"}`),
		UploaderHierarchy: &models.UploaderTree{
			ContentHash:     "abc123",
			FirstUploaderID: "u1",
			Uploaders: []*models.UserNode{
				{UserID: "u1", Children: []*models.UserNode{}},
				{UserID: "u2", Children: []*models.UserNode{}},
			},
		},
	}}
}

func router(h *Handler) *httprouter.Router {
	r := httprouter.New()
	r.GET("/api/content/get-lineage/:hash", h.GetLineage)
	r.GET("/api/content/share/:hash/qr", h.ShareQR)
	return r
}

func TestGetLineageValidates(t *testing.T) {
	_, err := NewResolver(staticSource{}).GetLineage(context.Background(), " ")
	assert.True(t, apperr.Is(err, apperr.ValidationError))
}

func TestGetLineageHandler(t *testing.T) {
	h := NewHandler(NewResolver(abc123()), "https://credify.example/")

	rec := httptest.NewRecorder()
	router(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/content/get-lineage/abc123", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"verificationResult": {"image_hash":"abc123"},
		"uploaderHierarchy": {
			"contentHash": "abc123",
			"firstUploaderId": "u1",
			"uploaders": [{"userId":"u1","children":[]},{"userId":"u2","children":[]}]
		}
	}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/content/get-lineage/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShareQR(t *testing.T) {
	h := NewHandler(NewResolver(abc123()), "https://credify.example/")

	rec := httptest.NewRecorder()
	router(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/content/share/abc123/qr", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())

	rec = httptest.NewRecorder()
	router(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/content/share/nope/qr", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
