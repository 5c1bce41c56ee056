package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"credify/forgery"
	"credify/lineage"
	"credify/models"
	"credify/ratelim"
	"credify/statuscache"
	"credify/verification"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

type noLineage struct{}

func (noLineage) ResolveLineageTree(context.Context, string) (*models.Lineage, error) {
	return nil, nil
}

func newRouter(limit int) (*httprouter.Router, statuscache.Store) {
	log, _ := test.NewNullLogger()
	cache := statuscache.NewMemory(nil)
	orch := verification.New(verification.Deps{Cache: cache, Logger: log}, verification.Options{})
	svc := forgery.New(forgery.Deps{Cache: cache, Logger: log}, forgery.Options{})

	router := httprouter.New()
	RoutesWrapper(router, Handlers{
		Verification: verification.NewHandler(orch),
		StatusSocket: &verification.StatusSocket{Jobs: orch, Log: log},
		Forgery:      forgery.NewHandler(svc),
		Lineage:      lineage.NewHandler(lineage.NewResolver(noLineage{}), "https://credify.example"),
	}, ratelim.NewRateLimiter(limit, time.Hour))
	return router, cache
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	router, _ := newRouter(10)
	rec := get(router, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "200", rec.Body.String())
}

func TestStatusIsAPureRead(t *testing.T) {
	router, cache := newRouter(10)

	assert.Equal(t, http.StatusNotFound, get(router, "/api/content/status/file-1").Code)

	job := models.VerificationJob{ContentID: "file-1", Status: models.StatusCompleted, ContentHash: "abc123"}
	assert.NoError(t, statuscache.SetJSON(context.Background(), cache, statuscache.VerificationKey("file-1"), job, time.Hour))

	rec := get(router, "/api/content/status/file-1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"contentHash":"abc123"`)
}

func TestVerifyRequiresAuth(t *testing.T) {
	router, _ := newRouter(10)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/content/verify", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLineageMissing(t *testing.T) {
	router, _ := newRouter(10)
	assert.Equal(t, http.StatusNotFound, get(router, "/api/content/get-lineage/abc123").Code)
}

func TestContentRoutesAreRateLimited(t *testing.T) {
	router, _ := newRouter(2)
	get(router, "/api/content/status/a")
	get(router, "/api/content/status/b")

	rec := get(router, "/api/content/status/c")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Rate limit exceeded")

	assert.Equal(t, http.StatusOK, get(router, "/health").Code, "health is not limited")
}
