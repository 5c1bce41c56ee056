package records

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"credify/globals"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestMine(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("requires a user", func(mt *mtest.T) {
		rec := httptest.NewRecorder()
		NewHandler(NewStore(mt.Coll)).Mine(rec, httptest.NewRequest(http.MethodGet, "/api/content/mine", nil), nil)
		assert.Equal(mt, http.StatusUnauthorized, rec.Code)
	})

	mt.Run("lists the caller's records", func(mt *mtest.T) {
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "r1"}, {Key: "contentHash", Value: "abc123"}, {Key: "contentId", Value: "f1"}, {Key: "userId", Value: "u1"}},
		))

		req := httptest.NewRequest(http.MethodGet, "/api/content/mine?limit=10", nil)
		req = req.WithContext(context.WithValue(req.Context(), globals.UserIDKey, "u1"))
		rec := httptest.NewRecorder()
		NewHandler(NewStore(mt.Coll)).Mine(rec, req, nil)

		assert.Equal(mt, http.StatusOK, rec.Code)
		assert.Contains(mt, rec.Body.String(), `"contentHash":"abc123"`)
	})
}
