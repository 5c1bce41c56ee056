package routes

import (
	"fmt"
	"net/http"

	"credify/forgery"
	"credify/lineage"
	"credify/middleware"
	"credify/ratelim"
	"credify/records"
	"credify/verification"

	"github.com/julienschmidt/httprouter"
)

// Handlers groups everything the route table mounts.
type Handlers struct {
	Verification *verification.Handler
	StatusSocket *verification.StatusSocket
	Forgery      *forgery.Handler
	Lineage      *lineage.Handler
	Records      *records.Handler
}

// Index is a simple health check handler.
func Index(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	fmt.Fprint(w, "200")
}

func AddContentRoutes(router *httprouter.Router, h Handlers, rateLimiter *ratelim.RateLimiter) {
	router.GET("/api/content/analyze/:id", rateLimiter.Limit(middleware.OptionalAuth(h.Verification.Analyze)))
	router.POST("/api/content/verify", rateLimiter.Limit(middleware.Authenticate(h.Verification.Verify)))
	router.GET("/api/content/status/:id", rateLimiter.Limit(h.Verification.Status))
	router.GET("/api/content/status/:id/ws", rateLimiter.Limit(h.StatusSocket.Serve))

	router.GET("/api/content/detect-forgery/:id", rateLimiter.Limit(middleware.OptionalAuth(h.Forgery.DetectForgery)))

	router.GET("/api/content/get-lineage/:hash", rateLimiter.Limit(h.Lineage.GetLineage))
	router.GET("/api/content/share/:hash/qr", rateLimiter.Limit(h.Lineage.ShareQR))

	router.GET("/api/content/mine", rateLimiter.Limit(middleware.Authenticate(h.Records.Mine)))
}

// RoutesWrapper builds the full route table.
func RoutesWrapper(router *httprouter.Router, h Handlers, rateLimiter *ratelim.RateLimiter) {
	router.GET("/health", Index)
	AddContentRoutes(router, h, rateLimiter)
}
