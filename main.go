package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"credify/analysis"
	"credify/config"
	"credify/db"
	"credify/fingerprint"
	"credify/forgery"
	"credify/globals"
	"credify/graph"
	"credify/lineage"
	"credify/mq"
	"credify/ratelim"
	"credify/rdx"
	"credify/records"
	"credify/retry"
	"credify/routes"
	"credify/statuscache"
	"credify/verification"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

// securityHeaders applies a set of recommended HTTP security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "frame-ancestors 'none'")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs each request method, path, remote address, and duration.
func loggingMiddleware(log logrus.FieldLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"remote":   r.RemoteAddr,
			"duration": time.Since(start).String(),
		}).Info("request")
	})
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	log := newLogger(cfg.LogLevel)
	globals.JwtSecret = []byte(cfg.JWTSecret)

	ctx := context.Background()

	// graph
	graphStore := graph.NewStore(func(ctx context.Context) (graph.Runner, error) {
		return graph.NewNeo4jExecutor(cfg.Neo4jURI, cfg.Neo4jUsername, cfg.Neo4jPassword, cfg.Neo4jDatabase, graph.PoolOptions{
			MaxConnectionPoolSize:        cfg.Neo4jMaxPoolSize,
			ConnectionAcquisitionTimeout: cfg.Neo4jAcquisitionTimeout,
		})
	}, log)
	if err := graphStore.Init(ctx); err != nil {
		log.WithError(err).Fatal("graph database unavailable")
	}

	// records
	mongo, err := db.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		log.WithError(err).Fatal("record store unavailable")
	}
	recordStore := records.NewStore(mongo.VerifiedContent)
	if err := recordStore.EnsureIndexes(ctx); err != nil {
		log.WithError(err).Warn("could not create record indexes")
	}

	// status cache and events
	var (
		cache     statuscache.Store
		publisher mq.Publisher = mq.Nop{}
		memory    *statuscache.Memory
	)
	if cfg.RedisURL != "" {
		redisClient, err := rdx.NewClient(ctx, cfg.RedisURL, cfg.RedisPassword)
		if err != nil {
			log.WithError(err).Fatal("redis unavailable")
		}
		defer redisClient.Close()
		publisher = mq.NewRedisPublisher(redisClient)
		if cfg.CacheBackend == "redis" {
			cache = rdx.NewStatusStore(redisClient)
		}
	}
	if cache == nil {
		memory = statuscache.NewMemory(nil)
		memory.StartJanitor(cfg.CacheCheckPeriod)
		cache = memory
	}

	fingerprints := fingerprint.New(cfg.VerificationServiceURL, cfg.UploadServiceURL, fingerprint.Options{
		DescribeTimeout:    cfg.DescribeTimeout,
		FingerprintTimeout: cfg.FingerprintTimeout,
		ForgeryTimeout:     cfg.ForgeryTimeout,
		Logger:             log,
	})

	orchestrator := verification.New(verification.Deps{
		Graph:        graphStore,
		Fingerprints: fingerprints,
		Analyzer:     analysis.New(cfg.AnalysisServiceURL, cfg.AnalysisTimeout),
		Records:      recordStore,
		Cache:        cache,
		Publisher:    publisher,
		Logger:       log.WithField("pipeline", "verification"),
	}, verification.Options{
		StatusTTL:  cfg.StatusTTL,
		JobTimeout: cfg.DescribeTimeout + cfg.FingerprintTimeout + cfg.AnalysisTimeout + time.Minute,
		GraphWrite: retry.Policy{MaxAttempts: cfg.GraphWriteMaxAttempts, Delay: cfg.GraphWriteDelay},
	})

	detector := forgery.New(forgery.Deps{
		Detector:  fingerprints,
		Records:   recordStore,
		Cache:     cache,
		Publisher: publisher,
		Logger:    log.WithField("pipeline", "forgery_detection"),
	}, forgery.Options{
		StatusTTL:  cfg.StatusTTL,
		JobTimeout: cfg.DescribeTimeout + cfg.ForgeryTimeout + time.Minute,
		Annotate:   retry.Policy{MaxAttempts: cfg.AnnotateMaxAttempts, Delay: cfg.AnnotateDelay},
	})

	rateLimiter := ratelim.NewRateLimiter(cfg.RateLimitMaxRequests, cfg.RateLimitWindow)
	stopCleanup := make(chan struct{})
	rateLimiter.StartCleanup(cfg.RateLimitWindow, stopCleanup)

	router := httprouter.New()
	routes.RoutesWrapper(router, routes.Handlers{
		Verification: verification.NewHandler(orchestrator),
		StatusSocket: &verification.StatusSocket{Jobs: orchestrator, Interval: time.Second, Log: log},
		Forgery:      forgery.NewHandler(detector),
		Lineage:      lineage.NewHandler(lineage.NewResolver(graphStore), cfg.PublicBaseURL),
		Records:      records.NewHandler(recordStore),
	}, rateLimiter)

	// apply middleware: CORS → security headers → logging → router
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(router)

	handler := loggingMiddleware(log, securityHeaders(corsHandler))

	server := &http.Server{
		Addr:              cfg.Port,
		Handler:           handler,
		ReadTimeout:       7 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.Port).Info("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("ListenAndServe error")
		}
	}()

	// wait for interrupt or SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received; shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
	if err := orchestrator.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("verification jobs still running at exit")
	}
	if err := detector.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("forgery jobs still running at exit")
	}
	close(stopCleanup)
	if memory != nil {
		memory.Stop()
	}
	if err := graphStore.Close(shutdownCtx); err != nil {
		log.WithError(err).Warn("closing graph driver")
	}
	if err := mongo.Disconnect(shutdownCtx); err != nil {
		log.WithError(err).Warn("closing mongo client")
	}

	log.Info("server stopped cleanly")
}
