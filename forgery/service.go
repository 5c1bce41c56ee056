// Package forgery runs manipulation detection for uploaded files. It is
// independent of the verification pipeline and caches under its own keys.
package forgery

import (
	"context"
	"strings"
	"sync"
	"time"

	"credify/apperr"
	"credify/fingerprint"
	"credify/models"
	"credify/mq"
	"credify/retry"
	"credify/statuscache"

	"github.com/sirupsen/logrus"
)

const failureMessage = "An error occurred during forgery detection"

// Detector describes uploads and runs the forgery model on them.
type Detector interface {
	Describe(ctx context.Context, contentID string) (models.ContentInfo, error)
	DetectForgery(ctx context.Context, info models.ContentInfo) (fingerprint.Verdict, error)
}

// Annotator merges a verdict into the user's stored record.
type Annotator interface {
	Annotate(ctx context.Context, userID, contentID string, ann models.ManipulationAnnotation) error
}

type Deps struct {
	Detector  Detector
	Records   Annotator
	Cache     statuscache.Store
	Publisher mq.Publisher
	Logger    logrus.FieldLogger
}

// Options tune job lifetime. Annotate bounds the wait for the record the
// verification pipeline writes.
type Options struct {
	StatusTTL  time.Duration
	JobTimeout time.Duration
	Annotate   retry.Policy
	Now        func() time.Time
}

// Service runs at most one detection per contentId at a time.
type Service struct {
	deps Deps
	opts Options
	log  logrus.FieldLogger

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup

	baseCtx context.Context
	cancel  context.CancelFunc
}

func New(deps Deps, opts Options) *Service {
	if deps.Publisher == nil {
		deps.Publisher = mq.Nop{}
	}
	log := deps.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	if opts.StatusTTL <= 0 {
		opts.StatusTTL = time.Hour
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 15 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Annotate.Logger == nil {
		opts.Annotate.Logger = log
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		deps:     deps,
		opts:     opts,
		log:      log,
		inflight: make(map[string]struct{}),
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// Status returns the cached detection result for contentID.
func (s *Service) Status(ctx context.Context, contentID string) (models.ForgeryDetectionResult, bool, error) {
	var res models.ForgeryDetectionResult
	ok, err := statuscache.GetJSON(ctx, s.deps.Cache, statuscache.ForgeryKey(contentID), &res)
	if err != nil {
		return models.ForgeryDetectionResult{}, false, apperr.Wrap(apperr.InternalError, "forgery.Status", err, "could not read detection status")
	}
	return res, ok, nil
}

// Start returns the cached result for contentID, seeding and launching a
// detection when there is none or the last one failed.
func (s *Service) Start(ctx context.Context, contentID, userID string) (models.ForgeryDetectionResult, error) {
	contentID = strings.TrimSpace(contentID)
	if contentID == "" {
		return models.ForgeryDetectionResult{}, apperr.Validation("forgery.Start", "contentId is required")
	}

	pending := models.ForgeryDetectionResult{
		ContentID: contentID,
		Status:    models.StatusPending,
		Message:   "Forgery detection started",
		UpdatedAt: s.opts.Now().UTC(),
	}

	if !s.claim(contentID) {
		current, found, err := s.Status(ctx, contentID)
		if err != nil {
			return models.ForgeryDetectionResult{}, err
		}
		if found {
			return current, nil
		}
		return pending, nil
	}

	current, found, err := s.Status(ctx, contentID)
	if err != nil {
		s.release(contentID)
		return models.ForgeryDetectionResult{}, err
	}
	if found && current.Status != models.StatusError {
		s.release(contentID)
		return current, nil
	}
	if err := s.store(ctx, pending); err != nil {
		s.release(contentID)
		return models.ForgeryDetectionResult{}, err
	}
	go s.run(contentID, userID)
	return pending, nil
}

// claim marks contentID as running. It reports false when a detection
// already holds it.
func (s *Service) claim(contentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, running := s.inflight[contentID]; running {
		return false
	}
	s.inflight[contentID] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Service) release(contentID string) {
	s.mu.Lock()
	delete(s.inflight, contentID)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Service) store(ctx context.Context, res models.ForgeryDetectionResult) error {
	if err := statuscache.SetJSON(ctx, s.deps.Cache, statuscache.ForgeryKey(res.ContentID), res, s.opts.StatusTTL); err != nil {
		return apperr.Wrap(apperr.InternalError, "forgery.store", err, "could not write detection status")
	}
	return nil
}

// Wait blocks until every running detection has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Shutdown cancels running detections and waits for them, or for ctx.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) run(contentID, userID string) {
	ctx, cancel := context.WithTimeout(s.baseCtx, s.opts.JobTimeout)
	log := s.log.WithFields(logrus.Fields{"contentId": contentID, "userId": userID})
	defer func() {
		cancel()
		s.release(contentID)
	}()

	res := s.detect(ctx, log, contentID, userID)
	res.UpdatedAt = s.opts.Now().UTC()

	done := context.WithoutCancel(ctx)
	if err := s.store(done, res); err != nil {
		log.WithError(err).Error("[Forgery] could not record final status")
	}
	log.WithFields(logrus.Fields{"status": res.Status, "isManipulated": res.IsManipulated}).Info("[Forgery] detection finished")
	mq.Emit(done, s.deps.Publisher, log, models.JobEvent{
		Pipeline:  "forgery_detection",
		ContentID: contentID,
		Status:    res.Status,
		UserID:    userID,
		At:        res.UpdatedAt,
	})
}

func (s *Service) detect(ctx context.Context, log logrus.FieldLogger, contentID, userID string) models.ForgeryDetectionResult {
	res := models.ForgeryDetectionResult{ContentID: contentID, ContentType: models.MediaUnknown}

	info, err := s.deps.Detector.Describe(ctx, contentID)
	if err != nil {
		log.WithError(err).Error("[Forgery] could not describe content")
		res.Status = models.StatusError
		res.Message = failureMessage
		return res
	}
	if info.MediaType != models.MediaImage && info.MediaType != models.MediaVideo {
		res.Status = models.StatusError
		res.Message = "Unsupported file type: " + fingerprint.Extension(info.Filename)
		return res
	}
	res.ContentType = info.MediaType

	verdict, err := s.deps.Detector.DetectForgery(ctx, info)
	if err != nil {
		log.WithError(err).Error("[Forgery] detection failed")
		res.Status = models.StatusError
		res.Message = failureMessage
		return res
	}

	res.Status = models.StatusCompleted
	res.IsManipulated = verdict.IsManipulated
	res.ManipulationProbability = verdict.ManipulationProbability
	res.DetectionMethods = verdict.DetectionMethods

	if userID != "" && s.deps.Records != nil {
		s.annotate(ctx, log, contentID, userID, verdict)
	}
	return res
}

// annotate is best-effort: the verdict is already cached for the caller.
func (s *Service) annotate(ctx context.Context, log logrus.FieldLogger, contentID, userID string, v fingerprint.Verdict) {
	ann := models.ManipulationAnnotation{
		IsManipulated:           v.IsManipulated,
		ManipulationProbability: v.ManipulationProbability,
		DetectionMethods:        v.DetectionMethods,
	}
	outcome, err := s.opts.Annotate.Do(ctx, "records.Annotate", func(ctx context.Context) error {
		return s.deps.Records.Annotate(ctx, userID, contentID, ann)
	})
	if err != nil {
		log.WithError(err).Warn("[Forgery] could not annotate record")
		return
	}
	log.WithField("outcome", outcome.String()).Debug("[Forgery] record annotation")
}
