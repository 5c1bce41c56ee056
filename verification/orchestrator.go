// Package verification drives a verification job from the first request
// for an uploaded file to a terminal status in the status cache.
package verification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"credify/analysis"
	"credify/apperr"
	"credify/fingerprint"
	"credify/graph"
	"credify/models"
	"credify/mq"
	"credify/retry"
	"credify/statuscache"

	"github.com/sirupsen/logrus"
)

// GraphStore is the part of the graph client the orchestrator needs.
type GraphStore interface {
	FindVerificationForUser(ctx context.Context, contentHash, userID string) (graph.Lookup, error)
	AddUploader(ctx context.Context, contentHash, userID string) error
	UpsertContentAndLink(ctx context.Context, contentHash string, verificationResult json.RawMessage, userID string) error
}

// Fingerprinter resolves and hashes uploaded files.
type Fingerprinter interface {
	Describe(ctx context.Context, contentID string) (models.ContentInfo, error)
	Fingerprint(ctx context.Context, info models.ContentInfo) (models.Fingerprint, error)
}

// RecordStore persists verified content records. Ensure is keyed by
// (userId, contentId) and leaves an existing record untouched.
type RecordStore interface {
	Ensure(ctx context.Context, rec models.VerifiedContent) (models.VerifiedContent, error)
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Graph        GraphStore
	Fingerprints Fingerprinter
	Analyzer     analysis.Analyzer
	Records      RecordStore
	Cache        statuscache.Store
	Publisher    mq.Publisher
	Logger       logrus.FieldLogger
}

// Options tune job lifetime and the graph write retry.
type Options struct {
	StatusTTL  time.Duration
	JobTimeout time.Duration
	GraphWrite retry.Policy
	Now        func() time.Time
}

// Orchestrator runs verification jobs in the background. At most one job
// per contentId runs at a time in this process.
type Orchestrator struct {
	deps Deps
	opts Options
	log  logrus.FieldLogger

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup

	baseCtx context.Context
	cancel  context.CancelFunc
}

func New(deps Deps, opts Options) *Orchestrator {
	if deps.Analyzer == nil {
		deps.Analyzer = analysis.Nop{}
	}
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
	if opts.GraphWrite.Logger == nil {
		opts.GraphWrite.Logger = log
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		deps:     deps,
		opts:     opts,
		log:      log,
		inflight: make(map[string]struct{}),
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// Status returns the cached job for contentID.
func (o *Orchestrator) Status(ctx context.Context, contentID string) (models.VerificationJob, bool, error) {
	var job models.VerificationJob
	ok, err := statuscache.GetJSON(ctx, o.deps.Cache, statuscache.VerificationKey(contentID), &job)
	if err != nil {
		return models.VerificationJob{}, false, apperr.Wrap(apperr.InternalError, "verification.Status", err, "could not read job status")
	}
	return job, ok, nil
}

// StartVerification seeds a pending job for contentID and starts it in the
// background. It returns the job as cached when the call returns.
//
// A job that is already pending, or finished with anything but an error,
// is returned unchanged. An anonymous not_found result is re-run when an
// authenticated user asks.
func (o *Orchestrator) StartVerification(ctx context.Context, contentID, userID string) (models.VerificationJob, error) {
	contentID = strings.TrimSpace(contentID)
	if contentID == "" {
		return models.VerificationJob{}, apperr.Validation("verification.StartVerification", "contentId is required")
	}

	if !o.claim(contentID) {
		current, found, err := o.Status(ctx, contentID)
		if err != nil {
			return models.VerificationJob{}, err
		}
		if found {
			return current, nil
		}
		return o.pendingJob(contentID, userID), nil
	}

	// The claim is held from here on, so no other run can move the cached
	// job while it is read and reseeded.
	current, found, err := o.Status(ctx, contentID)
	if err != nil {
		o.release(contentID)
		return models.VerificationJob{}, err
	}
	if found && !o.shouldRestart(current, userID) {
		o.release(contentID)
		return current, nil
	}

	job := o.pendingJob(contentID, userID)
	if err := o.store(ctx, job); err != nil {
		o.release(contentID)
		return models.VerificationJob{}, err
	}
	go o.run(job)

	return job, nil
}

// claim marks contentID as running. It reports false when a run already
// holds it.
func (o *Orchestrator) claim(contentID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, running := o.inflight[contentID]; running {
		return false
	}
	o.inflight[contentID] = struct{}{}
	o.wg.Add(1)
	return true
}

func (o *Orchestrator) release(contentID string) {
	o.mu.Lock()
	delete(o.inflight, contentID)
	o.mu.Unlock()
	o.wg.Done()
}

func (o *Orchestrator) shouldRestart(job models.VerificationJob, userID string) bool {
	switch job.Status {
	case models.StatusError:
		return true
	case models.StatusNotFound:
		return userID != ""
	}
	return false
}

func (o *Orchestrator) pendingJob(contentID, userID string) models.VerificationJob {
	now := o.opts.Now().UTC()
	return models.VerificationJob{
		ContentID: contentID,
		UserID:    userID,
		Status:    models.StatusPending,
		Message:   "Verification started",
		StartedAt: now,
		UpdatedAt: now,
	}
}

func (o *Orchestrator) store(ctx context.Context, job models.VerificationJob) error {
	if err := statuscache.SetJSON(ctx, o.deps.Cache, statuscache.VerificationKey(job.ContentID), job, o.opts.StatusTTL); err != nil {
		return apperr.Wrap(apperr.InternalError, "verification.store", err, "could not write job status")
	}
	return nil
}

// Wait blocks until every running job has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Shutdown cancels running jobs and waits for them, or for ctx.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.cancel()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) run(job models.VerificationJob) {
	ctx, cancel := context.WithTimeout(o.baseCtx, o.opts.JobTimeout)
	log := o.log.WithFields(logrus.Fields{"contentId": job.ContentID, "userId": job.UserID})

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("[Verify] job panicked")
			o.finish(context.Background(), log, o.failed(job, apperr.New(apperr.InternalError, "verification.run", fmt.Sprint(r))))
		}
		cancel()
		o.release(job.ContentID)
	}()

	final := o.execute(ctx, log, job)
	// The status write must land even if the job context expired.
	o.finish(context.WithoutCancel(ctx), log, final)
}

func (o *Orchestrator) execute(ctx context.Context, log logrus.FieldLogger, job models.VerificationJob) models.VerificationJob {
	info, err := o.deps.Fingerprints.Describe(ctx, job.ContentID)
	if err != nil {
		return o.failedWith(log, job, err, "describe")
	}
	fp, err := o.deps.Fingerprints.Fingerprint(ctx, info)
	if err != nil {
		return o.failedWith(log, job, err, "fingerprint")
	}
	job.ContentHash = fp.Hash
	log = log.WithField("contentHash", fp.Hash)

	existing, err := o.deps.Graph.FindVerificationForUser(ctx, fp.Hash, job.UserID)
	if err != nil {
		return o.failedWith(log, job, err, "check_existing")
	}
	if existing.Found {
		switch {
		case job.UserID == "":
		case !existing.UserLinked:
			if err := o.deps.Graph.AddUploader(ctx, fp.Hash, job.UserID); err != nil {
				return o.failedWith(log, job, err, "add_uploader")
			}
			log.Info("[Verify] linked new uploader to existing content")
		default:
			// An earlier run may have linked this user and failed before
			// its record was written.
			rec, err := o.deps.Records.Ensure(ctx, recordFor(job, info, fp, ""))
			if err != nil {
				return o.failedWith(log, job, err, "store_record")
			}
			job.RecordID = rec.ID
		}
		job.Status = models.StatusFound
		job.Message = "Content already verified"
		job.VerificationResult = existing.VerificationResult
		job.CreatorsID = existing.FirstUploaderID
		return job
	}
	if job.UserID == "" {
		job.Status = models.StatusNotFound
		job.Message = "Content has not been verified yet"
		return job
	}

	summary, err := o.deps.Analyzer.Analyze(ctx, info, fp)
	if err != nil {
		return o.failedWith(log, job, err, "compute_analysis")
	}

	outcome, err := o.opts.GraphWrite.Do(ctx, "graph.UpsertContentAndLink", func(ctx context.Context) error {
		err := o.deps.Graph.UpsertContentAndLink(ctx, fp.Hash, fp.Result, job.UserID)
		if graph.IsTransient(err) {
			return retry.NotReady(err)
		}
		return err
	})
	if err == nil && outcome == retry.Exhausted {
		err = apperr.New(apperr.QueryError, "verification.store", "graph write did not complete")
	}
	if err != nil {
		return o.failedWith(log, job, err, "store_graph")
	}

	rec, err := o.deps.Records.Ensure(ctx, recordFor(job, info, fp, summary))
	if err != nil {
		return o.failedWith(log, job, err, "store_record")
	}

	job.Status = models.StatusCompleted
	job.Message = "Content verified"
	job.VerificationResult = fp.Result
	job.CreatorsID = job.UserID
	job.RecordID = rec.ID
	job.Analysis = summary
	return job
}

func recordFor(job models.VerificationJob, info models.ContentInfo, fp models.Fingerprint, summary string) models.VerifiedContent {
	imageHash, videoHash, audioHash := fingerprint.Hashes(fp.Result)
	return models.VerifiedContent{
		ContentHash:         fp.Hash,
		ContentID:           job.ContentID,
		UserID:              job.UserID,
		ImageHash:           imageHash,
		VideoHash:           videoHash,
		CollectiveAudioHash: audioHash,
		MediaTitle:          info.Filename,
		MediaType:           string(info.MediaType),
		FactCheck:           summary,
	}
}

func (o *Orchestrator) failedWith(log logrus.FieldLogger, job models.VerificationJob, err error, step string) models.VerificationJob {
	log.WithFields(logrus.Fields{"step": step, "kind": apperr.KindOf(err)}).WithError(err).Error("[Verify] job failed")
	return o.failed(job, err)
}

func (o *Orchestrator) failed(job models.VerificationJob, err error) models.VerificationJob {
	job.Status = models.StatusError
	job.Message = apperr.PublicMessage(err)
	job.VerificationResult = nil
	return job
}

func (o *Orchestrator) finish(ctx context.Context, log logrus.FieldLogger, job models.VerificationJob) {
	job.UpdatedAt = o.opts.Now().UTC()
	if err := o.store(ctx, job); err != nil {
		log.WithError(err).Error("[Verify] could not record final status")
	}
	log.WithField("status", job.Status).Info("[Verify] job finished")
	mq.Emit(ctx, o.deps.Publisher, log, models.JobEvent{
		Pipeline:    "verification",
		ContentID:   job.ContentID,
		Status:      job.Status,
		ContentHash: job.ContentHash,
		UserID:      job.UserID,
		At:          job.UpdatedAt,
	})
}
