package verification

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"credify/graph"
	"credify/models"
)

// memGraph is an in-memory stand-in for the graph with MERGE semantics.
type memGraph struct {
	mu       sync.Mutex
	content  map[string]json.RawMessage
	edges    map[string][]string // contentHash -> userIds in upload order
	upserts  int
	failNext []error
}

func newMemGraph() *memGraph {
	return &memGraph{content: map[string]json.RawMessage{}, edges: map[string][]string{}}
}

func (g *memGraph) link(hash, userID string) {
	for _, u := range g.edges[hash] {
		if u == userID {
			return
		}
	}
	g.edges[hash] = append(g.edges[hash], userID)
}

func (g *memGraph) FindVerificationForUser(_ context.Context, hash, userID string) (graph.Lookup, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	result, ok := g.content[hash]
	if !ok {
		return graph.Lookup{}, nil
	}
	l := graph.Lookup{Found: true, VerificationResult: result}
	if users := g.edges[hash]; len(users) > 0 {
		l.FirstUploaderID = users[0]
	}
	for _, u := range g.edges[hash] {
		if u == userID {
			l.UserLinked = true
		}
	}
	return l, nil
}

func (g *memGraph) AddUploader(_ context.Context, hash, userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.content[hash]; !ok {
		return fmt.Errorf("content %s missing", hash)
	}
	g.link(hash, userID)
	return nil
}

func (g *memGraph) UpsertContentAndLink(_ context.Context, hash string, result json.RawMessage, userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.upserts++
	if len(g.failNext) > 0 {
		err := g.failNext[0]
		g.failNext = g.failNext[1:]
		return err
	}
	if _, ok := g.content[hash]; !ok {
		g.content[hash] = result
	}
	g.link(hash, userID)
	return nil
}

func (g *memGraph) uploaders(hash string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := append([]string(nil), g.edges[hash]...)
	sort.Strings(out)
	return out
}

func (g *memGraph) nodeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.content)
}

// stubFingerprints maps content ids to hashes.
type stubFingerprints struct {
	mu     sync.Mutex
	hashes map[string]string
	gate   chan struct{}
	calls  int
}

func (f *stubFingerprints) Describe(_ context.Context, contentID string) (models.ContentInfo, error) {
	return models.ContentInfo{
		ContentID:   contentID,
		URL:         "http://files/" + contentID,
		ContentType: "image/png",
		Filename:    contentID + ".png",
		MediaType:   models.MediaImage,
		Endpoint:    "verify_image",
	}, nil
}

func (f *stubFingerprints) Fingerprint(ctx context.Context, info models.ContentInfo) (models.Fingerprint, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	hash, ok := f.hashes[info.ContentID]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return models.Fingerprint{}, ctx.Err()
		}
	}
	if !ok {
		return models.Fingerprint{}, fmt.Errorf("no hash for %s", info.ContentID)
	}
	return models.Fingerprint{Hash: hash, Result: json.RawMessage(`{"image_hash":"` + hash + `"}`)}, nil
}

func (f *stubFingerprints) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type countingAnalyzer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (a *countingAnalyzer) Analyze(context.Context, models.ContentInfo, models.Fingerprint) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		return "", a.err
	}
	return "looks authentic", nil
}

func (a *countingAnalyzer) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// memRecords keeps one record per (userId, contentId).
type memRecords struct {
	mu       sync.Mutex
	recs     []models.VerifiedContent
	calls    int
	failNext []error
}

func (m *memRecords) Ensure(_ context.Context, rec models.VerifiedContent) (models.VerifiedContent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.failNext) > 0 {
		err := m.failNext[0]
		m.failNext = m.failNext[1:]
		return models.VerifiedContent{}, err
	}
	for _, existing := range m.recs {
		if existing.UserID == rec.UserID && existing.ContentID == rec.ContentID {
			return existing, nil
		}
	}
	rec.ID = fmt.Sprintf("rec-%d", len(m.recs)+1)
	rec.VerificationDate = time.Unix(0, 0).UTC()
	m.recs = append(m.recs, rec)
	return rec, nil
}

func (m *memRecords) all() []models.VerifiedContent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.VerifiedContent(nil), m.recs...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.JobEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e models.JobEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) all() []models.JobEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.JobEvent(nil), p.events...)
}
