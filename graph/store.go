package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"credify/apperr"
	"credify/models"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/saulfrancisco-ruizacevedo/gocypher"
	"github.com/sirupsen/logrus"
)

// ErrTransient marks failures the driver classifies as safe to retry.
var ErrTransient = errors.New("transient graph failure")

// Dialer opens a Runner. It is called at most once per successful Init.
type Dialer func(ctx context.Context) (Runner, error)

// Lookup is what the graph knows about a content hash.
type Lookup struct {
	Found              bool
	VerificationResult json.RawMessage
	FirstUploaderID    string
	// UserLinked reports whether the user passed to FindVerificationForUser
	// already has an UPLOADED edge to the content.
	UserLinked bool
}

// Store is the process-wide graph client. The connection pool is opened
// lazily by Init and shared by every caller.
type Store struct {
	dial Dialer
	log  logrus.FieldLogger

	mu     sync.RWMutex
	runner Runner
}

// NewStore builds a Store that will open its pool with dial.
func NewStore(dial Dialer, log logrus.FieldLogger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{dial: dial, log: log}
}

var schemaStatements = []string{
	`CREATE CONSTRAINT content_hash_unique IF NOT EXISTS FOR (c:Content) REQUIRE c.contentHash IS UNIQUE`,
	`CREATE CONSTRAINT user_id_unique IF NOT EXISTS FOR (u:User) REQUIRE u.userId IS UNIQUE`,
}

// Init opens and verifies the connection pool and ensures the uniqueness
// constraints exist. Calling it again after success is a no-op.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runner != nil {
		return nil
	}
	if s.dial == nil {
		return apperr.New(apperr.ConnectionError, "graph.Init", "no graph dialer configured")
	}

	runner, err := s.dial(ctx)
	if err != nil {
		return apperr.Wrap(apperr.ConnectionError, "graph.Init", err, "could not create graph driver")
	}
	if err := runner.VerifyConnectivity(ctx); err != nil {
		_ = runner.Close(ctx)
		return apperr.Wrap(apperr.ConnectionError, "graph.Init", err, "graph database unreachable")
	}
	for _, stmt := range schemaStatements {
		if _, err := runner.RunQuery(ctx, stmt, nil); err != nil {
			_ = runner.Close(ctx)
			return apperr.Wrap(apperr.ConnectionError, "graph.Init", err, "could not apply graph schema")
		}
	}

	s.runner = runner
	s.log.Info("[Graph] connected to graph database")
	return nil
}

// EnsureConnection fails with a ConnectionError until Init has succeeded.
func (s *Store) EnsureConnection() error {
	_, err := s.current()
	return err
}

func (s *Store) current() (Runner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.runner == nil {
		return nil, apperr.New(apperr.ConnectionError, "graph", "graph connection not initialized")
	}
	return s.runner, nil
}

// Close releases the pool. A later Init opens a new one.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runner == nil {
		return nil
	}
	err := s.runner.Close(ctx)
	s.runner = nil
	return err
}

// RunQuery executes a write query and classifies failures.
func (s *Store) RunQuery(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	runner, err := s.current()
	if err != nil {
		return nil, err
	}
	res, err := runner.RunQuery(ctx, query, params)
	return res, classify("graph.RunQuery", err)
}

func (s *Store) readQuery(ctx context.Context, op, query string, params map[string]any) (*neo4j.EagerResult, error) {
	runner, err := s.current()
	if err != nil {
		return nil, err
	}
	res, err := runner.ReadQuery(ctx, query, params)
	return res, classify(op, err)
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if neo4j.IsConnectivityError(err) {
		return apperr.Wrap(apperr.ConnectionError, op, err, "graph database unreachable")
	}
	if neo4j.IsRetryable(err) {
		return apperr.Wrap(apperr.QueryError, op, fmt.Errorf("%w: %w", ErrTransient, err), "graph query failed")
	}
	return apperr.Wrap(apperr.QueryError, op, err, "graph query failed")
}

const upsertContentQuery = `
MERGE (c:Content {contentHash: $contentHash})
ON CREATE SET c.verificationResult = $verificationResult, c.createdAt = timestamp()
MERGE (u:User {userId: $userId})
MERGE (u)-[r:UPLOADED]->(c)
ON CREATE SET r.uploadedAt = timestamp()
SET u.lastUploadContentHash = $contentHash`

// UpsertContentAndLink merges the Content node, the User node and the
// UPLOADED edge between them in a single statement. Running it again with
// the same arguments changes nothing.
func (s *Store) UpsertContentAndLink(ctx context.Context, contentHash string, verificationResult json.RawMessage, userID string) error {
	if contentHash == "" || userID == "" {
		return apperr.Validation("graph.UpsertContentAndLink", "contentHash and userId are required")
	}
	if !json.Valid(verificationResult) {
		return apperr.Validation("graph.UpsertContentAndLink", "verificationResult must be valid JSON")
	}
	_, err := s.RunQuery(ctx, upsertContentQuery, map[string]any{
		"contentHash":        contentHash,
		"verificationResult": string(verificationResult),
		"userId":             userID,
	})
	return err
}

const addUploaderQuery = `
MATCH (c:Content {contentHash: $contentHash})
MERGE (u:User {userId: $userId})
MERGE (u)-[r:UPLOADED]->(c)
ON CREATE SET r.uploadedAt = timestamp()
SET u.lastUploadContentHash = $contentHash
RETURN count(r) AS linked`

// AddUploader links a user to an existing Content node.
func (s *Store) AddUploader(ctx context.Context, contentHash, userID string) error {
	if contentHash == "" || userID == "" {
		return apperr.Validation("graph.AddUploader", "contentHash and userId are required")
	}
	res, err := s.RunQuery(ctx, addUploaderQuery, map[string]any{
		"contentHash": contentHash,
		"userId":      userID,
	})
	if err != nil {
		return err
	}
	if len(res.Records) == 0 {
		return apperr.New(apperr.NotFoundError, "graph.AddUploader", "content not found")
	}
	linked, _ := res.Records[0].Get("linked")
	if n, ok := linked.(int64); ok && n == 0 {
		return apperr.New(apperr.NotFoundError, "graph.AddUploader", "content not found")
	}
	return nil
}

// FindVerification returns the stored verification result and the first
// uploader of contentHash.
func (s *Store) FindVerification(ctx context.Context, contentHash string) (Lookup, error) {
	return s.FindVerificationForUser(ctx, contentHash, "")
}

// FindVerificationForUser is FindVerification that also reports whether
// userID already uploaded the content.
func (s *Store) FindVerificationForUser(ctx context.Context, contentHash, userID string) (Lookup, error) {
	const op = "graph.FindVerification"
	if contentHash == "" {
		return Lookup{}, apperr.Validation(op, "contentHash is required")
	}

	query, params, err := gocypher.NewQueryBuilder().
		Match(
			gocypher.N("u", "User"),
			gocypher.R("r", "UPLOADED").To(),
			gocypher.N("c", "Content").WithProperties(map[string]interface{}{"contentHash": contentHash}),
		).
		Return("u", "r", "c").
		Build()
	if err != nil {
		return Lookup{}, apperr.Wrap(apperr.InternalError, op, err, "could not build query")
	}

	res, err := s.readQuery(ctx, op, query, params)
	if err != nil {
		return Lookup{}, err
	}
	return decodeUploads(contentHash, userID, res)
}

type upload struct {
	userID     string
	uploadedAt int64
}

func decodeUploads(contentHash, userID string, res *neo4j.EagerResult) (Lookup, error) {
	const op = "graph.FindVerification"
	if res == nil || len(res.Records) == 0 {
		return Lookup{}, nil
	}

	var (
		lookup  = Lookup{Found: true}
		uploads []upload
	)
	for _, rec := range res.Records {
		c, err := nodeValue(rec, "c")
		if err != nil {
			return Lookup{}, apperr.Wrap(apperr.ContentVerificationError, op, err, "unexpected content row for "+contentHash)
		}
		u, err := nodeValue(rec, "u")
		if err != nil {
			return Lookup{}, apperr.Wrap(apperr.ContentVerificationError, op, err, "unexpected uploader row for "+contentHash)
		}

		if lookup.VerificationResult == nil {
			raw, err := storedResult(c.Props["verificationResult"])
			if err != nil {
				return Lookup{}, apperr.Wrap(apperr.ContentVerificationError, op, err, "malformed verificationResult for "+contentHash)
			}
			lookup.VerificationResult = raw
		}

		uid, _ := u.Props["userId"].(string)
		if uid == "" {
			continue
		}
		var at int64
		if rv, ok := rec.Get("r"); ok {
			if rel, ok := rv.(neo4j.Relationship); ok {
				at, _ = rel.Props["uploadedAt"].(int64)
			}
		}
		uploads = append(uploads, upload{userID: uid, uploadedAt: at})
		if userID != "" && uid == userID {
			lookup.UserLinked = true
		}
	}

	sort.Slice(uploads, func(i, j int) bool {
		if uploads[i].uploadedAt != uploads[j].uploadedAt {
			return uploads[i].uploadedAt < uploads[j].uploadedAt
		}
		return uploads[i].userID < uploads[j].userID
	})
	if len(uploads) > 0 {
		lookup.FirstUploaderID = uploads[0].userID
	}
	return lookup, nil
}

func nodeValue(rec *neo4j.Record, key string) (neo4j.Node, error) {
	v, ok := rec.Get(key)
	if !ok {
		return neo4j.Node{}, fmt.Errorf("missing %q in result", key)
	}
	n, ok := v.(neo4j.Node)
	if !ok {
		return neo4j.Node{}, fmt.Errorf("%q is %T, not a node", key, v)
	}
	return n, nil
}

func storedResult(v any) (json.RawMessage, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("verificationResult is %T, not a string", v)
	}
	if !json.Valid([]byte(s)) {
		return nil, errors.New("verificationResult is not valid JSON")
	}
	return json.RawMessage(s), nil
}

const lineageQuery = `
MATCH (c:Content {contentHash: $contentHash})
OPTIONAL MATCH p = (:User)-[:UPLOADED*]->(c)
WITH c, collect([n IN nodes(p) WHERE n:User | n.userId]) AS chains
OPTIONAL MATCH (f:User)-[fr:UPLOADED]->(c)
WITH c, chains, f, fr
ORDER BY fr.uploadedAt ASC, f.userId ASC
RETURN c.verificationResult AS verificationResult, chains, collect(f.userId)[0] AS firstUploaderId`

// ResolveLineageTree collects every User-[:UPLOADED*]->Content path ending
// at contentHash and converts them into a forest keyed by user. It returns
// nil when no such content exists.
func (s *Store) ResolveLineageTree(ctx context.Context, contentHash string) (*models.Lineage, error) {
	const op = "graph.ResolveLineageTree"
	if contentHash == "" {
		return nil, apperr.Validation(op, "contentHash is required")
	}
	res, err := s.readQuery(ctx, op, lineageQuery, map[string]any{"contentHash": contentHash})
	if err != nil {
		return nil, err
	}
	if len(res.Records) == 0 {
		return nil, nil
	}
	rec := res.Records[0]

	var verification json.RawMessage
	if v, ok := rec.Get("verificationResult"); ok && v != nil {
		verification, err = storedResult(v)
		if err != nil {
			return nil, apperr.Wrap(apperr.ContentVerificationError, op, err, "malformed verificationResult for "+contentHash)
		}
	}

	chains, err := decodeChains(rec)
	if err != nil {
		return nil, apperr.Wrap(apperr.ContentVerificationError, op, err, "unexpected lineage rows for "+contentHash)
	}
	first, _ := rec.Get("firstUploaderId")
	firstID, _ := first.(string)

	return &models.Lineage{
		VerificationResult: verification,
		UploaderHierarchy: &models.UploaderTree{
			ContentHash:     contentHash,
			FirstUploaderID: firstID,
			Uploaders:       BuildForest(chains),
		},
	}, nil
}

func decodeChains(rec *neo4j.Record) ([][]string, error) {
	v, ok := rec.Get("chains")
	if !ok || v == nil {
		return nil, nil
	}
	rows, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("chains is %T, not a list", v)
	}
	chains := make([][]string, 0, len(rows))
	for _, row := range rows {
		items, ok := row.([]any)
		if !ok {
			return nil, fmt.Errorf("chain is %T, not a list", row)
		}
		chain := make([]string, 0, len(items))
		for _, item := range items {
			id, _ := item.(string)
			chain = append(chain, id)
		}
		chains = append(chains, chain)
	}
	return chains, nil
}

// IsTransient reports whether err is a graph failure worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
