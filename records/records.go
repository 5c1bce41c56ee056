// Package records stores the durable VerifiedContent documents that back
// the UI. The graph only knows relationships; these carry the metadata.
package records

import (
	"context"
	"errors"
	"time"

	"credify/apperr"
	"credify/models"
	"credify/retry"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrRecordNotFound means no record exists yet for a (userId, contentId).
var ErrRecordNotFound = errors.New("verified content record not found")

// Store reads and writes VerifiedContent documents.
type Store struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewStore(coll *mongo.Collection) *Store {
	return &Store{coll: coll, now: time.Now}
}

// EnsureIndexes creates the indexes used by Ensure, Annotate and ListByUser.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "contentId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "verificationDate", Value: -1}}},
		{Keys: bson.D{{Key: "contentHash", Value: 1}}},
	})
	if err != nil {
		return apperr.Wrap(apperr.InternalError, "records.EnsureIndexes", err, "could not create indexes")
	}
	return nil
}

// Ensure stores rec unless a record for (rec.UserID, rec.ContentID)
// already exists, and returns the stored copy either way. A new record gets
// a fresh id.
func (s *Store) Ensure(ctx context.Context, rec models.VerifiedContent) (models.VerifiedContent, error) {
	const op = "records.Ensure"
	if rec.ContentHash == "" || rec.UserID == "" || rec.ContentID == "" {
		return models.VerifiedContent{}, apperr.Validation(op, "contentHash, userId and contentId are required")
	}
	rec.ID = uuid.NewString()
	if rec.VerificationDate.IsZero() {
		rec.VerificationDate = s.now().UTC()
	}
	onInsert, err := insertFields(rec)
	if err != nil {
		return models.VerifiedContent{}, apperr.Wrap(apperr.InternalError, op, err, "could not encode verified content")
	}

	filter := bson.M{"userId": rec.UserID, "contentId": rec.ContentID}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var stored models.VerifiedContent
	err = s.coll.FindOneAndUpdate(ctx, filter, bson.M{"$setOnInsert": onInsert}, opts).Decode(&stored)
	if err != nil {
		return models.VerifiedContent{}, apperr.Wrap(apperr.InternalError, op, err, "could not store verified content")
	}
	return stored, nil
}

// insertFields is rec as a document without the filter keys, which the
// upsert copies from the filter itself.
func insertFields(rec models.VerifiedContent) (bson.M, error) {
	raw, err := bson.Marshal(rec)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	delete(doc, "userId")
	delete(doc, "contentId")
	return doc, nil
}

// Annotate merges a forgery verdict into the record for (userID,
// contentID). A missing record is reported as not ready so the caller can
// wait for a concurrent Ensure to land.
func (s *Store) Annotate(ctx context.Context, userID, contentID string, ann models.ManipulationAnnotation) error {
	const op = "records.Annotate"
	if userID == "" || contentID == "" {
		return apperr.Validation(op, "userId and contentId are required")
	}
	filter := bson.M{"userId": userID, "contentId": contentID}
	update := bson.M{"$set": bson.M{
		"isManipulated":           ann.IsManipulated,
		"manipulationProbability": ann.ManipulationProbability,
		"detectionMethods":        ann.DetectionMethods,
	}}
	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return apperr.Wrap(apperr.InternalError, op, err, "could not annotate verified content")
	}
	if res.MatchedCount == 0 {
		return retry.NotReady(ErrRecordNotFound)
	}
	return nil
}

// ListByUser returns the user's records, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int64) ([]models.VerifiedContent, error) {
	const op = "records.ListByUser"
	if userID == "" {
		return nil, apperr.Validation(op, "userId is required")
	}
	findOptions := options.Find().SetSort(bson.D{{Key: "verificationDate", Value: -1}})
	if limit > 0 {
		findOptions.SetLimit(limit)
	}

	cursor, err := s.coll.Find(ctx, bson.M{"userId": userID}, findOptions)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, op, err, "could not list verified content")
	}
	defer cursor.Close(ctx)

	out := []models.VerifiedContent{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, apperr.Wrap(apperr.InternalError, op, err, "could not decode verified content")
	}
	return out, nil
}
