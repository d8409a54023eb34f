package throttle

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps attempt counters in a collection keyed by identity.
// Incr is a single findOneAndUpdate with $inc, so concurrent failures
// serialize at the storage layer.
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(db *mongo.Database, coll string) *MongoStore {
	return &MongoStore{coll: db.Collection(coll)}
}

type attemptDoc struct {
	Identity    string    `bson:"_id"`
	Count       int       `bson:"count"`
	LockedUntil time.Time `bson:"locked_until,omitempty"`
}

func (s *MongoStore) Incr(ctx context.Context, identity string) (int, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)
	var d attemptDoc
	err := s.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": identity},
		bson.M{"$inc": bson.M{"count": 1}},
		opts,
	).Decode(&d)
	if err != nil {
		return 0, err
	}
	return d.Count, nil
}

func (s *MongoStore) Lock(ctx context.Context, identity string, until time.Time) error {
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": identity},
		bson.M{"$set": bson.M{"locked_until": until}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *MongoStore) Get(ctx context.Context, identity string) (*Attempt, error) {
	var d attemptDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": identity}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Attempt{Identity: d.Identity, Count: d.Count, LockedUntil: d.LockedUntil}, nil
}

func (s *MongoStore) Reset(ctx context.Context, identity string) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": identity})
	return err
}
