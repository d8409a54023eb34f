package session

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(db *mongo.Database, coll string) *MongoStore {
	return &MongoStore{coll: db.Collection(coll)}
}

type sessionDoc struct {
	Token     string    `bson:"_id"`
	CSRFToken string    `bson:"csrf_token"`
	Expires   time.Time `bson:"expires"`
	UserID    string    `bson:"user_id"`
}

func (s *MongoStore) Put(ctx context.Context, sess *Session) error {
	_, err := s.coll.InsertOne(ctx, sessionDoc{
		Token:     sess.Token,
		CSRFToken: sess.CSRFToken,
		Expires:   sess.Expires,
		UserID:    sess.UserID,
	})
	return err
}

func (s *MongoStore) Get(ctx context.Context, token string) (*Session, error) {
	var d sessionDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": token}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &Session{Token: d.Token, CSRFToken: d.CSRFToken, Expires: d.Expires, UserID: d.UserID}, nil
}

func (s *MongoStore) Delete(ctx context.Context, token string) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": token})
	return err
}

func (s *MongoStore) DeleteByUser(ctx context.Context, userID, keepToken string) error {
	filter := bson.M{"user_id": userID}
	if keepToken != "" {
		filter["_id"] = bson.M{"$ne": keepToken}
	}
	_, err := s.coll.DeleteMany(ctx, filter)
	return err
}
