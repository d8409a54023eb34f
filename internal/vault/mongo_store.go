package vault

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/chobbledotcom/tickets-sub001/internal/crypto"
)

// MongoUserStore persists AdminUser rows in a MongoDB collection with a
// unique index on identity_index.
type MongoUserStore struct {
	coll *mongo.Collection
}

func NewMongoUserStore(ctx context.Context, db *mongo.Database, coll string) (*MongoUserStore, error) {
	c := db.Collection(coll)
	_, err := c.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "identity_index", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, err
	}
	return &MongoUserStore{coll: c}, nil
}

type userDoc struct {
	ID                 string    `bson:"_id"`
	IdentityHash       string    `bson:"identity_hash"`
	IdentityIndex      []byte    `bson:"identity_index"`
	IdentityCiphertext []byte    `bson:"identity_ciphertext"`
	WrappedKey         []byte    `bson:"wrapped_key,omitempty"`
	KDFMemory          uint32    `bson:"kdf_m"`
	KDFTime            uint32    `bson:"kdf_t"`
	KDFLanes           uint8     `bson:"kdf_p"`
	Salt               []byte    `bson:"salt"`
	Capability         string    `bson:"capability"`
	CreatedAt          time.Time `bson:"created_at"`
}

func toDoc(u *AdminUser) userDoc {
	return userDoc{
		ID:                 u.ID,
		IdentityHash:       u.IdentityHash,
		IdentityIndex:      u.IdentityIndex,
		IdentityCiphertext: u.IdentityCiphertext,
		WrappedKey:         u.WrappedKey,
		KDFMemory:          u.KDF.M,
		KDFTime:            u.KDF.T,
		KDFLanes:           u.KDF.P,
		Salt:               u.KDF.Salt,
		Capability:         string(u.Capability),
		CreatedAt:          u.CreatedAt,
	}
}

func fromDoc(d userDoc) *AdminUser {
	return &AdminUser{
		ID:                 d.ID,
		IdentityHash:       d.IdentityHash,
		IdentityIndex:      d.IdentityIndex,
		IdentityCiphertext: d.IdentityCiphertext,
		WrappedKey:         d.WrappedKey,
		KDF:                crypto.KDFParams{M: d.KDFMemory, T: d.KDFTime, P: d.KDFLanes, Salt: d.Salt},
		Capability:         Capability(d.Capability),
		CreatedAt:          d.CreatedAt,
	}
}

func (s *MongoUserStore) Add(ctx context.Context, u *AdminUser) error {
	_, err := s.coll.InsertOne(ctx, toDoc(u))
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateUser
	}
	return err
}

func (s *MongoUserStore) findOne(ctx context.Context, filter any) (*AdminUser, error) {
	var d userDoc
	err := s.coll.FindOne(ctx, filter).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromDoc(d), nil
}

func (s *MongoUserStore) FindByIndex(ctx context.Context, index []byte) (*AdminUser, error) {
	return s.findOne(ctx, bson.M{"identity_index": index})
}

func (s *MongoUserStore) FindByID(ctx context.Context, id string) (*AdminUser, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *MongoUserStore) Update(ctx context.Context, u *AdminUser) error {
	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": u.ID}, toDoc(u))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *MongoUserStore) Delete(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *MongoUserStore) Count(ctx context.Context) (int64, error) {
	return s.coll.CountDocuments(ctx, bson.M{})
}

func (s *MongoUserStore) CountByCapability(ctx context.Context, c Capability) (int64, error) {
	return s.coll.CountDocuments(ctx, bson.M{"capability": string(c)})
}

// MongoMetaStore keeps the single deployment meta record under a fixed id.
type MongoMetaStore struct {
	coll *mongo.Collection
}

const metaDocID = "vault"

func NewMongoMetaStore(db *mongo.Database, coll string) *MongoMetaStore {
	return &MongoMetaStore{coll: db.Collection(coll)}
}

type metaDoc struct {
	ID        string    `bson:"_id"`
	IndexSeed []byte    `bson:"index_seed"`
	CreatedAt time.Time `bson:"created_at"`
}

func (s *MongoMetaStore) Load(ctx context.Context) (*Meta, error) {
	var d metaDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": metaDocID}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNoMeta
	}
	if err != nil {
		return nil, err
	}
	return &Meta{IndexSeed: d.IndexSeed, CreatedAt: d.CreatedAt}, nil
}

func (s *MongoMetaStore) Save(ctx context.Context, m *Meta) error {
	doc := metaDoc{ID: metaDocID, IndexSeed: m.IndexSeed, CreatedAt: m.CreatedAt}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": metaDocID}, doc, options.Replace().SetUpsert(true))
	return err
}
