package invite

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/chobbledotcom/tickets-sub001/internal/crypto"
	"github.com/chobbledotcom/tickets-sub001/internal/vault"
)

type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(db *mongo.Database, coll string) *MongoStore {
	return &MongoStore{coll: db.Collection(coll)}
}

type inviteDoc struct {
	ID         string     `bson:"_id"`
	CodeHash   []byte     `bson:"code_hash"`
	Capability string     `bson:"capability"`
	StagedKey  []byte     `bson:"staged_key"`
	KDFMemory  uint32     `bson:"kdf_m"`
	KDFTime    uint32     `bson:"kdf_t"`
	KDFLanes   uint8      `bson:"kdf_p"`
	Salt       []byte     `bson:"salt"`
	Expires    time.Time  `bson:"expires"`
	ConsumedAt *time.Time `bson:"consumed_at,omitempty"`
	CreatedAt  time.Time  `bson:"created_at"`
}

func (s *MongoStore) Add(ctx context.Context, i *Invite) error {
	_, err := s.coll.InsertOne(ctx, inviteDoc{
		ID:         i.ID,
		CodeHash:   i.CodeHash,
		Capability: string(i.Capability),
		StagedKey:  i.StagedKey,
		KDFMemory:  i.KDF.M,
		KDFTime:    i.KDF.T,
		KDFLanes:   i.KDF.P,
		Salt:       i.KDF.Salt,
		Expires:    i.Expires,
		ConsumedAt: i.ConsumedAt,
		CreatedAt:  i.CreatedAt,
	})
	return err
}

func (s *MongoStore) FindByCodeHash(ctx context.Context, hash []byte) (*Invite, error) {
	var d inviteDoc
	err := s.coll.FindOne(ctx, bson.M{"code_hash": hash}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, vault.ErrInvalidInvite
	}
	if err != nil {
		return nil, err
	}
	return &Invite{
		ID:         d.ID,
		CodeHash:   d.CodeHash,
		Capability: vault.Capability(d.Capability),
		StagedKey:  d.StagedKey,
		KDF:        crypto.KDFParams{M: d.KDFMemory, T: d.KDFTime, P: d.KDFLanes, Salt: d.Salt},
		Expires:    d.Expires,
		ConsumedAt: d.ConsumedAt,
		CreatedAt:  d.CreatedAt,
	}, nil
}

// Consume flips consumed_at only if it is still unset; the filter makes
// the check-and-set a single atomic document update.
func (s *MongoStore) Consume(ctx context.Context, id string, at time.Time) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id, "consumed_at": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"consumed_at": at}},
	)
	if err != nil {
		return err
	}
	if res.ModifiedCount == 0 {
		return vault.ErrInvalidInvite
	}
	return nil
}

// Release clears consumed_at after a failed provisioning, restoring the
// code for another attempt.
func (s *MongoStore) Release(ctx context.Context, id string) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$unset": bson.M{"consumed_at": ""}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return vault.ErrInvalidInvite
	}
	return nil
}
