package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoSession struct {
	ID        string    `bson:"_id"`
	Data      string    `bson:"data"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoStore keeps sessions in the "sessions" collection. Expiry is left to a
// TTL index on updated_at, see CreateIndexes.
type MongoStore struct {
	collection *mongo.Collection
	ttl        time.Duration
}

func NewMongoStore(db *mongo.Database, ttl time.Duration) *MongoStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MongoStore{
		collection: db.Collection("sessions"),
		ttl:        ttl,
	}
}

func (m *MongoStore) Load(ctx context.Context, id string) (*Session, error) {
	var doc mongoSession

	err := m.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	// the TTL monitor runs once a minute, don't hand out sessions it has not reaped yet
	if time.Since(doc.UpdatedAt) > m.ttl {
		return nil, ErrSessionNotFound
	}

	return unmarshal(id, []byte(doc.Data))
}

func (m *MongoStore) Save(ctx context.Context, s *Session) error {
	s.UpdatedAt = time.Now()
	data, err := s.marshal()
	if err != nil {
		return err
	}

	filter := bson.M{"_id": s.ID}
	update := bson.M{"$set": bson.M{
		"data":       string(data),
		"updated_at": s.UpdatedAt,
	}}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	s.modified = false
	return nil
}

func (m *MongoStore) Delete(ctx context.Context, id string) error {
	if _, err := m.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (m *MongoStore) CreateIndexes(ctx context.Context) error {
	index := mongo.IndexModel{
		Keys:    bson.D{{Key: "updated_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(int32(m.ttl.Seconds())),
	}

	if _, err := m.collection.Indexes().CreateOne(ctx, index); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}
