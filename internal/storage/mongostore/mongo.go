package mongostore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/fjod/go_cart/local-cart/internal/storage"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	defaultCollection = "kv_items"
	// largest TTL an index can hold, expireAfterSeconds is an int32
	maxExpireAfter = time.Duration(math.MaxInt32) * time.Second
)

type Option func(*config)

type config struct {
	collection string
}

// WithCollection stores items in the named collection instead of kv_items.
func WithCollection(name string) Option {
	return func(c *config) {
		if name != "" {
			c.collection = name
		}
	}
}

// item is one stored key. The key doubles as the document _id so writes are a
// single upsert without a separate unique index.
type item struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type MongoStorage struct {
	collection *mongo.Collection
	owned      bool
}

func NewMongoStorage(db *mongo.Database, opts ...Option) *MongoStorage {
	cfg := config{collection: defaultCollection}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &MongoStorage{
		collection: db.Collection(cfg.collection),
	}
}

func (m *MongoStorage) GetItem(ctx context.Context, key string) (string, error) {
	var doc item

	err := m.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("failed to get item: %w", err)
	}

	return doc.Value, nil
}

func (m *MongoStorage) SetItem(ctx context.Context, key, value string) error {
	filter := bson.M{"_id": key}
	update := bson.M{
		"$set": bson.M{
			"value":      value,
			"updated_at": time.Now(),
		},
	}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert item: %w", err)
	}
	return nil
}

// CreateIndexes adds a TTL index on updated_at so abandoned carts disappear.
// expireAfter must be positive and is capped at maxExpireAfter.
func (m *MongoStorage) CreateIndexes(ctx context.Context, expireAfter time.Duration) error {
	seconds, err := expireAfterSeconds(expireAfter)
	if err != nil {
		return err
	}
	index := mongo.IndexModel{
		Keys:    bson.D{{Key: "updated_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(seconds),
	}

	if _, err := m.collection.Indexes().CreateOne(ctx, index); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func expireAfterSeconds(d time.Duration) (int32, error) {
	if d < time.Second {
		return 0, fmt.Errorf("ttl %s is below one second", d)
	}
	if d > maxExpireAfter {
		d = maxExpireAfter
	}
	return int32(d / time.Second), nil
}
