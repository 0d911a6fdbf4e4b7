package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Connect dials uri and returns a storage over database. The storage owns the client;
// release it with Close.
func Connect(ctx context.Context, uri, database string, opts ...Option) (*MongoStorage, error) {
	// one key per process, a small pool is plenty
	clientOpts := options.Client().
		ApplyURI(uri).
		SetAppName("local-cart").
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(4)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect failed: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping failed: %w", err)
	}

	s := NewMongoStorage(client.Database(database), opts...)
	s.owned = true
	return s, nil
}

// Close disconnects the client when the storage was built by Connect.
func (m *MongoStorage) Close(ctx context.Context) error {
	if !m.owned {
		return nil
	}
	return m.collection.Database().Client().Disconnect(ctx)
}
