package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore is the DocStore connector bound to the `-m` flag (F.2).
type MongoStore struct {
	db *mongo.Database
}

// NewMongoStore dials addr ("host:port") and selects dbName.
func NewMongoStore(addr, dbName string) (*MongoStore, error) {
	uri := fmt.Sprintf("mongodb://%s", addr)
	opts := options.Client().ApplyURI(uri).SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(context.Background(), opts)
	if err != nil {
		return nil, fmt.Errorf("store: mongo connect %s: %w", addr, err)
	}
	if err := client.Ping(context.Background(), nil); err != nil {
		return nil, fmt.Errorf("store: mongo ping %s: %w", addr, err)
	}
	return &MongoStore{db: client.Database(dbName)}, nil
}

// Insert implements DocStore.
func (m *MongoStore) Insert(ctx context.Context, collection string, doc map[string]interface{}) error {
	if _, err := m.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("store: mongo insert into %s: %w", collection, err)
	}
	return nil
}

// Find implements DocStore.
func (m *MongoStore) Find(ctx context.Context, collection string, filter map[string]interface{}) ([]map[string]interface{}, error) {
	cur, err := m.db.Collection(collection).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("store: mongo find in %s: %w", collection, err)
	}
	defer cur.Close(ctx)

	var docs []map[string]interface{}
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("store: mongo decode result from %s: %w", collection, err)
		}
		docs = append(docs, doc)
	}
	return docs, cur.Err()
}

// Close implements DocStore.
func (m *MongoStore) Close() error {
	return m.db.Client().Disconnect(context.Background())
}
