package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/opuscart/basket/internal/basket"
)

// Mongo stores one basket document per subject id in a "baskets"
// collection. Same contract as the other backends: a missing document
// loads as an empty basket, driver errors propagate.
type Mongo struct {
	collection *mongo.Collection
	users      UserProvider
}

// MongoOption configures the Mongo backend.
type MongoOption func(*Mongo)

// WithMongoUserProvider makes the backend key documents by authenticated
// user id when one is available.
func WithMongoUserProvider(users UserProvider) MongoOption {
	return func(m *Mongo) { m.users = users }
}

// NewMongo creates a MongoDB-backed storage on the given database.
func NewMongo(db *mongo.Database, opts ...MongoOption) *Mongo {
	m := &Mongo{
		collection: db.Collection("baskets"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ConnectMongo connects to MongoDB and verifies the connection.
func ConnectMongo(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client.Database(database), nil
}

type basketDocument struct {
	SubjectID string    `bson:"_id"`
	Data      []byte    `bson:"basket_data"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (m *Mongo) Load(ctx context.Context, sub basket.Subject) ([]*basket.Item, error) {
	id := subjectID(ctx, m.users, sub)

	var doc basketDocument
	err := m.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get basket document: %w", err)
	}
	return basket.DecodeItems(doc.Data)
}

func (m *Mongo) Save(ctx context.Context, sub basket.Subject, items []*basket.Item) error {
	id := subjectID(ctx, m.users, sub)

	data, err := basket.EncodeItems(items)
	if err != nil {
		return err
	}

	update := bson.M{"$set": bson.M{
		"basket_data": data,
		"updated_at":  time.Now(),
	}}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(ctx, bson.M{"_id": id}, update, opts); err != nil {
		return fmt.Errorf("failed to upsert basket document: %w", err)
	}
	return nil
}
