// Package mongo stores mission receipts in a MongoDB collection.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/ppiankov/toolwarden/internal/receipt"
)

const (
	defaultCollection = "telemetry_ledger"
	defaultTimeout    = 5 * time.Second
)

type (
	// Options configures the store.
	Options struct {
		Client     *mongodriver.Client
		Database   string
		Collection string
		Timeout    time.Duration
	}

	// Store implements receipt.Store on a Mongo collection.
	Store struct {
		mongo   *mongodriver.Client
		coll    collection
		timeout time.Duration
	}

	receiptDocument struct {
		ID              bson.ObjectID `bson:"_id,omitempty"`
		receipt.Receipt `bson:",inline"`
	}
)

// New returns a Store writing to opts.Database/opts.Collection.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	name := opts.Collection
	if name == "" {
		name = defaultCollection
	}
	coll := mongoCollection{coll: opts.Client.Database(opts.Database).Collection(name)}
	s := newStore(coll, opts.Timeout)
	s.mongo = opts.Client
	return s, nil
}

func newStore(coll collection, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Store{coll: coll, timeout: timeout}
}

// Ping checks connectivity to the primary.
func (s *Store) Ping(ctx context.Context) error {
	if s.mongo == nil {
		return errors.New("mongo client not configured")
	}
	return s.mongo.Ping(ctx, readpref.Primary())
}

// Save inserts r and returns the generated document id.
func (s *Store) Save(ctx context.Context, r receipt.Receipt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.coll.InsertOne(ctx, receiptDocument{Receipt: r})
	if err != nil {
		return "", fmt.Errorf("insert receipt: %w", err)
	}
	oid, ok := res.InsertedID.(bson.ObjectID)
	if !ok {
		return "", fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	return oid.Hex(), nil
}

// Get loads the receipt stored under id.
func (s *Store) Get(ctx context.Context, id string) (receipt.Receipt, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return receipt.Receipt{}, fmt.Errorf("invalid receipt id %q: %w", id, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var doc receiptDocument
	if err := s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return receipt.Receipt{}, fmt.Errorf("find receipt %s: %w", id, err)
	}
	if doc.ToolUsage == nil {
		doc.ToolUsage = map[string]int64{}
	}
	return doc.Receipt, nil
}

type collection interface {
	InsertOne(ctx context.Context, document any) (*mongodriver.InsertOneResult, error)
	FindOne(ctx context.Context, filter any) singleResult
}

type singleResult interface {
	Decode(v any) error
}

type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) InsertOne(ctx context.Context, document any) (*mongodriver.InsertOneResult, error) {
	return c.coll.InsertOne(ctx, document)
}

func (c mongoCollection) FindOne(ctx context.Context, filter any) singleResult {
	return c.coll.FindOne(ctx, filter)
}
