// Package document provides a schemaless document store with
// interchangeable DynamoDB, Badger and PostgreSQL backends. Documents
// are grouped into named collections and addressed by a caller-chosen
// string id.
package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignite/survey-collector/internal/config"
)

// Doc is a schemaless document. Every stored document carries its
// identifier under the "_id" key.
type Doc map[string]any

// ID returns the document identifier, or the empty string when unset.
func (d Doc) ID() string {
	id, _ := d["_id"].(string)
	return id
}

var (
	// ErrNoDocuments indicates the requested document does not exist.
	ErrNoDocuments = errors.New("no documents found")

	// ErrDuplicateID indicates an insert collided with an existing id
	// in the same collection.
	ErrDuplicateID = errors.New("duplicate document id")
)

// Store is the persistence contract. Implementations must enforce id
// uniqueness per collection on InsertOne and be safe for concurrent
// use.
type Store interface {
	// FindOne returns the document with the given id, or ErrNoDocuments.
	FindOne(ctx context.Context, collection, id string) (Doc, error)

	// FindAll returns every document in the collection. A missing or
	// empty collection yields an empty slice, not an error.
	FindAll(ctx context.Context, collection string) ([]Doc, error)

	// InsertOne stores a new document. An existing document with the
	// same id fails with ErrDuplicateID and leaves the store unchanged.
	InsertOne(ctx context.Context, collection string, doc Doc) error

	// ReplaceOne overwrites the document with the given id and reports
	// how many documents matched (0 or 1). With upsert set, a missing
	// document is inserted instead and matched stays 0.
	ReplaceOne(ctx context.Context, collection, id string, doc Doc, upsert bool) (int, error)

	// DeleteOne removes the document with the given id. Deleting a
	// missing document is not an error.
	DeleteOne(ctx context.Context, collection, id string) error

	// Drop removes the collection and everything in it.
	Drop(ctx context.Context, collection string) error

	// Close releases the underlying resources.
	Close() error
}

// New creates the store backend selected by the configuration.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Type {
	case "dynamodb":
		return NewDynamoStore(ctx, cfg.DynamoDBTable, cfg.AWSRegion, cfg.GetAWSProfile())
	case "badger":
		return NewBadgerStore(cfg.BadgerPath, cfg.BadgerInMemory)
	case "postgres":
		return NewPostgresStore(cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
