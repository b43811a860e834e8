package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerStore keeps documents in an embedded Badger database. Keys are
// collection + 0x00 + id; the zero byte occurs in neither part, so the
// mapping is unambiguous.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) a Badger database at path. With
// inMemory set the data lives on the heap and is lost on Close, which
// keeps tests off the disk.
func NewBadgerStore(path string, inMemory bool) (*BadgerStore, error) {
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func badgerKey(collection, id string) []byte {
	k := make([]byte, 0, len(collection)+1+len(id))
	k = append(k, collection...)
	k = append(k, 0)
	k = append(k, id...)
	return k
}

func badgerPrefix(collection string) []byte {
	p := make([]byte, 0, len(collection)+1)
	p = append(p, collection...)
	p = append(p, 0)
	return p
}

// FindOne returns the document with the given id, or ErrNoDocuments.
func (s *BadgerStore) FindOne(ctx context.Context, collection, id string) (Doc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var doc Doc
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(collection, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNoDocuments
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		})
	})
	if errors.Is(err, ErrNoDocuments) {
		return nil, ErrNoDocuments
	}
	if err != nil {
		return nil, fmt.Errorf("finding document: %w", err)
	}
	return doc, nil
}

// FindAll returns every document in the collection in key order.
func (s *BadgerStore) FindAll(ctx context.Context, collection string) ([]Doc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	docs := []Doc{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = badgerPrefix(collection)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var doc Doc
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &doc)
			})
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return docs, nil
}

// InsertOne stores a new document, failing with ErrDuplicateID when the
// id is already taken. The existence check and the write share one
// transaction, so concurrent inserts of the same id cannot both win.
func (s *BadgerStore) InsertOne(ctx context.Context, collection string, doc Doc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id := doc.ID()
	if id == "" {
		return errors.New("document has no _id")
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling document: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		k := badgerKey(collection, id)
		_, err := txn.Get(k)
		if err == nil {
			return ErrDuplicateID
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(k, data)
	})
	if errors.Is(err, ErrDuplicateID) {
		return ErrDuplicateID
	}
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	return nil
}

// ReplaceOne overwrites the document with the given id, reporting how
// many documents matched. With upsert set a missing document is
// inserted and matched stays 0.
func (s *BadgerStore) ReplaceOne(ctx context.Context, collection, id string, doc Doc, upsert bool) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("marshaling document: %w", err)
	}
	matched := 0
	err = s.db.Update(func(txn *badger.Txn) error {
		k := badgerKey(collection, id)
		_, err := txn.Get(k)
		switch {
		case err == nil:
			matched = 1
		case errors.Is(err, badger.ErrKeyNotFound):
			if !upsert {
				return nil
			}
		default:
			return err
		}
		return txn.Set(k, data)
	})
	if err != nil {
		return 0, fmt.Errorf("replacing document: %w", err)
	}
	return matched, nil
}

// DeleteOne removes the document with the given id. Missing documents
// are ignored.
func (s *BadgerStore) DeleteOne(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerKey(collection, id))
	})
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

// Drop removes every document in the collection.
func (s *BadgerStore) Drop(ctx context.Context, collection string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.DropPrefix(badgerPrefix(collection)); err != nil {
		return fmt.Errorf("dropping collection: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
