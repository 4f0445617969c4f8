package summaries

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/ekkolabs/sentria/pkg/errorsx"
)

const keyPrefix = "summary/"

// Store persists summaries in a local Badger database. Append acknowledges
// by returning; List yields newest first, the order readers render.
type Store struct {
	db *badger.DB
}

func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonStoreOpen)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Append stores one summary. Keys sort by timestamp so iteration order is
// chronological; the uuid suffix keeps same-millisecond records distinct.
func (s *Store) Append(sum Summary) error {
	value, err := json.Marshal(sum)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonStoreAppend)
	}
	key := fmt.Sprintf("%s%020d/%s", keyPrefix, sum.Timestamp, uuid.NewString())
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	return errorsx.Wrap(err, errorsx.ReasonStoreAppend)
}

// List returns all summaries, newest first.
func (s *Store) List() ([]Summary, error) {
	var out []Summary
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var sum Summary
				if err := json.Unmarshal(val, &sum); err != nil {
					return err
				}
				out = append(out, sum)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
