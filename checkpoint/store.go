package checkpoint

import (
	"encoding/binary"
	"strings"

	"github.com/dgraph-io/badger"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	ErrInvalidName        = errors.New("invalid checkpoint name")
)

var encoding = binary.BigEndian

const keyPrefix = "cursor/"

func key(name string) []byte {
	return []byte(keyPrefix + name)
}

// Store persists named consumer offsets in a badger database.
type Store struct {
	db *badger.DB
}

// Open opens, or creates, the checkpoint store in dir.
func Open(dir string, logger *zap.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(&badgerLogger{l: logger.Sugar()}).
		WithSyncWrites(true)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open checkpoint store")
	}
	return &Store{db: db}, nil
}

func (s *Store) Load(name string) (int, bool, error) {
	var offset int
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(name))
		if err != nil {
			return err
		}
		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		offset = int(encoding.Uint64(value))
		return nil
	})
	if err == badger.ErrKeyNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return offset, true, nil
}

func (s *Store) Commit(name string, offset int) error {
	if name == "" {
		return ErrInvalidName
	}
	value := make([]byte, 8)
	encoding.PutUint64(value, uint64(offset))
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(name), value)
	})
}

// List returns every stored checkpoint, by consumer name.
func (s *Store) List() (map[string]int, error) {
	out := map[string]int{}
	prefix := []byte(keyPrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			name := strings.TrimPrefix(string(item.Key()), keyPrefix)
			out[name] = int(encoding.Uint64(value))
		}
		return nil
	})
	return out, err
}

func (s *Store) Delete(name string) error {
	_, found, err := s.Load(name)
	if err != nil {
		return err
	}
	if !found {
		return ErrCheckpointNotFound
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(name))
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}
