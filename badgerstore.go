package cdnsift

import (
	"context"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v3"
	log "github.com/sirupsen/logrus"

	"github.com/cdnsift/cdnsift/store"
)

const (
	badgerDiscardRatio = 0.5
	badgerGCInterval   = 10 * time.Minute
)

// BadgerDB implements store.KVStore on an embedded badger database.
type BadgerDB struct {
	db  *badger.DB
	ctx context.Context
}

// NewBadgerDB opens (or creates) the badger database in dataDir.
func NewBadgerDB(ctx context.Context, dataDir string) (store.KVStore, error) {
	opts := badger.DefaultOptions(dataDir)
	opts.SyncWrites = true
	opts.Dir, opts.ValueDir = dataDir, dataDir
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	bdb := &BadgerDB{
		db:  db,
		ctx: ctx,
	}

	go bdb.runGC()

	return bdb, nil
}

// Get returns the value stored for key in namespace. If the key does not
// exist, ErrNotFound() is returned.
func (bdb *BadgerDB) Get(namespace, key []byte) ([]byte, error) {
	var value []byte

	err := bdb.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(bdb.namespaceKey(namespace, key))
		if err != nil {
			return err
		}

		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	return value, nil
}

// Set stores a value without an expiry.
func (bdb *BadgerDB) Set(namespace, key, value []byte) error {
	return bdb.db.Update(func(txn *badger.Txn) error {
		return txn.Set(bdb.namespaceKey(namespace, key), value)
	})
}

// SetEx stores a value that expires after ttl.
func (bdb *BadgerDB) SetEx(namespace, key, value []byte, ttl time.Duration) error {
	return bdb.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(bdb.namespaceKey(namespace, key), value).WithTTL(ttl)
		return txn.SetEntry(e)
	})
}

// Has reports whether namespace contains key.
func (bdb *BadgerDB) Has(namespace, key []byte) (ok bool, err error) {
	_, err = bdb.Get(namespace, key)
	switch err {
	case badger.ErrKeyNotFound:
		ok, err = false, nil
	case nil:
		ok, err = true, nil
	}

	return ok, err
}

// Remove deletes a single entry.
func (bdb *BadgerDB) Remove(namespace, key []byte) error {
	return bdb.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(bdb.namespaceKey(namespace, key))
	})
}

// Each calls callback with the value of every entry matching namespace and
// prefix.
func (bdb *BadgerDB) Each(namespace, prefix []byte, callback store.EachFunc) error {
	return bdb.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		p := bdb.namespaceKey(namespace, prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			err := it.Item().Value(func(v []byte) error {
				callback(v)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of entries matching namespace and prefix.
func (bdb *BadgerDB) Count(namespace, prefix []byte) (int, error) {
	c := 0

	err := bdb.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		p := bdb.namespaceKey(namespace, prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			c++
		}
		return nil
	})

	return c, err
}

// ErrNotFound is the error Get returns for a missing key.
func (bdb *BadgerDB) ErrNotFound() error {
	return badger.ErrKeyNotFound
}

// Close closes the underlying database.
func (bdb *BadgerDB) Close() error {
	return bdb.db.Close()
}

func (bdb *BadgerDB) runGC() {
	ticker := time.NewTicker(badgerGCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-bdb.ctx.Done():
			return
		case <-ticker.C:
			if err := bdb.db.RunValueLogGC(badgerDiscardRatio); err != nil {
				if err == badger.ErrNoRewrite {
					log.Debugf("no badger GC occurred: %v", err)
				} else {
					log.Errorf("badger GC failed: %v", err)
				}
			}
		}
	}
}

func (bdb *BadgerDB) namespaceKey(namespace, key []byte) []byte {
	return []byte(fmt.Sprintf("%s/%s", namespace, key))
}
