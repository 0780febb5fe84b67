package store

import (
	"time"
)

// EachFunc is called with the raw value of every matching entry.
type EachFunc func([]byte)

// KVStore is the embedded key/value database the block decisions are
// persisted in. Keys are namespaced so different record kinds can share
// one database.
type KVStore interface {
	Get(namespace, key []byte) (value []byte, err error)
	Set(namespace, key, value []byte) error
	SetEx(namespace, key, value []byte, ttl time.Duration) error
	Has(namespace, key []byte) (bool, error)
	Remove(namespace, key []byte) error
	Each(namespace, prefix []byte, callback EachFunc) error
	Count(namespace, prefix []byte) (int, error)
	ErrNotFound() error
	Close() error
}
