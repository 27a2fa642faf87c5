// Package kv provides a small key-value store with hierarchical keys.
// Keys are string slices (e.g. ["session", "2025", "abc"]) joined with ':'
// for storage.
//
// Badger backs the session catalog on disk; Memory serves tests.
package kv

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"strings"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("kv: not found")

// Separator joins key segments. Segments must not contain it.
const Separator byte = ':'

// Key is a hierarchical path.
type Key []string

// String returns the encoded key as text.
func (k Key) String() string {
	return strings.Join(k, string(Separator))
}

func (k Key) encode() []byte {
	return []byte(k.String())
}

// prefix returns the encoded key plus a trailing separator, so that
// {"a","b"} does not match "a:bc". An empty key matches everything.
func (k Key) prefix() []byte {
	if len(k) == 0 {
		return nil
	}
	return append(k.encode(), Separator)
}

func decode(b []byte) Key {
	parts := bytes.Split(b, []byte{Separator})
	k := make(Key, len(parts))
	for i, p := range parts {
		k[i] = string(p)
	}
	return k
}

// Entry is a key-value pair returned by List.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is a key-value store with path-based keys.
type Store interface {
	// Get returns ErrNotFound if the key is not present.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores a value, overwriting any existing one.
	Set(ctx context.Context, key Key, value []byte) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key Key) error

	// List iterates over entries under prefix in lexicographic key order.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	Close() error
}
