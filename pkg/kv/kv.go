// Package kv is the persistence layer: a key-value store addressed by
// hierarchical keys such as {"context", "default"} or
// {"rag", "timetable", "<doc>", "0003"}.
//
// [Badger] keeps data on disk (or in memory for tests); [Memory] is a plain
// map for unit tests. Values are raw bytes; [GetMsgpack] and [SetMsgpack]
// store typed records.
package kv

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
)

var (
	// ErrNotFound is returned when a key does not exist in the store.
	ErrNotFound = errors.New("kv: not found")

	// ErrInvalidKey is returned for empty keys and for segments that are
	// empty or contain the separator.
	ErrInvalidKey = errors.New("kv: invalid key")
)

// Separator joins key segments in the encoded form.
const Separator = ':'

// Key is a hierarchical path. Segments must be non-empty and must not
// contain Separator.
type Key []string

func (k Key) String() string {
	return strings.Join(k, string(Separator))
}

// Validate reports whether k can be stored.
func (k Key) Validate() error {
	if len(k) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	for _, seg := range k {
		if seg == "" || strings.IndexByte(seg, Separator) >= 0 {
			return fmt.Errorf("%w: segment %q", ErrInvalidKey, seg)
		}
	}
	return nil
}

// Append returns a new key with segs appended.
func (k Key) Append(segs ...string) Key {
	out := make(Key, 0, len(k)+len(segs))
	return append(append(out, k...), segs...)
}

func (k Key) encode() []byte { return []byte(k.String()) }

// prefix returns the encoded prefix that matches k and its descendants but
// not siblings sharing a textual prefix ("a:b" must not match "a:bc").
func (k Key) prefix() []byte {
	if len(k) == 0 {
		return nil
	}
	return append(k.encode(), Separator)
}

func decodeKey(b []byte) Key {
	return Key(strings.Split(string(b), string(Separator)))
}

// Entry is a key-value pair.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is a key-value store with hierarchical keys. Implementations are
// safe for concurrent use.
type Store interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key Key, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key Key) error

	// List yields every entry strictly below prefix in encoded-key order.
	// An empty prefix lists everything.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// BatchSet stores all entries atomically.
	BatchSet(ctx context.Context, entries []Entry) error

	// BatchDelete removes all keys atomically.
	BatchDelete(ctx context.Context, keys []Key) error

	Close() error
}

// Keys collects the keys below prefix.
func Keys(ctx context.Context, s Store, prefix Key) ([]Key, error) {
	var keys []Key
	for e, err := range s.List(ctx, prefix) {
		if err != nil {
			return nil, err
		}
		keys = append(keys, e.Key)
	}
	return keys, nil
}
