package kv

import (
	"context"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// GetMsgpack reads key and decodes it into a T.
func GetMsgpack[T any](ctx context.Context, s Store, key Key) (T, error) {
	var v T
	data, err := s.Get(ctx, key)
	if err != nil {
		return v, err
	}
	if err := msgpack.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("kv: decode %s: %w", key, err)
	}
	return v, nil
}

// SetMsgpack encodes v and stores it under key.
func SetMsgpack(ctx context.Context, s Store, key Key, v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("kv: encode %s: %w", key, err)
	}
	return s.Set(ctx, key, data)
}

// MsgpackEntry encodes v into an Entry for BatchSet.
func MsgpackEntry(key Key, v any) (Entry, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return Entry{}, fmt.Errorf("kv: encode %s: %w", key, err)
	}
	return Entry{Key: key, Value: data}, nil
}

// ListMsgpack decodes every value below prefix into a T.
func ListMsgpack[T any](ctx context.Context, s Store, prefix Key) ([]T, error) {
	var out []T
	for e, err := range s.List(ctx, prefix) {
		if err != nil {
			return nil, err
		}
		var v T
		if err := msgpack.Unmarshal(e.Value, &v); err != nil {
			return nil, fmt.Errorf("kv: decode %s: %w", e.Key, err)
		}
		out = append(out, v)
	}
	return out, nil
}
