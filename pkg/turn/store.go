package turn

import (
	"context"
	"errors"

	"github.com/haivivi/edutalk/pkg/kv"
	"github.com/haivivi/edutalk/pkg/ollama"
)

// ContextStore persists the rolling context of one session so it survives
// restarts.
type ContextStore struct {
	store kv.Store
	key   kv.Key
}

// NewContextStore stores the context of session under {"context", session}.
func NewContextStore(store kv.Store, session string) *ContextStore {
	return &ContextStore{store: store, key: kv.Key{"context", session}}
}

// Load returns the saved context, or nil if there is none.
func (s *ContextStore) Load(ctx context.Context) (ollama.Context, error) {
	v, err := kv.GetMsgpack[[]int](ctx, s.store, s.key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ollama.Context(v), nil
}

// Save replaces the saved context.
func (s *ContextStore) Save(ctx context.Context, c ollama.Context) error {
	return kv.SetMsgpack(ctx, s.store, s.key, []int(c))
}

// Clear forgets the saved context.
func (s *ContextStore) Clear(ctx context.Context) error {
	return s.store.Delete(ctx, s.key)
}
