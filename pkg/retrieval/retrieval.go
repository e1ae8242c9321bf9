// Package retrieval stores reference documents (such as a class timetable)
// as embedded chunks and finds the ones most relevant to a spoken
// question.
//
// Chunks live in a kv.Store as msgpack records under
// {"rag", <collection>, <document id>, <chunk number>} and are mirrored in
// an in-memory cosine [Index] built on first use.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/haivivi/edutalk/pkg/kv"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	// DefaultCollection names the document set when none is configured.
	DefaultCollection = "user_tt"

	// DefaultTopK is the number of chunks returned per query.
	DefaultTopK = 10

	// DefaultChunkWords is the chunk size used by Ingest.
	DefaultChunkWords = 100
)

// ErrNoDocuments is returned by Ingest when the text has no words.
var ErrNoDocuments = errors.New("retrieval: document has no text")

// Chunk is one stored piece of a document.
type Chunk struct {
	Source string    `msgpack:"source"`
	Index  int       `msgpack:"index"`
	Text   string    `msgpack:"text"`
	Vector []float32 `msgpack:"vector"`
}

// Retriever ingests documents and answers similarity queries. It is safe
// for concurrent use.
type Retriever struct {
	store      kv.Store
	embedder   Embedder
	collection string
	topK       int
	chunkWords int

	mu     sync.Mutex
	index  *Index
	chunks map[string]Chunk
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithCollection sets the collection name.
func WithCollection(name string) Option {
	return func(r *Retriever) { r.collection = name }
}

// WithTopK sets how many chunks Retrieve returns.
func WithTopK(k int) Option {
	return func(r *Retriever) { r.topK = k }
}

// WithChunkWords sets the number of words per chunk.
func WithChunkWords(n int) Option {
	return func(r *Retriever) { r.chunkWords = n }
}

// New creates a Retriever over store.
func New(store kv.Store, embedder Embedder, opts ...Option) *Retriever {
	r := &Retriever{
		store:      store,
		embedder:   embedder,
		collection: DefaultCollection,
		topK:       DefaultTopK,
		chunkWords: DefaultChunkWords,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func decodeChunk(b []byte) (Chunk, error) {
	var c Chunk
	err := msgpack.Unmarshal(b, &c)
	return c, err
}

func (r *Retriever) prefix() kv.Key {
	return kv.Key{"rag", r.collection}
}

// DocumentID derives the stable key segment for a source path.
func DocumentID(source string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(source)).String()
}

func (r *Retriever) chunkKey(source string, i int) kv.Key {
	return r.prefix().Append(DocumentID(source), fmt.Sprintf("%05d", i))
}

// load fills the in-memory index from the store. Callers hold r.mu.
func (r *Retriever) load(ctx context.Context) error {
	if r.index != nil {
		return nil
	}
	index := NewIndex()
	chunks := make(map[string]Chunk)
	for e, err := range r.store.List(ctx, r.prefix()) {
		if err != nil {
			return fmt.Errorf("retrieval: load: %w", err)
		}
		c, err := decodeChunk(e.Value)
		if err != nil {
			slog.Warn("retrieval: skipping unreadable chunk", "key", e.Key.String(), "error", err)
			continue
		}
		id := e.Key.String()
		chunks[id] = c
		index.Insert(id, c.Vector)
	}
	r.index, r.chunks = index, chunks
	slog.Debug("retrieval: index loaded", "collection", r.collection, "chunks", len(chunks))
	return nil
}

// Ingest splits text into chunks, embeds them and stores them under
// source, replacing whatever was stored for source before. It returns the
// number of chunks stored.
func (r *Retriever) Ingest(ctx context.Context, source, text string) (int, error) {
	parts := SplitWords(text, r.chunkWords)
	if len(parts) == 0 {
		return 0, ErrNoDocuments
	}
	vecs, err := r.embedder.Embed(ctx, parts)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.load(ctx); err != nil {
		return 0, err
	}
	if err := r.removeLocked(ctx, source); err != nil {
		return 0, err
	}

	entries := make([]kv.Entry, len(parts))
	added := make(map[string]Chunk, len(parts))
	for i, p := range parts {
		c := Chunk{Source: source, Index: i, Text: p, Vector: vecs[i]}
		key := r.chunkKey(source, i)
		e, err := kv.MsgpackEntry(key, c)
		if err != nil {
			return 0, err
		}
		entries[i] = e
		added[key.String()] = c
	}
	if err := r.store.BatchSet(ctx, entries); err != nil {
		return 0, fmt.Errorf("retrieval: store chunks: %w", err)
	}
	for id, c := range added {
		r.chunks[id] = c
		r.index.Insert(id, c.Vector)
	}
	slog.Info("retrieval: ingested", "source", source, "chunks", len(parts))
	return len(parts), nil
}

// Remove deletes every chunk stored for source.
func (r *Retriever) Remove(ctx context.Context, source string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.load(ctx); err != nil {
		return err
	}
	return r.removeLocked(ctx, source)
}

func (r *Retriever) removeLocked(ctx context.Context, source string) error {
	keys, err := kv.Keys(ctx, r.store, r.prefix().Append(DocumentID(source)))
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.store.BatchDelete(ctx, keys); err != nil {
		return fmt.Errorf("retrieval: remove %s: %w", source, err)
	}
	for _, k := range keys {
		r.index.Delete(k.String())
		delete(r.chunks, k.String())
	}
	return nil
}

// Reset deletes the whole collection.
func (r *Retriever) Reset(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys, err := kv.Keys(ctx, r.store, r.prefix())
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		if err := r.store.BatchDelete(ctx, keys); err != nil {
			return fmt.Errorf("retrieval: reset: %w", err)
		}
	}
	r.index, r.chunks = NewIndex(), make(map[string]Chunk)
	return nil
}

// Sources lists the stored documents with their chunk counts.
func (r *Retriever) Sources(ctx context.Context) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.load(ctx); err != nil {
		return nil, err
	}
	out := make(map[string]int)
	for _, c := range r.chunks {
		out[c.Source]++
	}
	return out, nil
}

// Retrieve returns the texts of the chunks closest to query, nearest
// first. An empty collection yields no snippets without calling the
// embedder.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]string, error) {
	r.mu.Lock()
	err := r.load(ctx)
	index := r.index
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if index.Len() == 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}

	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	matches := index.Search(vecs[0], r.topK)

	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if c, ok := r.chunks[m.ID]; ok {
			out = append(out, c.Text)
		}
	}
	return out, nil
}

// SplitWords groups the whitespace-separated words of text into chunks of
// n words joined by single spaces. The last chunk may be shorter.
func SplitWords(text string, n int) []string {
	if n <= 0 {
		n = DefaultChunkWords
	}
	words := strings.Fields(text)
	var chunks []string
	for len(words) > 0 {
		k := min(n, len(words))
		chunks = append(chunks, strings.Join(words[:k], " "))
		words = words[k:]
	}
	return chunks
}

// FormatSnippets renders retrieved chunks as the bracketed block spliced
// into the prompt template.
func FormatSnippets(snippets []string) string {
	return "[Timetable data:\n" + strings.Join(snippets, "\n\n") + "]"
}
