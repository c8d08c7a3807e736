package embcache

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/kitab-cloud/isnad/internal/db"
	"github.com/kitab-cloud/isnad/internal/domain"
)

// --- Mocks ---

type mockEmbedder struct {
	result domain.EmbeddingResult
	err    error
	calls  int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return m.result, nil
}

type mockKVStore struct {
	getFn func(ctx context.Context, key string) ([]byte, error)
	setFn func(ctx context.Context, key string, value []byte) error
	sets  map[string][]byte
}

func (m *mockKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockKVStore) Set(ctx context.Context, key string, value []byte) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value)
	}
	if m.sets == nil {
		m.sets = make(map[string][]byte)
	}
	m.sets[key] = value
	return nil
}

func newTestCachedEmbedder(inner domain.Embedder, s *mockKVStore) *CachedEmbedder {
	return New(inner, s, nil, zap.NewNop())
}

// --- Tests ---

func TestEmbed_CacheMiss_CallsInnerAndStores(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding:   []float32{0.1, 0.2, 0.3},
		TotalTokens: 7,
	}}
	ms := &mockKVStore{}
	c := newTestCachedEmbedder(inner, ms)

	result, err := c.Embed(context.Background(), "who was Dhul-Qarnayn")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner calls: got %d, want 1", inner.calls)
	}
	if result.TotalTokens != 7 {
		t.Errorf("tokens: got %d, want 7", result.TotalTokens)
	}
	if len(ms.sets) != 1 {
		t.Fatalf("cached entries: got %d, want 1", len(ms.sets))
	}
	for key, data := range ms.sets {
		if len(data) != 3*4 {
			t.Errorf("cached bytes for %s: got %d, want 12", key, len(data))
		}
	}
}

func TestEmbed_CacheHit_SkipsInner(t *testing.T) {
	cached := vectorToCacheBytes([]float32{0.5, -1.25})
	inner := &mockEmbedder{}
	ms := &mockKVStore{
		getFn: func(_ context.Context, _ string) ([]byte, error) { return cached, nil },
	}
	c := newTestCachedEmbedder(inner, ms)

	result, err := c.Embed(context.Background(), "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 0 {
		t.Errorf("inner calls: got %d, want 0", inner.calls)
	}
	if len(result.Embedding) != 2 || result.Embedding[1] != -1.25 {
		t.Errorf("embedding: got %v", result.Embedding)
	}
	if result.TotalTokens != 0 {
		t.Errorf("cache hit must report zero tokens, got %d", result.TotalTokens)
	}
}

func TestEmbed_StoreGetError_TreatedAsMiss(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	ms := &mockKVStore{
		getFn: func(_ context.Context, _ string) ([]byte, error) {
			return nil, errors.New("connection reset")
		},
	}
	c := newTestCachedEmbedder(inner, ms)

	if _, err := c.Embed(context.Background(), "q"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner calls: got %d, want 1", inner.calls)
	}
}

func TestEmbed_CorruptCacheData_TreatedAsMiss(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	ms := &mockKVStore{
		getFn: func(_ context.Context, _ string) ([]byte, error) {
			return []byte{1, 2, 3}, nil // not a multiple of 4
		},
	}
	c := newTestCachedEmbedder(inner, ms)

	if _, err := c.Embed(context.Background(), "q"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner calls: got %d, want 1", inner.calls)
	}
}

func TestEmbed_InnerError_Propagates(t *testing.T) {
	inner := &mockEmbedder{err: errors.New("rate limited")}
	c := newTestCachedEmbedder(inner, &mockKVStore{})

	if _, err := c.Embed(context.Background(), "q"); err == nil {
		t.Fatal("expected error from inner embedder")
	}
}

func TestEmbed_StoreSetError_DoesNotFail(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	ms := &mockKVStore{
		setFn: func(_ context.Context, _ string, _ []byte) error {
			return errors.New("write failed")
		},
	}
	c := newTestCachedEmbedder(inner, ms)

	if _, err := c.Embed(context.Background(), "q"); err != nil {
		t.Fatalf("cache write failure must not fail the call: %v", err)
	}
}

func TestCacheKey_DeterministicAndPrefixed(t *testing.T) {
	c := newTestCachedEmbedder(&mockEmbedder{}, &mockKVStore{})

	k1 := c.cacheKey("same question")
	k2 := c.cacheKey("same question")
	k3 := c.cacheKey("other question")

	if k1 != k2 {
		t.Error("key must be deterministic")
	}
	if k1 == k3 {
		t.Error("distinct texts must map to distinct keys")
	}
	if got, want := k1[:len(cacheKeyPrefix)], cacheKeyPrefix; got != want {
		t.Errorf("prefix: got %q, want %q", got, want)
	}
}
