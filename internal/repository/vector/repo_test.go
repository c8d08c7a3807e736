package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/kitab-cloud/isnad/internal/db"
)

type mockStore struct {
	lastQuery *db.KNNQuery
	result    *db.SearchResult
	err       error
}

func (m *mockStore) SearchKNN(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	m.lastQuery = q
	return m.result, m.err
}

func TestSearch_BuildsIndexName(t *testing.T) {
	store := &mockStore{result: &db.SearchResult{}}
	repo := New(store, "tafsir_chunks")

	_, err := repo.Search(context.Background(), []float32{0.1}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.lastQuery.IndexName != "isnad:tafsir_chunks:idx" {
		t.Errorf("index name: got %q", store.lastQuery.IndexName)
	}
	if store.lastQuery.K != 5 {
		t.Errorf("K: got %d, want 5", store.lastQuery.K)
	}
}

func TestSearch_ParsesChunks(t *testing.T) {
	store := &mockStore{result: &db.SearchResult{
		Total: 2,
		Entries: []db.SearchEntry{
			{
				Key:   "isnad:tafsir_chunks:c1",
				Score: 0.92,
				Fields: map[string]string{
					"__content":  "commentary text",
					"source":     "ibn_kathir",
					"surah":      "2",
					"ayah_start": "30",
					"ayah_end":   "33",
				},
			},
			{
				Key:    "isnad:tafsir_chunks:c2",
				Score:  0.81,
				Fields: map[string]string{"__content": "more text", "source": "tabari"},
			},
		},
	}}
	repo := New(store, "tafsir_chunks")

	chunks, err := repo.Search(context.Background(), []float32{0.1}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("chunks: got %d, want 2", len(chunks))
	}

	first := chunks[0]
	if first.Hit.CandidateID != "c1" {
		t.Errorf("candidate id: got %q, want key prefix stripped", first.Hit.CandidateID)
	}
	if first.Hit.Rank != 0 || chunks[1].Hit.Rank != 1 {
		t.Error("ranks must follow result order")
	}
	if first.Hit.Similarity != 0.92 {
		t.Errorf("similarity: got %g", first.Hit.Similarity)
	}
	if first.SourceID != "ibn_kathir" || first.Surah != 2 || first.Start != 30 || first.End != 33 {
		t.Errorf("payload: %+v", first)
	}

	// Missing numeric fields parse to zero, not an error.
	if chunks[1].Surah != 0 {
		t.Errorf("missing surah: got %d, want 0", chunks[1].Surah)
	}
}

func TestSearch_StoreError(t *testing.T) {
	store := &mockStore{err: errors.New("index missing")}
	repo := New(store, "tafsir_chunks")

	if _, err := repo.Search(context.Background(), []float32{0.1}, 5); err == nil {
		t.Fatal("expected error")
	}
}

func TestSearch_EmptyResult(t *testing.T) {
	store := &mockStore{result: &db.SearchResult{}}
	repo := New(store, "tafsir_chunks")

	chunks, err := repo.Search(context.Background(), []float32{0.1}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chunks != nil {
		t.Errorf("chunks: got %v, want nil", chunks)
	}
}
