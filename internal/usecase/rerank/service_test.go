package rerank

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/kitab-cloud/isnad/internal/domain"
)

// --- Mocks ---

type mockScorer struct {
	scores    []float64
	err       error
	errOnCall int // 0 means every call fails when err is set
	calls     int
}

func (m *mockScorer) ScoreBatch(_ context.Context, _ string, texts []string) ([]float64, error) {
	m.calls++
	if m.err != nil && (m.errOnCall == 0 || m.calls == m.errOnCall) {
		return nil, m.err
	}
	if len(m.scores) < len(texts) {
		out := m.scores
		m.scores = nil
		return out, nil
	}
	out := m.scores[:len(texts)]
	m.scores = m.scores[len(texts):]
	return out, nil
}

func candidates() []domain.Candidate {
	return []domain.Candidate{
		{ID: "a", Text: "the story of Musa and Khidr", Score: 0.8, Rank: 0},
		{ID: "b", Text: "the patience of Ayyub", Score: 0.7, Rank: 1},
		{ID: "c", Text: "Musa at the meeting of the two seas", Score: 0.6, Rank: 2},
	}
}

// --- Tests ---

func TestRerank_LexicalIdempotent(t *testing.T) {
	svc := New(nil, Config{LexicalWeight: 0.3}, zap.NewNop())
	query := "story of Musa"

	first, _ := svc.Rerank(context.Background(), query, candidates(), 0, false)
	second, _ := svc.Rerank(context.Background(), query, candidates(), 0, false)

	if !reflect.DeepEqual(first, second) {
		t.Fatal("lexical rerank must be idempotent for identical input")
	}
}

func TestRerank_EmptyTexts_PreservesOrder(t *testing.T) {
	svc := New(nil, Config{}, zap.NewNop())
	cands := []domain.Candidate{
		{ID: "a", Rank: 0, Score: 0.9},
		{ID: "b", Rank: 1, Score: 0.5},
		{ID: "c", Rank: 2, Score: 0.7},
	}

	out, _ := svc.Rerank(context.Background(), "anything", cands, 0, false)

	for i, c := range out {
		if c.Score != 0 {
			t.Errorf("candidate %s: score %g, want 0 for empty text", c.ID, c.Score)
		}
		if c.Rank != i {
			t.Errorf("position %d: got rank %d, original order must be preserved", i, c.Rank)
		}
	}
}

func TestRerank_ModelPath_MapsByIndex(t *testing.T) {
	// One empty-text candidate in the middle: the model sees two texts, and
	// its scores must land on the right candidates.
	scorer := &mockScorer{scores: []float64{-2, 5}}
	svc := New(scorer, Config{}, zap.NewNop())
	cands := []domain.Candidate{
		{ID: "low", Text: "x", Score: 0.9, Rank: 0},
		{ID: "empty", Text: "", Score: 0.8, Rank: 1},
		{ID: "high", Text: "y", Score: 0.1, Rank: 2},
	}

	out, meta := svc.Rerank(context.Background(), "q", cands, 0, true)

	if meta.Method != MethodModel || meta.Degraded {
		t.Fatalf("meta: %+v, want model method without degradation", meta)
	}
	if out[0].ID != "high" {
		t.Errorf("first: got %s, want the model-preferred candidate", out[0].ID)
	}
	if out[len(out)-1].ID != "empty" {
		t.Errorf("last: got %s, want the empty-text candidate", out[len(out)-1].ID)
	}
}

func TestRerank_ModelFailure_FallsBackToLexical(t *testing.T) {
	scorer := &mockScorer{err: errors.New("connection refused")}
	svc := New(scorer, Config{LexicalWeight: 0.3}, zap.NewNop())

	out, meta := svc.Rerank(context.Background(), "story of Musa", candidates(), 0, true)

	if meta.Method != MethodLexical {
		t.Errorf("method: got %q, want lexical fallback", meta.Method)
	}
	if !meta.Degraded || meta.Reason == "" {
		t.Error("fallback must be flagged as degraded with a reason")
	}
	if len(out) != 3 {
		t.Errorf("candidates: got %d, want 3 (fallback never drops)", len(out))
	}

	// Fallback output must match a pure lexical run.
	pure, _ := New(nil, Config{LexicalWeight: 0.3}, zap.NewNop()).
		Rerank(context.Background(), "story of Musa", candidates(), 0, false)
	if !reflect.DeepEqual(out, pure) {
		t.Error("degraded output must equal the deterministic lexical ordering")
	}
}

func TestRerank_MidBatchFailure_FallbackIgnoresPartialModelScores(t *testing.T) {
	// First batch succeeds with extreme raw scores, second batch fails. The
	// lexical fallback must start from the original incoming scores, not from
	// the partially committed model scores, so the degraded output is
	// identical no matter which batch failed.
	scorer := &mockScorer{scores: []float64{10, 10}, err: errors.New("model crashed"), errOnCall: 2}
	svc := New(scorer, Config{BatchSize: 2, LexicalWeight: 0.3}, zap.NewNop())

	out, meta := svc.Rerank(context.Background(), "story of Musa", candidates(), 0, true)

	if meta.Method != MethodLexical || !meta.Degraded {
		t.Fatalf("mid-batch failure must degrade to lexical, got %+v", meta)
	}
	if scorer.calls != 2 {
		t.Fatalf("calls: got %d, want 2 (failure on the second batch)", scorer.calls)
	}

	pure, _ := New(nil, Config{BatchSize: 2, LexicalWeight: 0.3}, zap.NewNop()).
		Rerank(context.Background(), "story of Musa", candidates(), 0, false)
	if !reflect.DeepEqual(out, pure) {
		t.Errorf("degraded output must equal the pure lexical run:\n got %+v\nwant %+v", out, pure)
	}
}

func TestRerank_ShortScoreBatch_FallsBack(t *testing.T) {
	scorer := &mockScorer{scores: []float64{1}} // fewer scores than texts
	svc := New(scorer, Config{}, zap.NewNop())

	_, meta := svc.Rerank(context.Background(), "q", candidates()[:2], 0, true)

	if meta.Method != MethodLexical || !meta.Degraded {
		t.Fatalf("malformed model output must degrade to lexical, got %+v", meta)
	}
}

func TestRerank_TopKTruncation(t *testing.T) {
	svc := New(nil, Config{}, zap.NewNop())

	out, _ := svc.Rerank(context.Background(), "Musa", candidates(), 2, false)
	if len(out) != 2 {
		t.Fatalf("topK: got %d, want 2", len(out))
	}
}

func TestRerank_NoScorer_PreferModelIgnored(t *testing.T) {
	svc := New(nil, Config{}, zap.NewNop())

	_, meta := svc.Rerank(context.Background(), "Musa", candidates(), 0, true)
	if meta.Method != MethodLexical {
		t.Errorf("method: got %q, want lexical when no scorer is configured", meta.Method)
	}
	if meta.Degraded {
		t.Error("absent scorer is a supported configuration, not a degradation")
	}
}

func TestRerank_InputNotMutated(t *testing.T) {
	svc := New(nil, Config{}, zap.NewNop())
	in := candidates()
	snapshot := make([]domain.Candidate, len(in))
	copy(snapshot, in)

	svc.Rerank(context.Background(), "Musa", in, 0, false)

	if !reflect.DeepEqual(in, snapshot) {
		t.Fatal("input slice must not be mutated")
	}
}

func TestRerank_Batching(t *testing.T) {
	scorer := &mockScorer{scores: []float64{1, 2, 3, 4, 5}}
	svc := New(scorer, Config{BatchSize: 2}, zap.NewNop())
	cands := make([]domain.Candidate, 5)
	for i := range cands {
		cands[i] = domain.Candidate{ID: string(rune('a' + i)), Text: "t", Rank: i}
	}

	_, meta := svc.Rerank(context.Background(), "q", cands, 0, true)

	if meta.Method != MethodModel {
		t.Fatalf("meta: %+v", meta)
	}
	if scorer.calls != 3 {
		t.Errorf("batches: got %d calls, want 3 for 5 texts at batch size 2", scorer.calls)
	}
}

func TestLogistic_Saturates(t *testing.T) {
	if logistic(100) != 1 {
		t.Error("large positive input must saturate to 1")
	}
	if logistic(-100) != 0 {
		t.Error("large negative input must saturate to 0")
	}
	mid := logistic(0)
	if mid != 0.5 {
		t.Errorf("logistic(0): got %g, want 0.5", mid)
	}
}

func TestTokenize_ArabicText(t *testing.T) {
	tokens := tokenize("قصة موسى والخضر")
	if len(tokens) != 3 {
		t.Fatalf("tokens: got %d (%v), want 3", len(tokens), tokens)
	}
}
