package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chirouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kitab-cloud/isnad/internal/config"
	"github.com/kitab-cloud/isnad/internal/domain"
	answeruc "github.com/kitab-cloud/isnad/internal/usecase/answer"
	confidenceuc "github.com/kitab-cloud/isnad/internal/usecase/confidence"
	evidenceuc "github.com/kitab-cloud/isnad/internal/usecase/evidence"
	expansionuc "github.com/kitab-cloud/isnad/internal/usecase/expansion"
	healthuc "github.com/kitab-cloud/isnad/internal/usecase/health"
	rerankuc "github.com/kitab-cloud/isnad/internal/usecase/rerank"
)

// --- Mocks ---

type mockEmbedder struct {
	err error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: []float32{0.1}}, nil
}

type mockSearcher struct {
	chunks []domain.RetrievedChunk
}

func (m *mockSearcher) Search(_ context.Context, _ []float32, _ int) ([]domain.RetrievedChunk, error) {
	return m.chunks, nil
}

type mockExpander struct{}

func (m *mockExpander) Expand(
	_ context.Context, _ []domain.VectorHit, _ expansionuc.Config,
) (expansionuc.Result, error) {
	return expansionuc.Result{Paths: map[string][]string{}}, nil
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

func newTestRouter(embErr error, chunks []domain.RetrievedChunk, pingErr error) http.Handler {
	resolver := evidenceuc.NewResolver(
		[]string{"ibn_kathir", "tabari"},
		map[string]float64{"ibn_kathir": 0.95, "tabari": 0.9},
		evidenceuc.Config{},
	)
	cfg := config.Config{}
	cfg.ApplyDefaults()
	scorer := confidenceuc.New(cfg.Confidence)
	reranker := rerankuc.New(nil, rerankuc.Config{}, zap.NewNop())

	answerSvc := answeruc.New(
		&mockEmbedder{err: embErr},
		&mockSearcher{chunks: chunks},
		&mockExpander{},
		reranker,
		resolver,
		scorer,
		answeruc.Config{},
		zap.NewNop(),
	)
	healthSvc := healthuc.New(&mockPinger{err: pingErr}, nil)
	server := NewServer(answerSvc, healthSvc, zap.NewNop())

	r := chirouter.NewRouter()
	server.Routes(r)
	return r
}

func goodChunks() []domain.RetrievedChunk {
	return []domain.RetrievedChunk{
		{
			Hit:      domain.VectorHit{CandidateID: "c1", Rank: 0, Similarity: 0.9},
			Text:     "Ibn Kathir relates the story of Adam.",
			SourceID: "ibn_kathir", Surah: 2, Start: 30, End: 33,
		},
		{
			Hit:      domain.VectorHit{CandidateID: "c2", Rank: 1, Similarity: 0.85},
			Text:     "Tabari reports the event with its chain.",
			SourceID: "tabari", Surah: 2, Start: 30, End: 33,
		},
	}
}

// --- Tests ---

func TestAnswer_InvalidBody_400(t *testing.T) {
	router := newTestRouter(nil, goodChunks(), nil)

	req := httptest.NewRequest("POST", "/v1/answer", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestAnswer_MissingQuestion_400(t *testing.T) {
	router := newTestRouter(nil, goodChunks(), nil)

	req := httptest.NewRequest("POST", "/v1/answer", strings.NewReader(`{"constraints":{}}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestAnswer_OK_200(t *testing.T) {
	router := newTestRouter(nil, goodChunks(), nil)

	req := httptest.NewRequest("POST", "/v1/answer",
		strings.NewReader(`{"question":"what happened at the creation of Adam"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rr.Code, rr.Body.String())
	}

	var ans domain.Answer
	if err := json.NewDecoder(rr.Body).Decode(&ans); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if ans.RunID == "" {
		t.Error("run id must be present")
	}
	if ans.Outcome == domain.OutcomeRefused && len(ans.Citations) != 0 {
		t.Error("refusal must not carry citations")
	}
}

// A refusal is a well-formed 200 response, never an HTTP error.
func TestAnswer_Refusal_200(t *testing.T) {
	router := newTestRouter(nil, nil, nil)

	req := httptest.NewRequest("POST", "/v1/answer", strings.NewReader(`{"question":"unanswerable"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 for a refusal", rr.Code)
	}

	var ans domain.Answer
	if err := json.NewDecoder(rr.Body).Decode(&ans); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if ans.Outcome != domain.OutcomeRefused {
		t.Errorf("outcome: got %q, want refused", ans.Outcome)
	}
	if len(ans.Citations) != 0 {
		t.Error("refusal must carry zero citations")
	}
	if ans.Confidence.RefusalReason == "" {
		t.Error("refusal must carry a reason")
	}
}

func TestAnswer_RetrievalDown_503(t *testing.T) {
	router := newTestRouter(errors.New("embedding api down"), nil, nil)

	req := httptest.NewRequest("POST", "/v1/answer", strings.NewReader(`{"question":"q"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}

	var errResp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Code != codeServiceUnavailable {
		t.Errorf("error code: got %s, want %s", errResp.Code, codeServiceUnavailable)
	}
}

func TestHealthz_200(t *testing.T) {
	router := newTestRouter(nil, nil, nil)

	req := httptest.NewRequest("GET", "/healthz", http.NoBody)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestReadyz_StoreUp_200(t *testing.T) {
	router := newTestRouter(nil, nil, nil)

	req := httptest.NewRequest("GET", "/readyz", http.NoBody)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestReadyz_StoreDown_503(t *testing.T) {
	router := newTestRouter(nil, nil, errors.New("conn refused"))

	req := httptest.NewRequest("GET", "/readyz", http.NoBody)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}
