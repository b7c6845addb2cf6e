package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/koopa0/docent/internal/corpus"
	"github.com/koopa0/docent/internal/log"
	"github.com/koopa0/docent/internal/retrieval"
	"github.com/koopa0/docent/internal/testutil"
)

// memStore is an in-memory ChunkStore for driving the retrieval engine.
type memStore struct {
	scored []corpus.ScoredChunk
	chunks []corpus.Chunk
	urls   []string
}

func (m *memStore) SimilaritySearch(context.Context, []float32, ...corpus.SearchOption) ([]corpus.ScoredChunk, error) {
	return m.scored, nil
}

func (m *memStore) DistinctURLs(context.Context) ([]string, error) {
	return m.urls, nil
}

func (m *memStore) PageChunks(context.Context, string) ([]corpus.Chunk, error) {
	return m.chunks, nil
}

type staticEmbedder struct{}

func (staticEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

// testExpert wires a full expert over a mock model and an in-memory corpus.
func testExpert(t *testing.T, mock *testutil.MockLLM, store *memStore, maxToolRounds int) *Expert {
	t.Helper()

	g := genkit.Init(context.Background())
	if g == nil {
		t.Fatal("genkit.Init returned nil")
	}
	mock.RegisterModel(g)

	engine, err := retrieval.NewEngine(retrieval.Config{
		Store:    store,
		Embedder: staticEmbedder{},
		Logger:   log.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	tools, err := NewTools(engine, log.NewNop())
	if err != nil {
		t.Fatalf("NewTools: %v", err)
	}
	registered, err := Register(g, tools)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	expert, err := New(Config{
		Genkit:        g,
		Tools:         tools,
		Logger:        log.NewNop(),
		ModelName:     "mock/test-model",
		MaxToolRounds: maxToolRounds,
		Registered:    registered,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return expert
}

func TestAskAnswersAfterToolRound(t *testing.T) {
	store := &memStore{scored: []corpus.ScoredChunk{
		{Chunk: corpus.Chunk{Title: "Agents", Content: "Agents run tools."}},
	}}

	mock := testutil.NewMockLLM("fallback")
	mock.Script(
		testutil.ScriptedTurn{Tools: []*ai.ToolRequest{{
			Name:  RetrieveDocumentationName,
			Ref:   "call-1",
			Input: map[string]any{"user_query": "how do agents work"},
		}}},
		testutil.ScriptedTurn{Text: "Agents run tools, per the documentation."},
	)

	expert := testExpert(t, mock, store, 2)

	resp, err := expert.Ask(context.Background(), "how do agents work?", nil)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if resp.Answer != "Agents run tools, per the documentation." {
		t.Errorf("Answer = %q", resp.Answer)
	}
	if resp.Exhausted {
		t.Error("Exhausted = true, want false")
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0] != RetrieveDocumentationName {
		t.Errorf("ToolCalls = %v", resp.ToolCalls)
	}
	if got := mock.CallCount(); got != 2 {
		t.Errorf("model calls = %d, want 2", got)
	}

	// Second request must contain the tool response with retrieved text.
	reqs := mock.Requests()
	var sawToolResponse bool
	for _, msg := range reqs[1].Messages {
		for _, part := range msg.Content {
			if part.ToolResponse != nil {
				sawToolResponse = true
				out, _ := part.ToolResponse.Output.(string)
				if !strings.Contains(out, "Agents run tools.") {
					t.Errorf("tool response output = %q, want retrieved chunk", out)
				}
				if part.ToolResponse.Ref != "call-1" {
					t.Errorf("tool response ref = %q, want call-1", part.ToolResponse.Ref)
				}
			}
		}
	}
	if !sawToolResponse {
		t.Error("second model request has no tool response message")
	}
}

func TestAskBoundsToolRounds(t *testing.T) {
	store := &memStore{urls: []string{"https://a"}}

	toolTurn := testutil.ScriptedTurn{Tools: []*ai.ToolRequest{{
		Name: ListPagesName,
		Ref:  "loop",
	}}}

	mock := testutil.NewMockLLM("fallback")
	// The model never stops asking for tools.
	mock.Script(toolTurn, toolTurn, toolTurn, toolTurn, toolTurn, toolTurn)

	expert := testExpert(t, mock, store, 2)

	resp, err := expert.Ask(context.Background(), "list everything forever", nil)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if !resp.Exhausted {
		t.Error("Exhausted = false, want true")
	}
	if resp.Answer != fallbackAnswer {
		t.Errorf("Answer = %q, want fallback", resp.Answer)
	}
	// maxToolRounds=2 allows at most 3 model calls.
	if got := mock.CallCount(); got != 3 {
		t.Errorf("model calls = %d, want 3", got)
	}
}

func TestAskUnknownToolDoesNotCrash(t *testing.T) {
	mock := testutil.NewMockLLM("fallback")
	mock.Script(
		testutil.ScriptedTurn{Tools: []*ai.ToolRequest{{
			Name: "delete_everything",
			Ref:  "x",
		}}},
		testutil.ScriptedTurn{Text: "I don't have that tool."},
	)

	expert := testExpert(t, mock, &memStore{}, 2)

	resp, err := expert.Ask(context.Background(), "do something weird", nil)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if resp.Answer != "I don't have that tool." {
		t.Errorf("Answer = %q", resp.Answer)
	}

	// The unknown tool gets an error payload, visible in the second request.
	reqs := mock.Requests()
	var sawError bool
	for _, msg := range reqs[1].Messages {
		for _, part := range msg.Content {
			if part.ToolResponse == nil {
				continue
			}
			if out, ok := part.ToolResponse.Output.(map[string]any); ok {
				if errText, ok := out["error"].(string); ok && strings.Contains(errText, "unknown tool") {
					sawError = true
				}
			}
		}
	}
	if !sawError {
		t.Error("unknown tool did not produce an error payload")
	}
}

func TestAskDoesNotMutateHistory(t *testing.T) {
	mock := testutil.NewMockLLM("the answer")

	expert := testExpert(t, mock, &memStore{}, 2)

	history := []*ai.Message{
		ai.NewUserMessage(ai.NewTextPart("earlier question")),
		ai.NewModelMessage(ai.NewTextPart("earlier answer")),
	}

	if _, err := expert.Ask(context.Background(), "new question", history); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if len(history) != 2 {
		t.Fatalf("history length changed to %d", len(history))
	}
	if history[0].Text() != "earlier question" || history[1].Text() != "earlier answer" {
		t.Error("history content was mutated")
	}
}

func TestAskEmptyQuestion(t *testing.T) {
	mock := testutil.NewMockLLM("unused")
	expert := testExpert(t, mock, &memStore{}, 2)

	if _, err := expert.Ask(context.Background(), "   ", nil); err == nil {
		t.Error("Ask with blank question should fail")
	}
}

func TestAskEmptyModelTextFallsBack(t *testing.T) {
	mock := testutil.NewMockLLM("")
	mock.Script(testutil.ScriptedTurn{Text: ""})

	expert := testExpert(t, mock, &memStore{}, 2)

	resp, err := expert.Ask(context.Background(), "anything", nil)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if resp.Answer != fallbackAnswer {
		t.Errorf("Answer = %q, want fallback", resp.Answer)
	}
}

func TestDispatchDecodesInput(t *testing.T) {
	engine, err := retrieval.NewEngine(retrieval.Config{
		Store: &memStore{chunks: []corpus.Chunk{
			{Title: "Page", Content: "Body"},
		}},
		Embedder: staticEmbedder{},
		Logger:   log.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	tools, err := NewTools(engine, log.NewNop())
	if err != nil {
		t.Fatalf("NewTools: %v", err)
	}

	e := &Expert{tools: tools, logger: log.NewNop()}

	out, err := e.dispatch(context.Background(), &ai.ToolRequest{
		Name:  GetPageContentName,
		Input: map[string]any{"url": "https://a"},
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	text, ok := out.(string)
	if !ok || !strings.HasPrefix(text, "# Page") {
		t.Errorf("dispatch output = %v, want page content", out)
	}
}
