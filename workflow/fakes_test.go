package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BaSui01/queryflow/corpus"
	"github.com/BaSui01/queryflow/types"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// ---- 能力替身 ----

type fakeTranslator struct {
	err   error
	calls []string
}

func (f *fakeTranslator) Translate(_ context.Context, text string) (string, error) {
	f.calls = append(f.calls, text)
	if f.err != nil {
		return "", f.err
	}
	return text, nil
}

type fakeRetriever struct {
	fragments []types.Fragment
	err       error
	queries   []string
	topKs     []int
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string, topK int) ([]types.Fragment, error) {
	f.queries = append(f.queries, query)
	f.topKs = append(f.topKs, topK)
	if f.err != nil {
		return nil, f.err
	}
	return append([]types.Fragment(nil), f.fragments...), nil
}

// fakeChat 按顺序返回 replies，用完后重复最后一个
type fakeChat struct {
	replies []string
	err     error
	prompts []string
}

func (f *fakeChat) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "", nil
	}
	i := len(f.prompts) - 1
	if i >= len(f.replies) {
		i = len(f.replies) - 1
	}
	return f.replies[i], nil
}

type aggregateCall struct {
	collection string
	stages     []bson.D
}

type fakeExecutor struct {
	docs  []bson.D
	errs  []error
	calls []aggregateCall
}

func (f *fakeExecutor) Aggregate(_ context.Context, collection string, stages []bson.D) ([]bson.D, error) {
	f.calls = append(f.calls, aggregateCall{collection, stages})
	if i := len(f.calls) - 1; i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return f.docs, nil
}

type fakeHistory struct {
	mu        sync.Mutex
	turns     map[string][]types.Turn
	appendErr error
	clearErr  error
	loads     int
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{turns: map[string][]types.Turn{}}
}

func (f *fakeHistory) Load(_ context.Context, sessionID string) ([]types.Turn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	return append([]types.Turn{}, f.turns[sessionID]...), nil
}

func (f *fakeHistory) Append(_ context.Context, sessionID, user, bot string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.turns[sessionID] = append(f.turns[sessionID], types.Turn{User: user, Bot: bot})
	return nil
}

func (f *fakeHistory) Clear(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clearErr != nil {
		return f.clearErr
	}
	delete(f.turns, sessionID)
	return nil
}

type fakeCorpus struct {
	records []corpus.Record
	err     error
}

func (f *fakeCorpus) Append(_ context.Context, rec corpus.Record) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

type nodeMetric struct {
	node   string
	status string
}

type fakeRecorder struct {
	mu       sync.Mutex
	nodes    []nodeMetric
	outcomes []string
	inFlight int
}

func (r *fakeRecorder) RecordNodeExecution(node, status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes = append(r.nodes, nodeMetric{node, status})
}

func (r *fakeRecorder) RecordTurnOutcome(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *fakeRecorder) TurnStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inFlight++
}

func (r *fakeRecorder) TurnFinished() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inFlight--
}

// ---- 组装 ----

var fixedNow = time.Date(2025, 3, 15, 10, 30, 0, 0, time.UTC)

type harness struct {
	translator *fakeTranslator
	retriever  *fakeRetriever
	chat       *fakeChat
	executor   *fakeExecutor
	history    *fakeHistory
	corpus     *fakeCorpus
	recorder   *fakeRecorder
	handlers   *Handlers
	graph      *Graph
}

func newHarness(replies ...string) *harness {
	h := &harness{
		translator: &fakeTranslator{},
		retriever: &fakeRetriever{fragments: []types.Fragment{
			{Content: "Invoice(InvoiceId, CustomerId, BillingCountry, Total)", Score: 0.91},
		}},
		chat:     &fakeChat{replies: replies},
		executor: &fakeExecutor{},
		history:  newFakeHistory(),
		corpus:   &fakeCorpus{},
		recorder: &fakeRecorder{},
	}
	handlers, err := NewHandlers(h.caps(), HandlerConfig{TopK: 5, Clock: func() time.Time { return fixedNow }}, nil)
	if err != nil {
		panic(err)
	}
	h.handlers = handlers
	h.graph = NewGraph(handlers, NewGovernor(3, 2), 0, h.recorder, nil)
	return h
}

func (h *harness) caps() Capabilities {
	return Capabilities{
		Translator: h.translator,
		Retriever:  h.retriever,
		Chat:       h.chat,
		Executor:   h.executor,
		History:    h.history,
	}
}

func (h *harness) pipeline(cp Checkpointer) *Pipeline {
	n := 0
	return NewPipeline(PipelineConfig{
		Graph:        h.graph,
		Checkpointer: cp,
		History:      h.history,
		Corpus:       h.corpus,
		Language:     "en",
		Recorder:     h.recorder,
		NewSessionID: func() string {
			n++
			return "session-" + string(rune('0'+n))
		},
	}, nil)
}

var errUpstream = errors.New("upstream unavailable")

const exampleReply = "```json\n" + ExampleQuery + "\n```"
