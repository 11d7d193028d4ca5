package worker

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aescanero/dago-node-proposal/internal/blocks"
	"github.com/aescanero/dago-node-proposal/internal/config"
	"github.com/aescanero/dago-node-proposal/internal/eval/cel"
	"github.com/aescanero/dago-node-proposal/internal/eval/template"
	"github.com/aescanero/dago-node-proposal/internal/proposal"
	"github.com/aescanero/dago-node-proposal/internal/store"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type fakeStreams struct {
	mu       sync.Mutex
	added    map[string][]string
	acked    []string
	groupErr error
	pending  []redis.XMessage
}

func newFakeStreams() *fakeStreams {
	return &fakeStreams{added: map[string][]string{}}
}

func (f *fakeStreams) XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd {
	return redis.NewStatusResult("OK", f.groupErr)
}

func (f *fakeStreams) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	f.mu.Lock()
	if len(f.pending) > 0 {
		msg := f.pending[0]
		f.pending = f.pending[1:]
		f.mu.Unlock()
		return redis.NewXStreamSliceCmdResult([]redis.XStream{{Stream: a.Streams[0], Messages: []redis.XMessage{msg}}}, nil)
	}
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		return redis.NewXStreamSliceCmdResult(nil, ctx.Err())
	case <-time.After(a.Block):
		return redis.NewXStreamSliceCmdResult(nil, redis.Nil)
	}
}

func (f *fakeStreams) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	values := a.Values.(map[string]interface{})
	f.added[a.Stream] = append(f.added[a.Stream], values["data"].(string))
	return redis.NewStringResult("1-0", nil)
}

func (f *fakeStreams) XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, ids...)
	return redis.NewIntResult(int64(len(ids)), nil)
}

func (f *fakeStreams) published(t *testing.T, stream string) []map[string]interface{} {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []map[string]interface{}
	for _, data := range f.added[stream] {
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			t.Fatalf("published invalid JSON on %s: %v", stream, err)
		}
		out = append(out, m)
	}
	return out
}

func (f *fakeStreams) ackCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.acked)
}

type fakeProposals map[string]*proposal.Proposal

func (f fakeProposals) Load(ctx context.Context, id string) (*proposal.Proposal, error) {
	if p, ok := f[id]; ok {
		return p, nil
	}
	return nil, store.ErrNotFound
}

type fakeTemplates map[string]*proposal.Template

func (f fakeTemplates) Load(ctx context.Context, id string) (*proposal.Template, error) {
	if tpl, ok := f[id]; ok {
		return tpl, nil
	}
	return nil, store.ErrNotFound
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]string
	getErr  error
}

func (f *fakeCache) Get(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return "", false, f.getErr
	}
	html, ok := f.entries[key]
	return html, ok, nil
}

func (f *fakeCache) Put(ctx context.Context, key, html string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = html
	return nil
}

type fixture struct {
	worker    *Worker
	streams   *fakeStreams
	cache     *fakeCache
	proposals fakeProposals
}

func newFixture(t *testing.T, engineOpts ...template.Option) *fixture {
	t.Helper()

	cfg := &config.Config{
		WorkerID:      "proposal-test",
		StreamKey:     "proposal.render",
		ConsumerGroup: "proposal-workers",
		ResultStream:  "proposal.rendered",
		BlockTime:     10 * time.Millisecond,
	}

	vars := proposal.Variables{
		Cliente: proposal.Party{Nome: "ACME"},
		Precos: proposal.Pricing{
			Itens:          []proposal.PriceItem{{Name: "Setup", Quantity: 1, UnitPrice: 1000}},
			TotalFormatado: "R$ 1.000,00",
		},
	}

	proposals := fakeProposals{
		"p-template": {ID: "p-template", TemplateID: "tpl-pricing", Variables: vars},
		"p-blocks":   {ID: "p-blocks", Blocks: []proposal.Block{{ID: "s", Type: "signature"}}, Variables: vars},
		"p-none":     {ID: "p-none", Variables: vars},
	}
	templates := fakeTemplates{
		"tpl-pricing": {ID: "tpl-pricing", Name: "Preços", Blocks: []proposal.Block{{ID: "p", Type: "pricing"}}},
		"tpl-hero":    {ID: "tpl-hero", Name: "Capa", Blocks: []proposal.Block{{ID: "h", Type: "hero"}}},
	}

	streams := newFakeStreams()
	cache := &fakeCache{entries: map[string]string{}}
	renderer := blocks.NewRenderer(template.NewEngine(engineOpts...), blocks.NewCatalog(), cel.NewEvaluator(), zap.NewNop())

	return &fixture{
		worker:    NewWorker(cfg, streams, proposals, templates, cache, renderer, zap.NewNop()),
		streams:   streams,
		cache:     cache,
		proposals: proposals,
	}
}

func renderMessage(id string, req RenderRequest) redis.XMessage {
	data, _ := json.Marshal(req)
	return redis.XMessage{ID: id, Values: map[string]interface{}{"data": string(data)}}
}

func TestHandleMessageRendersAndCaches(t *testing.T) {
	f := newFixture(t)

	f.worker.handleMessage(renderMessage("1-0", RenderRequest{RequestID: "r1", ProposalID: "p-template"}))

	results := f.streams.published(t, "proposal.rendered")
	if len(results) != 1 {
		t.Fatalf("published %d results, want 1", len(results))
	}
	res := results[0]
	if res["request_id"] != "r1" || res["proposal_id"] != "p-template" || res["cache_hit"] != false {
		t.Errorf("result = %v", res)
	}
	if _, ok := res["limit_error"]; ok {
		t.Errorf("result has a limit_error: %v", res)
	}

	key := res["render_key"].(string)
	html, ok := f.cache.entries[key]
	if !ok {
		t.Fatalf("render %s was not cached", key)
	}
	if !strings.Contains(html, "Setup") || int(res["bytes"].(float64)) != len(html) {
		t.Errorf("cached document = %q, bytes = %v", html, res["bytes"])
	}
	if f.streams.ackCount() != 1 {
		t.Errorf("acked %d messages, want 1", f.streams.ackCount())
	}

	f.worker.handleMessage(renderMessage("2-0", RenderRequest{RequestID: "r2", ProposalID: "p-template"}))

	results = f.streams.published(t, "proposal.rendered")
	if len(results) != 2 || results[1]["cache_hit"] != true || results[1]["render_key"] != key {
		t.Errorf("second result = %v, want a cache hit on %s", results[len(results)-1], key)
	}

	if diff := cmp.Diff(Stats{Rendered: 1, CacheHits: 1}, f.worker.Stats()); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleMessageBlockSelection(t *testing.T) {
	tests := []struct {
		name    string
		request RenderRequest
		want    string
	}{
		{"proposal template", RenderRequest{ProposalID: "p-template"}, "block-pricing"},
		{"proposal blocks", RenderRequest{ProposalID: "p-blocks"}, "block-signature"},
		{"requested template overrides", RenderRequest{ProposalID: "p-blocks", TemplateID: "tpl-hero"}, "block-hero"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.worker.handleMessage(renderMessage("1-0", tt.request))

			results := f.streams.published(t, "proposal.rendered")
			if len(results) != 1 {
				t.Fatalf("published %d results, want 1", len(results))
			}
			html := f.cache.entries[results[0]["render_key"].(string)]
			if !strings.Contains(html, tt.want) {
				t.Errorf("document does not contain %q:\n%s", tt.want, html)
			}
		})
	}
}

func TestHandleMessageErrors(t *testing.T) {
	tests := []struct {
		name         string
		request      RenderRequest
		wantNotFound bool
	}{
		{"missing proposal", RenderRequest{RequestID: "r", ProposalID: "nope"}, true},
		{"missing template", RenderRequest{RequestID: "r", ProposalID: "p-template", TemplateID: "nope"}, true},
		{"no blocks", RenderRequest{RequestID: "r", ProposalID: "p-none"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.worker.handleMessage(renderMessage("1-0", tt.request))

			if n := len(f.streams.published(t, "proposal.rendered")); n != 0 {
				t.Errorf("published %d results, want none", n)
			}
			errs := f.streams.published(t, "proposal.rendered.errors")
			if len(errs) != 1 {
				t.Fatalf("published %d errors, want 1", len(errs))
			}
			if errs[0]["request_id"] != "r" || errs[0]["not_found"] != tt.wantNotFound {
				t.Errorf("error event = %v", errs[0])
			}
			if f.streams.ackCount() != 1 {
				t.Errorf("message was not acknowledged")
			}
		})
	}
}

func TestHandleMessageMalformed(t *testing.T) {
	f := newFixture(t)

	f.worker.handleMessage(redis.XMessage{ID: "1-0", Values: map[string]interface{}{"payload": "x"}})
	f.worker.handleMessage(redis.XMessage{ID: "2-0", Values: map[string]interface{}{"data": "{"}})
	f.worker.handleMessage(renderMessage("3-0", RenderRequest{RequestID: "r"}))

	if n := len(f.streams.published(t, "proposal.rendered.errors")); n != 0 {
		t.Errorf("published %d error events for unparseable messages, want none", n)
	}
	if f.streams.ackCount() != 3 {
		t.Errorf("acked %d messages, want 3", f.streams.ackCount())
	}
	if got := f.worker.Stats().Failed; got != 3 {
		t.Errorf("failed = %d, want 3", got)
	}
}

func TestHandleMessageLimitError(t *testing.T) {
	f := newFixture(t, template.WithMaxOutput(16))

	f.worker.handleMessage(renderMessage("1-0", RenderRequest{RequestID: "r1", ProposalID: "p-template"}))
	f.worker.handleMessage(renderMessage("2-0", RenderRequest{RequestID: "r2", ProposalID: "p-template"}))

	results := f.streams.published(t, "proposal.rendered")
	if len(results) != 2 {
		t.Fatalf("published %d results, want 2", len(results))
	}
	for _, res := range results {
		if res["limit_error"] == nil || res["cache_hit"] != false {
			t.Errorf("result = %v, want a limit error and no cache hit", res)
		}
		if !strings.HasSuffix(res["render_key"].(string), ":partial") {
			t.Errorf("render_key = %v, want the partial suffix", res["render_key"])
		}
	}
	if diff := cmp.Diff(Stats{Rendered: 2, Partial: 2}, f.worker.Stats()); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleMessageCacheUnavailable(t *testing.T) {
	f := newFixture(t)
	f.cache.getErr = errors.New("connection refused")

	f.worker.handleMessage(renderMessage("1-0", RenderRequest{RequestID: "r1", ProposalID: "p-template"}))

	results := f.streams.published(t, "proposal.rendered")
	if len(results) != 1 || results[0]["cache_hit"] != false {
		t.Errorf("results = %v, want a fresh render", results)
	}
}

func TestStartProcessesStream(t *testing.T) {
	f := newFixture(t)
	f.streams.pending = []redis.XMessage{
		renderMessage("1-0", RenderRequest{RequestID: "r1", ProposalID: "p-template"}),
		renderMessage("2-0", RenderRequest{RequestID: "r2", ProposalID: "p-blocks"}),
	}

	if err := f.worker.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !f.worker.Running() {
		t.Error("Running() = false after Start")
	}

	deadline := time.Now().Add(5 * time.Second)
	for f.streams.ackCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("acked %d messages, want 2", f.streams.ackCount())
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := f.worker.Stop(time.Second); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if f.worker.Running() {
		t.Error("Running() = true after Stop")
	}
	if n := len(f.streams.published(t, "proposal.rendered")); n != 2 {
		t.Errorf("published %d results, want 2", n)
	}
}

func TestStartConsumerGroup(t *testing.T) {
	f := newFixture(t)
	f.streams.groupErr = errors.New("BUSYGROUP Consumer Group name already exists")
	if err := f.worker.Start(); err != nil {
		t.Fatalf("Start() with an existing group error = %v", err)
	}
	_ = f.worker.Stop(time.Second)

	f = newFixture(t)
	f.streams.groupErr = errors.New("NOPERM")
	if err := f.worker.Start(); err == nil {
		t.Errorf("Start() should fail when the group cannot be created")
	}
}

func TestHandleMessageNonFinitePrice(t *testing.T) {
	f := newFixture(t)
	f.proposals["p-nan"] = &proposal.Proposal{
		ID:         "p-nan",
		TemplateID: "tpl-pricing",
		Variables: proposal.Variables{
			Precos: proposal.Pricing{Itens: []proposal.PriceItem{{Name: "Setup", Quantity: 1, UnitPrice: math.NaN()}}},
		},
	}

	f.worker.handleMessage(renderMessage("1-0", RenderRequest{RequestID: "r1", ProposalID: "p-nan"}))

	if n := len(f.streams.published(t, "proposal.rendered.errors")); n != 0 {
		t.Fatalf("published %d error events, want none", n)
	}
	results := f.streams.published(t, "proposal.rendered")
	if len(results) != 1 {
		t.Fatalf("published %d results, want 1", len(results))
	}
	html := f.cache.entries[results[0]["render_key"].(string)]
	if !strings.Contains(html, "Setup") || !strings.Contains(html, "0,00") {
		t.Errorf("document = %q, want the item priced at the currency fallback", html)
	}
}
