package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aescanero/dago-node-proposal/internal/blocks"
	"github.com/aescanero/dago-node-proposal/internal/config"
	"github.com/aescanero/dago-node-proposal/internal/proposal"
	"github.com/aescanero/dago-node-proposal/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Streams is the part of the Redis client the worker uses
type Streams interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// ProposalLoader loads proposals by id
type ProposalLoader interface {
	Load(ctx context.Context, id string) (*proposal.Proposal, error)
}

// TemplateLoader loads block templates by id
type TemplateLoader interface {
	Load(ctx context.Context, id string) (*proposal.Template, error)
}

// RenderCache stores rendered documents
type RenderCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, html string) error
}

// partialSuffix marks documents cut short by a render limit. They are stored
// for the caller but never served as cache hits.
const partialSuffix = ":partial"

// Stats counts the requests a worker has handled
type Stats struct {
	Rendered  int64 `json:"rendered"`
	CacheHits int64 `json:"cache_hits"`
	Partial   int64 `json:"partial"`
	Failed    int64 `json:"failed"`
}

type counters struct {
	rendered  atomic.Int64
	cacheHits atomic.Int64
	partial   atomic.Int64
	failed    atomic.Int64
}

// Worker represents the proposal render worker
type Worker struct {
	id            string
	config        *config.Config
	streams       Streams
	proposals     ProposalLoader
	templates     TemplateLoader
	cache         RenderCache
	renderer      *blocks.Renderer
	logger        *zap.Logger
	ctx           context.Context
	cancel        context.CancelFunc
	done          chan struct{}
	running       atomic.Bool
	stats         counters
	streamKey     string
	consumerGroup string
	resultStream  string
}

// NewWorker creates a new worker
func NewWorker(
	cfg *config.Config,
	streams Streams,
	proposals ProposalLoader,
	templates TemplateLoader,
	cache RenderCache,
	renderer *blocks.Renderer,
	logger *zap.Logger,
) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		id:            cfg.WorkerID,
		config:        cfg,
		streams:       streams,
		proposals:     proposals,
		templates:     templates,
		cache:         cache,
		renderer:      renderer,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
		streamKey:     cfg.StreamKey,
		consumerGroup: cfg.ConsumerGroup,
		resultStream:  cfg.ResultStream,
	}
}

// Start starts the worker
func (w *Worker) Start() error {
	w.logger.Info("starting proposal worker",
		zap.String("worker_id", w.id),
		zap.String("stream_key", w.streamKey),
		zap.String("consumer_group", w.consumerGroup),
	)

	if err := w.ensureConsumerGroup(); err != nil {
		return fmt.Errorf("failed to ensure consumer group: %w", err)
	}

	w.running.Store(true)
	go w.processWork()

	w.logger.Info("proposal worker started", zap.String("worker_id", w.id))
	return nil
}

// Stop stops the worker, waiting up to timeout for the message in flight
func (w *Worker) Stop(timeout time.Duration) error {
	w.logger.Info("stopping proposal worker", zap.String("worker_id", w.id))

	w.cancel()

	select {
	case <-w.done:
	case <-time.After(timeout):
		return fmt.Errorf("worker did not stop within %s", timeout)
	}

	w.logger.Info("proposal worker stopped", zap.String("worker_id", w.id))
	return nil
}

// Running reports whether the work loop is consuming the stream
func (w *Worker) Running() bool {
	return w.running.Load()
}

// Stats returns a snapshot of the request counters
func (w *Worker) Stats() Stats {
	return Stats{
		Rendered:  w.stats.rendered.Load(),
		CacheHits: w.stats.cacheHits.Load(),
		Partial:   w.stats.partial.Load(),
		Failed:    w.stats.failed.Load(),
	}
}

// ensureConsumerGroup creates the consumer group if it doesn't exist
func (w *Worker) ensureConsumerGroup() error {
	err := w.streams.XGroupCreateMkStream(w.ctx, w.streamKey, w.consumerGroup, "0").Err()
	if err != nil {
		// BUSYGROUP error means the group already exists, which is fine
		if strings.HasPrefix(err.Error(), "BUSYGROUP") {
			w.logger.Debug("consumer group already exists",
				zap.String("group", w.consumerGroup),
			)
			return nil
		}
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	w.logger.Info("created consumer group",
		zap.String("group", w.consumerGroup),
		zap.String("stream", w.streamKey),
	)
	return nil
}

// processWork processes work from the Redis stream
func (w *Worker) processWork() {
	defer close(w.done)
	defer w.running.Store(false)
	w.logger.Info("starting work processing loop")

	for {
		select {
		case <-w.ctx.Done():
			w.logger.Info("work processing loop stopped")
			return
		default:
			streams, err := w.streams.XReadGroup(w.ctx, &redis.XReadGroupArgs{
				Group:    w.consumerGroup,
				Consumer: w.id,
				Streams:  []string{w.streamKey, ">"},
				Count:    1,
				Block:    w.config.BlockTime,
			}).Result()

			if err != nil {
				if errors.Is(err, redis.Nil) || w.ctx.Err() != nil {
					continue
				}
				w.logger.Error("failed to read from stream",
					zap.Error(err),
				)
				w.sleep(time.Second)
				continue
			}

			for _, stream := range streams {
				for _, message := range stream.Messages {
					w.handleMessage(message)
				}
			}
		}
	}
}

// sleep waits for d or until the worker is stopped
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.ctx.Done():
	case <-time.After(d):
	}
}

// handleMessage handles a single render request message
func (w *Worker) handleMessage(message redis.XMessage) {
	messageID := message.ID
	w.logger.Info("processing render request",
		zap.String("message_id", messageID),
	)

	// Replies and the ack must go out even while stopping
	ctx := context.WithoutCancel(w.ctx)

	request, err := w.parseRenderRequest(message.Values)
	if err != nil {
		w.logger.Error("failed to parse render request",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
		w.stats.failed.Add(1)
		w.acknowledgeMessage(ctx, messageID)
		return
	}

	result, err := w.processRenderRequest(w.ctx, request)
	if err == nil {
		err = w.publishResult(ctx, result)
	}
	if err != nil {
		w.logger.Error("failed to process render request",
			zap.String("message_id", messageID),
			zap.String("request_id", request.RequestID),
			zap.String("proposal_id", request.ProposalID),
			zap.Error(err),
		)
		w.stats.failed.Add(1)
		w.publishError(ctx, request, err)
	}

	w.acknowledgeMessage(ctx, messageID)
}

// RenderRequest asks for a proposal to be rendered. TemplateID, when set,
// selects the blocks instead of those stored with the proposal.
type RenderRequest struct {
	RequestID  string `json:"request_id"`
	ProposalID string `json:"proposal_id"`
	TemplateID string `json:"template_id,omitempty"`
}

// RenderResult is published once a proposal has been rendered. The document
// is stored in the render cache under RenderKey.
type RenderResult struct {
	RequestID  string    `json:"request_id"`
	ProposalID string    `json:"proposal_id"`
	RenderKey  string    `json:"render_key"`
	Bytes      int       `json:"bytes"`
	CacheHit   bool      `json:"cache_hit"`
	LimitError string    `json:"limit_error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// parseRenderRequest parses a render request from a Redis message
func (w *Worker) parseRenderRequest(values map[string]interface{}) (*RenderRequest, error) {
	dataStr, ok := values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'data' field")
	}

	var request RenderRequest
	if err := json.Unmarshal([]byte(dataStr), &request); err != nil {
		return nil, fmt.Errorf("failed to unmarshal render request: %w", err)
	}

	if request.ProposalID == "" {
		return nil, fmt.Errorf("proposal_id is required")
	}

	return &request, nil
}

// processRenderRequest renders a proposal, going through the render cache
func (w *Worker) processRenderRequest(ctx context.Context, request *RenderRequest) (*RenderResult, error) {
	p, err := w.proposals.Load(ctx, request.ProposalID)
	if err != nil {
		return nil, err
	}

	blockList, err := w.resolveBlocks(ctx, request, p)
	if err != nil {
		return nil, err
	}

	vars := p.Variables.Context()
	result := &RenderResult{
		RequestID:  request.RequestID,
		ProposalID: p.ID,
	}

	key, err := store.RenderKey(blockList, vars, w.renderer.Catalog().Fingerprint())
	if err != nil {
		return nil, err
	}
	result.RenderKey = key

	html, hit, err := w.cache.Get(ctx, key)
	if err != nil {
		w.logger.Warn("render cache unavailable", zap.String("render_key", key), zap.Error(err))
	}
	if hit {
		w.logger.Debug("render cache hit", zap.String("render_key", key))
		result.CacheHit = true
		w.stats.cacheHits.Add(1)
		result.Bytes = len(html)
		result.Timestamp = time.Now().UTC()
		return result, nil
	}

	html, renderErr := w.renderer.RenderBlocks(ctx, blockList, vars)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("render interrupted: %w", ctxErr)
	}
	if renderErr != nil {
		result.LimitError = renderErr.Error()
		result.RenderKey = key + partialSuffix
	}

	if err := w.cache.Put(ctx, result.RenderKey, html); err != nil {
		return nil, err
	}

	result.Bytes = len(html)
	result.Timestamp = time.Now().UTC()

	w.stats.rendered.Add(1)
	if renderErr != nil {
		w.stats.partial.Add(1)
	}

	w.logger.Info("proposal rendered",
		zap.String("proposal_id", p.ID),
		zap.Int("blocks", len(blockList)),
		zap.Int("bytes", result.Bytes),
		zap.Bool("partial", renderErr != nil),
	)

	return result, nil
}

// resolveBlocks picks the blocks to render: the requested template, else the
// proposal's own blocks, else the proposal's template
func (w *Worker) resolveBlocks(ctx context.Context, request *RenderRequest, p *proposal.Proposal) ([]proposal.Block, error) {
	templateID := request.TemplateID
	if templateID == "" {
		if len(p.Blocks) > 0 {
			return p.Blocks, nil
		}
		templateID = p.TemplateID
	}

	if templateID == "" {
		return nil, fmt.Errorf("proposal %s has no blocks and no template", p.ID)
	}

	tpl, err := w.templates.Load(ctx, templateID)
	if err != nil {
		return nil, err
	}
	return tpl.Blocks, nil
}

// publishResult publishes the render result
func (w *Worker) publishResult(ctx context.Context, result *RenderResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	_, err = w.streams.XAdd(ctx, &redis.XAddArgs{
		Stream: w.resultStream,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()

	if err != nil {
		return fmt.Errorf("failed to publish to stream: %w", err)
	}

	w.logger.Info("published render result",
		zap.String("request_id", result.RequestID),
		zap.String("render_key", result.RenderKey),
		zap.Bool("cache_hit", result.CacheHit),
	)

	return nil
}

// publishError publishes an error event
func (w *Worker) publishError(ctx context.Context, request *RenderRequest, err error) {
	errorEvent := map[string]interface{}{
		"request_id":  request.RequestID,
		"proposal_id": request.ProposalID,
		"error":       err.Error(),
		"not_found":   errors.Is(err, store.ErrNotFound),
		"timestamp":   time.Now().UTC(),
	}

	data, marshalErr := json.Marshal(errorEvent)
	if marshalErr != nil {
		w.logger.Error("failed to marshal error event", zap.Error(marshalErr))
		return
	}

	_, publishErr := w.streams.XAdd(ctx, &redis.XAddArgs{
		Stream: w.resultStream + ".errors",
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()

	if publishErr != nil {
		w.logger.Error("failed to publish error event", zap.Error(publishErr))
	}
}

// acknowledgeMessage acknowledges a message from the stream
func (w *Worker) acknowledgeMessage(ctx context.Context, messageID string) {
	err := w.streams.XAck(ctx, w.streamKey, w.consumerGroup, messageID).Err()
	if err != nil {
		w.logger.Error("failed to acknowledge message",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}
}
