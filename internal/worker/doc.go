// Package worker implements the proposal render worker lifecycle and Redis Streams integration.
//
// The worker reads render requests from a Redis Stream consumer group, renders the
// proposal's blocks, stores the document in the render cache and publishes a result
// pointing at the cache key.
//
// Example usage:
//
//	cfg, _ := config.Load()
//	redisClient := redis.NewClient(cfg.RedisOptions())
//	renderer := blocks.NewRenderer(template.NewEngine(), blocks.NewCatalog(), cel.NewEvaluator(), logger)
//
//	w := worker.NewWorker(cfg, redisClient,
//	    store.NewProposalStore(redisClient),
//	    store.NewTemplateStore(redisClient),
//	    store.NewRenderCache(redisClient, cfg.RenderCacheTTL),
//	    renderer, logger)
//	if err := w.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop(10 * time.Second)
//
// Request, on STREAM_KEY, field "data":
//
//	{"request_id": "...", "proposal_id": "...", "template_id": "..."}
//
// Result, on RESULT_STREAM, field "data":
//
//	{"request_id": "...", "proposal_id": "...", "render_key": "proposal:render:...",
//	 "bytes": 1234, "cache_hit": false, "limit_error": "...", "timestamp": "..."}
//
// Failures are published to RESULT_STREAM + ".errors". Every message is acknowledged.
//
// Health checks are provided via a separate HTTP server:
//
//	healthServer := worker.NewHealthServer(8082, logger)
//	healthServer.AddCheck("redis", worker.RedisCheck(redisClient))
//	healthServer.AddCheck("worker", worker.WorkerCheck(w))
//	healthServer.Start()
//	defer healthServer.Stop()
package worker
