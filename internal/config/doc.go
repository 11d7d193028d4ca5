// Package config loads the proposal worker settings from the environment.
//
// Settings fall into four groups:
//
//	WORKER_ID, REDIS_*, STREAM_KEY, CONSUMER_GROUP, RESULT_STREAM, BLOCK_TIME
//	CATALOG_FILE, CATALOG_WATCH
//	ESCAPE_HTML, MAX_LOOP_DEPTH, MAX_OUTPUT_BYTES, CEL_ENABLED, RENDER_CACHE_TTL
//	HEALTH_PORT, LOG_LEVEL
//
// Every setting has a development default. Load fails when a value does not
// parse or when Validate rejects the combination, for example CATALOG_WATCH
// without CATALOG_FILE.
package config
