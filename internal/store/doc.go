// Package store persists proposals and templates in Redis and caches rendered documents.
//
// Keys:
//   - proposal:doc:<id>        proposal JSON
//   - proposal:template:<id>   template JSON
//   - proposal:render:<hash>   zstd-compressed HTML, written with a TTL
//
// The render cache key is a BLAKE3 digest of the blocks, the variables and the
// block catalog fingerprint, so any change to one of them misses the cache.
package store
