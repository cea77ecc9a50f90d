// Package cache implements a tagged key/value cache with group invalidation.
//
// Values are JSON encoded and stored with a TTL in a Store. Every tag a value
// is written with is a set in the same store listing the keys carrying that
// tag. InvalidateByTags reads those sets and deletes the keys they name, so
// all search responses mentioning a document can be dropped when that
// document changes without knowing which queries produced them.
//
// Two stores are provided:
//
//   - MemoryStore keeps everything in process, with lazy expiry
//   - RedisStore shares the cache (and rate limit counters) between processes
//
// Backing store failures surface as ErrUnavailable. Callers are expected to
// log them and carry on as if the cache missed.
package cache
