// Package cache provides the two caches behind a word source: an in-memory
// LRU bounded by entry count with pinning (tokenized segments), and a
// zstd-compressed disk cache for raw segment text that survives restarts.
package cache
