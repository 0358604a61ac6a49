// Package cache provides a generic, size-bounded LRU cache.
//
//	c := cache.New[string, []uint32](64)
//	c.Set("key", words)
//	words, ok := c.Get("key")
//
// Entries beyond the capacity are evicted least recently used first.
// Cache is safe for concurrent use and must not be copied after creation.
package cache
