package redis

import "github.com/redis/rueidis"

// NewStoreForTest creates a Store with the provided rueidis client (test-only).
func NewStoreForTest(c rueidis.Client, dim, size int) *Store {
	return &Store{
		client:    c,
		keyPrefix: "annai:",
		indexName: "annai:chunks",
		dim:       dim,
		size:      size,
	}
}
