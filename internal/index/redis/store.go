// Package redis implements nearest-neighbor search over Redis 8+ FT
// indexes via rueidis. The serving process syncs the on-disk artifact into
// Redis at startup and searches server-side afterwards.
package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/rueidis"

	"github.com/annai-dev/annai/internal/domain"
	"github.com/annai-dev/annai/internal/index"
)

// Verify the search contract at compile time.
var _ index.Searcher = (*Store)(nil)

const syncBatchSize = 200

// Config holds connection parameters for a Redis store.
type Config struct {
	Addrs     []string
	Username  string
	Password  string
	KeyPrefix string
}

// Store implements index.Searcher backed by a Redis FT vector index.
type Store struct {
	client    rueidis.Client
	keyPrefix string
	indexName string
	dim       int
	size      int
}

// NewStore creates a Redis store via rueidis.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "annai:"
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH result parsing expects RESP2 array format
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Store{
		client:    client,
		keyPrefix: prefix,
		indexName: prefix + "chunks",
	}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	cmd := s.client.B().Ping().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() {
	s.client.Close()
}

// WaitForReady polls Ping until the store responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for redis: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// Sync replaces the FT index and all chunk hashes with the artifact's
// contents. The artifact stays the source of truth; Redis holds a disposable
// copy rebuilt on every startup.
func (s *Store) Sync(ctx context.Context, a *index.Artifact) error {
	if err := s.dropIndex(ctx); err != nil {
		return err
	}
	if err := s.createIndex(ctx, a.Dimensions); err != nil {
		return err
	}

	for start := 0; start < len(a.Chunks); start += syncBatchSize {
		end := start + syncBatchSize
		if end > len(a.Chunks) {
			end = len(a.Chunks)
		}
		if err := s.writeBatch(ctx, a, start, end); err != nil {
			return err
		}
	}

	s.dim = a.Dimensions
	s.size = len(a.Chunks)
	return nil
}

// dropIndex removes the FT index and its documents; a missing index is fine.
func (s *Store) dropIndex(ctx context.Context) error {
	cmd := s.client.B().Arbitrary("FT.DROPINDEX").Args(s.indexName, "DD").Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil && !isRedisErr(err, "unknown index name") {
		return fmt.Errorf("drop index: %w", err)
	}
	return nil
}

func (s *Store) createIndex(ctx context.Context, dim int) error {
	args := []string{
		s.indexName,
		"ON", "HASH",
		"PREFIX", "1", s.keyPrefix + "chunk:",
		"SCHEMA",
		"vector", "VECTOR", "FLAT", "6",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(dim),
		"DISTANCE_METRIC", "L2",
	}
	cmd := s.client.B().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// writeBatch stores chunk hashes [start,end) in a single DoMulti round-trip.
func (s *Store) writeBatch(ctx context.Context, a *index.Artifact, start, end int) error {
	cmds := make([]rueidis.Completed, 0, end-start)
	for i := start; i < end; i++ {
		rec := a.Chunks[i]
		key := s.keyPrefix + "chunk:" + strconv.Itoa(i)
		cmds = append(cmds, s.client.B().Hset().Key(key).FieldValue().
			FieldValue("text", rec.Text).
			FieldValue("source", rec.Source).
			FieldValue("page", strconv.Itoa(rec.Page)).
			FieldValue("vector", vectorToBytes(a.Vectors[i])).
			Build())
	}

	results := s.client.DoMulti(ctx, cmds...)
	for i, res := range results {
		if err := res.Error(); err != nil {
			return fmt.Errorf("write chunk %d: %w", start+i, err)
		}
	}
	return nil
}

// Search runs a KNN vector similarity search via FT.SEARCH.
func (s *Store) Search(ctx context.Context, vector []float32, k int) ([]domain.Hit, error) {
	if len(vector) != s.dim {
		return nil, fmt.Errorf("query vector has %d dimensions, index has %d: %w",
			len(vector), s.dim, domain.ErrDimMismatch)
	}
	if k <= 0 {
		return nil, nil
	}

	query := fmt.Sprintf("*=>[KNN %d @vector $BLOB]", k)
	args := []string{
		s.indexName, query,
		"RETURN", "4", "text", "source", "page", "__vector_score",
		"SORTBY", "__vector_score",
		"PARAMS", "2", "BLOB", vectorToBytes(vector),
		"DIALECT", "2",
	}

	cmd := s.client.B().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.client.Do(ctx, cmd).ToArray()
	if err != nil {
		return nil, fmt.Errorf("search knn: %w", err)
	}

	return parseKNNResult(raw)
}

// Size returns the number of synced chunks.
func (s *Store) Size() int { return s.size }

// Dimensions returns the vector dimensionality.
func (s *Store) Dimensions() int { return s.dim }

// parseKNNResult decodes the RESP2 FT.SEARCH reply:
// [total, key1, fields1, key2, fields2, ...].
func parseKNNResult(raw []rueidis.RedisMessage) ([]domain.Hit, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	hits := make([]domain.Hit, 0, total)
	for i := 1; i+1 < len(raw); i += 2 {
		fieldArr, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}
		fields := parseFieldPairs(fieldArr)

		hit := domain.Hit{
			Chunk: domain.Chunk{
				Text:   fields["text"],
				Source: fields["source"],
			},
			Kind: domain.ScoreNone,
		}
		if page, err := strconv.Atoi(fields["page"]); err == nil {
			hit.Chunk.Page = page
		}
		if d, err := strconv.ParseFloat(fields["__vector_score"], 64); err == nil {
			hit.Score = d
			hit.Kind = domain.ScoreDistance
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func parseFieldPairs(arr []rueidis.RedisMessage) map[string]string {
	fields := make(map[string]string, len(arr)/2)
	for i := 0; i+1 < len(arr); i += 2 {
		k, err := arr[i].ToString()
		if err != nil {
			continue
		}
		v, err := arr[i+1].ToString()
		if err != nil {
			continue
		}
		fields[k] = v
	}
	return fields
}

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// isRedisErr checks if err is a Redis server error containing substr (case-insensitive).
func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return containsIgnoreCase(re.Error(), substr)
}

func containsIgnoreCase(s, substr string) bool {
	ls := len(s)
	lsub := len(substr)
	if lsub > ls {
		return false
	}
	for i := 0; i <= ls-lsub; i++ {
		match := true
		for j := 0; j < lsub; j++ {
			sc := s[i+j]
			tc := substr[j]
			if sc >= 'A' && sc <= 'Z' {
				sc += 'a' - 'A'
			}
			if tc >= 'A' && tc <= 'Z' {
				tc += 'a' - 'A'
			}
			if sc != tc {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
