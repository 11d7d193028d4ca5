package store

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/aescanero/dago-node-proposal/internal/proposal"
	"github.com/klauspost/compress/zstd"
	"github.com/redis/go-redis/v9"
	"github.com/zeebo/blake3"
)

// zstd encoders and decoders are safe for concurrent use
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("store: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("store: zstd decoder initialization failed: " + err.Error())
	}
}

func compress(data []byte) []byte {
	return zstdEncoder.EncodeAll(data, nil)
}

func decompress(data []byte) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress: %w", err)
	}
	return out, nil
}

// RenderKey returns the cache key of a render of blocks against vars with a
// catalog of the given fingerprint. NaN and infinite numbers, which JSON
// cannot carry, are hashed by name.
func RenderKey(blocks []proposal.Block, vars map[string]interface{}, catalog string) (string, error) {
	keyed := make([]proposal.Block, len(blocks))
	for i, block := range blocks {
		keyed[i] = block
		if block.Props != nil {
			keyed[i].Props = hashable(block.Props).(map[string]interface{})
		}
	}

	data, err := json.Marshal(struct {
		Blocks    []proposal.Block `json:"blocks"`
		Variables interface{}      `json:"variables"`
		Catalog   string           `json:"catalog"`
	}{keyed, hashable(vars), catalog})
	if err != nil {
		return "", fmt.Errorf("failed to marshal render key: %w", err)
	}

	sum := blake3.Sum256(data)
	return renderPrefix + hex.EncodeToString(sum[:]), nil
}

// hashable copies v, replacing non-finite floats with their names
func hashable(v interface{}) interface{} {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return "float:" + strconv.FormatFloat(x, 'g', -1, 64)
		}
	case float32:
		return hashable(float64(x))
	case map[string]interface{}:
		if x == nil {
			return x
		}
		m := make(map[string]interface{}, len(x))
		for k, e := range x {
			m[k] = hashable(e)
		}
		return m
	case []interface{}:
		if x == nil {
			return x
		}
		s := make([]interface{}, len(x))
		for i, e := range x {
			s[i] = hashable(e)
		}
		return s
	}
	return v
}

// RenderCache caches rendered documents
type RenderCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRenderCache creates a render cache whose entries expire after ttl.
// A zero ttl keeps entries until they are evicted.
func NewRenderCache(client redis.Cmdable, ttl time.Duration) *RenderCache {
	return &RenderCache{client: client, ttl: ttl}
}

// Get returns the cached document for key. ok is false on a miss.
func (c *RenderCache) Get(ctx context.Context, key string) (html string, ok bool, err error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read render cache: %w", err)
	}

	out, err := decompress(data)
	if err != nil {
		return "", false, err
	}
	return string(out), true, nil
}

// Put stores a document under key
func (c *RenderCache) Put(ctx context.Context, key, html string) error {
	if err := c.client.Set(ctx, key, compress([]byte(html)), c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write render cache: %w", err)
	}
	return nil
}
