package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores answers in Redis keyed by the normalized question.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewCache(client *redis.Client, prefix string, ttl time.Duration) *Cache {
	return &Cache{client: client, prefix: prefix, ttl: ttl}
}

// Key folds case and whitespace so trivially different phrasings share an
// entry.
func (c *Cache) Key(question string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(question)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return c.prefix + hex.EncodeToString(sum[:])
}

// Get returns the cached answer. A miss is (nil, false, nil).
func (c *Cache) Get(ctx context.Context, question string) (*Answer, bool, error) {
	raw, err := c.client.Get(ctx, c.Key(question)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var ans Answer
	if err := json.Unmarshal(raw, &ans); err != nil {
		return nil, false, err
	}
	return &ans, true, nil
}

func (c *Cache) Set(ctx context.Context, question string, ans *Answer) error {
	raw, err := json.Marshal(ans)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.Key(question), raw, c.ttl).Err()
}
