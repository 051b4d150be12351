package qa

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedModel memoizes answers by prompt. Because the prompt includes the
// session history, a cached answer is only reused for an identical
// conversation state.
type CachedModel struct {
	next  Model
	cache *expirable.LRU[string, string]
}

// NewCachedModel wraps next with an LRU of size entries that expire after
// ttl (0 = never).
func NewCachedModel(next Model, size int, ttl time.Duration) *CachedModel {
	if size <= 0 {
		size = 128
	}
	return &CachedModel{
		next:  next,
		cache: expirable.NewLRU[string, string](size, nil, ttl),
	}
}

func promptKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// Generate implements Model.
func (c *CachedModel) Generate(ctx context.Context, prompt string) (string, error) {
	key := promptKey(prompt)
	if answer, ok := c.cache.Get(key); ok {
		return answer, nil
	}
	answer, err := c.next.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	c.cache.Add(key, answer)
	return answer, nil
}

// Stream implements Model. A hit is delivered as a single chunk.
func (c *CachedModel) Stream(ctx context.Context, prompt string, onChunk func(string) error) (string, error) {
	key := promptKey(prompt)
	if answer, ok := c.cache.Get(key); ok {
		if onChunk != nil {
			if err := onChunk(answer); err != nil {
				return answer, err
			}
		}
		return answer, nil
	}

	answer, err := c.next.Stream(ctx, prompt, onChunk)
	if err != nil {
		return answer, err
	}
	c.cache.Add(key, answer)
	return answer, nil
}

// Len returns the number of cached answers.
func (c *CachedModel) Len() int {
	return c.cache.Len()
}
