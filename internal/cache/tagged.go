package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultTTL is the lifetime of a cached value
	DefaultTTL = 15 * time.Minute

	// DefaultTagGrace keeps a tag set alive past the entries it references
	DefaultTagGrace = 60 * time.Second

	// DefaultTagPrefix namespaces tag sets in the store
	DefaultTagPrefix = "tag:"

	// SearchKeyPrefix namespaces cached search responses
	SearchKeyPrefix = "search:"
)

// Config configures a TaggedCache
type Config struct {
	DefaultTTL time.Duration
	TagGrace   time.Duration
	TagPrefix  string
}

// DefaultConfig returns the default cache settings
func DefaultConfig() Config {
	return Config{
		DefaultTTL: DefaultTTL,
		TagGrace:   DefaultTagGrace,
		TagPrefix:  DefaultTagPrefix,
	}
}

// Stats summarizes cache contents
type Stats struct {
	TotalKeys  int `json:"total_keys"`
	TaggedKeys int `json:"tag_sets"`
	SearchKeys int `json:"search_keys"`
}

// TaggedCache stores JSON values that can be invalidated as a group by tag.
// Each tag is a set in the store listing the keys written with it.
type TaggedCache struct {
	store  Store
	config Config
	logger *slog.Logger
}

// New creates a tagged cache over store. Zero config fields take their defaults.
func New(store Store, config Config, logger *slog.Logger) *TaggedCache {
	defaults := DefaultConfig()
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = defaults.DefaultTTL
	}
	if config.TagGrace < 0 {
		config.TagGrace = defaults.TagGrace
	}
	if config.TagPrefix == "" {
		config.TagPrefix = defaults.TagPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TaggedCache{store: store, config: config, logger: logger}
}

// Store returns the backing store
func (c *TaggedCache) Store() Store {
	return c.store
}

func (c *TaggedCache) tagKey(tag string) string {
	return c.config.TagPrefix + tag
}

func unavailable(op string, err error) error {
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

// Set stores value under key and records key in every tag set. ttl <= 0 uses
// the default TTL. Tag sets live ttl plus the grace period.
//
// A Set racing an InvalidateByTags on one of its tags can leave the value in
// place after the invalidation. It then lives until its TTL.
func (c *TaggedCache) Set(ctx context.Context, key string, value any, ttl time.Duration, tags ...string) error {
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value for %s: %w", key, err)
	}

	if err := c.store.Set(ctx, key, data, ttl); err != nil {
		return unavailable("set", err)
	}

	tagTTL := ttl + c.config.TagGrace
	for _, tag := range tags {
		tk := c.tagKey(tag)
		if err := c.store.SAdd(ctx, tk, key); err != nil {
			return unavailable("tag", err)
		}
		// Only ever extend, so the set outlives every entry it lists
		current, err := c.store.TTL(ctx, tk)
		if err != nil {
			return unavailable("tag ttl", err)
		}
		if current < tagTTL {
			if err := c.store.Expire(ctx, tk, tagTTL); err != nil {
				return unavailable("tag expire", err)
			}
		}
	}

	return nil
}

// Get decodes the value at key into dest. A miss returns (false, nil).
// Undecodable values are dropped and reported as a miss.
func (c *TaggedCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("get", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Warn("dropping undecodable cache entry", "key", key, "error", err)
		if delErr := c.store.Delete(ctx, key); delErr != nil {
			return false, unavailable("delete", delErr)
		}
		return false, nil
	}
	return true, nil
}

// Delete removes keys. Tag sets still listing them are cleaned up on invalidation.
func (c *TaggedCache) Delete(ctx context.Context, keys ...string) error {
	if err := c.store.Delete(ctx, keys...); err != nil {
		return unavailable("delete", err)
	}
	return nil
}

// InvalidateByTags deletes every key recorded under any of the tags, then the
// tag sets themselves. It returns the number of keys removed.
func (c *TaggedCache) InvalidateByTags(ctx context.Context, tags ...string) (int, error) {
	removed := 0
	for _, tag := range tags {
		tk := c.tagKey(tag)
		members, err := c.store.SMembers(ctx, tk)
		if err != nil {
			return removed, unavailable("members", err)
		}
		if len(members) > 0 {
			if err := c.store.Delete(ctx, members...); err != nil {
				return removed, unavailable("delete", err)
			}
			removed += len(members)
		}
		if err := c.store.Delete(ctx, tk); err != nil {
			return removed, unavailable("delete tag", err)
		}
		c.logger.Debug("invalidated cache tag", "tag", tag, "keys", len(members))
	}
	return removed, nil
}

// InvalidateByPattern deletes every key matching a glob pattern
func (c *TaggedCache) InvalidateByPattern(ctx context.Context, pattern string) (int, error) {
	keys, err := c.store.Keys(ctx, pattern)
	if err != nil {
		return 0, unavailable("keys", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := c.store.Delete(ctx, keys...); err != nil {
		return 0, unavailable("delete", err)
	}
	c.logger.Debug("invalidated cache pattern", "pattern", pattern, "keys", len(keys))
	return len(keys), nil
}

// Stats counts keys in the store
func (c *TaggedCache) Stats(ctx context.Context) (Stats, error) {
	all, err := c.store.Keys(ctx, "*")
	if err != nil {
		return Stats{}, unavailable("keys", err)
	}
	tagged, err := c.store.Keys(ctx, c.config.TagPrefix+"*")
	if err != nil {
		return Stats{}, unavailable("keys", err)
	}
	search, err := c.store.Keys(ctx, SearchKeyPrefix+"*")
	if err != nil {
		return Stats{}, unavailable("keys", err)
	}
	return Stats{
		TotalKeys:  len(all),
		TaggedKeys: len(tagged),
		SearchKeys: len(search),
	}, nil
}

// Ping checks the backing store
func (c *TaggedCache) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}
