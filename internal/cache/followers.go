package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/robcarmo/puppies-api/internal/repository"
)

const hotAuthorsKey = "feed:hot_authors"

// FollowerCountCache 粉丝数缓存。扇出决策对热点作者是高频读，
// 短 TTL 的缓存把计数查询从主库摘出来
type FollowerCountCache struct {
	cache   *redis.Client
	fanRepo repository.FanRepository
	ttl     time.Duration
}

func NewFollowerCountCache(cache *redis.Client, fanRepo repository.FanRepository, ttl time.Duration) *FollowerCountCache {
	return &FollowerCountCache{cache: cache, fanRepo: fanRepo, ttl: ttl}
}

// Get 读缓存，miss 则回源 fans 表并回填
func (c *FollowerCountCache) Get(ctx context.Context, userID string) (int64, error) {
	key := fmt.Sprintf("followers:count:%s", userID)
	if v, err := c.cache.Get(ctx, key).Result(); err == nil {
		if n, pErr := strconv.ParseInt(v, 10, 64); pErr == nil {
			return n, nil
		}
	}
	n, err := c.fanRepo.Count(ctx, userID)
	if err != nil {
		return 0, err
	}
	_ = c.cache.Set(ctx, key, strconv.FormatInt(n, 10), c.ttl).Err()
	return n, nil
}

// HotAuthors 走拉模式的热点作者集合，读路径据此决定哪些关注对象要直接拉帖子
type HotAuthors struct {
	cache *redis.Client
}

func NewHotAuthors(cache *redis.Client) *HotAuthors { return &HotAuthors{cache: cache} }

func (h *HotAuthors) Add(ctx context.Context, userID string) error {
	return h.cache.SAdd(ctx, hotAuthorsKey, userID).Err()
}

func (h *HotAuthors) Remove(ctx context.Context, userID string) error {
	return h.cache.SRem(ctx, hotAuthorsKey, userID).Err()
}

// Filter 返回 ids 中属于热点集合的子集，保持原顺序
func (h *HotAuthors) Filter(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	flags, err := h.cache.SMIsMember(ctx, hotAuthorsKey, members...).Result()
	if err != nil {
		return nil, err
	}
	var hot []string
	for i, ok := range flags {
		if ok {
			hot = append(hot, ids[i])
		}
	}
	return hot, nil
}
