package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/robcarmo/puppies-api/internal/repository"
)

// AuthorSnapshot feed 渲染所需的最小作者信息
type AuthorSnapshot struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
}

// AuthorSnapshotCache MGET 批量读作者快照，miss 批量回源后回填
type AuthorSnapshotCache struct {
	cache    *redis.Client
	userRepo repository.UserRepository
	ttl      time.Duration
}

func NewAuthorSnapshotCache(cache *redis.Client, userRepo repository.UserRepository, ttl time.Duration) *AuthorSnapshotCache {
	return &AuthorSnapshotCache{cache: cache, userRepo: userRepo, ttl: ttl}
}

func (s *AuthorSnapshotCache) GetMany(ctx context.Context, ids []string) (map[string]AuthorSnapshot, error) {
	result := make(map[string]AuthorSnapshot, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = fmt.Sprintf("user:snapshot:%s", id)
	}
	if vals, err := s.cache.MGet(ctx, keys...).Result(); err == nil {
		for i, v := range vals {
			str, ok := v.(string)
			if !ok {
				continue
			}
			var snap AuthorSnapshot
			if uErr := json.Unmarshal([]byte(str), &snap); uErr == nil {
				result[ids[i]] = snap
			}
		}
	}

	missing := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := result[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return result, nil
	}

	users, err := s.userRepo.GetByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		snap := AuthorSnapshot{ID: u.ID, Username: u.Username, AvatarURL: u.AvatarURL}
		result[u.ID] = snap
		if payload, mErr := json.Marshal(snap); mErr == nil {
			_ = s.cache.Set(ctx, fmt.Sprintf("user:snapshot:%s", u.ID), payload, s.ttl).Err()
		}
	}
	return result, nil
}
