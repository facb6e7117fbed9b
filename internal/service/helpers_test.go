package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/robcarmo/puppies-api/internal/cache"
	"github.com/robcarmo/puppies-api/internal/model"
	"github.com/robcarmo/puppies-api/internal/repository"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 内存库每个连接各自独立，收敛到单连接
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&model.User{}, &model.Post{}, &model.Follow{}, &model.Fan{},
		&model.FeedEntry{}, &model.Like{}, &model.Comment{}, &model.Outbox{},
	))
	return db
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// testStack 把发布/扇出/读取链路所需的组件拉起来
type testStack struct {
	db         *gorm.DB
	rdb        *redis.Client
	userRepo   repository.UserRepository
	postRepo   repository.PostRepository
	followRepo repository.FollowRepository
	fanRepo    repository.FanRepository
	feedRepo   repository.FeedRepository
	outboxRepo repository.OutboxRepository
	counts     *cache.FollowerCountCache
	hot        *cache.HotAuthors
	snapshots  *cache.AuthorSnapshotCache
	dispatcher *Dispatcher
	publisher  *Publisher
	worker     *FanoutWorker
	feedSvc    *FeedService
}

func newTestStack(t *testing.T, threshold int64) *testStack {
	t.Helper()
	db := newTestDB(t)
	rdb := newTestRedis(t)

	s := &testStack{
		db:         db,
		rdb:        rdb,
		userRepo:   repository.NewUserRepository(db),
		postRepo:   repository.NewPostRepository(db),
		followRepo: repository.NewFollowRepository(db),
		fanRepo:    repository.NewFanRepository(db),
		feedRepo:   repository.NewFeedRepository(db),
		outboxRepo: repository.NewOutboxRepository(db),
	}
	s.counts = cache.NewFollowerCountCache(rdb, s.fanRepo, time.Second)
	s.hot = cache.NewHotAuthors(rdb)
	s.snapshots = cache.NewAuthorSnapshotCache(rdb, s.userRepo, time.Minute)
	s.dispatcher = NewDispatcher(s.fanRepo, s.outboxRepo, s.counts, s.hot, nil, threshold, 500)
	s.publisher = NewPublisher(db, s.dispatcher)
	s.worker = NewFanoutWorker(db, s.fanRepo, s.feedRepo, 1, 500, 64, 10*time.Millisecond)
	s.feedSvc = NewFeedService(s.feedRepo, s.postRepo, s.followRepo, s.hot, s.snapshots,
		20, 100, 4, 50, 2*time.Second)
	return s
}

func seedUser(t *testing.T, db *gorm.DB, id string) *model.User {
	t.Helper()
	u := &model.User{ID: id, Username: id, Email: id + "@example.com"}
	require.NoError(t, db.Create(u).Error)
	return u
}

// seedFans 创建 n 个粉丝用户并建立 follow + fan 双向冗余边
func seedFans(t *testing.T, s *testStack, authorID string, n int) []string {
	t.Helper()
	ctx := context.Background()
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("fan_%s_%03d", authorID, i)
		seedUser(t, s.db, id)
		require.NoError(t, s.followRepo.Create(ctx, id, authorID))
		require.NoError(t, s.fanRepo.Create(ctx, authorID, id))
		ids[i] = id
	}
	return ids
}
