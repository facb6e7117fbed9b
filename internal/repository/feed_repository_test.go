package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/robcarmo/puppies-api/internal/model"
)

func newRepoTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&model.User{}, &model.Post{}, &model.Follow{}, &model.Fan{},
		&model.FeedEntry{}, &model.Like{}, &model.Comment{}, &model.Outbox{},
	))
	return db
}

func TestFeedBatchUpsertIgnoresConflicts(t *testing.T) {
	db := newRepoTestDB(t)
	repo := NewFeedRepository(db)
	ctx := context.Background()

	entries := []model.FeedEntry{
		{ID: "e1", UserID: "u1", PostID: "p1", SourceUserID: "a", Score: 100},
		{ID: "e2", UserID: "u1", PostID: "p2", SourceUserID: "a", Score: 200},
	}
	n, err := repo.BatchUpsert(ctx, entries)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// 同 (user_id, post_id) 再插一批：全部冲突忽略
	dup := []model.FeedEntry{
		{ID: "e3", UserID: "u1", PostID: "p1", SourceUserID: "a", Score: 100},
		{ID: "e4", UserID: "u1", PostID: "p2", SourceUserID: "a", Score: 200},
	}
	n, err = repo.BatchUpsert(ctx, dup)
	require.NoError(t, err)
	assert.Zero(t, n)

	cnt, err := repo.CountByPost(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cnt)
}

func TestFeedKeysetPaginationExactOrder(t *testing.T) {
	db := newRepoTestDB(t)
	repo := NewFeedRepository(db)
	ctx := context.Background()

	// 25 项，其中三项共享同一 score，靠 post_id 破平
	var entries []model.FeedEntry
	for i := 0; i < 25; i++ {
		score := int64(1000 + i)
		if i >= 22 {
			score = 2000
		}
		entries = append(entries, model.FeedEntry{
			ID: fmt.Sprintf("e%02d", i), UserID: "u1",
			PostID: fmt.Sprintf("p%02d", i), SourceUserID: "a", Score: score,
		})
	}
	_, err := repo.BatchUpsert(ctx, entries)
	require.NoError(t, err)

	var got []*model.FeedEntry
	beforeScore, beforeID := int64(0), ""
	for {
		page, err := repo.ListByUserBefore(ctx, "u1", beforeScore, beforeID, 10)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		got = append(got, page...)
		last := page[len(page)-1]
		beforeScore, beforeID = last.Score, last.PostID
		if len(page) < 10 {
			break
		}
	}

	require.Len(t, got, 25)
	for i := 1; i < len(got); i++ {
		prev, cur := got[i-1], got[i]
		ok := cur.Score < prev.Score || (cur.Score == prev.Score && cur.PostID < prev.PostID)
		assert.True(t, ok, "order violated at %d: (%d,%s) after (%d,%s)",
			i, cur.Score, cur.PostID, prev.Score, prev.PostID)
	}
}

func TestFeedKeysetPaginationIgnoresLaterInserts(t *testing.T) {
	db := newRepoTestDB(t)
	repo := NewFeedRepository(db)
	ctx := context.Background()

	var entries []model.FeedEntry
	for i := 0; i < 6; i++ {
		entries = append(entries, model.FeedEntry{
			ID: fmt.Sprintf("e%d", i), UserID: "u1",
			PostID: fmt.Sprintf("p%d", i), SourceUserID: "a", Score: int64(100 + i),
		})
	}
	_, err := repo.BatchUpsert(ctx, entries)
	require.NoError(t, err)

	page1, err := repo.ListByUserBefore(ctx, "u1", 0, "", 3)
	require.NoError(t, err)
	require.Len(t, page1, 3)

	// 翻页间隙插入更新的项，第二页不受影响
	_, err = repo.BatchUpsert(ctx, []model.FeedEntry{
		{ID: "e9", UserID: "u1", PostID: "p9", SourceUserID: "a", Score: 999},
	})
	require.NoError(t, err)

	last := page1[len(page1)-1]
	page2, err := repo.ListByUserBefore(ctx, "u1", last.Score, last.PostID, 3)
	require.NoError(t, err)
	require.Len(t, page2, 3)
	for _, e := range page2 {
		assert.NotEqual(t, "p9", e.PostID)
		assert.Less(t, e.Score, last.Score)
	}
}

func TestFeedDeleteBySource(t *testing.T) {
	db := newRepoTestDB(t)
	repo := NewFeedRepository(db)
	ctx := context.Background()

	_, err := repo.BatchUpsert(ctx, []model.FeedEntry{
		{ID: "e1", UserID: "u1", PostID: "p1", SourceUserID: "a", Score: 1},
		{ID: "e2", UserID: "u1", PostID: "p2", SourceUserID: "b", Score: 2},
		{ID: "e3", UserID: "u2", PostID: "p1", SourceUserID: "a", Score: 1},
	})
	require.NoError(t, err)

	require.NoError(t, repo.DeleteBySource(ctx, "u1", "a"))

	rest, err := repo.ListByUserBefore(ctx, "u1", 0, "", 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "p2", rest[0].PostID)

	// 其他用户来自同一 source 的项不受影响
	cnt, err := repo.CountByPost(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cnt)
}

func TestFeedDeleteOrphans(t *testing.T) {
	db := newRepoTestDB(t)
	repo := NewFeedRepository(db)
	followRepo := NewFollowRepository(db)
	ctx := context.Background()

	require.NoError(t, followRepo.Create(ctx, "u1", "a"))
	_, err := repo.BatchUpsert(ctx, []model.FeedEntry{
		{ID: "e1", UserID: "u1", PostID: "p1", SourceUserID: "a", Score: 1}, // 有边，保留
		{ID: "e2", UserID: "u2", PostID: "p1", SourceUserID: "a", Score: 1}, // 无边，清理
	})
	require.NoError(t, err)

	n, err := repo.DeleteOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	kept, err := repo.ListByUserBefore(ctx, "u1", 0, "", 10)
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func TestOutboxResetStuck(t *testing.T) {
	db := newRepoTestDB(t)
	repo := NewOutboxRepository(db)
	ctx := context.Background()

	old := time.Now().Add(-time.Hour)
	require.NoError(t, db.Create(&model.Outbox{
		ID: "ob1", PostID: "p1", AuthorID: "a", Status: "processing",
		Strategy: model.StrategyPush, CreatedAt: old,
	}).Error)
	require.NoError(t, db.Create(&model.Outbox{
		ID: "ob2", PostID: "p2", AuthorID: "a", Status: "processing",
		Strategy: model.StrategyPush, CreatedAt: time.Now(),
	}).Error)

	n, err := repo.ResetStuck(ctx, time.Now().Add(-5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ob1, err := repo.GetByPostID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "pending", ob1.Status)
	ob2, err := repo.GetByPostID(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, "processing", ob2.Status)
}

func TestOutboxListUnplanned(t *testing.T) {
	db := newRepoTestDB(t)
	repo := NewOutboxRepository(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&model.Outbox{ID: "ob1", PostID: "p1", AuthorID: "a", Status: "pending"}).Error)
	require.NoError(t, db.Create(&model.Outbox{ID: "ob2", PostID: "p2", AuthorID: "a", Status: "pending", Strategy: model.StrategyPush}).Error)
	require.NoError(t, db.Create(&model.Outbox{ID: "ob3", PostID: "p3", AuthorID: "a", Status: "done", Strategy: model.StrategyPull}).Error)

	got, err := repo.ListUnplanned(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].PostID)
}
