package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publishAndFanout(t *testing.T, s *testStack, author, content string) string {
	t.Helper()
	ctx := context.Background()
	post, err := s.publisher.Publish(ctx, author, content, "", "")
	require.NoError(t, err)
	require.NoError(t, s.worker.ProcessOnce(ctx))
	// 保证相邻帖子的 unixnano score 严格递增
	time.Sleep(2 * time.Millisecond)
	return post.ID
}

func TestFeedMergesMaterializedAndPulled(t *testing.T) {
	s := newTestStack(t, 2)
	ctx := context.Background()
	seedUser(t, s.db, "reader")
	seedUser(t, s.db, "normal")
	seedUser(t, s.db, "celeb")
	require.NoError(t, s.followRepo.Create(ctx, "reader", "normal"))
	require.NoError(t, s.fanRepo.Create(ctx, "normal", "reader"))
	require.NoError(t, s.followRepo.Create(ctx, "reader", "celeb"))
	require.NoError(t, s.fanRepo.Create(ctx, "celeb", "reader"))
	seedFans(t, s, "celeb", 3) // 过阈值，celeb 走拉模式

	p1 := publishAndFanout(t, s, "normal", "from normal")
	p2 := publishAndFanout(t, s, "celeb", "from celeb")
	p3 := publishAndFanout(t, s, "normal", "newest")

	page, err := s.feedSvc.GetFeed(ctx, "reader", "", 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, p3, page.Items[0].PostID)
	assert.Equal(t, p2, page.Items[1].PostID)
	assert.Equal(t, p1, page.Items[2].PostID)
	assert.False(t, page.Partial)

	// celeb 的帖子没有物化，纯靠读时拉取
	cnt, err := s.feedRepo.CountByPost(ctx, p2)
	require.NoError(t, err)
	assert.Zero(t, cnt)
}

func TestFeedDeduplicatesAcrossPaths(t *testing.T) {
	s := newTestStack(t, 100)
	ctx := context.Background()
	seedUser(t, s.db, "reader")
	seedUser(t, s.db, "author")
	require.NoError(t, s.followRepo.Create(ctx, "reader", "author"))
	require.NoError(t, s.fanRepo.Create(ctx, "author", "reader"))

	postID := publishAndFanout(t, s, "author", "everywhere")
	// 物化之后作者又变热：同一帖会同时从两路到达
	require.NoError(t, s.hot.Add(ctx, "author"))

	page, err := s.feedSvc.GetFeed(ctx, "reader", "", 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, postID, page.Items[0].PostID)
}

func TestFeedCursorPaginationNoGapsNoDups(t *testing.T) {
	s := newTestStack(t, 100)
	ctx := context.Background()
	seedUser(t, s.db, "reader")
	seedUser(t, s.db, "author")
	require.NoError(t, s.followRepo.Create(ctx, "reader", "author"))
	require.NoError(t, s.fanRepo.Create(ctx, "author", "reader"))

	want := make(map[string]struct{})
	for i := 0; i < 12; i++ {
		want[publishAndFanout(t, s, "author", "post")] = struct{}{}
	}

	got := make(map[string]struct{})
	var lastScore int64
	cursor := ""
	for {
		page, err := s.feedSvc.GetFeed(ctx, "reader", cursor, 5)
		require.NoError(t, err)
		for _, item := range page.Items {
			_, dup := got[item.PostID]
			require.False(t, dup, "post %s returned twice", item.PostID)
			got[item.PostID] = struct{}{}
			score := item.CreatedAt.UnixNano()
			if lastScore != 0 {
				require.Less(t, score, lastScore, "feed must be strictly descending")
			}
			lastScore = score
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	assert.Equal(t, len(want), len(got))
}

func TestFeedPaginationStableUnderConcurrentInserts(t *testing.T) {
	s := newTestStack(t, 100)
	ctx := context.Background()
	seedUser(t, s.db, "reader")
	seedUser(t, s.db, "author")
	require.NoError(t, s.followRepo.Create(ctx, "reader", "author"))
	require.NoError(t, s.fanRepo.Create(ctx, "author", "reader"))

	for i := 0; i < 6; i++ {
		publishAndFanout(t, s, "author", "old")
	}
	page1, err := s.feedSvc.GetFeed(ctx, "reader", "", 3)
	require.NoError(t, err)
	require.Len(t, page1.Items, 3)
	require.NotEmpty(t, page1.NextCursor)

	// 翻页间隙插入新帖：游标锚定 (score, post_id)，第二页不得重复第一页内容
	publishAndFanout(t, s, "author", "new while paging")

	page2, err := s.feedSvc.GetFeed(ctx, "reader", page1.NextCursor, 3)
	require.NoError(t, err)
	require.Len(t, page2.Items, 3)
	seen := make(map[string]struct{})
	for _, it := range page1.Items {
		seen[it.PostID] = struct{}{}
	}
	for _, it := range page2.Items {
		_, dup := seen[it.PostID]
		assert.False(t, dup)
		assert.Less(t, it.CreatedAt.UnixNano(), page1.Items[2].CreatedAt.UnixNano())
	}
}

func TestFeedHydratesAuthorSnapshot(t *testing.T) {
	s := newTestStack(t, 100)
	ctx := context.Background()
	seedUser(t, s.db, "reader")
	author := seedUser(t, s.db, "author")
	author.AvatarURL = "https://cdn.example.com/a.png"
	require.NoError(t, s.db.Save(author).Error)
	require.NoError(t, s.followRepo.Create(ctx, "reader", "author"))
	require.NoError(t, s.fanRepo.Create(ctx, "author", "reader"))

	publishAndFanout(t, s, "author", "with avatar")

	page, err := s.feedSvc.GetFeed(ctx, "reader", "", 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "author", page.Items[0].AuthorName)
	assert.Equal(t, "https://cdn.example.com/a.png", page.Items[0].AuthorAvatar)
}

func TestFeedEmptyForNewUser(t *testing.T) {
	s := newTestStack(t, 100)
	seedUser(t, s.db, "loner")

	page, err := s.feedSvc.GetFeed(context.Background(), "loner", "", 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Empty(t, page.NextCursor)
}

func TestFeedRejectsBadCursor(t *testing.T) {
	s := newTestStack(t, 100)
	seedUser(t, s.db, "reader")

	_, err := s.feedSvc.GetFeed(context.Background(), "reader", "???", 10)
	assert.ErrorIs(t, err, ErrBadCursor)
}

// slowStoreSource 模拟底层存储超时的单路流：先吐固定引用，然后超时
type slowStoreSource struct {
	refs []*feedRef
	idx  int
}

func (s *slowStoreSource) Prime(context.Context) error { return nil }

func (s *slowStoreSource) Next(context.Context) (*feedRef, error) {
	if s.idx >= len(s.refs) {
		return nil, context.DeadlineExceeded
	}
	ref := s.refs[s.idx]
	s.idx++
	return ref, nil
}

func TestFeedMergeTruncatesWhenSourceTimesOut(t *testing.T) {
	s := newTestStack(t, 100)

	alive := &slowStoreSource{refs: []*feedRef{
		{postID: "p3", sourceID: "a", score: 300},
		{postID: "p2", sourceID: "a", score: 200},
		{postID: "p1", sourceID: "a", score: 100},
	}}
	dead := &slowStoreSource{} // 第一次取数就超时

	refs, partial, err := s.feedSvc.merge(context.Background(), []feedSource{alive, dead}, 10)
	require.NoError(t, err)
	assert.True(t, partial)
	require.Len(t, refs, 3)
	assert.Equal(t, "p3", refs[0].postID)
	assert.Equal(t, "p1", refs[2].postID)
}

func TestFeedReadDeadlineReturnsPartialPage(t *testing.T) {
	s := newTestStack(t, 100)
	ctx := context.Background()
	seedUser(t, s.db, "reader")
	seedUser(t, s.db, "author")
	require.NoError(t, s.followRepo.Create(ctx, "reader", "author"))
	require.NoError(t, s.fanRepo.Create(ctx, "author", "reader"))
	publishAndFanout(t, s, "author", "never in time")

	// 读超时设到必然耗尽：返回部分页而不是报错
	svc := NewFeedService(s.feedRepo, s.postRepo, s.followRepo, s.hot, s.snapshots,
		20, 100, 4, 50, time.Nanosecond)

	cursor := EncodeCursor(time.Now().UnixNano(), "resume-point")
	page, err := svc.GetFeed(ctx, "reader", cursor, 10)
	require.NoError(t, err)
	assert.True(t, page.Partial)
	assert.Empty(t, page.Items)
	// 没合并出任何项时原样带回请求游标，客户端可从原位置续读
	assert.Equal(t, cursor, page.NextCursor)
}

func TestFeedSkipsPostsDeletedBeforeHydration(t *testing.T) {
	s := newTestStack(t, 100)
	ctx := context.Background()
	seedUser(t, s.db, "reader")
	seedUser(t, s.db, "author")
	require.NoError(t, s.followRepo.Create(ctx, "reader", "author"))
	require.NoError(t, s.fanRepo.Create(ctx, "author", "reader"))

	keep := publishAndFanout(t, s, "author", "keep")
	drop := publishAndFanout(t, s, "author", "drop")
	// 物化项还在，但帖子本体已删
	require.NoError(t, s.db.Exec("DELETE FROM posts WHERE id = ?", drop).Error)

	page, err := s.feedSvc.GetFeed(ctx, "reader", "", 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, keep, page.Items[0].PostID)
}
