package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robcarmo/puppies-api/internal/model"
	"github.com/robcarmo/puppies-api/internal/repository"
)

func newInteractionFixture(t *testing.T) (*testStack, *InteractionService, string) {
	t.Helper()
	s := newTestStack(t, 100)
	svc := NewInteractionService(s.db, repository.NewCommentRepository(s.db))
	seedUser(t, s.db, "author")
	seedUser(t, s.db, "u1")
	post, err := s.publisher.Publish(context.Background(), "author", "like me", "", "")
	require.NoError(t, err)
	return s, svc, post.ID
}

func getPost(t *testing.T, s *testStack, id string) *model.Post {
	t.Helper()
	var p model.Post
	require.NoError(t, s.db.Where("id = ?", id).First(&p).Error)
	return &p
}

func TestLikeIsIdempotent(t *testing.T) {
	s, svc, postID := newInteractionFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.Like(ctx, "u1", postID))
	require.NoError(t, svc.Like(ctx, "u1", postID))
	require.NoError(t, svc.Like(ctx, "u1", postID))

	assert.Equal(t, int64(1), getPost(t, s, postID).LikeCount)
}

func TestUnlikeWithoutLikeIsNoop(t *testing.T) {
	s, svc, postID := newInteractionFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.Unlike(ctx, "u1", postID))
	assert.Equal(t, int64(0), getPost(t, s, postID).LikeCount)
}

func TestLikeUnlikeToggleConverges(t *testing.T) {
	s, svc, postID := newInteractionFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Like(ctx, "u1", postID))
		require.NoError(t, svc.Unlike(ctx, "u1", postID))
	}
	require.NoError(t, svc.Like(ctx, "u1", postID))

	assert.Equal(t, int64(1), getPost(t, s, postID).LikeCount)
	exists, err := repository.NewLikeRepository(s.db).Exists(ctx, "u1", postID)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLikeMissingPost(t *testing.T) {
	_, svc, _ := newInteractionFixture(t)
	assert.ErrorIs(t, svc.Like(context.Background(), "u1", "nope"), ErrPostNotFound)
}

func TestAddCommentBumpsCount(t *testing.T) {
	s, svc, postID := newInteractionFixture(t)
	ctx := context.Background()

	c, err := svc.AddComment(ctx, "u1", postID, "nice dog")
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, int64(1), getPost(t, s, postID).CommentCount)

	_, err = svc.AddComment(ctx, "u1", postID, "")
	assert.ErrorIs(t, err, ErrEmptyComment)
	_, err = svc.AddComment(ctx, "u1", "nope", "hello")
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestListCommentsPaginates(t *testing.T) {
	_, svc, postID := newInteractionFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.AddComment(ctx, "u1", postID, "c")
		require.NoError(t, err)
	}

	page1, next, err := svc.ListComments(ctx, postID, "", 3)
	require.NoError(t, err)
	require.Len(t, page1, 3)
	require.NotEmpty(t, next)

	page2, _, err := svc.ListComments(ctx, postID, next, 3)
	require.NoError(t, err)
	require.Len(t, page2, 2)

	seen := make(map[string]struct{})
	for _, c := range append(page1, page2...) {
		_, dup := seen[c.ID]
		require.False(t, dup)
		seen[c.ID] = struct{}{}
	}
}

func TestReconcileCountsFixesDrift(t *testing.T) {
	s, svc, postID := newInteractionFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.Like(ctx, "u1", postID))
	_, err := svc.AddComment(ctx, "u1", postID, "hi")
	require.NoError(t, err)

	// 人为制造计数漂移
	require.NoError(t, s.db.Model(&model.Post{}).Where("id = ?", postID).
		Updates(map[string]any{"like_count": 42, "comment_count": 0}).Error)

	fixed, err := svc.ReconcileCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), fixed)

	p := getPost(t, s, postID)
	assert.Equal(t, int64(1), p.LikeCount)
	assert.Equal(t, int64(1), p.CommentCount)

	// 无漂移时对账不动任何行
	fixed, err = svc.ReconcileCounts(ctx)
	require.NoError(t, err)
	assert.Zero(t, fixed)
}
