package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robcarmo/puppies-api/internal/model"
	"github.com/robcarmo/puppies-api/internal/repository"
)

func TestAuthorSnapshotCacheBackfill(t *testing.T) {
	_, client, db := newCacheTestDeps(t)
	require.NoError(t, db.AutoMigrate(&model.User{}))
	userRepo := repository.NewUserRepository(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&model.User{
		ID: "u1", Username: "alice", Email: "alice@example.com", AvatarURL: "https://cdn.example.com/a.png",
	}).Error)

	snaps := NewAuthorSnapshotCache(client, userRepo, time.Minute)
	got, err := snaps.GetMany(ctx, []string{"u1", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "alice", got["u1"].Username)
	assert.Equal(t, "https://cdn.example.com/a.png", got["u1"].AvatarURL)

	// 第二次命中缓存：删掉库里的行仍能返回快照
	require.NoError(t, db.Exec("DELETE FROM users WHERE id = ?", "u1").Error)
	got, err = snaps.GetMany(ctx, []string{"u1"})
	require.NoError(t, err)
	assert.Equal(t, "alice", got["u1"].Username)
}

func TestAuthorSnapshotCacheEmptyInput(t *testing.T) {
	_, client, db := newCacheTestDeps(t)
	snaps := NewAuthorSnapshotCache(client, repository.NewUserRepository(db), time.Minute)

	got, err := snaps.GetMany(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
